package registrar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/swipeless/payment-relay/internal/adapter/repository/memory"
	"github.com/swipeless/payment-relay/internal/domain"
)

// MockSessionRepository is a mock implementation of SessionRepository for testing
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Put(ctx context.Context, record *domain.SessionRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockSessionRepository) Get(ctx context.Context, ref string) (*domain.SessionRecord, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SessionRecord), args.Error(1)
}

func (m *MockSessionRepository) Delete(ctx context.Context, ref string) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func (m *MockSessionRepository) DeleteBySession(ctx context.Context, handle string) (int, error) {
	args := m.Called(ctx, handle)
	return args.Int(0), args.Error(1)
}

func (m *MockSessionRepository) MarkDelivered(ctx context.Context, ref, handle string, at time.Time) (bool, error) {
	args := m.Called(ctx, ref, handle, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionRepository) Release(ctx context.Context, ref, handle string) (bool, error) {
	args := m.Called(ctx, ref, handle)
	return args.Bool(0), args.Error(1)
}

func TestOnConnect_WritesRecordWithExpiry(t *testing.T) {
	ctx := context.Background()
	repo := new(MockSessionRepository)
	service := NewRegistrarService(repo, 30*time.Minute, nil, nil)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	repo.On("Put", ctx, &domain.SessionRecord{
		TransactionReference: "T1",
		SessionHandle:        "S1",
		CreatedAt:            now,
		ExpiresAt:            now.Add(30 * time.Minute),
	}).Return(nil)

	err := service.OnConnect(ctx, "T1", "S1")

	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestOnConnect_StoreFailureIsRegistrationError(t *testing.T) {
	ctx := context.Background()
	repo := new(MockSessionRepository)
	service := NewRegistrarService(repo, 0, nil, nil)
	cause := errors.New("table unavailable")

	repo.On("Put", ctx, mock.Anything).Return(cause)

	err := service.OnConnect(ctx, "T1", "S1")

	var regErr *domain.RegistrationError
	require.True(t, errors.As(err, &regErr))
	assert.Equal(t, "T1", regErr.TransactionReference)
	assert.Equal(t, "S1", regErr.SessionHandle)
	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, domain.ErrRegistration))
}

func TestOnConnect_RejectsMissingIdentifiers(t *testing.T) {
	tests := []struct {
		name   string
		ref    string
		handle string
	}{
		{name: "Missing reference", ref: " ", handle: "S1"},
		{name: "Missing handle", ref: "T1", handle: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockSessionRepository)
			service := NewRegistrarService(repo, 0, nil, nil)

			err := service.OnConnect(context.Background(), tt.ref, tt.handle)

			assert.True(t, errors.Is(err, domain.ErrRegistration))
			assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
			repo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
		})
	}
}

func TestOnDisconnect_AbsenceIsNotAnError(t *testing.T) {
	ctx := context.Background()
	repo := new(MockSessionRepository)
	service := NewRegistrarService(repo, 0, nil, nil)

	repo.On("DeleteBySession", ctx, "S1").Return(0, nil)

	assert.NoError(t, service.OnDisconnect(ctx, "S1"))
	assert.NoError(t, service.OnDisconnect(ctx, ""))
	repo.AssertNumberOfCalls(t, "DeleteBySession", 1)
}

func TestOnDisconnect_StoreFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	repo := new(MockSessionRepository)
	service := NewRegistrarService(repo, 0, nil, nil)
	cause := errors.New("timeout")

	repo.On("DeleteBySession", ctx, "S1").Return(0, cause)

	err := service.OnDisconnect(ctx, "S1")
	assert.True(t, errors.Is(err, cause))
}

func TestConnectThenDisconnect_WithMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore(nil)
	service := NewRegistrarService(store, time.Hour, nil, nil)

	require.NoError(t, service.OnConnect(ctx, "T1", "S1"))

	got, err := store.Get(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "S1", got.SessionHandle)

	_, err = store.Get(ctx, "T2")
	assert.True(t, errors.Is(err, domain.ErrRecordNotFound))

	require.NoError(t, service.OnDisconnect(ctx, "S1"))
	_, err = store.Get(ctx, "T1")
	assert.True(t, errors.Is(err, domain.ErrRecordNotFound))
}
