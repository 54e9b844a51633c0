package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swipeless/payment-relay/internal/adapter/repository/repotest"
	"github.com/swipeless/payment-relay/internal/domain"
)

func TestSessionStore_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) domain.SessionRepository {
		return NewSessionStore(nil)
	})
}

func TestSessionStore_GetReturnsCopy(t *testing.T) {
	s := NewSessionStore(nil)
	ctx := context.Background()

	record := repotest.NewRecord("T1", "S1")
	require.NoError(t, s.Put(ctx, record))
	record.SessionHandle = "mutated"

	got, err := s.Get(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "S1", got.SessionHandle)

	got.SessionHandle = "mutated-again"
	again, err := s.Get(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "S1", again.SessionHandle)
}

func TestSweep_EvictsOnlyExpiredRecords(t *testing.T) {
	s := NewSessionStore(nil)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	fresh := &domain.SessionRecord{TransactionReference: "T1", SessionHandle: "S1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	stale := &domain.SessionRecord{TransactionReference: "T2", SessionHandle: "S2", CreatedAt: now.Add(-3 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	require.NoError(t, s.Put(ctx, fresh))
	require.NoError(t, s.Put(ctx, stale))
	require.Equal(t, 2, s.Len())

	evicted := s.sweep()

	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, s.Len())
	_, err := s.Get(ctx, "T1")
	assert.NoError(t, err)

	n, err := s.DeleteBySession(ctx, "S2")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "sweep should drop the session index too")
}

func TestGet_ExpiresWithClock(t *testing.T) {
	s := NewSessionStore(nil)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(ctx, &domain.SessionRecord{
		TransactionReference: "T1",
		SessionHandle:        "S1",
		CreatedAt:            now,
		ExpiresAt:            now.Add(time.Minute),
	}))

	_, err := s.Get(ctx, "T1")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = s.Get(ctx, "T1")
	assert.True(t, errors.Is(err, domain.ErrRecordNotFound))
}

func TestStartSweeper_StopsWithContext(t *testing.T) {
	s := NewSessionStore(nil)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, s.Put(ctx, &domain.SessionRecord{
		TransactionReference: "T1",
		SessionHandle:        "S1",
		ExpiresAt:            time.Now().Add(-time.Second),
	}))

	s.StartSweeper(ctx, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 10*time.Millisecond)
	cancel()
}
