package grpc

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/swipeless/payment-relay/internal/domain"
	"github.com/swipeless/payment-relay/internal/usecase/payment"
)

const testToken = "test-token-123"

// MockPaymentProcessor is a mock implementation of PaymentProcessor for testing
type MockPaymentProcessor struct {
	mock.Mock
}

func (m *MockPaymentProcessor) SubmitPurchase(ctx context.Context, input payment.PurchaseInput) (*domain.TransactionResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransactionResult), args.Error(1)
}

func (m *MockPaymentProcessor) CheckStatus(ctx context.Context, ref string) (*domain.TransactionResult, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransactionResult), args.Error(1)
}

// startServer serves PaymentService over an in-memory listener
func startServer(t *testing.T, processor PaymentProcessor) *PaymentServiceClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		LoggingInterceptor(nil),
		AuthInterceptor(testToken),
	))
	RegisterPaymentServiceServer(srv, NewServer(processor))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewPaymentServiceClient(conn)
}

func authed() context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+testToken)
}

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestServer_Purchase(t *testing.T) {
	processor := new(MockPaymentProcessor)
	client := startServer(t, processor)

	processor.On("SubmitPurchase", mock.Anything, payment.PurchaseInput{
		TransactionReference: "T1",
		RegisterID:           "12-34",
		Amount:               decimal.RequireFromString("10.00"),
	}).Return(&domain.TransactionResult{TransactionReference: "T1", TerminalStep: "5", Done: false}, nil)

	out, err := client.Purchase(authed(), mustStruct(t, map[string]interface{}{
		"transactionReference": "T1",
		"registerId":           "12-34",
		"amount":               "10.00",
	}))

	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"transactionReference": "T1",
		"terminalStep":         "5",
		"done":                 false,
	}, out.AsMap())
	processor.AssertExpectations(t)
}

func TestServer_PurchaseNumericFields(t *testing.T) {
	processor := new(MockPaymentProcessor)
	client := startServer(t, processor)

	processor.On("SubmitPurchase", mock.Anything, mock.MatchedBy(func(in payment.PurchaseInput) bool {
		return in.Amount.Equal(decimal.RequireFromString("12.5")) && in.StationID == 2
	})).Return(&domain.TransactionResult{TransactionReference: "T1", TerminalStep: "1"}, nil)

	_, err := client.Purchase(authed(), mustStruct(t, map[string]interface{}{
		"transactionReference": "T1",
		"registerId":           "R",
		"amount":               12.5,
		"stationId":            2,
	}))

	require.NoError(t, err)
	processor.AssertExpectations(t)
}

func TestServer_PurchaseBadArguments(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]interface{}
	}{
		{name: "Amount not numeric", fields: map[string]interface{}{"amount": "ten"}},
		{name: "Amount boolean", fields: map[string]interface{}{"amount": true}},
		{name: "Fractional station", fields: map[string]interface{}{"amount": "1", "stationId": 1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := new(MockPaymentProcessor)
			client := startServer(t, processor)

			_, err := client.Purchase(authed(), mustStruct(t, tt.fields))

			assert.Equal(t, codes.InvalidArgument, status.Code(err))
			processor.AssertNotCalled(t, "SubmitPurchase", mock.Anything, mock.Anything)
		})
	}
}

func TestServer_Status(t *testing.T) {
	processor := new(MockPaymentProcessor)
	client := startServer(t, processor)

	processor.On("CheckStatus", mock.Anything, "T1").
		Return(&domain.TransactionResult{TransactionReference: "T1", TerminalStep: "done", Done: true}, nil)

	out, err := client.Status(authed(), mustStruct(t, map[string]interface{}{"transactionReference": "T1"}))

	require.NoError(t, err)
	assert.Equal(t, true, out.AsMap()["done"])
}

func TestServer_RequiresToken(t *testing.T) {
	processor := new(MockPaymentProcessor)
	client := startServer(t, processor)

	_, err := client.Status(context.Background(), mustStruct(t, map[string]interface{}{"transactionReference": "T1"}))

	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	processor.AssertNotCalled(t, "CheckStatus", mock.Anything, mock.Anything)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "Nil", err: nil, want: codes.OK},
		{name: "Invalid request", err: &domain.PaymentFailure{Err: domain.ErrInvalidRequest}, want: codes.InvalidArgument},
		{name: "Transport", err: &domain.PaymentStatusFailure{Err: &domain.TransportError{StatusCode: 500}}, want: codes.Unavailable},
		{name: "Protocol", err: &domain.PaymentFailure{Err: &domain.ProtocolError{Reason: "bad"}}, want: codes.Unknown},
		{name: "Deadline", err: &domain.PaymentFailure{Err: context.DeadlineExceeded}, want: codes.DeadlineExceeded},
		{name: "Other", err: errors.New("boom"), want: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(mapError(tt.err)))
		})
	}
}
