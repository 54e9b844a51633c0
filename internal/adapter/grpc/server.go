package grpc

import (
	"context"
	"errors"
	"math"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/swipeless/payment-relay/internal/domain"
	"github.com/swipeless/payment-relay/internal/usecase/payment"
)

// PaymentProcessor is the purchase and status use case served over gRPC
type PaymentProcessor interface {
	SubmitPurchase(ctx context.Context, input payment.PurchaseInput) (*domain.TransactionResult, error)
	CheckStatus(ctx context.Context, transactionReference string) (*domain.TransactionResult, error)
}

// Server implements the PaymentService gRPC server
type Server struct {
	PaymentService PaymentProcessor
}

var _ PaymentServiceServer = (*Server)(nil)

// NewServer creates a new gRPC server instance
func NewServer(paymentService PaymentProcessor) *Server {
	return &Server{PaymentService: paymentService}
}

// Purchase handles the Purchase RPC
func (s *Server) Purchase(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	// Parse amount from string or number to decimal
	amount, err := decimalField(fields, "amount")
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid amount format: %v", err)
	}

	stationID, err := intField(fields, "stationId")
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid stationId: %v", err)
	}

	// Build input for usecase
	input := payment.PurchaseInput{
		TransactionReference: fields["transactionReference"].GetStringValue(),
		RegisterID:           fields["registerId"].GetStringValue(),
		Amount:               amount,
		Currency:             fields["currency"].GetStringValue(),
		StationID:            stationID,
	}

	// Call usecase service
	result, err := s.PaymentService.SubmitPurchase(ctx, input)
	if err != nil {
		return nil, mapError(err)
	}

	return resultToStruct(result)
}

// Status handles the Status RPC
func (s *Server) Status(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ref := req.GetFields()["transactionReference"].GetStringValue()

	result, err := s.PaymentService.CheckStatus(ctx, ref)
	if err != nil {
		return nil, mapError(err)
	}

	return resultToStruct(result)
}

func resultToStruct(result *domain.TransactionResult) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(map[string]interface{}{
		"transactionReference": result.TransactionReference,
		"terminalStep":         result.TerminalStep,
		"done":                 result.Done,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode result: %v", err)
	}
	return out, nil
}

// decimalField accepts a string or a number; an absent field is zero
func decimalField(fields map[string]*structpb.Value, name string) (decimal.Decimal, error) {
	v, ok := fields[name]
	if !ok {
		return decimal.Zero, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return decimal.NewFromString(kind.StringValue)
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(kind.NumberValue), nil
	default:
		return decimal.Zero, errors.New("must be a string or a number")
	}
}

// intField accepts a whole number; an absent field is zero
func intField(fields map[string]*structpb.Value, name string) (int, error) {
	v, ok := fields[name]
	if !ok {
		return 0, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, errors.New("must be a whole number")
	}
	return int(n.NumberValue), nil
}

// mapError converts payment failures to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	errorMsg := err.Error()

	// Map validation errors to InvalidArgument
	if errors.Is(err, domain.ErrInvalidRequest) {
		return status.Errorf(codes.InvalidArgument, "%s", errorMsg)
	}

	// The gateway could not be reached or refused the call
	if errors.Is(err, domain.ErrTransport) {
		return status.Errorf(codes.Unavailable, "%s", errorMsg)
	}

	// The gateway answered with something unusable
	if errors.Is(err, domain.ErrProtocol) {
		return status.Errorf(codes.Unknown, "%s", errorMsg)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return status.Errorf(codes.DeadlineExceeded, "%s", errorMsg)
	}

	// Default to Internal error for unknown errors
	return status.Errorf(codes.Internal, "%s", errorMsg)
}
