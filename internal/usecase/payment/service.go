package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	"github.com/swipeless/payment-relay/internal/domain"
	"github.com/swipeless/payment-relay/internal/metrics"
)

// Settings are resolved once at startup and applied to every request
type Settings struct {
	Credentials domain.Credentials
	Currency    string
	StationID   int
}

// PurchaseInput represents the input for submitting a purchase
type PurchaseInput struct {
	TransactionReference string
	RegisterID           string
	Amount               decimal.Decimal
	Currency             string // Optional: defaults to Settings.Currency
	StationID            int    // Optional: defaults to Settings.StationID
}

// PaymentService is the synchronous purchase and status boundary
type PaymentService struct {
	Gateway  domain.TerminalGateway
	Settings Settings
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// NewPaymentService creates a new PaymentService instance
func NewPaymentService(gateway domain.TerminalGateway, settings Settings, logger *slog.Logger, m *metrics.Metrics) *PaymentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentService{
		Gateway:  gateway,
		Settings: settings,
		Logger:   logger.With(slog.String("component", "payment")),
		Metrics:  m,
	}
}

// SubmitPurchase starts a purchase on the terminal.
// Logic:
//  1. Fill currency and station from settings when absent
//  2. Validate the request shape
//  3. Call the gateway
//
// Every failure is returned as *domain.PaymentFailure.
func (s *PaymentService) SubmitPurchase(ctx context.Context, input PurchaseInput) (*domain.TransactionResult, error) {
	req := domain.TransactionRequest{
		TransactionReference: strings.TrimSpace(input.TransactionReference),
		RegisterID:           strings.TrimSpace(input.RegisterID),
		Currency:             strings.ToUpper(strings.TrimSpace(input.Currency)),
		Amount:               input.Amount,
		StationID:            input.StationID,
	}
	if req.Currency == "" {
		req.Currency = s.Settings.Currency
	}
	if req.StationID == 0 {
		req.StationID = s.Settings.StationID
	}

	if err := req.Validate(); err != nil {
		return nil, s.purchaseFailed(req.TransactionReference, err)
	}

	result, err := s.Gateway.Purchase(ctx, s.Settings.Credentials, req)
	if err != nil {
		return nil, s.purchaseFailed(req.TransactionReference, err)
	}

	s.Logger.Info("purchase submitted",
		slog.String("transaction_reference", result.TransactionReference),
		slog.String("terminal_step", result.TerminalStep),
		slog.Bool("done", result.Done),
	)
	return result, nil
}

// CheckStatus polls the terminal for the current step of a transaction.
// Every failure is returned as *domain.PaymentStatusFailure.
func (s *PaymentService) CheckStatus(ctx context.Context, transactionReference string) (*domain.TransactionResult, error) {
	ref := strings.TrimSpace(transactionReference)
	if ref == "" {
		return nil, s.statusFailed(ref, fmt.Errorf("%w: transaction reference is required", domain.ErrInvalidRequest))
	}

	result, err := s.Gateway.Status(ctx, s.Settings.Credentials, ref, s.Settings.StationID)
	if err != nil {
		return nil, s.statusFailed(ref, err)
	}

	s.Logger.Debug("status checked",
		slog.String("transaction_reference", result.TransactionReference),
		slog.String("terminal_step", result.TerminalStep),
		slog.Bool("done", result.Done),
	)
	return result, nil
}

func (s *PaymentService) purchaseFailed(ref string, err error) error {
	s.Metrics.PaymentFailed(metrics.OperationPurchase)
	s.Logger.Error("purchase failed", slog.String("transaction_reference", ref), "err", err)
	return &domain.PaymentFailure{TransactionReference: ref, Err: err}
}

func (s *PaymentService) statusFailed(ref string, err error) error {
	s.Metrics.PaymentFailed(metrics.OperationStatus)
	s.Logger.Error("status check failed", slog.String("transaction_reference", ref), "err", err)
	return &domain.PaymentStatusFailure{TransactionReference: ref, Err: err}
}
