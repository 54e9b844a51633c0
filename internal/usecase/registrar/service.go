package registrar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/exp/slog"

	"github.com/swipeless/payment-relay/internal/domain"
	"github.com/swipeless/payment-relay/internal/metrics"
)

// DefaultRecordTTL bounds how long an unmatched session record is kept
const DefaultRecordTTL = 2 * time.Hour

// RegistrarService records which push session is waiting on which transaction
type RegistrarService struct {
	SessionRepo domain.SessionRepository
	RecordTTL   time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Metrics

	now func() time.Time
}

// NewRegistrarService creates a new RegistrarService instance
func NewRegistrarService(sessionRepo domain.SessionRepository, recordTTL time.Duration, logger *slog.Logger, m *metrics.Metrics) *RegistrarService {
	if recordTTL <= 0 {
		recordTTL = DefaultRecordTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistrarService{
		SessionRepo: sessionRepo,
		RecordTTL:   recordTTL,
		Logger:      logger.With(slog.String("component", "registrar")),
		Metrics:     m,
		now:         time.Now,
	}
}

// OnConnect stores transactionReference -> sessionHandle.
// A store failure is logged and returned as *domain.RegistrationError so the
// handshake can be rejected.
func (s *RegistrarService) OnConnect(ctx context.Context, transactionReference, sessionHandle string) error {
	ref := strings.TrimSpace(transactionReference)
	if ref == "" || sessionHandle == "" {
		return &domain.RegistrationError{
			TransactionReference: ref,
			SessionHandle:        sessionHandle,
			Err:                  fmt.Errorf("%w: transaction reference and session handle are required", domain.ErrInvalidRequest),
		}
	}

	now := s.now().UTC()
	record := &domain.SessionRecord{
		TransactionReference: ref,
		SessionHandle:        sessionHandle,
		CreatedAt:            now,
		ExpiresAt:            now.Add(s.RecordTTL),
	}

	if err := s.SessionRepo.Put(ctx, record); err != nil {
		s.Logger.Error("registering session",
			slog.String("transaction_reference", ref),
			slog.String("session_handle", sessionHandle),
			"err", err,
		)
		return &domain.RegistrationError{TransactionReference: ref, SessionHandle: sessionHandle, Err: err}
	}

	s.Metrics.SessionRegistered()
	s.Logger.Info("session registered",
		slog.String("transaction_reference", ref),
		slog.String("session_handle", sessionHandle),
	)
	return nil
}

// OnDisconnect removes whatever record the session still holds.
// Finding nothing is expected: the completion may already have been relayed.
func (s *RegistrarService) OnDisconnect(ctx context.Context, sessionHandle string) error {
	if sessionHandle == "" {
		return nil
	}

	n, err := s.SessionRepo.DeleteBySession(ctx, sessionHandle)
	if err != nil {
		s.Logger.Warn("removing session records", slog.String("session_handle", sessionHandle), "err", err)
		return fmt.Errorf("remove records for session %s: %w", sessionHandle, err)
	}

	s.Logger.Debug("session unregistered", slog.String("session_handle", sessionHandle), slog.Int("removed", n))
	return nil
}
