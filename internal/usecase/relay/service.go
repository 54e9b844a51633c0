package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"github.com/swipeless/payment-relay/internal/domain"
	"github.com/swipeless/payment-relay/internal/metrics"
)

// DefaultPushTimeout bounds a single push to a session
const DefaultPushTimeout = 5 * time.Second

// RelayService forwards completion notifications to the session waiting on them
type RelayService struct {
	SessionRepo domain.SessionRepository
	Pusher      domain.SessionPusher
	Policy      domain.DuplicatePolicy
	PushTimeout time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Metrics

	now func() time.Time
}

// NewRelayService creates a new RelayService instance
func NewRelayService(
	sessionRepo domain.SessionRepository,
	pusher domain.SessionPusher,
	policy domain.DuplicatePolicy,
	pushTimeout time.Duration,
	logger *slog.Logger,
	m *metrics.Metrics,
) *RelayService {
	if policy == "" {
		policy = domain.DuplicateRelay
	}
	if pushTimeout <= 0 {
		pushTimeout = DefaultPushTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RelayService{
		SessionRepo: sessionRepo,
		Pusher:      pusher,
		Policy:      policy,
		PushTimeout: pushTimeout,
		Logger:      logger.With(slog.String("component", "relay")),
		Metrics:     m,
		now:         time.Now,
	}
}

// OnCompletion relays one completion envelope.
// Logic:
//  1. Decode the envelope; a malformed one fails with *domain.DecodeError before any lookup
//  2. Look up the session; a missing or expired record is OutcomeSessionNotFound with a nil error
//  3. Under DuplicateDrop, an already delivered record is OutcomeDuplicateDropped
//  4. Push the payload; a failed push is OutcomeDeliveryFailed with a *domain.DeliveryError
//  5. Apply the duplicate policy bookkeeping, only while the pushed session still
//     holds the reference, and report OutcomeDelivered
func (s *RelayService) OnCompletion(ctx context.Context, envelope []byte) (domain.RelayOutcome, error) {
	// 1. Decode
	notification, err := domain.DecodeCompletion(envelope)
	if err != nil {
		s.Logger.Warn("discarding malformed completion", "err", err)
		return "", err
	}
	ref := notification.TransactionReference
	logger := s.Logger.With(slog.String("transaction_reference", ref))
	if notification.DiscardedRecords > 0 {
		logger.Warn("record batch carried more than one completion, relaying the first only",
			slog.Int("discarded", notification.DiscardedRecords))
	}

	// 2. Look up the waiting session
	record, err := s.SessionRepo.Get(ctx, ref)
	if errors.Is(err, domain.ErrRecordNotFound) {
		logger.Info("no session waiting for completion")
		return s.outcome(domain.OutcomeSessionNotFound), nil
	}
	if err != nil {
		logger.Error("looking up session", "err", err)
		return "", fmt.Errorf("look up session for %s: %w", ref, err)
	}
	logger = logger.With(slog.String("session_handle", record.SessionHandle))

	// 3. Duplicates
	if s.Policy == domain.DuplicateDrop && record.Delivered() {
		logger.Info("dropping duplicate completion", slog.Time("delivered_at", *record.DeliveredAt))
		return s.outcome(domain.OutcomeDuplicateDropped), nil
	}

	// 4. Push
	pushCtx, cancel := context.WithTimeout(ctx, s.PushTimeout)
	defer cancel()

	if err := s.Pusher.Send(pushCtx, record.SessionHandle, notification.Payload); err != nil {
		logger.Error("delivering completion", "err", err)
		s.Metrics.Relayed(domain.OutcomeDeliveryFailed)
		return domain.OutcomeDeliveryFailed, &domain.DeliveryError{
			TransactionReference: ref,
			SessionHandle:        record.SessionHandle,
			Err:                  err,
		}
	}

	// 5. Bookkeeping never turns a delivered completion into a failure
	switch s.Policy {
	// A session that re-registered the reference after the lookup keeps its record
	case domain.DuplicateDrop:
		marked, err := s.SessionRepo.MarkDelivered(ctx, ref, record.SessionHandle, s.now().UTC())
		if err != nil {
			logger.Warn("marking session record delivered", "err", err)
		} else if !marked {
			logger.Info("session record changed before it was marked delivered")
		}
	case domain.DuplicateRelease:
		released, err := s.SessionRepo.Release(ctx, ref, record.SessionHandle)
		if err != nil {
			logger.Warn("releasing session record", "err", err)
		} else if !released {
			logger.Info("session record changed before it was released")
		}
	}

	logger.Info("completion delivered")
	return s.outcome(domain.OutcomeDelivered), nil
}

func (s *RelayService) outcome(o domain.RelayOutcome) domain.RelayOutcome {
	s.Metrics.Relayed(o)
	return o
}
