package memory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"github.com/swipeless/payment-relay/internal/domain"
)

// SessionStore keeps correlation records in process memory.
// It does not survive restarts and is meant for single-instance deployments and tests.
type SessionStore struct {
	mu        sync.RWMutex
	records   map[string]*domain.SessionRecord
	bySession map[string]string // session handle -> transaction reference
	logger    *slog.Logger
	now       func() time.Time
}

var _ domain.SessionRepository = (*SessionStore)(nil)

// NewSessionStore creates an empty in-memory store
func NewSessionStore(logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		records:   make(map[string]*domain.SessionRecord),
		bySession: make(map[string]string),
		logger:    logger.With(slog.String("store", "memory")),
		now:       time.Now,
	}
}

// Put stores a copy of the record
func (s *SessionStore) Put(ctx context.Context, record *domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A session holds at most one live reference
	if prevRef, ok := s.bySession[record.SessionHandle]; ok && prevRef != record.TransactionReference {
		delete(s.records, prevRef)
	}
	// The reference may have belonged to another session before
	if prev, ok := s.records[record.TransactionReference]; ok && prev.SessionHandle != record.SessionHandle {
		if s.bySession[prev.SessionHandle] == record.TransactionReference {
			delete(s.bySession, prev.SessionHandle)
		}
	}

	cp := *record
	s.records[record.TransactionReference] = &cp
	s.bySession[record.SessionHandle] = record.TransactionReference
	return nil
}

// Get returns a copy of the live record for the reference
func (s *SessionStore) Get(ctx context.Context, transactionReference string) (*domain.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[transactionReference]
	if !ok || record.Expired(s.now()) {
		return nil, domain.ErrRecordNotFound
	}

	cp := *record
	return &cp, nil
}

// Delete removes the record for the reference
func (s *SessionStore) Delete(ctx context.Context, transactionReference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(transactionReference)
	return nil
}

// DeleteBySession removes the record held by the session handle
func (s *SessionStore) DeleteBySession(ctx context.Context, sessionHandle string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.bySession[sessionHandle]
	if !ok {
		return 0, nil
	}
	s.deleteLocked(ref)
	return 1, nil
}

// MarkDelivered stamps the record if the session still holds it
func (s *SessionStore) MarkDelivered(ctx context.Context, transactionReference, sessionHandle string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[transactionReference]
	if !ok || record.SessionHandle != sessionHandle || record.Expired(s.now()) {
		return false, nil
	}
	delivered := at
	record.DeliveredAt = &delivered
	return true, nil
}

// Release removes the record if the session still holds it
func (s *SessionStore) Release(ctx context.Context, transactionReference, sessionHandle string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[transactionReference]
	if !ok || record.SessionHandle != sessionHandle {
		return false, nil
	}
	s.deleteLocked(transactionReference)
	return true, nil
}

func (s *SessionStore) deleteLocked(ref string) {
	record, ok := s.records[ref]
	if !ok {
		return
	}
	delete(s.records, ref)
	if s.bySession[record.SessionHandle] == ref {
		delete(s.bySession, record.SessionHandle)
	}
}

// Len returns the number of stored records, expired ones included
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Ping always succeeds
func (s *SessionStore) Ping(ctx context.Context) error {
	return nil
}

// StartSweeper evicts expired records every interval until ctx is done
func (s *SessionStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

// sweep takes the write lock and drops every expired record
func (s *SessionStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for ref, record := range s.records {
		if record.Expired(now) {
			s.deleteLocked(ref)
			evicted++
		}
	}

	if evicted > 0 {
		s.logger.Info("sweeper evicted expired session records", slog.Int("count", evicted))
	}
	return evicted
}
