package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/swipeless/payment-relay/internal/domain"
)

const (
	recordPrefix  = "txn:"
	sessionPrefix = "session:"
	maxTxnRetries = 5
)

// sessionRepository implements domain.SessionRepository on badger.
// Records live under txn:<reference>; session:<handle> indexes the reference a
// session currently holds. Both keys carry the record's TTL.
type sessionRepository struct {
	db  *DB
	now func() time.Time
}

// NewSessionRepository creates a new badger-backed session repository
func NewSessionRepository(db *DB) domain.SessionRepository {
	return &sessionRepository{db: db, now: time.Now}
}

func recordKey(ref string) []byte     { return []byte(recordPrefix + ref) }
func sessionKey(handle string) []byte { return []byte(sessionPrefix + handle) }

// Put writes the record and its session index in one transaction
func (r *sessionRepository) Put(ctx context.Context, record *domain.SessionRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode session record: %w", err)
	}

	err = r.update(ctx, func(txn *badgerdb.Txn) error {
		// Drop the reference this session held before
		prevRef, err := getString(txn, sessionKey(record.SessionHandle))
		if err != nil && !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
		if err == nil && prevRef != record.TransactionReference {
			if err := txn.Delete(recordKey(prevRef)); err != nil {
				return err
			}
		}

		// Drop the index of the session that held this reference before
		prev, err := getRecord(txn, record.TransactionReference)
		if err != nil && !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
		if err == nil && prev.SessionHandle != record.SessionHandle {
			if err := deleteIndexIfOwned(txn, prev.SessionHandle, record.TransactionReference); err != nil {
				return err
			}
		}

		if err := txn.SetEntry(r.entry(recordKey(record.TransactionReference), value, record.ExpiresAt)); err != nil {
			return err
		}
		return txn.SetEntry(r.entry(sessionKey(record.SessionHandle), []byte(record.TransactionReference), record.ExpiresAt))
	})
	if err != nil {
		return fmt.Errorf("failed to put session record: %w", err)
	}
	return nil
}

// Get retrieves the live record for the reference
func (r *sessionRepository) Get(ctx context.Context, transactionReference string) (*domain.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var record *domain.SessionRecord
	err := r.db.View(func(txn *badgerdb.Txn) error {
		var err error
		record, err = getRecord(txn, transactionReference)
		return err
	})
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get session record: %w", err)
	}

	// Badger TTLs have second granularity
	if record.Expired(r.now()) {
		return nil, domain.ErrRecordNotFound
	}
	return record, nil
}

// Delete removes the record and the index pointing at it
func (r *sessionRepository) Delete(ctx context.Context, transactionReference string) error {
	err := r.update(ctx, func(txn *badgerdb.Txn) error {
		record, err := getRecord(txn, transactionReference)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := txn.Delete(recordKey(transactionReference)); err != nil {
			return err
		}
		return deleteIndexIfOwned(txn, record.SessionHandle, transactionReference)
	})
	if err != nil {
		return fmt.Errorf("failed to delete session record: %w", err)
	}
	return nil
}

// DeleteBySession removes the record the session currently holds
func (r *sessionRepository) DeleteBySession(ctx context.Context, sessionHandle string) (int, error) {
	removed := 0
	err := r.update(ctx, func(txn *badgerdb.Txn) error {
		removed = 0

		ref, err := getString(txn, sessionKey(sessionHandle))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := txn.Delete(sessionKey(sessionHandle)); err != nil {
			return err
		}

		record, err := getRecord(txn, ref)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if record.SessionHandle != sessionHandle {
			return nil
		}
		if err := txn.Delete(recordKey(ref)); err != nil {
			return err
		}
		removed = 1
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete session records: %w", err)
	}
	return removed, nil
}

// MarkDelivered rewrites the record with DeliveredAt set if the session still holds it
func (r *sessionRepository) MarkDelivered(ctx context.Context, transactionReference, sessionHandle string, at time.Time) (bool, error) {
	marked := false
	err := r.update(ctx, func(txn *badgerdb.Txn) error {
		marked = false

		record, err := getRecord(txn, transactionReference)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if record.SessionHandle != sessionHandle || record.Expired(r.now()) {
			return nil
		}

		delivered := at
		record.DeliveredAt = &delivered
		value, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to encode session record: %w", err)
		}
		if err := txn.SetEntry(r.entry(recordKey(transactionReference), value, record.ExpiresAt)); err != nil {
			return err
		}
		marked = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark session record delivered: %w", err)
	}
	return marked, nil
}

// Release removes the record and its index if the session still holds it
func (r *sessionRepository) Release(ctx context.Context, transactionReference, sessionHandle string) (bool, error) {
	released := false
	err := r.update(ctx, func(txn *badgerdb.Txn) error {
		released = false

		record, err := getRecord(txn, transactionReference)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if record.SessionHandle != sessionHandle {
			return nil
		}
		if err := txn.Delete(recordKey(transactionReference)); err != nil {
			return err
		}
		if err := deleteIndexIfOwned(txn, sessionHandle, transactionReference); err != nil {
			return err
		}
		released = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to release session record: %w", err)
	}
	return released, nil
}

// entry builds a badger entry that expires with the record
func (r *sessionRepository) entry(key, value []byte, expiresAt time.Time) *badgerdb.Entry {
	e := badgerdb.NewEntry(key, value)
	if expiresAt.IsZero() {
		return e
	}
	ttl := expiresAt.Sub(r.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	return e.WithTTL(ttl)
}

// update runs fn in a read-write transaction, retrying on write conflicts
func (r *sessionRepository) update(ctx context.Context, fn func(txn *badgerdb.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = r.db.Update(fn)
		if !errors.Is(err, badgerdb.ErrConflict) {
			return err
		}
	}
	return err
}

func getRecord(txn *badgerdb.Txn, ref string) (*domain.SessionRecord, error) {
	item, err := txn.Get(recordKey(ref))
	if err != nil {
		return nil, err
	}

	var record domain.SessionRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode session record: %w", err)
	}
	return &record, nil
}

func getString(txn *badgerdb.Txn, key []byte) (string, error) {
	item, err := txn.Get(key)
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func deleteIndexIfOwned(txn *badgerdb.Txn, handle, ref string) error {
	owned, err := getString(txn, sessionKey(handle))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if owned != ref {
		return nil
	}
	return txn.Delete(sessionKey(handle))
}
