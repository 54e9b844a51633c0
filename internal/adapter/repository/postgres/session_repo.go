package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"github.com/swipeless/payment-relay/internal/domain"
)

// SessionRepository implements domain.SessionRepository on PostgreSQL
type SessionRepository struct {
	db  *DB
	now func() time.Time
}

var _ domain.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// Put upserts the record and drops any other reference held by the same session
func (r *SessionRepository) Put(ctx context.Context, record *domain.SessionRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM session_records
		WHERE session_handle = $1 AND transaction_reference <> $2
	`, record.SessionHandle, record.TransactionReference)
	if err != nil {
		return fmt.Errorf("failed to release previous session reference: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_records (transaction_reference, session_handle, created_at, expires_at, delivered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (transaction_reference) DO UPDATE SET
			session_handle = EXCLUDED.session_handle,
			created_at     = EXCLUDED.created_at,
			expires_at     = EXCLUDED.expires_at,
			delivered_at   = EXCLUDED.delivered_at
	`,
		record.TransactionReference,
		record.SessionHandle,
		record.CreatedAt,
		nullTime(record.ExpiresAt),
		nullTimePtr(record.DeliveredAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session record: %w", err)
	}
	return nil
}

// Get retrieves the live record for a transaction reference
func (r *SessionRepository) Get(ctx context.Context, transactionReference string) (*domain.SessionRecord, error) {
	query := `
		SELECT transaction_reference, session_handle, created_at, expires_at, delivered_at
		FROM session_records
		WHERE transaction_reference = $1
		  AND (expires_at IS NULL OR expires_at > $2)
	`

	var record domain.SessionRecord
	var expiresAt, deliveredAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, transactionReference, r.now()).Scan(
		&record.TransactionReference,
		&record.SessionHandle,
		&record.CreatedAt,
		&expiresAt,
		&deliveredAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get session record: %w", err)
	}

	if expiresAt.Valid {
		record.ExpiresAt = expiresAt.Time
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		record.DeliveredAt = &t
	}

	return &record, nil
}

// Delete removes the record for a transaction reference
func (r *SessionRepository) Delete(ctx context.Context, transactionReference string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM session_records WHERE transaction_reference = $1`, transactionReference)
	if err != nil {
		return fmt.Errorf("failed to delete session record: %w", err)
	}
	return nil
}

// DeleteBySession removes every record held by the session handle
func (r *SessionRepository) DeleteBySession(ctx context.Context, sessionHandle string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM session_records WHERE session_handle = $1`, sessionHandle)
	if err != nil {
		return 0, fmt.Errorf("failed to delete session records: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted session records: %w", err)
	}
	return int(n), nil
}

// MarkDelivered stamps delivered_at on the live record while the session still holds it
func (r *SessionRepository) MarkDelivered(ctx context.Context, transactionReference, sessionHandle string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE session_records SET delivered_at = $3
		WHERE transaction_reference = $1
		  AND session_handle = $2
		  AND (expires_at IS NULL OR expires_at > $4)
	`, transactionReference, sessionHandle, at, r.now())
	if err != nil {
		return false, fmt.Errorf("failed to mark session record delivered: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count marked session records: %w", err)
	}
	return n > 0, nil
}

// Release removes the record while the session still holds it
func (r *SessionRepository) Release(ctx context.Context, transactionReference, sessionHandle string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM session_records WHERE transaction_reference = $1 AND session_handle = $2
	`, transactionReference, sessionHandle)
	if err != nil {
		return false, fmt.Errorf("failed to release session record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count released session records: %w", err)
	}
	return n > 0, nil
}

// DeleteExpired removes every record past its expiry and returns how many were removed
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM session_records WHERE expires_at IS NOT NULL AND expires_at <= $1`, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired session records: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired session records: %w", err)
	}
	return int(n), nil
}

// StartSweeper calls DeleteExpired every interval until ctx is done
func (r *SessionRepository) StartSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("store", "postgres"))

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := r.DeleteExpired(ctx)
				if err != nil {
					if ctx.Err() == nil {
						logger.Error("sweeping expired session records", "err", err)
					}
					continue
				}
				if n > 0 {
					logger.Info("sweeper evicted expired session records", slog.Int("count", n))
				}
			}
		}
	}()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
