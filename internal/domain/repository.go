package domain

import (
	"context"
	"time"
)

// SessionRepository defines the interface for correlation record persistence
type SessionRepository interface {
	// Put stores a record keyed by its transaction reference.
	// An existing record for the same reference is overwritten, and any other
	// record held by the same session handle is removed.
	Put(ctx context.Context, record *SessionRecord) error

	// Get retrieves the live record for a transaction reference.
	// Returns ErrRecordNotFound when the record is absent or expired.
	Get(ctx context.Context, transactionReference string) (*SessionRecord, error)

	// Delete removes the record for a transaction reference.
	// Deleting an absent record is not an error.
	Delete(ctx context.Context, transactionReference string) error

	// DeleteBySession removes every record held by a session handle
	// and returns how many were removed
	DeleteBySession(ctx context.Context, sessionHandle string) (int, error)

	// MarkDelivered stamps DeliveredAt on the live record for the reference,
	// only while sessionHandle still holds it. Reports whether a record was marked.
	MarkDelivered(ctx context.Context, transactionReference, sessionHandle string, at time.Time) (bool, error)

	// Release removes the record for the reference only while sessionHandle
	// still holds it. Reports whether a record was removed.
	Release(ctx context.Context, transactionReference, sessionHandle string) (bool, error)
}

// SessionPusher delivers payloads to live push sessions
type SessionPusher interface {
	// Send pushes payload to the session.
	// Returns ErrSessionGone when the handle is not connected.
	Send(ctx context.Context, sessionHandle string, payload []byte) error
}

// TerminalGateway defines the synchronous calls made to the terminal payment gateway
type TerminalGateway interface {
	Purchase(ctx context.Context, creds Credentials, req TransactionRequest) (*TransactionResult, error)
	Status(ctx context.Context, creds Credentials, transactionReference string, stationID int) (*TransactionResult, error)
}
