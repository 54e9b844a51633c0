package domain

import (
	"fmt"
	"time"
)

// SessionRecord maps a pending transaction to the push session that started it
type SessionRecord struct {
	TransactionReference string     `json:"transactionReference"`
	SessionHandle        string     `json:"sessionHandle"`
	CreatedAt            time.Time  `json:"createdAt"`
	ExpiresAt            time.Time  `json:"expiresAt"`
	DeliveredAt          *time.Time `json:"deliveredAt,omitempty"`
}

// Expired reports whether the record is past its lifetime at now.
// A zero ExpiresAt never expires.
func (r *SessionRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Delivered reports whether a completion has already been pushed for this record
func (r *SessionRecord) Delivered() bool {
	return r.DeliveredAt != nil
}

// RelayOutcome is the result of handling one completion notification
type RelayOutcome string

const (
	OutcomeDelivered        RelayOutcome = "delivered"
	OutcomeSessionNotFound  RelayOutcome = "session_not_found"
	OutcomeDeliveryFailed   RelayOutcome = "delivery_failed"
	OutcomeDuplicateDropped RelayOutcome = "duplicate_dropped"
)

// DuplicatePolicy decides what happens when a completion arrives for a
// transaction whose session already received one
type DuplicatePolicy string

const (
	// DuplicateRelay keeps the record and pushes every completion
	DuplicateRelay DuplicatePolicy = "relay"
	// DuplicateDrop marks the record delivered and drops later completions
	DuplicateDrop DuplicatePolicy = "drop"
	// DuplicateRelease deletes the record after the first delivery
	DuplicateRelease DuplicatePolicy = "release"
)

// ParseDuplicatePolicy converts a configuration value into a DuplicatePolicy.
// An empty value selects DuplicateRelay.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(s) {
	case "", DuplicateRelay:
		return DuplicateRelay, nil
	case DuplicateDrop:
		return DuplicateDrop, nil
	case DuplicateRelease:
		return DuplicateRelease, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q", s)
	}
}
