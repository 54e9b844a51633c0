package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// TerminalStepUnknown is reported when the gateway response carries no TxnStatusId
const TerminalStepUnknown = "unknown"

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Credentials identify this integration to the terminal gateway
type Credentials struct {
	User string
	Key  string
}

// TransactionRequest is a purchase as it is sent to the terminal gateway
type TransactionRequest struct {
	TransactionReference string
	RegisterID           string
	Currency             string          // ISO 4217
	Amount               decimal.Decimal // Major units, sent with two decimal places
	StationID            int
}

// DeviceID returns the register id with every hyphen removed.
// The gateway rejects device identifiers containing dashes.
func (r TransactionRequest) DeviceID() string {
	return strings.ReplaceAll(r.RegisterID, "-", "")
}

// Validate checks the minimal shape of a purchase request
func (r TransactionRequest) Validate() error {
	if strings.TrimSpace(r.TransactionReference) == "" {
		return fmt.Errorf("%w: transaction reference is required", ErrInvalidRequest)
	}
	if r.DeviceID() == "" {
		return fmt.Errorf("%w: register id is required", ErrInvalidRequest)
	}
	if !currencyPattern.MatchString(r.Currency) {
		return fmt.Errorf("%w: currency %q is not an ISO 4217 code", ErrInvalidRequest, r.Currency)
	}
	if r.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if r.StationID <= 0 {
		return fmt.Errorf("%w: station id must be positive", ErrInvalidRequest)
	}
	return nil
}

// TransactionResult is the normalized gateway response for purchase and status calls
type TransactionResult struct {
	TransactionReference string `json:"transactionReference"`
	TerminalStep         string `json:"terminalStep"`
	Done                 bool   `json:"done"`
}
