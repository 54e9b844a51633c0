package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTransactionRequest_DeviceID(t *testing.T) {
	tests := []struct {
		name       string
		registerID string
		want       string
	}{
		{name: "Single hyphen", registerID: "12-34", want: "1234"},
		{name: "Register UUID", registerID: "0adfd74a-153e-11e9-fa42-7c2f9c2d8e2a", want: "0adfd74a153e11e9fa427c2f9c2d8e2a"},
		{name: "No hyphens", registerID: "REG1", want: "REG1"},
		{name: "Only hyphens", registerID: "---", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := TransactionRequest{RegisterID: tt.registerID}
			assert.Equal(t, tt.want, req.DeviceID())
		})
	}
}

func TestTransactionRequest_Validate(t *testing.T) {
	valid := TransactionRequest{
		TransactionReference: "T1",
		RegisterID:           "12-34",
		Currency:             "NZD",
		Amount:               decimal.RequireFromString("10.00"),
		StationID:            1,
	}

	tests := []struct {
		name    string
		mutate  func(r *TransactionRequest)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "Valid request should pass",
			mutate:  func(r *TransactionRequest) {},
			wantErr: false,
		},
		{
			name:    "Missing reference should fail",
			mutate:  func(r *TransactionRequest) { r.TransactionReference = "  " },
			wantErr: true,
			errMsg:  "transaction reference is required",
		},
		{
			name:    "Register made of hyphens should fail",
			mutate:  func(r *TransactionRequest) { r.RegisterID = "--" },
			wantErr: true,
			errMsg:  "register id is required",
		},
		{
			name:    "Lowercase currency should fail",
			mutate:  func(r *TransactionRequest) { r.Currency = "nzd" },
			wantErr: true,
			errMsg:  "ISO 4217",
		},
		{
			name:    "Zero amount should fail",
			mutate:  func(r *TransactionRequest) { r.Amount = decimal.Zero },
			wantErr: true,
			errMsg:  "amount must be positive",
		},
		{
			name:    "Negative amount should fail",
			mutate:  func(r *TransactionRequest) { r.Amount = decimal.NewFromInt(-5) },
			wantErr: true,
			errMsg:  "amount must be positive",
		},
		{
			name:    "Zero station should fail",
			mutate:  func(r *TransactionRequest) { r.StationID = 0 },
			wantErr: true,
			errMsg:  "station id must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)

			err := req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidRequest))
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTypedErrors_MatchSentinels(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{name: "Transport", err: &TransportError{Err: cause}, sentinel: ErrTransport},
		{name: "Protocol", err: &ProtocolError{Reason: "bad xml", Err: cause}, sentinel: ErrProtocol},
		{name: "Decode", err: &DecodeError{Reason: "bad envelope", Err: cause}, sentinel: ErrDecode},
		{name: "Registration", err: &RegistrationError{TransactionReference: "T1", SessionHandle: "S1", Err: cause}, sentinel: ErrRegistration},
		{name: "Delivery", err: &DeliveryError{TransactionReference: "T1", SessionHandle: "S1", Err: cause}, sentinel: ErrDeliveryFailed},
		{name: "Payment", err: &PaymentFailure{TransactionReference: "T1", Err: cause}, sentinel: ErrPaymentFailed},
		{name: "PaymentStatus", err: &PaymentStatusFailure{TransactionReference: "T1", Err: cause}, sentinel: ErrPaymentStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.sentinel))
			assert.True(t, errors.Is(tt.err, cause), "cause should be reachable through Unwrap")
		})
	}
}

func TestPaymentFailure_CarriesTransportCause(t *testing.T) {
	err := error(&PaymentFailure{
		TransactionReference: "T9",
		Err:                  &TransportError{StatusCode: 503, Body: "unavailable"},
	})

	var transportErr *TransportError
	assert.True(t, errors.As(err, &transportErr))
	assert.Equal(t, 503, transportErr.StatusCode)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Contains(t, err.Error(), "T9")
	assert.Contains(t, err.Error(), "status 503")
}
