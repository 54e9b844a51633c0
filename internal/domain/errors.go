package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrRecordNotFound      = errors.New("session record not found")
	ErrSessionGone         = errors.New("session is no longer connected")
	ErrTransport           = errors.New("terminal transport failure")
	ErrProtocol            = errors.New("terminal protocol failure")
	ErrDecode              = errors.New("completion envelope could not be decoded")
	ErrRegistration        = errors.New("session registration failed")
	ErrDeliveryFailed      = errors.New("completion delivery failed")
	ErrPaymentFailed       = errors.New("payment failed")
	ErrPaymentStatusFailed = errors.New("payment status check failed")
)

// TransportError is raised when the HTTP exchange with the gateway fails
// or returns a non-2xx status. StatusCode is zero for network failures.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("terminal gateway returned status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("terminal gateway request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ProtocolError is raised when the gateway response is not well-formed XML
// or lacks a required field
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("terminal protocol error: %s: %v", e.Reason, e.Err)
	}
	return "terminal protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// DecodeError is raised when a completion envelope has an unexpected shape
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode completion: %s: %v", e.Reason, e.Err)
	}
	return "decode completion: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// RegistrationError is raised when a session cannot be recorded for a transaction
type RegistrationError struct {
	TransactionReference string
	SessionHandle        string
	Err                  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register session %s for transaction %s: %v", e.SessionHandle, e.TransactionReference, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

func (e *RegistrationError) Is(target error) bool { return target == ErrRegistration }

// DeliveryError is raised when a completion payload cannot be pushed to its session
type DeliveryError struct {
	TransactionReference string
	SessionHandle        string
	Err                  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver completion for transaction %s to session %s: %v", e.TransactionReference, e.SessionHandle, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDeliveryFailed }

// PaymentFailure wraps any error raised while submitting a purchase
type PaymentFailure struct {
	TransactionReference string
	Err                  error
}

func (e *PaymentFailure) Error() string {
	return fmt.Sprintf("purchase %s failed: %v", e.TransactionReference, e.Err)
}

func (e *PaymentFailure) Unwrap() error { return e.Err }

func (e *PaymentFailure) Is(target error) bool { return target == ErrPaymentFailed }

// PaymentStatusFailure wraps any error raised while checking a transaction status
type PaymentStatusFailure struct {
	TransactionReference string
	Err                  error
}

func (e *PaymentStatusFailure) Error() string {
	return fmt.Sprintf("status check for %s failed: %v", e.TransactionReference, e.Err)
}

func (e *PaymentStatusFailure) Unwrap() error { return e.Err }

func (e *PaymentStatusFailure) Is(target error) bool { return target == ErrPaymentStatusFailed }
