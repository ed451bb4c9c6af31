package payment

import (
	"errors"
	"fmt"
)

var (
	// ErrSubmitInProgress rejects a submit while another is processing.
	ErrSubmitInProgress = errors.New("payment: submission already in progress")
	// ErrAlreadyCompleted rejects a submit after the attempt succeeded or
	// was handed to reconciliation.
	ErrAlreadyCompleted = errors.New("payment: attempt already completed")
	// ErrNotCompleted means the gateway returned without a succeeded status
	// (for example, further authentication is required).
	ErrNotCompleted = errors.New("payment: payment not completed")
	// ErrCardRequired means a card payment was requested without a
	// tokenized payment method.
	ErrCardRequired = errors.New("payment: card details required")
)

// GatewayError is a failure reported by the payment gateway. Message is
// shown to the buyer unchanged.
type GatewayError struct {
	Code    string
	Message string
}

func (e *GatewayError) Error() string { return e.Message }

// CapturedUnrecordedError means the buyer has been charged but the booking
// could not be stored. The booking has been queued for reconciliation when
// Queued is true.
type CapturedUnrecordedError struct {
	PaymentIntentID string
	Queued          bool
	Err             error
}

func (e *CapturedUnrecordedError) Error() string {
	state := "not queued"
	if e.Queued {
		state = "queued for reconciliation"
	}
	return fmt.Sprintf("payment %s captured but booking not recorded (%s): %v", e.PaymentIntentID, state, e.Err)
}

func (e *CapturedUnrecordedError) Unwrap() error { return e.Err }
