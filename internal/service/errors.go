package service

import (
	"errors"

	"github.com/iliyamo/garment-booking/internal/booking"
	"github.com/iliyamo/garment-booking/internal/policy"
	"github.com/iliyamo/garment-booking/internal/repository"
)

var (
	// ErrPaymentsDisabled means no Stripe key is configured, so card
	// payments cannot be taken. 503.
	ErrPaymentsDisabled = errors.New("card payments are not configured")
	// ErrPaymentNotVerified means the referenced payment intent has not
	// succeeded with the gateway.
	ErrPaymentNotVerified = errors.New("payment has not been completed")
	// ErrPaymentMismatch means the intent's amount differs from the
	// booking total, or the intent was opened for another buyer, product
	// or quantity.
	ErrPaymentMismatch = errors.New("payment does not match the booking")
	// ErrInvalidStatus rejects an unknown order status.
	ErrInvalidStatus = errors.New("unknown order status")
)

// Retryable reports whether a failed booking write may succeed when sent
// again. Rejections decided by the data (stock, ownership, validation,
// policy, payment checks) are final; anything else is treated as
// transient.
func Retryable(err error) bool {
	var (
		verr   *booking.ValidationError
		denied *policy.DeniedError
	)
	switch {
	case err == nil:
		return false
	case errors.As(err, &verr), errors.As(err, &denied):
		return false
	case errors.Is(err, repository.ErrStockChanged),
		errors.Is(err, repository.ErrInsufficientStock),
		errors.Is(err, repository.ErrForbidden),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrConflict),
		errors.Is(err, ErrPaymentsDisabled),
		errors.Is(err, ErrPaymentNotVerified),
		errors.Is(err, ErrPaymentMismatch):
		return false
	}
	return true
}
