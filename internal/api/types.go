package api

import (
	"time"

	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/session"
)

// Token is one half of the token pair the auth endpoints return.
type Token struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// AuthResponse is the body of register, login, refresh and oauth.
type AuthResponse struct {
	User    session.Identity `json:"user"`
	Access  Token            `json:"access"`
	Refresh Token            `json:"refresh"`
}

// RegisterRequest is the body of POST /v1/auth/register.
type RegisterRequest struct {
	Email       string     `json:"email"`
	Password    string     `json:"password"`
	DisplayName string     `json:"displayName"`
	Role        model.Role `json:"role"`
}

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest carries a raw refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// OAuthRequest is the body of POST /v1/auth/oauth.
type OAuthRequest struct {
	Code string `json:"code"`
}

// ReconcileRequest asks the server to queue a paid booking that could not
// be recorded.
type ReconcileRequest struct {
	Booking model.NewBooking `json:"booking"`
	Cause   string           `json:"cause,omitempty"`
}

// StatusRequest is the body of PATCH /v1/bookings/:id/status.
type StatusRequest struct {
	Status model.OrderStatus `json:"status"`
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Error codes shared by the server and the client.
const (
	CodeInvalid           = "invalid_request"
	CodeValidation        = "validation_failed"
	CodeUnauthorized      = "unauthorized"
	CodeForbidden         = "forbidden"
	CodeNotFound          = "not_found"
	CodeConflict          = "conflict"
	CodeStockChanged      = "stock_changed"
	CodeInsufficientStock = "insufficient_stock"
	CodeEmailExists       = "email_exists"
	CodePaymentFailed     = "payment_not_verified"
	CodePaymentMismatch   = "payment_mismatch"
	CodePaymentsDisabled  = "payments_disabled"
	CodeGateway           = "gateway_error"
	CodeBusy              = "checkout_in_progress"
	CodeInternal          = "internal_error"
)
