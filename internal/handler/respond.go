package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/garment-booking/internal/api"
	"github.com/iliyamo/garment-booking/internal/booking"
	"github.com/iliyamo/garment-booking/internal/payment"
	"github.com/iliyamo/garment-booking/internal/policy"
	"github.com/iliyamo/garment-booking/internal/repository"
	"github.com/iliyamo/garment-booking/internal/service"
	"github.com/iliyamo/garment-booking/internal/tracker"
)

// getUserID extracts the user_id set by the JWT middleware.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func errorJSON(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, api.ErrorBody{Error: code, Message: msg})
}

// fail translates a domain error into the API error body.
func fail(c echo.Context, err error) error {
	var (
		verr    *booking.ValidationError
		denied  *policy.DeniedError
		gateErr *payment.GatewayError
	)
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, api.ErrorBody{Error: api.CodeValidation, Message: "Please correct the highlighted fields", Fields: verr.Fields})
	case errors.As(err, &denied):
		status := http.StatusForbidden
		if denied.Decision.Reason == policy.NotSignedIn {
			status = http.StatusUnauthorized
		}
		return errorJSON(c, status, string(denied.Decision.Reason), denied.Decision.Message())
	case errors.As(err, &gateErr):
		return errorJSON(c, http.StatusPaymentRequired, api.CodeGateway, gateErr.Message)
	case errors.Is(err, tracker.ErrPermission):
		return errorJSON(c, http.StatusForbidden, api.CodeForbidden, err.Error())
	case errors.Is(err, tracker.ErrNotCancellable):
		return errorJSON(c, http.StatusConflict, api.CodeConflict, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, api.CodeNotFound, "not found")
	case errors.Is(err, repository.ErrForbidden):
		return errorJSON(c, http.StatusForbidden, api.CodeForbidden, "You don't have permission to access this order")
	case errors.Is(err, repository.ErrStockChanged):
		return errorJSON(c, http.StatusConflict, api.CodeStockChanged, "The product changed since you opened it. Please review the new price and stock.")
	case errors.Is(err, repository.ErrInsufficientStock):
		return errorJSON(c, http.StatusConflict, api.CodeInsufficientStock, "Not enough stock left for this quantity")
	case errors.Is(err, repository.ErrConflict):
		return errorJSON(c, http.StatusConflict, api.CodeConflict, "The order can no longer be changed this way")
	case errors.Is(err, repository.ErrEmailExists):
		return errorJSON(c, http.StatusConflict, api.CodeEmailExists, "email already exists")
	case errors.Is(err, service.ErrPaymentsDisabled):
		return errorJSON(c, http.StatusServiceUnavailable, api.CodePaymentsDisabled, err.Error())
	case errors.Is(err, service.ErrPaymentNotVerified), errors.Is(err, payment.ErrNotCompleted):
		return errorJSON(c, http.StatusPaymentRequired, api.CodePaymentFailed, err.Error())
	case errors.Is(err, payment.ErrCardRequired):
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "Card details are required for card payments")
	case errors.Is(err, service.ErrPaymentMismatch):
		return errorJSON(c, http.StatusConflict, api.CodePaymentMismatch, err.Error())
	case errors.Is(err, service.ErrInvalidStatus):
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, err.Error())
	case errors.Is(err, booking.ErrNotBookable):
		return errorJSON(c, http.StatusConflict, api.CodeInsufficientStock, "This product cannot be booked right now")
	case errors.Is(err, payment.ErrSubmitInProgress), errors.Is(err, payment.ErrAlreadyCompleted):
		return errorJSON(c, http.StatusConflict, api.CodeBusy, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return errorJSON(c, http.StatusGatewayTimeout, api.CodeInternal, "request timed out")
	}
	log.Printf("[http] %s %s: %v", c.Request().Method, c.Path(), err)
	return errorJSON(c, http.StatusInternalServerError, api.CodeInternal, "internal error")
}
