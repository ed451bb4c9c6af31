package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/garment-booking/internal/api"
	"github.com/iliyamo/garment-booking/internal/middleware"
	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/repository"
	"github.com/iliyamo/garment-booking/internal/service"
	"github.com/iliyamo/garment-booking/internal/tracker"
)

// BookingHandler exposes the booking backend to buyers: payment intents,
// booking creation, tracking, order lists and cancellation.
type BookingHandler struct {
	Svc     *service.BookingService
	Tracker *tracker.Tracker
}

func NewBookingHandler(svc *service.BookingService) *BookingHandler {
	if svc == nil {
		panic("nil service passed to NewBookingHandler")
	}
	return &BookingHandler{Svc: svc, Tracker: tracker.New(svc)}
}

// CreatePaymentIntent handles POST /v1/create-payment-intent.
func (h *BookingHandler) CreatePaymentIntent(c echo.Context) error {
	var req model.PaymentIntentRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "invalid request body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()
	pi, err := h.Svc.CreatePaymentIntent(ctx, req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, pi)
}

// CreateBooking handles POST /v1/bookings.
func (h *BookingHandler) CreateBooking(c echo.Context) error {
	var nb model.NewBooking
	if err := c.Bind(&nb); err != nil {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "invalid request body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()
	b, err := h.Svc.CreateBooking(ctx, nb)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// GetBooking handles GET /v1/bookings/:id for the buyer or staff.
func (h *BookingHandler) GetBooking(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "invalid booking id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	b, err := h.Svc.GetBooking(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Track handles GET /v1/bookings/:id/track: the progress timeline and
// shipment history, for the buyer only. Missing and foreign bookings get
// the same 403.
func (h *BookingHandler) Track(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "invalid booking id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	v, err := h.Tracker.Track(ctx, id, middleware.CurrentIdentity(c))
	if errors.Is(err, repository.ErrForbidden) || errors.Is(err, repository.ErrNotFound) {
		err = tracker.ErrPermission
	}
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// ListForUser handles GET /v1/bookings/user/:email?status=&q=&since=&range=.
func (h *BookingHandler) ListForUser(c echo.Context) error {
	f, err := bookingFilter(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, err.Error())
	}
	f.Email = strings.TrimSpace(c.Param("email"))
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	items, err := h.Svc.ListBookings(ctx, f)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// Cancel handles DELETE /v1/bookings/:id. Only pending bookings can be
// cancelled; the quantity goes back into stock.
func (h *BookingHandler) Cancel(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "invalid booking id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	b, err := h.Svc.CancelBooking(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Reconcile handles POST /v1/reconcile: a client that charged a card but
// could not record the booking hands it over for reconciliation.
func (h *BookingHandler) Reconcile(c echo.Context) error {
	var req api.ReconcileRequest
	if err := c.Bind(&req); err != nil || req.Booking.PaymentIntentID == "" {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "booking with paymentIntentId required")
	}
	if !middleware.CurrentIdentity(c).Owns(req.Booking.Email) {
		return fail(c, repository.ErrForbidden)
	}
	var cause error
	if req.Cause != "" {
		cause = errors.New(req.Cause)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Svc.Reconcile(ctx, req.Booking, cause); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

// bookingFilter reads the list filters shared by buyer and staff lists.
// since is an RFC 3339 timestamp; range (today, week, month) is the
// shorthand the order list page uses.
func bookingFilter(c echo.Context) (model.BookingFilter, error) {
	f := model.BookingFilter{
		Status: model.OrderStatus(strings.ToLower(c.QueryParam("status"))),
		Search: c.QueryParam("q"),
	}
	if s := c.QueryParam("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return f, errors.New("since must be an RFC 3339 timestamp")
		}
		f.Since = t
	} else if r := c.QueryParam("range"); r != "" {
		f.Since = tracker.SinceFor(r, time.Now())
	}
	if f.Status == "all" {
		f.Status = ""
	}
	return f, nil
}
