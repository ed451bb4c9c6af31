package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/garment-booking/internal/api"
	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/service"
)

// ManagerHandler covers order management for managers and admins.
type ManagerHandler struct {
	Svc *service.BookingService
}

func NewManagerHandler(svc *service.BookingService) *ManagerHandler {
	if svc == nil {
		panic("nil service passed to NewManagerHandler")
	}
	return &ManagerHandler{Svc: svc}
}

// ListBookings handles GET /v1/bookings?email=&status=&q=&since=&limit=&offset=.
func (h *ManagerHandler) ListBookings(c echo.Context) error {
	f, err := bookingFilter(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, err.Error())
	}
	f.Email = strings.TrimSpace(c.QueryParam("email"))
	f.Limit, _ = strconv.Atoi(c.QueryParam("limit"))
	f.Offset, _ = strconv.Atoi(c.QueryParam("offset"))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	items, err := h.Svc.ListBookings(ctx, f)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// UpdateStatus handles PATCH /v1/bookings/:id/status.
func (h *ManagerHandler) UpdateStatus(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "invalid booking id")
	}
	var req api.StatusRequest
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "status required")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	b, err := h.Svc.UpdateStatus(ctx, id, model.OrderStatus(strings.ToLower(string(req.Status))))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// AddTracking handles POST /v1/bookings/:id/tracking.
func (h *ManagerHandler) AddTracking(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "invalid booking id")
	}
	var ev model.TrackingEvent
	if err := c.Bind(&ev); err != nil {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "invalid request body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	b, err := h.Svc.AddTracking(ctx, id, ev)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}
