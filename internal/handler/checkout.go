package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/garment-booking/internal/api"
	"github.com/iliyamo/garment-booking/internal/booking"
	"github.com/iliyamo/garment-booking/internal/catalog"
	"github.com/iliyamo/garment-booking/internal/config"
	"github.com/iliyamo/garment-booking/internal/middleware"
	"github.com/iliyamo/garment-booking/internal/payment"
)

// CheckoutBackend is what a server-side checkout books through.
type CheckoutBackend interface {
	catalog.Reader
	payment.Backend
	payment.Reconciler
}

// CheckoutHandler runs the whole booking workflow in one request: the
// form controller validates and prices, the orchestrator pays and records.
// One checkout per buyer and product runs at a time.
type CheckoutHandler struct {
	Backend   CheckoutBackend
	Gateway   payment.Gateway // nil when card payments are disabled
	Locks     Locker
	Cfg       config.CheckoutConfig
	Currency  string
	Retryable func(error) bool
}

func NewCheckoutHandler(b CheckoutBackend, gw payment.Gateway, locks Locker, cfg config.CheckoutConfig, currency string, retryable func(error) bool) *CheckoutHandler {
	if b == nil || locks == nil {
		panic("nil dependency passed to NewCheckoutHandler")
	}
	return &CheckoutHandler{Backend: b, Gateway: gw, Locks: locks, Cfg: cfg, Currency: currency, Retryable: retryable}
}

type checkoutReq struct {
	ProductID uint64 `json:"productId"`
	Quantity  int    `json:"quantity"`
	booking.Fields
	PaymentMethod   string `json:"paymentMethod"`
	PaymentMethodID string `json:"paymentMethodId"` // tokenized card, card payments only
}

type checkoutResp struct {
	Booking         any    `json:"booking"`
	RedirectTo      string `json:"redirectTo"`
	RedirectAfterMs int64  `json:"redirectAfterMs"`
}

// Checkout handles POST /v1/checkout.
func (h *CheckoutHandler) Checkout(c echo.Context) error {
	var req checkoutReq
	if err := c.Bind(&req); err != nil || req.ProductID == 0 {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "productId required")
	}
	id := middleware.CurrentIdentity(c)
	if id == nil {
		return errorJSON(c, http.StatusUnauthorized, api.CodeUnauthorized, "unauthorized")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 60*time.Second)
	defer cancel()

	release, ok, err := h.Locks.Acquire(ctx, fmt.Sprintf("garment:checkout:%d:%d", id.UserID, req.ProductID), h.Cfg.LockTTL)
	if err != nil {
		return fail(c, err)
	}
	if !ok {
		return errorJSON(c, http.StatusConflict, api.CodeBusy, "A checkout for this product is already in progress")
	}
	defer release()

	facts, err := catalog.Fetch(ctx, h.Backend, req.ProductID)
	if err != nil {
		return fail(c, err)
	}
	form := booking.NewController(facts, id)
	if req.Quantity != 0 && form.SetQuantity(req.Quantity) != req.Quantity {
		q := form.Quote()
		return fail(c, &booking.ValidationError{Fields: map[string]string{
			"quantity": fmt.Sprintf("must be between %d and %d", q.Min, q.Max),
		}})
	}
	form.SetFields(req.Fields)
	if req.PaymentMethod != "" {
		form.SetPaymentMethod(req.PaymentMethod)
	}
	p, err := form.Submit()
	if err != nil {
		return fail(c, err)
	}

	orch := payment.New(h.Backend, h.Gateway, h.Backend, payment.Options{
		Currency: h.Currency,
		Retry: payment.RetryPolicy{
			MaxAttempts: h.Cfg.PersistAttempts,
			Initial:     h.Cfg.PersistBackoff,
			Max:         h.Cfg.PersistMaxBackoff,
			Multiplier:  2,
		},
		RedirectDelay: h.Cfg.RedirectDelay,
		Retryable:     h.Retryable,
	})
	res, err := orch.Submit(ctx, p, payment.Card{PaymentMethod: req.PaymentMethodID})
	var unrecorded *payment.CapturedUnrecordedError
	if errors.As(err, &unrecorded) {
		return c.JSON(http.StatusAccepted, echo.Map{
			"error":           "pending_reconciliation",
			"message":         "Your payment was received. We are finalising your order and will confirm it shortly.",
			"paymentIntentId": unrecorded.PaymentIntentID,
			"queued":          unrecorded.Queued,
		})
	}
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, checkoutResp{
		Booking:         res.Booking,
		RedirectTo:      res.RedirectTo,
		RedirectAfterMs: res.RedirectAfter.Milliseconds(),
	})
}
