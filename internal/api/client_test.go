package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/repository"
	"github.com/iliyamo/garment-booking/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newServer(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/")
}

func TestGetProduct(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "7" {
			writeJSON(w, http.StatusNotFound, ErrorBody{Error: CodeNotFound, Message: "product not found"})
			return
		}
		writeJSON(w, http.StatusOK, model.Product{ID: 7, Name: "Pique Polo", UnitPrice: decimal.RequireFromString("12.99"),
			AvailableQuantity: 1000, MinOrderQuantity: 50, StockVersion: 3})
	})
	c := newServer(t, mux)

	p, err := c.GetProduct(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Pique Polo", p.Name)
	assert.Equal(t, uint64(3), p.StockVersion)
	assert.True(t, p.UnitPrice.Equal(decimal.RequireFromString("12.99")))

	_, err = c.GetProduct(context.Background(), 8)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "product not found", apiErr.Message)
	assert.False(t, apiErr.Retryable())
}

func TestCreateBookingMapsStockErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/bookings", func(w http.ResponseWriter, r *http.Request) {
		var nb model.NewBooking
		if err := json.NewDecoder(r.Body).Decode(&nb); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorBody{Error: CodeInvalid})
			return
		}
		switch nb.Quantity {
		case 1:
			writeJSON(w, http.StatusConflict, ErrorBody{Error: CodeStockChanged, Message: "product changed"})
		case 2:
			writeJSON(w, http.StatusConflict, ErrorBody{Error: CodeInsufficientStock})
		case 3:
			w.WriteHeader(http.StatusBadGateway)
		default:
			writeJSON(w, http.StatusCreated, model.Booking{ID: 11, Quantity: nb.Quantity, Status: model.OrderPending})
		}
	})
	c := newServer(t, mux)
	ctx := context.Background()

	b, err := c.CreateBooking(ctx, model.NewBooking{BookingPayload: model.BookingPayload{Quantity: 50}})
	require.NoError(t, err)
	assert.Equal(t, uint64(11), b.ID)

	_, err = c.CreateBooking(ctx, model.NewBooking{BookingPayload: model.BookingPayload{Quantity: 1}})
	assert.ErrorIs(t, err, repository.ErrStockChanged)

	_, err = c.CreateBooking(ctx, model.NewBooking{BookingPayload: model.BookingPayload{Quantity: 2}})
	assert.ErrorIs(t, err, repository.ErrInsufficientStock)

	_, err = c.CreateBooking(ctx, model.NewBooking{BookingPayload: model.BookingPayload{Quantity: 3}})
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "bad_gateway", apiErr.Code)
	assert.True(t, apiErr.Retryable())
}

func TestSignInStreamsIdentityAndAuthorizes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, ErrorBody{Error: CodeUnauthorized, Message: "invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, AuthResponse{
			User:    session.Identity{UserID: 4, Email: req.Email, Role: model.RoleBuyer, Status: model.StatusActive},
			Access:  Token{Token: "acc-1", Expires: time.Now().Add(time.Hour)},
			Refresh: Token{Token: "ref-1", Expires: time.Now().Add(24 * time.Hour)},
		})
	})
	mux.HandleFunc("GET /v1/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer acc-1" {
			writeJSON(w, http.StatusUnauthorized, ErrorBody{Error: CodeUnauthorized})
			return
		}
		writeJSON(w, http.StatusOK, session.Identity{UserID: 4, Email: "a@x.com", Role: model.RoleBuyer})
	})
	mux.HandleFunc("POST /v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := newServer(t, mux)
	ctx := context.Background()

	_, err := c.SignIn(ctx, "a@x.com", "wrong")
	assert.Error(t, err)

	id, err := c.SignIn(ctx, "a@x.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", id.Email)
	assert.Equal(t, "a@x.com", (<-c.Identities()).Email)

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), me.UserID)

	require.NoError(t, c.SignOut(ctx))
	assert.Nil(t, <-c.Identities())
	access, refresh := c.Tokens()
	assert.Empty(t, access)
	assert.Empty(t, refresh)
}

func TestExpiredAccessTokenIsRefreshedOnce(t *testing.T) {
	refreshed := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/refresh-access", func(w http.ResponseWriter, r *http.Request) {
		refreshed++
		writeJSON(w, http.StatusOK, map[string]Token{"access": {Token: "fresh"}})
	})
	mux.HandleFunc("GET /v1/bookings/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			writeJSON(w, http.StatusUnauthorized, ErrorBody{Error: CodeUnauthorized})
			return
		}
		writeJSON(w, http.StatusOK, model.Booking{ID: 11, Email: "a@x.com", Status: model.OrderShipped})
	})
	c := newServer(t, mux)
	c.SetTokens("stale", "ref-1")

	b, err := c.GetBooking(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, model.OrderShipped, b.Status)
	assert.Equal(t, 1, refreshed)
	access, _ := c.Tokens()
	assert.Equal(t, "fresh", access)
}

func TestListBookingsQuery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/bookings/user/{email}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a@x.com", r.PathValue("email"))
		assert.Equal(t, "pending", r.URL.Query().Get("status"))
		assert.Equal(t, "polo", r.URL.Query().Get("q"))
		assert.Equal(t, "2026-10-08T00:00:00Z", r.URL.Query().Get("since"))
		writeJSON(w, http.StatusOK, []model.Booking{{ID: 1}, {ID: 2}})
	})
	c := newServer(t, mux)

	out, err := c.ListBookings(context.Background(), model.BookingFilter{
		Email: "a@x.com", Status: model.OrderPending, Search: "polo",
		Since: time.Date(2026, 10, 8, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	_, err = c.ListBookings(context.Background(), model.BookingFilter{})
	assert.Error(t, err)
}

func TestCancelAndReconcile(t *testing.T) {
	var reconciled ReconcileRequest
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /v1/bookings/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "12" {
			writeJSON(w, http.StatusConflict, ErrorBody{Error: CodeConflict, Message: "only pending orders can be cancelled"})
			return
		}
		writeJSON(w, http.StatusOK, model.Booking{ID: 11, Status: model.OrderCancelled})
	})
	mux.HandleFunc("POST /v1/reconcile", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&reconciled)
		w.WriteHeader(http.StatusAccepted)
	})
	c := newServer(t, mux)
	ctx := context.Background()

	b, err := c.CancelBooking(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, b.Status)

	_, err = c.CancelBooking(ctx, 12)
	assert.ErrorIs(t, err, repository.ErrConflict)

	nb := model.NewBooking{PaymentIntentID: "pi_1"}
	require.NoError(t, c.Reconcile(ctx, nb, assert.AnError))
	assert.Equal(t, "pi_1", reconciled.Booking.PaymentIntentID)
	assert.Equal(t, assert.AnError.Error(), reconciled.Cause)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&Error{Status: 503}))
	assert.True(t, Retryable(&Error{Status: 429}))
	assert.False(t, Retryable(&Error{Status: 409, Code: CodeStockChanged}))
	assert.False(t, Retryable(context.Canceled))
	assert.True(t, Retryable(assert.AnError))
	assert.False(t, Retryable(nil))
}
