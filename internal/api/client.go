// Package api is the HTTP client of the booking service. A Client backs
// the workflow core (catalog reads, payments, tracking) and the session
// provider when the core runs outside the server, as in bookctl.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/garment-booking/internal/catalog"
	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/payment"
	"github.com/iliyamo/garment-booking/internal/session"
	"github.com/iliyamo/garment-booking/internal/tracker"
)

var (
	_ catalog.Reader     = (*Client)(nil)
	_ payment.Backend    = (*Client)(nil)
	_ payment.Reconciler = (*Client)(nil)
	_ tracker.Backend    = (*Client)(nil)
	_ session.Provider   = (*Client)(nil)
)

// Client talks to one booking server. It holds the signed-in user's
// tokens and is safe for concurrent use.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	mu         sync.Mutex
	access     string
	refresh    string
	identities chan *session.Identity
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		identities: make(chan *session.Identity, 1),
	}
}

// SetTokens installs a token pair obtained elsewhere, e.g. from a saved
// session file.
func (c *Client) SetTokens(access, refresh string) {
	c.mu.Lock()
	c.access, c.refresh = access, refresh
	c.mu.Unlock()
}

// Tokens returns the current token pair.
func (c *Client) Tokens() (access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access, c.refresh
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	err := c.send(ctx, method, path, in, out)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return err
	}
	if _, refresh := c.Tokens(); refresh == "" {
		return err
	}
	if rerr := c.refreshAccess(ctx); rerr != nil {
		return err
	}
	return c.send(ctx, method, path, in, out)
}

func (c *Client) send(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if access, _ := c.Tokens(); access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb ErrorBody
		_ = json.Unmarshal(data, &eb)
		if eb.Error == "" {
			eb.Error = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
		}
		return &Error{Status: resp.StatusCode, Code: eb.Error, Message: eb.Message, Fields: eb.Fields}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// GetProduct fetches one product with its current stock version.
func (c *Client) GetProduct(ctx context.Context, id uint64) (*model.Product, error) {
	var p model.Product
	if err := c.do(ctx, http.MethodGet, "/v1/products/"+strconv.FormatUint(id, 10), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProducts returns catalog products filtered by category and name.
func (c *Client) ListProducts(ctx context.Context, category, search string) ([]model.Product, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	if search != "" {
		q.Set("q", search)
	}
	path := "/v1/products"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []model.Product
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error) {
	var pi model.PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/v1/create-payment-intent", req, &pi); err != nil {
		return nil, err
	}
	return &pi, nil
}

func (c *Client) CreateBooking(ctx context.Context, nb model.NewBooking) (*model.Booking, error) {
	var b model.Booking
	if err := c.do(ctx, http.MethodPost, "/v1/bookings", nb, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) GetBooking(ctx context.Context, id uint64) (*model.Booking, error) {
	var b model.Booking
	if err := c.do(ctx, http.MethodGet, "/v1/bookings/"+strconv.FormatUint(id, 10), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// CancelBooking asks the server to cancel a pending booking.
func (c *Client) CancelBooking(ctx context.Context, id uint64) (*model.Booking, error) {
	var b model.Booking
	if err := c.do(ctx, http.MethodDelete, "/v1/bookings/"+strconv.FormatUint(id, 10), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBookings lists the bookings of f.Email.
func (c *Client) ListBookings(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	if f.Email == "" {
		return nil, errors.New("api: list bookings needs an email")
	}
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Search != "" {
		q.Set("q", f.Search)
	}
	if !f.Since.IsZero() {
		q.Set("since", f.Since.UTC().Format(time.RFC3339))
	}
	path := "/v1/bookings/user/" + url.PathEscape(f.Email)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []model.Booking
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatus moves a booking along the order lifecycle (staff only).
func (c *Client) UpdateStatus(ctx context.Context, id uint64, to model.OrderStatus) (*model.Booking, error) {
	var b model.Booking
	path := "/v1/bookings/" + strconv.FormatUint(id, 10) + "/status"
	if err := c.do(ctx, http.MethodPatch, path, StatusRequest{Status: to}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Reconcile hands a paid but unrecorded booking to the server's
// reconciliation queue.
func (c *Client) Reconcile(ctx context.Context, nb model.NewBooking, cause error) error {
	req := ReconcileRequest{Booking: nb}
	if cause != nil {
		req.Cause = cause.Error()
	}
	return c.do(ctx, http.MethodPost, "/v1/reconcile", req, nil)
}
