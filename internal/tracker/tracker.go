// Package tracker shows a buyer where an order stands: a five stage
// progress timeline, the shipment history and, while the order is still
// pending, the option to cancel it.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/policy"
	"github.com/iliyamo/garment-booking/internal/session"
)

var (
	// ErrPermission hides a booking from anyone but its buyer.
	ErrPermission = errors.New("You don't have permission to view this order")
	// ErrNotCancellable rejects cancelling a booking that left pending.
	ErrNotCancellable = errors.New("only pending orders can be cancelled")
)

// Backend is the booking API the tracker reads through.
type Backend interface {
	GetBooking(ctx context.Context, id uint64) (*model.Booking, error)
	CancelBooking(ctx context.Context, id uint64) (*model.Booking, error)
	ListBookings(ctx context.Context, f model.BookingFilter) ([]model.Booking, error)
}

// StepState is how a timeline stage relates to the current status.
type StepState string

const (
	Completed StepState = "completed"
	Current   StepState = "current"
	Upcoming  StepState = "upcoming"
)

// Step is one stage of the progress timeline.
type Step struct {
	Status      model.OrderStatus `json:"status"`
	Label       string            `json:"label"`
	Description string            `json:"description"`
	State       StepState         `json:"state"`
}

var stages = []struct {
	label, desc string
}{
	{"Order Placed", "Your order has been received"},
	{"Order Confirmed", "The manufacturer has confirmed your order"},
	{"Processing", "Your garments are being produced"},
	{"Shipped", "Your order is on its way"},
	{"Delivered", "Your order has been delivered"},
}

// View is everything the tracking page renders.
type View struct {
	Booking   *model.Booking        `json:"booking"`
	Steps     []Step                `json:"steps"`
	Cancelled bool                  `json:"cancelled"`
	Events    []model.TrackingEvent `json:"events"`
	CanCancel bool                  `json:"canCancel"`
}

// Timeline maps a status onto the five stages. A cancelled (or unknown)
// status yields every stage upcoming; callers show the cancelled banner
// instead of progress.
func Timeline(st model.OrderStatus) []Step {
	cur := st.Stage()
	steps := make([]Step, len(model.Progression))
	for i, s := range model.Progression {
		state := Upcoming
		switch {
		case cur < 0:
		case i < cur:
			state = Completed
		case i == cur:
			state = Current
		}
		steps[i] = Step{Status: s, Label: stages[i].label, Description: stages[i].desc, State: state}
	}
	return steps
}

// CanCancel reports whether b may still be cancelled by its buyer.
func CanCancel(b *model.Booking) bool { return b != nil && b.Status == model.OrderPending }

// BuildView assembles the tracking view of b. Events are kept in the order
// the backend returned them.
func BuildView(b *model.Booking) *View {
	events := b.TrackingHistory
	if events == nil {
		events = []model.TrackingEvent{}
	}
	return &View{
		Booking:   b,
		Steps:     Timeline(b.Status),
		Cancelled: b.Status == model.OrderCancelled,
		Events:    events,
		CanCancel: CanCancel(b),
	}
}

// Tracker reads bookings on behalf of buyers.
type Tracker struct {
	backend Backend
	now     func() time.Time
}

func New(b Backend) *Tracker { return &Tracker{backend: b, now: time.Now} }

// Track fetches booking id for viewer. Anyone other than the booking's
// buyer, including signed-out callers, gets ErrPermission and no data.
func (t *Tracker) Track(ctx context.Context, id uint64, viewer *session.Identity) (*View, error) {
	if !viewer.SignedIn() {
		return nil, ErrPermission
	}
	b, err := t.backend.GetBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load booking %d: %w", id, err)
	}
	if !viewer.Owns(b.Email) {
		return nil, ErrPermission
	}
	return BuildView(b), nil
}

// Cancel cancels b for viewer. b itself is never modified; on success the
// returned copy carries the cancelled status.
func (t *Tracker) Cancel(ctx context.Context, b *model.Booking, viewer *session.Identity) (*model.Booking, error) {
	if err := policy.Evaluate(viewer, policy.CancelBooking).Err(); err != nil {
		return nil, err
	}
	if !viewer.Owns(b.Email) {
		return nil, ErrPermission
	}
	if !CanCancel(b) {
		return nil, ErrNotCancellable
	}
	updated, err := t.backend.CancelBooking(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("cancel booking %d: %w", b.ID, err)
	}
	if updated == nil {
		cp := *b
		updated = &cp
	}
	updated.Status = model.OrderCancelled
	return updated, nil
}

// Filter is the buyer's order list query.
type Filter struct {
	Status model.OrderStatus
	Search string
	Range  string // "", "today", "week" or "month"
}

// Orders lists viewer's own bookings.
func (t *Tracker) Orders(ctx context.Context, viewer *session.Identity, f Filter) ([]model.Booking, error) {
	if err := policy.Evaluate(viewer, policy.ViewOrders).Err(); err != nil {
		return nil, err
	}
	return t.backend.ListBookings(ctx, model.BookingFilter{
		Email:  viewer.Email,
		Status: f.Status,
		Search: f.Search,
		Since:  SinceFor(f.Range, t.now()),
	})
}

// SinceFor turns a date range name into the lower bound of created_at.
// Unknown names mean no bound.
func SinceFor(rng string, now time.Time) time.Time {
	switch strings.ToLower(strings.TrimSpace(rng)) {
	case "today":
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case "week":
		return now.AddDate(0, 0, -7)
	case "month":
		return now.AddDate(0, -1, 0)
	}
	return time.Time{}
}
