package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/policy"
	"github.com/iliyamo/garment-booking/internal/session"
)

type fakeBackend struct {
	booking   *model.Booking
	cancelErr error
	cancelled []uint64
	filter    model.BookingFilter
}

func (f *fakeBackend) GetBooking(_ context.Context, id uint64) (*model.Booking, error) {
	if f.booking == nil || f.booking.ID != id {
		return nil, errors.New("not found")
	}
	cp := *f.booking
	return &cp, nil
}

func (f *fakeBackend) CancelBooking(_ context.Context, id uint64) (*model.Booking, error) {
	f.cancelled = append(f.cancelled, id)
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return &model.Booking{ID: id, Email: f.booking.Email, Status: model.OrderCancelled}, nil
}

func (f *fakeBackend) ListBookings(_ context.Context, fl model.BookingFilter) ([]model.Booking, error) {
	f.filter = fl
	return []model.Booking{}, nil
}

func buyer(email string) *session.Identity {
	return &session.Identity{UserID: 1, Email: email, Role: model.RoleBuyer, Status: model.StatusActive}
}

func TestTimelineShippedScenario(t *testing.T) {
	steps := Timeline(model.OrderShipped)
	require.Len(t, steps, 5)
	want := []StepState{Completed, Completed, Completed, Current, Upcoming}
	for i, s := range steps {
		assert.Equal(t, want[i], s.State, s.Label)
	}
	assert.Equal(t, "Order Placed", steps[0].Label)
	assert.Equal(t, "Delivered", steps[4].Label)
}

func TestTimelineExactlyOneCurrent(t *testing.T) {
	for _, st := range model.Progression {
		current := 0
		for _, s := range Timeline(st) {
			if s.State == Current {
				current++
			}
		}
		assert.Equal(t, 1, current, st)
	}
	for _, s := range Timeline(model.OrderCancelled) {
		assert.Equal(t, Upcoming, s.State)
	}
}

func TestTrackOwnershipFailsClosed(t *testing.T) {
	be := &fakeBackend{booking: &model.Booking{ID: 5, Email: "a@x.com", Status: model.OrderPending}}
	tr := New(be)

	v, err := tr.Track(context.Background(), 5, buyer("b@x.com"))
	assert.ErrorIs(t, err, ErrPermission)
	assert.Nil(t, v)
	assert.Equal(t, "You don't have permission to view this order", err.Error())

	_, err = tr.Track(context.Background(), 5, nil)
	assert.ErrorIs(t, err, ErrPermission)

	v, err = tr.Track(context.Background(), 5, buyer("A@x.com"))
	require.NoError(t, err)
	assert.True(t, v.CanCancel)
	assert.False(t, v.Cancelled)
	assert.NotNil(t, v.Events)
}

func TestTrackKeepsEventOrder(t *testing.T) {
	t1 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	events := []model.TrackingEvent{
		{Stage: "Shipped", Date: t1},
		{Stage: "Packed", Date: t1.Add(-time.Hour)},
	}
	be := &fakeBackend{booking: &model.Booking{ID: 5, Email: "a@x.com", Status: model.OrderShipped, TrackingHistory: events}}
	v, err := New(be).Track(context.Background(), 5, buyer("a@x.com"))
	require.NoError(t, err)
	assert.Equal(t, events, v.Events)
	assert.False(t, v.CanCancel)
}

func TestCancelPending(t *testing.T) {
	b := &model.Booking{ID: 5, Email: "a@x.com", Status: model.OrderPending}
	be := &fakeBackend{booking: b}
	out, err := New(be).Cancel(context.Background(), b, buyer("a@x.com"))
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, out.Status)
	assert.Equal(t, model.OrderPending, b.Status)
	assert.Equal(t, []uint64{5}, be.cancelled)
}

func TestCancelRejectedUnlessPending(t *testing.T) {
	b := &model.Booking{ID: 5, Email: "a@x.com", Status: model.OrderConfirmed}
	be := &fakeBackend{booking: b}
	_, err := New(be).Cancel(context.Background(), b, buyer("a@x.com"))
	assert.ErrorIs(t, err, ErrNotCancellable)
	assert.Empty(t, be.cancelled)
}

func TestCancelFailureLeavesStatus(t *testing.T) {
	b := &model.Booking{ID: 5, Email: "a@x.com", Status: model.OrderPending}
	be := &fakeBackend{booking: b, cancelErr: errors.New("offline")}
	out, err := New(be).Cancel(context.Background(), b, buyer("a@x.com"))
	assert.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, model.OrderPending, b.Status)
}

func TestCancelRequiresBuyerPolicy(t *testing.T) {
	b := &model.Booking{ID: 5, Email: "m@x.com", Status: model.OrderPending}
	mgr := &session.Identity{Email: "m@x.com", Role: model.RoleManager, Status: model.StatusActive}
	_, err := New(&fakeBackend{booking: b}).Cancel(context.Background(), b, mgr)
	var denied *policy.DeniedError
	assert.True(t, errors.As(err, &denied))
}

func TestOrdersScopesToViewer(t *testing.T) {
	be := &fakeBackend{}
	tr := New(be)
	now := time.Date(2026, 10, 15, 13, 30, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	_, err := tr.Orders(context.Background(), buyer("a@x.com"), Filter{Status: model.OrderPending, Search: "polo", Range: "today"})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", be.filter.Email)
	assert.Equal(t, model.OrderPending, be.filter.Status)
	assert.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), be.filter.Since)

	_, err = tr.Orders(context.Background(), nil, Filter{})
	assert.Error(t, err)
}

func TestSinceFor(t *testing.T) {
	now := time.Date(2026, 10, 15, 13, 30, 0, 0, time.UTC)
	assert.Equal(t, now.AddDate(0, 0, -7), SinceFor("week", now))
	assert.Equal(t, now.AddDate(0, -1, 0), SinceFor("Month", now))
	assert.True(t, SinceFor("all", now).IsZero())
}
