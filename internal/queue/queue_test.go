package queue

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/garment-booking/internal/config"
	"github.com/iliyamo/garment-booking/internal/model"
)

func sampleBooking() *model.Booking {
	return &model.Booking{
		ID: 12, Email: "buyer@example.com", ProductName: "Cotton Polo", Quantity: 50,
		TotalPrice: decimal.RequireFromString("649.5"), Status: model.OrderConfirmed,
		PaymentMethod: model.MethodCard, PaymentStatus: model.PaymentPaid,
	}
}

func TestRouting(t *testing.T) {
	assert.Equal(t, EventsQueue, BookingCreated.Route())
	assert.Equal(t, EventsQueue, BookingCancelled.Route())
	assert.Equal(t, ReconcileQueue, BookingReconcile.Route())
}

func TestEventKeys(t *testing.T) {
	ev := NewEvent(BookingCreated, sampleBooking())
	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, "12", ev.Key())

	rec := NewReconcileEvent(model.NewBooking{PaymentIntentID: "pi_9"}, errors.New("db down"))
	assert.Equal(t, "pi_9", rec.Key())
	assert.Equal(t, "db down", rec.Note)
	assert.NotEqual(t, ev.EventID, rec.EventID)
}

func TestBookingLogAppends(t *testing.T) {
	dir := t.TempDir()
	l := NewBookingLog(dir)
	ev := NewEvent(BookingCreated, sampleBooking())
	ev.OccurredAt = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	body, err := json.Marshal(ev)
	require.NoError(t, err)

	require.NoError(t, l.Handle(context.Background(), body))
	require.NoError(t, l.Handle(context.Background(), body))

	data, err := os.ReadFile(filepath.Join(dir, "booking.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `[2026-05-01T10:00:00Z] booking.created | booking_id=12 | email=buyer@example.com | product="Cotton Polo" | qty=50 | total=649.50 | status=confirmed | payment=Stripe/paid`, lines[0])
}

func TestBookingLogRejectsGarbage(t *testing.T) {
	assert.Error(t, NewBookingLog(t.TempDir()).Handle(context.Background(), []byte("{")))
}

func TestFormatPending(t *testing.T) {
	ev := NewReconcileEvent(model.NewBooking{
		BookingPayload:  model.BookingPayload{Email: "b@example.com", ProductName: "Tee", Quantity: 3, TotalPrice: decimal.NewFromInt(30)},
		PaymentIntentID: "pi_1",
	}, errors.New("timeout"))
	line := FormatLine(ev)
	assert.Contains(t, line, "intent=pi_1")
	assert.Contains(t, line, `note="timeout"`)
}

func TestNewPublisherSelection(t *testing.T) {
	_, ok := NewPublisher(config.EventsConfig{Broker: "none"}).(NopPublisher)
	assert.True(t, ok)
	_, ok = NewPublisher(config.EventsConfig{Broker: "kafka", KafkaBrokers: []string{"localhost:9092"}}).(*KafkaPublisher)
	assert.True(t, ok)
	_, ok = NewPublisher(config.EventsConfig{Broker: "rabbitmq", AMQPURL: "amqp://x"}).(*AMQPPublisher)
	assert.True(t, ok)
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, time.Hour))
	assert.True(t, sleep(context.Background(), time.Millisecond))
}
