// Package queue defines booking lifecycle messages and moves them over the
// configured broker (RabbitMQ or Kafka).
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/garment-booking/internal/model"
)

// EventType names a booking lifecycle change.
type EventType string

const (
	BookingCreated       EventType = "booking.created"
	BookingCancelled     EventType = "booking.cancelled"
	BookingStatusChanged EventType = "booking.status_changed"
	BookingTrackingAdded EventType = "booking.tracking_added"
	BookingReconcile     EventType = "booking.reconcile"
)

// Queue (or Kafka topic) names.
const (
	EventsQueue    = "booking.events"
	ReconcileQueue = "booking.reconcile"
)

// Route returns the queue an event of type t is delivered to. Reconcile
// requests get their own durable queue so the worker can retry them
// independently of the audit log.
func (t EventType) Route() string {
	if t == BookingReconcile {
		return ReconcileQueue
	}
	return EventsQueue
}

// BookingEvent is the envelope published for every lifecycle change.
// Booking is set for persisted bookings; Pending carries a paid booking
// that could not be stored and awaits reconciliation.
type BookingEvent struct {
	EventID    string            `json:"event_id"`
	Type       EventType         `json:"type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Booking    *model.Booking    `json:"booking,omitempty"`
	Pending    *model.NewBooking `json:"pending,omitempty"`
	Note       string            `json:"note,omitempty"`
}

// NewEvent stamps a fresh id and time on an event about b.
func NewEvent(t EventType, b *model.Booking) BookingEvent {
	return BookingEvent{EventID: uuid.NewString(), Type: t, OccurredAt: time.Now().UTC(), Booking: b}
}

// NewReconcileEvent wraps a captured-but-unrecorded booking.
func NewReconcileEvent(nb model.NewBooking, cause error) BookingEvent {
	ev := BookingEvent{EventID: uuid.NewString(), Type: BookingReconcile, OccurredAt: time.Now().UTC(), Pending: &nb}
	if cause != nil {
		ev.Note = cause.Error()
	}
	return ev
}

// Key is the partitioning key: the booking id when known, else the
// payment intent id.
func (e BookingEvent) Key() string {
	switch {
	case e.Booking != nil:
		return uintKey(e.Booking.ID)
	case e.Pending != nil:
		return e.Pending.PaymentIntentID
	}
	return e.EventID
}
