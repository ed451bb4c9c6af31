package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle position of a booking.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// Progression lists the forward stages in order. Cancelled is not part of it.
var Progression = []OrderStatus{OrderPending, OrderConfirmed, OrderProcessing, OrderShipped, OrderDelivered}

var validNext = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderConfirmed, OrderCancelled},
	OrderConfirmed:  {OrderProcessing},
	OrderProcessing: {OrderShipped},
	OrderShipped:    {OrderDelivered},
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range validNext[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	if s == OrderCancelled {
		return true
	}
	return s.Stage() >= 0
}

// Stage returns the index of s in Progression, or -1 for cancelled and
// unknown values.
func (s OrderStatus) Stage() int {
	for i, st := range Progression {
		if st == s {
			return i
		}
	}
	return -1
}

// PaymentStatus records whether money has been collected.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// TrackingEvent is one entry of a booking's shipment history.
type TrackingEvent struct {
	Stage    string    `json:"stage"`
	Location string    `json:"location"`
	Note     string    `json:"note"`
	Date     time.Time `json:"date"`
}

// BookingPayload is what a buyer submits: contact and delivery details plus
// the pricing facts the form computed.
type BookingPayload struct {
	ProductID       uint64          `json:"productId"`
	ProductName     string          `json:"productName"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	StockVersion    uint64          `json:"stockVersion,omitempty"`
	Email           string          `json:"email"`
	FirstName       string          `json:"firstName"`
	LastName        string          `json:"lastName"`
	ContactNumber   string          `json:"contactNumber"`
	DeliveryAddress string          `json:"deliveryAddress"`
	Notes           string          `json:"notes,omitempty"`
	PaymentMethod   string          `json:"paymentMethod"`
}

// FullName joins first and last name the way billing details expect.
func (p BookingPayload) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// NewBooking is the body of POST /bookings.
type NewBooking struct {
	BookingPayload
	PaymentStatus   PaymentStatus `json:"paymentStatus"`
	Status          OrderStatus   `json:"status,omitempty"`
	PaymentIntentID string        `json:"paymentIntentId,omitempty"`
}

// Booking is a persisted order.
type Booking struct {
	ID              uint64          `json:"id"`
	Email           string          `json:"email"`
	ProductID       uint64          `json:"productId"`
	ProductName     string          `json:"productName"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	FirstName       string          `json:"firstName"`
	LastName        string          `json:"lastName"`
	ContactNumber   string          `json:"contactNumber"`
	DeliveryAddress string          `json:"deliveryAddress"`
	Notes           string          `json:"notes,omitempty"`
	PaymentMethod   string          `json:"paymentMethod"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	Status          OrderStatus     `json:"status"`
	PaymentIntentID string          `json:"paymentIntentId,omitempty"`
	TrackingHistory []TrackingEvent `json:"trackingHistory"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// PaymentIntentRequest is the body of POST /create-payment-intent.
// Amount is in minor currency units.
type PaymentIntentRequest struct {
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency"`
	BookingData BookingPayload `json:"bookingData"`
}

// PaymentIntent is the backend's answer to a PaymentIntentRequest.
type PaymentIntent struct {
	ID           string `json:"paymentIntentId"`
	ClientSecret string `json:"clientSecret"`
}

// BookingFilter narrows an order list.
type BookingFilter struct {
	Email  string
	Status OrderStatus
	Search string    // matches booking id or product name
	Since  time.Time // zero means no lower bound
	Limit  int
	Offset int
}
