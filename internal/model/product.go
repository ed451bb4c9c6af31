package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Payment method labels shown on product pages and stored on bookings.
const (
	MethodCashOnDelivery = "Cash on Delivery"
	MethodCard           = "Stripe"
)

// IsCashOnDelivery reports whether label names the cash on delivery option.
func IsCashOnDelivery(label string) bool {
	return strings.EqualFold(strings.TrimSpace(label), MethodCashOnDelivery)
}

// IsCard reports whether label names the card (Stripe) option.
func IsCard(label string) bool {
	l := strings.TrimSpace(label)
	return strings.EqualFold(l, MethodCard) || strings.EqualFold(l, "card")
}

// Specification is one key/value line of a product's technical sheet.
// Kept as a list so the manager's ordering survives storage.
type Specification struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Product is a catalog item that can be booked in bulk.
//
// StockVersion increases on every price or stock change and is echoed back
// in booking payloads so the backend can reject bookings computed against
// stale facts.
type Product struct {
	ID                uint64          `json:"id"`
	Name              string          `json:"name"`
	Category          string          `json:"category"`
	Description       string          `json:"description"`
	UnitPrice         decimal.Decimal `json:"unitPrice"`
	AvailableQuantity int             `json:"availableQuantity"`
	MinOrderQuantity  int             `json:"minimumOrderQuantity"`
	Rating            decimal.Decimal `json:"rating"`
	Images            []string        `json:"images"`
	Specifications    []Specification `json:"specifications"`
	PaymentOptions    []string        `json:"paymentOptions"`
	StockVersion      uint64          `json:"stockVersion"`
	CreatedBy         *uint64         `json:"-"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Accepts reports whether the product takes the given payment method.
// A product without explicit options accepts both cash on delivery and card.
func (p Product) Accepts(method string) bool {
	if len(p.PaymentOptions) == 0 {
		return IsCashOnDelivery(method) || IsCard(method)
	}
	for _, opt := range p.PaymentOptions {
		if strings.EqualFold(strings.TrimSpace(opt), strings.TrimSpace(method)) {
			return true
		}
		if IsCard(opt) && IsCard(method) {
			return true
		}
	}
	return false
}
