// Package booking implements the booking form: it gathers the buyer's
// contact and delivery details, keeps the quantity inside the product's
// bookable range and emits one immutable payload on submit.
package booking

import (
	"errors"
	"sort"
	"strings"

	"github.com/iliyamo/garment-booking/internal/catalog"
	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/policy"
	"github.com/iliyamo/garment-booking/internal/pricing"
	"github.com/iliyamo/garment-booking/internal/session"
)

var (
	ErrClosed      = errors.New("booking: form already submitted")
	ErrNotBookable = errors.New("booking: product cannot be booked")
)

// Fields are the values typed by the buyer.
type Fields struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	ContactNumber   string `json:"contactNumber"`
	DeliveryAddress string `json:"deliveryAddress"`
	Notes           string `json:"notes"`
}

func (f Fields) trimmed() Fields {
	return Fields{
		FirstName:       strings.TrimSpace(f.FirstName),
		LastName:        strings.TrimSpace(f.LastName),
		ContactNumber:   strings.TrimSpace(f.ContactNumber),
		DeliveryAddress: strings.TrimSpace(f.DeliveryAddress),
		Notes:           strings.TrimSpace(f.Notes),
	}
}

// ValidationError maps payload field names to messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "invalid booking: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = msg
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Controller is the state of one booking form. It is not safe for
// concurrent use; each form owns its controller.
type Controller struct {
	facts    catalog.Facts
	calc     pricing.Calculator
	identity *session.Identity
	quantity int
	fields   Fields
	method   string
	closed   bool
}

// NewController opens a form for the product described by f on behalf of id.
// The quantity starts at the minimum order quantity.
func NewController(f catalog.Facts, id *session.Identity) *Controller {
	c := &Controller{facts: f, calc: f.Calculator(), identity: id}
	c.quantity = c.calc.Default()
	c.method = model.MethodCashOnDelivery
	if len(f.PaymentOptions) > 0 {
		c.method = f.PaymentOptions[0]
	}
	return c
}

func (c *Controller) Quantity() int { return c.quantity }

// SetQuantity stores q after clamping and returns the stored value.
func (c *Controller) SetQuantity(q int) int {
	c.quantity = c.calc.Clamp(q)
	return c.quantity
}

// EnterQuantity handles free text typed into the quantity box.
func (c *Controller) EnterQuantity(raw string) int {
	c.quantity = c.calc.Parse(raw)
	return c.quantity
}

func (c *Controller) Increment() int {
	c.quantity = c.calc.Increment(c.quantity)
	return c.quantity
}

func (c *Controller) Decrement() int {
	c.quantity = c.calc.Decrement(c.quantity)
	return c.quantity
}

// Quote prices the current quantity.
func (c *Controller) Quote() pricing.Quote { return c.calc.Quote(c.quantity) }

func (c *Controller) SetFields(f Fields) { c.fields = f }

func (c *Controller) SetPaymentMethod(label string) { c.method = strings.TrimSpace(label) }

func (c *Controller) PaymentMethod() string { return c.method }

// Decision is the policy verdict for placing this booking.
func (c *Controller) Decision() policy.Decision {
	return policy.Evaluate(c.identity, policy.PlaceBooking)
}

// CanSubmit reports whether the submit control should be enabled.
func (c *Controller) CanSubmit() bool {
	if c.closed || !c.calc.Bookable() || !c.Decision().Allowed() {
		return false
	}
	f := c.fields.trimmed()
	return f.FirstName != "" && f.LastName != "" && f.ContactNumber != "" && f.DeliveryAddress != ""
}

// Closed reports whether the form has been submitted.
func (c *Controller) Closed() bool { return c.closed }

// Reopen lets the buyer edit the form again after a failed payment.
func (c *Controller) Reopen() { c.closed = false }

// Submit validates the form and produces the payload. On success the form
// is closed; a second Submit returns ErrClosed until Reopen is called.
func (c *Controller) Submit() (model.BookingPayload, error) {
	if c.closed {
		return model.BookingPayload{}, ErrClosed
	}
	if err := c.Decision().Err(); err != nil {
		return model.BookingPayload{}, err
	}
	if !c.calc.Bookable() {
		return model.BookingPayload{}, ErrNotBookable
	}
	f := c.fields.trimmed()
	q := c.calc.Quote(c.quantity)
	p := model.BookingPayload{
		ProductID:       c.facts.ProductID,
		ProductName:     c.facts.Name,
		Quantity:        q.Quantity,
		UnitPrice:       q.UnitPrice,
		TotalPrice:      q.Total,
		StockVersion:    c.facts.StockVersion,
		Email:           c.identity.Email,
		FirstName:       f.FirstName,
		LastName:        f.LastName,
		ContactNumber:   f.ContactNumber,
		DeliveryAddress: f.DeliveryAddress,
		Notes:           f.Notes,
		PaymentMethod:   c.method,
	}
	if err := Check(p, c.facts.Product()); err != nil {
		return model.BookingPayload{}, err
	}
	c.closed = true
	return p, nil
}
