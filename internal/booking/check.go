package booking

import (
	"strings"

	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/pricing"
)

// Check validates a payload against the product it books. It is used both
// by the form before submitting and by the backend before persisting, so
// a hand-crafted request gets the same answers as the form.
func Check(p model.BookingPayload, product model.Product) error {
	verr := &ValidationError{}
	required := []struct{ field, value, msg string }{
		{"firstName", p.FirstName, "First name is required"},
		{"lastName", p.LastName, "Last name is required"},
		{"contactNumber", p.ContactNumber, "Contact number is required"},
		{"deliveryAddress", p.DeliveryAddress, "Delivery address is required"},
		{"email", p.Email, "Email is required"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			verr.add(r.field, r.msg)
		}
	}
	if p.ProductID != product.ID {
		verr.add("productId", "does not match product")
	}
	calc := pricing.New(product.UnitPrice, product.AvailableQuantity, product.MinOrderQuantity)
	if !calc.InRange(p.Quantity) {
		verr.add("quantity", "outside the bookable range")
	}
	if !p.UnitPrice.Equal(product.UnitPrice) {
		verr.add("unitPrice", "does not match the current price")
	} else if !p.TotalPrice.Equal(pricing.Total(product.UnitPrice, p.Quantity)) {
		verr.add("totalPrice", "does not equal quantity times unit price")
	}
	if strings.TrimSpace(p.PaymentMethod) == "" {
		verr.add("paymentMethod", "Payment method is required")
	} else if !product.Accepts(p.PaymentMethod) {
		verr.add("paymentMethod", "not accepted for this product")
	}
	return verr.orNil()
}
