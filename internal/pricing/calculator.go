// Package pricing clamps requested order quantities into the bookable range
// of a product and prices them with exact decimal arithmetic.
package pricing

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Calculator holds the pricing facts of one product. It is a value type;
// every method is pure.
type Calculator struct {
	unitPrice decimal.Decimal
	available int
	minOrder  int
}

// Quote is the result of pricing a quantity.
type Quote struct {
	Quantity  int
	UnitPrice decimal.Decimal
	Total     decimal.Decimal
	Min       int
	Max       int
	Bookable  bool
}

// New returns a calculator for the given unit price, available quantity and
// minimum order quantity. A minimum below one is treated as one.
func New(unitPrice decimal.Decimal, available, minOrder int) Calculator {
	if minOrder < 1 {
		minOrder = 1
	}
	if available < 0 {
		available = 0
	}
	return Calculator{unitPrice: unitPrice, available: available, minOrder: minOrder}
}

// Bookable reports whether any quantity can be ordered at all.
func (c Calculator) Bookable() bool {
	return c.available > 0 && c.minOrder <= c.available
}

// Default is the quantity a fresh booking form starts with.
func (c Calculator) Default() int { return c.Clamp(c.minOrder) }

// Clamp forces q into [minOrder, available]. The upper bound wins when the
// range is empty, which only happens for unbookable products.
func (c Calculator) Clamp(q int) int {
	if q < c.minOrder {
		q = c.minOrder
	}
	if q > c.available {
		q = c.available
	}
	return q
}

// Parse converts raw user input into a clamped quantity. Leading digits
// are read and the rest ignored, so "60abc" is 60; numbers too large for
// an int saturate. Input without leading digits, or zero, falls back to
// the minimum order quantity.
func (c Calculator) Parse(raw string) int {
	s := strings.TrimSpace(raw)
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return c.Clamp(c.minOrder)
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		n = math.MaxInt
	}
	if neg {
		n = -n
	}
	if n == 0 {
		n = c.minOrder
	}
	return c.Clamp(n)
}

func (c Calculator) Increment(q int) int { return c.Clamp(q + 1) }

func (c Calculator) Decrement(q int) int { return c.Clamp(q - 1) }

// InRange reports whether q is already a valid order quantity.
func (c Calculator) InRange(q int) bool {
	return c.Bookable() && q >= c.minOrder && q <= c.available
}

// Quote clamps q and prices the result.
func (c Calculator) Quote(q int) Quote {
	q = c.Clamp(q)
	return Quote{
		Quantity:  q,
		UnitPrice: c.unitPrice,
		Total:     Total(c.unitPrice, q),
		Min:       c.minOrder,
		Max:       c.available,
		Bookable:  c.Bookable(),
	}
}

// Total multiplies a unit price by a quantity without rounding.
func Total(unitPrice decimal.Decimal, q int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(q)))
}

// MinorUnits converts a currency amount into the smallest unit (cents).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
