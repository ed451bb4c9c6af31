// Package catalog reads the pricing and inventory facts of a product.
package catalog

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/pricing"
)

// Reader fetches one product. Implemented by the booking service (in
// process) and by the HTTP API client.
type Reader interface {
	GetProduct(ctx context.Context, id uint64) (*model.Product, error)
}

// Facts is the subset of a product the booking flow depends on.
type Facts struct {
	ProductID      uint64
	Name           string
	UnitPrice      decimal.Decimal
	Available      int
	MinOrder       int
	StockVersion   uint64
	PaymentOptions []string
}

// FactsOf snapshots p.
func FactsOf(p *model.Product) Facts {
	opts := make([]string, len(p.PaymentOptions))
	copy(opts, p.PaymentOptions)
	return Facts{
		ProductID:      p.ID,
		Name:           p.Name,
		UnitPrice:      p.UnitPrice,
		Available:      p.AvailableQuantity,
		MinOrder:       p.MinOrderQuantity,
		StockVersion:   p.StockVersion,
		PaymentOptions: opts,
	}
}

// Calculator returns the pricing calculator for these facts.
func (f Facts) Calculator() pricing.Calculator {
	return pricing.New(f.UnitPrice, f.Available, f.MinOrder)
}

// Product rebuilds the product view the form controller works with.
func (f Facts) Product() model.Product {
	return model.Product{
		ID:                f.ProductID,
		Name:              f.Name,
		UnitPrice:         f.UnitPrice,
		AvailableQuantity: f.Available,
		MinOrderQuantity:  f.MinOrder,
		StockVersion:      f.StockVersion,
		PaymentOptions:    f.PaymentOptions,
	}
}

// Fetch reads product id through r and returns its facts.
func Fetch(ctx context.Context, r Reader, id uint64) (Facts, error) {
	p, err := r.GetProduct(ctx, id)
	if err != nil {
		return Facts{}, fmt.Errorf("catalog: product %d: %w", id, err)
	}
	return FactsOf(p), nil
}
