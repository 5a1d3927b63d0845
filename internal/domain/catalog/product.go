package catalog

import (
	"context"
	"errors"

	"github.com/invoicedesk/invoiceform/internal/domain/pricing"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("catalog: product not found")
	ErrUnavailable       = errors.New("catalog: service unavailable")
	ErrMalformedResponse = errors.New("catalog: malformed response")
)

// Product is a catalog record as returned by the warehouse service.
// Immutable once fetched.
type Product struct {
	Name          string
	SKU           string
	CurrentStock  int
	PossibleStock int
	Tiers         []pricing.Tier
}

// FirstTierPrice returns the entry price used when a product is first
// selected, before any quantity is chosen.
func (p Product) FirstTierPrice() (decimal.Decimal, bool) {
	if len(p.Tiers) == 0 {
		return decimal.Decimal{}, false
	}
	return p.Tiers[0].UnitPrice, true
}

// Quote is the per-identifier cost record used by the inline grid flow.
type Quote struct {
	Cost          decimal.Decimal
	AssemblyCosts decimal.Decimal
	VATRate       decimal.Decimal
	Stock         int
	PossibleStock int
}

// Finder looks products up in the remote warehouse service.
type Finder interface {
	Search(ctx context.Context, query string) ([]Product, error)
	BySKU(ctx context.Context, sku string) (Product, error)
	Quote(ctx context.Context, identifier string) (Quote, error)
}
