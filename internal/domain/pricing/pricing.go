package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNoTiers = errors.New("pricing: tier set is empty")
)

// Tier is a quantity price break: the unit price that applies from
// MinQuantity upward, until the next tier takes over.
type Tier struct {
	MinQuantity int64
	UnitPrice   decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// ResolveUnitPrice selects the tier whose MinQuantity is the greatest value
// not exceeding quantity. Tiers must be sorted ascending by MinQuantity.
// Below the smallest tier the first tier applies; past the last tier the last
// tier applies. Quantity itself is not validated here; callers guard it.
func ResolveUnitPrice(tiers []Tier, quantity int64) (decimal.Decimal, error) {
	if len(tiers) == 0 {
		return decimal.Decimal{}, ErrNoTiers
	}

	for i, tier := range tiers {
		if quantity == tier.MinQuantity {
			return tier.UnitPrice, nil
		}
		if i+1 == len(tiers) {
			break
		}
		if quantity > tier.MinQuantity && quantity < tiers[i+1].MinQuantity {
			return tier.UnitPrice, nil
		}
	}

	if quantity < tiers[0].MinQuantity {
		return tiers[0].UnitPrice, nil
	}
	return tiers[len(tiers)-1].UnitPrice, nil
}

// VATAmount computes unitPrice × quantity / 100 × rate. Pure; exact under
// decimal arithmetic.
func VATAmount(unitPrice decimal.Decimal, quantity int64, rate decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(quantity)).Div(hundred).Mul(rate)
}

// Totals carries the derived amounts for one line. Always recomputed from the
// inputs, never stored.
type Totals struct {
	Exclusive decimal.Decimal
	VAT       decimal.Decimal
	Inclusive decimal.Decimal
}

// LineTotals derives the exclusive subtotal, VAT amount, and inclusive
// subtotal for a single line.
func LineTotals(unitPrice decimal.Decimal, quantity int64, rate decimal.Decimal) Totals {
	exclusive := unitPrice.Mul(decimal.NewFromInt(quantity))
	vat := VATAmount(unitPrice, quantity, rate)
	return Totals{
		Exclusive: exclusive,
		VAT:       vat,
		Inclusive: exclusive.Add(vat),
	}
}

// RoundCents rounds half-up to two decimals. Display/encode boundary only;
// accumulated values stay at full precision.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
