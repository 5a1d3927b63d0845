package order

import (
	"errors"

	"github.com/invoicedesk/invoiceform/internal/domain/pricing"
	"github.com/shopspring/decimal"
)

var (
	ErrLineNotFound    = errors.New("order: line not found")
	ErrInvalidQuantity = errors.New("order: quantity must be greater than zero")
)

// Line is one product entry on the draft order. Quantity and the product
// selection are user-driven; UnitPrice and VATRate are derived upstream and
// copied in at add time.
type Line struct {
	Index       int
	ProductName string
	SKU         string
	Quantity    int64
	UnitPrice   decimal.Decimal
	VATRate     decimal.Decimal
}

// Totals derives the per-line amounts. Never cached on the line.
func (l Line) Totals() pricing.Totals {
	return pricing.LineTotals(l.UnitPrice, l.Quantity, l.VATRate)
}

// Bucket is the accumulated VAT for one rate across all lines sharing it.
type Bucket struct {
	Rate   decimal.Decimal
	Amount decimal.Decimal
}

// Totals is the aggregate view over the whole draft order.
type Totals struct {
	Exclusive decimal.Decimal
	VAT       decimal.Decimal
	Inclusive decimal.Decimal
	Buckets   []Bucket
}

// Order is a draft invoice order under composition. Lines keep the index they
// were assigned at creation; deleting a line leaves a gap, as the original
// row numbering did. Aggregates are maintained incrementally on add and
// rebuilt from scratch on removal so they never drift.
type Order struct {
	lines     []Line
	nextIndex int

	totalExclusive decimal.Decimal
	totalInclusive decimal.Decimal
	buckets        map[string]decimal.Decimal
	bucketRates    []decimal.Decimal // first-seen order, for stable rendering
}

func New() *Order {
	return &Order{
		buckets: make(map[string]decimal.Decimal),
	}
}

// AddLine appends a line and folds it into the aggregates.
func (o *Order) AddLine(name, sku string, quantity int64, unitPrice, vatRate decimal.Decimal) (Line, error) {
	if quantity <= 0 {
		return Line{}, ErrInvalidQuantity
	}
	line := Line{
		Index:       o.nextIndex,
		ProductName: name,
		SKU:         sku,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		VATRate:     vatRate,
	}
	o.nextIndex++
	o.lines = append(o.lines, line)
	o.apply(line)
	return line, nil
}

// RemoveLine drops the line with the given index and rebuilds all aggregates
// from the remaining set. Removal never subtracts in place.
func (o *Order) RemoveLine(index int) error {
	kept := make([]Line, 0, len(o.lines))
	found := false
	for _, l := range o.lines {
		if l.Index == index {
			found = true
			continue
		}
		kept = append(kept, l)
	}
	if !found {
		return ErrLineNotFound
	}
	o.lines = kept
	o.Recompute()
	return nil
}

// ReplaceLines swaps the whole line set and recomputes. Used by the inline
// grid flow, which rebuilds its lines from the row set on every change event.
func (o *Order) ReplaceLines(lines []Line) {
	o.lines = make([]Line, len(lines))
	copy(o.lines, lines)
	if n := len(o.lines); n > 0 && o.lines[n-1].Index >= o.nextIndex {
		o.nextIndex = o.lines[n-1].Index + 1
	}
	o.Recompute()
}

// Recompute resets the aggregates and reapplies every line in order.
// Idempotent: running it twice over an unchanged set yields identical totals.
func (o *Order) Recompute() {
	o.totalExclusive = decimal.Decimal{}
	o.totalInclusive = decimal.Decimal{}
	o.buckets = make(map[string]decimal.Decimal)
	o.bucketRates = nil
	for _, l := range o.lines {
		o.apply(l)
	}
}

func (o *Order) apply(l Line) {
	t := l.Totals()
	o.totalExclusive = o.totalExclusive.Add(t.Exclusive)
	o.totalInclusive = o.totalInclusive.Add(t.Inclusive)

	key := bucketKey(l.VATRate)
	if _, ok := o.buckets[key]; !ok {
		o.bucketRates = append(o.bucketRates, l.VATRate)
	}
	o.buckets[key] = o.buckets[key].Add(t.VAT)
}

// Lines returns a copy of the current line set in insertion order.
func (o *Order) Lines() []Line {
	out := make([]Line, len(o.lines))
	copy(out, o.lines)
	return out
}

func (o *Order) Len() int { return len(o.lines) }

// Totals returns the aggregate totals and per-rate VAT buckets.
func (o *Order) Totals() Totals {
	buckets := make([]Bucket, 0, len(o.bucketRates))
	for _, rate := range o.bucketRates {
		buckets = append(buckets, Bucket{Rate: rate, Amount: o.buckets[bucketKey(rate)]})
	}
	return Totals{
		Exclusive: o.totalExclusive,
		VAT:       o.totalInclusive.Sub(o.totalExclusive),
		Inclusive: o.totalInclusive,
		Buckets:   buckets,
	}
}

// bucketKey canonicalizes a rate so 21, 21.0 and 21.00 share one bucket.
func bucketKey(rate decimal.Decimal) string {
	return rate.StringFixed(4)
}
