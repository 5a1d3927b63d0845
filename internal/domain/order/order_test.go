package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestAddLineTotals(t *testing.T) {
	o := New()
	line, err := o.AddLine("Widget", "W-1", 3, d("10.00"), d("21"))
	require.NoError(t, err)
	assert.Equal(t, 0, line.Index)

	totals := o.Totals()
	assert.True(t, totals.Exclusive.Equal(d("30.00")), "exclusive %s", totals.Exclusive)
	assert.True(t, totals.VAT.Equal(d("6.30")), "vat %s", totals.VAT)
	assert.True(t, totals.Inclusive.Equal(d("36.30")), "inclusive %s", totals.Inclusive)
}

func TestAddLineRejectsNonPositiveQuantity(t *testing.T) {
	o := New()
	_, err := o.AddLine("Widget", "W-1", 0, d("10.00"), d("21"))
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = o.AddLine("Widget", "W-1", -2, d("10.00"), d("21"))
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Equal(t, 0, o.Len())
}

func TestVATBucketsPerRate(t *testing.T) {
	o := New()
	_, err := o.AddLine("Widget", "W-1", 1, d("100.00"), d("21"))
	require.NoError(t, err)
	_, err = o.AddLine("Gadget", "G-1", 2, d("50.00"), d("9"))
	require.NoError(t, err)
	_, err = o.AddLine("Widget", "W-2", 1, d("200.00"), d("21.00"))
	require.NoError(t, err)

	totals := o.Totals()
	require.Len(t, totals.Buckets, 2, "21 and 21.00 share one bucket")

	// first-seen rate order
	assert.True(t, totals.Buckets[0].Rate.Equal(d("21")))
	assert.True(t, totals.Buckets[0].Amount.Equal(d("63.00")), "21%% bucket %s", totals.Buckets[0].Amount)
	assert.True(t, totals.Buckets[1].Rate.Equal(d("9")))
	assert.True(t, totals.Buckets[1].Amount.Equal(d("9.00")), "9%% bucket %s", totals.Buckets[1].Amount)

	assert.True(t, totals.VAT.Equal(d("72.00")))
}

func TestRemoveLineRebuildsTotals(t *testing.T) {
	o := New()
	_, err := o.AddLine("A", "A-1", 1, d("10.00"), d("21"))
	require.NoError(t, err)
	mid, err := o.AddLine("B", "B-1", 1, d("20.00"), d("21"))
	require.NoError(t, err)
	_, err = o.AddLine("C", "C-1", 1, d("30.00"), d("9"))
	require.NoError(t, err)

	require.NoError(t, o.RemoveLine(mid.Index))

	totals := o.Totals()
	assert.True(t, totals.Exclusive.Equal(d("40.00")), "exclusive %s", totals.Exclusive)
	assert.True(t, totals.VAT.Equal(d("4.80")), "vat %s", totals.VAT)

	// the 21% bucket reflects only the surviving line
	require.Len(t, totals.Buckets, 2)
	assert.True(t, totals.Buckets[0].Amount.Equal(d("2.10")))

	// indexes keep their gaps
	lines := o.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, 0, lines[0].Index)
	assert.Equal(t, 2, lines[1].Index)

	// the freed index is not reused
	next, err := o.AddLine("D", "D-1", 1, d("5.00"), d("21"))
	require.NoError(t, err)
	assert.Equal(t, 3, next.Index)
}

func TestRemoveLineNotFound(t *testing.T) {
	o := New()
	assert.ErrorIs(t, o.RemoveLine(7), ErrLineNotFound)
}

func TestRecomputeIdempotent(t *testing.T) {
	o := New()
	_, err := o.AddLine("A", "A-1", 4, d("2.50"), d("21"))
	require.NoError(t, err)
	_, err = o.AddLine("B", "B-1", 1, d("7.00"), d("9"))
	require.NoError(t, err)

	before := o.Totals()
	o.Recompute()
	o.Recompute()
	after := o.Totals()

	assert.True(t, before.Exclusive.Equal(after.Exclusive))
	assert.True(t, before.VAT.Equal(after.VAT))
	assert.True(t, before.Inclusive.Equal(after.Inclusive))
	require.Equal(t, len(before.Buckets), len(after.Buckets))
	for i := range before.Buckets {
		assert.True(t, before.Buckets[i].Amount.Equal(after.Buckets[i].Amount))
	}
}

func TestReplaceLines(t *testing.T) {
	o := New()
	_, err := o.AddLine("old", "O-1", 1, d("99.00"), d("21"))
	require.NoError(t, err)

	o.ReplaceLines([]Line{
		{Index: 0, SKU: "N-1", Quantity: 2, UnitPrice: d("10.00"), VATRate: d("21")},
		{Index: 3, SKU: "N-2", Quantity: 1, UnitPrice: d("5.00"), VATRate: d("9")},
	})

	totals := o.Totals()
	assert.True(t, totals.Exclusive.Equal(d("25.00")))
	assert.Equal(t, 2, o.Len())

	// nextIndex advances past the highest replaced index
	line, err := o.AddLine("new", "N-3", 1, d("1.00"), d("21"))
	require.NoError(t, err)
	assert.Equal(t, 4, line.Index)
}
