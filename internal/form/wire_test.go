package form

import (
	"testing"

	"github.com/invoicedesk/invoiceform/internal/domain/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecords(t *testing.T) {
	raw := `[
		{"name":null,"product_sku":"","price":"0","vat_percentage":"0","quantity":"0"},
		{"name":"Widget","product_sku":"W-1","price":"10.00","vat_percentage":"21","quantity":"2"},
		{"name":"Gadget","product_sku":"G-1","price":7.5,"vat_percentage":9,"quantity":1}
	]`
	records, err := DecodeRecords(raw)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.False(t, records[0].Present(), "null name marks a placeholder row")

	require.True(t, records[1].Present())
	assert.Equal(t, "Widget", *records[1].Name)
	assert.Equal(t, "W-1", records[1].SKU)
	assert.True(t, records[1].Price.Equal(decimal.RequireFromString("10.00")))
	assert.EqualValues(t, 2, records[1].Quantity.IntPart())

	// JSON numbers decode the same as quoted strings
	assert.True(t, records[2].Price.Equal(decimal.RequireFromString("7.5")))
	assert.True(t, records[2].VATPercentage.Equal(decimal.RequireFromString("9")))
}

func TestDecodeRecordsEmpty(t *testing.T) {
	records, err := DecodeRecords("")
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestDecodeRecordsMalformed(t *testing.T) {
	_, err := DecodeRecords("{not json")
	assert.Error(t, err)
}

func TestFieldName(t *testing.T) {
	assert.Equal(t, "products-0-name", FieldName(0, FieldProductName))
	assert.Equal(t, "products-4-vat_percentage", FieldName(4, FieldVATPercentage))
}

func TestEncodeRenumbersLines(t *testing.T) {
	lines := []order.Line{
		{Index: 0, ProductName: "Widget", SKU: "W-1", Quantity: 2, UnitPrice: decimal.RequireFromString("10.005"), VATRate: decimal.RequireFromString("21")},
		{Index: 3, ProductName: "Gadget", SKU: "G-1", Quantity: 1, UnitPrice: decimal.RequireFromString("5"), VATRate: decimal.RequireFromString("9")},
	}
	fields := Encode(lines)
	require.Len(t, fields, 10)

	assert.Equal(t, Field{Name: "products-0-name", Value: "Widget"}, fields[0])
	assert.Equal(t, Field{Name: "products-0-product_sku", Value: "W-1"}, fields[1])
	assert.Equal(t, Field{Name: "products-0-price", Value: "10.01"}, fields[2])
	assert.Equal(t, Field{Name: "products-0-vat_percentage", Value: "21"}, fields[3])
	assert.Equal(t, Field{Name: "products-0-quantity", Value: "2"}, fields[4])

	// the gap at index 3 collapses to position 1 on encode
	assert.Equal(t, "products-1-name", fields[5].Name)
	assert.Equal(t, "5.00", fields[7].Value)
}
