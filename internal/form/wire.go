// Package form handles the positional hidden-field encoding the server-side
// invoice form uses: one field per line attribute, named products-{index}-{field}.
package form

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/invoicedesk/invoiceform/internal/domain/order"
	"github.com/invoicedesk/invoiceform/internal/domain/pricing"
	"github.com/shopspring/decimal"
)

const (
	FieldProductName   = "name"
	FieldProductSKU    = "product_sku"
	FieldPrice         = "price"
	FieldVATPercentage = "vat_percentage"
	FieldQuantity      = "quantity"
)

// Record is one line of the preloaded form state, as serialized by the form
// handler into the page. Name is a pointer because placeholder rows come
// through as JSON null and must be skipped. Numeric values may arrive as JSON
// numbers or as the strings a form roundtrip produces; decimal accepts both.
type Record struct {
	Name          *string         `json:"name"`
	SKU           string          `json:"product_sku"`
	Price         decimal.Decimal `json:"price"`
	VATPercentage decimal.Decimal `json:"vat_percentage"`
	Quantity      decimal.Decimal `json:"quantity"`
}

// Present reports whether the record describes an actual product line.
func (r Record) Present() bool { return r.Name != nil }

// DecodeRecords parses the JSON array preloaded into the page. An empty
// payload means a fresh form.
func DecodeRecords(raw string) ([]Record, error) {
	if raw == "" {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("form: decode records: %w", err)
	}
	return records, nil
}

// Field is one hidden input, ready to submit.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FieldName builds the positional input name for a line attribute.
func FieldName(index int, field string) string {
	return fmt.Sprintf("products-%d-%s", index, field)
}

// Encode renders the current line set as the field list the form handler
// expects. Lines are renumbered 0..n-1 regardless of the indexes they carried
// while the form was open; prices render rounded to cents.
func Encode(lines []order.Line) []Field {
	fields := make([]Field, 0, len(lines)*5)
	for i, l := range lines {
		fields = append(fields,
			Field{Name: FieldName(i, FieldProductName), Value: l.ProductName},
			Field{Name: FieldName(i, FieldProductSKU), Value: l.SKU},
			Field{Name: FieldName(i, FieldPrice), Value: pricing.RoundCents(l.UnitPrice).StringFixed(2)},
			Field{Name: FieldName(i, FieldVATPercentage), Value: l.VATRate.String()},
			Field{Name: FieldName(i, FieldQuantity), Value: strconv.FormatInt(l.Quantity, 10)},
		)
	}
	return fields
}
