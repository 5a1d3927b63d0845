package picker

import (
	"github.com/invoicedesk/invoiceform/internal/domain/order"
	"github.com/invoicedesk/invoiceform/internal/domain/pricing"
)

// ResultView is one row of the modal search result list.
type ResultView struct {
	Name         string `json:"name"`
	SKU          string `json:"sku"`
	CurrentStock int    `json:"current_stock"`
}

// LineView is one committed product line, amounts rendered to cents.
type LineView struct {
	Index       int    `json:"index"`
	ProductName string `json:"name"`
	SKU         string `json:"sku"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	VATRate     string `json:"vat_rate"`
	Exclusive   string `json:"exclusive"`
	VATAmount   string `json:"vat"`
	Inclusive   string `json:"inclusive"`
}

type BucketView struct {
	Rate   string `json:"rate"`
	Amount string `json:"amount"`
}

type TotalsView struct {
	Exclusive string       `json:"exclusive"`
	VAT       string       `json:"vat"`
	Inclusive string       `json:"inclusive"`
	Buckets   []BucketView `json:"buckets"`
}

// View is the full render state of a picker session.
type View struct {
	SessionID    string       `json:"session_id"`
	State        State        `json:"state"`
	Results      []ResultView `json:"results,omitempty"`
	SelectedName string       `json:"selected_name,omitempty"`
	SelectedSKU  string       `json:"selected_sku,omitempty"`
	Quantity     int64        `json:"quantity"`
	UnitPrice    string       `json:"unit_price,omitempty"`
	VATRate      string       `json:"vat_rate,omitempty"`
	Lines        []LineView   `json:"lines"`
	Totals       TotalsView   `json:"totals"`
}

func totalsViewOf(t order.Totals) TotalsView {
	buckets := make([]BucketView, 0, len(t.Buckets))
	for _, b := range t.Buckets {
		buckets = append(buckets, BucketView{
			Rate:   b.Rate.String(),
			Amount: pricing.RoundCents(b.Amount).StringFixed(2),
		})
	}
	return TotalsView{
		Exclusive: pricing.RoundCents(t.Exclusive).StringFixed(2),
		VAT:       pricing.RoundCents(t.VAT).StringFixed(2),
		Inclusive: pricing.RoundCents(t.Inclusive).StringFixed(2),
		Buckets:   buckets,
	}
}

func lineViewsOf(lines []order.Line) []LineView {
	out := make([]LineView, 0, len(lines))
	for _, l := range lines {
		t := l.Totals()
		out = append(out, LineView{
			Index:       l.Index,
			ProductName: l.ProductName,
			SKU:         l.SKU,
			Quantity:    l.Quantity,
			UnitPrice:   pricing.RoundCents(l.UnitPrice).StringFixed(2),
			VATRate:     l.VATRate.String(),
			Exclusive:   pricing.RoundCents(t.Exclusive).StringFixed(2),
			VATAmount:   pricing.RoundCents(t.VAT).StringFixed(2),
			Inclusive:   pricing.RoundCents(t.Inclusive).StringFixed(2),
		})
	}
	return out
}

// viewOf snapshots a session. Caller holds the session lock.
func viewOf(s *Session) View {
	v := View{
		SessionID: s.id,
		State:     s.state,
		Quantity:  s.quantity,
		Lines:     lineViewsOf(s.order.Lines()),
		Totals:    totalsViewOf(s.order.Totals()),
	}
	for _, p := range s.results {
		v.Results = append(v.Results, ResultView{
			Name:         p.Name,
			SKU:          p.SKU,
			CurrentStock: p.CurrentStock,
		})
	}
	if s.selected != nil {
		v.SelectedName = s.selected.Name
		v.SelectedSKU = s.selected.SKU
		v.UnitPrice = pricing.RoundCents(s.unitPrice).StringFixed(2)
		v.VATRate = s.vatRate.String()
	}
	return v
}
