package grid

import (
	"fmt"

	"github.com/invoicedesk/invoiceform/internal/domain/pricing"
)

// RowView is the render state of one grid row. Money fields are empty until
// the row is populated.
type RowView struct {
	Position      int      `json:"position"`
	Identifier    string   `json:"identifier"`
	State         RowState `json:"state"`
	Quantity      int64    `json:"quantity"`
	UnitPrice     string   `json:"unit_price,omitempty"`
	AssemblyCosts string   `json:"assembly_costs,omitempty"`
	VATRate       string   `json:"vat_rate,omitempty"`
	VATAmount     string   `json:"vat,omitempty"`
	Subtotal      string   `json:"subtotal,omitempty"`
	StockDisplay  string   `json:"stock,omitempty"`
}

type TotalsView struct {
	Exclusive string `json:"exclusive"`
	VAT       string `json:"vat"`
	Inclusive string `json:"inclusive"`
}

// View is the full render state of a grid session.
type View struct {
	SessionID string       `json:"session_id"`
	Rows      []RowView    `json:"rows"`
	Totals    TotalsView   `json:"totals"`
	Summary   []SummaryRow `json:"vat_summary"`
}

// viewOf snapshots a session. Caller holds the session lock.
func viewOf(s *Session) View {
	rows := make([]RowView, 0, len(s.rows))
	for i, r := range s.rows {
		rv := RowView{
			Position:   i,
			Identifier: r.identifier,
			State:      r.state,
			Quantity:   r.quantity,
		}
		if r.state == RowPopulated && r.quote != nil {
			q := r.quote
			t := pricing.LineTotals(q.Cost, r.quantity, q.VATRate)
			rv.UnitPrice = pricing.RoundCents(q.Cost).StringFixed(2)
			rv.AssemblyCosts = pricing.RoundCents(q.AssemblyCosts).StringFixed(2)
			rv.VATRate = q.VATRate.String()
			rv.VATAmount = pricing.RoundCents(t.VAT).StringFixed(2)
			rv.Subtotal = pricing.RoundCents(t.Exclusive).StringFixed(2)
			rv.StockDisplay = fmt.Sprintf("%d (%d)", q.Stock, q.PossibleStock)
		}
		rows = append(rows, rv)
	}

	t := s.order.Totals()
	return View{
		SessionID: s.id,
		Rows:      rows,
		Totals: TotalsView{
			Exclusive: pricing.RoundCents(t.Exclusive).StringFixed(2),
			VAT:       pricing.RoundCents(t.VAT).StringFixed(2),
			Inclusive: pricing.RoundCents(t.Inclusive).StringFixed(2),
		},
		Summary: s.summary,
	}
}
