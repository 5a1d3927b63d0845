package grid

import (
	"sync"

	"github.com/invoicedesk/invoiceform/internal/domain/catalog"
	"github.com/invoicedesk/invoiceform/internal/domain/order"
	"github.com/invoicedesk/invoiceform/internal/domain/pricing"
)

type RowState string

const (
	RowEmpty     RowState = "empty"
	RowFetching  RowState = "fetching"
	RowPopulated RowState = "populated"
)

// row is one editable line of the inline grid. The identifier is whatever the
// user typed; derived fields come from the quote once the lookup resolves.
// seq invalidates in-flight lookups when the identifier changes again.
type row struct {
	identifier string
	state      RowState
	quote      *catalog.Quote
	quantity   int64
	seq        uint64
	appliedSeq uint64
}

func (r *row) blank() bool { return r.identifier == "" && r.state == RowEmpty }

// SummaryRow is one VAT summary entry. New is true the first time a rate
// appears in the session, so the renderer can insert the row once and update
// it afterwards.
type SummaryRow struct {
	Rate   string `json:"rate"`
	Amount string `json:"amount"`
	New    bool   `json:"new"`
}

// Session is one open invoice form using the inline grid flow. Rows are
// positional and never removed; clearing an identifier empties the row in
// place. The grid always ends with one untouched row ready for input.
type Session struct {
	mu sync.Mutex
	id string

	rows      []*row
	order     *order.Order
	seenRates map[string]struct{}
	summary   []SummaryRow
}

func newSession(id string) *Session {
	return &Session{
		id:        id,
		rows:      []*row{{state: RowEmpty}},
		order:     order.New(),
		seenRates: make(map[string]struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) hasBlankRow() bool {
	for _, r := range s.rows {
		if r.blank() {
			return true
		}
	}
	return false
}

// rebuildSummary recomputes the VAT summary from the current totals,
// consuming the one-time New flag for rates seen for the first time.
func (s *Session) rebuildSummary() {
	t := s.order.Totals()
	summary := make([]SummaryRow, 0, len(t.Buckets))
	for _, b := range t.Buckets {
		key := b.Rate.StringFixed(4)
		_, seen := s.seenRates[key]
		if !seen {
			s.seenRates[key] = struct{}{}
		}
		summary = append(summary, SummaryRow{
			Rate:   b.Rate.String(),
			Amount: pricing.RoundCents(b.Amount).StringFixed(2),
			New:    !seen,
		})
	}
	s.summary = summary
}
