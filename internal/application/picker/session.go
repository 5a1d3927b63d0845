package picker

import (
	"sync"

	"github.com/invoicedesk/invoiceform/internal/domain/catalog"
	"github.com/invoicedesk/invoiceform/internal/domain/order"
	"github.com/invoicedesk/invoiceform/internal/form"
	"github.com/shopspring/decimal"
)

type State string

const (
	StateClosed          State = "closed"
	StateSearching       State = "searching"
	StateResultsShown    State = "results_shown"
	StateProductSelected State = "product_selected"
)

// Session is one open invoice form using the modal picker flow. The modal
// state (results, selection, draft quantity and price) is transient and is
// wiped on save or cancel; the draft order underneath it persists for the
// lifetime of the session.
//
// Lookup completions arrive on bus goroutines, so all access goes through the
// mutex. searchSeq/appliedSeq keep a slow response to an old query from
// clobbering the results of a newer one.
type Session struct {
	mu sync.Mutex
	id string

	state     State
	results   []catalog.Product
	selected  *catalog.Product
	quantity  int64
	unitPrice decimal.Decimal
	vatRate   decimal.Decimal

	searchSeq  uint64
	appliedSeq uint64

	// slot -> stored form inputs awaiting their SKU fetch
	preload map[string]form.Record

	order *order.Order
}

func newSession(id string) *Session {
	return &Session{
		id:      id,
		state:   StateClosed,
		preload: make(map[string]form.Record),
		order:   order.New(),
	}
}

func (s *Session) ID() string { return s.id }

// resetTransient clears everything the modal owns. The draft order is
// untouched.
func (s *Session) resetTransient() {
	s.state = StateClosed
	s.results = nil
	s.selected = nil
	s.quantity = 0
	s.unitPrice = decimal.Decimal{}
	s.vatRate = decimal.Decimal{}
}
