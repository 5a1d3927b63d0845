package catalog

import "time"

type LookupKind string

const (
	LookupSearch LookupKind = "search"
	LookupSKU    LookupKind = "sku"
	LookupQuote  LookupKind = "quote"
)

// LookupRequestedEvent asks the lookup worker to query the warehouse service.
// Seq is a per-slot monotonic sequence; the completion carrying an older Seq
// than the latest issued for the same slot must be discarded by the consumer.
type LookupRequestedEvent struct {
	SessionID  string
	Slot       string
	Seq        uint64
	Kind       LookupKind
	Query      string
	OccurredAt time.Time
}

func (LookupRequestedEvent) EventName() string { return "catalog.lookup_requested" }

func NewLookupRequestedEvent(sessionID, slot string, seq uint64, kind LookupKind, query string) LookupRequestedEvent {
	return LookupRequestedEvent{
		SessionID:  sessionID,
		Slot:       slot,
		Seq:        seq,
		Kind:       kind,
		Query:      query,
		OccurredAt: time.Now().UTC(),
	}
}

// LookupCompletedEvent carries the outcome of a lookup back to the session
// that requested it. Exactly one of Products/Quote is set on success,
// depending on Kind; Err is the flattened failure message otherwise.
type LookupCompletedEvent struct {
	SessionID  string
	Slot       string
	Seq        uint64
	Kind       LookupKind
	Query      string
	Products   []Product
	Quote      *Quote
	Err        string
	OccurredAt time.Time
}

func (LookupCompletedEvent) EventName() string { return "catalog.lookup_completed" }

func (e LookupCompletedEvent) Failed() bool { return e.Err != "" }
