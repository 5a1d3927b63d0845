package order

import "time"

// TotalsUpdatedEvent is published after any mutation that changes the
// aggregate totals, so renderers can rebuild footer totals and the VAT
// summary without polling.
type TotalsUpdatedEvent struct {
	SessionID  string
	Flow       string
	Totals     Totals
	LineCount  int
	OccurredAt time.Time
}

func (TotalsUpdatedEvent) EventName() string { return "order.totals_updated" }

func NewTotalsUpdatedEvent(sessionID, flow string, totals Totals, lineCount int) TotalsUpdatedEvent {
	return TotalsUpdatedEvent{
		SessionID:  sessionID,
		Flow:       flow,
		Totals:     totals,
		LineCount:  lineCount,
		OccurredAt: time.Now().UTC(),
	}
}
