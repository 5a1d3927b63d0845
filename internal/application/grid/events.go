package grid

import "time"

// RowUpdatedEvent tells the renderer a row's derived fields changed and the
// row (plus totals and VAT summary) should redraw.
type RowUpdatedEvent struct {
	SessionID  string
	Position   int
	OccurredAt time.Time
}

func (RowUpdatedEvent) EventName() string { return "grid.row_updated" }
