package picker

import "time"

// ResultsReadyEvent tells the renderer the result list for the latest search
// arrived and the modal should redraw it.
type ResultsReadyEvent struct {
	SessionID  string
	Count      int
	OccurredAt time.Time
}

func (ResultsReadyEvent) EventName() string { return "picker.results_ready" }
