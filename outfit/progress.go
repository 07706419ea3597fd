package outfit

import "time"

// ProgressEvent is emitted at each pipeline step.
type ProgressEvent struct {
	CorrelationID string    `json:"correlationId,omitempty"`
	Step          Step      `json:"step"`
	Index         int       `json:"index"` // 0-based item index, -1 when not item-specific
	Total         int       `json:"total"`
	Item          string    `json:"item,omitempty"`
	Message       string    `json:"message,omitempty"`
	Time          time.Time `json:"time"`
}

// ProgressReporter receives progress events. Implementations must not
// block; the pipeline calls Report inline.
type ProgressReporter interface {
	Report(event ProgressEvent)
}

// ProgressFunc adapts a function to ProgressReporter.
type ProgressFunc func(event ProgressEvent)

// Report implements ProgressReporter.
func (f ProgressFunc) Report(event ProgressEvent) {
	f(event)
}

// nopReporter discards events.
type nopReporter struct{}

func (nopReporter) Report(ProgressEvent) {}

// stampReporter sets the correlation ID on every event.
type stampReporter struct {
	id   string
	next ProgressReporter
}

func (r stampReporter) Report(event ProgressEvent) {
	event.CorrelationID = r.id
	r.next.Report(event)
}
