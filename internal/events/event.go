// Package events keeps the recent classification results in memory for the
// HTTP API and downstream consumers.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/ambient-go/internal/inference"
)

// Event is one classified buffer.
type Event struct {
	ID          uuid.UUID              `json:"id"`
	Timestamp   time.Time              `json:"timestamp"`
	Predictions []inference.Prediction `json:"predictions"`
	Text        string                 `json:"text"`
}

// NewEvent stamps predictions with a fresh ID. A nil prediction list is
// stored as empty so it serializes as [].
func NewEvent(ts time.Time, predictions []inference.Prediction, text string) Event {
	if predictions == nil {
		predictions = []inference.Prediction{}
	}
	return Event{
		ID:          uuid.New(),
		Timestamp:   ts,
		Predictions: predictions,
		Text:        text,
	}
}

// Labels returns the prediction labels in rank order.
func (e *Event) Labels() []string {
	labels := make([]string, len(e.Predictions))
	for i := range e.Predictions {
		labels[i] = e.Predictions[i].Label
	}
	return labels
}
