package events

import (
	"sync"
	"sync/atomic"
)

// DefaultHistorySize is used when a non-positive size is configured.
const DefaultHistorySize = 10

// History is a fixed-size ring of the most recent events. Once full, adding
// an event evicts the oldest one. It is safe for concurrent use.
type History struct {
	mu     sync.RWMutex
	events []Event
	start  int // index of the oldest event
	count  int

	total atomic.Uint64
}

// NewHistory returns a history holding at most size events.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{events: make([]Event, size)}
}

// Add appends e as the newest event.
func (h *History) Add(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	capacity := len(h.events)
	if h.count < capacity {
		h.events[(h.start+h.count)%capacity] = e
		h.count++
	} else {
		h.events[h.start] = e
		h.start = (h.start + 1) % capacity
	}
	h.total.Add(1)
}

// Snapshot returns a copy of the stored events, oldest first.
func (h *History) Snapshot() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Event, h.count)
	for i := range h.count {
		out[i] = h.events[(h.start+i)%len(h.events)]
	}
	return out
}

// Latest returns the newest event.
func (h *History) Latest() (Event, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 {
		return Event{}, false
	}
	return h.events[(h.start+h.count-1)%len(h.events)], true
}

// Len is the number of stored events.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Cap is the maximum number of stored events.
func (h *History) Cap() int {
	return len(h.events)
}

// Total is the number of events ever added, including evicted ones.
func (h *History) Total() uint64 {
	return h.total.Load()
}
