package gesture

import "time"

// HistoryCapacity is the number of committed events kept.
const HistoryCapacity = 10

// History is a bounded log of committed events, newest first.
type History struct {
	events   []Event
	capacity int
}

// NewHistory creates an empty History holding at most HistoryCapacity events.
func NewHistory() *History {
	return &History{
		events:   make([]Event, 0, HistoryCapacity),
		capacity: HistoryCapacity,
	}
}

// Add records an event as the newest entry, evicting the oldest on overflow.
func (h *History) Add(e Event) {
	if len(h.events) < h.capacity {
		h.events = append(h.events, Event{})
	}
	copy(h.events[1:], h.events[:len(h.events)-1])
	h.events[0] = e
}

// Len returns the number of recorded events.
func (h *History) Len() int {
	return len(h.events)
}

// Recent returns a copy of the log, newest first.
func (h *History) Recent() []Event {
	out := make([]Event, len(h.events))
	copy(out, h.events)
	return out
}

// Clear empties the log.
func (h *History) Clear() {
	h.events = h.events[:0]
}

// MatchSequence reports whether the most recent len(pattern) events spell
// pattern in chronological order (pattern[0] is the oldest, the last element
// the newest commit). Every matched event must belong to entity unless entity
// is empty, and consecutive matched events must be at most maxGap apart.
func (h *History) MatchSequence(pattern []Type, maxGap time.Duration, entity Entity) bool {
	n := len(pattern)
	if n == 0 || len(h.events) < n {
		return false
	}

	window := h.events[:n]
	for i, want := range pattern {
		e := window[n-1-i]
		if e.Type != want {
			return false
		}
		if entity != "" && e.Entity != entity {
			return false
		}
	}

	for i := 0; i+1 < n; i++ {
		gap := window[i].Timestamp.Sub(window[i+1].Timestamp)
		if gap < 0 {
			gap = -gap
		}
		if gap > maxGap {
			return false
		}
	}
	return true
}
