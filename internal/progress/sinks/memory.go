package sinks

import (
	"sync"

	"github.com/atoombs-lib/kb-linkcheck/internal/progress"
)

// MemorySink retains the most recent events in a bounded ring so the HTTP
// surface can serve them read-only.
type MemorySink struct {
	mu     sync.Mutex
	cap    int
	events []progress.Event
}

// NewMemorySink returns a sink keeping at most capacity events. Capacities
// below one fall back to a single slot.
func NewMemorySink(capacity int) *MemorySink {
	if capacity < 1 {
		capacity = 1
	}
	return &MemorySink{cap: capacity}
}

// Consume implements progress.Sink.
func (m *MemorySink) Consume(ev progress.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	if len(m.events) > m.cap {
		m.events = m.events[len(m.events)-m.cap:]
	}
}

// Recent returns up to limit of the newest events, oldest first. A limit
// below one means all retained events.
func (m *MemorySink) Recent(limit int) []progress.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]progress.Event, n)
	copy(out, m.events[len(m.events)-n:])
	return out
}
