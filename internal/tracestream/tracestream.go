// Package tracestream publishes run summaries to an observer while runs
// proceed. Publishing is best-effort and never blocks a run.
package tracestream

import (
	"context"
	"sync"
	"time"
)

// EventRunCompleted is emitted once per Run, successful or not.
const EventRunCompleted = "run_completed"

// RunSummary is the payload of EventRunCompleted.
type RunSummary struct {
	RunID     string   `json:"run_id"`
	Status    string   `json:"status"`
	Error     string   `json:"error,omitempty"`
	WallClock int64    `json:"wall_clock_us"`
	Nodes     int      `json:"nodes"`
	Fetches   []string `json:"fetches"`
	// ComputeCost is the summed compute cost of the external nodes, in
	// microseconds.
	ComputeCost int64     `json:"compute_cost_us"`
	Finished    time.Time `json:"finished"`
}

// Publisher sends events to an observer.
type Publisher interface {
	// Publish queues an event. It must not block on the network.
	Publish(ctx context.Context, event string, payload any)
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) {}

func (Noop) Close() error { return nil }

// Event is one published event, as kept by Memory.
type Event struct {
	Name    string
	Payload any
}

// Memory keeps every event in memory. It is meant for tests and for
// embedding callers that poll.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// Publish records the event.
func (m *Memory) Publish(_ context.Context, event string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Event{Name: event, Payload: payload})
}

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func (m *Memory) Close() error { return nil }
