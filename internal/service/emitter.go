package service

import (
	"context"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples services from their host
// ─────────────────────────────────────────────────────────────

// EventEmitter delivers board notifications to whatever hosts the service:
// an HTTP server, an MCP session or a log. Services receive this interface
// so they can be tested with a mock emitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// LogEmitter drops events. Hosts without a listener use it.
type LogEmitter struct{}

func (LogEmitter) Emit(context.Context, string, any) {}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// All returns a copy of the recorded events. Use it when events arrive from
// timers or transport goroutines.
func (m *MockEmitter) All() []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmittedEvent(nil), m.Events...)
}

// Count returns how many times event was emitted.
func (m *MockEmitter) Count(event string) int {
	n := 0
	for _, e := range m.All() {
		if e.Event == event {
			n++
		}
	}
	return n
}
