package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/cronq/internal/events"
)

// RecordingEmitter is an events.EventEmitter that keeps every emitted event.
type RecordingEmitter struct {
	mu     sync.Mutex
	events []*events.TaskEvent

	// Err is returned from every EmitEvent call when set.
	Err error
}

var _ events.EventEmitter = (*RecordingEmitter)(nil)

// EmitEvent records the event and returns Err.
func (e *RecordingEmitter) EmitEvent(_ context.Context, event *events.TaskEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return e.Err
}

// Events returns a copy of the recorded events in emission order.
func (e *RecordingEmitter) Events() []*events.TaskEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*events.TaskEvent, len(e.events))
	copy(out, e.events)
	return out
}

// Types returns the types of the recorded events in emission order.
func (e *RecordingEmitter) Types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.events))
	for i, event := range e.events {
		out[i] = event.Type
	}
	return out
}
