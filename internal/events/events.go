package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/cronq/internal/domain"
)

// Event types
const (
	// TypeTaskCreated is emitted after a task has been stored.
	TypeTaskCreated = "task.created"

	// TypeTaskStatusChanged is emitted after a task's status was written.
	TypeTaskStatusChanged = "task.status_changed"
)

// TaskEvent is a notification about one cron task.
type TaskEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the Type* constants
	Type string `json:"type"`

	// CronTaskID is the id of the task the event is about
	CronTaskID uuid.UUID `json:"cron_task_id"`

	// TaskID names the handler of the task; empty on status changes
	TaskID string `json:"task_id,omitempty"`

	// Status is the status the task has after the change
	Status domain.TaskStatus `json:"status"`

	// ExpectedBy is the due time; zero on status changes
	ExpectedBy time.Time `json:"expected_by"`

	// Payload contains the task payload serialized as JSON, only on creation
	Payload json.RawMessage `json:"payload,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *TaskEvent) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Subject returns the messaging subject for the event under prefix,
// e.g. "cronq.task.created" for prefix "cronq.task".
func (e *TaskEvent) Subject(prefix string) string {
	name := strings.TrimPrefix(e.Type, "task.")
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// NewTaskCreatedEvent describes a freshly stored task.
func NewTaskCreatedEvent(task *domain.CronTask) (*TaskEvent, error) {
	payloadBytes, err := json.Marshal(task.Payload)
	if err != nil {
		return nil, err
	}

	return &TaskEvent{
		ID:         uuid.New(),
		Type:       TypeTaskCreated,
		CronTaskID: task.ID,
		TaskID:     task.TaskID,
		Status:     task.Status,
		ExpectedBy: task.ExpectedBy,
		Payload:    payloadBytes,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// NewTaskStatusChangedEvent describes a status write.
func NewTaskStatusChangedEvent(id uuid.UUID, status domain.TaskStatus) *TaskEvent {
	return &TaskEvent{
		ID:         uuid.New(),
		Type:       TypeTaskStatusChanged,
		CronTaskID: id,
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, event *TaskEvent) error

// HandleEvent calls f.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *TaskEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *TaskEvent) error
}
