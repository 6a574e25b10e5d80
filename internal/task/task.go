package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/cronq/internal/domain"
)

// Handler executes one task. Returning an error marks the task ERROR.
type Handler func(ctx context.Context, payload domain.Payload) error

// ErrDuplicateHandler is returned when a task_id is registered twice.
var ErrDuplicateHandler = errors.New("handler already registered")

// Registry maps task ids to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds handler to taskID.
func (r *Registry) Register(taskID string, handler Handler) error {
	if taskID == "" || handler == nil {
		return fmt.Errorf("%w: task id and handler are required", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[taskID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, taskID)
	}
	r.handlers[taskID] = handler
	return nil
}

// Lookup returns the handler for taskID.
func (r *Registry) Lookup(taskID string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[taskID]
	return h, ok
}

// TaskIDs returns the registered task ids in sorted order.
func (r *Registry) TaskIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TaskService is the part of the cron service the runner depends on.
type TaskService interface {
	ClaimNextAvailableTasks(ctx context.Context, limit int) ([]domain.CronTask, error)
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error
}

// TaskQueueReader provides read-only access to the task channel
// allowing workers to consume tasks without the ability to enqueue
type TaskQueueReader interface {
	// GetChannel returns a read-only channel for consuming tasks
	GetChannel() <-chan domain.CronTask
}

// TaskQueueWriter provides write access to the task queue
type TaskQueueWriter interface {
	// Enqueue adds a task to the queue for processing
	// Returns an error if the queue is full or closed
	Enqueue(task domain.CronTask) error

	// Free reports how many tasks can be enqueued without blocking
	Free() int

	// Close closes the task queue, preventing further task submission
	Close()
}
