package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/phrazzld/cronq/internal/domain"
	"github.com/phrazzld/cronq/internal/platform/logger"
)

// ErrNoHandler is the failure recorded for a task whose task_id has no
// registered handler.
var ErrNoHandler = errors.New("no handler registered")

// Executor runs claimed tasks and records their outcome.
type Executor struct {
	registry *Registry
	service  TaskService
	logger   *slog.Logger

	// errorHandler is called when a task execution fails
	// If nil, errors are only logged
	errorHandler func(task domain.CronTask, err error)
}

// NewExecutor creates an executor over registry that reports outcomes
// through svc.
func NewExecutor(registry *Registry, svc TaskService, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		service:  svc,
		logger:   logger.With(slog.String("component", "task_executor")),
	}
}

// SetErrorHandler allows setting a custom error handler for task execution failures
func (e *Executor) SetErrorHandler(handler func(task domain.CronTask, err error)) {
	e.errorHandler = handler
}

// Execute runs the handler for task and writes DONE or ERROR. The status is
// written with a context detached from ctx so shutdown cannot leave a task
// that already ran stuck in PROCESSING. It returns the recorded status.
func (e *Executor) Execute(ctx context.Context, task domain.CronTask) domain.TaskStatus {
	log := e.logger.With(
		slog.String("id", task.ID.String()),
		slog.String("task_id", task.TaskID),
	)
	ctx = logger.WithLogger(ctx, log)

	start := time.Now()
	err := e.run(ctx, task)

	status := domain.TaskStatusDone
	if err != nil {
		status = domain.TaskStatusError
		log.Error("task execution failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		if e.errorHandler != nil {
			e.errorHandler(task, err)
		}
	} else {
		log.Info("task completed successfully", slog.Duration("duration", time.Since(start)))
	}

	if updateErr := e.service.UpdateTaskStatus(context.WithoutCancel(ctx), task.ID, status); updateErr != nil {
		log.Error("failed to record task outcome",
			slog.String("status", string(status)),
			slog.String("error", updateErr.Error()))
	}
	return status
}

func (e *Executor) run(ctx context.Context, task domain.CronTask) (err error) {
	handler, ok := e.registry.Lookup(task.TaskID)
	if !ok {
		return fmt.Errorf("%w for task id %q", ErrNoHandler, task.TaskID)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
			logger.FromContext(ctx).Error("recovered from handler panic",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	return handler(ctx, task.Payload)
}
