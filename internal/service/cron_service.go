package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/cronq/internal/domain"
	"github.com/phrazzld/cronq/internal/events"
	"github.com/phrazzld/cronq/internal/platform/logger"
	"github.com/phrazzld/cronq/internal/store"
)

// CronService provides the task queue operations.
type CronService interface {
	// AddTask schedules taskID to run with payload once expectedBy has passed.
	AddTask(ctx context.Context, taskID string, payload any, expectedBy time.Time) (*domain.CronTask, error)

	// GetTask looks up one task; an unknown id is an absent result.
	GetTask(ctx context.Context, id uuid.UUID) (store.Option[domain.CronTask], error)

	// GetNextAvailableTasks returns every CREATED task that is due now,
	// ordered by expected_by.
	GetNextAvailableTasks(ctx context.Context) ([]domain.CronTask, error)

	// UpdateTaskStatus records a new status for a task.
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error

	// ClaimTask moves a CREATED task to PROCESSING and reports whether this
	// caller won it.
	ClaimTask(ctx context.Context, id uuid.UUID) (bool, error)

	// ClaimNextAvailableTasks claims up to limit due tasks for this caller.
	ClaimNextAvailableTasks(ctx context.Context, limit int) ([]domain.CronTask, error)
}

// Option customizes the CronService.
type Option func(*cronServiceImpl)

// WithClock replaces the clock that decides which tasks are due.
func WithClock(now func() time.Time) Option {
	return func(s *cronServiceImpl) {
		if now != nil {
			s.now = now
		}
	}
}

// cronServiceImpl implements the CronService interface
type cronServiceImpl struct {
	store   store.CronTaskStore
	emitter events.EventEmitter
	now     func() time.Time
	logger  *slog.Logger
}

// NewCronService creates a new CronService.
// It returns an error if the store is nil. A nil emitter discards events and
// a nil logger falls back to the default logger.
func NewCronService(
	taskStore store.CronTaskStore,
	emitter events.EventEmitter,
	logger *slog.Logger,
	opts ...Option,
) (CronService, error) {
	if taskStore == nil {
		return nil, fmt.Errorf("%w: taskStore", ErrNilDependency)
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &cronServiceImpl{
		store:   taskStore,
		emitter: emitter,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "cron_service")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AddTask implements CronService.AddTask
func (s *cronServiceImpl) AddTask(
	ctx context.Context,
	taskID string,
	payload any,
	expectedBy time.Time,
) (*domain.CronTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task, err := s.store.Create(ctx, taskID, payload, expectedBy)
	if err != nil {
		log.Error("failed to add task",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()))
		return nil, err
	}

	log.Info("task scheduled",
		slog.String("id", task.ID.String()),
		slog.String("task_id", task.TaskID),
		slog.Time("expected_by", task.ExpectedBy))

	event, err := events.NewTaskCreatedEvent(task)
	if err != nil {
		log.Warn("failed to build task created event",
			slog.String("id", task.ID.String()),
			slog.String("error", err.Error()))
		return task, nil
	}
	s.emit(ctx, log, event)
	return task, nil
}

// GetTask implements CronService.GetTask
func (s *cronServiceImpl) GetTask(ctx context.Context, id uuid.UUID) (store.Option[domain.CronTask], error) {
	return s.store.GetByID(ctx, id)
}

// GetNextAvailableTasks implements CronService.GetNextAvailableTasks
func (s *cronServiceImpl) GetNextAvailableTasks(ctx context.Context) ([]domain.CronTask, error) {
	created := domain.TaskStatusCreated
	tasks, err := s.store.GetByRunDate(ctx, s.now(), &created)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list available tasks",
			slog.String("error", err.Error()))
		return nil, err
	}
	return tasks, nil
}

// UpdateTaskStatus implements CronService.UpdateTaskStatus
func (s *cronServiceImpl) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := s.store.UpdateStatus(ctx, id, status); err != nil {
		log.Error("failed to update task status",
			slog.String("id", id.String()),
			slog.String("status", string(status)),
			slog.String("error", err.Error()))
		return err
	}

	log.Debug("task status updated",
		slog.String("id", id.String()),
		slog.String("status", string(status)))
	s.emit(ctx, log, events.NewTaskStatusChangedEvent(id, status))
	return nil
}

// ClaimTask implements CronService.ClaimTask
func (s *cronServiceImpl) ClaimTask(ctx context.Context, id uuid.UUID) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	claimed, err := s.store.Claim(ctx, id)
	if err != nil {
		log.Error("failed to claim task",
			slog.String("id", id.String()),
			slog.String("error", err.Error()))
		return false, err
	}
	if !claimed.IsPresent() {
		log.Debug("task not claimable", slog.String("id", id.String()))
		return false, nil
	}

	s.emit(ctx, log, events.NewTaskStatusChangedEvent(id, domain.TaskStatusProcessing))
	return true, nil
}

// ClaimNextAvailableTasks implements CronService.ClaimNextAvailableTasks
func (s *cronServiceImpl) ClaimNextAvailableTasks(ctx context.Context, limit int) ([]domain.CronTask, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}
	log := logger.FromContextOrDefault(ctx, s.logger)

	tasks, err := s.store.ClaimDue(ctx, s.now(), limit)
	if err != nil {
		log.Error("failed to claim available tasks",
			slog.Int("limit", limit),
			slog.String("error", err.Error()))
		return nil, err
	}

	if len(tasks) > 0 {
		log.Info("claimed available tasks", slog.Int("count", len(tasks)), slog.Int("limit", limit))
	}
	for _, task := range tasks {
		s.emit(ctx, log, events.NewTaskStatusChangedEvent(task.ID, task.Status))
	}
	return tasks, nil
}

// emit publishes event; failures are logged and never change the outcome
// of the queue operation that produced the event.
func (s *cronServiceImpl) emit(ctx context.Context, log *slog.Logger, event *events.TaskEvent) {
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		log.Warn("failed to emit task event",
			slog.String("event_type", event.Type),
			slog.String("cron_task_id", event.CronTaskID.String()),
			slog.String("error", err.Error()))
	}
}
