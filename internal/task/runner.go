package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/cronq/internal/config"
	"github.com/phrazzld/cronq/internal/domain"
	"github.com/phrazzld/cronq/internal/store"
	"github.com/robfig/cron/v3"
)

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// PollSpec is the cron schedule of the due-task poll, e.g. "@every 30s".
	// Empty disables scheduled polling; RunOnce and Trigger still work.
	PollSpec string

	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// BatchSize caps how many tasks a single poll claims
	BatchSize int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		PollSpec:    "@every 30s",
		WorkerCount: 2,
		BatchSize:   50,
		QueueSize:   100,
	}
}

// ConfigFromScheduler maps the application scheduler settings.
func ConfigFromScheduler(cfg config.SchedulerConfig) TaskRunnerConfig {
	return TaskRunnerConfig{
		PollSpec:    cfg.PollSpec,
		WorkerCount: cfg.WorkerCount,
		BatchSize:   cfg.BatchSize,
		QueueSize:   cfg.QueueSize,
	}
}

// TaskRunner manages background task processing
type TaskRunner struct {
	service  TaskService
	config   TaskRunnerConfig
	queue    *TaskQueue
	executor *Executor
	pool     *WorkerPool
	cron     *cron.Cron
	logger   *slog.Logger

	// pollMu serializes polls so claimed batches never exceed queue space
	pollMu sync.Mutex

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped bool
}

// NewTaskRunner creates a new TaskRunner. It fails when the poll schedule
// cannot be parsed.
func NewTaskRunner(svc TaskService, registry *Registry, cfg TaskRunnerConfig, logger *slog.Logger) (*TaskRunner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "task_runner"))

	defaults := DefaultTaskRunnerConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}

	c := cron.New(
		cron.WithLogger(cronLogger{logger: logger}),
		cron.WithChain(
			cron.Recover(cronLogger{logger: logger}),
			cron.SkipIfStillRunning(cronLogger{logger: logger}),
		),
	)

	r := &TaskRunner{
		service: svc,
		config:  cfg,
		cron:    c,
		logger:  logger,
		ctx:     context.Background(),
	}
	r.queue = NewTaskQueue(cfg.QueueSize, logger)
	r.executor = NewExecutor(registry, svc, logger)
	r.pool = NewWorkerPool(r.queue, r.executor, WorkerPoolConfig{WorkerCount: cfg.WorkerCount}, logger)

	if cfg.PollSpec != "" {
		if _, err := c.AddFunc(cfg.PollSpec, r.scheduledPoll); err != nil {
			return nil, fmt.Errorf("invalid poll schedule %q: %w", cfg.PollSpec, err)
		}
	}
	return r, nil
}

// SetErrorHandler allows setting a custom error handler function
func (r *TaskRunner) SetErrorHandler(handler func(task domain.CronTask, err error)) {
	r.executor.SetErrorHandler(handler)
}

// Start launches the workers and the poll schedule.
func (r *TaskRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("task runner already started")
	}
	r.started = true
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.pool.Start(r.ctx)
	r.cron.Start()
	r.logger.Info("task runner started",
		slog.String("poll_spec", r.config.PollSpec),
		slog.Int("batch_size", r.config.BatchSize),
		slog.Int("queue_size", r.config.QueueSize))
	return nil
}

// Stop gracefully shuts down the task runner: no new polls start, tasks
// already claimed are executed, then the workers exit.
func (r *TaskRunner) Stop() {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	<-r.cron.Stop().Done()

	r.pollMu.Lock()
	r.queue.Close()
	r.pollMu.Unlock()

	r.pool.Wait()
	r.cancel()
	r.logger.Info("task runner stopped")
}

// RunOnce performs one poll: it claims as many due tasks as fit in the
// queue, up to BatchSize, and enqueues them. It returns the number of tasks
// claimed.
func (r *TaskRunner) RunOnce(ctx context.Context) (int, error) {
	r.pollMu.Lock()
	defer r.pollMu.Unlock()
	return r.poll(ctx)
}

// Trigger starts a poll in the background unless one is already running.
func (r *TaskRunner) Trigger() {
	go func() {
		if !r.pollMu.TryLock() {
			return
		}
		defer r.pollMu.Unlock()
		_, _ = r.poll(r.runContext())
	}()
}

func (r *TaskRunner) scheduledPoll() {
	_, _ = r.RunOnce(r.runContext())
}

func (r *TaskRunner) runContext() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctx
}

// poll claims and enqueues one batch; callers hold pollMu.
func (r *TaskRunner) poll(ctx context.Context) (int, error) {
	limit := min(r.config.BatchSize, r.queue.Free())
	if limit <= 0 {
		r.logger.Debug("task queue full or closed, skipping poll")
		return 0, nil
	}

	tasks, err := r.service.ClaimNextAvailableTasks(ctx, limit)
	if err != nil {
		if store.IsPoolError(err) {
			r.logger.Warn("database unavailable, skipping poll", slog.String("error", err.Error()))
		} else {
			r.logger.Error("failed to claim due tasks", slog.String("error", err.Error()))
		}
		return 0, err
	}

	for _, t := range tasks {
		if err := r.queue.Enqueue(t); err != nil {
			r.logger.Error("failed to enqueue claimed task",
				slog.String("id", t.ID.String()),
				slog.String("task_id", t.TaskID),
				slog.String("error", err.Error()))
			if updateErr := r.service.UpdateTaskStatus(context.WithoutCancel(ctx), t.ID, domain.TaskStatusError); updateErr != nil {
				r.logger.Error("failed to mark unqueued task as failed",
					slog.String("id", t.ID.String()),
					slog.String("error", updateErr.Error()))
			}
		}
	}

	if len(tasks) > 0 {
		r.logger.Info("poll claimed tasks", slog.Int("count", len(tasks)))
	}
	return len(tasks), nil
}

// cronLogger adapts cron.Logger to slog. Scheduler chatter goes to debug.
type cronLogger struct {
	logger *slog.Logger
}

// Info implements cron.Logger.
func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

// Error implements cron.Logger.
func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
