package postgres

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/cronq/internal/domain"
	"github.com/phrazzld/cronq/internal/platform/logger"
	"github.com/phrazzld/cronq/internal/store"
)

const cronTaskEntity = "cron_task"

// PostgresCronTaskStore implements the store.CronTaskStore interface
// on top of a Manager's session scopes.
type PostgresCronTaskStore struct {
	manager *Manager
	kind    PoolKind
	stmts   cronTaskStatements
	now     func() time.Time
	logger  *slog.Logger
}

// StoreOption customizes a PostgresCronTaskStore.
type StoreOption func(*PostgresCronTaskStore)

// WithPoolKind selects the pool the store checks connections out of.
// The default is PoolAsync.
func WithPoolKind(kind PoolKind) StoreOption {
	return func(s *PostgresCronTaskStore) {
		s.kind = kind
	}
}

// WithNow replaces the clock used for created_on and updated_on.
func WithNow(now func() time.Time) StoreOption {
	return func(s *PostgresCronTaskStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewPostgresCronTaskStore creates a new PostgreSQL implementation of the CronTaskStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresCronTaskStore(m *Manager, logger *slog.Logger, opts ...StoreOption) *PostgresCronTaskStore {
	if m == nil {
		// ALLOW-PANIC: Constructor contract violation
		panic("manager cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &PostgresCronTaskStore{
		manager: m,
		kind:    PoolAsync,
		stmts:   newCronTaskStatements(m.Schema()),
		now:     time.Now,
		logger:  logger.With(slog.String("component", "cron_task_store")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ensure PostgresCronTaskStore implements store.CronTaskStore interface
var _ store.CronTaskStore = (*PostgresCronTaskStore)(nil)

// Create implements store.CronTaskStore.Create.
// The insert is committed before the stored row is read back, so the
// returned task reflects exactly what the database holds.
func (s *PostgresCronTaskStore) Create(
	ctx context.Context,
	taskID string,
	payload any,
	expectedBy time.Time,
) (*domain.CronTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task, err := domain.NewCronTask(taskID, payload, expectedBy, s.now())
	if err != nil {
		log.Warn("rejected invalid cron task",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	var stored store.Option[domain.CronTask]
	err = s.manager.WithSession(ctx, s.kind, func(ctx context.Context, sess *Session) error {
		var id uuid.UUID
		if err := sess.QueryRow(ctx, s.stmts.insert, cronTaskValues(task)...).Scan(&id); err != nil {
			return s.fail("create", "failed to insert task", err)
		}
		if err := sess.Commit(ctx); err != nil {
			return err
		}

		found, err := QueryOne[domain.CronTask](ctx, sess, s.stmts.selectByID, id)
		if err != nil {
			return s.fail("create", "failed to read back task", err)
		}
		stored = found
		return nil
	})
	if err != nil {
		log.Error("failed to create cron task",
			slog.String("id", task.ID.String()),
			slog.String("task_id", taskID),
			slog.String("error", err.Error()))
		return nil, err
	}

	created, ok := stored.Get()
	if !ok {
		// The row was committed a moment ago in this very session.
		return nil, s.fail("create", "inserted task not visible", store.ErrCronTaskNotFound)
	}
	created = toUTC(created)

	log.Debug("cron task created",
		slog.String("id", created.ID.String()),
		slog.String("task_id", created.TaskID),
		slog.Time("expected_by", created.ExpectedBy))
	return &created, nil
}

// GetByID implements store.CronTaskStore.GetByID.
func (s *PostgresCronTaskStore) GetByID(ctx context.Context, id uuid.UUID) (store.Option[domain.CronTask], error) {
	var found store.Option[domain.CronTask]
	err := s.manager.WithSession(ctx, s.kind, func(ctx context.Context, sess *Session) error {
		var err error
		found, err = QueryOne[domain.CronTask](ctx, sess, s.stmts.selectByID, id)
		if err != nil {
			return s.fail("get_by_id", "failed to query task", err)
		}
		return nil
	})
	if err != nil {
		return store.None[domain.CronTask](), err
	}

	if task, ok := found.Get(); ok {
		return store.Some(toUTC(task)), nil
	}
	return found, nil
}

// GetByRunDate implements store.CronTaskStore.GetByRunDate.
func (s *PostgresCronTaskStore) GetByRunDate(
	ctx context.Context,
	runDate time.Time,
	status *domain.TaskStatus,
) ([]domain.CronTask, error) {
	sql, args := s.stmts.selectDue, []any{runDate.UTC()}
	if status != nil {
		sql, args = s.stmts.selectDueByStatus, append(args, *status)
	}

	var tasks []domain.CronTask
	err := s.manager.WithSession(ctx, s.kind, func(ctx context.Context, sess *Session) error {
		var err error
		tasks, err = QueryAll[domain.CronTask](ctx, sess, sql, args...)
		if err != nil {
			return s.fail("get_by_run_date", "failed to query due tasks", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range tasks {
		tasks[i] = toUTC(tasks[i])
	}
	return tasks, nil
}

// UpdateStatus implements store.CronTaskStore.UpdateStatus.
func (s *PostgresCronTaskStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !status.Valid() {
		return fmt.Errorf("%w: %w: %q", store.ErrInvalidEntity, domain.ErrInvalidTaskStatus, status)
	}

	now := s.now().UTC()
	return s.manager.WithSession(ctx, s.kind, func(ctx context.Context, sess *Session) error {
		tag, err := sess.Exec(ctx, s.stmts.updateStatus, status, now, id)
		if err != nil {
			return s.fail("update_status", "failed to update task status", err)
		}
		if err := sess.Commit(ctx); err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			log.Warn("no cron task found with ID to update status",
				slog.String("id", id.String()),
				slog.String("status", string(status)))
		}
		return nil
	})
}

// Claim implements store.CronTaskStore.Claim.
func (s *PostgresCronTaskStore) Claim(ctx context.Context, id uuid.UUID) (store.Option[domain.CronTask], error) {
	now := s.now().UTC()

	var claimed store.Option[domain.CronTask]
	err := s.manager.WithSession(ctx, s.kind, func(ctx context.Context, sess *Session) error {
		var err error
		claimed, err = QueryOne[domain.CronTask](ctx, sess, s.stmts.claim,
			domain.TaskStatusProcessing, now, id, domain.TaskStatusCreated)
		if err != nil {
			return s.fail("claim", "failed to claim task", err)
		}
		return sess.Commit(ctx)
	})
	if err != nil {
		return store.None[domain.CronTask](), err
	}

	if task, ok := claimed.Get(); ok {
		return store.Some(toUTC(task)), nil
	}
	return claimed, nil
}

// ClaimDue implements store.CronTaskStore.ClaimDue.
// Claimed tasks are returned in due order.
func (s *PostgresCronTaskStore) ClaimDue(ctx context.Context, runDate time.Time, limit int) ([]domain.CronTask, error) {
	if limit <= 0 {
		return []domain.CronTask{}, nil
	}
	now := s.now().UTC()

	var tasks []domain.CronTask
	err := s.manager.WithSession(ctx, s.kind, func(ctx context.Context, sess *Session) error {
		var err error
		tasks, err = QueryAll[domain.CronTask](ctx, sess, s.stmts.claimDue,
			domain.TaskStatusProcessing, now, runDate.UTC(), domain.TaskStatusCreated, limit)
		if err != nil {
			return s.fail("claim_due", "failed to claim due tasks", err)
		}
		return sess.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	for i := range tasks {
		tasks[i] = toUTC(tasks[i])
	}
	slices.SortStableFunc(tasks, func(a, b domain.CronTask) int {
		if c := a.ExpectedBy.Compare(b.ExpectedBy); c != 0 {
			return c
		}
		return cmp.Compare(a.CreatedOn.UnixMicro(), b.CreatedOn.UnixMicro())
	})
	return tasks, nil
}

func (s *PostgresCronTaskStore) fail(operation, message string, err error) error {
	return store.NewStoreError(cronTaskEntity, operation, message, MapError(err))
}

// toUTC normalizes the location of scanned timestamps; pgx decodes
// timestamptz into the local zone.
func toUTC(t domain.CronTask) domain.CronTask {
	t.CreatedOn = t.CreatedOn.UTC()
	t.UpdatedOn = t.UpdatedOn.UTC()
	t.ExpectedBy = t.ExpectedBy.UTC()
	if t.Payload == nil {
		t.Payload = domain.Payload{}
	}
	return t
}
