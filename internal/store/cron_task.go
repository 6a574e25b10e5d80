package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/cronq/internal/domain"
)

// CronTaskStore defines the interface for cron task persistence.
// Version: 1.0
type CronTaskStore interface {
	// Create stores a new CREATED task and returns the record as persisted.
	// The payload is normalized to a plain JSON document before encoding.
	Create(ctx context.Context, taskID string, payload any, expectedBy time.Time) (*domain.CronTask, error)

	// GetByID looks up a task. A missing task is reported as an absent
	// Option with a nil error.
	GetByID(ctx context.Context, id uuid.UUID) (Option[domain.CronTask], error)

	// GetByRunDate returns every task with expected_by <= runDate, ordered by
	// expected_by. A nil status returns due tasks in any state.
	GetByRunDate(ctx context.Context, runDate time.Time, status *domain.TaskStatus) ([]domain.CronTask, error)

	// UpdateStatus sets status and refreshes updated_on. It does not check the
	// prior state; lifecycle rules are the caller's responsibility. Updating
	// an unknown id is a no-op.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error

	// Claim atomically moves a CREATED task to PROCESSING. Only one of any
	// number of concurrent callers receives a present result.
	Claim(ctx context.Context, id uuid.UUID) (Option[domain.CronTask], error)

	// ClaimDue claims up to limit due CREATED tasks in a single statement,
	// skipping rows another claimer holds.
	ClaimDue(ctx context.Context, runDate time.Time, limit int) ([]domain.CronTask, error)
}
