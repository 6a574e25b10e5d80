package domain

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a cron task
type TaskStatus string

// Possible task status values
const (
	TaskStatusCreated    TaskStatus = "CREATED"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusError      TaskStatus = "ERROR"
	TaskStatusDone       TaskStatus = "DONE"
)

// timestampPrecision matches the microsecond resolution of Postgres timestamptz.
const timestampPrecision = time.Microsecond

// ParseTaskStatus converts a string to a TaskStatus.
func ParseTaskStatus(s string) (TaskStatus, error) {
	status := TaskStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTaskStatus, s)
	}
	return status, nil
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusCreated, TaskStatusProcessing, TaskStatusError, TaskStatusDone:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no transition out of s is defined.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusError
}

// CanTransitionTo reports whether moving from s to next follows the task
// lifecycle: CREATED -> PROCESSING -> DONE | ERROR.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusCreated:
		return next == TaskStatusProcessing
	case TaskStatusProcessing:
		return next == TaskStatusDone || next == TaskStatusError
	default:
		return false
	}
}

// CronTask is a deferred unit of work persisted in the cron_task table.
// TaskID names the handler that processes Payload once ExpectedBy has passed.
type CronTask struct {
	ID         uuid.UUID  `json:"id"          db:"id"`
	CreatedOn  time.Time  `json:"created_on"  db:"created_on"`
	UpdatedOn  time.Time  `json:"updated_on"  db:"updated_on"`
	ExpectedBy time.Time  `json:"expected_by" db:"expected_by"`
	TaskID     string     `json:"task_id"     db:"task_id"     validate:"required,max=255"`
	Payload    Payload    `json:"payload"     db:"payload"`
	Status     TaskStatus `json:"status"      db:"status"      validate:"required,oneof=CREATED PROCESSING ERROR DONE"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// NewCronTask builds a CREATED task with a fresh identifier. The payload is
// normalized to a plain JSON document and timestamps are truncated to the
// precision the database stores.
func NewCronTask(taskID string, payload any, expectedBy time.Time, now time.Time) (*CronTask, error) {
	normalized, err := NormalizePayload(payload)
	if err != nil {
		return nil, err
	}

	now = now.UTC().Truncate(timestampPrecision)
	task := &CronTask{
		ID:         uuid.New(),
		CreatedOn:  now,
		UpdatedOn:  now,
		ExpectedBy: expectedBy.UTC().Truncate(timestampPrecision),
		TaskID:     taskID,
		Payload:    normalized,
		Status:     TaskStatusCreated,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

// Validate checks if the CronTask has valid data.
func (t *CronTask) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("%w: task id cannot be empty", ErrValidation)
	}
	if err := getValidator().Struct(t); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if t.ExpectedBy.IsZero() {
		return fmt.Errorf("%w: expected_by cannot be zero", ErrValidation)
	}
	if t.UpdatedOn.Before(t.CreatedOn) {
		return fmt.Errorf("%w: updated_on precedes created_on", ErrValidation)
	}
	return nil
}

// IsDue reports whether the task is eligible for execution at now.
func (t *CronTask) IsDue(now time.Time) bool {
	return !t.ExpectedBy.After(now)
}
