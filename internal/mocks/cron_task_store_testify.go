package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/cronq/internal/domain"
	"github.com/phrazzld/cronq/internal/store"
	"github.com/stretchr/testify/mock"
)

// TestifyMockCronTaskStore is a mock of store.CronTaskStore interface for use with testify/mock
type TestifyMockCronTaskStore struct {
	mock.Mock
}

var _ store.CronTaskStore = (*TestifyMockCronTaskStore)(nil)

// Create is a mock implementation of store.CronTaskStore.Create
func (m *TestifyMockCronTaskStore) Create(
	ctx context.Context,
	taskID string,
	payload any,
	expectedBy time.Time,
) (*domain.CronTask, error) {
	args := m.Called(ctx, taskID, payload, expectedBy)
	if task, ok := args.Get(0).(*domain.CronTask); ok {
		return task, args.Error(1)
	}
	return nil, args.Error(1)
}

// GetByID is a mock implementation of store.CronTaskStore.GetByID
func (m *TestifyMockCronTaskStore) GetByID(ctx context.Context, id uuid.UUID) (store.Option[domain.CronTask], error) {
	args := m.Called(ctx, id)
	if found, ok := args.Get(0).(store.Option[domain.CronTask]); ok {
		return found, args.Error(1)
	}
	return store.None[domain.CronTask](), args.Error(1)
}

// GetByRunDate is a mock implementation of store.CronTaskStore.GetByRunDate
func (m *TestifyMockCronTaskStore) GetByRunDate(
	ctx context.Context,
	runDate time.Time,
	status *domain.TaskStatus,
) ([]domain.CronTask, error) {
	args := m.Called(ctx, runDate, status)
	if tasks, ok := args.Get(0).([]domain.CronTask); ok {
		return tasks, args.Error(1)
	}
	return nil, args.Error(1)
}

// UpdateStatus is a mock implementation of store.CronTaskStore.UpdateStatus
func (m *TestifyMockCronTaskStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

// Claim is a mock implementation of store.CronTaskStore.Claim
func (m *TestifyMockCronTaskStore) Claim(ctx context.Context, id uuid.UUID) (store.Option[domain.CronTask], error) {
	args := m.Called(ctx, id)
	if found, ok := args.Get(0).(store.Option[domain.CronTask]); ok {
		return found, args.Error(1)
	}
	return store.None[domain.CronTask](), args.Error(1)
}

// ClaimDue is a mock implementation of store.CronTaskStore.ClaimDue
func (m *TestifyMockCronTaskStore) ClaimDue(ctx context.Context, runDate time.Time, limit int) ([]domain.CronTask, error) {
	args := m.Called(ctx, runDate, limit)
	if tasks, ok := args.Get(0).([]domain.CronTask); ok {
		return tasks, args.Error(1)
	}
	return nil, args.Error(1)
}
