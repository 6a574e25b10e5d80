package mocks

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/cronq/internal/domain"
	"github.com/phrazzld/cronq/internal/store"
)

// MockCronTaskStore is an in-memory store.CronTaskStore. Each method calls
// its Fn field when set and falls back to the in-memory behaviour otherwise.
type MockCronTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]domain.CronTask
	calls map[string]int

	// Now is the clock used for timestamps; defaults to time.Now.
	Now func() time.Time

	CreateFn       func(ctx context.Context, taskID string, payload any, expectedBy time.Time) (*domain.CronTask, error)
	GetByIDFn      func(ctx context.Context, id uuid.UUID) (store.Option[domain.CronTask], error)
	GetByRunDateFn func(ctx context.Context, runDate time.Time, status *domain.TaskStatus) ([]domain.CronTask, error)
	UpdateStatusFn func(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error
	ClaimFn        func(ctx context.Context, id uuid.UUID) (store.Option[domain.CronTask], error)
	ClaimDueFn     func(ctx context.Context, runDate time.Time, limit int) ([]domain.CronTask, error)
}

// NewMockCronTaskStore creates an empty in-memory store.
func NewMockCronTaskStore() *MockCronTaskStore {
	return &MockCronTaskStore{
		tasks: make(map[uuid.UUID]domain.CronTask),
		calls: make(map[string]int),
		Now:   time.Now,
	}
}

var _ store.CronTaskStore = (*MockCronTaskStore)(nil)

func (m *MockCronTaskStore) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[method]++
}

// Calls returns how many times method was invoked.
func (m *MockCronTaskStore) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// Put stores task as is, bypassing Create.
func (m *MockCronTaskStore) Put(task domain.CronTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
}

// Task returns the stored task with id.
func (m *MockCronTaskStore) Task(id uuid.UUID) (domain.CronTask, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	return task, ok
}

// Create implements store.CronTaskStore.Create
func (m *MockCronTaskStore) Create(
	ctx context.Context,
	taskID string,
	payload any,
	expectedBy time.Time,
) (*domain.CronTask, error) {
	m.record("Create")
	if m.CreateFn != nil {
		return m.CreateFn(ctx, taskID, payload, expectedBy)
	}

	task, err := domain.NewCronTask(taskID, payload, expectedBy, m.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	m.Put(*task)
	return task, nil
}

// GetByID implements store.CronTaskStore.GetByID
func (m *MockCronTaskStore) GetByID(ctx context.Context, id uuid.UUID) (store.Option[domain.CronTask], error) {
	m.record("GetByID")
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	task, ok := m.Task(id)
	if !ok {
		return store.None[domain.CronTask](), nil
	}
	return store.Some(task), nil
}

// GetByRunDate implements store.CronTaskStore.GetByRunDate
func (m *MockCronTaskStore) GetByRunDate(
	ctx context.Context,
	runDate time.Time,
	status *domain.TaskStatus,
) ([]domain.CronTask, error) {
	m.record("GetByRunDate")
	if m.GetByRunDateFn != nil {
		return m.GetByRunDateFn(ctx, runDate, status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.due(runDate, status, -1), nil
}

// due returns matching tasks in due order; callers hold mu.
func (m *MockCronTaskStore) due(runDate time.Time, status *domain.TaskStatus, limit int) []domain.CronTask {
	out := []domain.CronTask{}
	for _, task := range m.tasks {
		if task.ExpectedBy.After(runDate) {
			continue
		}
		if status != nil && task.Status != *status {
			continue
		}
		out = append(out, task)
	}
	slices.SortFunc(out, func(a, b domain.CronTask) int {
		if c := a.ExpectedBy.Compare(b.ExpectedBy); c != 0 {
			return c
		}
		return a.CreatedOn.Compare(b.CreatedOn)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// UpdateStatus implements store.CronTaskStore.UpdateStatus
func (m *MockCronTaskStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error {
	m.record("UpdateStatus")
	if m.UpdateStatusFn != nil {
		return m.UpdateStatusFn(ctx, id, status)
	}
	if !status.Valid() {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, domain.ErrInvalidTaskStatus)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil
	}
	task.Status = status
	task.UpdatedOn = m.Now().UTC()
	m.tasks[id] = task
	return nil
}

// Claim implements store.CronTaskStore.Claim
func (m *MockCronTaskStore) Claim(ctx context.Context, id uuid.UUID) (store.Option[domain.CronTask], error) {
	m.record("Claim")
	if m.ClaimFn != nil {
		return m.ClaimFn(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok || task.Status != domain.TaskStatusCreated {
		return store.None[domain.CronTask](), nil
	}
	task.Status = domain.TaskStatusProcessing
	task.UpdatedOn = m.Now().UTC()
	m.tasks[id] = task
	return store.Some(task), nil
}

// ClaimDue implements store.CronTaskStore.ClaimDue
func (m *MockCronTaskStore) ClaimDue(ctx context.Context, runDate time.Time, limit int) ([]domain.CronTask, error) {
	m.record("ClaimDue")
	if m.ClaimDueFn != nil {
		return m.ClaimDueFn(ctx, runDate, limit)
	}
	if limit <= 0 {
		return []domain.CronTask{}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	created := domain.TaskStatusCreated
	claimed := m.due(runDate, &created, limit)
	now := m.Now().UTC()
	for i := range claimed {
		claimed[i].Status = domain.TaskStatusProcessing
		claimed[i].UpdatedOn = now
		m.tasks[claimed[i].ID] = claimed[i]
	}
	return claimed, nil
}
