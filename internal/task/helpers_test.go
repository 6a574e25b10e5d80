package task_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/cronq/internal/domain"
	"github.com/phrazzld/cronq/internal/mocks"
	"github.com/phrazzld/cronq/internal/service"
	"github.com/stretchr/testify/require"
)

// recordingService is a task.TaskService that remembers every status write.
type recordingService struct {
	mu        sync.Mutex
	statuses  map[uuid.UUID][]domain.TaskStatus
	claimFn   func(ctx context.Context, limit int) ([]domain.CronTask, error)
	updateErr error
}

func newRecordingService() *recordingService {
	return &recordingService{statuses: make(map[uuid.UUID][]domain.TaskStatus)}
}

func (s *recordingService) ClaimNextAvailableTasks(ctx context.Context, limit int) ([]domain.CronTask, error) {
	if s.claimFn != nil {
		return s.claimFn(ctx, limit)
	}
	return []domain.CronTask{}, nil
}

func (s *recordingService) UpdateTaskStatus(_ context.Context, id uuid.UUID, status domain.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = append(s.statuses[id], status)
	return s.updateErr
}

func (s *recordingService) history(id uuid.UUID) []domain.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TaskStatus(nil), s.statuses[id]...)
}

func newCronTask(t *testing.T, taskID string, payload any) domain.CronTask {
	t.Helper()
	now := time.Now()
	task, err := domain.NewCronTask(taskID, payload, now.Add(-time.Minute), now)
	require.NoError(t, err)
	return *task
}

// newBackedService wires the real CronService over the in-memory store.
func newBackedService(t *testing.T) (service.CronService, *mocks.MockCronTaskStore) {
	t.Helper()
	taskStore := mocks.NewMockCronTaskStore()
	svc, err := service.NewCronService(taskStore, nil, nil)
	require.NoError(t, err)
	return svc, taskStore
}

func addDueTask(t *testing.T, svc service.CronService, taskID string, payload any, age time.Duration) domain.CronTask {
	t.Helper()
	task, err := svc.AddTask(context.Background(), taskID, payload, time.Now().Add(-age))
	require.NoError(t, err)
	return *task
}
