package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/cronq/internal/domain"
	"github.com/phrazzld/cronq/internal/events"
	"github.com/phrazzld/cronq/internal/mocks"
	"github.com/phrazzld/cronq/internal/platform/logger"
	"github.com/phrazzld/cronq/internal/service"
	"github.com/phrazzld/cronq/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newService(t *testing.T) (service.CronService, *mocks.MockCronTaskStore, *mocks.RecordingEmitter) {
	t.Helper()
	taskStore := mocks.NewMockCronTaskStore()
	taskStore.Now = fixedClock
	emitter := &mocks.RecordingEmitter{}

	svc, err := service.NewCronService(taskStore, emitter, nil, service.WithClock(fixedClock))
	require.NoError(t, err)
	return svc, taskStore, emitter
}

func TestNewCronService(t *testing.T) {
	t.Parallel()

	_, err := service.NewCronService(nil, nil, nil)
	assert.ErrorIs(t, err, service.ErrNilDependency)

	svc, err := service.NewCronService(mocks.NewMockCronTaskStore(), nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestCronService_AddTask(t *testing.T) {
	t.Parallel()

	t.Run("stores and announces the task", func(t *testing.T) {
		t.Parallel()
		svc, taskStore, emitter := newService(t)

		task, err := svc.AddTask(context.Background(), "send_digest", map[string]any{"n": 1}, fixedNow.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCreated, task.Status)

		_, ok := taskStore.Task(task.ID)
		assert.True(t, ok)

		emitted := emitter.Events()
		require.Len(t, emitted, 1)
		assert.Equal(t, events.TypeTaskCreated, emitted[0].Type)
		assert.Equal(t, task.ID, emitted[0].CronTaskID)
		assert.Equal(t, "send_digest", emitted[0].TaskID)
	})

	t.Run("store errors are returned unchanged and nothing is emitted", func(t *testing.T) {
		t.Parallel()
		svc, _, emitter := newService(t)

		_, err := svc.AddTask(context.Background(), "", nil, fixedNow)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
		assert.Empty(t, emitter.Events())
	})

	t.Run("emitter failure does not fail the operation", func(t *testing.T) {
		t.Parallel()
		taskStore := mocks.NewMockCronTaskStore()
		emitter := &mocks.RecordingEmitter{Err: errors.New("broker down")}
		log, buf := logger.GetTestLogger(t)
		svc, err := service.NewCronService(taskStore, emitter, log)
		require.NoError(t, err)

		task, err := svc.AddTask(context.Background(), "send_digest", nil, time.Now())
		require.NoError(t, err)
		assert.NotNil(t, task)
		assert.Len(t, emitter.Events(), 1)
		assert.Contains(t, buf.String(), "failed to emit task event")
	})
}

func TestCronService_GetNextAvailableTasks(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t)
	ctx := context.Background()

	due, err := svc.AddTask(ctx, "due", nil, fixedNow)
	require.NoError(t, err)
	_, err = svc.AddTask(ctx, "future", nil, fixedNow.Add(time.Second))
	require.NoError(t, err)
	claimed, err := svc.AddTask(ctx, "claimed", nil, fixedNow.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, svc.UpdateTaskStatus(ctx, claimed.ID, domain.TaskStatusProcessing))

	available, err := svc.GetNextAvailableTasks(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, due.ID, available[0].ID)
}

func TestCronService_GetNextAvailableTasks_UsesClockAndCreatedFilter(t *testing.T) {
	t.Parallel()
	taskStore := &mocks.TestifyMockCronTaskStore{}
	svc, err := service.NewCronService(taskStore, nil, nil, service.WithClock(fixedClock))
	require.NoError(t, err)

	created := domain.TaskStatusCreated
	taskStore.On("GetByRunDate", mock.Anything, fixedNow, &created).Return([]domain.CronTask{}, nil)

	tasks, err := svc.GetNextAvailableTasks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tasks)
	taskStore.AssertExpectations(t)
}

func TestCronService_UpdateTaskStatus(t *testing.T) {
	t.Parallel()

	t.Run("emits a status change", func(t *testing.T) {
		t.Parallel()
		svc, taskStore, emitter := newService(t)
		ctx := context.Background()

		task, err := svc.AddTask(ctx, "x", nil, fixedNow)
		require.NoError(t, err)
		require.NoError(t, svc.UpdateTaskStatus(ctx, task.ID, domain.TaskStatusDone))

		stored, _ := taskStore.Task(task.ID)
		assert.Equal(t, domain.TaskStatusDone, stored.Status)
		assert.Equal(t, []string{events.TypeTaskCreated, events.TypeTaskStatusChanged}, emitter.Types())
		assert.Equal(t, domain.TaskStatusDone, emitter.Events()[1].Status)
	})

	t.Run("pool errors propagate", func(t *testing.T) {
		t.Parallel()
		taskStore := &mocks.TestifyMockCronTaskStore{}
		emitter := &mocks.RecordingEmitter{}
		svc, err := service.NewCronService(taskStore, emitter, nil)
		require.NoError(t, err)

		id := uuid.New()
		taskStore.On("UpdateStatus", mock.Anything, id, domain.TaskStatusDone).Return(store.ErrPoolExhausted)

		err = svc.UpdateTaskStatus(context.Background(), id, domain.TaskStatusDone)
		assert.ErrorIs(t, err, store.ErrPoolExhausted)
		assert.Empty(t, emitter.Events())
		taskStore.AssertExpectations(t)
	})
}

func TestCronService_ClaimTask(t *testing.T) {
	t.Parallel()
	svc, _, emitter := newService(t)
	ctx := context.Background()

	task, err := svc.AddTask(ctx, "x", nil, fixedNow)
	require.NoError(t, err)

	won, err := svc.ClaimTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = svc.ClaimTask(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, won)

	won, err = svc.ClaimTask(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, won)

	assert.Equal(t, []string{events.TypeTaskCreated, events.TypeTaskStatusChanged}, emitter.Types())
}

func TestCronService_ClaimNextAvailableTasks(t *testing.T) {
	t.Parallel()

	t.Run("claims due tasks up to the limit", func(t *testing.T) {
		t.Parallel()
		svc, _, emitter := newService(t)
		ctx := context.Background()

		for i := range 3 {
			_, err := svc.AddTask(ctx, "batch", nil, fixedNow.Add(-time.Duration(i)*time.Minute))
			require.NoError(t, err)
		}

		claimed, err := svc.ClaimNextAvailableTasks(ctx, 2)
		require.NoError(t, err)
		require.Len(t, claimed, 2)
		for _, task := range claimed {
			assert.Equal(t, domain.TaskStatusProcessing, task.Status)
		}
		assert.True(t, claimed[0].ExpectedBy.Before(claimed[1].ExpectedBy))
		assert.Len(t, emitter.Events(), 5)

		rest, err := svc.ClaimNextAvailableTasks(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, rest, 1)
	})

	t.Run("rejects a non-positive limit", func(t *testing.T) {
		t.Parallel()
		svc, taskStore, _ := newService(t)

		_, err := svc.ClaimNextAvailableTasks(context.Background(), 0)
		assert.ErrorIs(t, err, service.ErrInvalidLimit)
		assert.Equal(t, 0, taskStore.Calls("ClaimDue"))
	})
}
