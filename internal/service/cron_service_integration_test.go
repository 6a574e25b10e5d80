package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/phrazzld/cronq/internal/domain"
	"github.com/phrazzld/cronq/internal/mocks"
	"github.com/phrazzld/cronq/internal/platform/postgres"
	"github.com/phrazzld/cronq/internal/service"
	"github.com/phrazzld/cronq/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronService_Postgres(t *testing.T) {
	t.Parallel()

	m := testdb.NewManager(t)
	clock := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	taskStore := postgres.NewPostgresCronTaskStore(m, nil, postgres.WithNow(now))
	emitter := &mocks.RecordingEmitter{}
	svc, err := service.NewCronService(taskStore, emitter, nil, service.WithClock(now))
	require.NoError(t, err)
	ctx := context.Background()

	payload := map[string]any{"report": map[string]any{"id": 7, "tags": []string{"weekly"}}}
	task, err := svc.AddTask(ctx, "build_report", payload, clock)
	require.NoError(t, err)

	available, err := svc.GetNextAvailableTasks(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, task.ID, available[0].ID)
	assert.Equal(t, task.Payload, available[0].Payload)

	won, err := svc.ClaimTask(ctx, task.ID)
	require.NoError(t, err)
	require.True(t, won)

	available, err = svc.GetNextAvailableTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, available)

	require.NoError(t, svc.UpdateTaskStatus(ctx, task.ID, domain.TaskStatusDone))
	found, err := svc.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusDone, found.MustGet().Status)

	assert.Len(t, emitter.Events(), 3)
}
