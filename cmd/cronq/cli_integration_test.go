package main

import (
	"encoding/json"
	"testing"

	"github.com/phrazzld/cronq/internal/domain"
	"github.com/phrazzld/cronq/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withTestDatabase points the CLI at a freshly migrated throwaway schema.
func withTestDatabase(t *testing.T) {
	t.Helper()
	m := testdb.NewManager(t)
	t.Setenv("CRONQ_DATABASE_URL", testdb.GetTestDatabaseURL())
	t.Setenv("CRONQ_DATABASE_SCHEMA", m.Schema())
	t.Setenv("CRONQ_SERVER_LOG_LEVEL", "error")
	t.Setenv("CRONQ_ENVIRONMENT", "CICD")
	t.Setenv("CRONQ_EVENTS_NATS_URL", "")
}

func decodeTask(t *testing.T, out string) domain.CronTask {
	t.Helper()
	var task domain.CronTask
	require.NoError(t, domain.DecodeJSON([]byte(out), &task))
	return task
}

func TestCLI_TaskLifecycle(t *testing.T) {
	withTestDatabase(t)

	out, err := execute(t, "migrate", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "migrate version: ok")

	out, err = execute(t, "add", "--task-id", "noop", "--payload", `{"n":1}`, "--at=-1m")
	require.NoError(t, err)
	created := decodeTask(t, out)
	assert.Equal(t, "noop", created.TaskID)
	assert.Equal(t, domain.TaskStatusCreated, created.Status)
	assert.Equal(t, domain.Payload{"n": json.Number("1")}, created.Payload)

	out, err = execute(t, "get", created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.ID, decodeTask(t, out).ID)

	out, err = execute(t, "due")
	require.NoError(t, err)
	var due []domain.CronTask
	require.NoError(t, domain.DecodeJSON([]byte(out), &due))
	require.Len(t, due, 1)
	assert.Equal(t, created.ID, due[0].ID)

	out, err = execute(t, "worker", "--once")
	require.NoError(t, err)
	assert.Contains(t, out, "processed 1 tasks")

	out, err = execute(t, "get", created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusDone, decodeTask(t, out).Status)

	_, err = execute(t, "status", created.ID.String(), "created")
	require.NoError(t, err)

	out, err = execute(t, "claim", created.ID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "claimed")

	_, err = execute(t, "claim", created.ID.String())
	assert.ErrorContains(t, err, "not claimable")
}

func TestCLI_GetUnknownTask(t *testing.T) {
	withTestDatabase(t)

	_, err := execute(t, "get", "6f1c1c55-3a52-4d0e-9d2b-5b0f1f5b6a01")
	assert.ErrorContains(t, err, "not found")
}

func TestCLI_WorkerRecordsMissingHandler(t *testing.T) {
	withTestDatabase(t)

	out, err := execute(t, "add", "--task-id", "generate_article", "--at=-1s")
	require.NoError(t, err)
	created := decodeTask(t, out)

	_, err = execute(t, "worker", "--once")
	require.NoError(t, err)

	out, err = execute(t, "get", created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusError, decodeTask(t, out).Status)
}
