package postgres_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/phrazzld/cronq/internal/domain"
	"github.com/phrazzld/cronq/internal/platform/postgres"
	"github.com/phrazzld/cronq/internal/store"
	"github.com/phrazzld/cronq/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock is a manually advanced clock shared by a store under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newStore(t *testing.T, opts ...postgres.StoreOption) (*postgres.PostgresCronTaskStore, *postgres.Manager) {
	t.Helper()
	m := testdb.NewManager(t)
	return postgres.NewPostgresCronTaskStore(m, nil, opts...), m
}

func statusPtr(s domain.TaskStatus) *domain.TaskStatus {
	return &s
}

func TestNewPostgresCronTaskStore_NilManager(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		postgres.NewPostgresCronTaskStore(nil, nil)
	})
}

func TestCronTaskStore_Create(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		s, _ := newStore(t)
		ctx := context.Background()
		expectedBy := time.Now().Add(time.Hour)

		created, err := s.Create(ctx, "send_digest", map[string]any{"user": "u-1", "count": 3}, expectedBy)
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, created.ID)
		assert.Equal(t, "send_digest", created.TaskID)
		assert.Equal(t, domain.TaskStatusCreated, created.Status)
		assert.Equal(t, domain.Payload{"user": "u-1", "count": json.Number("3")}, created.Payload)
		assert.True(t, created.ExpectedBy.Equal(expectedBy.Truncate(time.Microsecond)))
		assert.Equal(t, time.UTC, created.ExpectedBy.Location())
		assert.True(t, created.UpdatedOn.Equal(created.CreatedOn))

		found, err := s.GetByID(ctx, created.ID)
		require.NoError(t, err)
		got, ok := found.Get()
		require.True(t, ok)
		assert.Equal(t, *created, got)
	})

	t.Run("nested payload keeps its shape", func(t *testing.T) {
		t.Parallel()
		s, _ := newStore(t)
		ctx := context.Background()

		type recipient struct {
			Email string   `json:"email"`
			Tags  []string `json:"tags"`
		}
		payload := map[string]any{
			"level1": map[string]any{
				"level2": map[string]any{
					"level3":    []any{1, "two", true, nil},
					"recipient": recipient{Email: "a@example.com", Tags: []string{"x", "y"}},
				},
			},
		}

		created, err := s.Create(ctx, "nested", payload, time.Now())
		require.NoError(t, err)

		want := domain.Payload{
			"level1": map[string]any{
				"level2": map[string]any{
					"level3": []any{json.Number("1"), "two", true, nil},
					"recipient": map[string]any{
						"email": "a@example.com",
						"tags":  []any{"x", "y"},
					},
				},
			},
		}
		assert.Equal(t, want, created.Payload)

		found, err := s.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, want, found.MustGet().Payload)
	})

	t.Run("large integers keep every digit", func(t *testing.T) {
		t.Parallel()
		s, m := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, "big_int", map[string]any{"n": int64(9007199254740993)}, time.Now())
		require.NoError(t, err)
		assert.Equal(t, json.Number("9007199254740993"), created.Payload["n"])

		found, err := s.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, json.Number("9007199254740993"), found.MustGet().Payload["n"])

		var stored string
		testdb.WithSession(t, m, func(ctx context.Context, sess *postgres.Session) {
			table := pgx.Identifier{m.Schema(), postgres.CronTaskTable}.Sanitize()
			require.NoError(t, sess.QueryRow(ctx,
				"SELECT payload->>'n' FROM "+table+" WHERE id = $1", created.ID).Scan(&stored))
		})
		assert.Equal(t, "9007199254740993", stored)
	})

	t.Run("nil payload stored as empty object", func(t *testing.T) {
		t.Parallel()
		s, _ := newStore(t)

		created, err := s.Create(context.Background(), "no_payload", nil, time.Now())
		require.NoError(t, err)
		assert.Equal(t, domain.Payload{}, created.Payload)
	})

	t.Run("invalid input is rejected before touching the database", func(t *testing.T) {
		t.Parallel()
		s, m := newStore(t)
		ctx := context.Background()

		_, err := s.Create(ctx, "", nil, time.Now())
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, err = s.Create(ctx, "list_payload", []int{1, 2}, time.Now())
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
		assert.ErrorIs(t, err, domain.ErrInvalidPayload)

		_, err = s.Create(ctx, "no_deadline", nil, time.Time{})
		assert.ErrorIs(t, err, store.ErrInvalidEntity)

		assert.Equal(t, 0, testdb.CountRows(t, m))
	})

	t.Run("concurrent creates get distinct ids", func(t *testing.T) {
		t.Parallel()
		s, m := newStore(t)
		ctx := context.Background()

		const n = 25
		ids := make(chan uuid.UUID, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				created, err := s.Create(ctx, "fan_out", map[string]any{"i": i}, time.Now())
				if assert.NoError(t, err) {
					ids <- created.ID
				}
			}()
		}
		wg.Wait()
		close(ids)

		seen := map[uuid.UUID]bool{}
		for id := range ids {
			assert.False(t, seen[id])
			seen[id] = true
		}
		assert.Len(t, seen, n)
		assert.Equal(t, n, testdb.CountRows(t, m))
	})
}

func TestCronTaskStore_GetByID(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)
	ctx := context.Background()

	t.Run("unknown id is absent, not an error", func(t *testing.T) {
		found, err := s.GetByID(ctx, uuid.New())
		require.NoError(t, err)
		assert.False(t, found.IsPresent())
	})

	t.Run("repeated reads are identical", func(t *testing.T) {
		created, err := s.Create(ctx, "idempotent_read", map[string]any{"k": "v"}, time.Now())
		require.NoError(t, err)

		first, err := s.GetByID(ctx, created.ID)
		require.NoError(t, err)
		second, err := s.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestCronTaskStore_GetByRunDate(t *testing.T) {
	t.Parallel()

	t.Run("inclusive bound", func(t *testing.T) {
		t.Parallel()
		s, _ := newStore(t)
		ctx := context.Background()
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		created, err := s.Create(ctx, "boundary", nil, at)
		require.NoError(t, err)

		due, err := s.GetByRunDate(ctx, at, nil)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, created.ID, due[0].ID)

		early, err := s.GetByRunDate(ctx, at.Add(-time.Microsecond), nil)
		require.NoError(t, err)
		assert.NotNil(t, early)
		assert.Empty(t, early)
	})

	t.Run("ordered by expected_by", func(t *testing.T) {
		t.Parallel()
		s, _ := newStore(t)
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		for _, offset := range []time.Duration{3 * time.Minute, time.Minute, 2 * time.Minute} {
			_, err := s.Create(ctx, "ordered", nil, base.Add(offset))
			require.NoError(t, err)
		}

		due, err := s.GetByRunDate(ctx, base.Add(time.Hour), nil)
		require.NoError(t, err)
		require.Len(t, due, 3)
		for i := 1; i < len(due); i++ {
			assert.True(t, due[i-1].ExpectedBy.Before(due[i].ExpectedBy))
		}
	})

	t.Run("status filter", func(t *testing.T) {
		t.Parallel()
		s, _ := newStore(t)
		ctx := context.Background()
		now := time.Now()

		a, err := s.Create(ctx, "filter", nil, now.Add(-time.Minute))
		require.NoError(t, err)
		b, err := s.Create(ctx, "filter", nil, now.Add(-time.Minute))
		require.NoError(t, err)
		require.NoError(t, s.UpdateStatus(ctx, b.ID, domain.TaskStatusDone))

		created, err := s.GetByRunDate(ctx, now, statusPtr(domain.TaskStatusCreated))
		require.NoError(t, err)
		require.Len(t, created, 1)
		assert.Equal(t, a.ID, created[0].ID)

		done, err := s.GetByRunDate(ctx, now, statusPtr(domain.TaskStatusDone))
		require.NoError(t, err)
		require.Len(t, done, 1)
		assert.Equal(t, b.ID, done[0].ID)

		all, err := s.GetByRunDate(ctx, now, nil)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestCronTaskStore_UpdateStatus(t *testing.T) {
	t.Parallel()

	t.Run("transition advances updated_on", func(t *testing.T) {
		t.Parallel()
		clock := newTestClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
		s, _ := newStore(t, postgres.WithNow(clock.Now))
		ctx := context.Background()

		created, err := s.Create(ctx, "transition", nil, clock.Now())
		require.NoError(t, err)

		for _, status := range []domain.TaskStatus{domain.TaskStatusProcessing, domain.TaskStatusDone} {
			clock.Advance(time.Minute)
			require.NoError(t, s.UpdateStatus(ctx, created.ID, status))

			got := must(t, s, created.ID)
			assert.Equal(t, status, got.Status)
			assert.True(t, got.UpdatedOn.Equal(clock.Now()))
			assert.True(t, got.CreatedOn.Equal(created.CreatedOn))
			assert.True(t, got.UpdatedOn.After(got.CreatedOn))
		}
	})

	t.Run("no prior state check", func(t *testing.T) {
		t.Parallel()
		s, _ := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, "any_order", nil, time.Now())
		require.NoError(t, err)
		require.NoError(t, s.UpdateStatus(ctx, created.ID, domain.TaskStatusDone))
		require.NoError(t, s.UpdateStatus(ctx, created.ID, domain.TaskStatusCreated))
		assert.Equal(t, domain.TaskStatusCreated, must(t, s, created.ID).Status)
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		t.Parallel()
		s, m := newStore(t)

		assert.NoError(t, s.UpdateStatus(context.Background(), uuid.New(), domain.TaskStatusDone))
		assert.Equal(t, 0, testdb.CountRows(t, m))
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		t.Parallel()
		s, _ := newStore(t)

		err := s.UpdateStatus(context.Background(), uuid.New(), domain.TaskStatus("PAUSED"))
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
		assert.ErrorIs(t, err, domain.ErrInvalidTaskStatus)
	})
}

func TestCronTaskStore_Claim(t *testing.T) {
	t.Parallel()

	t.Run("exactly one concurrent claimer wins", func(t *testing.T) {
		t.Parallel()
		s, _ := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, "contended", nil, time.Now())
		require.NoError(t, err)

		const claimers = 8
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for range claimers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				claimed, err := s.Claim(ctx, created.ID)
				if !assert.NoError(t, err) {
					return
				}
				if claimed.IsPresent() {
					assert.Equal(t, domain.TaskStatusProcessing, claimed.MustGet().Status)
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		assert.Equal(t, domain.TaskStatusProcessing, must(t, s, created.ID).Status)
	})

	t.Run("only CREATED tasks can be claimed", func(t *testing.T) {
		t.Parallel()
		s, _ := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, "finished", nil, time.Now())
		require.NoError(t, err)
		require.NoError(t, s.UpdateStatus(ctx, created.ID, domain.TaskStatusDone))

		claimed, err := s.Claim(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, claimed.IsPresent())

		missing, err := s.Claim(ctx, uuid.New())
		require.NoError(t, err)
		assert.False(t, missing.IsPresent())
	})
}

func TestCronTaskStore_ClaimDue(t *testing.T) {
	t.Parallel()

	t.Run("claims due CREATED tasks in order up to the limit", func(t *testing.T) {
		t.Parallel()
		s, _ := newStore(t)
		ctx := context.Background()
		base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

		var ids []uuid.UUID
		for i := range 4 {
			created, err := s.Create(ctx, "batch", nil, base.Add(time.Duration(i)*time.Minute))
			require.NoError(t, err)
			ids = append(ids, created.ID)
		}
		future, err := s.Create(ctx, "batch", nil, base.Add(time.Hour))
		require.NoError(t, err)

		claimed, err := s.ClaimDue(ctx, base.Add(10*time.Minute), 3)
		require.NoError(t, err)
		require.Len(t, claimed, 3)
		for i, task := range claimed {
			assert.Equal(t, ids[i], task.ID)
			assert.Equal(t, domain.TaskStatusProcessing, task.Status)
		}

		rest, err := s.ClaimDue(ctx, base.Add(10*time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, ids[3], rest[0].ID)

		assert.Equal(t, domain.TaskStatusCreated, must(t, s, future.ID).Status)
	})

	t.Run("non-positive limit claims nothing", func(t *testing.T) {
		t.Parallel()
		s, _ := newStore(t)

		claimed, err := s.ClaimDue(context.Background(), time.Now(), 0)
		require.NoError(t, err)
		assert.NotNil(t, claimed)
		assert.Empty(t, claimed)
	})

	t.Run("concurrent claimers split the work", func(t *testing.T) {
		t.Parallel()
		s, _ := newStore(t)
		ctx := context.Background()

		const tasks = 20
		for range tasks {
			_, err := s.Create(ctx, "split", nil, time.Now().Add(-time.Minute))
			require.NoError(t, err)
		}

		results := make(chan []domain.CronTask, 4)
		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				claimed, err := s.ClaimDue(ctx, time.Now(), tasks)
				if assert.NoError(t, err) {
					results <- claimed
				}
			}()
		}
		wg.Wait()
		close(results)

		seen := map[uuid.UUID]bool{}
		for batch := range results {
			for _, task := range batch {
				assert.False(t, seen[task.ID], "task %s claimed twice", task.ID)
				seen[task.ID] = true
			}
		}
		assert.Len(t, seen, tasks)
	})
}

func must(t *testing.T, s *postgres.PostgresCronTaskStore, id uuid.UUID) domain.CronTask {
	t.Helper()
	found, err := s.GetByID(context.Background(), id)
	require.NoError(t, err)
	got, ok := found.Get()
	require.True(t, ok, "task %s not found", id)
	return got
}
