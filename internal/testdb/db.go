package testdb

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/phrazzld/cronq/internal/config"
	"github.com/phrazzld/cronq/internal/platform/logger"
	"github.com/phrazzld/cronq/internal/platform/postgres"
	"github.com/stretchr/testify/require"
)

// TestTimeout defines a default timeout for test database operations.
const TestTimeout = 30 * time.Second

// Option adjusts the database configuration used by NewManager.
type Option func(*config.DatabaseConfig)

// WithAsyncPool sizes the async pool. The warm floor check of the
// application config does not apply here, so tests can use tiny pools.
func WithAsyncPool(minConns, maxConns int32) Option {
	return func(c *config.DatabaseConfig) {
		c.AsyncPool = config.PoolConfig{MinConns: minConns, MaxConns: maxConns}
	}
}

// WithSyncPool sizes the sync pool.
func WithSyncPool(maxConns int32) Option {
	return func(c *config.DatabaseConfig) {
		c.SyncPool = config.PoolConfig{MaxConns: maxConns}
	}
}

// WithAcquireTimeout sets how long a checkout waits for a busy pool.
func WithAcquireTimeout(d time.Duration) Option {
	return func(c *config.DatabaseConfig) {
		c.AcquireTimeout = d
	}
}

// SchemaName returns a unique schema name for one test.
func SchemaName() string {
	return "cronq_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// DatabaseConfig returns a configuration pointing at the test database and a
// fresh schema. It skips the test when no database URL is configured.
func DatabaseConfig(t *testing.T, opts ...Option) config.DatabaseConfig {
	t.Helper()

	dbURL := GetTestDatabaseURL()
	if dbURL == "" {
		t.Skip("DATABASE_URL or CRONQ_TEST_DB_URL not set - skipping integration test")
	}

	cfg := config.DatabaseConfig{
		URL:              dbURL,
		Schema:           SchemaName(),
		SyncPool:         config.PoolConfig{MinConns: 0, MaxConns: 4},
		AsyncPool:        config.PoolConfig{MinConns: 1, MaxConns: 8},
		AcquireTimeout:   5 * time.Second,
		ReconnectTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewManager returns a Manager for a migrated throwaway schema. The schema is
// dropped and the pools closed when the test completes.
func NewManager(t *testing.T, opts ...Option) *postgres.Manager {
	t.Helper()

	cfg := DatabaseConfig(t, opts...)
	log, _ := logger.GetTestLogger(t)

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	m, err := postgres.NewManager(ctx, cfg, log)
	require.NoError(t, err, "Failed to create pool manager")

	t.Cleanup(func() {
		dropSchema(t, m)
		m.Close()
	})

	require.NoError(t, postgres.Migrate(ctx, m, "up"), "Failed to run migrations")
	return m
}

// WithSession runs fn inside a session that is always rolled back, for
// tests that need raw SQL access to the schema.
func WithSession(t *testing.T, m *postgres.Manager, fn func(ctx context.Context, s *postgres.Session)) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	err := m.WithSession(ctx, postgres.PoolSync, func(ctx context.Context, s *postgres.Session) error {
		fn(ctx, s)
		return nil
	})
	require.NoError(t, err)
}

// CountRows returns the number of rows in the schema's cron_task table.
func CountRows(t *testing.T, m *postgres.Manager) int {
	t.Helper()

	var n int
	WithSession(t, m, func(ctx context.Context, s *postgres.Session) {
		table := pgx.Identifier{m.Schema(), postgres.CronTaskTable}.Sanitize()
		require.NoError(t, s.QueryRow(ctx, "SELECT count(*) FROM "+table).Scan(&n))
	})
	return n
}

func dropSchema(t *testing.T, m *postgres.Manager) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	sql := "DROP SCHEMA IF EXISTS " + pgx.Identifier{m.Schema()}.Sanitize() + " CASCADE"
	err := m.WithSession(ctx, postgres.PoolSync, func(ctx context.Context, s *postgres.Session) error {
		if _, err := s.Exec(ctx, sql); err != nil {
			return err
		}
		return s.Commit(ctx)
	})
	if err != nil {
		t.Logf("Warning: failed to drop test schema %s: %v", m.Schema(), err)
	}
}
