package postgres

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// MigrationTableName is the name of the table used by goose to track migrations.
const MigrationTableName = "schema_migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// MigrationCommands lists the commands accepted by Migrate.
var MigrationCommands = []string{"up", "down", "reset", "status", "version"}

// goose keeps its dialect, table name and filesystem in package globals.
var gooseMu sync.Mutex

// slogGooseLogger adapts the goose logger interface to slog.
type slogGooseLogger struct {
	logger *slog.Logger
}

// Printf forwards goose progress messages at info level.
func (l *slogGooseLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

// Fatalf logs at error level. It does not exit; goose returns the error to
// the caller as well.
func (l *slogGooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

// Migrate runs a goose command against the Manager's schema. The schema is
// created first if it does not exist, and both the cron_task table and the
// goose version table live inside it.
func Migrate(ctx context.Context, m *Manager, command string) error {
	correlationID := uuid.New().String()
	log := m.logger.With(
		slog.String("correlation_id", correlationID),
		slog.String("component", "migrations"),
		slog.String("command", command),
		slog.String("schema", m.Schema()),
	)

	startTime := time.Now()
	log.Info("starting migration operation")

	if err := ensureSchema(ctx, m); err != nil {
		log.Error("failed to create schema", slog.String("error", err.Error()))
		return err
	}

	connConfig, err := pgx.ParseConfig(m.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to parse database url: %w", err)
	}
	connConfig.RuntimeParams["search_path"] = m.Schema()

	db := stdlib.OpenDB(*connConfig)
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("error closing migration connection", slog.String("error", err.Error()))
		}
	}()

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetLogger(&slogGooseLogger{logger: log})
	goose.SetBaseFS(migrationsFS)
	goose.SetTableName(MigrationTableName)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	switch command {
	case "up":
		err = goose.UpContext(ctx, db, migrationsDir)
	case "down":
		err = goose.DownContext(ctx, db, migrationsDir)
	case "reset":
		err = goose.ResetContext(ctx, db, migrationsDir)
	case "status":
		err = goose.StatusContext(ctx, db, migrationsDir)
	case "version":
		err = goose.VersionContext(ctx, db, migrationsDir)
	default:
		return fmt.Errorf("unknown migration command: %s (expected one of %v)", command, MigrationCommands)
	}

	if err != nil {
		log.Error("migration command failed",
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", time.Since(startTime).Milliseconds()))
		return fmt.Errorf("migration command '%s' failed: %w", command, err)
	}

	log.Info("migration command executed successfully",
		slog.Int64("duration_ms", time.Since(startTime).Milliseconds()))
	return nil
}

// ensureSchema creates the configured schema on the sync pool.
func ensureSchema(ctx context.Context, m *Manager) error {
	sql := "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{m.Schema()}.Sanitize()
	return m.WithSession(ctx, PoolSync, func(ctx context.Context, s *Session) error {
		if _, err := s.Exec(ctx, sql); err != nil {
			return MapError(err)
		}
		return s.Commit(ctx)
	})
}
