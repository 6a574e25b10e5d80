package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/cronq/internal/platform/logger"
	"github.com/phrazzld/cronq/internal/store"
)

const rollbackTimeout = 5 * time.Second

// SessionFn is a unit of work executed inside a session scope.
type SessionFn func(ctx context.Context, s *Session) error

// Session is one checked-out connection used for one unit of work.
//
// Statements run inside a transaction that is opened on first use. Writes
// persist only after an explicit Commit; a new transaction is opened by the
// next statement after a commit. Whatever is still uncommitted when the
// scope ends is rolled back.
type Session struct {
	conn *Conn
	tx   pgx.Tx
}

// WithSession checks out a connection from the requested pool and runs fn
// with it. If fn returns an error or panics, the open transaction is rolled
// back and the error (or panic) is propagated unchanged. The connection is
// returned to its pool on every exit path.
func (m *Manager) WithSession(ctx context.Context, kind PoolKind, fn SessionFn) error {
	conn, err := m.Checkout(ctx, kind)
	if err != nil {
		return err
	}
	defer m.Checkin(conn)

	log := logger.FromContextOrDefault(ctx, m.logger).With(slog.String("pool", kind.String()))
	s := &Session{conn: conn}

	defer func() {
		if p := recover(); p != nil {
			log.Error("session rollback because of panic", slog.Any("panic", p))
			s.rollback(ctx, log)
			// ALLOW-PANIC: Propagating caught panic from session scope
			panic(p)
		}
	}()

	if err := fn(ctx, s); err != nil {
		if s.tx != nil {
			log.Error("session rollback because of error", slog.String("error", err.Error()))
		}
		s.rollback(ctx, log)
		return err
	}

	s.rollback(ctx, log)
	return nil
}

func (s *Session) begin(ctx context.Context) error {
	if s.tx != nil {
		return nil
	}
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", store.ErrTransactionFailed, err)
	}
	s.tx = tx
	return nil
}

// rollback discards the open transaction, if any. It runs even when ctx is
// already cancelled so the connection goes back to the pool clean.
func (s *Session) rollback(ctx context.Context, log *slog.Logger) {
	if s.tx == nil {
		return
	}
	tx := s.tx
	s.tx = nil

	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := tx.Rollback(rbCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		log.Error("failed to roll back session transaction", slog.String("error", err.Error()))
	}
}

// Commit makes every statement since the last commit durable.
// Committing with nothing pending is a no-op.
func (s *Session) Commit(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", store.ErrTransactionFailed, err)
	}
	return nil
}

// Exec runs a statement that returns no rows.
func (s *Session) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if err := s.begin(ctx); err != nil {
		return pgconn.CommandTag{}, err
	}
	return s.tx.Exec(ctx, sql, args...)
}

// Query runs a statement that returns rows. The caller must close them.
func (s *Session) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	return s.tx.Query(ctx, sql, args...)
}

// QueryRow runs a statement expected to return at most one row.
func (s *Session) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if err := s.begin(ctx); err != nil {
		return errRow{err: err}
	}
	return s.tx.QueryRow(ctx, sql, args...)
}

// PoolKind reports which pool the session's connection came from.
func (s *Session) PoolKind() PoolKind {
	return s.conn.Kind()
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// QueryOne runs sql and decodes the single resulting row into T by matching
// column names to T's db tags. No row yields an absent Option.
func QueryOne[T any](ctx context.Context, s *Session, sql string, args ...any) (store.Option[T], error) {
	rows, err := s.Query(ctx, sql, args...)
	if err != nil {
		return store.None[T](), err
	}
	v, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if errors.Is(err, pgx.ErrNoRows) {
		return store.None[T](), nil
	}
	if err != nil {
		return store.None[T](), err
	}
	return store.Some(v), nil
}

// QueryAll runs sql and decodes every resulting row into T by matching
// column names to T's db tags. No rows yields an empty, non-nil slice.
func QueryAll[T any](ctx context.Context, s *Session, sql string, args ...any) ([]T, error) {
	rows, err := s.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}
