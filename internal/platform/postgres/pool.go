package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phrazzld/cronq/internal/config"
	"github.com/phrazzld/cronq/internal/store"
)

// PoolKind selects one of the two pools owned by a Manager.
type PoolKind int

const (
	// PoolSync serves low-concurrency, ops-style call paths such as the CLI
	// and migrations. It keeps no warm connections.
	PoolSync PoolKind = iota
	// PoolAsync serves concurrent worker traffic and keeps a warm floor.
	PoolAsync
)

// String returns the pool name used in logs.
func (k PoolKind) String() string {
	switch k {
	case PoolSync:
		return "sync"
	case PoolAsync:
		return "async"
	default:
		return fmt.Sprintf("pool(%d)", int(k))
	}
}

const (
	pingTimeout       = 5 * time.Second
	minReconnectDelay = 100 * time.Millisecond
	maxReconnectDelay = 5 * time.Second
)

// PoolStats is a point-in-time snapshot of one pool.
type PoolStats struct {
	Open          bool
	MaxConns      int32
	TotalConns    int32
	AcquiredConns int32
	IdleConns     int32
}

// Manager owns the sync and async connection pools for one database.
// Pools are opened eagerly when cfg.EagerOpen is set and lazily on first
// checkout otherwise, so tooling and tests never dial at construction.
type Manager struct {
	cfg    config.DatabaseConfig
	logger *slog.Logger
	pools  [2]*managedPool
}

type managedPool struct {
	kind    PoolKind
	poolCfg *pgxpool.Config

	mu     sync.Mutex
	pool   *pgxpool.Pool
	closed bool
}

// NewManager parses the DSN and prepares both pools. With cfg.EagerOpen it
// also opens and pings them, returning store.ErrConnectionFault when the
// database cannot be reached.
func NewManager(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "pool_manager")),
	}

	for kind, size := range map[PoolKind]config.PoolConfig{PoolSync: cfg.SyncPool, PoolAsync: cfg.AsyncPool} {
		poolCfg, err := pgxpool.ParseConfig(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse database url: %w", err)
		}
		poolCfg.MaxConns = size.MaxConns
		poolCfg.MinConns = size.MinConns
		poolCfg.AfterConnect = registerJSONCodecs
		m.pools[kind] = &managedPool{kind: kind, poolCfg: poolCfg}
	}

	if cfg.EagerOpen {
		for _, kind := range []PoolKind{PoolSync, PoolAsync} {
			if err := m.Open(ctx, kind); err != nil {
				m.Close()
				return nil, err
			}
		}
	}

	return m, nil
}

// Open opens the pool if it is not open yet and verifies it with a ping.
// It is safe to call concurrently and repeatedly.
func (m *Manager) Open(ctx context.Context, kind PoolKind) error {
	_, err := m.open(ctx, kind, true)
	return err
}

func (m *Manager) open(ctx context.Context, kind PoolKind, ping bool) (*pgxpool.Pool, error) {
	p, err := m.managed(kind)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("%w: %s pool", store.ErrPoolClosed, kind)
	}
	if p.pool != nil {
		return p.pool, nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, p.poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s pool: %v", store.ErrConnectionFault, kind, err)
	}

	if ping {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("%w: ping %s pool: %v", store.ErrConnectionFault, kind, err)
		}
	}

	p.pool = pool
	m.logger.Info("connection pool opened",
		slog.String("pool", kind.String()),
		slog.Int("min_conns", int(p.poolCfg.MinConns)),
		slog.Int("max_conns", int(p.poolCfg.MaxConns)))
	return pool, nil
}

func (m *Manager) managed(kind PoolKind) (*managedPool, error) {
	if kind != PoolSync && kind != PoolAsync {
		return nil, fmt.Errorf("unknown pool kind %d", int(kind))
	}
	return m.pools[kind], nil
}

// Conn is a connection checked out of one of the Manager's pools. It is
// exclusively owned by the caller until Checkin.
type Conn struct {
	*pgxpool.Conn
	kind    PoolKind
	release sync.Once
}

// Kind reports which pool the connection came from.
func (c *Conn) Kind() PoolKind {
	return c.kind
}

// Checkout returns a live connection from the requested pool.
//
// The pool is opened on first use. Each acquisition waits at most
// AcquireTimeout; when every connection stays busy for that long the call
// fails with store.ErrPoolExhausted. Connections that fail a ping are
// destroyed and replaced until ReconnectTimeout elapses, after which the
// call fails with store.ErrConnectionFault. A Close that lands while the
// call is retrying ends it with store.ErrPoolClosed.
func (m *Manager) Checkout(ctx context.Context, kind PoolKind) (*Conn, error) {
	pool, err := m.open(ctx, kind, false)
	if err != nil {
		return nil, err
	}

	log := m.logger.With(slog.String("pool", kind.String()))
	deadline := time.Now().Add(m.cfg.ReconnectTimeout)
	delay := minReconnectDelay

	for attempt := 1; ; attempt++ {
		conn, err := m.acquire(ctx, pool, kind)
		if err == nil {
			if err = ping(ctx, conn); err == nil {
				return &Conn{Conn: conn, kind: kind}, nil
			}
			// A closed connection is destroyed by the pool on release.
			_ = conn.Conn().Close(context.WithoutCancel(ctx))
			conn.Release()
		}

		if errors.Is(err, store.ErrPoolExhausted) || ctx.Err() != nil {
			return nil, err
		}
		if m.isClosed(kind) {
			return nil, fmt.Errorf("%w: %s pool", store.ErrPoolClosed, kind)
		}

		if !time.Now().Add(delay).Before(deadline) {
			log.Error("giving up reconnecting",
				slog.Int("attempts", attempt),
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("%w: %s pool after %d attempts: %v",
				store.ErrConnectionFault, kind, attempt, err)
		}

		log.Warn("connection unhealthy, reconnecting",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)

		// Close may have run while we slept.
		if pool, err = m.open(ctx, kind, false); err != nil {
			return nil, err
		}
	}
}

func (m *Manager) isClosed(kind PoolKind) bool {
	p, err := m.managed(kind)
	if err != nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// acquire waits for a pooled connection for at most AcquireTimeout.
func (m *Manager) acquire(ctx context.Context, pool *pgxpool.Pool, kind PoolKind) (*pgxpool.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, m.cfg.AcquireTimeout)
	defer cancel()

	conn, err := pool.Acquire(acquireCtx)
	if err == nil {
		return conn, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(acquireCtx.Err(), context.DeadlineExceeded) {
		stat := pool.Stat()
		if stat.AcquiredConns() >= stat.MaxConns() {
			m.logger.Warn("connection pool exhausted",
				slog.String("pool", kind.String()),
				slog.Int("acquired", int(stat.AcquiredConns())),
				slog.Duration("waited", m.cfg.AcquireTimeout))
			return nil, fmt.Errorf("%w: %s pool: all %d connections busy for %s",
				store.ErrPoolExhausted, kind, stat.MaxConns(), m.cfg.AcquireTimeout)
		}
	}
	return nil, err
}

func ping(ctx context.Context, conn *pgxpool.Conn) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return conn.Ping(pingCtx)
}

// Checkin returns a connection to its pool. It is safe to call more than
// once; only the first call has an effect. Connections left inside a
// transaction are discarded by the pool rather than reused.
func (m *Manager) Checkin(conn *Conn) {
	if conn == nil {
		return
	}
	conn.release.Do(conn.Conn.Release)
}

// Stats returns a snapshot of the requested pool. A pool that has not been
// opened reports Open=false and its configured MaxConns.
func (m *Manager) Stats(kind PoolKind) PoolStats {
	p, err := m.managed(kind)
	if err != nil {
		return PoolStats{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pool == nil {
		return PoolStats{MaxConns: p.poolCfg.MaxConns}
	}
	stat := p.pool.Stat()
	return PoolStats{
		Open:          true,
		MaxConns:      stat.MaxConns(),
		TotalConns:    stat.TotalConns(),
		AcquiredConns: stat.AcquiredConns(),
		IdleConns:     stat.IdleConns(),
	}
}

// Pool exposes the underlying pgxpool for integrations that need a raw
// handle, such as the migration runner. The pool is opened if necessary.
func (m *Manager) Pool(ctx context.Context, kind PoolKind) (*pgxpool.Pool, error) {
	return m.open(ctx, kind, true)
}

// Schema is the configured schema holding the cron_task table.
func (m *Manager) Schema() string {
	return m.cfg.Schema
}

// Close shuts down both pools. Further checkouts fail with store.ErrPoolClosed.
func (m *Manager) Close() {
	for _, p := range m.pools {
		if p == nil {
			continue
		}
		p.mu.Lock()
		if p.pool != nil {
			p.pool.Close()
			p.pool = nil
			m.logger.Info("connection pool closed", slog.String("pool", p.kind.String()))
		}
		p.closed = true
		p.mu.Unlock()
	}
}
