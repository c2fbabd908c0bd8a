// Package db owns the database connection pool and the lifecycle of
// per-request transactional sessions. All SQL is explicit — there is no
// ORM layer; repositories run plain statements through the Querier
// interface, which is satisfied by both the manager (auto-commit) and a
// Session (transactional).
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config holds all options for opening and managing the connection pool.
type Config struct {
	// DSN is the driver-specific data-source name.
	DSN string

	// DriverName is "postgres", "mysql", or "sqlite3".
	DriverName string

	// PoolSize is the number of connections kept open and idle. MaxOverflow
	// is the number of additional connections that may be opened under
	// load, so the pool hard limit is PoolSize+MaxOverflow.
	PoolSize    int
	MaxOverflow int

	// PrePing enables a liveness probe on each pooled connection before it
	// is handed to a new session; stale connections are discarded and
	// replaced transparently.
	PrePing bool

	// AcquireTimeout bounds how long Session() blocks waiting for a free
	// connection when the pool (including overflow) is exhausted. Zero
	// means wait until the caller's context is done.
	AcquireTimeout time.Duration

	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Default query timeout applied when no deadline is set on the context.
	// Zero means no default timeout.
	DefaultTimeout time.Duration

	// Hooks executed around every statement (logging, metrics).
	// All hooks are optional; nil entries are silently skipped.
	Hooks []Hook
}

// ─────────────────────────────────────────────────────────────────────────────
// SessionManager — the central type
// ─────────────────────────────────────────────────────────────────────────────

// SessionManager is a concurrency-safe wrapper around *sql.DB that owns the
// connection pool and creates per-request transactional sessions. It adds
// context-aware helpers, hook dispatch, and unified error mapping.
//
// A SessionManager is constructed once at process startup with Open and
// injected explicitly into services — there is no package-level singleton.
// All methods accept a context.Context so callers always control timeouts
// and cancellation.
type SessionManager struct {
	sqldb  *sql.DB
	cfg    Config
	hooks  hookChain
	errMap ErrorMapper
	closed chan struct{} // closed by Close; nil-safe via isClosed
}

// Open opens the pool described by cfg and verifies connectivity with Ping.
// A malformed DSN or unreachable target yields ErrConfiguration. Callers
// are responsible for calling Close() when the application shuts down.
func Open(cfg Config) (*SessionManager, error) {
	if cfg.DSN == "" {
		return nil, &DBError{Sentinel: ErrConfiguration, Message: "DSN must not be empty"}
	}
	if cfg.DriverName == "" {
		return nil, &DBError{Sentinel: ErrConfiguration, Message: "DriverName must not be empty"}
	}

	sqldb, err := sql.Open(cfg.DriverName, cfg.DSN)
	if err != nil {
		return nil, &DBError{Sentinel: ErrConfiguration, Cause: err, Message: "open"}
	}

	// Pool sizing: PoolSize idle connections, PoolSize+MaxOverflow hard cap.
	if cfg.PoolSize > 0 {
		sqldb.SetMaxIdleConns(cfg.PoolSize)
		sqldb.SetMaxOpenConns(cfg.PoolSize + cfg.MaxOverflow)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	m := &SessionManager{
		sqldb:  sqldb,
		cfg:    cfg,
		hooks:  newHookChain(cfg.Hooks),
		errMap: DefaultErrorMapper(),
		closed: make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, &DBError{Sentinel: ErrConfiguration, Cause: err, Message: "ping"}
	}

	return m, nil
}

// MustOpen is like Open but panics on error. Useful in main() initialisation.
func MustOpen(cfg Config) *SessionManager {
	m, err := Open(cfg)
	if err != nil {
		panic(err)
	}
	return m
}

// Raw returns the underlying *sql.DB for advanced use cases.
// Prefer the wrapper methods where possible.
func (m *SessionManager) Raw() *sql.DB { return m.sqldb }

// SetErrorMapper replaces the default error mapper with a custom one.
// Use this to add driver-specific error code translations.
func (m *SessionManager) SetErrorMapper(em ErrorMapper) { m.errMap = em }

// Close drains and closes all pooled connections. In-flight sessions keep
// their pinned connection until they reach a terminal commit/rollback;
// subsequent Session() calls fail with ErrNotInitialized. Safe to call
// multiple times.
func (m *SessionManager) Close() error {
	select {
	case <-m.closed:
		return nil
	default:
		close(m.closed)
	}
	return m.sqldb.Close()
}

func (m *SessionManager) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// Ping verifies that the database is reachable.
func (m *SessionManager) Ping(ctx context.Context) error {
	if m.isClosed() {
		return ErrNotInitialized
	}
	ctx, cancel := m.applyDefaultTimeout(ctx)
	defer cancel()
	return m.mapErr(m.sqldb.PingContext(ctx))
}

// Stats returns pool statistics for monitoring.
func (m *SessionManager) Stats() sql.DBStats { return m.sqldb.Stats() }

// ─────────────────────────────────────────────────────────────────────────────
// Auto-commit query helpers (outside any session)
// ─────────────────────────────────────────────────────────────────────────────

// Exec executes a statement that returns no rows (INSERT, UPDATE, DELETE, DDL).
// It returns the result and any error translated through the unified error
// mapper.
func (m *SessionManager) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, cancel := m.applyDefaultTimeout(ctx)
	defer cancel()
	start := time.Now()
	m.hooks.Before(ctx, query, args)
	res, err := m.sqldb.ExecContext(ctx, query, args...)
	err = m.mapErr(err)
	m.hooks.After(ctx, query, args, time.Since(start), err)
	return res, err
}

// Query executes a query that returns rows.
// The caller MUST close the returned *sql.Rows.
func (m *SessionManager) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx, cancel := m.applyDefaultTimeout(ctx)
	defer cancel()
	start := time.Now()
	m.hooks.Before(ctx, query, args)
	rows, err := m.sqldb.QueryContext(ctx, query, args...)
	err = m.mapErr(err)
	m.hooks.After(ctx, query, args, time.Since(start), err)
	return rows, err
}

// QueryRow executes a query expected to return at most one row.
// Use Scan() on the returned *Row; ErrNotFound is returned when no row
// matches.
func (m *SessionManager) QueryRow(ctx context.Context, query string, args ...any) *Row {
	ctx, cancel := m.applyDefaultTimeout(ctx)
	defer cancel()
	start := time.Now()
	m.hooks.Before(ctx, query, args)
	raw := m.sqldb.QueryRowContext(ctx, query, args...)
	m.hooks.After(ctx, query, args, time.Since(start), nil) // err unknown until Scan
	return &Row{raw: raw, errMap: m.errMap}
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (m *SessionManager) applyDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.DefaultTimeout == 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {} // caller already set a deadline
	}
	return context.WithTimeout(ctx, m.cfg.DefaultTimeout)
}

func (m *SessionManager) mapErr(err error) error {
	if err == nil {
		return nil
	}
	return m.errMap.Map(err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Row — wraps *sql.Row to translate errors uniformly
// ─────────────────────────────────────────────────────────────────────────────

// Row wraps *sql.Row and maps errors through the unified error mapper.
type Row struct {
	raw    *sql.Row
	errMap ErrorMapper
}

// Scan copies columns from the matched row into dest values.
// ErrNotFound is returned when no row was found.
func (r *Row) Scan(dest ...any) error {
	err := r.raw.Scan(dest...)
	return r.errMap.Map(err)
}

// ─────────────────────────────────────────────────────────────────────────────
// DriverFromDSN — convenience for URL-style configuration
// ─────────────────────────────────────────────────────────────────────────────

// DriverFromDSN guesses the driver name from a URL-style DSN, so a single
// DATABASE_URL setting can select the driver the way the connection strings
// of managed platforms do.
func DriverFromDSN(dsn string) (string, error) {
	switch {
	case hasPrefix(dsn, "postgres://", "postgresql://"):
		return "postgres", nil
	case hasPrefix(dsn, "mysql://"):
		return "mysql", nil
	case hasPrefix(dsn, "sqlite3://", "sqlite://", "file:"):
		return "sqlite3", nil
	}
	return "", fmt.Errorf("apikit/db: cannot infer driver from DSN %q", redactDSN(dsn))
}

func hasPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if len(s) >= len(p) && s[:len(p)] == p {
			return true
		}
	}
	return false
}

// redactDSN strips everything after the scheme so credentials never end up
// in error messages or logs.
func redactDSN(dsn string) string {
	for i := 0; i < len(dsn); i++ {
		if dsn[i] == ':' {
			return dsn[:i] + "://…"
		}
	}
	return "…"
}
