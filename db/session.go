package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ─────────────────────────────────────────────────────────────────────────────
// Session — one pooled connection, one transaction
// ─────────────────────────────────────────────────────────────────────────────

// Session is a unit-of-work bound to a single pooled connection. It is
// created per request, reaches exactly one terminal state (committed or
// rolled back), and always releases its connection back to the pool as the
// final step. A Session is owned exclusively by the request that created
// it and must never be shared across concurrent requests.
type Session struct {
	conn   *sql.Conn
	tx     *sql.Tx
	hooks  hookChain
	errMap ErrorMapper
	log    zerolog.Logger
	done   bool
}

// Exec executes a statement that does not return rows.
func (s *Session) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	s.hooks.Before(ctx, query, args)
	res, err := s.tx.ExecContext(ctx, query, args...)
	err = s.mapErr(err)
	s.hooks.After(ctx, query, args, time.Since(start), err)
	return res, err
}

// Query executes a query returning rows. The caller MUST close *sql.Rows.
func (s *Session) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	s.hooks.Before(ctx, query, args)
	rows, err := s.tx.QueryContext(ctx, query, args...)
	err = s.mapErr(err)
	s.hooks.After(ctx, query, args, time.Since(start), err)
	return rows, err
}

// QueryRow executes a query expected to return at most one row.
func (s *Session) QueryRow(ctx context.Context, query string, args ...any) *Row {
	start := time.Now()
	s.hooks.Before(ctx, query, args)
	raw := s.tx.QueryRowContext(ctx, query, args...)
	s.hooks.After(ctx, query, args, time.Since(start), nil)
	return &Row{raw: raw, errMap: s.errMap}
}

func (s *Session) mapErr(err error) error {
	if err == nil {
		return nil
	}
	return s.errMap.Map(err)
}

// Commit commits the transaction and releases the connection. If the commit
// itself fails, a rollback is attempted before the original commit error is
// propagated, so no half-applied state survives on the connection.
func (s *Session) Commit() error { return s.finish(false) }

// Rollback rolls the transaction back and releases the connection.
func (s *Session) Rollback() error { return s.finish(true) }

// finish drives the session to its terminal state. Whatever happens to the
// commit or rollback, the connection is released (or discarded) as the
// final step — it must never leak.
func (s *Session) finish(rollback bool) error {
	if s.done {
		return nil
	}
	s.done = true

	var err error
	discard := false

	if rollback {
		if rbErr := s.tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			// A connection whose rollback failed cannot be trusted for
			// reuse: log and discard it instead of returning it to the pool.
			s.log.Error().Err(rbErr).Msg("session rollback failed; discarding connection")
			discard = true
			err = s.mapErr(rbErr)
		}
	} else {
		if cmErr := s.tx.Commit(); cmErr != nil {
			if rbErr := s.tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.Error().Err(rbErr).Msg("rollback after failed commit also failed; discarding connection")
				discard = true
			}
			err = s.mapErr(cmErr)
		}
	}

	if discard {
		// Returning driver.ErrBadConn from Raw marks the underlying
		// connection bad so the pool closes it instead of reusing it.
		_ = s.conn.Raw(func(any) error { return driver.ErrBadConn })
	}
	_ = s.conn.Close()
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Acquisition
// ─────────────────────────────────────────────────────────────────────────────

// Session acquires a pooled connection, optionally pre-pings it, and begins
// a transaction on it. The returned Session must be terminated with Commit
// or Rollback (or use Scope, which does this automatically).
//
// When the pool and its overflow allowance are saturated, the call blocks
// until a connection frees up or AcquireTimeout elapses, in which case it
// fails with ErrPoolExhausted.
func (m *SessionManager) Session(ctx context.Context) (*Session, error) {
	if m.isClosed() {
		return nil, ErrNotInitialized
	}

	acquireCtx := ctx
	cancel := context.CancelFunc(func() {})
	if m.cfg.AcquireTimeout > 0 {
		acquireCtx, cancel = context.WithTimeout(ctx, m.cfg.AcquireTimeout)
	}
	defer cancel()

	conn, err := m.acquireConn(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			// Our acquire timeout fired while the caller's context is still
			// live: the pool is exhausted, not the request timed out.
			return nil, &DBError{Sentinel: ErrPoolExhausted, Cause: err}
		}
		return nil, m.mapErr(err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		_ = conn.Close()
		return nil, m.mapErr(err)
	}

	return &Session{
		conn:   conn,
		tx:     tx,
		hooks:  m.hooks,
		errMap: m.errMap,
		log:    m.log(),
	}, nil
}

// acquireConn pins a connection from the pool, applying the pre-ping policy:
// a connection that fails the liveness probe is discarded and replaced with
// a fresh one before being handed out.
func (m *SessionManager) acquireConn(ctx context.Context) (*sql.Conn, error) {
	conn, err := m.sqldb.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if !m.cfg.PrePing {
		return conn, nil
	}

	if err := conn.PingContext(ctx); err == nil {
		return conn, nil
	}
	// Stale connection: mark it bad so the pool drops it, then retry once
	// on a replacement.
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()

	conn, err = m.sqldb.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scope — the primary session helper
// ─────────────────────────────────────────────────────────────────────────────

// Scope acquires a session, executes fn, and drives the session to its
// terminal state: commit on a nil return, rollback on any error or panic.
// The connection is released on every exit path, including caller
// cancellation mid-request — cancellation short-circuits fn but never the
// cleanup.
//
//	err := mgr.Scope(ctx, func(s *db.Session) error {
//	    users := repo.NewUserRepo(s)
//	    _, err := users.Insert(ctx, params)
//	    return err
//	})
func (m *SessionManager) Scope(ctx context.Context, fn func(*Session) error) (err error) {
	s, err := m.Session(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = s.Rollback()
			panic(p) // re-panic after rollback
		}
		if err != nil {
			if rbErr := s.Rollback(); rbErr != nil {
				// Wrap both errors so callers see the full picture.
				err = fmt.Errorf("apikit/db: rollback failed (%v) after original error: %w", rbErr, err)
			}
			return
		}
		err = s.Commit()
	}()

	err = fn(s)
	return err
}

// log returns the package logger carried in the hook chain's log hook when
// present, else a disabled logger. Session cleanup failures are rare enough
// that routing them through the query-log hook's logger keeps wiring simple.
func (m *SessionManager) log() zerolog.Logger {
	for _, h := range m.hooks.hooks {
		if lh, ok := h.(*logHook); ok {
			return lh.logger
		}
	}
	return zerolog.Nop()
}

// ─────────────────────────────────────────────────────────────────────────────
// Querier — the shared interface accepted by repositories
// ─────────────────────────────────────────────────────────────────────────────

// Querier is the minimal interface shared by both *SessionManager and
// *Session. Repository constructors should accept Querier so they work
// unchanged inside a transactional session.
//
//	type UserRepo struct{ q db.Querier }
//	func NewUserRepo(q db.Querier) *UserRepo { return &UserRepo{q: q} }
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *Row
}

// Verify at compile-time that both types satisfy Querier.
var (
	_ Querier = (*SessionManager)(nil)
	_ Querier = (*Session)(nil)
)
