// Package session implements the temporal dispatcher of spec.md §4.J: a
// single as-of context read by every generated view's dispatching branch,
// set either for the whole session (SetAsOf/WithAsOf) or transaction-
// locally for a single query (QueryAsOf), so concurrent queries against the
// same connection pool never race on each other's visibility context.
package session

import (
	"context"
	"database/sql"
	"fmt"

	"mnemo/internal/visibility"
)

// Session wraps a *sql.DB with the as-of session variable operations
// spec.md §6.3 names: set_as_of/get_as_of/with_as_of/query_as_of.
type Session struct {
	db *sql.DB
}

// New builds a Session over db.
func New(db *sql.DB) *Session {
	return &Session{db: db}
}

// SetAsOf sets the as-of context for the remainder of the current session
// (spec.md §6.2 as_of_tx). A nil tx clears it back to "current".
func (s *Session) SetAsOf(ctx context.Context, conn *sql.Conn, tx *int64) error {
	_, err := conn.ExecContext(ctx, `SELECT set_config('mnemo.as_of_tx', $1, false)`, asOfParam(tx))
	if err != nil {
		return fmt.Errorf("session: setting as-of: %w", err)
	}
	return nil
}

// GetAsOf reads the as-of context currently in effect on conn, nil meaning
// "current state".
func (s *Session) GetAsOf(ctx context.Context, conn *sql.Conn) (*int64, error) {
	var raw sql.NullString
	if err := conn.QueryRowContext(ctx, `SELECT current_setting('mnemo.as_of_tx', true)`).Scan(&raw); err != nil {
		return nil, fmt.Errorf("session: reading as-of: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var n int64
	if _, err := fmt.Sscanf(raw.String, "%d", &n); err != nil {
		return nil, fmt.Errorf("session: parsing as-of %q: %w", raw.String, err)
	}
	return &n, nil
}

// WithAsOf runs f with conn's as-of context set to tx, restoring the prior
// context afterward regardless of f's outcome.
func (s *Session) WithAsOf(ctx context.Context, conn *sql.Conn, tx *int64, f func() error) error {
	prior, err := s.GetAsOf(ctx, conn)
	if err != nil {
		return err
	}
	if err := s.SetAsOf(ctx, conn, tx); err != nil {
		return err
	}
	defer func() { _ = s.SetAsOf(ctx, conn, prior) }()
	return f()
}

// QueryAsOf runs query atomically with the as-of context set to tx for
// that query alone: the set_config call uses is_local=true, which scopes it
// to the current transaction, so it never leaks to other statements on the
// same connection (spec.md §6.3 query_as_of, §4.J). scan receives the
// result rows inside that same transaction; QueryAsOf commits once scan
// returns and rolls back on any error, including one returned by scan.
func (s *Session) QueryAsOf(ctx context.Context, q string, tx *int64, args []any, scan func(*sql.Rows) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: beginning transaction: %w", err)
	}
	defer func() { _ = dbTx.Rollback() }()

	if _, err := dbTx.ExecContext(ctx, `SELECT set_config('mnemo.as_of_tx', $1, true)`, asOfParam(tx)); err != nil {
		return fmt.Errorf("session: setting transaction-local as-of: %w", err)
	}
	rows, err := dbTx.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("session: running as-of query: %w", err)
	}
	defer rows.Close()

	if err := scan(rows); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return dbTx.Commit()
}

// AsOf converts a nullable transaction id into a visibility.AsOf viewpoint.
func AsOf(tx *int64) visibility.AsOf {
	if tx == nil {
		return visibility.Current
	}
	return visibility.At(*tx)
}

func asOfParam(tx *int64) string {
	if tx == nil {
		return ""
	}
	return fmt.Sprintf("%d", *tx)
}
