// Package store is mnemo's composition root: the single client surface
// spec.md §6.3 describes, wiring the allocator, attribute registry, view
// compiler, and temporal dispatcher over one database connection pool.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"mnemo/internal/alloc"
	"mnemo/internal/bootstrap"
	"mnemo/internal/registry"
	"mnemo/internal/session"
	"mnemo/internal/viewcompiler"
)

// Options configures a Store (compare internal/apply.Options in the
// teacher's migration applier).
type Options struct {
	DSN string
	Out io.Writer
	In  io.Reader

	// MaxOpenConns and MaxIdleConns set the connection pool limits (mnemo.toml
	// [database] via internal/config), applied to the pool in Connect. Zero
	// leaves database/sql's default in place.
	MaxOpenConns int
	MaxIdleConns int

	// DefaultDoc is the documentation string substituted for DefineAttribute/
	// DefineView calls that declare no doc of their own (internal/config's
	// default_doc), so a store can require every attribute and view to carry
	// at least a placeholder doc without every caller repeating it.
	DefaultDoc string
}

// Store is the composition root a caller opens once per process.
type Store struct {
	db      *sql.DB
	options Options
	alloc   *alloc.Allocator
	reg     *registry.Registry
	views   *viewcompiler.Compiler
	sess    *session.Session
	out     io.Writer
	in      io.Reader
}

// New builds a Store with its dependencies wired, without opening a
// connection. Call Connect before using it.
func New(options Options) *Store {
	out := options.Out
	if out == nil {
		out = io.Discard
	}
	in := options.In
	if in == nil {
		in = os.Stdin
	}
	return &Store{options: options, out: out, in: in}
}

func (s *Store) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}

// Connect opens the database connection, pings it, and wires the
// allocator/registry/view-compiler/session dependencies against it.
func (s *Store) Connect(ctx context.Context) error {
	db, err := sql.Open("pgx", s.options.DSN)
	if err != nil {
		return fmt.Errorf("store: opening database connection: %w", err)
	}
	if pingErr := db.PingContext(ctx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			return fmt.Errorf("store: pinging database: %w; additionally failed to close: %w", pingErr, closeErr)
		}
		return fmt.Errorf("store: pinging database: %w", pingErr)
	}

	if s.options.MaxOpenConns > 0 {
		db.SetMaxOpenConns(s.options.MaxOpenConns)
	}
	if s.options.MaxIdleConns > 0 {
		db.SetMaxIdleConns(s.options.MaxIdleConns)
	}

	s.db = db
	s.alloc = alloc.New(db)
	s.reg = registry.New(db)
	s.views = viewcompiler.New(db, s.reg)
	s.sess = session.New(db)
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Bootstrap seeds the system attributes, enum entities, and introspection
// views a fresh database needs (spec.md §4.F). Safe to call against an
// already-bootstrapped database.
func (s *Store) Bootstrap(ctx context.Context) error {
	s.printf("bootstrapping schema-as-data...\n")
	return bootstrap.Run(ctx, s.db)
}

// DefineAttribute declares a new attribute (spec.md §6.3 define_attribute).
// A def with no Doc of its own falls back to Options.DefaultDoc, if set.
func (s *Store) DefineAttribute(ctx context.Context, def registry.Definition) (int64, error) {
	if def.Doc == "" {
		def.Doc = s.options.DefaultDoc
	}
	id, err := s.reg.DefineAttribute(ctx, def)
	if err != nil {
		return 0, err
	}
	s.printf("defined attribute %q (id %d)\n", def.Ident, id)
	return id, nil
}

// AttrID resolves an attribute ident to its entity id (spec.md §6.3
// attr_id).
func (s *Store) AttrID(ctx context.Context, ident string) (int64, error) {
	return s.reg.AttrIDDB(ctx, ident)
}

// AllocateEntity mints a fresh entity id in the named partition (spec.md
// §6.3 allocate_entity).
func (s *Store) AllocateEntity(ctx context.Context, partitionIdent string) (int64, error) {
	id, err := s.alloc.AllocateEntityDB(ctx, partitionIdent)
	return int64(id), err
}

// NewTransaction allocates a fresh transaction id (spec.md §6.3
// new_transaction).
func (s *Store) NewTransaction(ctx context.Context) (int64, error) {
	id, _, err := s.alloc.NewTransactionDB(ctx)
	return int64(id), err
}

// DefineView declares or redeclares a view (spec.md §6.3 define_view /
// update_view share this same regeneration path). A def with no Doc of its
// own falls back to Options.DefaultDoc, if set.
func (s *Store) DefineView(ctx context.Context, def viewcompiler.Definition) (notice string, err error) {
	if def.Doc == "" {
		def.Doc = s.options.DefaultDoc
	}
	notice, err = s.views.Define(ctx, def)
	if err != nil {
		return "", err
	}
	if notice != "" {
		s.printf("%s\n", notice)
	} else {
		s.printf("defined view %q\n", def.Name)
	}
	return notice, nil
}

// UpdateView is DefineView under the client surface's separate name
// (spec.md §6.3); both share viewcompiler's regeneration path.
func (s *Store) UpdateView(ctx context.Context, def viewcompiler.Definition) (string, error) {
	return s.DefineView(ctx, def)
}

// DeleteView retracts a view's definition and drops its generated views
// (spec.md §6.3 delete_view).
func (s *Store) DeleteView(ctx context.Context, name string) error {
	if err := s.views.Delete(ctx, name); err != nil {
		return err
	}
	s.printf("deleted view %q\n", name)
	return nil
}

// Query runs q against the database under current-state visibility.
func (s *Store) Query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, q, args...)
}

// QueryAsOf runs q atomically under the as-of viewpoint tx (spec.md §6.3
// query_as_of); a nil tx means current state. scan receives the result.
func (s *Store) QueryAsOf(ctx context.Context, q string, tx *int64, args []any, scan func(*sql.Rows) error) error {
	return s.sess.QueryAsOf(ctx, q, tx, args, scan)
}

// SetAsOf sets the as-of context for the rest of conn's session (spec.md
// §6.3 set_as_of).
func (s *Store) SetAsOf(ctx context.Context, conn *sql.Conn, tx *int64) error {
	return s.sess.SetAsOf(ctx, conn, tx)
}

// GetAsOf reads conn's current as-of context (spec.md §6.3 get_as_of).
func (s *Store) GetAsOf(ctx context.Context, conn *sql.Conn) (*int64, error) {
	return s.sess.GetAsOf(ctx, conn)
}

// WithAsOf runs f with conn's as-of context temporarily set to tx (spec.md
// §6.3 with_as_of).
func (s *Store) WithAsOf(ctx context.Context, conn *sql.Conn, tx *int64, f func() error) error {
	return s.sess.WithAsOf(ctx, conn, tx, f)
}

// DB exposes the underlying pool for callers that need a raw connection,
// e.g. to call SetAsOf/GetAsOf/WithAsOf on a specific *sql.Conn.
func (s *Store) DB() *sql.DB {
	return s.db
}
