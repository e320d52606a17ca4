package alloc

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Allocator mints entity ids and transaction ids against the `partitions`
// and `transactions` tables (spec.md §6.1). AllocateEntity and
// NewTransaction take an explicit querier so callers can allocate within
// their own transaction when they need read-your-writes visibility of the id
// before they commit; AllocateEntityDB and NewTransactionDB run each call in
// a transaction of their own when they don't.
type Allocator struct {
	db *sql.DB
}

// Querier is the subset of *sql.DB / *sql.Tx the allocator needs. Accepting
// the interface rather than a concrete type lets AllocateEntity and
// NewTransaction run inside a caller-managed transaction without the
// allocator importing database/sql's *Tx directly into its public surface.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// New builds an Allocator against db. db is only used by the convenience
// methods that allocate outside of a caller transaction (AllocateEntityDB,
// NewTransactionDB); AllocateEntity/NewTransaction take their Querier
// explicitly.
func New(db *sql.DB) *Allocator {
	return &Allocator{db: db}
}

// AllocateEntity mints a fresh entity id in the named partition: lock the
// partitions row, read next_id, increment it, encode
// (partition_id << 48) | next_id (spec.md §4.B). The lock is released when
// q's surrounding transaction commits or rolls back. The read and the
// increment are two statements; against the bare *sql.DB each runs in its
// own implicit transaction, so the lock does not span both (AllocateEntityDB
// wraps the call in one transaction instead).
func (a *Allocator) AllocateEntity(ctx context.Context, q Querier, partitionIdent string) (EntityID, error) {
	var partitionID int16
	var nextID int64
	err := q.QueryRowContext(ctx,
		`SELECT id, next_id FROM partitions WHERE ident = $1 FOR UPDATE`,
		partitionIdent,
	).Scan(&partitionID, &nextID)
	if err == sql.ErrNoRows {
		return 0, &UnknownPartitionError{Ident: partitionIdent}
	}
	if err != nil {
		return 0, fmt.Errorf("alloc: reading partition %q: %w", partitionIdent, err)
	}

	counter := nextID + 1
	if _, err := q.ExecContext(ctx,
		`UPDATE partitions SET next_id = $1 WHERE ident = $2`,
		counter, partitionIdent,
	); err != nil {
		return 0, fmt.Errorf("alloc: advancing partition %q: %w", partitionIdent, err)
	}

	return NewEntityID(PartitionID(partitionID), counter), nil
}

// NewTransaction allocates a fresh id from the `tx` partition and records
// (id, now()) in the transactions table (spec.md §4.B).
func (a *Allocator) NewTransaction(ctx context.Context, q Querier) (EntityID, time.Time, error) {
	txID, err := a.AllocateEntity(ctx, q, "tx")
	if err != nil {
		return 0, time.Time{}, err
	}

	var instant time.Time
	err = q.QueryRowContext(ctx,
		`INSERT INTO transactions (id, instant) VALUES ($1, now()) RETURNING instant`,
		int64(txID),
	).Scan(&instant)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("alloc: recording transaction %s: %w", txID, err)
	}
	return txID, instant, nil
}

// AllocateEntityDB is AllocateEntity against the bare *sql.DB, for callers
// outside of any surrounding transaction.
func (a *Allocator) AllocateEntityDB(ctx context.Context, partitionIdent string) (EntityID, error) {
	return withTx(ctx, a.db, func(tx *sql.Tx) (EntityID, error) {
		return a.AllocateEntity(ctx, tx, partitionIdent)
	})
}

// NewTransactionDB is NewTransaction against the bare *sql.DB.
func (a *Allocator) NewTransactionDB(ctx context.Context) (EntityID, time.Time, error) {
	type result struct {
		id      EntityID
		instant time.Time
	}
	r, err := withTx(ctx, a.db, func(tx *sql.Tx) (result, error) {
		id, instant, err := a.NewTransaction(ctx, tx)
		return result{id, instant}, err
	})
	return r.id, r.instant, err
}

func withTx[T any](ctx context.Context, db *sql.DB, f func(*sql.Tx) (T, error)) (T, error) {
	var zero T
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return zero, fmt.Errorf("alloc: beginning transaction: %w", err)
	}
	v, err := f(tx)
	if err != nil {
		_ = tx.Rollback()
		return zero, err
	}
	if err := tx.Commit(); err != nil {
		return zero, fmt.Errorf("alloc: committing transaction: %w", err)
	}
	return v, nil
}
