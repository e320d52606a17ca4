package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemo/internal/codec"
	"mnemo/internal/testdb"
)

func TestValueTypeEntityIDs(t *testing.T) {
	// spec.md §8 scenario 1: attr_id("db.type/ref") = 112.
	assert.Equal(t, int64(112), ValueTypeEntity(codec.Ref))
	assert.Equal(t, int64(100), ValueTypeEntity(codec.Text))
}

func TestRunIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testdb.Open(t)
	ctx := context.Background()

	require.NoError(t, Run(ctx, db))
	require.NoError(t, Run(ctx, db), "bootstrap must be safe to re-run")

	var identRaw string
	err := db.QueryRowContext(ctx,
		`SELECT v_typed FROM attr_db_ident WHERE e = $1 AND a = $2 AND retracted_by IS NULL`,
		AttrDBIdent, AttrDBIdent,
	).Scan(&identRaw)
	require.NoError(t, err)
	assert.Equal(t, "db/ident", identRaw)
}

func TestBootstrapSeedsPartitions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testdb.Open(t)
	ctx := context.Background()
	require.NoError(t, Run(ctx, db))

	rows, err := db.QueryContext(ctx, `SELECT ident FROM partitions ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var idents []string
	for rows.Next() {
		var ident string
		require.NoError(t, rows.Scan(&ident))
		idents = append(idents, ident)
	}
	assert.Equal(t, []string{"db", "tx", "user"}, idents)

	var nextID int64
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT next_id FROM partitions WHERE ident = 'db'`).Scan(&nextID))
	assert.Equal(t, NextUserID, nextID)
}

func TestBootstrapResolvesValueTypeCardinalityIdents(t *testing.T) {
	// spec.md §8 scenario 1.
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testdb.Open(t)
	ctx := context.Background()
	require.NoError(t, Run(ctx, db))

	var ident string
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT v_typed FROM attr_db_ident WHERE e = $1 AND retracted_by IS NULL`,
		ValueTypeEntity(codec.Ref)).Scan(&ident))
	assert.Equal(t, "db.type/ref", ident)

	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT v_typed FROM attr_db_ident WHERE e = $1 AND retracted_by IS NULL`,
		CardinalityMany).Scan(&ident))
	assert.Equal(t, "db.cardinality/many", ident)
}
