package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemo/internal/bootstrap"
	"mnemo/internal/codec"
	"mnemo/internal/datom"
	"mnemo/internal/testdb"
)

func TestDefineAttributeRejectsUnknownValueType(t *testing.T) {
	r := New(nil)
	_, err := r.DefineAttribute(context.Background(), Definition{
		Ident: "person/email", ValueType: "bogus", Cardinality: "one",
	})
	var unknown *codec.UnknownValueTypeError
	require.ErrorAs(t, err, &unknown)
}

func TestDefineAttributeRejectsUnknownCardinality(t *testing.T) {
	r := New(nil)
	_, err := r.DefineAttribute(context.Background(), Definition{
		Ident: "person/email", ValueType: "text", Cardinality: "bogus",
	})
	var unknown *datom.UnknownCardinalityError
	require.ErrorAs(t, err, &unknown)
}

func TestDefineAttributeRejectsInvalidIdent(t *testing.T) {
	r := New(nil)
	_, err := r.DefineAttribute(context.Background(), Definition{
		Ident: "no-namespace", ValueType: "text", Cardinality: "one",
	})
	var invalid *InvalidIdentError
	require.ErrorAs(t, err, &invalid)
}

func TestDefineAttributeProvisionsRelationAndDatoms(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testdb.Open(t)
	ctx := context.Background()
	require.NoError(t, bootstrap.Run(ctx, db))

	r := New(db)
	id, err := r.DefineAttribute(ctx, Definition{
		Ident:       "person/email",
		ValueType:   "text",
		Cardinality: "one",
		Unique:      "identity",
		Doc:         "a person's email address",
	})
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	resolved, err := r.AttrIDDB(ctx, "person/email")
	require.NoError(t, err)
	assert.Equal(t, id, resolved)

	var count int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE table_name = 'attr_person_email'`,
	).Scan(&count))
	assert.Equal(t, 1, count)

	var unique string
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT v_typed FROM attr_db_unique WHERE e = $1 AND retracted_by IS NULL`, id,
	).Scan(&unique))
	assert.Equal(t, bootstrap.UniqueIdentity, mustAtoi(unique))
}

func TestAttrIDUnknownIdent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testdb.Open(t)
	ctx := context.Background()
	require.NoError(t, bootstrap.Run(ctx, db))

	r := New(db)
	_, err := r.AttrIDDB(ctx, "nope/nothing")
	var unknown *UnknownAttributeError
	require.ErrorAs(t, err, &unknown)
}

func mustAtoi(s string) int64 {
	var n int64
	for _, r := range s {
		n = n*10 + int64(r-'0')
	}
	return n
}
