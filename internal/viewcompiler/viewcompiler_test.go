package viewcompiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemo/internal/bootstrap"
	"mnemo/internal/registry"
	"mnemo/internal/testdb"
)

func TestDefineViewRejectsNoRequiredAttributesOnFirstDefine(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testdb.Open(t)
	ctx := context.Background()
	require.NoError(t, bootstrap.Run(ctx, db))

	c := New(db, registry.New(db))
	_, err := c.Define(ctx, Definition{Name: "empty_view"})
	var tooFew *ViewHasNoRequiredAttributesError
	require.ErrorAs(t, err, &tooFew)
}

func TestDefineViewCreatesThreeViewsAndTriggers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testdb.Open(t)
	ctx := context.Background()
	require.NoError(t, bootstrap.Run(ctx, db))

	reg := registry.New(db)
	_, err := reg.DefineAttribute(ctx, registry.Definition{Ident: "person/email", ValueType: "text", Cardinality: "one"})
	require.NoError(t, err)
	_, err = reg.DefineAttribute(ctx, registry.Definition{Ident: "person/name", ValueType: "text", Cardinality: "one"})
	require.NoError(t, err)

	c := New(db, reg)
	notice, err := c.Define(ctx, Definition{
		Name:     "person",
		Required: []string{"person/email"},
		Optional: []string{"person/name"},
	})
	require.NoError(t, err)
	assert.Empty(t, notice)

	for _, v := range []string{"person", "person_current", "person_history"} {
		var count int
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT count(*) FROM information_schema.views WHERE table_name = $1`, v,
		).Scan(&count))
		assert.Equal(t, 1, count, "expected view %q to exist", v)
	}

	var trigCount int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT count(*) FROM information_schema.triggers WHERE event_object_table IN ('person', 'person_current')`,
	).Scan(&trigCount))
	assert.Equal(t, 6, trigCount) // 3 events x 2 views
}

func TestDefineViewUnknownAttributeFails(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testdb.Open(t)
	ctx := context.Background()
	require.NoError(t, bootstrap.Run(ctx, db))

	c := New(db, registry.New(db))
	_, err := c.Define(ctx, Definition{Name: "ghost", Required: []string{"nope/nothing"}})
	var unknown *registry.UnknownAttributeError
	require.ErrorAs(t, err, &unknown)
}

func TestDefineViewCardinalityManyAnchorFoldsToOneRow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testdb.Open(t)
	ctx := context.Background()
	require.NoError(t, bootstrap.Run(ctx, db))

	reg := registry.New(db)
	_, err := reg.DefineAttribute(ctx, registry.Definition{Ident: "person/tag", ValueType: "text", Cardinality: "many"})
	require.NoError(t, err)

	c := New(db, reg)
	_, err = c.Define(ctx, Definition{Name: "tagged", Required: []string{"person/tag"}})
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO tagged (tag) VALUES (ARRAY['red', 'blue'])`)
	require.NoError(t, err)

	var currentCount int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM tagged_current`).Scan(&currentCount))
	assert.Equal(t, 1, currentCount, "a cardinality-many anchor attribute must still fold to one row per entity")

	var tagLen int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT array_length(tag, 1) FROM tagged_current`).Scan(&tagLen))
	assert.Equal(t, 2, tagLen)

	var historyCount int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM tagged_history`).Scan(&historyCount))
	assert.Equal(t, 1, historyCount, "V_history must fold the cardinality-many anchor the same way V_current does")
}

func TestDeleteViewDropsGeneratedViews(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testdb.Open(t)
	ctx := context.Background()
	require.NoError(t, bootstrap.Run(ctx, db))

	reg := registry.New(db)
	_, err := reg.DefineAttribute(ctx, registry.Definition{Ident: "person/email", ValueType: "text", Cardinality: "one"})
	require.NoError(t, err)

	c := New(db, reg)
	_, err = c.Define(ctx, Definition{Name: "person", Required: []string{"person/email"}})
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, "person"))

	var count int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT count(*) FROM information_schema.views WHERE table_name = 'person'`,
	).Scan(&count))
	assert.Equal(t, 0, count)
}
