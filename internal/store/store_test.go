package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"mnemo/internal/registry"
	"mnemo/internal/viewcompiler"
)

func newConnectedStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("mnemo_test"),
		postgres.WithUsername("mnemo"),
		postgres.WithPassword("mnemo"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s := New(Options{DSN: dsn})
	require.NoError(t, s.Connect(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	s := newConnectedStore(t)

	require.NoError(t, s.Bootstrap(ctx))

	emailID, err := s.DefineAttribute(ctx, registry.Definition{
		Ident: "person/email", ValueType: "text", Cardinality: "one", Unique: "identity",
	})
	require.NoError(t, err)
	assert.Greater(t, emailID, int64(0))

	resolved, err := s.AttrID(ctx, "person/email")
	require.NoError(t, err)
	assert.Equal(t, emailID, resolved)

	_, err = s.DefineView(ctx, viewcompiler.Definition{
		Name:     "person",
		Required: []string{"person/email"},
	})
	require.NoError(t, err)

	entity, err := s.AllocateEntity(ctx, "user")
	require.NoError(t, err)
	assert.Greater(t, entity, int64(0))

	txn, err := s.NewTransaction(ctx)
	require.NoError(t, err)
	assert.Greater(t, txn, int64(0))

	_, err = s.DB().ExecContext(ctx, `INSERT INTO person (email) VALUES ('a@example.com')`)
	require.NoError(t, err)

	var email string
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT email FROM person_current WHERE email = 'a@example.com'`).Scan(&email))
	assert.Equal(t, "a@example.com", email)

	require.NoError(t, s.DeleteView(ctx, "person"))
}

func TestStoreUpdateDeleteRoundTripPreservesHistory(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	s := newConnectedStore(t)

	require.NoError(t, s.Bootstrap(ctx))

	_, err := s.DefineAttribute(ctx, registry.Definition{
		Ident: "person/email", ValueType: "text", Cardinality: "one", Unique: "identity",
	})
	require.NoError(t, err)

	_, err = s.DefineView(ctx, viewcompiler.Definition{Name: "person", Required: []string{"person/email"}})
	require.NoError(t, err)

	var id int64
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`INSERT INTO person (email) VALUES ('a@example.com') RETURNING id`).Scan(&id))

	var txBeforeUpdate int64
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`SELECT tx FROM attr_person_email WHERE e = $1 AND retracted_by IS NULL`, id).Scan(&txBeforeUpdate))

	_, err = s.DB().ExecContext(ctx, `UPDATE person SET email = 'b@example.com' WHERE id = $1`, id)
	require.NoError(t, err)

	var current string
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`SELECT email FROM person_current WHERE id = $1`, id).Scan(&current))
	assert.Equal(t, "b@example.com", current)

	var historyCount int
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`SELECT count(*) FROM person_history WHERE id = $1`, id).Scan(&historyCount))
	assert.Equal(t, 2, historyCount, "both the retracted and current email must remain visible in history")

	// QueryAsOf exercises internal/session.Session's transaction-scoped as-of
	// context against a real connection: pinned to the transaction before the
	// update, the dispatching view must still show the original value.
	err = s.QueryAsOf(ctx, `SELECT email FROM person WHERE id = $1`, &txBeforeUpdate, []any{id}, func(rows *sql.Rows) error {
		require.True(t, rows.Next())
		var email string
		if err := rows.Scan(&email); err != nil {
			return err
		}
		assert.Equal(t, "a@example.com", email)
		return nil
	})
	require.NoError(t, err)

	_, err = s.DB().ExecContext(ctx, `DELETE FROM person WHERE id = $1`, id)
	require.NoError(t, err)

	var afterDeleteCurrent int
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`SELECT count(*) FROM person_current WHERE id = $1`, id).Scan(&afterDeleteCurrent))
	assert.Equal(t, 0, afterDeleteCurrent)

	var historyAfterDelete int
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`SELECT count(*) FROM person_history WHERE id = $1`, id).Scan(&historyAfterDelete))
	assert.Equal(t, 2, historyAfterDelete, "delete retracts current datoms but must not erase history")
}
