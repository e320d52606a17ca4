// Package testdb spins up an ephemeral PostgreSQL container for integration
// tests, mirroring the teacher's apply_connector_test.go setupMySQL helper
// one-for-one but against testcontainers-go's postgres module and pgx
// instead of MySQL.
package testdb

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// Open starts a PostgreSQL container, opens a *sql.DB against it, and
// registers cleanup for both. Tests that call Open should also call
// testing.Short() themselves and skip before reaching it, since starting a
// container is slow and requires a container runtime.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("mnemo_test"),
		postgres.WithUsername("mnemo"),
		postgres.WithPassword("mnemo"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err, "failed to open direct DB connection")
	require.NoError(t, db.PingContext(ctx), "failed to ping database")
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close DB connection: %v", err)
		}
	})

	return db
}
