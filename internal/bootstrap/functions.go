package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
)

// createVisibilityFunctions defines the PL/pgSQL helpers the generated
// views and INSTEAD-OF triggers call at query/write time (spec.md §4.I,
// §4.J): entity/transaction allocation usable from inside a trigger body,
// and the as-of session-variable plumbing the dispatching view `V` and
// `V_history` read.
//
// mnemo_as_of_tx/mnemo_visible are STABLE: PostgreSQL evaluates a STABLE
// function once per statement and treats the result as constant for the
// rest of that statement's planning and execution, which is what lets the
// planner prune the unused branch of V's UNION ALL (spec.md §4.H) without
// the result going stale across different statements or transactions.
func createVisibilityFunctions(ctx context.Context, tx *sql.Tx) error {
	statements := []string{
		`CREATE OR REPLACE FUNCTION mnemo_allocate_entity(partition_ident text) RETURNS bigint AS $$
DECLARE
	pid smallint;
	next bigint;
BEGIN
	SELECT id, next_id + 1 INTO pid, next FROM partitions WHERE ident = partition_ident FOR UPDATE;
	IF NOT FOUND THEN
		RAISE EXCEPTION 'mnemo: unknown partition %', partition_ident;
	END IF;
	UPDATE partitions SET next_id = next WHERE ident = partition_ident;
	RETURN (pid::bigint << 48) | next;
END;
$$ LANGUAGE plpgsql;`,

		`CREATE OR REPLACE FUNCTION mnemo_new_transaction() RETURNS bigint AS $$
DECLARE
	txid bigint;
BEGIN
	txid := mnemo_allocate_entity('tx');
	INSERT INTO transactions (id, instant) VALUES (txid, now());
	RETURN txid;
END;
$$ LANGUAGE plpgsql;`,

		`CREATE OR REPLACE FUNCTION mnemo_as_of_tx() RETURNS bigint AS $$
	SELECT nullif(current_setting('mnemo.as_of_tx', true), '')::bigint;
$$ LANGUAGE sql STABLE;`,

		`CREATE OR REPLACE FUNCTION mnemo_visible(datom_tx bigint, datom_retracted_by bigint) RETURNS boolean AS $$
	SELECT CASE
		WHEN mnemo_as_of_tx() IS NULL THEN datom_retracted_by IS NULL
		WHEN datom_tx > mnemo_as_of_tx() THEN false
		ELSE datom_retracted_by IS NULL OR datom_retracted_by > mnemo_as_of_tx()
	END;
$$ LANGUAGE sql STABLE;`,
	}

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap: creating visibility function: %w", err)
		}
	}
	return nil
}
