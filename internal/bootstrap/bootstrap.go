// Package bootstrap seeds the fixed system attributes, enum entities, and
// introspection views a fresh mnemo store needs before any client-declared
// schema exists (spec.md §4.F). Bootstrap runs once, inside a single host
// transaction, and is idempotent to re-run against an already-bootstrapped
// database: tables are created only when absent, seed rows use ON CONFLICT
// DO NOTHING, functions and views use CREATE OR REPLACE, and the db
// partition counter is only ever raised.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"mnemo/internal/codec"
	"mnemo/internal/datom"
)

const parentRelation = "datoms"

// Run seeds a fresh database: the partitions/transactions/datoms tables,
// the system attribute child relations, the bootstrap datoms at
// transaction 0, and the introspection views (spec.md §6.3).
func Run(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("bootstrap: beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := createCoreTables(ctx, tx); err != nil {
		return err
	}
	if err := seedPartitions(ctx, tx); err != nil {
		return err
	}
	if err := seedTransactionZero(ctx, tx); err != nil {
		return err
	}
	if err := createSystemAttributeRelations(ctx, tx); err != nil {
		return err
	}
	if err := seedSystemDatoms(ctx, tx); err != nil {
		return err
	}
	if err := createVisibilityFunctions(ctx, tx); err != nil {
		return err
	}
	if err := advancePartitionCounter(ctx, tx); err != nil {
		return err
	}
	if err := createIntrospectionViews(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("bootstrap: committing: %w", err)
	}
	return nil
}

func createCoreTables(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS partitions (
	id bigint PRIMARY KEY,
	ident text NOT NULL UNIQUE,
	next_id bigint NOT NULL
)`); err != nil {
		return fmt.Errorf("bootstrap: creating partitions: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS transactions (
	id bigint PRIMARY KEY,
	instant timestamptz NOT NULL
)`); err != nil {
		return fmt.Errorf("bootstrap: creating transactions: %w", err)
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
		parentRelation,
	).Scan(&exists); err != nil {
		return fmt.Errorf("bootstrap: checking for datoms relation: %w", err)
	}
	if exists {
		return nil
	}
	for _, step := range datom.ParentDDL(parentRelation).Steps {
		if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
			return fmt.Errorf("bootstrap: %s: %w", step.Kind, err)
		}
	}
	return nil
}

func seedPartitions(ctx context.Context, tx *sql.Tx) error {
	partitions := []struct {
		id    int
		ident string
	}{
		{0, "db"}, {1, "tx"}, {2, "user"},
	}
	for _, p := range partitions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO partitions (id, ident, next_id) VALUES ($1, $2, 0)
			 ON CONFLICT (id) DO NOTHING`,
			p.id, p.ident,
		); err != nil {
			return fmt.Errorf("bootstrap: seeding partition %q: %w", p.ident, err)
		}
	}
	return nil
}

func seedTransactionZero(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (id, instant) VALUES (0, now())
		 ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("bootstrap: seeding transaction 0: %w", err)
	}
	return nil
}

// createSystemAttributeRelations provisions the child relation for every
// system attribute (db/ident, db/valueType, ...) the way the attribute
// registry (internal/registry) would for a client-declared attribute.
// Relations that already exist are left as they are.
func createSystemAttributeRelations(ctx context.Context, tx *sql.Tx) error {
	for _, a := range systemAttributes {
		spec := datom.NewRelationSpec(parentRelation, datom.AttributeDef{
			ID: a.ID, Ident: a.Ident, ValueType: a.ValueType,
		})

		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
			spec.Name,
		).Scan(&exists); err != nil {
			return fmt.Errorf("bootstrap: checking relation %q: %w", spec.Name, err)
		}
		if exists {
			continue
		}
		for _, step := range spec.Plan().Steps {
			if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
				return fmt.Errorf("bootstrap: provisioning %q: %w", spec.Name, err)
			}
		}
	}
	return nil
}

// seedSystemDatoms asserts, at transaction 0, every fact from spec.md §4.F:
// the enum entities' own idents, then each system attribute's ident,
// valueType, cardinality, and optional unique/doc facts.
func seedSystemDatoms(ctx context.Context, tx *sql.Tx) error {
	identSpec := codec.Lookup(codec.Text)
	refSpec := codec.Lookup(codec.Ref)

	insertFact := func(relation string, e, a int64, raw string) error {
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (e, a, v_raw, tx) VALUES ($1, $2, $3, 0)
			 ON CONFLICT (e, a, v_raw, tx) DO NOTHING`, quoteIdent(relation)),
			e, a, raw)
		if err != nil {
			return fmt.Errorf("bootstrap: asserting (%d, %d): %w", e, a, err)
		}
		return nil
	}

	identRelation := "attr_db_ident"

	for _, en := range enumEntities() {
		canonical, _ := identSpec.Parse(en.Ident)
		if err := insertFact(identRelation, en.ID, AttrDBIdent, identSpec.EncodeRaw(canonical)); err != nil {
			return err
		}
	}

	for _, a := range systemAttributes {
		canonicalIdent, _ := identSpec.Parse(a.Ident)
		if err := insertFact(identRelation, a.ID, AttrDBIdent, identSpec.EncodeRaw(canonicalIdent)); err != nil {
			return err
		}

		vtRaw, _ := refSpec.Parse(fmt.Sprintf("%d", ValueTypeEntity(a.ValueType)))
		if err := insertFact("attr_db_valueType", a.ID, AttrDBValueType, refSpec.EncodeRaw(vtRaw)); err != nil {
			return err
		}

		cardID := CardinalityOne
		if a.Cardinality == "many" {
			cardID = CardinalityMany
		}
		cardRaw, _ := refSpec.Parse(fmt.Sprintf("%d", cardID))
		if err := insertFact("attr_db_cardinality", a.ID, AttrDBCardinality, refSpec.EncodeRaw(cardRaw)); err != nil {
			return err
		}

		if a.Unique != 0 {
			uniqRaw, _ := refSpec.Parse(fmt.Sprintf("%d", a.Unique))
			if err := insertFact("attr_db_unique", a.ID, AttrDBUnique, refSpec.EncodeRaw(uniqRaw)); err != nil {
				return err
			}
		}

		if a.Doc != "" {
			docRaw, _ := identSpec.Parse(a.Doc)
			if err := insertFact("attr_db_doc", a.ID, AttrDBDoc, identSpec.EncodeRaw(docRaw)); err != nil {
				return err
			}
		}
	}
	return nil
}

func advancePartitionCounter(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE partitions SET next_id = $1 WHERE ident = 'db' AND next_id < $1`,
		NextUserID)
	if err != nil {
		return fmt.Errorf("bootstrap: advancing db partition counter: %w", err)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}
