package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
)

// createIntrospectionViews defines the five read-only system views named in
// spec.md §6.3. Their shape is not specified by the distilled spec (§4.F
// only seeds the underlying system attributes); mnemo defines them as plain
// projections of the db/* and db.view/* facts, the self-describing
// counterpart to the teacher's per-engine internal/introspect packages,
// except introspecting mnemo's own schema-as-data instead of a foreign
// database's catalog.
//
// `defined_attributes` and `defined_views` are, today, read-only aliases of
// `attributes` and `views`: the admin mutation path spec.md §4.G frames as
// "an insertion into defined_attributes" is implemented as the Go-level
// registry.DefineAttribute / viewcompiler.Define operations, not as
// INSTEAD OF triggers on these two views.
func createIntrospectionViews(ctx context.Context, tx *sql.Tx) error {
	statements := []string{
		`CREATE OR REPLACE VIEW attributes AS
			SELECT
				i.e AS id,
				i.v_typed AS ident,
				vt.v_typed AS value_type,
				c.v_typed AS cardinality,
				u.v_typed AS unique,
				d.v_typed AS doc
			FROM attr_db_ident i
			JOIN "attr_db_valueType" vt ON vt.e = i.e AND vt.retracted_by IS NULL
			JOIN attr_db_cardinality c ON c.e = i.e AND c.retracted_by IS NULL
			LEFT JOIN attr_db_unique u ON u.e = i.e AND u.retracted_by IS NULL
			LEFT JOIN attr_db_doc d ON d.e = i.e AND d.retracted_by IS NULL
			WHERE i.retracted_by IS NULL`,

		`CREATE OR REPLACE VIEW views AS
			SELECT
				i.e AS id,
				i.v_typed AS ident,
				d.v_typed AS doc
			FROM attr_db_view_ident i
			LEFT JOIN attr_db_view_doc d ON d.e = i.e AND d.retracted_by IS NULL
			WHERE i.retracted_by IS NULL`,

		`CREATE OR REPLACE VIEW view_attributes AS
			SELECT a.e AS view_id, a.v_typed AS attribute_id, true AS required
			FROM attr_db_view_attributes a
			WHERE a.retracted_by IS NULL
			UNION ALL
			SELECT o.e AS view_id, o.v_typed AS attribute_id, false AS required
			FROM attr_db_view_optional_attributes o
			WHERE o.retracted_by IS NULL`,

		`CREATE OR REPLACE VIEW defined_attributes AS SELECT * FROM attributes`,

		`CREATE OR REPLACE VIEW defined_views AS SELECT * FROM views`,
	}

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap: creating introspection view: %w", err)
		}
	}
	return nil
}
