// Package viewcompiler turns a view definition (spec.md §4.H) into the
// three generated views (`V`, `V_current`, `V_history`) and the three
// INSTEAD-OF triggers (spec.md §4.I, via internal/dml) that make it
// writable. Define serves both first declaration and redefinition and
// funnels through one regenerate step: drop the three views (cascading
// their triggers) and re-emit from the current definition, the state
// machine spec.md's "View regeneration" describes. Delete retracts the
// definition and drops the three views without re-emitting them.
package viewcompiler

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"mnemo/internal/alloc"
	"mnemo/internal/bootstrap"
	"mnemo/internal/codec"
	"mnemo/internal/datom"
	"mnemo/internal/dml"
	"mnemo/internal/ident"
	"mnemo/internal/registry"
	"mnemo/internal/sqlast"
	"mnemo/internal/visibility"
)

// Definition is the client-supplied shape of a view (spec.md §6.3
// define_view / update_view).
type Definition struct {
	Name     string
	Required []string
	Optional []string
	Doc      string
}

// ViewHasNoRequiredAttributesError reports that a view definition names no
// required attributes; per spec.md §4.H this is non-fatal for
// update/delete-triggered regeneration (the caller gets a notice and the
// three views are left absent) but fatal for the very first Define.
type ViewHasNoRequiredAttributesError struct {
	Name string
}

func (e *ViewHasNoRequiredAttributesError) Error() string {
	return fmt.Sprintf("viewcompiler: view %q declares no required attributes", e.Name)
}

// resolvedAttr pairs an attribute's definition with the column name and
// join alias it is rendered under.
type resolvedAttr struct {
	def      datom.AttributeDef
	relation string
	column   string
	alias    string
	required bool
}

// Compiler compiles view definitions against db, resolving attribute idents
// through reg.
type Compiler struct {
	db  *sql.DB
	reg *registry.Registry
	a   *alloc.Allocator
}

// New builds a Compiler.
func New(db *sql.DB, reg *registry.Registry) *Compiler {
	return &Compiler{db: db, reg: reg, a: alloc.New(db)}
}

// Define declares or redeclares a view: asserts its definition datoms and
// regenerates V/V_current/V_history plus their triggers. If def has no
// required attributes, regeneration is skipped and a non-empty notice is
// returned; this is only an error (ViewHasNoRequiredAttributesError) when
// the view has never been defined before, and then nothing is stored.
func (c *Compiler) Define(ctx context.Context, def Definition) (notice string, err error) {
	attrs, err := c.resolveAttrs(ctx, c.db, def)
	if err != nil {
		return "", err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("viewcompiler: beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, existed, err := c.upsertDefinitionDatoms(ctx, tx, def)
	if err != nil {
		return "", err
	}

	if len(def.Required) == 0 {
		if !existed {
			return "", &ViewHasNoRequiredAttributesError{Name: def.Name}
		}
		if err := dropViews(ctx, tx, def.Name); err != nil {
			return "", err
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("viewcompiler: committing: %w", err)
		}
		return fmt.Sprintf("view %q has no required attributes; regeneration skipped", def.Name), nil
	}

	if err := regenerate(ctx, tx, def.Name, attrs); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("viewcompiler: committing: %w", err)
	}
	return "", nil
}

// Delete retracts a view's definition datoms and drops its generated views.
func (c *Compiler) Delete(ctx context.Context, name string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("viewcompiler: beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	viewID, err := c.viewID(ctx, tx, name)
	if err != nil {
		return err
	}
	txnID, _, err := c.a.NewTransaction(ctx, tx)
	if err != nil {
		return err
	}
	if err := retractCurrent(ctx, tx, "attr_db_view_ident", viewID, bootstrap.AttrViewIdent, int64(txnID)); err != nil {
		return err
	}
	if err := retractCurrent(ctx, tx, "attr_db_view_doc", viewID, bootstrap.AttrViewDoc, int64(txnID)); err != nil {
		return err
	}
	if err := retractCurrent(ctx, tx, "attr_db_view_attributes", viewID, bootstrap.AttrViewAttributes, int64(txnID)); err != nil {
		return err
	}
	if err := retractCurrent(ctx, tx, "attr_db_view_optional_attributes", viewID, bootstrap.AttrViewOptionalAttributes, int64(txnID)); err != nil {
		return err
	}
	if err := dropViews(ctx, tx, name); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("viewcompiler: committing: %w", err)
	}
	return nil
}

func (c *Compiler) viewID(ctx context.Context, q alloc.Querier, name string) (int64, error) {
	row := q.QueryRowContext(ctx,
		`SELECT e FROM attr_db_view_ident WHERE v_typed = $1 AND retracted_by IS NULL`, name)
	var id int64
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("viewcompiler: view %q is not defined", name)
		}
		return 0, err
	}
	return id, nil
}

// resolveAttrs resolves and sorts the required and optional attribute
// idents of def (spec.md §4.H "Ordering": deterministic by ident).
func (c *Compiler) resolveAttrs(ctx context.Context, q alloc.Querier, def Definition) ([]resolvedAttr, error) {
	required := append([]string(nil), def.Required...)
	optional := append([]string(nil), def.Optional...)
	sort.Strings(required)
	sort.Strings(optional)

	var out []resolvedAttr
	n := 0
	for _, name := range required {
		d, err := c.reg.Attribute(ctx, q, name)
		if err != nil {
			return nil, err
		}
		out = append(out, resolvedAttr{
			def: d, relation: ident.Relation(name), column: ident.Column(name),
			alias: fmt.Sprintf("a%d", n), required: true,
		})
		n++
	}
	for _, name := range optional {
		d, err := c.reg.Attribute(ctx, q, name)
		if err != nil {
			return nil, err
		}
		out = append(out, resolvedAttr{
			def: d, relation: ident.Relation(name), column: ident.Column(name),
			alias: fmt.Sprintf("a%d", n), required: false,
		})
		n++
	}
	return out, nil
}

// upsertDefinitionDatoms asserts the view's own ident/doc/attributes/
// optional-attributes facts, diffing cardinality-many refs against the
// current state so update_view only retracts/asserts what changed.
func (c *Compiler) upsertDefinitionDatoms(ctx context.Context, tx *sql.Tx, def Definition) (viewID int64, existed bool, err error) {
	id, err := c.viewID(ctx, tx, def.Name)
	if err == nil {
		existed = true
		viewID = id
	} else {
		entityID, aErr := c.a.AllocateEntity(ctx, tx, "user")
		if aErr != nil {
			return 0, false, aErr
		}
		viewID = int64(entityID)
	}

	txnID, _, err := c.a.NewTransaction(ctx, tx)
	if err != nil {
		return 0, false, err
	}

	textSpec := codec.Lookup(codec.Text)
	refSpec := codec.Lookup(codec.Ref)

	if !existed {
		canonical, _ := textSpec.Parse(def.Name)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attr_db_view_ident (e, a, v_raw, tx) VALUES ($1, $2, $3, $4)`,
			viewID, bootstrap.AttrViewIdent, textSpec.EncodeRaw(canonical), txnID,
		); err != nil {
			return 0, false, fmt.Errorf("viewcompiler: asserting view ident: %w", err)
		}
	}

	if err := retractCurrent(ctx, tx, "attr_db_view_doc", viewID, bootstrap.AttrViewDoc, int64(txnID)); err != nil {
		return 0, false, err
	}
	if def.Doc != "" {
		canonical, _ := textSpec.Parse(def.Doc)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attr_db_view_doc (e, a, v_raw, tx) VALUES ($1, $2, $3, $4)`,
			viewID, bootstrap.AttrViewDoc, textSpec.EncodeRaw(canonical), txnID,
		); err != nil {
			return 0, false, fmt.Errorf("viewcompiler: asserting view doc: %w", err)
		}
	}

	if err := c.diffManyRefs(ctx, tx, "attr_db_view_attributes", viewID, bootstrap.AttrViewAttributes,
		int64(txnID), def.Required, refSpec); err != nil {
		return 0, false, err
	}
	if err := c.diffManyRefs(ctx, tx, "attr_db_view_optional_attributes", viewID, bootstrap.AttrViewOptionalAttributes,
		int64(txnID), def.Optional, refSpec); err != nil {
		return 0, false, err
	}

	return viewID, existed, nil
}

// diffManyRefs retracts current (viewID, attr) refs whose target attribute
// is no longer named in idents, and asserts refs for idents not already
// current - the cardinality-many update semantics of spec.md §4.I applied
// to the view definition's own attribute list.
func (c *Compiler) diffManyRefs(ctx context.Context, tx *sql.Tx, relation string, viewID, attr, txnID int64, idents []string, refSpec *codec.Spec) error {
	want := make(map[int64]bool, len(idents))
	for _, name := range idents {
		id, err := c.reg.Attribute(ctx, tx, name)
		if err != nil {
			return err
		}
		want[id.ID] = true
	}

	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf(`SELECT e, v_typed FROM %s WHERE e = $1 AND a = $2 AND retracted_by IS NULL`, ident.Quote(relation)),
		viewID, attr)
	if err != nil {
		return fmt.Errorf("viewcompiler: reading %s: %w", relation, err)
	}
	have := make(map[int64]bool)
	for rows.Next() {
		var e, v int64
		if err := rows.Scan(&e, &v); err != nil {
			rows.Close()
			return err
		}
		have[v] = true
	}
	rows.Close()

	for v := range have {
		if want[v] {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET retracted_by = $1 WHERE e = $2 AND a = $3 AND v_typed = $4 AND retracted_by IS NULL`, ident.Quote(relation)),
			txnID, viewID, attr, v,
		); err != nil {
			return fmt.Errorf("viewcompiler: retracting from %s: %w", relation, err)
		}
	}
	for v := range want {
		if have[v] {
			continue
		}
		raw, _ := refSpec.Parse(fmt.Sprintf("%d", v))
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (e, a, v_raw, tx) VALUES ($1, $2, $3, $4)`, ident.Quote(relation)),
			viewID, attr, refSpec.EncodeRaw(raw), txnID,
		); err != nil {
			return fmt.Errorf("viewcompiler: asserting into %s: %w", relation, err)
		}
	}
	return nil
}

func retractCurrent(ctx context.Context, tx *sql.Tx, relation string, e, a, txnID int64) error {
	_, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET retracted_by = $1 WHERE e = $2 AND a = $3 AND retracted_by IS NULL`, ident.Quote(relation)),
		txnID, e, a)
	if err != nil {
		return fmt.Errorf("viewcompiler: retracting %s: %w", relation, err)
	}
	return nil
}

// dropViews drops the three generated views for name, cascading their
// triggers, if they exist.
func dropViews(ctx context.Context, tx *sql.Tx, name string) error {
	for _, suffix := range []string{"", "_current", "_history"} {
		stmt := fmt.Sprintf("DROP VIEW IF EXISTS %s CASCADE", ident.Quote(viewName(name, suffix)))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("viewcompiler: dropping %s%s: %w", name, suffix, err)
		}
	}
	return nil
}

func viewName(name, suffix string) string {
	return name + suffix
}

// regenerate drops and recreates the three views and their INSTEAD-OF
// triggers for name, over the resolved attrs.
func regenerate(ctx context.Context, tx *sql.Tx, name string, attrs []resolvedAttr) error {
	if err := dropViews(ctx, tx, name); err != nil {
		return err
	}

	currentSQL := renderView(name, attrs, visibility.Current)
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("CREATE VIEW %s AS\n%s", ident.Quote(viewName(name, "_current")), currentSQL),
	); err != nil {
		return fmt.Errorf("viewcompiler: creating %s_current: %w", name, err)
	}

	historyBody := renderHistoryView(attrs)
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("CREATE VIEW %s AS\n%s", ident.Quote(viewName(name, "_history")), historyBody),
	); err != nil {
		return fmt.Errorf("viewcompiler: creating %s_history: %w", name, err)
	}

	dispatchSQL := renderDispatchView(name, attrs)
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("CREATE VIEW %s AS\n%s", ident.Quote(name), dispatchSQL),
	); err != nil {
		return fmt.Errorf("viewcompiler: creating %s: %w", name, err)
	}

	funcs := dml.TriggerFunctions(name, toDMLAttrs(attrs))
	for _, f := range funcs {
		if _, err := tx.ExecContext(ctx, f.CreateFunction); err != nil {
			return fmt.Errorf("viewcompiler: creating trigger function %s: %w", f.Name, err)
		}
	}
	for _, viewSuffix := range []string{"", "_current"} {
		target := viewName(name, viewSuffix)
		for _, f := range funcs {
			stmt := fmt.Sprintf(
				"CREATE TRIGGER %s INSTEAD OF %s ON %s FOR EACH ROW EXECUTE FUNCTION %s()",
				ident.Quote(target+"_"+f.Event+"_trg"), f.Event, ident.Quote(target), ident.Quote(f.Name))
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("viewcompiler: attaching trigger %s on %s: %w", f.Event, target, err)
			}
		}
	}
	return nil
}

func toDMLAttrs(attrs []resolvedAttr) []dml.Attr {
	out := make([]dml.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = dml.Attr{
			AttributeID: a.def.ID,
			Relation:    a.relation,
			Column:      a.column,
			ValueType:   a.def.ValueType,
			Cardinality: a.def.Cardinality,
			Required:    a.required,
		}
	}
	return out
}

// renderView builds V_current's body: inner-join required attributes,
// left-join optional ones, folding cardinality-many attributes via a
// lateral array_agg (spec.md §4.H "Join shape"). The anchor position
// (attrs[0], always required per resolveAttrs) gets the same cardinality-many
// folding treatment as every other position: a plain cardinality-one anchor
// is the bare FROM-clause relation, but a cardinality-many anchor is
// pre-aggregated into one row per entity before anything else joins onto
// it, via anchorAggregate.
func renderView(name string, attrs []resolvedAttr, asOf visibility.AsOf) string {
	anchor := attrs[0]
	list := sqlast.SelectList{{Expr: anchor.alias + ".e", Alias: "id"}}
	chain := sqlast.JoinChain{AnchorAlias: anchor.alias}
	var aliases []string

	if anchor.def.Cardinality == datom.CardinalityMany {
		chain.AnchorRaw = anchorAggregate(anchor, false)
		list = append(list, sqlast.SelectItem{Expr: anchor.alias + ".agg", Alias: anchor.column})
	} else {
		chain.AnchorRelation = anchor.relation
		list = append(list, sqlast.SelectItem{Expr: colExpr(anchor), Alias: anchor.column})
		aliases = append(aliases, anchor.alias)
	}

	for i, a := range attrs {
		if i == 0 {
			continue
		}
		if a.def.Cardinality == datom.CardinalityMany {
			chain.RawJoins = append(chain.RawJoins, lateralJoin(a, anchor.alias, false))
			list = append(list, sqlast.SelectItem{Expr: a.alias + ".agg", Alias: a.column})
			continue
		}
		kind := sqlast.JoinInner
		if !a.required {
			kind = sqlast.JoinLeft
		}
		chain.Joins = append(chain.Joins, sqlast.Join{Kind: kind, Relation: a.relation, Alias: a.alias})
		list = append(list, sqlast.SelectItem{Expr: colExpr(a), Alias: a.column})
		aliases = append(aliases, a.alias)
	}

	q := sqlast.Query{List: list, Chain: chain, Vis: sqlast.VisibilityPredicate{AsOf: asOf, Aliases: aliases}}
	return q.Render()
}

func colExpr(a resolvedAttr) string {
	return a.alias + ".v_typed"
}

// lateralJoin renders a LATERAL join aggregating a cardinality-many
// attribute's visible values into an array (spec.md §4.H). An optional
// attribute is LEFT-joined (NULL array when it has no values); a required
// one is inner-joined on a non-NULL array, so entities without it drop out.
func lateralJoin(a resolvedAttr, anchorAlias string, history bool) string {
	visCol := "x.retracted_by IS NULL"
	if history {
		visCol = "mnemo_visible(x.tx, x.retracted_by)"
	}
	kind, on := "LEFT JOIN LATERAL", "true"
	if a.required {
		kind, on = "JOIN LATERAL", a.alias+".agg IS NOT NULL"
	}
	return fmt.Sprintf(
		"%s (SELECT array_agg(x.v_typed) AS agg FROM %s x WHERE x.e = %s.e AND %s) %s ON %s",
		kind, ident.Quote(a.relation), anchorAlias, visCol, a.alias, on)
}

// anchorAggregate renders the pre-aggregated FROM-clause expression used
// when the anchor attribute (attrs[0], always required) is cardinality-many:
// one row per entity with its values folded into an array before anything
// else joins onto it, so the anchor can never multiply rows the way a bare
// cardinality-many relation would (spec.md §4.H).
func anchorAggregate(a resolvedAttr, history bool) string {
	visCond := "retracted_by IS NULL"
	if history {
		visCond = "mnemo_visible(tx, retracted_by)"
	}
	return fmt.Sprintf("(SELECT e, array_agg(v_typed) AS agg FROM %s WHERE %s GROUP BY e) %s",
		ident.Quote(a.relation), visCond, a.alias)
}

// renderHistoryView builds V_history's body: identical shape to V_current,
// but every visibility test is mnemo_visible(tx, retracted_by) instead of
// retracted_by IS NULL (spec.md §4.H).
func renderHistoryView(attrs []resolvedAttr) string {
	anchor := attrs[0]
	list := sqlast.SelectList{{Expr: anchor.alias + ".e", Alias: "id"}}
	var joins []string
	var where string

	if anchor.def.Cardinality == datom.CardinalityMany {
		joins = append(joins, anchorAggregate(anchor, true))
		list = append(list, sqlast.SelectItem{Expr: anchor.alias + ".agg", Alias: anchor.column})
		where = "true"
	} else {
		joins = append(joins, fmt.Sprintf("%s %s", ident.Quote(anchor.relation), anchor.alias))
		list = append(list, sqlast.SelectItem{Expr: colExpr(anchor), Alias: anchor.column})
		where = fmt.Sprintf("mnemo_visible(%s.tx, %s.retracted_by)", anchor.alias, anchor.alias)
	}

	for i, a := range attrs {
		if i == 0 {
			continue
		}
		if a.def.Cardinality == datom.CardinalityMany {
			joins = append(joins, lateralJoin(a, anchor.alias, true))
			list = append(list, sqlast.SelectItem{Expr: a.alias + ".agg", Alias: a.column})
			continue
		}
		kind := "JOIN"
		if !a.required {
			kind = "LEFT JOIN"
		}
		joins = append(joins, fmt.Sprintf("%s %s %s ON %s.e = %s.e AND mnemo_visible(%s.tx, %s.retracted_by)",
			kind, ident.Quote(a.relation), a.alias, a.alias, anchor.alias, a.alias, a.alias))
		list = append(list, sqlast.SelectItem{Expr: colExpr(a), Alias: a.column})
	}

	return fmt.Sprintf("SELECT\n\t%s\nFROM %s\nWHERE %s",
		list.Render(), strings.Join(joins, "\n\t"), where)
}

// renderDispatchView builds V: current rows when no as-of is set, history
// rows when it is, relying on mnemo_as_of_tx() being STABLE so PostgreSQL
// evaluates it once per statement and prunes the unused branch (spec.md
// §4.H, Design Notes §9).
func renderDispatchView(name string, attrs []resolvedAttr) string {
	cols := make([]string, 0, len(attrs)+1)
	cols = append(cols, ident.Quote("id"))
	for _, a := range attrs {
		cols = append(cols, ident.Quote(a.column))
	}
	colList := strings.Join(cols, ", ")
	return fmt.Sprintf(
		"SELECT %s FROM %s WHERE mnemo_as_of_tx() IS NULL\n"+
			"UNION ALL\n"+
			"SELECT %s FROM %s WHERE mnemo_as_of_tx() IS NOT NULL",
		colList, ident.Quote(viewName(name, "_current")),
		colList, ident.Quote(viewName(name, "_history")))
}
