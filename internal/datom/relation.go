package datom

import (
	"fmt"

	"mnemo/internal/codec"
	"mnemo/internal/ddl"
	"mnemo/internal/ident"
)

// IndexKind distinguishes the index shapes spec.md §4.D calls for.
type IndexKind int

const (
	// IndexAVET is the primary value-lookup index: (v_typed) WHERE current.
	IndexAVET IndexKind = iota
	// IndexEntity supports per-entity attribute fetch: (e) WHERE current.
	IndexEntity
	// IndexReverse supports "what points at X" traversal on ref attributes:
	// (v_typed, e) WHERE current.
	IndexReverse
)

// IndexSpec describes one index to create on an attribute's child relation.
type IndexSpec struct {
	Kind    IndexKind
	Name    string
	Columns []string
	// CurrentOnly gates the index with `WHERE retracted_by IS NULL`, the
	// partial-index strategy of spec.md §4.D that keeps the hot working set
	// free of superseded datoms.
	CurrentOnly bool
}

// RelationSpec is the structural description of one attribute's child
// relation (Design Notes §9: "a small structural type that a back-end
// emits"), built once per declared attribute and used to derive both its
// CREATE TABLE and its indexes deterministically.
type RelationSpec struct {
	Name        string
	Parent      string
	AttributeID int64
	TypedColumn codec.ValueType
	Indexes     []IndexSpec
}

// NewRelationSpec derives the relation name, typed column, and index set
// (spec.md §4.D) for a freshly declared attribute. A non-ref attribute gets
// two indexes, AVET and entity; a ref attribute additionally gets the
// reverse-value index for back-traversal, three in all.
func NewRelationSpec(parent string, attr AttributeDef) RelationSpec {
	name := ident.Relation(attr.Ident)
	indexes := []IndexSpec{
		{Kind: IndexAVET, Name: name + "_avet_idx", Columns: []string{"v_typed"}, CurrentOnly: true},
		{Kind: IndexEntity, Name: name + "_e_idx", Columns: []string{"e"}, CurrentOnly: true},
	}
	if attr.IsRef() {
		indexes = append(indexes, IndexSpec{
			Kind: IndexReverse, Name: name + "_reverse_idx",
			Columns: []string{"v_typed", "e"}, CurrentOnly: true,
		})
	}
	return RelationSpec{
		Name:        name,
		Parent:      parent,
		AttributeID: attr.ID,
		TypedColumn: attr.ValueType,
		Indexes:     indexes,
	}
}

// Plan renders the CREATE TABLE (inheriting Parent, adding the generated
// v_typed column and the `a = AttributeID` check predicate, spec.md §3
// invariant 8 / §4.C) and CREATE INDEX statements for this relation.
func (r RelationSpec) Plan() *ddl.Plan {
	p := &ddl.Plan{}
	spec := codec.Lookup(r.TypedColumn)

	p.Add(ddl.StepCreateTable, fmt.Sprintf(
		"CREATE TABLE %s (\n"+
			"\tv_typed %s GENERATED ALWAYS AS (%s) STORED,\n"+
			"\tCHECK (a = %d)\n"+
			") INHERITS (%s)",
		ident.Quote(r.Name), spec.PGType, spec.GeneratedColumnExpr(), r.AttributeID, ident.Quote(r.Parent),
	))

	for _, idx := range r.Indexes {
		cols := make([]string, len(idx.Columns))
		for i, c := range idx.Columns {
			cols[i] = ident.Quote(c)
		}
		stmt := fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			ident.Quote(idx.Name), ident.Quote(r.Name), joinCols(cols))
		if idx.CurrentOnly {
			stmt += " WHERE retracted_by IS NULL"
		}
		p.Add(ddl.StepCreateIndex, stmt)
	}
	return p
}

func joinCols(cols []string) string {
	out := cols[0]
	for _, c := range cols[1:] {
		out += ", " + c
	}
	return out
}

// ParentDDL returns the three statements that create the parent `datoms`
// relation and its own two indexes (spec.md §4.C, §4.D: entity fanout and
// history-by-transaction).
func ParentDDL(parentName string) *ddl.Plan {
	p := &ddl.Plan{}
	p.Add(ddl.StepCreateTable, fmt.Sprintf(
		"CREATE TABLE %s (\n"+
			"\te bigint NOT NULL,\n"+
			"\ta bigint NOT NULL,\n"+
			"\tv_raw text NOT NULL,\n"+
			"\ttx bigint NOT NULL,\n"+
			"\tretracted_by bigint,\n"+
			"\tPRIMARY KEY (e, a, v_raw, tx)\n"+
			")",
		ident.Quote(parentName),
	))
	p.Add(ddl.StepCreateIndex, fmt.Sprintf(
		"CREATE INDEX %s_e_idx ON %s (e) WHERE retracted_by IS NULL",
		parentName, ident.Quote(parentName)))
	p.Add(ddl.StepCreateIndex, fmt.Sprintf(
		"CREATE INDEX %s_tx_idx ON %s (tx)",
		parentName, ident.Quote(parentName)))
	return p
}
