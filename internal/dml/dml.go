// Package dml renders the INSTEAD-OF trigger function bodies (spec.md
// §4.I) that translate row-shaped insert/update/delete operations against a
// generated view into datom operations against its attributes' child
// relations. One PL/pgSQL function is generated per operation per view;
// internal/viewcompiler attaches each as a trigger on both `V` and
// `V_current`.
package dml

import (
	"fmt"
	"strings"

	"mnemo/internal/codec"
	"mnemo/internal/datom"
	"mnemo/internal/ident"
)

// Attr is the shape internal/viewcompiler hands the DML translator for
// each attribute curated by a view.
type Attr struct {
	AttributeID int64
	Relation    string
	Column      string
	ValueType   codec.ValueType
	Cardinality datom.Cardinality
	Required    bool
}

// Func is one generated trigger function: its name, the event it fires on,
// and the CREATE FUNCTION statement that defines it.
type Func struct {
	Name           string
	Event          string // "INSERT", "UPDATE", or "DELETE"
	CreateFunction string
}

// TriggerFunctions renders the insert/update/delete trigger functions for
// view viewName over attrs.
func TriggerFunctions(viewName string, attrs []Attr) []Func {
	return []Func{
		insertFunc(viewName, attrs),
		updateFunc(viewName, attrs),
		deleteFunc(viewName, attrs),
	}
}

func funcName(viewName, op string) string {
	return fmt.Sprintf("%s_%s_fn", viewName, op)
}

// insertFunc allocates a fresh entity and transaction, asserts one datom
// per non-null attribute column, and returns the row with id populated
// (spec.md §4.I "Insert").
func insertFunc(viewName string, attrs []Attr) Func {
	name := funcName(viewName, "insert")
	var b strings.Builder
	b.WriteString(fmt.Sprintf("CREATE OR REPLACE FUNCTION %s() RETURNS trigger AS $$\n", ident.Quote(name)))
	b.WriteString("DECLARE\n\tnew_e bigint;\n\tnew_tx bigint;\nBEGIN\n")
	b.WriteString("\tnew_e := mnemo_allocate_entity('user');\n")
	b.WriteString("\tnew_tx := mnemo_new_transaction();\n")

	for _, a := range attrs {
		col := ident.Quote(a.Column)
		relation := ident.Quote(a.Relation)
		spec := codec.Lookup(a.ValueType)
		if a.Cardinality == datom.CardinalityMany {
			b.WriteString(fmt.Sprintf(
				"\tIF NEW.%s IS NOT NULL THEN\n"+
					"\t\tINSERT INTO %s (e, a, v_raw, tx)\n"+
					"\t\tSELECT new_e, %d, %s || v::text, new_tx FROM unnest(NEW.%s) AS v;\n"+
					"\tEND IF;\n",
				col, relation, a.AttributeID, quoteTag(spec), col))
			continue
		}
		b.WriteString(fmt.Sprintf(
			"\tIF NEW.%s IS NOT NULL THEN\n"+
				"\t\tINSERT INTO %s (e, a, v_raw, tx) VALUES (new_e, %d, %s || NEW.%s::text, new_tx);\n"+
				"\tEND IF;\n",
			col, relation, a.AttributeID, quoteTag(spec), col))
	}

	b.WriteString("\tNEW.id := new_e;\n\tRETURN NEW;\nEND;\n$$ LANGUAGE plpgsql;")
	return Func{Name: name, Event: "INSERT", CreateFunction: b.String()}
}

// updateFunc allocates a transaction and, for each attribute, compares old
// vs new using IS DISTINCT FROM: unchanged columns are left alone, a
// non-null old value is retracted, a non-null new value is asserted
// (spec.md §4.I "Update").
func updateFunc(viewName string, attrs []Attr) Func {
	name := funcName(viewName, "update")
	var b strings.Builder
	b.WriteString(fmt.Sprintf("CREATE OR REPLACE FUNCTION %s() RETURNS trigger AS $$\n", ident.Quote(name)))
	b.WriteString("DECLARE\n\tnew_tx bigint;\nBEGIN\n")
	b.WriteString("\tnew_tx := mnemo_new_transaction();\n")

	for _, a := range attrs {
		col := ident.Quote(a.Column)
		relation := ident.Quote(a.Relation)
		spec := codec.Lookup(a.ValueType)
		b.WriteString(fmt.Sprintf("\tIF NEW.%s IS DISTINCT FROM OLD.%s THEN\n", col, col))
		if a.Cardinality == datom.CardinalityMany {
			b.WriteString(fmt.Sprintf(
				"\t\tUPDATE %s SET retracted_by = new_tx WHERE e = OLD.id AND a = %d AND retracted_by IS NULL;\n"+
					"\t\tIF NEW.%s IS NOT NULL THEN\n"+
					"\t\t\tINSERT INTO %s (e, a, v_raw, tx)\n"+
					"\t\t\tSELECT OLD.id, %d, %s || v::text, new_tx FROM unnest(NEW.%s) AS v;\n"+
					"\t\tEND IF;\n",
				relation, a.AttributeID, col, relation, a.AttributeID, quoteTag(spec), col))
		} else {
			b.WriteString(fmt.Sprintf(
				"\t\tIF OLD.%s IS NOT NULL THEN\n"+
					"\t\t\tUPDATE %s SET retracted_by = new_tx WHERE e = OLD.id AND a = %d AND retracted_by IS NULL;\n"+
					"\t\tEND IF;\n"+
					"\t\tIF NEW.%s IS NOT NULL THEN\n"+
					"\t\t\tINSERT INTO %s (e, a, v_raw, tx) VALUES (OLD.id, %d, %s || NEW.%s::text, new_tx);\n"+
					"\t\tEND IF;\n",
				col, relation, a.AttributeID, col, relation, a.AttributeID, quoteTag(spec), col))
		}
		b.WriteString("\tEND IF;\n")
	}

	b.WriteString("\tRETURN NEW;\nEND;\n$$ LANGUAGE plpgsql;")
	return Func{Name: name, Event: "UPDATE", CreateFunction: b.String()}
}

// deleteFunc allocates a transaction and retracts every current datom for
// this view's attributes on the deleted row's entity. Datoms for
// attributes outside this view are untouched (spec.md §4.I "Delete").
func deleteFunc(viewName string, attrs []Attr) Func {
	name := funcName(viewName, "delete")
	var b strings.Builder
	b.WriteString(fmt.Sprintf("CREATE OR REPLACE FUNCTION %s() RETURNS trigger AS $$\n", ident.Quote(name)))
	b.WriteString("DECLARE\n\tnew_tx bigint;\nBEGIN\n")
	b.WriteString("\tnew_tx := mnemo_new_transaction();\n")
	for _, a := range attrs {
		b.WriteString(fmt.Sprintf(
			"\tUPDATE %s SET retracted_by = new_tx WHERE e = OLD.id AND a = %d AND retracted_by IS NULL;\n",
			ident.Quote(a.Relation), a.AttributeID))
	}
	b.WriteString("\tRETURN OLD;\nEND;\n$$ LANGUAGE plpgsql;")
	return Func{Name: name, Event: "DELETE", CreateFunction: b.String()}
}

// quoteTag renders the v_raw tag prefix as a single-quoted SQL literal
// concatenation operand, e.g. 's:' for Text.
func quoteTag(spec *codec.Spec) string {
	return ident.QuoteLiteral(spec.Tag + ":")
}
