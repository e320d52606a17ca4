// Package sqlast is the small SQL builder the view compiler renders
// generated view bodies through (spec.md Design Notes §9):
// a SelectList, a JoinChain of one anchor relation plus inner/left joins,
// and a VisibilityPredicate, pretty-printed into the CREATE VIEW text the
// database actually stores.
package sqlast

import (
	"fmt"
	"strings"

	"mnemo/internal/ident"
	"mnemo/internal/visibility"
)

// SelectItem is one projected column: an expression aliased to a name.
type SelectItem struct {
	Expr  string
	Alias string
}

// SelectList is the projection clause of a generated view.
type SelectList []SelectItem

// Render renders the select list as it appears between SELECT and FROM.
func (l SelectList) Render() string {
	items := make([]string, len(l))
	for i, it := range l {
		items[i] = fmt.Sprintf("%s AS %s", it.Expr, ident.Quote(it.Alias))
	}
	return strings.Join(items, ",\n\t")
}

// JoinKind distinguishes a required attribute join (INNER) from an optional
// one (LEFT), per spec.md §4.H: a view with no required attributes asserted
// for an entity produces no row at all, while missing optional attributes
// leave the corresponding column NULL.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
)

func (k JoinKind) String() string {
	if k == JoinLeft {
		return "LEFT JOIN"
	}
	return "JOIN"
}

// Join is one relation joined onto the anchor by entity id, gated by its
// own visibility predicate so retracted facts never surface through a
// current-state view.
type Join struct {
	Kind     JoinKind
	Relation string
	Alias    string
	On       string // additional ON clause beyond the entity-id equality, or ""
}

// JoinChain is one anchor relation (the entity's own id source - typically
// the first required attribute's relation) plus its dependent joins
// (Design Notes §9: "JoinChain{ anchor, inner[], left[] }"). RawJoins carries
// pre-rendered join clauses the view compiler builds directly, for shapes
// (lateral array_agg folding) a plain equality Join can't express. AnchorRaw
// is the same escape hatch for the anchor position itself: set it instead of
// AnchorRelation when the anchor needs to be a pre-rendered FROM-clause
// expression (e.g. a pre-aggregated derived table) rather than a bare,
// quoted relation name.
type JoinChain struct {
	AnchorRelation string
	AnchorRaw      string
	AnchorAlias    string
	Joins          []Join
	RawJoins       []string
}

// Render renders the FROM/JOIN clause, joining every dependent relation to
// the anchor's entity column.
func (c JoinChain) Render() string {
	var b strings.Builder
	if c.AnchorRaw != "" {
		b.WriteString(c.AnchorRaw)
	} else {
		b.WriteString(fmt.Sprintf("%s %s", ident.Quote(c.AnchorRelation), c.AnchorAlias))
	}
	for _, j := range c.Joins {
		on := fmt.Sprintf("%s.e = %s.e", j.Alias, c.AnchorAlias)
		if j.On != "" {
			on += " AND " + j.On
		}
		b.WriteString(fmt.Sprintf("\n\t%s %s %s ON %s",
			j.Kind, ident.Quote(j.Relation), j.Alias, on))
	}
	for _, raw := range c.RawJoins {
		b.WriteString("\n\t" + raw)
	}
	return b.String()
}

// VisibilityPredicate renders the WHERE clause enforcing current-state or
// as-of visibility (spec.md §4.E) across every relation in a JoinChain.
type VisibilityPredicate struct {
	AsOf    visibility.AsOf
	Aliases []string
}

// Render returns the combined WHERE clause and the positional args it
// needs (the as-of transaction id, once, reused across every alias). An
// empty Aliases renders as the literal "true": every aliased relation in the
// chain already carries its own visibility check (e.g. a pre-aggregated
// anchor or a lateral join), so there is nothing left to test here.
func (p VisibilityPredicate) Render(paramIndex int) (string, []any) {
	if len(p.Aliases) == 0 {
		return "true", nil
	}
	clauses := make([]string, len(p.Aliases))
	var args []any
	for i, alias := range p.Aliases {
		expr, clauseArgs := p.AsOf.Predicate(alias, paramIndex)
		clauses[i] = expr
		args = clauseArgs // identical every iteration; as-of reuses one placeholder
	}
	return strings.Join(clauses, "\n\tAND "), args
}

// Query composes a full SELECT statement from a SelectList, JoinChain, and
// VisibilityPredicate.
type Query struct {
	List  SelectList
	Chain JoinChain
	Vis   VisibilityPredicate
}

// Render pretty-prints the complete statement body (without the leading
// CREATE [OR REPLACE] VIEW name AS, which the view compiler prepends).
func (q Query) Render() string {
	where, _ := q.Vis.Render(1)
	return fmt.Sprintf("SELECT\n\t%s\nFROM %s\nWHERE %s",
		q.List.Render(), q.Chain.Render(), where)
}
