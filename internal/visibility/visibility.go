// Package visibility implements the bitemporal predicate spec.md §4.E
// defines: a datom is visible at a given as-of point iff it was asserted at
// or before that point and, if retracted, not retracted at or before it.
package visibility

// AsOf is a query's temporal viewpoint: nil means "current state", a
// non-nil transaction id means "as of that transaction" (spec.md §4.E,
// §6.2).
type AsOf struct {
	Tx *int64
}

// Current is the zero-value viewpoint: unset as-of, current state only.
var Current = AsOf{}

// At builds an as-of viewpoint pinned to transaction tx.
func At(tx int64) AsOf {
	return AsOf{Tx: &tx}
}

// IsCurrent reports whether this viewpoint has no as-of bound.
func (a AsOf) IsCurrent() bool {
	return a.Tx == nil
}

// Visible evaluates the predicate in Go, for unit tests and for any
// in-process scan that doesn't go through SQL. Predicate below renders the
// same test as SQL, and the generated history views evaluate it through the
// mnemo_visible SQL function; all of them must agree (spec.md §8 property 6).
func Visible(a AsOf, tx int64, retractedBy *int64) bool {
	if a.IsCurrent() {
		return retractedBy == nil
	}
	if tx > *a.Tx {
		return false
	}
	return retractedBy == nil || *retractedBy > *a.Tx
}

// Predicate renders the SQL boolean expression for this viewpoint, as a
// fragment referencing the given table alias's tx/retracted_by columns.
// The as-of bound is reified into the returned placeholder argument rather
// than read from a session variable inside the expression, so the result
// never depends on the query planner treating a lookup as call-once
// (Design Notes §9, Open Questions).
func (a AsOf) Predicate(alias string, paramIndex int) (expr string, args []any) {
	col := func(name string) string { return alias + "." + name }
	if a.IsCurrent() {
		return col("retracted_by") + " IS NULL", nil
	}
	placeholder := placeholderFor(paramIndex)
	expr = col("tx") + " <= " + placeholder +
		" AND (" + col("retracted_by") + " IS NULL OR " + col("retracted_by") + " > " + placeholder + ")"
	return expr, []any{*a.Tx}
}

func placeholderFor(i int) string {
	// PostgreSQL positional parameter syntax.
	digits := []byte{}
	n := i
	if n == 0 {
		digits = []byte{'0'}
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return "$" + string(digits)
}
