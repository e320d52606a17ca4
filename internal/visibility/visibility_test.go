package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisibleCurrentState(t *testing.T) {
	assert.True(t, Visible(Current, 5, nil))
	retractedAt := int64(6)
	assert.False(t, Visible(Current, 5, &retractedAt))
}

func TestVisibleAsOf(t *testing.T) {
	asOf := At(10)

	assert.True(t, Visible(asOf, 5, nil), "asserted before as-of, never retracted")

	retractedAfter := int64(15)
	assert.True(t, Visible(asOf, 5, &retractedAfter), "retracted after as-of point is still visible at it")

	retractedBefore := int64(7)
	assert.False(t, Visible(asOf, 5, &retractedBefore), "retracted at or before as-of point is gone")

	assert.False(t, Visible(asOf, 11, nil), "asserted after as-of point is not yet visible")

	retractedAtBound := int64(10)
	assert.False(t, Visible(asOf, 5, &retractedAtBound), "retracted exactly at as-of point is gone")
}

func TestPredicateCurrent(t *testing.T) {
	expr, args := Current.Predicate("d", 1)
	assert.Equal(t, "d.retracted_by IS NULL", expr)
	assert.Empty(t, args)
}

func TestPredicateAsOf(t *testing.T) {
	expr, args := At(42).Predicate("d", 1)
	assert.Contains(t, expr, "d.tx <= $1")
	assert.Contains(t, expr, "d.retracted_by IS NULL OR d.retracted_by > $1")
	assert.Equal(t, []any{int64(42)}, args)
}
