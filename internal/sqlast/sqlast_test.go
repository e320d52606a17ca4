package sqlast

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mnemo/internal/visibility"
)

func TestSelectListRender(t *testing.T) {
	l := SelectList{
		{Expr: "anchor.e", Alias: "id"},
		{Expr: "email.v_typed", Alias: "email"},
	}
	got := l.Render()
	assert.Contains(t, got, `"id"`)
	assert.Contains(t, got, `"email"`)
	assert.Contains(t, got, "anchor.e AS")
}

func TestJoinChainRenderInnerAndLeft(t *testing.T) {
	c := JoinChain{
		AnchorRelation: "attr_person_name",
		AnchorAlias:    "anchor",
		Joins: []Join{
			{Kind: JoinInner, Relation: "attr_person_email", Alias: "email"},
			{Kind: JoinLeft, Relation: "attr_person_nickname", Alias: "nickname"},
		},
	}
	got := c.Render()
	assert.Contains(t, got, `JOIN "attr_person_email" email ON email.e = anchor.e`)
	assert.Contains(t, got, `LEFT JOIN "attr_person_nickname" nickname ON nickname.e = anchor.e`)
}

func TestJoinChainRenderAnchorRaw(t *testing.T) {
	c := JoinChain{
		AnchorRaw:   `(SELECT e, array_agg(v_typed) AS agg FROM "attr_person_tag" WHERE retracted_by IS NULL GROUP BY e) anchor`,
		AnchorAlias: "anchor",
		Joins: []Join{
			{Kind: JoinInner, Relation: "attr_person_email", Alias: "email"},
		},
	}
	got := c.Render()
	assert.Contains(t, got, "array_agg(v_typed) AS agg")
	assert.NotContains(t, got, `"(SELECT`, "AnchorRaw must not be passed through ident.Quote")
	assert.Contains(t, got, `JOIN "attr_person_email" email ON email.e = anchor.e`)
}

func TestVisibilityPredicateRenderEmptyAliases(t *testing.T) {
	p := VisibilityPredicate{AsOf: visibility.Current, Aliases: nil}
	where, args := p.Render(1)
	assert.Equal(t, "true", where)
	assert.Nil(t, args)
}

func TestVisibilityPredicateRenderCurrent(t *testing.T) {
	p := VisibilityPredicate{AsOf: visibility.Current, Aliases: []string{"a", "b"}}
	where, args := p.Render(1)
	assert.Contains(t, where, "a.retracted_by IS NULL")
	assert.Contains(t, where, "b.retracted_by IS NULL")
	assert.Nil(t, args)
}

func TestVisibilityPredicateRenderAsOf(t *testing.T) {
	p := VisibilityPredicate{AsOf: visibility.At(42), Aliases: []string{"a"}}
	where, args := p.Render(1)
	assert.Contains(t, where, "a.tx <= $1")
	assert.Equal(t, []any{int64(42)}, args)
}

func TestQueryRender(t *testing.T) {
	q := Query{
		List: SelectList{{Expr: "anchor.e", Alias: "id"}},
		Chain: JoinChain{
			AnchorRelation: "attr_person_email", AnchorAlias: "anchor",
		},
		Vis: VisibilityPredicate{AsOf: visibility.Current, Aliases: []string{"anchor"}},
	}
	got := q.Render()
	assert.Contains(t, got, "SELECT")
	assert.Contains(t, got, "FROM")
	assert.Contains(t, got, "WHERE")
}
