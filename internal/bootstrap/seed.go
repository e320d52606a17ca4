package bootstrap

import "mnemo/internal/codec"

// System entity ids seeded at init, fixed by spec.md §4.F so that every
// mnemo store resolves the same bootstrap idents to the same ids.
const (
	AttrDBIdent       int64 = 1
	AttrDBValueType   int64 = 2
	AttrDBCardinality int64 = 3
	AttrDBUnique      int64 = 4
	AttrDBDoc         int64 = 5

	AttrViewIdent               int64 = 10
	AttrViewAttributes          int64 = 11
	AttrViewDoc                 int64 = 12
	AttrViewOptionalAttributes  int64 = 13

	valueTypeBase  int64 = 100
	CardinalityOne int64 = 200
	CardinalityMany int64 = 201
	UniqueIdentity int64 = 210
	UniqueValue    int64 = 211

	// NextUserID is the next_id the `db` partition carries once bootstrap
	// completes (spec.md §4.F), leaving headroom for future system idents.
	NextUserID int64 = 300
)

// ValueTypeEntity returns the bootstrap-seeded entity id for a value type's
// enum entity (100-112, spec.md §4.F).
func ValueTypeEntity(vt codec.ValueType) int64 {
	return valueTypeBase + int64(vt)
}

// ValueTypeFromEntity inverts ValueTypeEntity, resolving a db/valueType ref
// back to its logical ValueType. ok is false for any id outside the seeded
// enum range.
func ValueTypeFromEntity(id int64) (vt codec.ValueType, ok bool) {
	n := id - valueTypeBase
	if n < 0 || n >= int64(len(codec.All())) {
		return 0, false
	}
	return codec.ValueType(n), true
}

// attrDef describes one system attribute entity seeded at bootstrap: its id,
// its own ident, its declared value type and cardinality, and optionally a
// uniqueness constraint and doc string.
type attrDef struct {
	ID          int64
	Ident       string
	ValueType   codec.ValueType
	Cardinality string
	Unique      int64 // 0 means none
	Doc         string
}

// systemAttributes lists every attribute definition entity seeded at
// bootstrap (spec.md §4.F), in the fixed id order the spec assigns.
var systemAttributes = []attrDef{
	{ID: AttrDBIdent, Ident: "db/ident", ValueType: codec.Text, Cardinality: "one", Unique: UniqueIdentity,
		Doc: "Namespaced unique name of an attribute, value-type, or enum entity."},
	{ID: AttrDBValueType, Ident: "db/valueType", ValueType: codec.Ref, Cardinality: "one",
		Doc: "Reference to the db.type/* entity naming this attribute's logical value type."},
	{ID: AttrDBCardinality, Ident: "db/cardinality", ValueType: codec.Ref, Cardinality: "one",
		Doc: "Reference to db.cardinality/one or db.cardinality/many."},
	{ID: AttrDBUnique, Ident: "db/unique", ValueType: codec.Ref, Cardinality: "one",
		Doc: "Optional reference to db.unique/identity or db.unique/value."},
	{ID: AttrDBDoc, Ident: "db/doc", ValueType: codec.Text, Cardinality: "one",
		Doc: "Optional human-readable documentation string."},
	{ID: AttrViewIdent, Ident: "db.view/ident", ValueType: codec.Text, Cardinality: "one", Unique: UniqueIdentity,
		Doc: "Table-shaped name of a view definition."},
	{ID: AttrViewAttributes, Ident: "db.view/attributes", ValueType: codec.Ref, Cardinality: "many",
		Doc: "Ordered set of required attribute references for a view definition."},
	{ID: AttrViewDoc, Ident: "db.view/doc", ValueType: codec.Text, Cardinality: "one",
		Doc: "Optional human-readable documentation string for a view."},
	{ID: AttrViewOptionalAttributes, Ident: "db.view/optional-attributes", ValueType: codec.Ref, Cardinality: "many",
		Doc: "Optional attribute references for a view definition."},
}

// enumEntity is a bare entity carrying only a db/ident fact: the
// value-type, cardinality, and uniqueness enum members of spec.md §4.F.
type enumEntity struct {
	ID    int64
	Ident string
}

func enumEntities() []enumEntity {
	out := make([]enumEntity, 0, len(codec.All())+4)
	for _, vt := range codec.All() {
		out = append(out, enumEntity{ID: ValueTypeEntity(vt), Ident: vt.Ident()})
	}
	out = append(out,
		enumEntity{ID: CardinalityOne, Ident: "db.cardinality/one"},
		enumEntity{ID: CardinalityMany, Ident: "db.cardinality/many"},
		enumEntity{ID: UniqueIdentity, Ident: "db.unique/identity"},
		enumEntity{ID: UniqueValue, Ident: "db.unique/value"},
	)
	return out
}
