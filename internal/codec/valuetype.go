// Package codec maps each of the 13 logical value types onto a host
// PostgreSQL type for the typed projection column, a canonical string form
// used by the DML translator, and the self-describing encoding stored in
// datoms.v_raw. The set of types is closed and stable (spec.md §3), so
// dispatch is a fixed table rather than a string-keyed registry.
package codec

import "fmt"

// ValueType is one of the 13 logical types an attribute may declare.
type ValueType int

const (
	Text ValueType = iota
	Int4
	Int8
	Float4
	Float8
	Numeric
	Bool
	Timestamptz
	Date
	UUID
	Bytea
	JSONB
	Ref
)

// allValueTypes lists every member of the closed set, in bootstrap
// enumeration order (spec.md §4.F, ids 100-112).
var allValueTypes = []ValueType{
	Text, Int4, Int8, Float4, Float8, Numeric, Bool,
	Timestamptz, Date, UUID, Bytea, JSONB, Ref,
}

// All returns every supported value type.
func All() []ValueType {
	out := make([]ValueType, len(allValueTypes))
	copy(out, allValueTypes)
	return out
}

// Ident returns the bootstrap-seeded ident for this type's enum entity,
// e.g. "db.type/text". Used when asserting or resolving db/valueType facts.
func (vt ValueType) Ident() string {
	name, ok := names[vt]
	if !ok {
		return ""
	}
	return "db.type/" + name
}

// String renders the bare type name, e.g. "text", "ref".
func (vt ValueType) String() string {
	name, ok := names[vt]
	if !ok {
		return fmt.Sprintf("ValueType(%d)", int(vt))
	}
	return name
}

var names = map[ValueType]string{
	Text:        "text",
	Int4:        "int4",
	Int8:        "int8",
	Float4:      "float4",
	Float8:      "float8",
	Numeric:     "numeric",
	Bool:        "bool",
	Timestamptz: "timestamptz",
	Date:        "date",
	UUID:        "uuid",
	Bytea:       "bytea",
	JSONB:       "jsonb",
	Ref:         "ref",
}

var byName = func() map[string]ValueType {
	m := make(map[string]ValueType, len(names))
	for vt, name := range names {
		m[name] = vt
	}
	return m
}()

// Parse resolves a bare type name ("text", "ref", ...) to its ValueType.
// UnknownValueTypeError is returned for any name outside the closed set.
func Parse(name string) (ValueType, error) {
	vt, ok := byName[name]
	if !ok {
		return 0, &UnknownValueTypeError{Name: name}
	}
	return vt, nil
}

// UnknownValueTypeError is returned when an attribute declaration names a
// value type outside the closed 13-member set (spec.md §4.G, §7).
type UnknownValueTypeError struct {
	Name string
}

func (e *UnknownValueTypeError) Error() string {
	return fmt.Sprintf("codec: unknown value type %q", e.Name)
}
