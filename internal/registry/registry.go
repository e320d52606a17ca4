// Package registry implements the attribute admin interface of spec.md
// §4.G: declaring an attribute allocates its definition entity, asserts its
// definition datoms, and provisions its typed child relation and indexes in
// the same step.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"mnemo/internal/alloc"
	"mnemo/internal/bootstrap"
	"mnemo/internal/codec"
	"mnemo/internal/datom"
	"mnemo/internal/ident"
)

const parentRelation = "datoms"

// Registry resolves attribute idents to ids and provisions new attributes.
// Resolved ids are cached in-process; the cache is safe for concurrent
// readers and is never invalidated by retraction (spec.md §3 lifecycle: an
// attribute definition entity, once created, keeps its id forever even if
// later facts about it are retracted).
type Registry struct {
	db    *sql.DB
	alloc *alloc.Allocator

	mu    sync.RWMutex
	cache map[string]int64
}

// New builds a Registry backed by db.
func New(db *sql.DB) *Registry {
	return &Registry{
		db:    db,
		alloc: alloc.New(db),
		cache: make(map[string]int64),
	}
}

// AttrID resolves an attribute ident to its entity id (spec.md §6.3
// attr_id). UnknownAttributeError is returned if no db/ident datom names
// it.
func (r *Registry) AttrID(ctx context.Context, q alloc.Querier, name string) (int64, error) {
	r.mu.RLock()
	if id, ok := r.cache[name]; ok {
		r.mu.RUnlock()
		return id, nil
	}
	r.mu.RUnlock()

	row := q.QueryRowContext(ctx,
		`SELECT e FROM attr_db_ident WHERE v_typed = $1 AND retracted_by IS NULL`, name)
	var id int64
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, &UnknownAttributeError{Ident: name}
		}
		return 0, fmt.Errorf("registry: resolving %q: %w", name, err)
	}

	r.mu.Lock()
	r.cache[name] = id
	r.mu.Unlock()
	return id, nil
}

// AttrIDDB is AttrID against the bare *sql.DB.
func (r *Registry) AttrIDDB(ctx context.Context, name string) (int64, error) {
	return r.AttrID(ctx, r.db, name)
}

// Attribute resolves an attribute ident to its full definition: id, value
// type, cardinality, and optional uniqueness/doc. Used by the view compiler
// to derive a view's join shape and column types (spec.md §4.H).
func (r *Registry) Attribute(ctx context.Context, q alloc.Querier, name string) (datom.AttributeDef, error) {
	row := q.QueryRowContext(ctx, `
SELECT i.e, vt.v_typed, c.v_typed, u.v_typed, d.v_typed
FROM attr_db_ident i
JOIN "attr_db_valueType" vt ON vt.e = i.e AND vt.retracted_by IS NULL
JOIN attr_db_cardinality c ON c.e = i.e AND c.retracted_by IS NULL
LEFT JOIN attr_db_unique u ON u.e = i.e AND u.retracted_by IS NULL
LEFT JOIN attr_db_doc d ON d.e = i.e AND d.retracted_by IS NULL
WHERE i.v_typed = $1 AND i.retracted_by IS NULL`, name)

	var id, vtID, cardID int64
	var uniqID sql.NullInt64
	var doc sql.NullString
	if err := row.Scan(&id, &vtID, &cardID, &uniqID, &doc); err != nil {
		if err == sql.ErrNoRows {
			return datom.AttributeDef{}, &UnknownAttributeError{Ident: name}
		}
		return datom.AttributeDef{}, fmt.Errorf("registry: resolving attribute %q: %w", name, err)
	}

	vt, ok := bootstrap.ValueTypeFromEntity(vtID)
	if !ok {
		return datom.AttributeDef{}, fmt.Errorf("registry: attribute %q has unrecognised value type entity %d", name, vtID)
	}
	card := datom.CardinalityOne
	if cardID == bootstrap.CardinalityMany {
		card = datom.CardinalityMany
	}
	unique := datom.UniqueNone
	switch uniqID.Int64 {
	case bootstrap.UniqueIdentity:
		unique = datom.UniqueIdentity
	case bootstrap.UniqueValue:
		unique = datom.UniqueValue
	}

	return datom.AttributeDef{
		ID: id, Ident: name, ValueType: vt, Cardinality: card, Unique: unique, Doc: doc.String,
	}, nil
}

// AttributeDB is Attribute against the bare *sql.DB.
func (r *Registry) AttributeDB(ctx context.Context, name string) (datom.AttributeDef, error) {
	return r.Attribute(ctx, r.db, name)
}

// Definition is the client-supplied shape of a new attribute declaration
// (spec.md §4.G, §6.3 define_attribute).
type Definition struct {
	Ident       string
	ValueType   string
	Cardinality string
	Unique      string // "", "identity", or "value"
	Doc         string
}

// DefineAttribute allocates an entity id in the `db` partition, asserts the
// ident/valueType/cardinality/unique/doc datoms at a fresh transaction, and
// creates the child relation and its indexes (spec.md §4.G). Unknown value
// types or cardinalities are rejected before any table is created.
func (r *Registry) DefineAttribute(ctx context.Context, def Definition) (int64, error) {
	if !ident.Valid(def.Ident) {
		return 0, &InvalidIdentError{Ident: def.Ident}
	}
	vt, err := codec.Parse(def.ValueType)
	if err != nil {
		return 0, err
	}
	card, err := datom.ParseCardinality(def.Cardinality)
	if err != nil {
		return 0, err
	}
	var uniqueID int64
	switch def.Unique {
	case "":
	case "identity":
		uniqueID = bootstrap.UniqueIdentity
	case "value":
		uniqueID = bootstrap.UniqueValue
	default:
		return 0, &UnknownUniqueError{Name: def.Unique}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("registry: beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	entityID, err := r.alloc.AllocateEntity(ctx, tx, "db")
	if err != nil {
		return 0, err
	}
	txnID, _, err := r.alloc.NewTransaction(ctx, tx)
	if err != nil {
		return 0, err
	}

	if err := r.assertAttributeDatoms(ctx, tx, int64(entityID), int64(txnID), def, vt, card, uniqueID); err != nil {
		return 0, err
	}

	spec := datom.NewRelationSpec(parentRelation, datom.AttributeDef{
		ID: int64(entityID), Ident: def.Ident, ValueType: vt,
	})
	for _, step := range spec.Plan().Steps {
		if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
			return 0, fmt.Errorf("registry: provisioning %q: %w", spec.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("registry: committing: %w", err)
	}

	r.mu.Lock()
	r.cache[def.Ident] = int64(entityID)
	r.mu.Unlock()

	return int64(entityID), nil
}

func (r *Registry) assertAttributeDatoms(
	ctx context.Context, tx *sql.Tx, entityID, txnID int64,
	def Definition, vt codec.ValueType, card datom.Cardinality, uniqueID int64,
) error {
	identSpec := codec.Lookup(codec.Text)
	refSpec := codec.Lookup(codec.Ref)

	insert := func(relation string, attrID int64, raw string) error {
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (e, a, v_raw, tx) VALUES ($1, $2, $3, $4)`, ident.Quote(relation)),
			entityID, attrID, raw, txnID)
		if err != nil {
			return fmt.Errorf("registry: asserting attribute %q: %w", def.Ident, err)
		}
		return nil
	}

	canonicalIdent, err := identSpec.Parse(def.Ident)
	if err != nil {
		return err
	}
	if err := insert("attr_db_ident", bootstrap.AttrDBIdent, identSpec.EncodeRaw(canonicalIdent)); err != nil {
		return err
	}

	vtRaw, _ := refSpec.Parse(fmt.Sprintf("%d", bootstrap.ValueTypeEntity(vt)))
	if err := insert("attr_db_valueType", bootstrap.AttrDBValueType, refSpec.EncodeRaw(vtRaw)); err != nil {
		return err
	}

	cardID := bootstrap.CardinalityOne
	if card == datom.CardinalityMany {
		cardID = bootstrap.CardinalityMany
	}
	cardRaw, _ := refSpec.Parse(fmt.Sprintf("%d", cardID))
	if err := insert("attr_db_cardinality", bootstrap.AttrDBCardinality, refSpec.EncodeRaw(cardRaw)); err != nil {
		return err
	}

	if uniqueID != 0 {
		uRaw, _ := refSpec.Parse(fmt.Sprintf("%d", uniqueID))
		if err := insert("attr_db_unique", bootstrap.AttrDBUnique, refSpec.EncodeRaw(uRaw)); err != nil {
			return err
		}
	}

	if def.Doc != "" {
		docRaw, err := identSpec.Parse(def.Doc)
		if err != nil {
			return err
		}
		if err := insert("attr_db_doc", bootstrap.AttrDBDoc, identSpec.EncodeRaw(docRaw)); err != nil {
			return err
		}
	}
	return nil
}

// UnknownAttributeError is returned when an ident resolves to no attribute
// definition (spec.md §7).
type UnknownAttributeError struct {
	Ident string
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("registry: unknown attribute %q", e.Ident)
}

// UnknownUniqueError is returned when an attribute declaration names a
// uniqueness kind other than "identity"/"value".
type UnknownUniqueError struct {
	Name string
}

func (e *UnknownUniqueError) Error() string {
	return fmt.Sprintf("registry: unknown unique kind %q", e.Name)
}

// InvalidIdentError is returned when a declared attribute ident is not a
// well-formed "namespace/name" (spec.md §3 invariant 1).
type InvalidIdentError struct {
	Ident string
}

func (e *InvalidIdentError) Error() string {
	return fmt.Sprintf("registry: invalid attribute ident %q", e.Ident)
}
