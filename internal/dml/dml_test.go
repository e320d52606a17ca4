package dml

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mnemo/internal/codec"
	"mnemo/internal/datom"
)

func attrs() []Attr {
	return []Attr{
		{AttributeID: 300, Relation: "attr_person_email", Column: "email", ValueType: codec.Text, Cardinality: datom.CardinalityOne, Required: true},
		{AttributeID: 301, Relation: "attr_person_tag", Column: "tag", ValueType: codec.Text, Cardinality: datom.CardinalityMany, Required: false},
	}
}

func TestTriggerFunctionsCount(t *testing.T) {
	funcs := TriggerFunctions("person", attrs())
	assert.Len(t, funcs, 3)
	events := map[string]bool{}
	for _, f := range funcs {
		events[f.Event] = true
	}
	assert.True(t, events["INSERT"])
	assert.True(t, events["UPDATE"])
	assert.True(t, events["DELETE"])
}

func TestInsertFuncAllocatesAndAssertsNonNull(t *testing.T) {
	f := insertFunc("person", attrs())
	assert.Contains(t, f.CreateFunction, "mnemo_allocate_entity('user')")
	assert.Contains(t, f.CreateFunction, "mnemo_new_transaction()")
	assert.Contains(t, f.CreateFunction, `NEW."email" IS NOT NULL`)
	assert.Contains(t, f.CreateFunction, "unnest(NEW.\"tag\")")
	assert.Contains(t, f.CreateFunction, "NEW.id := new_e")
}

func TestUpdateFuncUsesIsDistinctFrom(t *testing.T) {
	f := updateFunc("person", attrs())
	assert.Contains(t, f.CreateFunction, `NEW."email" IS DISTINCT FROM OLD."email"`)
	assert.Contains(t, f.CreateFunction, "retracted_by = new_tx")
}

func TestDeleteFuncRetractsEveryAttribute(t *testing.T) {
	f := deleteFunc("person", attrs())
	assert.Contains(t, f.CreateFunction, `"attr_person_email"`)
	assert.Contains(t, f.CreateFunction, `"attr_person_tag"`)
	assert.Contains(t, f.CreateFunction, "RETURN OLD")
}
