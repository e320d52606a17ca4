package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityIDEncoding(t *testing.T) {
	id := NewEntityID(PartitionUser, 1)
	assert.Equal(t, PartitionUser, id.Partition())
	assert.Equal(t, int64(1), id.Counter())
}

func TestEntityIDFirstIDPerPartition(t *testing.T) {
	// spec.md §8 boundary behaviour: first id from partition p is (p<<48)|1.
	for _, p := range []PartitionID{PartitionDB, PartitionTx, PartitionUser} {
		id := NewEntityID(p, 1)
		assert.Equal(t, EntityID(int64(p)<<48|1), id)
	}
}

func TestEntityIDDistinctPartitionsDistinctIDs(t *testing.T) {
	a := NewEntityID(PartitionDB, 5)
	b := NewEntityID(PartitionUser, 5)
	assert.NotEqual(t, a, b)
}

func TestUnknownPartitionError(t *testing.T) {
	err := &UnknownPartitionError{Ident: "bogus"}
	assert.Contains(t, err.Error(), "bogus")
}
