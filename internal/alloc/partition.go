// Package alloc mints entity ids from named partitions and transaction ids,
// serializing on the partitions table the way spec.md §4.B and §5 require:
// one pessimistic row lock per partition, never two callers returned the
// same id.
package alloc

import "fmt"

// PartitionID is the 16-bit partition discriminator stored in an entity
// id's high bits (spec.md §3, §6.4).
type PartitionID int16

// System partitions seeded at bootstrap (spec.md §3, §6.4).
const (
	PartitionDB   PartitionID = 0
	PartitionTx   PartitionID = 1
	PartitionUser PartitionID = 2
)

const (
	partitionBits = 48
	counterMask   = (int64(1) << partitionBits) - 1
)

// EntityID encodes an entity id: high 16 bits partition, low 48 bits
// counter (spec.md §6.4).
type EntityID int64

// NewEntityID packs a partition id and a within-partition counter into an
// entity id.
func NewEntityID(partition PartitionID, counter int64) EntityID {
	return EntityID((int64(partition) << partitionBits) | (counter & counterMask))
}

// Partition extracts the partition id an entity id was minted from.
func (e EntityID) Partition() PartitionID {
	return PartitionID(int64(e) >> partitionBits)
}

// Counter extracts the within-partition counter of an entity id.
func (e EntityID) Counter() int64 {
	return int64(e) & counterMask
}

func (e EntityID) String() string {
	return fmt.Sprintf("%d", int64(e))
}

// UnknownPartitionError is returned when AllocateEntity is given a
// partition ident the partitions table does not contain (spec.md §4.B, §7).
type UnknownPartitionError struct {
	Ident string
}

func (e *UnknownPartitionError) Error() string {
	return fmt.Sprintf("alloc: unknown partition %q", e.Ident)
}
