package depot

import "fmt"

// Entity is a generation-checked handle to a row in the world. The zero
// value never refers to a live entity.
type Entity struct {
	ID         uint32
	Generation uint32
}

// NullEntity is the zero handle.
var NullEntity = Entity{}

func (e Entity) IsNull() bool {
	return e == NullEntity
}

func (e Entity) String() string {
	return fmt.Sprintf("Entity(%d:%d)", e.ID, e.Generation)
}

type entitySlot struct {
	generation uint32
	alive      bool
	archetype  archetypeID
	chunk      chunkID
	row        uint32
}

// locationTable maps entity ids to their chunk row. Ids of destroyed entities
// are reused last-in first-out with a bumped generation.
type locationTable struct {
	slots []entitySlot
	free  []uint32
	alive int
}

func newLocationTable() locationTable {
	// id 0 is reserved so NullEntity never resolves
	return locationTable{slots: make([]entitySlot, 1)}
}

func (t *locationTable) allocate() Entity {
	var id uint32
	if n := len(t.free); n > 0 {
		id = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		id = uint32(len(t.slots))
		t.slots = append(t.slots, entitySlot{generation: 1})
	}
	t.slots[id].alive = true
	t.alive++
	return Entity{ID: id, Generation: t.slots[id].generation}
}

func (t *locationTable) release(id uint32) {
	slot := &t.slots[id]
	slot.alive = false
	slot.generation = nextVersion(slot.generation)
	t.free = append(t.free, id)
	t.alive--
}

func (t *locationTable) lookup(e Entity) (*entitySlot, bool) {
	if e.ID == 0 || int(e.ID) >= len(t.slots) {
		return nil, false
	}
	slot := &t.slots[e.ID]
	if !slot.alive || slot.generation != e.Generation {
		return nil, false
	}
	return slot, true
}

func (t *locationTable) reserve(n int) {
	need := len(t.slots) + n - len(t.free)
	if need > cap(t.slots) {
		grown := make([]entitySlot, len(t.slots), max(need, 2*cap(t.slots)))
		copy(grown, t.slots)
		t.slots = grown
	}
}
