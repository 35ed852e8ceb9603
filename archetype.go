package depot

import (
	"slices"

	"github.com/TheBitDrifter/mask"
)

type archetypeID uint32

// Archetype is the set of component types shared by every entity stored in
// its chunks.
type Archetype interface {
	ID() uint32
	Components() []Component
	Has(Component) bool
	ChunkCapacity() int
	ChunkCount() int
	EntityCount() int
	Mask() mask.Mask
}

var _ Archetype = &archetype{}

type columnKind uint8

const (
	columnNone columnKind = iota
	columnEntity
	columnData
	columnManaged
	columnBuffer
)

type column struct {
	kind   columnKind
	offset int
	stride int
}

type archetype struct {
	id    archetypeID
	mask  mask.Mask
	types []*typeInfo // sorted by type index
	// parallel to types; kind columnNone for zero-size and shared types
	columns    []column
	slots      [MaxComponentTypes]int16
	entitySlot int
	// slot positions of shared types, in slot order; chunk.shared is parallel
	sharedSlots   []int
	bufferSlots   []int
	managedSlots  []int
	chunkCapacity int
	chunks        []*chunk
	entityCount   int
	prefab        bool
	disabled      bool
	pruned        bool
}

func newArchetype(id archetypeID, m mask.Mask, types []*typeInfo, chunkSize, maxCapacity int) (*archetype, error) {
	sorted := slices.Clone(types)
	slices.SortFunc(sorted, func(a, b *typeInfo) int { return int(a.index) - int(b.index) })

	arche := &archetype{
		id:    id,
		mask:  m,
		types: sorted,
	}
	for i := range arche.slots {
		arche.slots[i] = -1
	}
	for slot, ti := range sorted {
		arche.slots[ti.index] = int16(slot)
		switch ti.info.Category {
		case CategorySharedValue:
			arche.sharedSlots = append(arche.sharedSlots, slot)
		case CategoryBuffer:
			arche.bufferSlots = append(arche.bufferSlots, slot)
		case CategoryManagedRef:
			arche.managedSlots = append(arche.managedSlots, slot)
		}
		if ti.comp == EntityType.base() {
			arche.entitySlot = slot
		}
		if ti.comp == Prefab.base() {
			arche.prefab = true
		}
		if ti.comp == Disabled.base() {
			arche.disabled = true
		}
	}
	columns, capacity, err := computeLayout(sorted, chunkSize, maxCapacity)
	if err != nil {
		return nil, err
	}
	arche.columns = columns
	arche.chunkCapacity = capacity
	return arche, nil
}

func columnKindOf(ti *typeInfo) columnKind {
	if ti.comp == EntityType.base() {
		return columnEntity
	}
	switch ti.info.Category {
	case CategoryData:
		return columnData
	case CategoryManagedRef:
		return columnManaged
	case CategoryBuffer:
		return columnBuffer
	}
	return columnNone
}

func columnStride(ti *typeInfo, kind columnKind) (stride, align int) {
	switch kind {
	case columnEntity, columnData:
		return int(ti.info.Size), max(int(ti.info.Align), 1)
	case columnManaged:
		return 4, 4
	case columnBuffer:
		return bufferStride(ti.info), 8
	}
	return 0, 1
}

// computeLayout places the entity column first, then data, managed handle and
// buffer columns, each group in type index order. It returns the largest row
// count whose aligned columns fit a block of chunkSize bytes.
func computeLayout(types []*typeInfo, chunkSize, maxCapacity int) ([]column, int, error) {
	columns := make([]column, len(types))
	order := make([]int, 0, len(types))
	rowSize := 0
	for slot, ti := range types {
		kind := columnKindOf(ti)
		columns[slot].kind = kind
		if kind == columnNone {
			continue
		}
		stride, _ := columnStride(ti, kind)
		columns[slot].stride = stride
		rowSize += stride
		order = append(order, slot)
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return int(columns[a].kind) - int(columns[b].kind)
	})

	place := func(capacity int) int {
		offset := 0
		for _, slot := range order {
			_, align := columnStride(types[slot], columns[slot].kind)
			offset = alignUp(offset, align)
			columns[slot].offset = offset
			offset += columns[slot].stride * capacity
		}
		return offset
	}

	if rowSize == 0 {
		return nil, 0, ArchetypeTooLargeError{RowSize: rowSize, ChunkSize: chunkSize}
	}
	capacity := chunkSize / rowSize
	if maxCapacity > 0 && capacity > maxCapacity {
		capacity = maxCapacity
	}
	for capacity > 0 && place(capacity) > chunkSize {
		capacity--
	}
	if capacity == 0 {
		return nil, 0, ArchetypeTooLargeError{RowSize: rowSize, ChunkSize: chunkSize}
	}
	return columns, capacity, nil
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

func (a *archetype) ID() uint32 {
	return uint32(a.id)
}

func (a *archetype) Mask() mask.Mask {
	return a.mask
}

func (a *archetype) Components() []Component {
	comps := make([]Component, len(a.types))
	for i, ti := range a.types {
		comps[i] = ti.comp
	}
	return comps
}

func (a *archetype) Has(c Component) bool {
	b := c.base()
	for _, ti := range a.types {
		if ti.comp == b {
			return true
		}
	}
	return false
}

func (a *archetype) ChunkCapacity() int {
	return a.chunkCapacity
}

func (a *archetype) ChunkCount() int {
	return len(a.chunks)
}

func (a *archetype) EntityCount() int {
	return a.entityCount
}

func (a *archetype) slotOf(idx TypeIndex) int {
	return int(a.slots[idx])
}

func (a *archetype) hasType(idx TypeIndex) bool {
	return a.slots[idx] >= 0
}

// sharedPos returns the position of a shared type's value in chunk.shared,
// or -1.
func (a *archetype) sharedPos(idx TypeIndex) int {
	slot := a.slots[idx]
	if slot < 0 {
		return -1
	}
	for pos, s := range a.sharedSlots {
		if s == int(slot) {
			return pos
		}
	}
	return -1
}

// lastChunkFor returns the last chunk holding exactly the given shared
// values, or nil.
func (a *archetype) lastChunkFor(shared []uint32) *chunk {
	for i := len(a.chunks) - 1; i >= 0; i-- {
		if slices.Equal(a.chunks[i].shared, shared) {
			return a.chunks[i]
		}
	}
	return nil
}
