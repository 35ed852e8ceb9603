package depot

import (
	"unsafe"
)

type chunkID uint32

// chunk is one block of rows of a single archetype. Rows [0,count) are dense.
type chunk struct {
	id          chunkID
	incarnation uint32
	arch        *archetype
	block       []byte
	count       int
	listIndex   int
	// parallel to arch.types
	writeVersions []uint32
	orderVersion  uint32
	// parallel to arch.sharedSlots; interned value indices
	shared []uint32
}

func (c *chunk) capacity() int {
	return c.arch.chunkCapacity
}

func (c *chunk) full() bool {
	return c.count >= c.arch.chunkCapacity
}

func (c *chunk) rowBytes(slot, row int) []byte {
	col := c.arch.columns[slot]
	start := col.offset + row*col.stride
	return c.block[start : start+col.stride : start+col.stride]
}

func (c *chunk) entities() []Entity {
	return columnSlice[Entity](c, c.arch.entitySlot)
}

func (c *chunk) stampAll(version uint32) {
	for i := range c.writeVersions {
		c.writeVersions[i] = version
	}
	c.orderVersion = version
}

// columnSlice views the live rows of a column as []T. The caller guarantees T
// matches the column's element type.
func columnSlice[T any](c *chunk, slot int) []T {
	col := c.arch.columns[slot]
	if c.count == 0 {
		return nil
	}
	if col.stride == 0 {
		return make([]T, c.count)
	}
	if debugChecks && uintptr(col.stride) != unsafe.Sizeof(*new(T)) {
		panic("depot: column element size does not match accessor type")
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&c.block[col.offset])), c.count)
}

func columnValue[T any](c *chunk, slot, row int) *T {
	col := c.arch.columns[slot]
	return (*T)(unsafe.Pointer(&c.block[col.offset+row*col.stride]))
}

type chunkArena struct {
	all  []*chunk
	free []chunkID
}

func (a *chunkArena) acquire() *chunk {
	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		return a.all[id]
	}
	c := &chunk{id: chunkID(len(a.all))}
	a.all = append(a.all, c)
	return c
}

func (a *chunkArena) release(c *chunk) {
	a.free = append(a.free, c.id)
}

// Chunk is a handle to a chunk returned by a query. It becomes stale once
// the chunk is released to the pool; operations on a stale handle fail with
// ErrStaleChunk.
type Chunk struct {
	c           *chunk
	incarnation uint32
	w           *World
}

func newChunkHandle(w *World, c *chunk) Chunk {
	return Chunk{c: c, incarnation: c.incarnation, w: w}
}

// Valid reports whether the chunk still holds the rows it held when the
// handle was taken.
func (ch Chunk) Valid() bool {
	return ch.c != nil && ch.c.incarnation == ch.incarnation && ch.c.arch != nil
}

func (ch Chunk) Count() int {
	if !ch.Valid() {
		return 0
	}
	return ch.c.count
}

func (ch Chunk) Capacity() int {
	if !ch.Valid() {
		return 0
	}
	return ch.c.capacity()
}

func (ch Chunk) Full() bool {
	return ch.Valid() && ch.c.full()
}

func (ch Chunk) Archetype() Archetype {
	if !ch.Valid() {
		return nil
	}
	return ch.c.arch
}

// Entities returns the chunk's entity column. The slice aliases chunk memory
// and must not be modified or retained across structural changes.
func (ch Chunk) Entities() ([]Entity, error) {
	if !ch.Valid() {
		return nil, ErrStaleChunk
	}
	return ch.c.entities(), nil
}

func (ch Chunk) Has(c Component) bool {
	if !ch.Valid() {
		return false
	}
	ti, ok := ch.w.registry.lookup(c)
	return ok && ch.c.arch.hasType(ti.index)
}

func (ch Chunk) OrderVersion() uint32 {
	if !ch.Valid() {
		return 0
	}
	return ch.c.orderVersion
}

// ChangeVersion returns the write version of c's column in this chunk, or 0
// when the chunk's archetype does not contain c.
func (ch Chunk) ChangeVersion(c Component) uint32 {
	if !ch.Valid() {
		return 0
	}
	ti, ok := ch.w.registry.lookup(c)
	if !ok {
		return 0
	}
	slot := ch.c.arch.slotOf(ti.index)
	if slot < 0 {
		return 0
	}
	return ch.c.writeVersions[slot]
}

// DidChange reports whether c was written in this chunk after version.
func (ch Chunk) DidChange(c Component, version uint32) bool {
	return DidChange(ch.ChangeVersion(c), version)
}
