package depot

import (
	"unsafe"

	"github.com/rotisserie/eris"
)

const bufferHeaderSize = 16

// bufferHeader prefixes every buffer cell. Elements live inline after the
// header until length exceeds the inline capacity; they then move to an
// overflow allocation in the managed store.
type bufferHeader struct {
	length   uint32
	capacity uint32
	overflow uint32
	_        uint32
}

func bufferStride(info ComponentInfo) int {
	return alignUp(bufferHeaderSize+info.BufferCapacity*int(info.Size), 8)
}

func bufferHeaderAt(cell []byte) *bufferHeader {
	return (*bufferHeader)(unsafe.Pointer(&cell[0]))
}

func initBufferHeader(cell []byte, info ComponentInfo) {
	hdr := bufferHeaderAt(cell)
	hdr.capacity = uint32(info.BufferCapacity)
}

// BufferComponent is a variable-length list of T per entity.
type BufferComponent[T any] struct {
	Component
}

// DynamicBuffer is a view of one entity's buffer. It is valid until the next
// structural change of the world.
type DynamicBuffer[T any] struct {
	header *bufferHeader
	cell   []byte
	store  *managedStore
}

func newDynamicBuffer[T any](cell []byte, store *managedStore) DynamicBuffer[T] {
	return DynamicBuffer[T]{header: bufferHeaderAt(cell), cell: cell, store: store}
}

func (b DynamicBuffer[T]) data() []T {
	if b.header.capacity == 0 {
		return nil
	}
	if unsafe.Sizeof(*new(T)) == 0 {
		return make([]T, b.header.capacity)
	}
	if b.header.overflow != 0 {
		raw := b.store.get(b.header.overflow).([]byte)
		return unsafe.Slice((*T)(unsafe.Pointer(&raw[0])), b.header.capacity)
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b.cell[bufferHeaderSize])), b.header.capacity)
}

func (b DynamicBuffer[T]) Len() int {
	return int(b.header.length)
}

func (b DynamicBuffer[T]) Capacity() int {
	return int(b.header.capacity)
}

func (b DynamicBuffer[T]) At(i int) T {
	return b.data()[:b.header.length][i]
}

func (b DynamicBuffer[T]) Set(i int, v T) {
	b.data()[:b.header.length][i] = v
}

// Reserve grows the buffer so it can hold n elements without reallocating.
func (b DynamicBuffer[T]) Reserve(n int) {
	if n <= int(b.header.capacity) {
		return
	}
	newCap := max(n, 2*int(b.header.capacity), 8)
	size := int(unsafe.Sizeof(*new(T)))
	raw := make([]byte, max(newCap*size, 1))
	if size > 0 && b.header.length > 0 {
		old := b.data()[:b.header.length]
		copy(raw, unsafe.Slice((*byte)(unsafe.Pointer(&old[0])), len(old)*size))
	}
	if b.header.overflow != 0 {
		b.store.set(b.header.overflow, raw)
	} else {
		b.header.overflow = b.store.add(raw)
	}
	b.header.capacity = uint32(newCap)
}

func (b DynamicBuffer[T]) Append(values ...T) {
	need := int(b.header.length) + len(values)
	b.Reserve(need)
	copy(b.data()[b.header.length:need], values)
	b.header.length = uint32(need)
}

// RemoveAt deletes element i, preserving the order of the rest.
func (b DynamicBuffer[T]) RemoveAt(i int) {
	items := b.data()[:b.header.length]
	copy(items[i:], items[i+1:])
	b.header.length--
}

func (b DynamicBuffer[T]) Clear() {
	b.header.length = 0
}

// ToSlice copies the elements out of the buffer.
func (b DynamicBuffer[T]) ToSlice() []T {
	out := make([]T, b.header.length)
	copy(out, b.data())
	return out
}

func (c BufferComponent[T]) cell(w *World, e Entity, write bool) ([]byte, error) {
	ch, row, slot, err := w.componentSlot(e, c.Component, write)
	if err != nil {
		return nil, err
	}
	if ch.arch.columns[slot].kind != columnBuffer {
		return nil, eris.Wrapf(ErrWrongCategory, "%s is not a buffer component", c.Info().Name)
	}
	if write {
		ch.writeVersions[slot] = w.GlobalVersion()
	}
	return ch.rowBytes(slot, row), nil
}

// Get returns a writable view of e's buffer and marks the column changed.
func (c BufferComponent[T]) Get(w *World, e Entity) (DynamicBuffer[T], error) {
	cell, err := c.cell(w, e, true)
	if err != nil {
		return DynamicBuffer[T]{}, err
	}
	return newDynamicBuffer[T](cell, w.managed), nil
}

// Read copies e's buffer elements without marking the column changed.
func (c BufferComponent[T]) Read(w *World, e Entity) ([]T, error) {
	cell, err := c.cell(w, e, false)
	if err != nil {
		return nil, err
	}
	return newDynamicBuffer[T](cell, w.managed).ToSlice(), nil
}

// GetFromCursor returns a writable view of the buffer at the cursor's row.
func (c BufferComponent[T]) GetFromCursor(cursor *Cursor) DynamicBuffer[T] {
	ch, row, slot := cursor.position(c.Component)
	ch.writeVersions[slot] = cursor.world.GlobalVersion()
	return newDynamicBuffer[T](ch.rowBytes(slot, row), cursor.world.managed)
}
