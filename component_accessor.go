package depot

import (
	"iter"

	"github.com/rotisserie/eris"
)

// ComponentTypeHandle gives typed column access for chunks handed out by
// queries. Handles are immutable and may be shared by parallel jobs; slot
// resolution goes through the archetype's type index table.
type ComponentTypeHandle[T any] struct {
	index    TypeIndex
	readOnly bool
	comp     Component
}

// NewComponentTypeHandle returns a handle for c in w. Read-only handles
// never bump versions and refuse write access.
func NewComponentTypeHandle[T any](w *World, c AccessibleComponent[T], readOnly bool) *ComponentTypeHandle[T] {
	return &ComponentTypeHandle[T]{
		index:    w.registry.register(c.Component).index,
		readOnly: readOnly,
		comp:     c.Component,
	}
}

func (h *ComponentTypeHandle[T]) ReadOnly() bool {
	return h.readOnly
}

func (h *ComponentTypeHandle[T]) slot(a *archetype) int {
	slot := a.slotOf(h.index)
	if debugChecks && slot >= 0 && a.types[slot].index != h.index {
		panic("depot: archetype slot table out of sync")
	}
	return slot
}

// ColumnView is a read-only view of one chunk column.
type ColumnView[T any] struct {
	data []T
}

func (v ColumnView[T]) Len() int {
	return len(v.data)
}

func (v ColumnView[T]) At(i int) T {
	return v.data[i]
}

func (v ColumnView[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i, item := range v.data {
			if !yield(i, item) {
				return
			}
		}
	}
}

// Copy returns the column's values in a fresh slice.
func (v ColumnView[T]) Copy() []T {
	return append([]T(nil), v.data...)
}

func (h *ComponentTypeHandle[T]) column(ch Chunk) ([]T, int, error) {
	if !ch.Valid() {
		return nil, 0, ErrStaleChunk
	}
	slot := h.slot(ch.c.arch)
	if slot < 0 {
		return nil, 0, ComponentNotFoundError{Component: h.comp}
	}
	return columnSlice[T](ch.c, slot), slot, nil
}

// ChunkColumn returns a read view of h's column in ch.
func ChunkColumn[T any](ch Chunk, h *ComponentTypeHandle[T]) (ColumnView[T], error) {
	data, _, err := h.column(ch)
	if err != nil {
		return ColumnView[T]{}, err
	}
	return ColumnView[T]{data: data}, nil
}

// ChunkColumnForWrite returns h's column in ch as a mutable slice and stamps
// the column with the current global version.
func ChunkColumnForWrite[T any](ch Chunk, h *ComponentTypeHandle[T]) ([]T, error) {
	if h.readOnly {
		return nil, eris.Wrapf(ErrReadOnlyHandle, "%s", h.comp.Info().Name)
	}
	data, slot, err := h.column(ch)
	if err != nil {
		return nil, err
	}
	ch.c.writeVersions[slot] = ch.w.GlobalVersion()
	return data, nil
}

// Has reports whether ch's archetype holds h's component.
func (h *ComponentTypeHandle[T]) Has(ch Chunk) bool {
	return ch.Valid() && h.slot(ch.c.arch) >= 0
}

// DidChange reports whether h's column in ch was written after version.
func (h *ComponentTypeHandle[T]) DidChange(ch Chunk, version uint32) bool {
	if !ch.Valid() {
		return false
	}
	slot := h.slot(ch.c.arch)
	if slot < 0 {
		return false
	}
	return DidChange(ch.c.writeVersions[slot], version)
}
