package depot

import (
	"github.com/rotisserie/eris"
)

// managedStore holds Go values referenced from chunk columns by uint32
// handles. Handle 0 is nil.
type managedStore struct {
	items []any
	free  []uint32
	live  int
}

func newManagedStore() *managedStore {
	return &managedStore{items: make([]any, 1)}
}

func (s *managedStore) add(v any) uint32 {
	s.live++
	if n := len(s.free); n > 0 {
		h := s.free[n-1]
		s.free = s.free[:n-1]
		s.items[h] = v
		return h
	}
	s.items = append(s.items, v)
	return uint32(len(s.items) - 1)
}

func (s *managedStore) get(h uint32) any {
	return s.items[h]
}

func (s *managedStore) set(h uint32, v any) {
	s.items[h] = v
}

func (s *managedStore) remove(h uint32) {
	if h == 0 {
		return
	}
	s.items[h] = nil
	s.free = append(s.free, h)
	s.live--
}

// ManagedComponent stores an arbitrary Go value per entity. The chunk column
// holds only a handle into the world's managed store, so values may contain
// pointers, strings and slices.
type ManagedComponent[T any] struct {
	Component
}

func (c ManagedComponent[T]) locate(w *World, e Entity, write bool) (*uint32, error) {
	ch, row, slot, err := w.componentSlot(e, c.Component, write)
	if err != nil {
		return nil, err
	}
	if write {
		ch.writeVersions[slot] = w.GlobalVersion()
	}
	return columnValue[uint32](ch, slot, row), nil
}

// Get returns the entity's value, or the zero value when none was set.
func (c ManagedComponent[T]) Get(w *World, e Entity) (T, error) {
	var zero T
	h, err := c.locate(w, e, false)
	if err != nil {
		return zero, err
	}
	if *h == 0 {
		return zero, nil
	}
	v, ok := w.managed.get(*h).(T)
	if !ok {
		return zero, eris.Wrapf(ErrWrongCategory, "managed value of %s has unexpected type", c.Info().Name)
	}
	return v, nil
}

func (c ManagedComponent[T]) Set(w *World, e Entity, v T) error {
	h, err := c.locate(w, e, true)
	if err != nil {
		return err
	}
	if *h == 0 {
		*h = w.managed.add(v)
		return nil
	}
	w.managed.set(*h, v)
	return nil
}

// GetFromCursor returns the value at the cursor's current row.
func (c ManagedComponent[T]) GetFromCursor(cursor *Cursor) T {
	var zero T
	ch, row, slot := cursor.position(c.Component)
	h := *columnValue[uint32](ch, slot, row)
	if h == 0 {
		return zero
	}
	v, _ := cursor.world.managed.get(h).(T)
	return v
}

// SetFromCursor stores v for the entity at the cursor's current row.
func (c ManagedComponent[T]) SetFromCursor(cursor *Cursor, v T) {
	ch, row, slot := cursor.position(c.Component)
	ch.writeVersions[slot] = cursor.world.GlobalVersion()
	h := columnValue[uint32](ch, slot, row)
	if *h == 0 {
		*h = cursor.world.managed.add(v)
		return
	}
	cursor.world.managed.set(*h, v)
}
