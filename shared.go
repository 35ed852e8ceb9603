package depot

import (
	"github.com/rotisserie/eris"
)

// noSharedMatch is the value index used by filters for values that were
// never interned. No chunk ever holds it.
const noSharedMatch = ^uint32(0)

type sharedKey struct {
	typ   TypeIndex
	value any
}

type sharedEntry struct {
	key  sharedKey
	refs int
}

// sharedStore interns shared component values. Index 0 stands for the zero
// value of every shared type and is never reference counted.
type sharedStore struct {
	entries []sharedEntry
	lookup  map[sharedKey]uint32
	free    []uint32
}

func newSharedStore() *sharedStore {
	return &sharedStore{
		entries: make([]sharedEntry, 1),
		lookup:  make(map[sharedKey]uint32),
	}
}

// intern returns the index for value, adding an entry with no references
// when it is new.
func (s *sharedStore) intern(typ TypeIndex, value any, isZero bool) uint32 {
	if isZero {
		return 0
	}
	key := sharedKey{typ: typ, value: value}
	if idx, ok := s.lookup[key]; ok {
		return idx
	}
	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
		s.entries[idx] = sharedEntry{key: key}
	} else {
		idx = uint32(len(s.entries))
		s.entries = append(s.entries, sharedEntry{key: key})
	}
	s.lookup[key] = idx
	return idx
}

// find returns the index for value without interning it.
func (s *sharedStore) find(typ TypeIndex, value any, isZero bool) uint32 {
	if isZero {
		return 0
	}
	if idx, ok := s.lookup[sharedKey{typ: typ, value: value}]; ok {
		return idx
	}
	return noSharedMatch
}

func (s *sharedStore) value(idx uint32) any {
	return s.entries[idx].key.value
}

func (s *sharedStore) retain(idx uint32) {
	if idx == 0 {
		return
	}
	s.entries[idx].refs++
}

func (s *sharedStore) release(idx uint32) {
	if idx == 0 {
		return
	}
	e := &s.entries[idx]
	e.refs--
	if e.refs > 0 {
		return
	}
	delete(s.lookup, e.key)
	*e = sharedEntry{}
	s.free = append(s.free, idx)
}

func (s *sharedStore) len() int {
	return len(s.lookup)
}

// SharedComponent is a component whose value is stored once per chunk.
// Entities with different values live in different chunks of the same
// archetype.
type SharedComponent[T comparable] struct {
	Component
}

func (c SharedComponent[T]) intern(w *World, v T) (TypeIndex, uint32) {
	ti := w.registry.register(c.Component)
	var zero T
	return ti.index, w.shared.intern(ti.index, v, v == zero)
}

// Add attaches the shared component with value v to e.
func (c SharedComponent[T]) Add(w *World, e Entity, v T) error {
	if err := w.AddComponent(e, c.Component); err != nil {
		return err
	}
	return c.Set(w, e, v)
}

// Set changes e's value, moving it to a chunk holding v.
func (c SharedComponent[T]) Set(w *World, e Entity, v T) error {
	if err := w.beforeStructuralChange(); err != nil {
		return err
	}
	slot, ok := w.entities.lookup(e)
	if !ok {
		return eris.Wrapf(ErrEntityDoesNotExist, "set shared component %s on %v", c.Info().Name, e)
	}
	arch := w.archetypes.get(slot.archetype)
	pos := arch.sharedPos(w.TypeIndexOf(c.Component))
	if pos < 0 {
		return ComponentNotFoundError{Component: c.Component}
	}
	_, idx := c.intern(w, v)
	ch := w.chunks.all[slot.chunk]
	if ch.shared[pos] == idx {
		return nil
	}
	shared := append([]uint32(nil), ch.shared...)
	shared[pos] = idx
	w.moveRow(ch, int(slot.row), arch, shared)
	return nil
}

func (c SharedComponent[T]) Get(w *World, e Entity) (T, error) {
	var zero T
	slot, ok := w.entities.lookup(e)
	if !ok {
		return zero, eris.Wrapf(ErrEntityDoesNotExist, "get shared component %s of %v", c.Info().Name, e)
	}
	ti, ok := w.registry.lookup(c.Component)
	if !ok {
		return zero, ComponentNotFoundError{Component: c.Component}
	}
	arch := w.archetypes.get(slot.archetype)
	pos := arch.sharedPos(ti.index)
	if pos < 0 {
		return zero, ComponentNotFoundError{Component: c.Component}
	}
	return c.fromIndex(w, w.chunks.all[slot.chunk].shared[pos]), nil
}

// FromChunk returns the value shared by every row of ch.
func (c SharedComponent[T]) FromChunk(ch Chunk) (T, error) {
	var zero T
	if !ch.Valid() {
		return zero, ErrStaleChunk
	}
	ti, ok := ch.w.registry.lookup(c.Component)
	if !ok {
		return zero, ComponentNotFoundError{Component: c.Component}
	}
	pos := ch.c.arch.sharedPos(ti.index)
	if pos < 0 {
		return zero, ComponentNotFoundError{Component: c.Component}
	}
	return c.fromIndex(ch.w, ch.c.shared[pos]), nil
}

func (c SharedComponent[T]) fromIndex(w *World, idx uint32) T {
	var zero T
	if idx == 0 {
		return zero
	}
	v, _ := w.shared.value(idx).(T)
	return v
}
