package depot

// AccessibleComponent extends a base Component with typed per-entity and
// per-cursor access to its column.
type AccessibleComponent[T any] struct {
	Component
}

// Get returns a copy of e's value. Zero-size components yield the zero value.
func (c AccessibleComponent[T]) Get(w *World, e Entity) (T, error) {
	var zero T
	ch, row, slot, err := w.componentSlot(e, c.Component, false)
	if err != nil {
		return zero, err
	}
	if ch.arch.columns[slot].stride == 0 {
		return zero, nil
	}
	return *columnValue[T](ch, slot, row), nil
}

// GetForWrite returns a pointer into e's row and marks the column changed.
// The pointer is invalidated by the next structural change.
func (c AccessibleComponent[T]) GetForWrite(w *World, e Entity) (*T, error) {
	ch, row, slot, err := w.componentSlot(e, c.Component, true)
	if err != nil {
		return nil, err
	}
	ch.writeVersions[slot] = w.GlobalVersion()
	if ch.arch.columns[slot].stride == 0 {
		return new(T), nil
	}
	return columnValue[T](ch, slot, row), nil
}

func (c AccessibleComponent[T]) Set(w *World, e Entity, v T) error {
	ptr, err := c.GetForWrite(w, e)
	if err != nil {
		return err
	}
	*ptr = v
	return nil
}

// GetFromCursor returns a pointer to the value at the cursor position and
// marks the column changed.
func (c AccessibleComponent[T]) GetFromCursor(cursor *Cursor) *T {
	ch, row, slot := cursor.position(c.Component)
	ch.writeVersions[slot] = cursor.world.GlobalVersion()
	if ch.arch.columns[slot].stride == 0 {
		return new(T)
	}
	return columnValue[T](ch, slot, row)
}

// ReadFromCursor returns a copy of the value at the cursor position without
// marking the column changed.
func (c AccessibleComponent[T]) ReadFromCursor(cursor *Cursor) T {
	var zero T
	ch, row, slot := cursor.position(c.Component)
	if ch.arch.columns[slot].stride == 0 {
		return zero
	}
	return *columnValue[T](ch, slot, row)
}

// GetFromCursorSafe is GetFromCursor for components the current archetype
// may lack.
func (c AccessibleComponent[T]) GetFromCursorSafe(cursor *Cursor) (bool, *T) {
	if !c.CheckCursor(cursor) {
		return false, nil
	}
	return true, c.GetFromCursor(cursor)
}

// CheckCursor determines if the component exists in the archetype at the
// cursor position.
func (c AccessibleComponent[T]) CheckCursor(cursor *Cursor) bool {
	return cursor.has(c.Component)
}

// Handle returns a chunk column handle for c.
func (c AccessibleComponent[T]) Handle(w *World, readOnly bool) *ComponentTypeHandle[T] {
	return NewComponentTypeHandle(w, c, readOnly)
}
