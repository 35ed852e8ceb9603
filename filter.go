package depot

import (
	"github.com/rotisserie/eris"
)

const (
	maxChangeFilters = 2
	maxSharedFilters = 2
)

type sharedFilter struct {
	typ    TypeIndex
	value  any
	isZero bool
}

// Filter narrows a query's matched chunks by column change version and by
// shared component value.
type Filter struct {
	// positions in the query's required type list
	changed         []int
	requiredVersion uint32
	shared          []sharedFilter
}

func (f *Filter) clone() Filter {
	return Filter{
		changed:         append([]int(nil), f.changed...),
		requiredVersion: f.requiredVersion,
		shared:          append([]sharedFilter(nil), f.shared...),
	}
}

func (f *Filter) empty() bool {
	return len(f.changed) == 0 && len(f.shared) == 0
}

// resolve looks up the interned index of each shared filter value. Values
// are resolved per evaluation since indices are recycled once unused.
func (f *Filter) resolve(store *sharedStore) []uint32 {
	if len(f.shared) == 0 {
		return nil
	}
	indices := make([]uint32, len(f.shared))
	for i, sf := range f.shared {
		indices[i] = store.find(sf.typ, sf.value, sf.isZero)
	}
	return indices
}

func (f *Filter) passes(m *matchingArchetype, c *chunk, sharedIndices []uint32) bool {
	for i, sf := range f.shared {
		pos := m.arch.sharedPos(sf.typ)
		if pos < 0 || c.shared[pos] != sharedIndices[i] {
			return false
		}
	}
	for _, p := range f.changed {
		slot := m.slots[p]
		if slot < 0 || !DidChange(c.writeVersions[slot], f.requiredVersion) {
			return false
		}
	}
	return true
}

// ResetFilter removes every change and shared filter.
func (q *EntityQuery) ResetFilter() {
	q.filter = Filter{}
}

func (q *EntityQuery) HasFilter() bool {
	return !q.filter.empty()
}

func (q *EntityQuery) changedPosition(c Component) (int, error) {
	ti, ok := q.world.registry.lookup(c)
	if !ok {
		return 0, eris.Wrapf(ErrComponentNotInQuery, "change filter on %s", c.Info().Name)
	}
	pos := q.data.position(ti.index)
	if pos < 0 || ti == q.world.entityType {
		return 0, eris.Wrapf(ErrComponentNotInQuery, "change filter on %s", c.Info().Name)
	}
	return pos, nil
}

// SetChangedVersionFilter replaces the change filter: only chunks where every
// listed type was written after the required version pass.
func (q *EntityQuery) SetChangedVersionFilter(components ...Component) error {
	if len(components) > maxChangeFilters {
		return FilterLimitError{Kind: "change", Limit: maxChangeFilters}
	}
	changed := make([]int, 0, len(components))
	for _, c := range components {
		pos, err := q.changedPosition(c)
		if err != nil {
			return err
		}
		changed = append(changed, pos)
	}
	q.filter.changed = changed
	return nil
}

// AddChangedVersionFilter adds one type to the change filter.
func (q *EntityQuery) AddChangedVersionFilter(c Component) error {
	pos, err := q.changedPosition(c)
	if err != nil {
		return err
	}
	for _, p := range q.filter.changed {
		if p == pos {
			return nil
		}
	}
	if len(q.filter.changed) >= maxChangeFilters {
		return FilterLimitError{Kind: "change", Limit: maxChangeFilters}
	}
	q.filter.changed = append(q.filter.changed, pos)
	return nil
}

// SetChangedFilterRequiredVersion sets the version change filters compare
// against, usually the version a system last ran at.
func (q *EntityQuery) SetChangedFilterRequiredVersion(version uint32) {
	q.filter.requiredVersion = version
}

// AddSharedComponentFilter keeps only chunks whose shared value of c equals
// value. A value no entity has ever used matches nothing.
func AddSharedComponentFilter[T comparable](q *EntityQuery, c SharedComponent[T], value T) error {
	if len(q.filter.shared) >= maxSharedFilters {
		return FilterLimitError{Kind: "shared component", Limit: maxSharedFilters}
	}
	ti, ok := q.world.registry.lookup(c.Component)
	if !ok || !q.requiresAll(ti.index) {
		return eris.Wrapf(ErrComponentNotInQuery, "shared filter on %s must name an All type", c.Info().Name)
	}
	var zero T
	q.filter.shared = append(q.filter.shared, sharedFilter{typ: ti.index, value: value, isZero: value == zero})
	return nil
}

// SetSharedComponentFilter replaces all shared filters with one constraint.
func SetSharedComponentFilter[T comparable](q *EntityQuery, c SharedComponent[T], value T) error {
	saved := q.filter.shared
	q.filter.shared = nil
	if err := AddSharedComponentFilter(q, c, value); err != nil {
		q.filter.shared = saved
		return err
	}
	return nil
}

func (q *EntityQuery) requiresAll(idx TypeIndex) bool {
	m := maskOf(idx)
	for i := range q.data.descs {
		if !q.data.descs[i].all.ContainsAll(m) {
			return false
		}
	}
	return true
}
