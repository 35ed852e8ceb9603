package depot

import (
	"context"
	"iter"

	iter_util "github.com/TheBitDrifter/util/iter"
	"github.com/rotisserie/eris"
)

// EntityQuery is a compiled query plus its own filter. Queries created from
// identical descriptions share match data, never filters.
type EntityQuery struct {
	world  *World
	data   *queryData
	filter Filter
}

func newEntityQuery(w *World, data *queryData) *EntityQuery {
	return &EntityQuery{world: w, data: data}
}

type chunkRef struct {
	m *matchingArchetype
	c *chunk
}

// Deferred is the result of an asynchronous extraction. The items must not
// be read before Handle completes.
type Deferred[T any] struct {
	Handle JobHandle
	items  []T
}

// Result waits for the extraction job and returns its items.
func (d *Deferred[T]) Result() ([]T, error) {
	if err := d.Handle.Complete(); err != nil {
		return nil, err
	}
	return d.items, nil
}

func (q *EntityQuery) World() *World {
	return q.world
}

func (q *EntityQuery) update() {
	q.data.rescan(q.world)
}

func (q *EntityQuery) matchedChunks() []chunkRef {
	q.update()
	var refs []chunkRef
	for i := range q.data.matched {
		m := &q.data.matched[i]
		for _, c := range m.arch.chunks {
			refs = append(refs, chunkRef{m: m, c: c})
		}
	}
	return refs
}

func filterChunks(w *World, refs []chunkRef, f *Filter, sharedIndices []uint32) []Chunk {
	out := make([]Chunk, 0, len(refs))
	for _, ref := range refs {
		if f.empty() || f.passes(ref.m, ref.c, sharedIndices) {
			out = append(out, newChunkHandle(w, ref.c))
		}
	}
	return out
}

// chunks yields every matched chunk, skipping those the filter rejects when
// filtered is set.
func (q *EntityQuery) chunks(filtered bool) iter.Seq2[*matchingArchetype, *chunk] {
	return func(yield func(*matchingArchetype, *chunk) bool) {
		q.update()
		apply := filtered && !q.filter.empty()
		var sharedIndices []uint32
		if apply {
			sharedIndices = q.filter.resolve(q.world.shared)
		}
		for i := range q.data.matched {
			m := &q.data.matched[i]
			for _, c := range m.arch.chunks {
				if apply && !q.filter.passes(m, c, sharedIndices) {
					continue
				}
				if !yield(m, c) {
					return
				}
			}
		}
	}
}

func (q *EntityQuery) completeFilterDependencies() {
	for _, p := range q.filter.changed {
		if err := q.world.deps.CompleteWriteDependency(q.data.required[p]); err != nil {
			q.world.logger.Warn().Err(err).Msg("job writing a change-filtered type failed")
		}
	}
}

func (q *EntityQuery) filterDependencies() []TypeIndex {
	reads := []TypeIndex{q.world.entityType.index}
	for _, p := range q.filter.changed {
		reads = append(reads, q.data.required[p])
	}
	return reads
}

// Chunks iterates the chunks passing the filter in match order.
func (q *EntityQuery) Chunks() iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		q.completeFilterDependencies()
		for _, c := range q.chunks(true) {
			if !yield(newChunkHandle(q.world, c)) {
				return
			}
		}
	}
}

func (q *EntityQuery) ToChunkArray() []Chunk {
	return iter_util.Collect(q.Chunks())
}

// ToChunkArrayAsync collects the passing chunks once jobs writing
// change-filtered types are done.
func (q *EntityQuery) ToChunkArrayAsync(ctx context.Context) *Deferred[Chunk] {
	refs := q.matchedChunks()
	filter := q.filter.clone()
	sharedIndices := filter.resolve(q.world.shared)
	reads := q.filterDependencies()
	d := &Deferred[Chunk]{}
	deps := q.world.deps.GetDependency(reads, nil)
	h := q.world.scheduler.Schedule(ctx, deps, func(context.Context) error {
		d.items = filterChunks(q.world, refs, &filter, sharedIndices)
		return nil
	})
	d.Handle = q.world.deps.AddDependency(reads, nil, h)
	return d
}

func (q *EntityQuery) CalculateEntityCount() int {
	if q.filter.empty() {
		return q.CalculateEntityCountWithoutFiltering()
	}
	q.completeFilterDependencies()
	n := 0
	for _, c := range q.chunks(true) {
		n += c.count
	}
	return n
}

func (q *EntityQuery) CalculateEntityCountWithoutFiltering() int {
	q.update()
	n := 0
	for _, m := range q.data.matched {
		n += m.arch.entityCount
	}
	return n
}

func (q *EntityQuery) CalculateChunkCount() int {
	q.completeFilterDependencies()
	n := 0
	for range q.chunks(true) {
		n++
	}
	return n
}

func (q *EntityQuery) CalculateChunkCountWithoutFiltering() int {
	q.update()
	n := 0
	for _, m := range q.data.matched {
		n += len(m.arch.chunks)
	}
	return n
}

func (q *EntityQuery) IsEmpty() bool {
	q.completeFilterDependencies()
	for range q.chunks(true) {
		return false
	}
	return true
}

func (q *EntityQuery) IsEmptyIgnoreFilter() bool {
	q.update()
	for _, m := range q.data.matched {
		if m.arch.entityCount > 0 {
			return false
		}
	}
	return true
}

// MatchedArchetypes returns the archetypes the query matches, in match order.
func (q *EntityQuery) MatchedArchetypes() []Archetype {
	q.update()
	out := make([]Archetype, len(q.data.matched))
	for i, m := range q.data.matched {
		out[i] = m.arch
	}
	return out
}

// Matches reports whether e's archetype is matched by the query. Filters are
// not consulted.
func (q *EntityQuery) Matches(e Entity) bool {
	slot, ok := q.world.entities.lookup(e)
	if !ok {
		return false
	}
	arch := q.world.archetypes.get(slot.archetype)
	return !arch.pruned && q.data.matches(arch)
}

func (q *EntityQuery) ToEntityArray() []Entity {
	q.completeFilterDependencies()
	var out []Entity
	for _, c := range q.chunks(true) {
		out = append(out, c.entities()...)
	}
	return out
}

func (q *EntityQuery) ToEntityArrayAsync(ctx context.Context) *Deferred[Entity] {
	refs := q.matchedChunks()
	filter := q.filter.clone()
	sharedIndices := filter.resolve(q.world.shared)
	reads := q.filterDependencies()
	d := &Deferred[Entity]{}
	deps := q.world.deps.GetDependency(reads, nil)
	h := q.world.scheduler.Schedule(ctx, deps, func(context.Context) error {
		for _, ref := range refs {
			if filter.empty() || filter.passes(ref.m, ref.c, sharedIndices) {
				d.items = append(d.items, ref.c.entities()...)
			}
		}
		return nil
	})
	d.Handle = q.world.deps.AddDependency(reads, nil, h)
	return d
}

// CombinedComponentOrderVersion changes whenever an entity holding one of
// the query's types is created, destroyed or moved.
func (q *EntityQuery) CombinedComponentOrderVersion() uint32 {
	var sum uint32
	for _, idx := range q.data.required {
		sum += q.world.typeOrder[idx]
	}
	return sum
}

// GetDependency returns the handle work on the query's columns must wait for.
func (q *EntityQuery) GetDependency() JobHandle {
	return q.world.deps.GetDependency(q.data.readers, q.data.writers)
}

// AddDependency registers job as reading and writing the query's types.
func (q *EntityQuery) AddDependency(job JobHandle) JobHandle {
	return q.world.deps.AddDependency(q.data.readers, q.data.writers, job)
}

// CompleteDependency blocks until the query's columns may be used on the
// calling goroutine.
func (q *EntityQuery) CompleteDependency() error {
	return q.world.deps.CompleteDependency(q.data.readers, q.data.writers)
}

func (q *EntityQuery) requiredPosition(c Component) (*typeInfo, int, error) {
	ti, ok := q.world.registry.lookup(c)
	if !ok {
		return nil, 0, eris.Wrapf(ErrComponentNotInQuery, "%s", c.Info().Name)
	}
	pos := q.data.position(ti.index)
	if pos < 0 {
		return nil, 0, eris.Wrapf(ErrComponentNotInQuery, "%s", c.Info().Name)
	}
	return ti, pos, nil
}

func appendColumn[T any](out []T, m *matchingArchetype, c *chunk, pos int, comp Component) ([]T, error) {
	slot := m.slots[pos]
	if slot < 0 {
		return out, ComponentNotFoundError{Component: comp}
	}
	return append(out, columnSlice[T](c, slot)...), nil
}

// ToComponentDataArray copies every passing entity's c value in chunk order.
func ToComponentDataArray[T any](q *EntityQuery, c AccessibleComponent[T]) ([]T, error) {
	ti, pos, err := q.requiredPosition(c.Component)
	if err != nil {
		return nil, err
	}
	if err := q.world.deps.CompleteWriteDependency(ti.index); err != nil {
		return nil, err
	}
	q.completeFilterDependencies()
	var out []T
	for m, ch := range q.chunks(true) {
		if out, err = appendColumn(out, m, ch, pos, c.Component); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ToComponentDataArrayAsync copies c's values once the jobs writing c are done.
func ToComponentDataArrayAsync[T any](ctx context.Context, q *EntityQuery, c AccessibleComponent[T]) (*Deferred[T], error) {
	ti, pos, err := q.requiredPosition(c.Component)
	if err != nil {
		return nil, err
	}
	refs := q.matchedChunks()
	filter := q.filter.clone()
	sharedIndices := filter.resolve(q.world.shared)
	reads := append(q.filterDependencies(), ti.index)
	d := &Deferred[T]{}
	deps := q.world.deps.GetDependency(reads, nil)
	h := q.world.scheduler.Schedule(ctx, deps, func(context.Context) error {
		var err error
		for _, ref := range refs {
			if !filter.empty() && !filter.passes(ref.m, ref.c, sharedIndices) {
				continue
			}
			if d.items, err = appendColumn(d.items, ref.m, ref.c, pos, c.Component); err != nil {
				return err
			}
		}
		return nil
	})
	d.Handle = q.world.deps.AddDependency(reads, nil, h)
	return d, nil
}

// CopyFromComponentDataArray writes values into c's column of every passing
// entity, in the order ToComponentDataArray returns them.
func CopyFromComponentDataArray[T any](q *EntityQuery, c AccessibleComponent[T], values []T) error {
	ti, pos, err := q.requiredPosition(c.Component)
	if err != nil {
		return err
	}
	if n := q.CalculateEntityCount(); n != len(values) {
		return eris.Wrapf(ErrLengthMismatch, "got %d values for %d entities", len(values), n)
	}
	if err := q.world.deps.CompleteReadAndWriteDependency(ti.index); err != nil {
		return err
	}
	version := q.world.GlobalVersion()
	offset := 0
	for m, ch := range q.chunks(true) {
		slot := m.slots[pos]
		if slot < 0 {
			return ComponentNotFoundError{Component: c.Component}
		}
		col := columnSlice[T](ch, slot)
		copy(col, values[offset:offset+ch.count])
		ch.writeVersions[slot] = version
		offset += ch.count
	}
	return nil
}

func (q *EntityQuery) singleRow() (*matchingArchetype, *chunk, error) {
	q.completeFilterDependencies()
	var (
		found  *chunk
		foundM *matchingArchetype
		total  int
	)
	for m, c := range q.chunks(true) {
		total += c.count
		if total > 1 {
			break
		}
		if c.count == 1 {
			found, foundM = c, m
		}
	}
	if total != 1 {
		return nil, nil, eris.Wrapf(ErrRequireExactlyOneMatch, "matched %d or more entities", total)
	}
	return foundM, found, nil
}

func (q *EntityQuery) GetSingletonEntity() (Entity, error) {
	_, c, err := q.singleRow()
	if err != nil {
		return Entity{}, err
	}
	return c.entities()[0], nil
}

func GetSingleton[T any](q *EntityQuery, c AccessibleComponent[T]) (T, error) {
	var zero T
	ti, pos, err := q.requiredPosition(c.Component)
	if err != nil {
		return zero, err
	}
	if err := q.world.deps.CompleteWriteDependency(ti.index); err != nil {
		return zero, err
	}
	m, ch, err := q.singleRow()
	if err != nil {
		return zero, err
	}
	slot := m.slots[pos]
	if slot < 0 {
		return zero, ComponentNotFoundError{Component: c.Component}
	}
	if ch.arch.columns[slot].stride == 0 {
		return zero, nil
	}
	return *columnValue[T](ch, slot, 0), nil
}

func SetSingleton[T any](q *EntityQuery, c AccessibleComponent[T], value T) error {
	ti, pos, err := q.requiredPosition(c.Component)
	if err != nil {
		return err
	}
	if err := q.world.deps.CompleteReadAndWriteDependency(ti.index); err != nil {
		return err
	}
	m, ch, err := q.singleRow()
	if err != nil {
		return err
	}
	slot := m.slots[pos]
	if slot < 0 {
		return ComponentNotFoundError{Component: c.Component}
	}
	ch.writeVersions[slot] = q.world.GlobalVersion()
	if ch.arch.columns[slot].stride > 0 {
		*columnValue[T](ch, slot, 0) = value
	}
	return nil
}
