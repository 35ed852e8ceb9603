package depot

import (
	"sync/atomic"

	"github.com/TheBitDrifter/mask"
	"github.com/TheBitDrifter/table"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

var _ Storage = &World{}

// World owns every archetype, chunk and entity of one simulation. It is not
// safe for concurrent structural use; jobs scheduled through the world touch
// component columns only.
type World struct {
	id         uuid.UUID
	cfg        WorldConfig
	logger     zerolog.Logger
	registry   *typeRegistry
	archetypes *archetypes
	chunks     chunkArena
	blocks     *blockPool
	entities   locationTable
	shared     *sharedStore
	managed    *managedStore
	version    atomic.Uint32
	typeOrder  [MaxComponentTypes]uint32
	deps       *DependencyManager
	scheduler  *Scheduler
	queries    *SimpleCache[*queryData]
	opQueue    opQueue
	// nested cursors each hold one level
	lockDepth  int

	base       *archetype
	entityType *typeInfo
}

type archetypes struct {
	nextID           archetypeID
	asSlice          []*archetype
	idsGroupedByMask map[mask.Mask]archetypeID
	pruneVersion     uint32
}

func (a *archetypes) get(id archetypeID) *archetype {
	return a.asSlice[id-1]
}

func newWorld(schema table.Schema, opts ...Option) *World {
	w := &World{
		id:     uuid.New(),
		cfg:    DefaultConfig(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.cfg = w.cfg.normalized()
	if w.logger.GetLevel() != zerolog.Disabled {
		w.logger = w.logger.Level(w.cfg.LogLevel)
	}
	w.logger = w.logger.With().Str("world_id", w.id.String()).Logger()

	w.registry = newTypeRegistry(schema)
	w.archetypes = &archetypes{
		nextID:           1,
		idsGroupedByMask: make(map[mask.Mask]archetypeID),
	}
	w.blocks = newBlockPool(w.cfg.ChunkSize, w.cfg.MaxChunks)
	w.entities = newLocationTable()
	w.shared = newSharedStore()
	w.managed = newManagedStore()
	w.version.Store(InitialGlobalVersion)
	w.deps = NewDependencyManager(w.cfg.MaxReadFences)
	w.scheduler = NewScheduler(w.cfg.Workers, w.logger)
	w.queries = FactoryNewCache[*queryData](w.cfg.QueryCacheSize).(*SimpleCache[*queryData])
	w.opQueue = newOpQueue()

	w.entityType = w.registry.register(EntityType)
	w.registry.register(Prefab)
	w.registry.register(Disabled)
	base, err := w.archetypeFor(nil)
	if err != nil {
		// the entity column alone never exceeds a validated chunk size
		panic(err)
	}
	w.base = base

	w.logger.Debug().
		Int("chunk_size", w.cfg.ChunkSize).
		Int("max_chunks", w.cfg.MaxChunks).
		Int("workers", w.cfg.Workers).
		Msg("world created")
	return w
}

func (w *World) ID() uuid.UUID {
	return w.id
}

func (w *World) Config() WorldConfig {
	return w.cfg
}

func (w *World) Logger() *zerolog.Logger {
	return &w.logger
}

// Scheduler returns the world's job scheduler.
func (w *World) Scheduler() *Scheduler {
	return w.scheduler
}

// Dependencies returns the world's dependency manager.
func (w *World) Dependencies() *DependencyManager {
	return w.deps
}

// GlobalVersion is the version stamped on columns written now.
func (w *World) GlobalVersion() uint32 {
	return w.version.Load()
}

// AdvanceVersion moves the global version forward. Drivers call it once per
// update cycle. The counter wraps and never returns 0.
func (w *World) AdvanceVersion() uint32 {
	for {
		cur := w.version.Load()
		next := nextVersion(cur)
		if w.version.CompareAndSwap(cur, next) {
			return next
		}
	}
}

func (w *World) RowIndexFor(c Component) uint32 {
	return uint32(w.registry.register(c).index)
}

// TypeIndexOf registers c if needed and returns its index in this world.
func (w *World) TypeIndexOf(c Component) TypeIndex {
	return w.registry.register(c).index
}

func (w *World) Locked() bool {
	return w.lockDepth > 0
}

// Lock makes structural operations fail with LockedStorageError until the
// matching Unlock. Enqueue variants defer their work instead. Locks nest.
func (w *World) Lock() {
	w.lockDepth++
}

// Unlock releases one Lock. Releasing the outermost one replays the deferred
// command queue.
func (w *World) Unlock() error {
	if w.lockDepth == 0 {
		return nil
	}
	w.lockDepth--
	if w.lockDepth > 0 {
		return nil
	}
	return w.processOperationQueue()
}

func (w *World) beforeStructuralChange() error {
	if w.Locked() {
		return LockedStorageError{}
	}
	if err := w.deps.CompleteAll(); err != nil {
		w.logger.Warn().Err(err).Msg("job failed before structural change")
	}
	return nil
}

// NewOrExistingArchetype returns the archetype for the given component set,
// creating it when needed. Order and repeats do not matter.
func (w *World) NewOrExistingArchetype(components ...Component) (Archetype, error) {
	arch, err := w.archetypeFor(components)
	if err != nil {
		return nil, err
	}
	return arch, nil
}

func (w *World) archetypeFor(components []Component) (*archetype, error) {
	var m mask.Mask
	m.Mark(uint32(w.entityType.index))
	types := []*typeInfo{w.entityType}
	for _, c := range components {
		ti := w.registry.register(c)
		if ti == w.entityType {
			continue
		}
		if m.ContainsAll(maskOf(ti.index)) {
			continue
		}
		m.Mark(uint32(ti.index))
		types = append(types, ti)
	}
	return w.getOrCreateArchetype(m, types)
}

func maskOf(indices ...TypeIndex) mask.Mask {
	var m mask.Mask
	for _, idx := range indices {
		m.Mark(uint32(idx))
	}
	return m
}

func (w *World) getOrCreateArchetype(m mask.Mask, types []*typeInfo) (*archetype, error) {
	if id, found := w.archetypes.idsGroupedByMask[m]; found {
		return w.archetypes.get(id), nil
	}
	created, err := newArchetype(w.archetypes.nextID, m, types, w.cfg.ChunkSize, w.cfg.MaxChunkCapacity)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create archetype")
	}
	w.archetypes.asSlice = append(w.archetypes.asSlice, created)
	w.archetypes.idsGroupedByMask[m] = w.archetypes.nextID
	w.archetypes.nextID++
	w.logArchetypeCreated(created)
	return created, nil
}

func (w *World) ownArchetype(a Archetype) (*archetype, error) {
	arch, ok := a.(*archetype)
	if !ok || arch.id == 0 || int(arch.id) > len(w.archetypes.asSlice) || w.archetypes.get(arch.id) != arch {
		return nil, eris.New("archetype does not belong to this world")
	}
	if arch.pruned {
		return nil, eris.New("archetype was pruned by Compact")
	}
	return arch, nil
}

// NewEntities creates n entities holding the given components, all zeroed.
func (w *World) NewEntities(n int, components ...Component) ([]Entity, error) {
	if err := w.beforeStructuralChange(); err != nil {
		return nil, err
	}
	arch, err := w.archetypeFor(components)
	if err != nil {
		return nil, err
	}
	return w.createEntities(arch, n), nil
}

// NewEntitiesIn creates n entities in an existing archetype.
func (w *World) NewEntitiesIn(a Archetype, n int) ([]Entity, error) {
	if err := w.beforeStructuralChange(); err != nil {
		return nil, err
	}
	arch, err := w.ownArchetype(a)
	if err != nil {
		return nil, err
	}
	return w.createEntities(arch, n), nil
}

func (w *World) createEntities(arch *archetype, n int) []Entity {
	if n <= 0 {
		return nil
	}
	shared := make([]uint32, len(arch.sharedSlots))
	created := make([]Entity, n)
	w.entities.reserve(n)
	for i := range created {
		c, row := w.allocateRow(arch, shared)
		e := w.entities.allocate()
		*columnValue[Entity](c, arch.entitySlot, row) = e
		slot := &w.entities.slots[e.ID]
		slot.archetype = arch.id
		slot.chunk = c.id
		slot.row = uint32(row)
		created[i] = e
	}
	return created
}

// Instantiate creates n copies of src. A Prefab tag on src is not copied.
func (w *World) Instantiate(src Entity, n int) ([]Entity, error) {
	if err := w.beforeStructuralChange(); err != nil {
		return nil, err
	}
	slot, ok := w.entities.lookup(src)
	if !ok {
		return nil, eris.Wrapf(ErrEntityDoesNotExist, "instantiate %v", src)
	}
	srcArch := w.archetypes.get(slot.archetype)
	dst := srcArch
	if srcArch.prefab {
		prefab, _ := w.registry.lookup(Prefab)
		m := srcArch.mask
		m.Unmark(uint32(prefab.index))
		var err error
		dst, err = w.getOrCreateArchetype(m, without(srcArch.types, prefab))
		if err != nil {
			return nil, err
		}
	}
	if n <= 0 {
		return nil, nil
	}
	w.entities.reserve(n)
	created := make([]Entity, n)
	for i := range created {
		// re-read: earlier clones may have grown the location table
		loc := w.entities.slots[src.ID]
		srcChunk := w.chunks.all[loc.chunk]
		e := w.entities.allocate()
		c, row := w.cloneRow(srcChunk, int(loc.row), dst, w.sharedFor(dst, srcChunk), e)
		slot := &w.entities.slots[e.ID]
		slot.archetype = dst.id
		slot.chunk = c.id
		slot.row = uint32(row)
		created[i] = e
	}
	return created, nil
}

func without(types []*typeInfo, drop *typeInfo) []*typeInfo {
	out := make([]*typeInfo, 0, len(types))
	for _, ti := range types {
		if ti != drop {
			out = append(out, ti)
		}
	}
	return out
}

// sharedFor maps src's shared values onto dst's shared slots. Types src
// lacks get the zero value.
func (w *World) sharedFor(dst *archetype, src *chunk) []uint32 {
	shared := make([]uint32, len(dst.sharedSlots))
	for pos, slot := range dst.sharedSlots {
		idx := dst.types[slot].index
		if spos := src.arch.sharedPos(idx); spos >= 0 {
			shared[pos] = src.shared[spos]
		}
	}
	return shared
}

// DestroyEntities removes the given entities. Every handle is validated
// before anything is destroyed.
func (w *World) DestroyEntities(entities ...Entity) error {
	if err := w.beforeStructuralChange(); err != nil {
		return err
	}
	seen := make(map[Entity]struct{}, len(entities))
	unique := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if _, dup := seen[e]; dup {
			continue
		}
		if _, ok := w.entities.lookup(e); !ok {
			return eris.Wrapf(ErrEntityDoesNotExist, "destroy %v", e)
		}
		seen[e] = struct{}{}
		unique = append(unique, e)
	}
	for _, e := range unique {
		w.destroy(e)
	}
	return nil
}

func (w *World) destroy(e Entity) {
	slot := w.entities.slots[e.ID]
	c := w.chunks.all[slot.chunk]
	w.releaseRowResources(c, int(slot.row), nil)
	w.freeRow(c, int(slot.row))
	w.entities.release(e.ID)
}

// AddComponent moves e to the archetype that also holds c. The new column is
// zeroed; shared components start at their zero value.
func (w *World) AddComponent(e Entity, c Component) error {
	if err := w.beforeStructuralChange(); err != nil {
		return err
	}
	slot, ok := w.entities.lookup(e)
	if !ok {
		return eris.Wrapf(ErrEntityDoesNotExist, "add component %s to %v", c.Info().Name, e)
	}
	ti := w.registry.register(c)
	if ti == w.entityType {
		return eris.Wrapf(ErrBuiltinComponent, "add %s", ti.info.Name)
	}
	src := w.archetypes.get(slot.archetype)
	if src.hasType(ti.index) {
		return ComponentExistsError{Component: c}
	}
	destMask := src.mask
	destMask.Mark(uint32(ti.index))
	dst, err := w.getOrCreateArchetype(destMask, append(append([]*typeInfo(nil), src.types...), ti))
	if err != nil {
		return eris.Wrap(err, "failed to get/create archetype")
	}
	ch := w.chunks.all[slot.chunk]
	w.moveRow(ch, int(slot.row), dst, w.sharedFor(dst, ch))
	return nil
}

// RemoveComponent moves e to the archetype without c, releasing c's data.
func (w *World) RemoveComponent(e Entity, c Component) error {
	if err := w.beforeStructuralChange(); err != nil {
		return err
	}
	slot, ok := w.entities.lookup(e)
	if !ok {
		return eris.Wrapf(ErrEntityDoesNotExist, "remove component %s from %v", c.Info().Name, e)
	}
	ti, registered := w.registry.lookup(c)
	if registered && ti == w.entityType {
		return eris.Wrapf(ErrBuiltinComponent, "remove %s", ti.info.Name)
	}
	src := w.archetypes.get(slot.archetype)
	if !registered || !src.hasType(ti.index) {
		return ComponentNotFoundError{Component: c}
	}
	destMask := src.mask
	destMask.Unmark(uint32(ti.index))
	dst, err := w.getOrCreateArchetype(destMask, without(src.types, ti))
	if err != nil {
		return eris.Wrap(err, "failed to get/create archetype")
	}
	ch := w.chunks.all[slot.chunk]
	w.moveRow(ch, int(slot.row), dst, w.sharedFor(dst, ch))
	return nil
}

// SetEnabled adds or removes the Disabled tag.
func (w *World) SetEnabled(e Entity, enabled bool) error {
	has, err := w.HasComponent(e, Disabled)
	if err != nil {
		return err
	}
	switch {
	case enabled && has:
		return w.RemoveComponent(e, Disabled)
	case !enabled && !has:
		return w.AddComponent(e, Disabled)
	}
	return nil
}

func (w *World) Exists(e Entity) bool {
	_, ok := w.entities.lookup(e)
	return ok
}

func (w *World) HasComponent(e Entity, c Component) (bool, error) {
	slot, ok := w.entities.lookup(e)
	if !ok {
		return false, eris.Wrapf(ErrEntityDoesNotExist, "has component %s on %v", c.Info().Name, e)
	}
	ti, ok := w.registry.lookup(c)
	if !ok {
		return false, nil
	}
	return w.archetypes.get(slot.archetype).hasType(ti.index), nil
}

// ArchetypeOf returns the archetype e currently lives in.
func (w *World) ArchetypeOf(e Entity) (Archetype, error) {
	slot, ok := w.entities.lookup(e)
	if !ok {
		return nil, eris.Wrapf(ErrEntityDoesNotExist, "archetype of %v", e)
	}
	return w.archetypes.get(slot.archetype), nil
}

func (w *World) EntityCount() int {
	return w.entities.alive
}

// Archetypes returns the live archetypes in creation order.
func (w *World) Archetypes() []Archetype {
	out := make([]Archetype, 0, len(w.archetypes.asSlice))
	for _, arch := range w.archetypes.asSlice {
		if !arch.pruned {
			out = append(out, arch)
		}
	}
	return out
}

// Compact prunes archetypes without entities and returns how many were
// pruned. Idle pooled blocks are released as well.
func (w *World) Compact() (int, error) {
	if err := w.beforeStructuralChange(); err != nil {
		return 0, err
	}
	pruned := 0
	for _, arch := range w.archetypes.asSlice {
		if arch.pruned || arch == w.base || arch.entityCount > 0 {
			continue
		}
		arch.pruned = true
		delete(w.archetypes.idsGroupedByMask, arch.mask)
		pruned++
		w.logger.Debug().Uint32("archetype_id", uint32(arch.id)).Msg("archetype pruned")
	}
	if pruned > 0 {
		w.archetypes.pruneVersion++
	}
	freed := w.blocks.trim()
	w.logger.Debug().Int("archetypes", pruned).Int("blocks", freed).Msg("world compacted")
	return pruned, nil
}

// componentSlot locates e's column for c after completing the jobs that
// conflict with the access: the writer for reads, every job for writes.
func (w *World) componentSlot(e Entity, c Component, write bool) (*chunk, int, int, error) {
	slot, ok := w.entities.lookup(e)
	if !ok {
		return nil, 0, 0, eris.Wrapf(ErrEntityDoesNotExist, "access %s on %v", c.Info().Name, e)
	}
	ti, ok := w.registry.lookup(c)
	if !ok {
		return nil, 0, 0, ComponentNotFoundError{Component: c}
	}
	arch := w.archetypes.get(slot.archetype)
	col := arch.slotOf(ti.index)
	if col < 0 {
		return nil, 0, 0, ComponentNotFoundError{Component: c}
	}
	var err error
	if write {
		err = w.deps.CompleteReadAndWriteDependency(ti.index)
	} else {
		err = w.deps.CompleteWriteDependency(ti.index)
	}
	if err != nil {
		return nil, 0, 0, eris.Wrapf(err, "complete jobs on %s", c.Info().Name)
	}
	return w.chunks.all[slot.chunk], int(slot.row), col, nil
}
