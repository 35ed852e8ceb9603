package depot

import (
	"github.com/rs/zerolog"
)

func loadTypeIntoArray(ti *typeInfo, arr *zerolog.Array) *zerolog.Array {
	dict := zerolog.Dict().
		Int("component_id", int(ti.index)).
		Str("component_name", ti.info.Name).
		Str("category", ti.info.Category.String())
	return arr.Dict(dict)
}

func loadArchetypeIntoEvent(event *zerolog.Event, arch *archetype) *zerolog.Event {
	arr := zerolog.Arr()
	for _, ti := range arch.types {
		arr = loadTypeIntoArray(ti, arr)
	}
	return event.
		Uint32("archetype_id", uint32(arch.id)).
		Int("chunk_capacity", arch.chunkCapacity).
		Array("components", arr)
}

func (w *World) logArchetypeCreated(arch *archetype) {
	event := w.logger.Debug()
	if event == nil {
		return
	}
	loadArchetypeIntoEvent(event, arch).Msg("archetype created")
}

// LogArchetypes writes one event describing every live archetype.
func (w *World) LogArchetypes(level zerolog.Level) {
	event := w.logger.WithLevel(level)
	if event == nil {
		return
	}
	arr := zerolog.Arr()
	total := 0
	for _, arch := range w.archetypes.asSlice {
		if arch.pruned {
			continue
		}
		comps := zerolog.Arr()
		for _, ti := range arch.types {
			comps = loadTypeIntoArray(ti, comps)
		}
		arr = arr.Dict(zerolog.Dict().
			Uint32("archetype_id", uint32(arch.id)).
			Int("entities", arch.entityCount).
			Int("chunks", len(arch.chunks)).
			Int("chunk_capacity", arch.chunkCapacity).
			Array("components", comps))
		total++
	}
	event.Int("total_archetypes", total).Array("archetypes", arr).Send()
}

// LogEntity writes the archetype and location of e.
func (w *World) LogEntity(level zerolog.Level, e Entity) {
	slot, ok := w.entities.lookup(e)
	if !ok {
		w.logger.Error().Err(ErrEntityDoesNotExist).Stringer("entity", e).Msg("cannot log entity")
		return
	}
	event := w.logger.WithLevel(level)
	if event == nil {
		return
	}
	arch := w.archetypes.get(slot.archetype)
	loadArchetypeIntoEvent(event, arch).
		Uint32("entity_id", e.ID).
		Uint32("generation", e.Generation).
		Uint32("chunk_id", uint32(slot.chunk)).
		Uint32("row", slot.row).
		Send()
}
