package depot

type ArchetypeStats struct {
	ID            uint32   `json:"id"`
	Components    []string `json:"components"`
	Entities      int      `json:"entities"`
	Chunks        int      `json:"chunks"`
	ChunkCapacity int      `json:"chunkCapacity"`
}

// WorldStats is a point-in-time summary of a world's memory use.
type WorldStats struct {
	WorldID        string           `json:"worldId"`
	GlobalVersion  uint32           `json:"globalVersion"`
	Entities       int              `json:"entities"`
	ChunksInUse    int              `json:"chunksInUse"`
	BlocksFree     int              `json:"blocksFree"`
	BlockSize      int              `json:"blockSize"`
	ComponentTypes int              `json:"componentTypes"`
	SharedValues   int              `json:"sharedValues"`
	ManagedObjects int              `json:"managedObjects"`
	CachedQueries  int              `json:"cachedQueries"`
	Archetypes     []ArchetypeStats `json:"archetypes"`
}

func (w *World) Stats() WorldStats {
	stats := WorldStats{
		WorldID:        w.id.String(),
		GlobalVersion:  w.GlobalVersion(),
		Entities:       w.entities.alive,
		ChunksInUse:    w.blocks.inUse(),
		BlocksFree:     len(w.blocks.free),
		BlockSize:      w.blocks.size,
		ComponentTypes: w.registry.count,
		SharedValues:   w.shared.len(),
		ManagedObjects: w.managed.live,
		CachedQueries:  w.queries.Len(),
	}
	for _, arch := range w.archetypes.asSlice {
		if arch.pruned {
			continue
		}
		names := make([]string, len(arch.types))
		for i, ti := range arch.types {
			names[i] = ti.info.Name
		}
		stats.Archetypes = append(stats.Archetypes, ArchetypeStats{
			ID:            uint32(arch.id),
			Components:    names,
			Entities:      arch.entityCount,
			Chunks:        len(arch.chunks),
			ChunkCapacity: arch.chunkCapacity,
		})
	}
	return stats
}
