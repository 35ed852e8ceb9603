package depot

import "slices"

type matchingArchetype struct {
	arch *archetype
	// archetype slot of each required type, -1 when absent
	slots []int
}

// queryData is the compiled, shareable part of a query.
type queryData struct {
	key      string
	descs    []compiledDesc
	required []TypeIndex
	access   []AccessMode
	readers  []TypeIndex
	writers  []TypeIndex

	matched         []matchingArchetype
	scanned         int
	registryVersion uint32
	pruneVersion    uint32
}

func (d *queryData) matches(a *archetype) bool {
	for i := range d.descs {
		if d.descs[i].matches(a) {
			return true
		}
	}
	return false
}

func (d *queryData) newMatch(a *archetype) matchingArchetype {
	slots := make([]int, len(d.required))
	for i, idx := range d.required {
		slots[i] = a.slotOf(idx)
	}
	return matchingArchetype{arch: a, slots: slots}
}

// rescan brings the match list up to date. Only archetypes created since the
// previous scan are tested.
func (d *queryData) rescan(w *World) {
	if d.registryVersion != w.registry.version {
		for i := range d.descs {
			d.descs[i].rebuildWriteGroups(w.registry, w.cfg.WriteGroupPolicy)
		}
		d.registryVersion = w.registry.version
		d.matched = slices.DeleteFunc(d.matched, func(m matchingArchetype) bool {
			return !d.matches(m.arch)
		})
	}
	if d.pruneVersion != w.archetypes.pruneVersion {
		d.matched = slices.DeleteFunc(d.matched, func(m matchingArchetype) bool {
			return m.arch.pruned
		})
		d.pruneVersion = w.archetypes.pruneVersion
	}
	all := w.archetypes.asSlice
	for _, arch := range all[d.scanned:] {
		if !arch.pruned && d.matches(arch) {
			d.matched = append(d.matched, d.newMatch(arch))
		}
	}
	d.scanned = len(all)
}

func (d *queryData) position(idx TypeIndex) int {
	return slices.Index(d.required, idx)
}
