package depot

import (
	"bytes"
	"slices"
)

func (w *World) newChunk(arch *archetype, shared []uint32) *chunk {
	c := w.chunks.acquire()
	c.arch = arch
	c.block = w.blocks.get()
	c.count = 0
	c.listIndex = len(arch.chunks)
	if cap(c.writeVersions) >= len(arch.types) {
		c.writeVersions = c.writeVersions[:len(arch.types)]
	} else {
		c.writeVersions = make([]uint32, len(arch.types))
	}
	c.shared = append(c.shared[:0], shared...)
	for _, idx := range shared {
		w.shared.retain(idx)
	}
	c.stampAll(w.GlobalVersion())
	arch.chunks = append(arch.chunks, c)

	w.logger.Debug().
		Uint32("archetype_id", uint32(arch.id)).
		Uint32("chunk_id", uint32(c.id)).
		Int("capacity", arch.chunkCapacity).
		Msg("chunk allocated")
	return c
}

func (w *World) releaseChunk(c *chunk) {
	arch := c.arch
	arch.chunks = slices.Delete(arch.chunks, c.listIndex, c.listIndex+1)
	for i := c.listIndex; i < len(arch.chunks); i++ {
		arch.chunks[i].listIndex = i
	}
	for _, idx := range c.shared {
		w.shared.release(idx)
	}
	w.blocks.put(c.block)
	c.block = nil
	c.arch = nil
	c.count = 0
	c.incarnation++
	w.chunks.release(c)

	w.logger.Debug().
		Uint32("archetype_id", uint32(arch.id)).
		Uint32("chunk_id", uint32(c.id)).
		Msg("chunk released")
}

func (w *World) bumpOrder(arch *archetype) {
	for _, ti := range arch.types {
		w.typeOrder[ti.index]++
	}
}

// allocateRow appends a zeroed row to the last chunk holding the given shared
// values, or to a fresh chunk when that one is full or missing.
func (w *World) allocateRow(arch *archetype, shared []uint32) (*chunk, int) {
	c := arch.lastChunkFor(shared)
	if c == nil || c.full() {
		c = w.newChunk(arch, shared)
	}
	row := c.count
	c.count++
	arch.entityCount++

	for slot, col := range arch.columns {
		if col.stride == 0 {
			continue
		}
		data := c.rowBytes(slot, row)
		clear(data)
		if col.kind == columnBuffer {
			initBufferHeader(data, arch.types[slot].info)
		}
	}
	c.stampAll(w.GlobalVersion())
	w.bumpOrder(arch)
	return c, row
}

// freeRow swap-removes row from c. The moved entity's location is updated;
// resources owned by the removed row must already be released.
func (w *World) freeRow(c *chunk, row int) {
	arch := c.arch
	last := c.count - 1
	if row != last {
		for slot, col := range arch.columns {
			if col.stride == 0 {
				continue
			}
			copy(c.rowBytes(slot, row), c.rowBytes(slot, last))
		}
		moved := c.entities()[row]
		w.entities.slots[moved.ID].row = uint32(row)
	}
	c.count--
	arch.entityCount--
	// removal reorders rows but writes no component data
	c.orderVersion = w.GlobalVersion()
	w.bumpOrder(arch)
	if c.count == 0 {
		w.releaseChunk(c)
	}
}

// releaseRowResources frees buffer overflow storage and managed references
// owned by row. Columns whose type is kept by keep are skipped.
func (w *World) releaseRowResources(c *chunk, row int, keep *archetype) {
	arch := c.arch
	for _, slot := range arch.bufferSlots {
		if keep != nil && keep.hasType(arch.types[slot].index) {
			continue
		}
		hdr := bufferHeaderAt(c.rowBytes(slot, row))
		if hdr.overflow != 0 {
			w.managed.remove(hdr.overflow)
			hdr.overflow = 0
		}
	}
	for _, slot := range arch.managedSlots {
		if keep != nil && keep.hasType(arch.types[slot].index) {
			continue
		}
		h := columnValue[uint32](c, slot, row)
		if *h != 0 {
			w.managed.remove(*h)
			*h = 0
		}
	}
}

// moveRow relocates the entity at (src, row) into dst, copying every column
// the two archetypes share. Columns only dst has keep their default value.
func (w *World) moveRow(src *chunk, row int, dst *archetype, shared []uint32) (*chunk, int) {
	e := src.entities()[row]
	dc, drow := w.allocateRow(dst, shared)
	srcArch := src.arch
	for dslot, ti := range dst.types {
		if dst.columns[dslot].stride == 0 {
			continue
		}
		sslot := srcArch.slotOf(ti.index)
		if sslot < 0 {
			continue
		}
		copy(dc.rowBytes(dslot, drow), src.rowBytes(sslot, row))
	}
	w.releaseRowResources(src, row, dst)

	loc := &w.entities.slots[e.ID]
	loc.archetype = dst.id
	loc.chunk = dc.id
	loc.row = uint32(drow)

	w.freeRow(src, row)
	return dc, drow
}

// cloneRow copies the row at (src, row) into a new row of dst owned by e.
// Buffer overflow storage is deep-copied; managed references are shared.
func (w *World) cloneRow(src *chunk, row int, dst *archetype, shared []uint32, e Entity) (*chunk, int) {
	dc, drow := w.allocateRow(dst, shared)
	srcArch := src.arch
	for dslot, ti := range dst.types {
		col := dst.columns[dslot]
		if col.stride == 0 {
			continue
		}
		sslot := srcArch.slotOf(ti.index)
		if sslot < 0 {
			continue
		}
		data := dc.rowBytes(dslot, drow)
		copy(data, src.rowBytes(sslot, row))
		switch col.kind {
		case columnBuffer:
			hdr := bufferHeaderAt(data)
			if hdr.overflow != 0 {
				raw := w.managed.get(hdr.overflow).([]byte)
				hdr.overflow = w.managed.add(bytes.Clone(raw))
			}
		case columnManaged:
			h := columnValue[uint32](dc, dslot, drow)
			if *h != 0 {
				*h = w.managed.add(w.managed.get(*h))
			}
		}
	}
	*columnValue[Entity](dc, dst.entitySlot, drow) = e
	return dc, drow
}
