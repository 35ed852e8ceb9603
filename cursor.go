package depot

import (
	"fmt"
	"iter"
)

// Cursor iterates the rows of an EntityQuery chunk by chunk. The world is
// locked while a cursor is active; structural changes must go through the
// Enqueue* operations until iteration ends or Reset is called.
type Cursor struct {
	query *EntityQuery
	world *World

	current     *chunk
	chunkIndex  int
	entityIndex int
	remaining   int

	initialized bool
	chunks      []*chunk
	err         error
}

func newCursor(q *EntityQuery) *Cursor {
	return &Cursor{query: q, world: q.world}
}

// NewCursor returns a cursor over q's passing chunks.
func (q *EntityQuery) NewCursor() *Cursor {
	return newCursor(q)
}

func (c *Cursor) Next() bool {
	if c.entityIndex < c.remaining {
		c.entityIndex++
		return true
	}
	return c.advance()
}

func (c *Cursor) advance() bool {
	if !c.initialized {
		c.initialize()
	} else {
		c.chunkIndex++
		c.entityIndex = 0
	}
	for c.chunkIndex < len(c.chunks) {
		c.current = c.chunks[c.chunkIndex]
		c.remaining = c.current.count
		if c.entityIndex < c.remaining {
			c.entityIndex++
			return true
		}
		c.chunkIndex++
		c.entityIndex = 0
	}
	c.Reset()
	return false
}

// Entities yields the row index within the current chunk and the entity.
func (c *Cursor) Entities() iter.Seq2[int, Entity] {
	return func(yield func(int, Entity) bool) {
		c.initialize()
		for c.chunkIndex < len(c.chunks) {
			c.current = c.chunks[c.chunkIndex]
			c.remaining = c.current.count
			entities := c.current.entities()
			for c.entityIndex < c.remaining {
				c.entityIndex++
				if !yield(c.entityIndex-1, entities[c.entityIndex-1]) {
					c.Reset()
					return
				}
			}
			c.entityIndex = 0
			c.chunkIndex++
		}
		c.Reset()
	}
}

func (c *Cursor) initialize() {
	if c.initialized {
		return
	}
	if err := c.query.CompleteDependency(); err != nil {
		c.err = err
	}
	c.chunks = c.chunks[:0]
	for _, ch := range c.query.chunks(true) {
		c.chunks = append(c.chunks, ch)
	}
	c.chunkIndex = 0
	c.entityIndex = 0
	c.remaining = 0
	if len(c.chunks) > 0 {
		c.current = c.chunks[0]
		c.remaining = c.current.count
	}
	c.world.Lock()
	c.initialized = true
}

// Reset ends iteration, unlocks the world and replays deferred commands.
func (c *Cursor) Reset() {
	if !c.initialized {
		return
	}
	c.chunkIndex = 0
	c.entityIndex = 0
	c.remaining = 0
	c.current = nil
	c.chunks = nil
	c.initialized = false
	if err := c.world.Unlock(); err != nil && c.err == nil {
		c.err = err
	}
}

// Err returns the first error seen while completing dependencies or
// replaying deferred commands.
func (c *Cursor) Err() error {
	return c.err
}

func (c *Cursor) CurrentEntity() Entity {
	return c.current.entities()[c.entityIndex-1]
}

// CurrentChunk returns a handle to the chunk under the cursor.
func (c *Cursor) CurrentChunk() Chunk {
	return newChunkHandle(c.world, c.current)
}

func (c *Cursor) RemainingInChunk() int {
	return c.remaining - c.entityIndex
}

func (c *Cursor) TotalMatched() int {
	if !c.initialized {
		return c.query.CalculateEntityCount()
	}
	total := 0
	for _, ch := range c.chunks {
		total += ch.count
	}
	return total
}

func (c *Cursor) has(comp Component) bool {
	if c.current == nil {
		return false
	}
	ti, ok := c.world.registry.lookup(comp)
	return ok && c.current.arch.hasType(ti.index)
}

func (c *Cursor) position(comp Component) (*chunk, int, int) {
	ti, ok := c.world.registry.lookup(comp)
	if !ok || c.current == nil {
		panic(fmt.Sprintf("depot: component %s is not available at the cursor", comp.Info().Name))
	}
	slot := c.current.arch.slotOf(ti.index)
	if slot < 0 {
		panic(ComponentNotFoundError{Component: comp})
	}
	return c.current, c.entityIndex - 1, slot
}
