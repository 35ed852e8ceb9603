/*
Package depot provides a chunked columnar entity store with a query engine.

Entities sharing a component set live in the same archetype. An archetype
stores its rows in fixed-size chunks, one column per component, so systems
walk contiguous typed arrays. Every chunk column carries the version it was
last written at, which lets queries skip chunks nobody touched.

Core Concepts:

  - Entity: a generation-checked handle to one row.
  - Component: a typed attribute. Plain data, zero-size tags, per-chunk
    shared values, variable-length buffers and managed Go values are
    supported.
  - Archetype: the canonical set of component types of its entities.
  - Chunk: a block of rows of one archetype.
  - EntityQuery: the archetypes matching all/any/none constraints, narrowed
    by change and shared-value filters.
  - JobHandle: completion of scheduled work; the dependency manager orders
    jobs by the component types they read and write.

Basic Usage:

	world := depot.Factory.NewWorld(nil)

	position := depot.FactoryNewComponent[Position]()
	velocity := depot.FactoryNewComponent[Velocity]()

	world.NewEntities(100, position, velocity)

	q, _ := world.CreateEntityQuery(depot.QueryDesc{
		All: []depot.Component{position, depot.ReadOnly(velocity)},
	})

	posHandle := position.Handle(world, false)
	velHandle := velocity.Handle(world, true)
	for ch := range q.Chunks() {
		pos, _ := depot.ChunkColumnForWrite(ch, posHandle)
		vel, _ := depot.ChunkColumn(ch, velHandle)
		for i := range pos {
			pos[i].X += vel.At(i).X
			pos[i].Y += vel.At(i).Y
		}
	}

Structural changes (creating, destroying, adding or removing components)
run on the goroutine owning the world and wait for scheduled jobs first.
*/
package depot
