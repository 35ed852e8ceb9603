package depot

import "iter"

// Storage is the structural surface of a World.
type Storage interface {
	NewEntities(int, ...Component) ([]Entity, error)
	EnqueueNewEntities(int, ...Component) error
	DestroyEntities(...Entity) error
	EnqueueDestroyEntities(...Entity) error
	AddComponent(Entity, Component) error
	RemoveComponent(Entity, Component) error
	EnqueueAddComponent(Entity, Component) error
	EnqueueRemoveComponent(Entity, Component) error
	NewOrExistingArchetype(...Component) (Archetype, error)
	Exists(Entity) bool
	RowIndexFor(Component) uint32
	Locked() bool
	Lock()
	Unlock() error
}

type iCursor interface {
	Entities() iter.Seq2[int, Entity]
	Next() bool
	Reset()
}

var _ iCursor = &Cursor{}
