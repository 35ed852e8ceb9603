package depot

import "github.com/TheBitDrifter/table"

type factory struct{}

// Factory is the entry point for worlds and query builders.
var Factory factory

// NewWorld creates a world whose type indices are assigned by schema. A nil
// schema gets a fresh one.
func (f factory) NewWorld(schema table.Schema, opts ...Option) *World {
	return newWorld(schema, opts...)
}

func (f factory) NewQuery() Query {
	return newQuery()
}

func FactoryNewComponent[T any](opts ...ComponentOption) AccessibleComponent[T] {
	return AccessibleComponent[T]{Component: newComponentType[T](CategoryData, opts...)}
}

func FactoryNewSharedComponent[T comparable](opts ...ComponentOption) SharedComponent[T] {
	return SharedComponent[T]{Component: newComponentType[T](CategorySharedValue, opts...)}
}

// FactoryNewBufferComponent creates a buffer of T storing up to
// inlineCapacity elements inside the chunk.
func FactoryNewBufferComponent[T any](inlineCapacity int, opts ...ComponentOption) BufferComponent[T] {
	opts = append(opts, func(info *ComponentInfo) {
		info.BufferCapacity = max(inlineCapacity, 0)
	})
	return BufferComponent[T]{Component: newComponentType[T](CategoryBuffer, opts...)}
}

func FactoryNewManagedComponent[T any](opts ...ComponentOption) ManagedComponent[T] {
	return ManagedComponent[T]{Component: newComponentType[T](CategoryManagedRef, opts...)}
}

func FactoryNewCache[T any](cap int) Cache[T] {
	return &SimpleCache[T]{
		itemIndices: make(map[string]int),
		maxCapacity: cap,
	}
}
