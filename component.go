package depot

import (
	"fmt"
	"reflect"

	"github.com/TheBitDrifter/table"
)

// Category describes how a component's data is laid out inside a chunk.
type Category uint8

const (
	// CategoryData components get one fixed-size column per chunk.
	CategoryData Category = iota
	// CategoryZeroSize components are markers: present in the archetype, no column.
	CategoryZeroSize
	// CategorySharedValue components store one interned value per chunk.
	CategorySharedValue
	// CategoryBuffer components store a variable-length element list per row.
	CategoryBuffer
	// CategoryManagedRef components store a handle to a Go value per row.
	CategoryManagedRef
)

func (c Category) String() string {
	switch c {
	case CategoryData:
		return "data"
	case CategoryZeroSize:
		return "zero-size"
	case CategorySharedValue:
		return "shared"
	case CategoryBuffer:
		return "buffer"
	case CategoryManagedRef:
		return "managed"
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// ComponentInfo is the immutable description of a component type.
// For buffer components Size and Align describe one element.
type ComponentInfo struct {
	Name           string
	Size           uint32
	Align          uint8
	Category       Category
	WriteGroup     Component
	BufferCapacity int
	Type           reflect.Type
}

// Component represents a data attribute/state that can be attached to entities.
// Components can be used to create queries for entities.
type Component interface {
	table.ElementType
	Info() ComponentInfo
	base() *componentType
}

// AccessMode states whether a query or job reads or writes a component.
type AccessMode uint8

const (
	ReadWrite AccessMode = iota
	ReadOnlyAccess
)

type componentType struct {
	table.ElementType
	info ComponentInfo
}

func (c *componentType) Info() ComponentInfo { return c.info }

func (c *componentType) base() *componentType { return c }

type readOnlyComponent struct {
	Component
}

// ReadOnly marks a component as read-only when listed in a query description
// or dependency token.
func ReadOnly(c Component) Component {
	return readOnlyComponent{Component: c.base()}
}

func accessOf(c Component) AccessMode {
	if _, ok := c.(readOnlyComponent); ok {
		return ReadOnlyAccess
	}
	return ReadWrite
}

// ComponentOption customises a component at construction time.
type ComponentOption func(*ComponentInfo)

// WithWriteGroup declares that the component belongs to the write group of
// target: queries with FilterWriteGroup that require target exclude entities
// carrying this component unless it is listed explicitly.
func WithWriteGroup(target Component) ComponentOption {
	return func(info *ComponentInfo) {
		info.WriteGroup = target
	}
}

// WithName overrides the reflected type name used in logs and errors.
func WithName(name string) ComponentOption {
	return func(info *ComponentInfo) {
		info.Name = name
	}
}

func newComponentType[T any](category Category, opts ...ComponentOption) *componentType {
	typ := reflect.TypeFor[T]()
	info := ComponentInfo{
		Name:     typ.String(),
		Size:     uint32(typ.Size()),
		Align:    uint8(typ.Align()),
		Category: category,
		Type:     typ,
	}
	if category == CategoryData && info.Size == 0 {
		info.Category = CategoryZeroSize
	}
	for _, opt := range opts {
		opt(&info)
	}
	switch info.Category {
	case CategoryData, CategoryBuffer:
		if hasPointers(typ) {
			panic(fmt.Sprintf("depot: component %s contains pointers; register it as a managed component", info.Name))
		}
	}
	return &componentType{
		ElementType: table.FactoryNewElementType[T](),
		info:        info,
	}
}

// hasPointers reports whether values of typ hold references the garbage
// collector must see. Such values cannot live in raw chunk memory.
func hasPointers(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.String,
		reflect.Interface, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	case reflect.Array:
		return typ.Len() > 0 && hasPointers(typ.Elem())
	case reflect.Struct:
		for i := 0; i < typ.NumField(); i++ {
			if hasPointers(typ.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

// PrefabTag marks an entity as a template. Queries skip prefabs unless
// IncludePrefab is set; Instantiate drops the tag on the copies.
type PrefabTag struct{}

// DisabledTag hides an entity from queries unless IncludeDisabled is set.
type DisabledTag struct{}

var (
	// EntityType is the implicit entity id column present in every archetype.
	EntityType = AccessibleComponent[Entity]{Component: newComponentType[Entity](CategoryData, WithName("Entity"))}
	Prefab     = FactoryNewComponent[PrefabTag](WithName("Prefab"))
	Disabled   = FactoryNewComponent[DisabledTag](WithName("Disabled"))
)
