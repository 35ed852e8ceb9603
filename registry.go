package depot

import (
	"fmt"

	"github.com/TheBitDrifter/table"
)

// MaxComponentTypes bounds the number of component types a single world can
// register, including the built-ins.
const MaxComponentTypes = 256

// TypeIndex is the small stable integer a world assigns to a component type.
type TypeIndex uint16

type typeInfo struct {
	index TypeIndex
	comp  *componentType
	info  ComponentInfo
	// types that named this one as their write group target
	writeGroupMembers []TypeIndex
}

type typeRegistry struct {
	schema  table.Schema
	byIndex [MaxComponentTypes]*typeInfo
	byBase  map[*componentType]*typeInfo
	count   int
	// bumped whenever a type is registered so query caches can rebuild
	// their write-group masks
	version uint32
}

func newTypeRegistry(schema table.Schema) *typeRegistry {
	if schema == nil {
		schema = table.Factory.NewSchema()
	}
	return &typeRegistry{
		schema: schema,
		byBase: make(map[*componentType]*typeInfo),
	}
}

func (r *typeRegistry) register(c Component) *typeInfo {
	b := c.base()
	if ti, ok := r.byBase[b]; ok {
		return ti
	}
	r.schema.Register(b.ElementType)
	idx := r.schema.RowIndexFor(b.ElementType)
	if idx >= MaxComponentTypes {
		panic(fmt.Sprintf("depot: component %s got type index %d, worlds support at most %d types",
			b.info.Name, idx, MaxComponentTypes))
	}
	ti := &typeInfo{
		index: TypeIndex(idx),
		comp:  b,
		info:  b.info,
	}
	r.byIndex[idx] = ti
	r.byBase[b] = ti
	r.count++
	r.version++

	if b.info.WriteGroup != nil {
		target := r.register(b.info.WriteGroup)
		target.writeGroupMembers = append(target.writeGroupMembers, ti.index)
	}
	return ti
}

func (r *typeRegistry) lookup(c Component) (*typeInfo, bool) {
	ti, ok := r.byBase[c.base()]
	return ti, ok
}

func (r *typeRegistry) at(idx TypeIndex) *typeInfo {
	return r.byIndex[idx]
}
