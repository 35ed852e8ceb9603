package depot

import (
	"fmt"
	"slices"
	"strings"

	"github.com/TheBitDrifter/mask"
)

// QueryOptions modify which archetypes a query description matches.
type QueryOptions uint8

const (
	OptionDefault QueryOptions = 0
	// IncludePrefab matches entities tagged Prefab.
	IncludePrefab QueryOptions = 1 << 0
	// IncludeDisabled matches entities tagged Disabled.
	IncludeDisabled QueryOptions = 1 << 1
	// FilterWriteGroup excludes entities carrying write-group members of the
	// requested types unless those members are requested too.
	FilterWriteGroup QueryOptions = 1 << 2
)

// QueryDesc selects archetypes containing every All type, at least one Any
// type (when Any is non-empty) and no None type. A component wrapped with
// ReadOnly is requested read-only.
type QueryDesc struct {
	All     []Component
	Any     []Component
	None    []Component
	Options QueryOptions
}

// Query builds a QueryDesc: And adds required types, Or adds alternatives
// and Not adds exclusions.
type Query interface {
	And(items ...interface{}) Query
	Or(items ...interface{}) Query
	Not(items ...interface{}) Query
	WithOptions(QueryOptions) Query
	Desc() QueryDesc
}

type query struct {
	desc QueryDesc
}

func newQuery() Query {
	return &query{}
}

func (q *query) And(items ...interface{}) Query {
	q.desc.All = append(q.desc.All, processItems(items...)...)
	return q
}

func (q *query) Or(items ...interface{}) Query {
	q.desc.Any = append(q.desc.Any, processItems(items...)...)
	return q
}

func (q *query) Not(items ...interface{}) Query {
	q.desc.None = append(q.desc.None, processItems(items...)...)
	return q
}

func (q *query) WithOptions(opts QueryOptions) Query {
	q.desc.Options |= opts
	return q
}

func (q *query) Desc() QueryDesc {
	return QueryDesc{
		All:     slices.Clone(q.desc.All),
		Any:     slices.Clone(q.desc.Any),
		None:    slices.Clone(q.desc.None),
		Options: q.desc.Options,
	}
}

func processItems(items ...interface{}) []Component {
	components := make([]Component, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case Component:
			components = append(components, v)
		case []Component:
			components = append(components, v...)
		}
	}
	return components
}

type compiledDesc struct {
	all      mask.Mask
	any      mask.Mask
	anyEmpty bool
	none     mask.Mask
	// all+any, and the subset of those requested read-write
	listed      mask.Mask
	readWrite   mask.Mask
	listedTypes []TypeIndex
	options     QueryOptions
	// rebuilt whenever the registry grows
	writeGroupNone mask.Mask
}

func (d *compiledDesc) matches(a *archetype) bool {
	m := a.mask
	if !m.ContainsAll(d.all) {
		return false
	}
	if !d.anyEmpty && !m.ContainsAny(d.any) {
		return false
	}
	// ContainsNone is false for an empty argument
	if !d.none.IsEmpty() && !m.ContainsNone(d.none) {
		return false
	}
	return d.writeGroupNone.IsEmpty() || m.ContainsNone(d.writeGroupNone)
}

func (d *compiledDesc) rebuildWriteGroups(reg *typeRegistry, policy WriteGroupPolicy) {
	d.writeGroupNone = mask.Mask{}
	if d.options&FilterWriteGroup == 0 {
		return
	}
	for _, idx := range d.listedTypes {
		if policy == WriteGroupReadWriteOnly && !d.readWrite.ContainsAll(maskOf(idx)) {
			continue
		}
		for _, member := range reg.at(idx).writeGroupMembers {
			if !d.listed.ContainsAll(maskOf(member)) {
				d.writeGroupNone.Mark(uint32(member))
			}
		}
	}
}

type requestedType struct {
	ti     *typeInfo
	access AccessMode
}

func (w *World) compileDesc(desc QueryDesc) (compiledDesc, []requestedType, error) {
	cd := compiledDesc{options: desc.Options, anyEmpty: len(desc.Any) == 0}
	var requested []requestedType
	var indices []TypeIndex

	for _, c := range desc.All {
		ti := w.registry.register(c)
		indices = append(indices, ti.index)
		cd.all.Mark(uint32(ti.index))
		requested = append(requested, requestedType{ti: ti, access: accessOf(c)})
	}
	for _, c := range desc.Any {
		ti := w.registry.register(c)
		indices = append(indices, ti.index)
		cd.any.Mark(uint32(ti.index))
		requested = append(requested, requestedType{ti: ti, access: accessOf(c)})
	}
	for _, c := range desc.None {
		ti := w.registry.register(c)
		indices = append(indices, ti.index)
		cd.none.Mark(uint32(ti.index))
	}

	sorted := slices.Clone(indices)
	slices.Sort(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return compiledDesc{}, nil, DuplicateComponentInQueryError{Component: w.registry.at(sorted[i]).comp}
		}
	}

	for _, r := range requested {
		cd.listed.Mark(uint32(r.ti.index))
		cd.listedTypes = append(cd.listedTypes, r.ti.index)
		if r.access == ReadWrite {
			cd.readWrite.Mark(uint32(r.ti.index))
		}
	}
	prefab, _ := w.registry.lookup(Prefab)
	disabled, _ := w.registry.lookup(Disabled)
	if desc.Options&IncludePrefab == 0 && !cd.listed.ContainsAll(maskOf(prefab.index)) {
		cd.none.Mark(uint32(prefab.index))
	}
	if desc.Options&IncludeDisabled == 0 && !cd.listed.ContainsAll(maskOf(disabled.index)) {
		cd.none.Mark(uint32(disabled.index))
	}
	cd.rebuildWriteGroups(w.registry, w.cfg.WriteGroupPolicy)
	return cd, requested, nil
}

// compileQuery validates and compiles descs into shareable query data.
func (w *World) compileQuery(descs []QueryDesc) (*queryData, error) {
	data := &queryData{
		key:             queryKey(w, descs),
		registryVersion: w.registry.version,
		pruneVersion:    w.archetypes.pruneVersion,
	}
	positions := make(map[TypeIndex]int)
	addRequired := func(ti *typeInfo, access AccessMode) {
		if pos, ok := positions[ti.index]; ok {
			if access == ReadWrite {
				data.access[pos] = ReadWrite
			}
			return
		}
		positions[ti.index] = len(data.required)
		data.required = append(data.required, ti.index)
		data.access = append(data.access, access)
	}
	addRequired(w.entityType, ReadOnlyAccess)

	for _, desc := range descs {
		cd, requested, err := w.compileDesc(desc)
		if err != nil {
			return nil, err
		}
		data.descs = append(data.descs, cd)
		for _, r := range requested {
			addRequired(r.ti, r.access)
		}
	}
	if len(data.descs) == 0 {
		cd, _, _ := w.compileDesc(QueryDesc{})
		data.descs = append(data.descs, cd)
	}
	for i, idx := range data.required {
		if data.access[i] == ReadWrite {
			data.writers = append(data.writers, idx)
		} else {
			data.readers = append(data.readers, idx)
		}
	}
	// compileDesc may have registered new types
	data.registryVersion = w.registry.version
	return data, nil
}

func queryKey(w *World, descs []QueryDesc) string {
	var sb strings.Builder
	writeList := func(tag string, comps []Component) {
		keys := make([]string, 0, len(comps))
		for _, c := range comps {
			mode := "w"
			if accessOf(c) == ReadOnlyAccess {
				mode = "r"
			}
			keys = append(keys, fmt.Sprintf("%d%s", w.registry.register(c).index, mode))
		}
		slices.Sort(keys)
		sb.WriteString(tag)
		sb.WriteString(strings.Join(keys, ","))
	}
	for i, desc := range descs {
		if i > 0 {
			sb.WriteByte(';')
		}
		fmt.Fprintf(&sb, "o%d", desc.Options)
		writeList("|a:", desc.All)
		writeList("|y:", desc.Any)
		writeList("|n:", desc.None)
	}
	return sb.String()
}

// CreateEntityQuery compiles one or more descriptions into a query matching
// the union of their archetypes. Identical descriptions share their match
// cache; every returned query carries its own filter.
func (w *World) CreateEntityQuery(descs ...QueryDesc) (*EntityQuery, error) {
	key := queryKey(w, descs)
	if idx, ok := w.queries.GetIndex(key); ok {
		return newEntityQuery(w, *w.queries.GetItem(idx)), nil
	}
	data, err := w.compileQuery(descs)
	if err != nil {
		return nil, err
	}
	if _, err := w.queries.Register(key, data); err != nil {
		w.logger.Warn().Err(err).Str("query", key).Msg("query cache full, query data not shared")
	}
	w.logger.Debug().
		Str("query", key).
		Int("required", len(data.required)).
		Msg("query compiled")
	return newEntityQuery(w, data), nil
}

// NewQuery compiles the description built by q.
func (w *World) NewQuery(q Query) (*EntityQuery, error) {
	return w.CreateEntityQuery(q.Desc())
}
