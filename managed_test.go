package depot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Script struct {
	Name   string
	Params map[string]string
}

func TestManagedComponent(t *testing.T) {
	script := FactoryNewManagedComponent[*Script](WithName("Script"))
	w := Factory.NewWorld(nil)
	entities, err := w.NewEntities(2, position, script)
	require.NoError(t, err)

	got, err := script.Get(w, entities[0])
	require.NoError(t, err)
	assert.Nil(t, got, "unset managed values read as zero")

	s := &Script{Name: "patrol", Params: map[string]string{"speed": "2"}}
	require.NoError(t, script.Set(w, entities[0], s))
	got, err = script.Get(w, entities[0])
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, script.Set(w, entities[0], &Script{Name: "idle"}))
	assert.Equal(t, 1, w.Stats().ManagedObjects, "overwriting reuses the handle")

	require.NoError(t, w.AddComponent(entities[0], velocity))
	got, err = script.Get(w, entities[0])
	require.NoError(t, err)
	assert.Equal(t, "idle", got.Name)

	require.NoError(t, w.RemoveComponent(entities[0], script))
	assert.Zero(t, w.Stats().ManagedObjects, "removing the component releases the value")
}

func TestManagedComponentInstantiateAndDestroy(t *testing.T) {
	script := FactoryNewManagedComponent[*Script]()
	w := Factory.NewWorld(nil)
	entities, err := w.NewEntities(1, script, Prefab)
	require.NoError(t, err)
	s := &Script{Name: "spawner"}
	require.NoError(t, script.Set(w, entities[0], s))

	clones, err := w.Instantiate(entities[0], 2)
	require.NoError(t, err)
	for _, c := range clones {
		got, err := script.Get(w, c)
		require.NoError(t, err)
		assert.Same(t, s, got, "instantiation copies the reference")
	}
	assert.Equal(t, 3, w.Stats().ManagedObjects)

	require.NoError(t, w.DestroyEntities(clones...))
	assert.Equal(t, 1, w.Stats().ManagedObjects)
}

func TestManagedComponentFromCursor(t *testing.T) {
	label := FactoryNewManagedComponent[string]()
	w := Factory.NewWorld(nil)
	entities, err := w.NewEntities(3, label)
	require.NoError(t, err)
	q, err := w.CreateEntityQuery(QueryDesc{All: []Component{label}})
	require.NoError(t, err)

	cursor := q.NewCursor()
	for cursor.Next() {
		label.SetFromCursor(cursor, cursor.CurrentEntity().String())
	}
	cursor = q.NewCursor()
	for cursor.Next() {
		assert.Equal(t, cursor.CurrentEntity().String(), label.GetFromCursor(cursor))
	}
	got, err := label.Get(w, entities[2])
	require.NoError(t, err)
	assert.Equal(t, entities[2].String(), got)
}

func TestManagedStoreRecyclesHandles(t *testing.T) {
	s := newManagedStore()
	a := s.add("a")
	b := s.add("b")
	assert.Equal(t, uint32(1), a, "handle 0 is reserved")
	s.remove(a)
	assert.Nil(t, s.get(a))
	assert.Equal(t, a, s.add("c"))
	assert.Equal(t, "b", s.get(b))
	assert.Equal(t, 2, s.live)
	s.remove(0)
	assert.Equal(t, 2, s.live)
}
