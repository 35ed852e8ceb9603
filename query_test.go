package depot

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Heading struct {
	Radians float32
}

// TestQueryFiltering tests the basic query filtering capabilities
func TestQueryFiltering(t *testing.T) {
	type entitySetup struct {
		components []Component
		count      int
	}

	tests := []struct {
		name            string
		entitySetups    []entitySetup
		descs           []QueryDesc
		expectedMatches int
	}{
		{
			name: "All matches supersets",
			entitySetups: []entitySetup{
				{[]Component{position, velocity}, 5},
				{[]Component{position}, 10},
				{[]Component{velocity}, 15},
			},
			descs:           []QueryDesc{{All: []Component{position, velocity}}},
			expectedMatches: 5,
		},
		{
			name: "Any matches either",
			entitySetups: []entitySetup{
				{[]Component{position, velocity}, 5},
				{[]Component{position}, 10},
				{[]Component{velocity}, 15},
				{[]Component{health}, 7},
			},
			descs:           []QueryDesc{{Any: []Component{position, velocity}}},
			expectedMatches: 30,
		},
		{
			name: "None excludes",
			entitySetups: []entitySetup{
				{[]Component{position, velocity}, 5},
				{[]Component{position}, 10},
				{[]Component{velocity}, 15},
				{[]Component{health}, 20},
			},
			descs:           []QueryDesc{{None: []Component{velocity}}},
			expectedMatches: 30,
		},
		{
			name: "All with Any and None",
			entitySetups: []entitySetup{
				{[]Component{position, velocity, health}, 5},
				{[]Component{position, velocity}, 10},
				{[]Component{position, health}, 15},
				{[]Component{position}, 25},
			},
			descs: []QueryDesc{{
				All:  []Component{position},
				Any:  []Component{velocity},
				None: []Component{health},
			}},
			expectedMatches: 10,
		},
		{
			name: "Union of descriptions",
			entitySetups: []entitySetup{
				{[]Component{position, velocity, health}, 5},
				{[]Component{position, velocity}, 10},
				{[]Component{position, health}, 15},
				{[]Component{velocity, health}, 20},
				{[]Component{position}, 25},
			},
			descs: []QueryDesc{
				{All: []Component{position, velocity}},
				{All: []Component{position, health}},
			},
			expectedMatches: 30, // each archetype counted once
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Factory.NewWorld(nil)
			for _, setup := range tt.entitySetups {
				_, err := w.NewEntities(setup.count, setup.components...)
				require.NoError(t, err)
			}

			q, err := w.CreateEntityQuery(tt.descs...)
			require.NoError(t, err)

			cursor := q.NewCursor()
			matchCount := 0
			for cursor.Next() {
				matchCount++
			}
			require.NoError(t, cursor.Err())
			assert.Equal(t, tt.expectedMatches, matchCount)
			assert.Equal(t, tt.expectedMatches, q.CalculateEntityCount())
		})
	}
}

func TestQueryBuilder(t *testing.T) {
	w := Factory.NewWorld(nil)
	_, err := w.NewEntities(3, position, velocity)
	require.NoError(t, err)
	_, err = w.NewEntities(4, position, health)
	require.NoError(t, err)

	q, err := w.NewQuery(Factory.NewQuery().And(position).Not([]Component{health}))
	require.NoError(t, err)
	assert.Equal(t, 3, q.CalculateEntityCount())
}

func TestQueryMatchesLateArchetypes(t *testing.T) {
	w := Factory.NewWorld(nil)
	q, err := w.CreateEntityQuery(QueryDesc{All: []Component{position}})
	require.NoError(t, err)
	assert.True(t, q.IsEmptyIgnoreFilter())

	entities, err := w.NewEntities(2, position)
	require.NoError(t, err)
	_, err = w.NewEntities(3, position, velocity)
	require.NoError(t, err)
	_, err = w.NewEntities(4, velocity)
	require.NoError(t, err)

	assert.Equal(t, 5, q.CalculateEntityCount())
	assert.Len(t, q.MatchedArchetypes(), 2)
	assert.True(t, q.Matches(entities[0]))

	others, err := w.NewEntities(1, health)
	require.NoError(t, err)
	assert.False(t, q.Matches(others[0]))
	assert.False(t, q.Matches(NullEntity))
}

func archetypeKeys(archs []Archetype) []string {
	keys := make([]string, 0, len(archs))
	for _, a := range archs {
		var names []string
		for _, c := range a.Components() {
			names = append(names, c.Info().Name)
		}
		slices.Sort(names)
		keys = append(keys, strings.Join(names, "+"))
	}
	return keys
}

type Marker struct{}

func TestQueryMatchIsIndependentOfCreationOrder(t *testing.T) {
	marker := FactoryNewComponent[Marker](WithName("Marker"))
	archetypes := [][]Component{
		{position},
		{position, velocity},
		{position, health},
		{velocity},
		{velocity, health},
		{position, velocity, health},
		{health},
		{position, Prefab},
		{position, Disabled},
		{position, marker},
	}
	tests := []struct {
		name string
		desc QueryDesc
		want int
	}{
		{"All", QueryDesc{All: []Component{position}}, 5},
		{"All with Any", QueryDesc{All: []Component{position}, Any: []Component{velocity, health}}, 3},
		{"All with None", QueryDesc{All: []Component{position}, None: []Component{health}}, 3},
		{"Any with None", QueryDesc{Any: []Component{velocity, health}, None: []Component{position}}, 3},
		{"No exclusions", QueryDesc{All: []Component{position}, Options: IncludePrefab | IncludeDisabled}, 7},
		{"Two All", QueryDesc{All: []Component{velocity, health}}, 2},
	}
	build := func(w *World, from, to int) {
		for _, comps := range archetypes[from:to] {
			_, err := w.NewEntities(1, comps...)
			require.NoError(t, err)
		}
	}
	orders := []struct {
		name string
		// archetypes created before the query is compiled
		before int
	}{
		{"before compile", len(archetypes)},
		{"after compile", 0},
		{"interleaved", len(archetypes) / 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var results [][]string
			for _, order := range orders {
				w := Factory.NewWorld(nil)
				build(w, 0, order.before)
				q, err := w.CreateEntityQuery(tt.desc)
				require.NoError(t, err)
				q.CalculateEntityCount()
				build(w, order.before, len(archetypes))

				matched := archetypeKeys(q.MatchedArchetypes())
				assert.Len(t, matched, tt.want, order.name)
				assert.Equal(t, tt.want, q.CalculateEntityCount(), order.name)
				results = append(results, matched)
			}
			for i := 1; i < len(results); i++ {
				assert.Equal(t, results[0], results[i], "%s and %s disagree", orders[0].name, orders[i].name)
			}
		})
	}
}

func TestQueryDuplicateComponent(t *testing.T) {
	tests := []struct {
		name string
		desc QueryDesc
	}{
		{"Twice in All", QueryDesc{All: []Component{position, position}}},
		{"All and None", QueryDesc{All: []Component{position}, None: []Component{position}}},
		{"Any and All", QueryDesc{All: []Component{position}, Any: []Component{ReadOnly(position)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Factory.NewWorld(nil)
			_, err := w.CreateEntityQuery(tt.desc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDuplicateComponentInQuery))

			var dup DuplicateComponentInQueryError
			require.True(t, errors.As(err, &dup))
			assert.Equal(t, "Position", dup.Component.Info().Name)
		})
	}
}

func TestQueryDefaultExclusions(t *testing.T) {
	tests := []struct {
		name     string
		desc     QueryDesc
		expected int
	}{
		{"Default", QueryDesc{All: []Component{position}}, 1},
		{"Include prefab", QueryDesc{All: []Component{position}, Options: IncludePrefab}, 2},
		{"Include disabled", QueryDesc{All: []Component{position}, Options: IncludeDisabled}, 2},
		{"Include both", QueryDesc{All: []Component{position}, Options: IncludePrefab | IncludeDisabled}, 3},
		{"Prefab requested explicitly", QueryDesc{All: []Component{position, Prefab}}, 1},
		{"Disabled requested explicitly", QueryDesc{All: []Component{position, Disabled}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Factory.NewWorld(nil)
			_, err := w.NewEntities(1, position)
			require.NoError(t, err)
			_, err = w.NewEntities(1, position, Prefab)
			require.NoError(t, err)
			_, err = w.NewEntities(1, position, Disabled)
			require.NoError(t, err)

			q, err := w.CreateEntityQuery(tt.desc)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, q.CalculateEntityCount())
		})
	}
}

func TestQueryWriteGroups(t *testing.T) {
	// heading takes over writing position for the entities carrying it
	heading := FactoryNewComponent[Heading](WithWriteGroup(position))

	tests := []struct {
		name     string
		policy   WriteGroupPolicy
		desc     QueryDesc
		expected int
	}{
		{
			name:     "Without the option",
			policy:   WriteGroupExcludeUnlisted,
			desc:     QueryDesc{All: []Component{position}},
			expected: 5,
		},
		{
			name:     "Unlisted member excluded",
			policy:   WriteGroupExcludeUnlisted,
			desc:     QueryDesc{All: []Component{position}, Options: FilterWriteGroup},
			expected: 2,
		},
		{
			name:     "Listed member kept",
			policy:   WriteGroupExcludeUnlisted,
			desc:     QueryDesc{All: []Component{position, heading}, Options: FilterWriteGroup},
			expected: 3,
		},
		{
			name:     "Read-only request ignored by read-write policy",
			policy:   WriteGroupReadWriteOnly,
			desc:     QueryDesc{All: []Component{ReadOnly(position)}, Options: FilterWriteGroup},
			expected: 5,
		},
		{
			name:     "Read-write request honoured by read-write policy",
			policy:   WriteGroupReadWriteOnly,
			desc:     QueryDesc{All: []Component{position}, Options: FilterWriteGroup},
			expected: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Factory.NewWorld(nil, WithWriteGroupPolicy(tt.policy))
			// compiled before the member type is registered
			q, err := w.CreateEntityQuery(tt.desc)
			require.NoError(t, err)

			_, err = w.NewEntities(2, position)
			require.NoError(t, err)
			_, err = w.NewEntities(3, position, heading)
			require.NoError(t, err)

			assert.Equal(t, tt.expected, q.CalculateEntityCount())
		})
	}
}

// TestQueryWithCursor tests the cursor-based entity iteration
func TestQueryWithCursor(t *testing.T) {
	w := Factory.NewWorld(nil, WithMaxChunkCapacity(3))
	entities, err := w.NewEntities(7, position, velocity)
	require.NoError(t, err)
	for i, e := range entities {
		require.NoError(t, velocity.Set(w, e, Velocity{X: float64(i), Y: 1}))
	}

	q, err := w.CreateEntityQuery(QueryDesc{All: []Component{position, ReadOnly(velocity)}})
	require.NoError(t, err)

	cursor := q.NewCursor()
	assert.Equal(t, 7, cursor.TotalMatched())
	seen := 0
	for cursor.Next() {
		assert.True(t, w.Locked(), "the world stays locked while iterating")
		vel := velocity.ReadFromCursor(cursor)
		pos := position.GetFromCursor(cursor)
		pos.X += vel.X
		pos.Y += vel.Y
		assert.Equal(t, cursor.CurrentChunk().Count()-seen%3-1, cursor.RemainingInChunk())
		seen++
	}
	require.NoError(t, cursor.Err())
	assert.False(t, w.Locked())
	assert.Equal(t, 7, seen)

	for i, e := range entities {
		pos, err := position.Get(w, e)
		require.NoError(t, err)
		assert.Equal(t, Position{X: float64(i), Y: 1}, pos)
	}
}

func TestCursorEntitiesIterator(t *testing.T) {
	w := Factory.NewWorld(nil, WithMaxChunkCapacity(2))
	entities, err := w.NewEntities(5, position)
	require.NoError(t, err)
	q, err := w.CreateEntityQuery(QueryDesc{All: []Component{position}})
	require.NoError(t, err)

	cursor := q.NewCursor()
	var got []Entity
	for row, e := range cursor.Entities() {
		assert.Equal(t, e, cursor.CurrentEntity())
		assert.Less(t, row, 2)
		got = append(got, e)
	}
	assert.Equal(t, entities, got)
	assert.False(t, w.Locked())

	// breaking early still unlocks
	for range cursor.Entities() {
		break
	}
	assert.False(t, w.Locked())
}

func TestNestedCursorsHoldTheLock(t *testing.T) {
	w := Factory.NewWorld(nil)
	_, err := w.NewEntities(3, position)
	require.NoError(t, err)
	_, err = w.NewEntities(2, velocity)
	require.NoError(t, err)
	outerQ, err := w.CreateEntityQuery(QueryDesc{All: []Component{position}})
	require.NoError(t, err)
	innerQ, err := w.CreateEntityQuery(QueryDesc{All: []Component{velocity}})
	require.NoError(t, err)

	outer := outerQ.NewCursor()
	for outer.Next() {
		inner := innerQ.NewCursor()
		visited := 0
		for inner.Next() {
			visited++
		}
		require.NoError(t, inner.Err())
		assert.Equal(t, 2, visited)
		assert.True(t, w.Locked(), "an inner cursor must not release the outer lock")

		e := outer.CurrentEntity()
		require.NoError(t, w.EnqueueDestroyEntities(e))
		assert.True(t, w.Exists(e), "destroys wait for the outermost unlock")
	}
	require.NoError(t, outer.Err())
	assert.False(t, w.Locked())
	assert.Zero(t, outerQ.CalculateEntityCount())
	assert.Equal(t, 2, w.EntityCount())
}

func TestLockNesting(t *testing.T) {
	w := Factory.NewWorld(nil)
	w.Lock()
	w.Lock()
	require.NoError(t, w.EnqueueNewEntities(2, position))
	require.NoError(t, w.Unlock())
	assert.True(t, w.Locked())
	assert.Zero(t, w.EntityCount())

	require.NoError(t, w.Unlock())
	assert.False(t, w.Locked())
	assert.Equal(t, 2, w.EntityCount())
	require.NoError(t, w.Unlock(), "unlocking an unlocked world is a no-op")
	assert.False(t, w.Locked())
}

func TestCursorDefersStructuralChanges(t *testing.T) {
	w := Factory.NewWorld(nil)
	_, err := w.NewEntities(4, position)
	require.NoError(t, err)
	q, err := w.CreateEntityQuery(QueryDesc{All: []Component{position}})
	require.NoError(t, err)

	cursor := q.NewCursor()
	for cursor.Next() {
		e := cursor.CurrentEntity()
		require.NoError(t, w.EnqueueAddComponent(e, velocity))
		_, err := w.NewEntities(1, position)
		var locked LockedStorageError
		assert.True(t, errors.As(err, &locked))
	}
	require.NoError(t, cursor.Err())

	withVel, err := w.CreateEntityQuery(QueryDesc{All: []Component{position, velocity}})
	require.NoError(t, err)
	assert.Equal(t, 4, withVel.CalculateEntityCount())
}

// TestQueryComponentAccess tests optional component access through a cursor
func TestQueryComponentAccess(t *testing.T) {
	w := Factory.NewWorld(nil)
	_, err := w.NewEntities(2, position)
	require.NoError(t, err)
	_, err = w.NewEntities(3, position, health)
	require.NoError(t, err)

	q, err := w.CreateEntityQuery(QueryDesc{All: []Component{position}, Any: []Component{health, velocity}})
	require.NoError(t, err)
	assert.Equal(t, 3, q.CalculateEntityCount())

	all, err := w.CreateEntityQuery(QueryDesc{All: []Component{position}})
	require.NoError(t, err)
	cursor := all.NewCursor()
	withHealth := 0
	for cursor.Next() {
		if ok, hp := health.GetFromCursorSafe(cursor); ok {
			hp.Current = 5
			withHealth++
		}
		assert.False(t, velocity.CheckCursor(cursor))
	}
	assert.Equal(t, 3, withHealth)
}
