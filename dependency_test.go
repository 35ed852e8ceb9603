package depot

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockedJob schedules a job that runs until release is closed.
func blockedJob(s *Scheduler, release <-chan struct{}) JobHandle {
	return s.Schedule(context.Background(), JobHandle{}, func(context.Context) error {
		<-release
		return nil
	})
}

func TestDependencyRules(t *testing.T) {
	const (
		typeA TypeIndex = 10
		typeB TypeIndex = 11
	)
	tests := []struct {
		name                 string
		registerReads        []TypeIndex
		registerWrites       []TypeIndex
		reads                []TypeIndex
		writes               []TypeIndex
		expectMustWaitForJob bool
	}{
		{"Reader after writer", nil, []TypeIndex{typeA}, []TypeIndex{typeA}, nil, true},
		{"Writer after writer", nil, []TypeIndex{typeA}, nil, []TypeIndex{typeA}, true},
		{"Writer after reader", []TypeIndex{typeA}, nil, nil, []TypeIndex{typeA}, true},
		{"Reader after reader", []TypeIndex{typeA}, nil, []TypeIndex{typeA}, nil, false},
		{"Disjoint types", nil, []TypeIndex{typeA}, []TypeIndex{typeB}, []TypeIndex{typeB}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(1, zerolog.Nop())
			m := NewDependencyManager(4)
			release := make(chan struct{})
			job := blockedJob(s, release)
			m.AddDependency(tt.registerReads, tt.registerWrites, job)

			dep := m.GetDependency(tt.reads, tt.writes)
			assert.Equal(t, tt.expectMustWaitForJob, !dep.IsCompleted())

			close(release)
			require.NoError(t, m.CompleteAll())
			assert.True(t, m.GetDependency(tt.reads, tt.writes).IsCompleted())
			s.Wait()
		})
	}
}

func TestDependencyWriterResetsReaders(t *testing.T) {
	const typeA TypeIndex = 3
	s := NewScheduler(2, zerolog.Nop())
	m := NewDependencyManager(4)

	release := make(chan struct{})
	reader := blockedJob(s, release)
	m.AddDependency([]TypeIndex{typeA}, nil, reader)

	// the writer is scheduled against the reader, so it subsumes it
	writer := s.Schedule(context.Background(), m.GetDependency(nil, []TypeIndex{typeA}), func(context.Context) error {
		return nil
	})
	m.AddDependency(nil, []TypeIndex{typeA}, writer)

	f, ok := m.fences.Get(typeA)
	require.True(t, ok)
	assert.Empty(t, f.readers)
	assert.Equal(t, writer, f.writer)

	close(release)
	require.NoError(t, m.CompleteWriteDependency(typeA))
	assert.True(t, reader.IsCompleted())
	s.Wait()
}

func TestDependencyReadersCollapse(t *testing.T) {
	const typeA TypeIndex = 7
	s := NewScheduler(8, zerolog.Nop())
	m := NewDependencyManager(2)
	release := make(chan struct{})

	var handles []JobHandle
	for range 5 {
		h := blockedJob(s, release)
		handles = append(handles, h)
		m.AddDependency([]TypeIndex{typeA}, nil, h)
	}
	f, _ := m.fences.Get(typeA)
	assert.LessOrEqual(t, len(f.readers), 2)

	dep := m.GetDependency(nil, []TypeIndex{typeA})
	assert.False(t, dep.IsCompleted())

	close(release)
	require.NoError(t, m.CompleteReadDependency(typeA))
	for i, h := range handles {
		assert.True(t, h.IsCompleted(), "reader %d must be covered by the collapsed fence", i)
	}
	s.Wait()
}

func TestDependencyMutualExclusion(t *testing.T) {
	w := Factory.NewWorld(nil, WithWorkers(4))
	token := DependencyToken{Writes: []Component{position}}
	ctx := context.Background()

	var mu sync.Mutex
	active := 0
	overlapped := false
	job := func(context.Context) error {
		mu.Lock()
		active++
		if active > 1 {
			overlapped = true
		}
		mu.Unlock()
		for range 1000 {
			_ = w.GlobalVersion()
		}
		mu.Lock()
		active--
		mu.Unlock()
		return nil
	}

	var handles []JobHandle
	for range 10 {
		handles = append(handles, w.Schedule(ctx, token, job))
	}
	require.NoError(t, CombineDependencies(handles...).Complete())
	require.NoError(t, w.CompleteDependency(token))
	assert.False(t, overlapped, "writers of one type never run concurrently")
	w.Scheduler().Wait()
}

func TestWorldDependencyToken(t *testing.T) {
	w := Factory.NewWorld(nil)
	release := make(chan struct{})
	job := blockedJob(w.Scheduler(), release)
	w.AddDependency(DependencyToken{Reads: []Component{velocity}, Writes: []Component{position}}, job)

	assert.False(t, w.GetDependency(DependencyToken{Reads: []Component{position}}).IsCompleted())
	assert.False(t, w.GetDependency(DependencyToken{Writes: []Component{velocity}}).IsCompleted())
	assert.True(t, w.GetDependency(DependencyToken{Reads: []Component{velocity, health}}).IsCompleted())

	close(release)
	require.NoError(t, w.CompleteAllJobs())
	assert.True(t, w.GetDependency(DependencyToken{Writes: []Component{position, velocity}}).IsCompleted())
}

func TestEntityAccessCompletesJobs(t *testing.T) {
	w := Factory.NewWorld(nil)
	entities, err := w.NewEntities(1, position, velocity)
	require.NoError(t, err)
	e := entities[0]
	ctx := context.Background()

	ptr, err := position.GetForWrite(w, e)
	require.NoError(t, err)
	writer := w.Schedule(ctx, DependencyToken{Writes: []Component{position}}, func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		ptr.X = 42
		return nil
	})

	got, err := position.Get(w, e)
	require.NoError(t, err)
	assert.Equal(t, 42.0, got.X, "a read waits for the writer job")
	assert.True(t, writer.IsCompleted())

	var read atomic.Bool
	reader := w.Schedule(ctx, DependencyToken{Reads: []Component{velocity}}, func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		read.Store(true)
		return nil
	})
	require.NoError(t, velocity.Set(w, e, Velocity{X: 1}))
	assert.True(t, read.Load(), "a write waits for reader jobs")
	assert.True(t, reader.IsCompleted())
	w.Scheduler().Wait()
}
