package depot

import (
	"github.com/kamstrup/intmap"
)

// DependencyToken names the component types a job reads and writes.
type DependencyToken struct {
	Reads  []Component
	Writes []Component
}

type typeFences struct {
	writer  JobHandle
	readers []JobHandle
}

// DependencyManager tracks, per component type, the job currently writing it
// and the jobs currently reading it. It does not block on its own; callers
// schedule against the handles it returns.
type DependencyManager struct {
	fences     *intmap.Map[TypeIndex, *typeFences]
	tracked    []TypeIndex
	maxReaders int
}

func NewDependencyManager(maxReaders int) *DependencyManager {
	if maxReaders <= 0 {
		maxReaders = DefaultMaxReadFences
	}
	return &DependencyManager{
		fences:     intmap.New[TypeIndex, *typeFences](64),
		maxReaders: maxReaders,
	}
}

func (m *DependencyManager) fencesFor(idx TypeIndex) *typeFences {
	if f, ok := m.fences.Get(idx); ok {
		return f
	}
	f := &typeFences{}
	m.fences.Put(idx, f)
	m.tracked = append(m.tracked, idx)
	return f
}

// GetDependency returns the handle a job reading reads and writing writes has
// to wait for: the writers of its reads, and the writer and readers of its
// writes.
func (m *DependencyManager) GetDependency(reads, writes []TypeIndex) JobHandle {
	var deps []JobHandle
	for _, idx := range reads {
		if f, ok := m.fences.Get(idx); ok {
			deps = append(deps, f.writer)
		}
	}
	for _, idx := range writes {
		if f, ok := m.fences.Get(idx); ok {
			deps = append(deps, f.writer)
			deps = append(deps, f.readers...)
		}
	}
	return CombineDependencies(deps...)
}

// AddDependency records job as the writer of writes and a reader of reads.
func (m *DependencyManager) AddDependency(reads, writes []TypeIndex, job JobHandle) JobHandle {
	for _, idx := range writes {
		f := m.fencesFor(idx)
		f.writer = job
		f.readers = f.readers[:0]
	}
	for _, idx := range reads {
		if containsIndex(writes, idx) {
			continue
		}
		f := m.fencesFor(idx)
		f.readers = append(f.readers, job)
		if len(f.readers) > m.maxReaders {
			f.readers = []JobHandle{CombineDependencies(f.readers...)}
		}
	}
	return job
}

// CompleteWriteDependency waits for the job writing idx, after which the
// caller may read it.
func (m *DependencyManager) CompleteWriteDependency(idx TypeIndex) error {
	f, ok := m.fences.Get(idx)
	if !ok {
		return nil
	}
	err := f.writer.Complete()
	f.writer = JobHandle{}
	return err
}

// CompleteReadDependency waits for the jobs reading idx.
func (m *DependencyManager) CompleteReadDependency(idx TypeIndex) error {
	f, ok := m.fences.Get(idx)
	if !ok {
		return nil
	}
	var err error
	for _, r := range f.readers {
		if rerr := r.Complete(); rerr != nil && err == nil {
			err = rerr
		}
	}
	f.readers = f.readers[:0]
	return err
}

// CompleteReadAndWriteDependency waits for every job touching idx, after
// which the caller may write it.
func (m *DependencyManager) CompleteReadAndWriteDependency(idx TypeIndex) error {
	f, ok := m.fences.Get(idx)
	if !ok {
		return nil
	}
	err := f.writer.Complete()
	for _, r := range f.readers {
		if rerr := r.Complete(); rerr != nil && err == nil {
			err = rerr
		}
	}
	f.writer = JobHandle{}
	f.readers = f.readers[:0]
	return err
}

// CompleteDependency makes reads safe to read and writes safe to write on the
// calling goroutine.
func (m *DependencyManager) CompleteDependency(reads, writes []TypeIndex) error {
	var first error
	for _, idx := range reads {
		if err := m.CompleteWriteDependency(idx); err != nil && first == nil {
			first = err
		}
	}
	for _, idx := range writes {
		if err := m.CompleteReadAndWriteDependency(idx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// CompleteAll waits for every tracked job.
func (m *DependencyManager) CompleteAll() error {
	var first error
	for _, idx := range m.tracked {
		if err := m.CompleteReadAndWriteDependency(idx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func containsIndex(list []TypeIndex, idx TypeIndex) bool {
	for _, v := range list {
		if v == idx {
			return true
		}
	}
	return false
}

func (w *World) tokenTypes(token DependencyToken) (reads, writes []TypeIndex) {
	for _, c := range token.Reads {
		reads = append(reads, w.registry.register(c).index)
	}
	for _, c := range token.Writes {
		writes = append(writes, w.registry.register(c).index)
	}
	return reads, writes
}

// GetDependency returns the handle work described by token must wait for.
func (w *World) GetDependency(token DependencyToken) JobHandle {
	reads, writes := w.tokenTypes(token)
	return w.deps.GetDependency(reads, writes)
}

// AddDependency registers job against token's types.
func (w *World) AddDependency(token DependencyToken, job JobHandle) JobHandle {
	reads, writes := w.tokenTypes(token)
	return w.deps.AddDependency(reads, writes, job)
}

// CompleteDependency blocks until token's types may be used on the calling
// goroutine.
func (w *World) CompleteDependency(token DependencyToken) error {
	reads, writes := w.tokenTypes(token)
	return w.deps.CompleteDependency(reads, writes)
}

// CompleteAllJobs waits for every job registered with the world.
func (w *World) CompleteAllJobs() error {
	return w.deps.CompleteAll()
}
