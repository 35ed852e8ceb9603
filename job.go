package depot

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

type fence struct {
	done chan struct{}
	err  error
}

func newFence() *fence {
	return &fence{done: make(chan struct{})}
}

func (f *fence) complete(err error) {
	f.err = err
	close(f.done)
}

func (f *fence) isDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// JobHandle tracks completion of zero or more jobs. The zero handle is
// already complete.
type JobHandle struct {
	fences []*fence
}

// CombineDependencies returns a handle that completes when every given handle
// has. Fences that already succeeded are dropped.
func CombineDependencies(handles ...JobHandle) JobHandle {
	var fences []*fence
	for _, h := range handles {
		for _, f := range h.fences {
			if f.isDone() && f.err == nil {
				continue
			}
			dup := false
			for _, seen := range fences {
				if seen == f {
					dup = true
					break
				}
			}
			if !dup {
				fences = append(fences, f)
			}
		}
	}
	return JobHandle{fences: fences}
}

func (h JobHandle) IsCompleted() bool {
	for _, f := range h.fences {
		if !f.isDone() {
			return false
		}
	}
	return true
}

// Complete blocks until every job finished and returns the first failure.
func (h JobHandle) Complete() error {
	var first error
	for _, f := range h.fences {
		<-f.done
		if f.err != nil && first == nil {
			first = f.err
		}
	}
	return first
}

// Wait is Complete bounded by ctx.
func (h JobHandle) Wait(ctx context.Context) error {
	var first error
	for _, f := range h.fences {
		select {
		case <-f.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if f.err != nil && first == nil {
			first = f.err
		}
	}
	return first
}

// Job is a unit of work run by the Scheduler.
type Job func(ctx context.Context) error

// Scheduler runs jobs on a bounded number of goroutines once their
// dependencies complete.
type Scheduler struct {
	sem     *semaphore.Weighted
	workers int
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

func NewScheduler(workers int, logger zerolog.Logger) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: workers,
		logger:  logger,
	}
}

func (s *Scheduler) Workers() int {
	return s.workers
}

// Schedule starts job after dependsOn completes. A failed dependency fails
// the job without running it.
func (s *Scheduler) Schedule(ctx context.Context, dependsOn JobHandle, job Job) JobHandle {
	f := newFence()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		f.complete(s.run(ctx, dependsOn, job))
	}()
	return JobHandle{fences: []*fence{f}}
}

func (s *Scheduler) run(ctx context.Context, dependsOn JobHandle, job Job) (err error) {
	if err := dependsOn.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return eris.Wrap(err, ErrJobDependencyFailed.Error())
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("job panicked: %v", r)
			s.logger.Error().Err(err).Msg("job failed")
		}
	}()
	return job(ctx)
}

// Wait blocks until every scheduled job has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Schedule runs job once the dependencies of token are met and registers it
// as the reader and writer of the token's types.
func (w *World) Schedule(ctx context.Context, token DependencyToken, job Job) JobHandle {
	reads, writes := w.tokenTypes(token)
	deps := w.deps.GetDependency(reads, writes)
	h := w.scheduler.Schedule(ctx, deps, job)
	return w.deps.AddDependency(reads, writes, h)
}

// ScheduleParallel runs fn for every chunk passing q's filter, at most
// Workers chunks at a time. Matched chunks are taken when scheduling; the
// filter is evaluated once the job's dependencies completed.
func (w *World) ScheduleParallel(ctx context.Context, q *EntityQuery, fn func(ctx context.Context, ch Chunk) error) JobHandle {
	refs := q.matchedChunks()
	filter := q.filter.clone()
	sharedIndices := filter.resolve(w.shared)
	workers := w.cfg.Workers
	h := w.scheduler.Schedule(ctx, q.GetDependency(), func(ctx context.Context) error {
		chunks := filterChunks(w, refs, &filter, sharedIndices)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, ch := range chunks {
			g.Go(func() error {
				return fn(gctx, ch)
			})
		}
		return g.Wait()
	})
	return q.AddDependency(h)
}
