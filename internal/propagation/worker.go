package propagation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/star/debriswatch/internal/tle"
	"github.com/star/debriswatch/internal/transform"
)

type job struct {
	index int
	entry tle.Entry
}

type result struct {
	index int
	state State
	err   error
}

// WorkerPool fans SGP4 propagation out over a fixed number of goroutines.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool returns a pool of the given size (minimum 1).
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{workers: workers, logger: logger}
}

// PropagateBatch propagates every entry to target and returns the states that
// succeeded, in entry order, with success and failure counts. lookup may supply a
// prebuilt propagator per NORAD ID; entries it does not know are initialised on the fly.
// Cancelling ctx stops dispatch and returns whatever finished.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, entries []tle.Entry, target time.Time, lookup func(int) (*SGP4, bool)) ([]State, int, int) {
	if len(entries) == 0 {
		return nil, 0, 0
	}

	gmst := transform.GMST(target)

	jobs := make(chan job, wp.workers*2)
	results := make(chan result, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				r := propagateOne(j, target, gmst, lookup)
				select {
				case results <- r:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, e := range entries {
			select {
			case jobs <- job{index: i, entry: e}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	slots := make([]*State, len(entries))
	var ok, failed int
	for r := range results {
		if r.err != nil {
			failed++
			wp.logger.Warn("propagation failed", "norad_id", r.state.NORADID, "error", r.err)
			continue
		}
		ok++
		s := r.state
		slots[r.index] = &s
	}

	states := make([]State, 0, ok)
	for _, s := range slots {
		if s != nil {
			states = append(states, *s)
		}
	}
	return states, ok, failed
}

func propagateOne(j job, target time.Time, gmst float64, lookup func(int) (*SGP4, bool)) result {
	id := State{NORADID: j.entry.NORADID, Name: j.entry.Name}

	var prop *SGP4
	if lookup != nil {
		prop, _ = lookup(j.entry.NORADID)
	}
	if prop == nil {
		var err error
		prop, err = NewSGP4(j.entry.Line1, j.entry.Line2, j.entry.NORADID)
		if err != nil {
			return result{index: j.index, state: id, err: err}
		}
	}

	sv, err := prop.propagateECEF(target, gmst)
	if err != nil {
		return result{index: j.index, state: id, err: err}
	}

	id.Position = sv.Position
	id.Velocity = sv.Velocity
	return result{index: j.index, state: id}
}
