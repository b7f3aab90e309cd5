// Package propagation turns TLE sets into ECEF states with SGP4.
package propagation

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/debriswatch/internal/metrics"
	"github.com/star/debriswatch/internal/tle"
)

// ErrNoElements is returned when there is no TLE set to propagate.
var ErrNoElements = errors.New("no TLE set loaded")

// sgp4Cache holds initialised propagators for one TLE set. Immutable once stored.
type sgp4Cache struct {
	set   *tle.Set
	props map[int]*SGP4
}

// Propagator propagates whole TLE sets and keeps the SGP4 models of the most recent set
// warm, so repeated calls against the same set skip initialisation.
type Propagator struct {
	pool   *WorkerPool
	logger *slog.Logger

	cache   atomic.Pointer[sgp4Cache]
	cacheMu sync.Mutex // serializes rebuilds
}

// NewPropagator returns a Propagator.
func NewPropagator(cfg Config, logger *slog.Logger) *Propagator {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Propagator{
		pool:   NewWorkerPool(cfg.Workers, logger),
		logger: logger,
	}
}

// models returns the propagators for set, rebuilding the cache when set is new.
func (p *Propagator) models(set *tle.Set) map[int]*SGP4 {
	if c := p.cache.Load(); c != nil && c.set == set {
		return c.props
	}

	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()

	if c := p.cache.Load(); c != nil && c.set == set {
		return c.props
	}

	props := make(map[int]*SGP4, len(set.Entries))
	var skipped int
	for _, e := range set.Entries {
		if _, ok := props[e.NORADID]; ok {
			continue
		}
		sp, err := NewSGP4(e.Line1, e.Line2, e.NORADID)
		if err != nil {
			p.logger.Warn("sgp4 init failed", "norad_id", e.NORADID, "error", err)
			skipped++
			continue
		}
		props[e.NORADID] = sp
	}

	p.logger.Info("sgp4 model cache rebuilt",
		"cached", len(props),
		"skipped", skipped,
		"source", set.Source,
		"fetched_at", set.FetchedAt.UTC().Format(time.RFC3339),
	)
	p.cache.Store(&sgp4Cache{set: set, props: props})
	return props
}

// Lookup returns the propagator for one object of set.
func (p *Propagator) Lookup(set *tle.Set, noradID int) (*SGP4, bool) {
	if set == nil {
		return nil, false
	}
	sp, ok := p.models(set)[noradID]
	return sp, ok
}

// Propagate returns the ECEF state of every entry of set at target. Entries that fail
// are logged and left out. The error is non-nil only for a nil set or a cancelled ctx.
func (p *Propagator) Propagate(ctx context.Context, set *tle.Set, target time.Time) ([]State, error) {
	if set == nil {
		return nil, ErrNoElements
	}

	props := p.models(set)
	lookup := func(id int) (*SGP4, bool) {
		sp, ok := props[id]
		return sp, ok
	}

	start := time.Now()
	states, ok, failed := p.pool.PropagateBatch(ctx, set.Entries, target, lookup)
	duration := time.Since(start)

	metrics.RecordPropagation(duration, ok, failed)

	p.logger.Debug("propagation complete",
		"target_time", target.UTC().Format(time.RFC3339),
		"success", ok,
		"errors", failed,
		"duration_ms", duration.Milliseconds(),
	)

	if err := ctx.Err(); err != nil {
		return states, err
	}
	return states, nil
}
