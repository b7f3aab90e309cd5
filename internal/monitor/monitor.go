// Package monitor re-runs the conjunction estimator over the current catalog and
// publishes the result.
//
// A background loop waits for the first catalog, publishes an initial assessment, then
// recomputes on every tick and whenever the catalog is replaced. Each run is a full
// recomputation; a newer assessment supersedes the previous one atomically, and a short
// history is kept for the API.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/star/debriswatch/internal/catalog"
	"github.com/star/debriswatch/internal/conjunction"
	"github.com/star/debriswatch/internal/metrics"
	"github.com/star/debriswatch/internal/tracing"
)

var (
	// ErrNoAssessment is returned before the first assessment has been published.
	ErrNoAssessment = errors.New("no assessment available yet")

	// ErrNoCatalog is returned by Refresh when no catalog has been loaded.
	ErrNoCatalog = errors.New("no catalog loaded")
)

// Config holds monitor settings.
type Config struct {
	Interval    time.Duration // recompute period (default 10s)
	HistorySize int           // assessments kept (default 20)
	CatalogPoll time.Duration // catalog change check period (default 1s)
}

func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 20
	}
	if c.CatalogPoll <= 0 {
		c.CatalogPoll = time.Second
	}
}

// Monitor owns the publish side of conjunction assessments.
type Monitor struct {
	cfg        Config
	store      *catalog.Store
	estimator  *conjunction.Estimator
	velocities conjunction.VelocityProvider
	logger     *slog.Logger

	runMu         sync.Mutex // serializes estimator runs
	latest        atomic.Pointer[Assessment]
	seenCatalogID atomic.Pointer[uuid.UUID]

	histMu  sync.RWMutex
	history []*Assessment // oldest first

	subMu sync.Mutex
	subs  map[<-chan *Assessment]chan *Assessment

	now func() time.Time
}

// New returns a Monitor. It does nothing until Start or Refresh is called.
func New(cfg Config, store *catalog.Store, est *conjunction.Estimator, velocities conjunction.VelocityProvider, logger *slog.Logger) *Monitor {
	cfg.setDefaults()
	logger.Info("monitor initialized",
		"interval_seconds", cfg.Interval.Seconds(),
		"history_size", cfg.HistorySize,
	)
	return &Monitor{
		cfg:        cfg,
		store:      store,
		estimator:  est,
		velocities: velocities,
		logger:     logger,
		subs:       make(map[<-chan *Assessment]chan *Assessment),
		now:        time.Now,
	}
}

// Estimator returns the estimator the monitor runs.
func (m *Monitor) Estimator() *conjunction.Estimator {
	return m.estimator
}

// Start runs the refresh loop until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	if !m.waitForCatalog(ctx) {
		return
	}

	if _, err := m.Refresh(ctx, TriggerInitial); err != nil {
		m.logger.Warn("initial assessment failed", "error", err)
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	poll := time.NewTicker(m.cfg.CatalogPoll)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return
		case <-poll.C:
			if m.catalogChanged() {
				m.refreshLogged(ctx, TriggerCatalog)
				ticker.Reset(m.cfg.Interval)
			}
		case <-ticker.C:
			m.refreshLogged(ctx, TriggerTick)
		}
	}
}

func (m *Monitor) refreshLogged(ctx context.Context, trigger string) {
	if _, err := m.Refresh(ctx, trigger); err != nil && ctx.Err() == nil {
		m.logger.Warn("assessment failed", "trigger", trigger, "error", err)
	}
}

// waitForCatalog blocks until the store holds a catalog. Returns false if ctx ends first.
func (m *Monitor) waitForCatalog(ctx context.Context) bool {
	if m.store.Get() != nil {
		return true
	}

	m.logger.Info("monitor waiting for catalog")
	ticker := time.NewTicker(m.cfg.CatalogPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if m.store.Get() != nil {
				return true
			}
		}
	}
}

func (m *Monitor) catalogChanged() bool {
	c := m.store.Get()
	if c == nil {
		return false
	}
	seen := m.seenCatalogID.Load()
	return seen == nil || *seen != c.ID
}

// Refresh recomputes the assessment for the current catalog and publishes it.
func (m *Monitor) Refresh(ctx context.Context, trigger string) (a *Assessment, err error) {
	ctx, span := tracing.Start(ctx, "monitor.refresh", attribute.String("trigger", trigger))
	defer func() { tracing.End(span, err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.runMu.Lock()
	defer m.runMu.Unlock()

	cat := m.store.Get()
	if cat == nil {
		return nil, ErrNoCatalog
	}

	start := m.now()
	result := m.estimator.Estimate(cat.Objects, m.velocities)
	metrics.RecordEstimate(trigger, m.now().Sub(start))

	a = &Assessment{
		ID:          uuid.New(),
		CatalogID:   cat.ID,
		ComputedAt:  m.now().UTC(),
		Trigger:     trigger,
		ObjectCount: len(cat.Objects),
		Pairs:       result.Pairs,
		Annotations: result.Annotations,
	}
	m.publish(a)

	id := cat.ID
	m.seenCatalogID.Store(&id)

	span.SetAttributes(
		attribute.String("assessment.id", a.ID.String()),
		attribute.Int("assessment.pairs", len(a.Pairs)),
	)
	m.logger.Debug("assessment published",
		"assessment_id", a.ID.String(),
		"catalog_id", cat.ID.String(),
		"trigger", trigger,
		"objects", a.ObjectCount,
		"pairs", len(a.Pairs),
		"duration_ms", m.now().Sub(start).Milliseconds(),
	)
	return a, nil
}

func (m *Monitor) publish(a *Assessment) {
	m.latest.Store(a)
	metrics.SetAssessment(a.ObjectCount, a.Pairs)

	m.histMu.Lock()
	m.history = append(m.history, a)
	if over := len(m.history) - m.cfg.HistorySize; over > 0 {
		m.history = append(m.history[:0:0], m.history[over:]...)
	}
	m.histMu.Unlock()

	m.subMu.Lock()
	for _, ch := range m.subs {
		offer(ch, a)
	}
	m.subMu.Unlock()
}

// offer delivers a without blocking. A subscriber that has not read the previous
// assessment gets it replaced by the newer one.
func offer(ch chan *Assessment, a *Assessment) {
	select {
	case ch <- a:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- a:
	default:
	}
}

// Latest returns the most recent assessment.
func (m *Monitor) Latest() (*Assessment, error) {
	a := m.latest.Load()
	if a == nil {
		return nil, ErrNoAssessment
	}
	return a, nil
}

// History returns up to n assessments, newest first. n <= 0 returns all retained.
func (m *Monitor) History(n int) []*Assessment {
	m.histMu.RLock()
	defer m.histMu.RUnlock()

	if n <= 0 || n > len(m.history) {
		n = len(m.history)
	}
	out := make([]*Assessment, 0, n)
	for i := len(m.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.history[i])
	}
	return out
}

// Subscribe returns a channel that receives every assessment published from now on.
// The channel holds one pending assessment; slow readers only see the newest.
func (m *Monitor) Subscribe() <-chan *Assessment {
	ch := make(chan *Assessment, 1)
	m.subMu.Lock()
	m.subs[ch] = ch
	m.subMu.Unlock()
	return ch
}

// Unsubscribe stops delivery to ch and closes it.
func (m *Monitor) Unsubscribe(ch <-chan *Assessment) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if c, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(c)
	}
}

// Subscribers returns the number of live subscriptions.
func (m *Monitor) Subscribers() int {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	return len(m.subs)
}
