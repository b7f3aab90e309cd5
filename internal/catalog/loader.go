package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/star/debriswatch/internal/metrics"
	"github.com/star/debriswatch/internal/tracing"
)

// Loader runs a Source, validates what it returns, and publishes it to a Store.
type Loader struct {
	source Source
	store  *Store
	logger *slog.Logger

	mu  sync.Mutex // serializes loads
	now func() time.Time
}

// NewLoader returns a Loader that publishes into store.
func NewLoader(source Source, store *Store, logger *slog.Logger) *Loader {
	return &Loader{
		source: source,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Store returns the store the loader publishes to.
func (l *Loader) Store() *Store {
	return l.store
}

// Load fetches a fresh catalog and makes it current. On any error the previous catalog
// stays in place.
func (l *Loader) Load(ctx context.Context) (c *Catalog, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, span := tracing.Start(ctx, "catalog.load", attribute.String("catalog.source", l.source.Name()))
	defer func() { tracing.End(span, err) }()

	start := l.now()
	defer func() { metrics.RecordCatalogLoad(l.source.Name(), err) }()

	contents, err := l.source.Load(ctx)
	if err != nil {
		l.logger.Error("catalog load failed", "source", l.source.Name(), "error", err)
		return nil, fmt.Errorf("loading %s catalog: %w", l.source.Name(), err)
	}
	if verr := Validate(contents.Objects); verr != nil {
		l.logger.Error("catalog rejected", "source", l.source.Name(), "error", verr)
		return nil, fmt.Errorf("validating %s catalog: %w", l.source.Name(), verr)
	}

	c = New(l.source.Name(), l.now(), contents.Objects, contents.Elements)
	l.store.Set(c)
	metrics.SetCatalog(c.Objects, c.LoadedAt)

	span.SetAttributes(
		attribute.String("catalog.id", c.ID.String()),
		attribute.Int("catalog.objects", len(c.Objects)),
	)
	l.logger.Info("catalog loaded",
		"source", c.Source,
		"catalog_id", c.ID.String(),
		"objects", len(c.Objects),
		"duration_ms", l.now().Sub(start).Milliseconds(),
	)
	return c, nil
}
