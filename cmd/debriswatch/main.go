package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/star/debriswatch/internal/api"
	"github.com/star/debriswatch/internal/catalog"
	"github.com/star/debriswatch/internal/conjunction"
	"github.com/star/debriswatch/internal/httputil"
	"github.com/star/debriswatch/internal/monitor"
	"github.com/star/debriswatch/internal/propagation"
	"github.com/star/debriswatch/internal/stream"
	"github.com/star/debriswatch/internal/tle"
	"github.com/star/debriswatch/internal/tracing"
)

func main() {
	level, ok := parseLevel(getenv("LOG_LEVEL"))
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	if !ok {
		logger.Warn("invalid "+envPrefix+"LOG_LEVEL value, using info", "value", getenv("LOG_LEVEL"))
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, loadTracingConfig(logger), logger)
	if err != nil {
		logger.Error("tracing init failed", "error", err)
		os.Exit(1)
	}
	defer tracing.Shutdown(shutdownTracing, logger)

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}
	httpCfg := loadHTTPConfig(logger)

	catCfg, err := loadCatalogConfig(logger)
	if err != nil {
		logger.Error("invalid catalog configuration", "error", err)
		os.Exit(1)
	}

	prop := propagation.NewPropagator(loadPropConfig(logger), logger)
	store := catalog.NewStore()
	loader := catalog.NewLoader(newSource(catCfg, prop, logger), store, logger)

	// A failed first load leaves the service up but not ready; the reload loop retries.
	if _, err := loader.Load(ctx); err != nil {
		logger.Warn("initial catalog load failed", "error", err)
	}

	estCfg := loadEstimatorConfig(logger)
	var velocities conjunction.VelocityProvider
	if estCfg.VelocitySeed != nil {
		velocities = conjunction.NewRandomVelocity(estCfg.MaxVelocity, *estCfg.VelocitySeed)
	} else {
		velocities = conjunction.NewEntropyVelocity(estCfg.MaxVelocity)
	}
	mon := monitor.New(loadMonitorConfig(logger), store, conjunction.New(estCfg.Config), velocities, logger)

	streamHandler := stream.NewHandler(mon, store, loadStreamConfig(logger, httpCfg.TrustProxy), logger)

	var limiter *httputil.IPRateLimiter
	if httpCfg.RateLimit > 0 {
		limiter = httputil.NewIPRateLimiter(rate.Limit(httpCfg.RateLimit), httpCfg.RateBurst)
	}

	srv := api.NewServer(api.Config{
		Addr:        httpCfg.Addr,
		TrustProxy:  httpCfg.TrustProxy,
		Auth:        authCfg,
		MaxVelocity: estCfg.MaxVelocity,
	}, api.Deps{
		Loader:     loader,
		Monitor:    mon,
		Propagator: prop,
		Stream:     streamHandler,
		Limiter:    limiter,
	}, logger)

	go mon.Start(ctx)
	go reloadCatalog(ctx, loader, catCfg.Refresh, logger)
	go housekeeping(ctx, limiter, logger)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", httpCfg.Addr,
			"auth_enabled", authCfg.Enabled,
			"catalog_source", catCfg.Source,
			"tls", len(httpCfg.TLSDomains) > 0,
		)
		serveErr <- serve(srv.HTTPServer(), httpCfg, logger)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

func serve(hs *http.Server, cfg httpConfig, logger *slog.Logger) error {
	if len(cfg.TLSDomains) == 0 {
		return hs.ListenAndServe()
	}
	m, err := newCertManager(cfg.TLSDomains, cfg.TLSCacheDir, logger)
	if err != nil {
		return err
	}
	hs.TLSConfig = tlsConfig(m)
	return hs.ListenAndServeTLS("", "")
}

func newSource(cfg catalogConfig, prop *propagation.Propagator, logger *slog.Logger) catalog.Source {
	switch cfg.Source {
	case "file":
		return catalog.FileSource{Path: cfg.File}
	case "tle":
		return &catalog.TLESource{
			Fetcher:    tle.NewFetcher(cfg.SourceURL, logger, cfg.ExtraURLs...),
			Cache:      tle.NewCache(cfg.CacheDir, cfg.MaxFiles),
			Propagator: prop,
			MaxObjects: cfg.MaxObjects,
			Logger:     logger,
		}
	default:
		return catalog.MockSource{Count: cfg.MockCount, Seed: cfg.MockSeed}
	}
}

// reloadCatalog reloads on every interval, and retries every 30s while no catalog has
// loaded yet.
func reloadCatalog(ctx context.Context, loader *catalog.Loader, interval time.Duration, logger *slog.Logger) {
	const retry = 30 * time.Second

	next := interval
	if loader.Store().Get() == nil {
		next = retry
	}
	if next <= 0 {
		return
	}

	timer := time.NewTimer(next)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if _, err := loader.Load(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("catalog reload failed", "error", err)
			}
			next = interval
			if loader.Store().Get() == nil {
				next = retry
			}
			if next <= 0 {
				return
			}
			timer.Reset(next)
		}
	}
}

// housekeeping drops idle rate-limit buckets.
func housekeeping(ctx context.Context, limiter *httputil.IPRateLimiter, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if limiter != nil {
				if n := limiter.Sweep(); n > 0 {
					logger.Debug("rate limiter swept", "dropped", n, "remaining", limiter.Len())
				}
			}
		}
	}
}
