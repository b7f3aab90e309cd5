// Package api wires the HTTP surface: probes, metrics, catalog and conjunction views,
// ad-hoc estimates, trajectories and the assessment streams.
package api

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/star/debriswatch/internal/auth"
	"github.com/star/debriswatch/internal/catalog"
	"github.com/star/debriswatch/internal/health"
	"github.com/star/debriswatch/internal/httputil"
	"github.com/star/debriswatch/internal/metrics"
	"github.com/star/debriswatch/internal/monitor"
	"github.com/star/debriswatch/internal/propagation"
	"github.com/star/debriswatch/internal/stream"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr       string
	TrustProxy bool
	Auth       auth.Config

	// MaxVelocity bounds the random per-axis speed used by ad-hoc estimates.
	MaxVelocity float64
}

// Deps are the components the handlers read from.
type Deps struct {
	Loader     *catalog.Loader
	Monitor    *monitor.Monitor
	Propagator *propagation.Propagator
	Stream     *stream.Handler
	Limiter    *httputil.IPRateLimiter // nil disables request rate limiting
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *handlers
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	h := &handlers{
		cfg:        cfg,
		store:      deps.Loader.Store(),
		loader:     deps.Loader,
		monitor:    deps.Monitor,
		propagator: deps.Propagator,
		logger:     logger,
		now:        time.Now,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(h.catalogReady, h.assessmentReady))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/catalog", h.getCatalog)
	mux.HandleFunc("POST /api/v1/catalog/refresh", h.refreshCatalog)
	mux.HandleFunc("GET /api/v1/conjunctions", h.getConjunctions)
	mux.HandleFunc("GET /api/v1/conjunctions/history", h.getHistory)
	mux.HandleFunc("POST /api/v1/conjunctions/estimate", h.estimate)
	mux.HandleFunc("GET /api/v1/objects/{id}", h.getObject)
	mux.HandleFunc("GET /api/v1/objects/{id}/trajectory", h.getTrajectory)

	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/conjunctions", deps.Stream.HandleSSE)
		mux.HandleFunc("GET /api/v1/stream/ws", deps.Stream.HandleWS)
	}

	// Middleware chain: metrics -> logging -> rate limit -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = httputil.RateLimitMiddleware(deps.Limiter, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			// Stream handlers manage their own write deadlines.
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		handler:  handler,
		handlers: h,
		logger:   logger,
	}
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. TLS, shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

// statusRecorder keeps Flush and Hijack reachable so streams work behind it.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	sr.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
