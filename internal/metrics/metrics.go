// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/star/debriswatch/internal/conjunction"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debriswatch_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "debriswatch_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	httpRateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "debriswatch_http_rate_limited_total",
		Help: "Requests rejected by the per-client rate limiter.",
	})

	estimateRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debriswatch_estimate_runs_total",
			Help: "Conjunction estimator runs by trigger.",
		},
		[]string{"trigger"},
	)

	estimateDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "debriswatch_estimate_duration_seconds",
		Help:    "Wall time of one conjunction estimator run.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	estimateObjects = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "debriswatch_estimate_objects",
		Help: "Objects considered by the latest published assessment.",
	})

	conjunctionPairs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "debriswatch_conjunction_pairs",
			Help: "Ranked pairs in the latest published assessment by risk tier.",
		},
		[]string{"risk"},
	)

	conjunctionCollisions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "debriswatch_conjunction_collisions",
		Help: "Pairs in the latest published assessment whose miss distance is inside the combined radius.",
	})

	catalogObjects = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "debriswatch_catalog_objects",
			Help: "Objects in the current catalog by category.",
		},
		[]string{"category"},
	)

	catalogLoadedTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "debriswatch_catalog_loaded_timestamp_seconds",
		Help: "Unix time the current catalog was loaded.",
	})

	catalogLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debriswatch_catalog_loads_total",
			Help: "Catalog load attempts by source and result.",
		},
		[]string{"source", "result"},
	)

	propagationDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "debriswatch_propagation_duration_seconds",
		Help:    "Wall time to propagate one TLE set.",
		Buckets: prometheus.DefBuckets,
	})

	propagationObjectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debriswatch_propagation_objects_total",
			Help: "Objects propagated by result.",
		},
		[]string{"result"},
	)

	trajectoryPointsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "debriswatch_trajectory_points_total",
		Help: "Ground-track points sampled.",
	})

	streamClients = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "debriswatch_stream_clients",
			Help: "Connected streaming clients by transport.",
		},
		[]string{"transport"},
	)

	streamMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debriswatch_stream_messages_total",
			Help: "Messages written to streaming clients by transport.",
		},
		[]string{"transport"},
	)

	streamBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debriswatch_stream_bytes_total",
			Help: "Payload bytes written to streaming clients by transport.",
		},
		[]string{"transport"},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debriswatch_stream_errors_total",
			Help: "Streaming failures by transport and reason.",
		},
		[]string{"transport", "reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		httpRateLimitedTotal,
		estimateRunsTotal,
		estimateDurationSeconds,
		estimateObjects,
		conjunctionPairs,
		conjunctionCollisions,
		catalogObjects,
		catalogLoadedTimestamp,
		catalogLoadsTotal,
		propagationDurationSeconds,
		propagationObjectsTotal,
		trajectoryPointsTotal,
		streamClients,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordEstimate records one estimator run. trigger is "tick", "catalog", "manual" or
// "adhoc".
func RecordEstimate(trigger string, d time.Duration) {
	estimateRunsTotal.WithLabelValues(trigger).Inc()
	estimateDurationSeconds.Observe(d.Seconds())
}

// SetAssessment publishes the shape of the latest assessment.
func SetAssessment(objects int, pairs []conjunction.Pair) {
	counts := map[conjunction.Risk]int{
		conjunction.RiskHigh:   0,
		conjunction.RiskMedium: 0,
		conjunction.RiskLow:    0,
	}
	collisions := 0
	for _, p := range pairs {
		counts[p.Risk]++
		if p.Collision() {
			collisions++
		}
	}

	estimateObjects.Set(float64(objects))
	for risk, n := range counts {
		conjunctionPairs.WithLabelValues(risk.String()).Set(float64(n))
	}
	conjunctionCollisions.Set(float64(collisions))
}

// SetCatalog publishes the size and load time of the current catalog.
func SetCatalog(objects []conjunction.SpaceObject, loadedAt time.Time) {
	counts := map[conjunction.Category]int{
		conjunction.CategorySatellite: 0,
		conjunction.CategoryDebris:    0,
	}
	for _, o := range objects {
		counts[o.Category]++
	}
	for cat, n := range counts {
		catalogObjects.WithLabelValues(string(cat)).Set(float64(n))
	}
	catalogLoadedTimestamp.Set(float64(loadedAt.Unix()))
}

// RecordCatalogLoad counts one load attempt.
func RecordCatalogLoad(source string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	catalogLoadsTotal.WithLabelValues(source, result).Inc()
}

// RecordPropagation records one batch propagation.
func RecordPropagation(d time.Duration, ok, failed int) {
	propagationDurationSeconds.Observe(d.Seconds())
	propagationObjectsTotal.WithLabelValues("success").Add(float64(ok))
	propagationObjectsTotal.WithLabelValues("error").Add(float64(failed))
}

// RecordTrajectoryPoints counts sampled ground-track points.
func RecordTrajectoryPoints(n int) {
	trajectoryPointsTotal.Add(float64(n))
}

// RecordRateLimited counts one rejected request.
func RecordRateLimited() {
	httpRateLimitedTotal.Inc()
}

// StreamConnected and StreamDisconnected track live clients per transport.
func StreamConnected(transport string) {
	streamClients.WithLabelValues(transport).Inc()
}

func StreamDisconnected(transport string) {
	streamClients.WithLabelValues(transport).Dec()
}

// RecordStreamMessage counts one message of n bytes.
func RecordStreamMessage(transport string, n int) {
	streamMessagesTotal.WithLabelValues(transport).Inc()
	streamBytesTotal.WithLabelValues(transport).Add(float64(n))
}

// RecordStreamError counts one streaming failure.
func RecordStreamError(transport, reason string) {
	streamErrorsTotal.WithLabelValues(transport, reason).Inc()
}

var exactRoutes = map[string]bool{
	"/":                             true,
	"/healthz":                      true,
	"/readyz":                       true,
	"/metrics":                      true,
	"/api/v1/catalog":               true,
	"/api/v1/catalog/refresh":       true,
	"/api/v1/conjunctions":          true,
	"/api/v1/conjunctions/history":  true,
	"/api/v1/conjunctions/estimate": true,
	"/api/v1/stream/conjunctions":   true,
	"/api/v1/stream/ws":             true,
}

// normalizeRoute maps a request path to a bounded label set: known routes keep their
// path, object routes collapse their ID, everything else is "other".
func normalizeRoute(path string) string {
	if exactRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/objects/"); ok && rest != "" {
		id, tail, _ := strings.Cut(rest, "/")
		if id == "" {
			return "other"
		}
		switch tail {
		case "":
			return "/api/v1/objects/{id}"
		case "trajectory":
			return "/api/v1/objects/{id}/trajectory"
		}
	}
	return "other"
}

// responseWriter captures the status code while keeping the streaming interfaces of
// the wrapped writer reachable.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	// A hijacked connection answers 101 itself.
	rw.statusCode = http.StatusSwitchingProtocols
	rw.wroteHeader = true
	return h.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
