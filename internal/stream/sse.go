// Package stream pushes published conjunction assessments to clients over Server-Sent
// Events and WebSocket. Clients connect via GET /api/v1/stream/conjunctions (SSE) or
// GET /api/v1/stream/ws and receive one message per assessment the monitor publishes.
//
// SSE message format:
//
//	data: {"type":"assessment","id":"...","catalog_id":"...","pairs":[...],"annotations":{...}}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","catalog_id":"...","catalog_source":"mock","object_count":40,"catalog_age_seconds":12}\n\n
//
// If an assessment already exists it is sent right after the metadata. Keep-alive
// comments (:\n\n) are sent every KeepaliveInterval while nothing is published. A slow
// client skips intermediate assessments and only sees the newest one.
package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/star/debriswatch/internal/catalog"
	"github.com/star/debriswatch/internal/httputil"
	"github.com/star/debriswatch/internal/metrics"
	"github.com/star/debriswatch/internal/monitor"
)

const (
	transportSSE = "sse"
	transportWS  = "ws"

	maxLimit = 1000
)

// Publisher is the subscription side of the monitor.
type Publisher interface {
	Latest() (*monitor.Assessment, error)
	Subscribe() <-chan *monitor.Assessment
	Unsubscribe(ch <-chan *monitor.Assessment)
}

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxTotal           int           // Global stream cap (default: 1000).
	KeepaliveInterval  time.Duration // Keep-alive interval (default: 30s).
	TrustProxy         bool          // Take the client IP from X-Forwarded-For.
}

func (c *Config) setDefaults() {
	if c.MaxConcurrentPerIP <= 0 {
		c.MaxConcurrentPerIP = 10
	}
	if c.MaxTotal <= 0 {
		c.MaxTotal = 1000
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 30 * time.Second
	}
}

// Handler manages streaming connections.
type Handler struct {
	publisher Publisher
	store     *catalog.Store
	config    Config
	limiter   *streamLimiter
	logger    *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(publisher Publisher, store *catalog.Store, config Config, logger *slog.Logger) *Handler {
	config.setDefaults()
	return &Handler{
		publisher: publisher,
		store:     store,
		config:    config,
		limiter:   newStreamLimiter(config.MaxConcurrentPerIP, config.MaxTotal),
		logger:    logger,
	}
}

// Active returns the number of open streams across both transports.
func (h *Handler) Active() int {
	return h.limiter.active()
}

// HandleSSE serves the SSE assessment stream.
// GET /api/v1/stream/conjunctions?limit=15
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ip, ok := h.admit(w, r, transportSSE)
	if !ok {
		return
	}

	startTime := time.Now()
	h.logger.Info("stream connected",
		"transport", transportSSE,
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"limit", limit,
	)
	defer h.leave(ip, transportSSE, startTime)

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The server's WriteTimeout would cut the stream; each write sets its own deadline.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &sseClient{
		w:       w,
		flusher: flusher,
		rc:      rc,
		logger:  h.logger,
	}

	// Jittered reconnect interval (3-7s) spreads reconnects after a restart.
	if err := c.sendRetry(3000 + rand.IntN(4000)); err != nil {
		metrics.RecordStreamError(transportSSE, "send_error")
		return
	}

	sub := h.publisher.Subscribe()
	defer h.publisher.Unsubscribe(sub)

	if err := c.sendJSON(h.metadata()); err != nil {
		metrics.RecordStreamError(transportSSE, "send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}
	if a, err := h.publisher.Latest(); err == nil {
		if err := c.sendJSON(newAssessmentMessage(a, limit)); err != nil {
			metrics.RecordStreamError(transportSSE, "send_error")
			h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
			return
		}
	}

	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case a, ok := <-sub:
			if !ok {
				return
			}
			if err := c.sendJSON(newAssessmentMessage(a, limit)); err != nil {
				metrics.RecordStreamError(transportSSE, "send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			keepalive.Reset(h.config.KeepaliveInterval)

		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.RecordStreamError(transportSSE, "send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// admit enforces the concurrent stream limit and records the connection. The caller
// must call leave when ok is true.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, transport string) (ip string, ok bool) {
	ip = httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.RecordStreamError(transport, "rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"transport", transport,
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return ip, false
	}
	metrics.StreamConnected(transport)
	return ip, true
}

func (h *Handler) leave(ip, transport string, startTime time.Time) {
	h.limiter.release(ip)
	metrics.StreamDisconnected(transport)
	h.logger.Info("stream disconnected",
		"transport", transport,
		"remote_ip", ip,
		"duration_seconds", int(time.Since(startTime).Seconds()),
	)
}

func (h *Handler) metadata() metadataMessage {
	m := metadataMessage{Type: "metadata"}
	if c := h.store.Get(); c != nil {
		m.CatalogID = c.ID
		m.CatalogSource = c.Source
		m.ObjectCount = len(c.Objects)
		m.CatalogAge = int(h.store.AgeSeconds())
	}
	return m
}

var errInvalidLimit = errors.New("invalid limit parameter")

// parseLimit reads ?limit=, the number of pairs per message. -1 means no limit.
func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return -1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > maxLimit {
		return 0, fmt.Errorf("%w, must be 0-%d", errInvalidLimit, maxLimit)
	}
	return n, nil
}

type metadataMessage struct {
	Type          string    `json:"type"`
	CatalogID     uuid.UUID `json:"catalog_id"`
	CatalogSource string    `json:"catalog_source,omitempty"`
	ObjectCount   int       `json:"object_count"`
	CatalogAge    int       `json:"catalog_age_seconds"`
}

type assessmentMessage struct {
	Type string `json:"type"`
	*monitor.Assessment
}

func newAssessmentMessage(a *monitor.Assessment, limit int) assessmentMessage {
	return assessmentMessage{Type: "assessment", Assessment: a.Limit(limit)}
}
