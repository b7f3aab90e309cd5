package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/star/debriswatch/internal/httputil"
	"github.com/star/debriswatch/internal/metrics"
)

// Clients only send control frames; anything larger is a protocol violation.
const maxClientMessage = 512

// Origin checks are left to the auth layer; dashboards are served from other hosts.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWS serves the same messages as HandleSSE as WebSocket text frames.
// GET /api/v1/stream/ws?limit=15
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ip, ok := h.admit(w, r, transportWS)
	if !ok {
		return
	}
	startTime := time.Now()
	defer h.leave(ip, transportWS, startTime)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		metrics.RecordStreamError(transportWS, "upgrade_error")
		h.logger.Debug("websocket upgrade failed", "remote_ip", ip, "error", err)
		return
	}
	defer conn.Close()

	h.logger.Info("stream connected",
		"transport", transportWS,
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"limit", limit,
	)

	pongWait := 2 * h.config.KeepaliveInterval
	conn.SetReadLimit(maxClientMessage)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// The read pump only exists to process control frames and notice the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Debug("websocket read error", "remote_ip", ip, "error", err)
				}
				return
			}
		}
	}()

	sub := h.publisher.Subscribe()
	defer h.publisher.Unsubscribe(sub)

	if err := sendWS(conn, h.metadata()); err != nil {
		metrics.RecordStreamError(transportWS, "send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}
	if a, err := h.publisher.Latest(); err == nil {
		if err := sendWS(conn, newAssessmentMessage(a, limit)); err != nil {
			metrics.RecordStreamError(transportWS, "send_error")
			h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
			return
		}
	}

	ping := time.NewTicker(h.config.KeepaliveInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return

		case a, ok := <-sub:
			if !ok {
				closeWS(conn, websocket.CloseGoingAway, "server shutting down")
				return
			}
			if err := sendWS(conn, newAssessmentMessage(a, limit)); err != nil {
				metrics.RecordStreamError(transportWS, "send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				metrics.RecordStreamError(transportWS, "send_error")
				h.logger.Warn("stream ping error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

func sendWS(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	metrics.RecordStreamMessage(transportWS, len(data))
	return nil
}

func closeWS(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
