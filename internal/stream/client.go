package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/star/debriswatch/internal/metrics"
)

const writeWait = 30 * time.Second

// sseClient manages a single SSE connection's write operations.
type sseClient struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	logger  *slog.Logger

	messagesSent int64
}

// sendJSON marshals v as JSON and sends it as an SSE "data:" message.
func (c *sseClient) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	n, err := c.write(fmt.Sprintf("data: %s\n\n", data))
	if err != nil {
		return err
	}
	c.messagesSent++
	metrics.RecordStreamMessage(transportSSE, n)
	return nil
}

// sendRetry tells the browser how long to wait before reconnecting.
func (c *sseClient) sendRetry(ms int) error {
	_, err := c.write(fmt.Sprintf("retry: %d\n\n", ms))
	return err
}

// sendKeepalive sends an SSE comment line.
func (c *sseClient) sendKeepalive() error {
	if _, err := c.write(":\n\n"); err != nil {
		return fmt.Errorf("keepalive: %w", err)
	}
	return nil
}

func (c *sseClient) write(s string) (int, error) {
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}
	n, err := fmt.Fprint(c.w, s)
	if err != nil {
		return n, fmt.Errorf("write: %w", err)
	}
	c.flusher.Flush()
	return n, nil
}
