package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultHeartbeatInterval = 25 * time.Second

type realtimeEnvelope struct {
	Source    string      `json:"source"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// handleEvents streams the user's realtime events as server-sent events until the client leaves.
func (h *httpHandler) handleEvents(c *gin.Context) {
	userID := c.GetInt64(targetContextKey)
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, userID)
	defer cleanup()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	h.logger.Debug("realtime stream opened", zap.Int64("user_id", userID))
	defer h.logger.Debug("realtime stream closed", zap.Int64("user_id", userID))

	c.SSEvent(realtimeEventHeartbeat, realtimeEnvelope{Source: realtimeSourceBackend, Timestamp: time.Now().UTC()})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, realtimeEnvelope{
				Source:    realtimeSourceBackend,
				Timestamp: message.Timestamp,
				Data:      message.Payload,
			})
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, realtimeEnvelope{Source: realtimeSourceBackend, Timestamp: tick.UTC()})
			return true
		}
	})
}
