package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"postpartum-htn-backend/internal/workflow"
)

const streamHeartbeat = 15 * time.Second

// StreamSession handles GET /api/sessions/:id/stream. The case view of the session is
// pushed as server-sent "view" events whenever it changes, and each expired timer as a
// "timer_expired" event. The observer is released when the client disconnects.
func (h *Handler) StreamSession(c *gin.Context) {
	ctx := c.Request.Context()
	obs, err := h.engine.Focus(ctx, c.Param("id"))
	if errors.Is(err, workflow.ErrNoBroker) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live updates are not enabled"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	defer obs.Unfocus()

	h.logger.Info("session stream opened", zap.String("session_id", obs.SessionID()), zap.String("client_ip", c.ClientIP()))
	defer h.logger.Info("session stream closed", zap.String("session_id", obs.SessionID()))

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	if v := obs.Current(); v != nil {
		c.SSEvent("view", v)
		c.Writer.Flush()
	}

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case v := <-obs.Updates():
			c.SSEvent("view", v)
		case t := <-obs.Expirations():
			c.SSEvent("timer_expired", t)
		case at := <-heartbeat.C:
			c.SSEvent("ping", gin.H{"at": at.UTC()})
		}
		return true
	})
}
