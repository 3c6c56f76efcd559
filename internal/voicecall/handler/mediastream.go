package handler

import (
	"github.com/gin-gonic/gin"
)

// HandleMediaStream handles GET /api/phone/media-stream. After the upgrade
// the processor owns the connection until the call ends.
func (h *Handler) HandleMediaStream(c *gin.Context) {
	ctx := c.Request.Context()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error(ctx, "WebSocket upgrade failed", err)
		return
	}

	h.logger.Info(ctx, "Media stream connected")
	h.voiceProcessor.RunMediaStream(ctx, conn)
	h.logger.Info(ctx, "Media stream session ended")
}
