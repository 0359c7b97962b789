package handlers

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messaging-service/internal/models"
	"messaging-service/internal/realtime"
	"messaging-service/internal/telemetry"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) string {
	return c.GetString("userID")
}

func emitAudit(c *gin.Context, emitter *telemetry.AuditEmitter, action, targetID, text string) {
	emitter.Emit(c.Request.Context(), "INFO", action, targetID, text, requestIDFromContext(c), userIDFromContext(c))
}

// publishChange announces a message change. Failures are logged only: the
// store write already succeeded and open views can still refresh manually.
func publishChange(ctx context.Context, changes realtime.Publisher, action string, msg models.Message, logger *slog.Logger) {
	if changes == nil {
		return
	}
	channel, event := realtime.NewMessageEvent(action, msg)
	if err := changes.PublishChange(ctx, channel, event); err != nil {
		logger.WarnContext(ctx, "publish change failed", "channel", channel, "error", err)
	}
}
