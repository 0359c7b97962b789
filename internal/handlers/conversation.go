package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/conversations"
	"messaging-service/internal/models"
	"messaging-service/internal/realtime"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

// ConversationHandler serves conversation lists, threads and bulk read marks.
type ConversationHandler struct {
	aggregator   *conversations.Aggregator
	messageRepo  repositories.MessageRepository
	profileRepo  repositories.ProfileRepository
	readState    *conversations.ReadStateUpdater
	hub          *ws.Hub
	changes      realtime.Publisher
	audit        *telemetry.AuditEmitter
	displayLimit int
	threadLimit  int
	logger       *slog.Logger
}

// ConversationHandlerConfig holds list sizes.
type ConversationHandlerConfig struct {
	DisplayLimit int
	ThreadLimit  int
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(aggregator *conversations.Aggregator, messageRepo repositories.MessageRepository, profileRepo repositories.ProfileRepository, hub *ws.Hub, changes realtime.Publisher, audit *telemetry.AuditEmitter, cfg ConversationHandlerConfig, logger *slog.Logger) *ConversationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DisplayLimit <= 0 {
		cfg.DisplayLimit = conversations.DefaultDisplayLimit
	}
	if cfg.ThreadLimit <= 0 {
		cfg.ThreadLimit = 50
	}
	return &ConversationHandler{
		aggregator:   aggregator,
		messageRepo:  messageRepo,
		profileRepo:  profileRepo,
		readState:    conversations.NewReadStateUpdater(messageRepo, logger),
		hub:          hub,
		changes:      changes,
		audit:        audit,
		displayLimit: cfg.DisplayLimit,
		threadLimit:  cfg.ThreadLimit,
		logger:       logger,
	}
}

// ListConversations returns the caller's conversations, newest first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	limit, ok := queryInt(c, "limit", h.displayLimit)
	if !ok {
		return
	}

	userID := userIDFromContext(c)
	convs := h.aggregator.List(c.Request.Context(), userID, limit)
	conversations.NewProfileCache(h.profileRepo, h.logger).Attach(c.Request.Context(), convs)

	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// GetThread returns one page of the thread with another user, oldest first.
// Pages hold at most the configured thread limit.
func (h *ConversationHandler) GetThread(c *gin.Context) {
	correspondent := c.Param("user_id")
	limit, ok := queryInt(c, "limit", h.threadLimit)
	if !ok {
		return
	}
	if limit == 0 || limit > h.threadLimit {
		limit = h.threadLimit
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}

	msgs := conversations.LoadThread(c.Request.Context(), h.messageRepo, userIDFromContext(c), correspondent, limit, offset, h.logger)
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// MarkConversationRead marks every unread message from the correspondent to
// the caller as read. Individual failures are reported but do not fail the call.
func (h *ConversationHandler) MarkConversationRead(c *gin.Context) {
	correspondent := c.Param("user_id")
	userID := userIDFromContext(c)

	result := h.readState.MarkConversationDetailed(c.Request.Context(), correspondent, userID)
	for _, id := range result.Succeeded {
		msg := models.Message{ID: id, SenderID: correspondent, ReceiverID: userID, Read: true}
		publishChange(c.Request.Context(), h.changes, realtime.ActionUpdate, msg, h.logger)
		h.hub.BroadcastRead(msg)
	}
	if result.Marked() > 0 {
		emitAudit(c, h.audit, "conversation_read", correspondent, strconv.Itoa(result.Marked()))
	}

	c.JSON(http.StatusOK, gin.H{"marked": result.Marked(), "failed": len(result.Failed)})
}

func queryInt(c *gin.Context, key string, fallback int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, true
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return 0, false
	}
	return val, true
}
