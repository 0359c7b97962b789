package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/conversations"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/realtime"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

// MessageHandler manages single-message endpoints.
type MessageHandler struct {
	messageRepo repositories.MessageRepository
	readState   *conversations.ReadStateUpdater
	hub         *ws.Hub
	changes     realtime.Publisher
	audit       *telemetry.AuditEmitter
	logger      *slog.Logger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messageRepo repositories.MessageRepository, hub *ws.Hub, changes realtime.Publisher, audit *telemetry.AuditEmitter, logger *slog.Logger) *MessageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageHandler{
		messageRepo: messageRepo,
		readState:   conversations.NewReadStateUpdater(messageRepo, logger),
		hub:         hub,
		changes:     changes,
		audit:       audit,
		logger:      logger,
	}
}

type sendMessageRequest struct {
	ReceiverID string             `json:"receiver_id" binding:"required"`
	Body       string             `json:"body"`
	Attachment *models.Attachment `json:"attachment"`
}

// SendMessage stores a message from the caller and pushes it to both sides.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := userIDFromContext(c)
	if req.ReceiverID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot message yourself"})
		return
	}
	if strings.TrimSpace(req.Body) == "" && req.Attachment == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body or attachment is required"})
		return
	}
	if req.Attachment != nil && req.Attachment.FileID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "attachment file_id is required"})
		return
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), models.NewMessage{
		SenderID:   userID,
		ReceiverID: req.ReceiverID,
		Body:       req.Body,
		Attachment: req.Attachment,
	})
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "store message failed", "user_id", userID, "receiver_id", req.ReceiverID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}
	observability.IncMessagesSent()

	publishChange(c.Request.Context(), h.changes, realtime.ActionCreate, msg, h.logger)
	h.hub.BroadcastMessage(msg)
	emitAudit(c, h.audit, "message_sent", msg.ID, "")

	c.JSON(http.StatusCreated, msg)
}

// MarkMessageRead marks one message read. Only its receiver may do so, and
// marking an already read message succeeds without a write.
func (h *MessageHandler) MarkMessageRead(c *gin.Context) {
	msg, ok := h.loadMessage(c)
	if !ok {
		return
	}
	if msg.ReceiverID != userIDFromContext(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the receiver can mark a message read"})
		return
	}
	if msg.Read {
		c.JSON(http.StatusOK, msg)
		return
	}

	if err := h.readState.MarkOne(c.Request.Context(), msg.ID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not mark message read"})
		return
	}
	msg.Read = true

	publishChange(c.Request.Context(), h.changes, realtime.ActionUpdate, msg, h.logger)
	h.hub.BroadcastRead(msg)
	emitAudit(c, h.audit, "message_read", msg.ID, "")

	c.JSON(http.StatusOK, msg)
}

// DeleteMessage removes a message (sender only).
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	msg, ok := h.loadMessage(c)
	if !ok {
		return
	}
	userID := userIDFromContext(c)
	if msg.SenderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only sender can delete"})
		return
	}

	if err := h.messageRepo.DeleteMessage(c.Request.Context(), msg.ID, userID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not delete message"})
		return
	}

	publishChange(c.Request.Context(), h.changes, realtime.ActionDelete, msg, h.logger)
	h.hub.BroadcastDeletion(msg)
	emitAudit(c, h.audit, "message_deleted", msg.ID, "")

	c.Status(http.StatusNoContent)
}

// UnreadCount returns the number of unread messages addressed to the caller.
// It reports 0 when the store cannot be read.
func (h *MessageHandler) UnreadCount(c *gin.Context) {
	count := conversations.UnreadTotal(c.Request.Context(), h.messageRepo, userIDFromContext(c), h.logger)
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

func (h *MessageHandler) loadMessage(c *gin.Context) (models.Message, bool) {
	messageID := c.Param("message_id")
	if messageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return models.Message{}, false
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return models.Message{}, false
	}
	return msg, true
}
