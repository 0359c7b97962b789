package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"messaging-service/internal/conversations"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/realtime"
	"messaging-service/internal/repositories"
)

type tokenValidator interface {
	ValidateToken(token string) (string, error)
}

// ConversationsWebSocketHandler serves live conversation lists. Each
// connection owns a conversations.View that is loaded on connect, refreshed
// by a realtime.Listener and reloaded when the client sends {"type":"refresh"}.
type ConversationsWebSocketHandler struct {
	hub        *Hub
	aggregator *conversations.Aggregator
	profiles   repositories.ProfileRepository
	feed       realtime.Feed
	auth       tokenValidator
	limit      int
	listener   realtime.ListenerConfig
	logger     *slog.Logger
}

// NewConversationsWebSocketHandler constructs the handler. feed may be nil, in
// which case clients are told realtime is unavailable and must refresh manually.
func NewConversationsWebSocketHandler(hub *Hub, aggregator *conversations.Aggregator, profiles repositories.ProfileRepository, feed realtime.Feed, auth tokenValidator, limit int, listener realtime.ListenerConfig, logger *slog.Logger) *ConversationsWebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationsWebSocketHandler{
		hub:        hub,
		aggregator: aggregator,
		profiles:   profiles,
		feed:       feed,
		auth:       auth,
		limit:      limit,
		listener:   listener,
		logger:     logger,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type clientCommand struct {
	Type string `json:"type"`
}

// Handle upgrades the connection and starts the view session.
func (h *ConversationsWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.conversations.handshake",
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.auth.ValidateToken(bearerOrQueryToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := h.hub.AddClient(userID, conn, info)
	observability.IncWSActive(kindConversations)
	h.hub.publishEvent(ctx, "ws_connect", info, "")

	session, cancel := context.WithCancel(context.WithoutCancel(ctx))
	logger := h.logger.With(info.LogAttrs()...)
	view := conversations.NewView(h.aggregator, conversations.NewProfileCache(h.profiles, logger), userID, h.limit)

	// pushMu keeps each pass and its push together so frames leave in the
	// order the passes ran.
	var pushMu sync.Mutex
	load := func(ctx context.Context) {
		pushMu.Lock()
		defer pushMu.Unlock()
		h.push(client, models.ConversationsEvent{Type: "conversations", Conversations: view.Load(ctx)}, logger)
	}

	listener, err := realtime.Listen(session, h.feed, userID, func(ctx context.Context) {
		pushMu.Lock()
		defer pushMu.Unlock()
		if convs, changed := view.Refresh(ctx); changed {
			h.push(client, models.ConversationsEvent{Type: "conversations", Conversations: convs}, logger)
		}
	}, h.listener, logger)

	load(session)
	if err != nil {
		h.push(client, models.ConversationsEvent{Type: "realtime_unavailable", Reason: err.Error()}, logger)
	}

	go func() {
		var closeReason string
		defer func() {
			listener.Stop()
			cancel()
			h.hub.RemoveClient(userID, client)
			observability.DecWSActive(kindConversations)
			h.hub.publishEvent(session, "ws_disconnect", info, closeReason)
			_ = conn.Close()
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.hub.publishEvent(session, "ws_error", info, closeReason)
				}
				return
			}
			var cmd clientCommand
			if json.Unmarshal(data, &cmd) == nil && cmd.Type == "refresh" {
				load(session)
			}
		}
	}()
}

func (h *ConversationsWebSocketHandler) push(client *Client, event models.ConversationsEvent, logger *slog.Logger) {
	if err := client.WriteJSON(event); err != nil {
		logger.Warn("conversations push failed", "type", event.Type, "error", err)
		return
	}
	observability.IncWSEvent(kindConversations, event.Type)
}

func bearerOrQueryToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return c.Query("token")
}
