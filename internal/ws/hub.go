package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

const writeWait = 10 * time.Second

var errClosed = errors.New("websocket client closed")

// EventPublisher receives websocket lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Client is one registered websocket connection. Writes are serialized.
type Client struct {
	conn *websocket.Conn
	info ConnInfo
	mu   sync.Mutex
}

// WriteJSON sends v as a single text frame.
func (c *Client) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *Client) Info() ConnInfo {
	return c.info
}

// Hub tracks the open websocket connections of every user.
type Hub struct {
	clients map[string]map[*Client]struct{}
	events  EventPublisher
	mu      sync.RWMutex
}

// NewHub creates an empty hub. events may be nil.
func NewHub(events EventPublisher) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		events:  events,
	}
}

// AddClient registers a connection for userID.
func (h *Hub) AddClient(userID string, conn *websocket.Conn, info ConnInfo) *Client {
	client := &Client{conn: conn, info: info}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[userID]; !ok {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
	return client
}

// RemoveClient unregisters a connection. Removing twice is a no-op.
func (h *Hub) RemoveClient(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, userID)
		}
	}
}

// Connections returns how many connections userID has open.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// SendToUser writes event to every connection of userID and returns how many
// writes succeeded. Failed connections are closed and dropped.
func (h *Hub) SendToUser(userID string, event any) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[userID]))
	for client := range h.clients[userID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range targets {
		if err := client.WriteJSON(event); err != nil {
			slog.Warn("websocket write error", append(client.info.LogAttrs(), "error", err)...)
			if client.conn != nil {
				_ = client.conn.Close()
			}
			h.RemoveClient(userID, client)
			h.publishWSError(client.info, err)
			continue
		}
		sent++
	}
	return sent
}

// BroadcastMessage pushes a newly stored message to both participants.
func (h *Hub) BroadcastMessage(msg models.Message) {
	event := models.MessageEvent{Type: "message", Message: &msg}
	h.SendToUser(msg.ReceiverID, event)
	if msg.SenderID != msg.ReceiverID {
		h.SendToUser(msg.SenderID, event)
	}
}

// BroadcastRead tells the sender that the receiver has read a message.
func (h *Hub) BroadcastRead(msg models.Message) {
	h.SendToUser(msg.SenderID, models.MessageEvent{Type: "read", MessageID: msg.ID})
}

// BroadcastDeletion notifies both participants that a message is gone.
func (h *Hub) BroadcastDeletion(msg models.Message) {
	event := models.MessageEvent{Type: "delete", MessageID: msg.ID}
	h.SendToUser(msg.ReceiverID, event)
	if msg.SenderID != msg.ReceiverID {
		h.SendToUser(msg.SenderID, event)
	}
}

func (h *Hub) publishEvent(ctx context.Context, name string, info ConnInfo, reason string) {
	observability.IncWSEvent(kindConversations, name)
	if h.events == nil {
		return
	}
	if err := h.events.Publish(ctx, wsRoutingKey, lifecycleEvent(name, info, reason)); err != nil {
		slog.DebugContext(ctx, "ws event publish failed", "event", name, "error", err)
	}
}

func (h *Hub) publishWSError(info ConnInfo, err error) {
	h.publishEvent(context.Background(), "ws_error", info, err.Error())
}
