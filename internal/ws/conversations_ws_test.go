package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/conversations"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/realtime"
	"messaging-service/internal/repositories"
)

type memoryStore struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (s *memoryStore) add(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append([]models.Message{msg}, s.msgs...)
}

func (s *memoryStore) ListUserMessages(_ context.Context, userID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, 0, len(s.msgs))
	for _, m := range s.msgs {
		if m.Involves(userID) && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

type staticAuth map[string]string

func (a staticAuth) ValidateToken(token string) (string, error) {
	if id, ok := a[token]; ok {
		return id, nil
	}
	return "", errors.New("unknown token")
}

func at(sec int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, sec, 0, time.UTC)
}

func startServer(t *testing.T, store *memoryStore, feed realtime.Feed) (*httptest.Server, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	profiles := new(mocks.ProfileRepositoryMock)
	profiles.On("GetProfile", mock.Anything, "A").Return(models.Profile{UserID: "A", Name: "Alice"}, nil)
	profiles.On("GetProfile", mock.Anything, mock.Anything).Return(nil, repositories.ErrProfileNotFound)

	hub := NewHub(nil)
	handler := NewConversationsWebSocketHandler(
		hub,
		conversations.NewAggregator(store, 200, nil),
		profiles,
		feed,
		staticAuth{"tok-U": "U"},
		20,
		realtime.ListenerConfig{MinInterval: 10 * time.Millisecond, SettleDelay: 10 * time.Millisecond},
		nil,
	)
	router := gin.New()
	router.GET("/ws/conversations", handler.Handle)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, hub
}

func dial(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/conversations?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.ConversationsEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev models.ConversationsEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestConversationsSocketLoadsAndRefreshesOnCreate(t *testing.T) {
	store := &memoryStore{}
	store.add(models.Message{ID: "m1", SenderID: "A", ReceiverID: "U", CreatedAt: at(1)})
	broker := realtime.NewBroker()
	server, hub := startServer(t, store, broker)

	conn := dial(t, server, "tok-U")

	first := readEvent(t, conn)
	assert.Equal(t, "conversations", first.Type)
	require.Len(t, first.Conversations, 1)
	assert.Equal(t, "A", first.Conversations[0].CorrespondentID)
	require.NotNil(t, first.Conversations[0].Correspondent)
	assert.Equal(t, "Alice", first.Conversations[0].Correspondent.Name)
	assert.Equal(t, 1, first.Conversations[0].UnreadCount)
	assert.Equal(t, 1, hub.Connections("U"))

	msg := models.Message{ID: "m2", SenderID: "B", ReceiverID: "U", CreatedAt: at(2)}
	store.add(msg)
	channel, ev := realtime.NewMessageEvent(realtime.ActionCreate, msg)
	require.NoError(t, broker.PublishChange(context.Background(), channel, ev))

	second := readEvent(t, conn)
	assert.Equal(t, "conversations", second.Type)
	require.Len(t, second.Conversations, 2)
	assert.Equal(t, "B", second.Conversations[0].CorrespondentID)
	assert.Nil(t, second.Conversations[0].Correspondent)
}

func TestConversationsSocketWithoutFeedFallsBackToManualRefresh(t *testing.T) {
	store := &memoryStore{}
	server, _ := startServer(t, store, nil)

	conn := dial(t, server, "tok-U")

	first := readEvent(t, conn)
	assert.Equal(t, "conversations", first.Type)
	assert.Empty(t, first.Conversations)

	unavailable := readEvent(t, conn)
	assert.Equal(t, "realtime_unavailable", unavailable.Type)
	assert.NotEmpty(t, unavailable.Reason)

	store.add(models.Message{ID: "m1", SenderID: "U", ReceiverID: "A", CreatedAt: at(1)})
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "refresh"}))

	reloaded := readEvent(t, conn)
	require.Len(t, reloaded.Conversations, 1)
	assert.Equal(t, "A", reloaded.Conversations[0].CorrespondentID)
	assert.Zero(t, reloaded.Conversations[0].UnreadCount)
}

func TestConversationsSocketRejectsBadToken(t *testing.T) {
	server, _ := startServer(t, &memoryStore{}, realtime.NewBroker())

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/conversations?token=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConversationsSocketUnsubscribesOnClose(t *testing.T) {
	broker := realtime.NewBroker()
	server, hub := startServer(t, &memoryStore{}, broker)

	conn := dial(t, server, "tok-U")
	readEvent(t, conn)
	require.Eventually(t, func() bool { return broker.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return broker.Subscribers() == 0 && hub.Connections("U") == 0
	}, 2*time.Second, 10*time.Millisecond)
}
