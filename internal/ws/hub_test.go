package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHubAddAndRemoveClient(t *testing.T) {
	hub := NewHub(nil)

	a := hub.AddClient("U", nil, ConnInfo{ConnID: "a"})
	b := hub.AddClient("U", nil, ConnInfo{ConnID: "b"})
	assert.Equal(t, 2, hub.Connections("U"))

	hub.RemoveClient("U", a)
	assert.Equal(t, 1, hub.Connections("U"))

	hub.RemoveClient("U", b)
	hub.RemoveClient("U", b)
	assert.Zero(t, hub.Connections("U"))
	assert.Empty(t, hub.clients)
}

func TestHubSendToUserDropsBrokenClients(t *testing.T) {
	hub := NewHub(nil)
	hub.AddClient("U", nil, ConnInfo{ConnID: "closed"})

	assert.Zero(t, hub.SendToUser("U", map[string]string{"type": "ping"}))
	assert.Zero(t, hub.Connections("U"))
	assert.Zero(t, hub.SendToUser("nobody", map[string]string{"type": "ping"}))
}

func TestLifecycleEventCarriesIdentity(t *testing.T) {
	ev := lifecycleEvent("ws_connect", ConnInfo{ConnID: "c1", UserID: "U", RequestID: "r1", TraceID: "t1"}, "")

	assert.Equal(t, "ws_events", ev.EventType)
	assert.Equal(t, "ws_connect", ev.EventName)
	assert.Equal(t, "r1", ev.RequestID)
	assert.Equal(t, "t1", ev.TraceID)
	payload := ev.Payload.(map[string]interface{})
	assert.Equal(t, "U", payload["identity"].(map[string]interface{})["user_id"])
}

func TestConnInfoUptime(t *testing.T) {
	assert.Zero(t, ConnInfo{}.Uptime())
	info := ConnInfo{ConnectedAt: time.Now().Add(-time.Second)}
	assert.GreaterOrEqual(t, info.Uptime(), time.Second)
	assert.Len(t, info.LogAttrs(), 3)
}
