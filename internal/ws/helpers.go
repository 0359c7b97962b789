package ws

import (
	"github.com/google/uuid"

	"messaging-service/internal/observability"
)

const (
	kindConversations = "conversations"
	wsRoutingKey      = "ws_events.conversations"
)

func newConnID() string {
	return uuid.NewString()
}

func lifecycleEvent(name string, info ConnInfo, reason string) observability.EventEnvelope {
	return observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		RequestID: info.RequestID,
		TraceID:   info.TraceID,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        kindConversations,
				"event":       name,
				"conn_id":     info.ConnID,
				"duration_ms": info.Uptime().Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}
}
