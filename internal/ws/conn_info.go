package ws

import (
	"log/slog"
	"time"
)

// ConnInfo identifies one websocket session for logs and lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Uptime is the session age, or zero when the connect time is unknown.
func (i ConnInfo) Uptime() time.Duration {
	if i.ConnectedAt.IsZero() {
		return 0
	}
	return time.Since(i.ConnectedAt)
}

// LogAttrs returns the identifying attributes for slog.
func (i ConnInfo) LogAttrs() []any {
	return []any{
		slog.String("user_id", i.UserID),
		slog.String("conn_id", i.ConnID),
		slog.String("request_id", i.RequestID),
	}
}
