package rabbitmq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/telemetry"
)

func TestNewPublisherFallsBackToNoop(t *testing.T) {
	p := NewPublisher("", "audit")

	assert.Equal(t, "noop", PublisherMode(p))
	assert.Equal(t, "empty amqp url", PublisherNoopReason(p))
	require.NoError(t, p.Publish(context.Background(), "audit.messaging", telemetry.AuditEnvelope{EventType: "audit_log"}))
	require.NoError(t, p.Close())
}

func TestNewChangeFeedRequiresURL(t *testing.T) {
	feed, err := NewChangeFeed("", "changes")
	assert.Nil(t, feed)
	assert.Error(t, err)
}
