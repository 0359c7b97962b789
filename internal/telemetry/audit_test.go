package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	routingKey string
	events     []any
	err        error
}

func (p *capturePublisher) Publish(_ context.Context, routingKey string, event any) error {
	p.routingKey = routingKey
	p.events = append(p.events, event)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func TestAuditEmitterPublishesEnvelope(t *testing.T) {
	pub := &capturePublisher{}
	emitter := NewAuditEmitter(pub, "audit.messaging", "messaging-service", "test")

	emitter.Emit(context.Background(), "INFO", "message.send", "m1", "", "req-1", "u1")

	require.Len(t, pub.events, 1)
	env, ok := pub.events[0].(AuditEnvelope)
	require.True(t, ok)
	assert.Equal(t, "audit.messaging", pub.routingKey)
	assert.Equal(t, "audit_log", env.EventType)
	assert.Equal(t, "u1", env.UserID)
	assert.Equal(t, "message.send", env.Payload.Action)
	assert.Equal(t, "m1", env.Payload.TargetID)
}

func TestAuditEmitterNilSafe(t *testing.T) {
	var emitter *AuditEmitter
	emitter.Emit(context.Background(), "INFO", "noop", "", "", "", "")

	pub := &capturePublisher{err: assert.AnError}
	NewAuditEmitter(pub, "k", "s", "e").Emit(context.Background(), "ERROR", "a", "", "", "", "")
	assert.Len(t, pub.events, 1)
}
