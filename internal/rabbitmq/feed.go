package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"messaging-service/internal/observability"
	"messaging-service/internal/realtime"
)

// ChangeFeed carries message change events over a topic exchange. Every
// subscription gets its own exclusive, auto-deleted queue bound with the
// subscription pattern.
type ChangeFeed struct {
	conn     *amqp.Connection
	exchange string
	open     func() (publishChannel, error)

	mu    sync.Mutex
	pubCh publishChannel
}

// publishChannel is the part of *amqp.Channel the feed publishes through.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

var (
	_ realtime.Feed      = (*ChangeFeed)(nil)
	_ realtime.Publisher = (*ChangeFeed)(nil)
)

// NewChangeFeed connects to RabbitMQ and declares the change exchange.
func NewChangeFeed(amqpURL, exchange string) (*ChangeFeed, error) {
	conn, ch, err := dial(amqpURL, exchange)
	if err != nil {
		return nil, fmt.Errorf("change feed: %w", err)
	}
	slog.Info("change feed connected", "exchange", exchange)
	f := &ChangeFeed{conn: conn, exchange: exchange}
	f.open = func() (publishChannel, error) {
		ch, err := f.conn.Channel()
		if err != nil {
			return nil, err
		}
		watchClose(ch, exchange)
		return ch, nil
	}
	watchClose(ch, exchange)
	f.pubCh = ch
	return f, nil
}

func watchClose(ch *amqp.Channel, exchange string) {
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if err, ok := <-closed; ok && err != nil {
			slog.Warn("change feed channel closed", "exchange", exchange, "code", err.Code, "reason", err.Reason)
		}
	}()
}

// channel returns an open publish channel, reopening it after a channel
// exception. Callers hold f.mu.
func (f *ChangeFeed) channel() (publishChannel, error) {
	if f.pubCh != nil && !f.pubCh.IsClosed() {
		return f.pubCh, nil
	}
	if f.open == nil {
		return nil, amqp.ErrClosed
	}
	ch, err := f.open()
	if err != nil {
		return nil, fmt.Errorf("reopen channel: %w", err)
	}
	slog.Info("change feed channel reopened", "exchange", f.exchange)
	f.pubCh = ch
	return ch, nil
}

// PublishChange publishes the event with the channel as routing key. A
// publish that hits a closed channel is retried once on a fresh channel.
func (f *ChangeFeed) PublishChange(ctx context.Context, channel string, event realtime.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now(),
		Body:         body,
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for attempt := 0; ; attempt++ {
		ch, err := f.channel()
		if err == nil {
			err = ch.PublishWithContext(ctx, f.exchange, channel, false, false, msg)
			if err == nil {
				return nil
			}
		}
		if attempt == 0 && (f.pubCh == nil || f.pubCh.IsClosed()) {
			continue
		}
		observability.IncAMQPPublishError()
		return fmt.Errorf("publish change %s: %w", channel, err)
	}
}

// Subscribe binds a private queue to pattern and calls fn for every event
// until the returned Unsubscribe is called.
func (f *ChangeFeed) Subscribe(pattern string, fn func(realtime.Event)) (realtime.Unsubscribe, error) {
	ch, err := f.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, pattern, f.exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}

	go func() {
		for d := range deliveries {
			var ev realtime.Event
			if err := json.Unmarshal(d.Body, &ev); err != nil {
				slog.Warn("drop malformed change event", "routing_key", d.RoutingKey, "error", err)
				continue
			}
			fn(ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { _ = ch.Close() })
	}, nil
}

// Close shuts down the feed connection and every subscription on it.
func (f *ChangeFeed) Close() error {
	f.mu.Lock()
	if f.pubCh != nil {
		_ = f.pubCh.Close()
	}
	f.mu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}
