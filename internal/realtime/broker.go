package realtime

import (
	"context"
	"strings"
	"sync"
)

// Broker is an in-process Feed and Publisher. It backs single-instance
// deployments that run without a message broker.
type Broker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]brokerSub
}

type brokerSub struct {
	pattern string
	fn      func(Event)
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]brokerSub)}
}

// Subscribe registers fn for channels matching pattern.
func (b *Broker) Subscribe(pattern string, fn func(Event)) (Unsubscribe, error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = brokerSub{pattern: pattern, fn: fn}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}, nil
}

// PublishChange delivers the event synchronously to every matching subscriber.
func (b *Broker) PublishChange(_ context.Context, channel string, event Event) error {
	b.mu.RLock()
	targets := make([]func(Event), 0, len(b.subs))
	for _, sub := range b.subs {
		if TopicMatch(sub.pattern, channel) {
			targets = append(targets, sub.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range targets {
		fn(event)
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// TopicMatch reports whether a dotted channel matches a topic pattern.
func TopicMatch(pattern, channel string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(channel, "."))
}

func matchWords(pattern, words []string) bool {
	if len(pattern) == 0 {
		return len(words) == 0
	}
	switch pattern[0] {
	case "#":
		for i := 0; i <= len(words); i++ {
			if matchWords(pattern[1:], words[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(words) > 0 && matchWords(pattern[1:], words[1:])
	default:
		return len(words) > 0 && pattern[0] == words[0] && matchWords(pattern[1:], words[1:])
	}
}
