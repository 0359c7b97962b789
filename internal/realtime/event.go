// Package realtime carries message change events from the store to open
// conversation views.
package realtime

import (
	"context"
	"strings"

	"messaging-service/internal/models"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"

	// MessagesPattern matches every message change channel.
	MessagesPattern = "messages.#"
)

// Event is one change notification. Events lists the channels the change was
// published under; Payload is the affected message.
type Event struct {
	Events  []string       `json:"events"`
	Payload models.Message `json:"payload"`
}

// IsCreate reports whether the event announces a newly created document.
func (e Event) IsCreate() bool {
	for _, name := range e.Events {
		if strings.Contains(name, ActionCreate) {
			return true
		}
	}
	return false
}

// MessageChannel names the channel for an action on one message.
func MessageChannel(messageID, action string) string {
	return "messages." + messageID + "." + action
}

// NewMessageEvent builds the channel and event for an action on msg.
func NewMessageEvent(action string, msg models.Message) (string, Event) {
	channel := MessageChannel(msg.ID, action)
	return channel, Event{
		Events:  []string{channel, "messages.*." + action},
		Payload: msg,
	}
}

// Unsubscribe tears down a subscription. It is safe to call more than once.
type Unsubscribe func()

// Feed delivers change events for channels matching a pattern. Patterns use
// topic syntax: words separated by dots, "*" matches one word and "#" matches
// zero or more words.
type Feed interface {
	Subscribe(pattern string, fn func(Event)) (Unsubscribe, error)
}

// Publisher announces change events.
type Publisher interface {
	PublishChange(ctx context.Context, channel string, event Event) error
}
