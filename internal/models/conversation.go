package models

// Conversation is the derived view of all messages between the current user
// and one correspondent. It is rebuilt on every refresh and never stored.
type Conversation struct {
	CorrespondentID string   `json:"correspondent_id"`
	Correspondent   *Profile `json:"correspondent,omitempty"`
	LastMessage     Message  `json:"last_message"`
	UnreadCount     int      `json:"unread_count"`
}

// ConversationsEvent is pushed to conversation-list views.
type ConversationsEvent struct {
	Type          string         `json:"type"`
	Conversations []Conversation `json:"conversations"`
	Reason        string         `json:"reason,omitempty"`
}
