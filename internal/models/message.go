package models

import "time"

// Attachment references a file held in external storage.
type Attachment struct {
	FileID   string `json:"file_id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// Message represents a direct message between two users.
// Only Read ever changes after creation, and only from false to true.
type Message struct {
	ID         string      `json:"id"`
	SenderID   string      `json:"sender_id"`
	ReceiverID string      `json:"receiver_id"`
	Body       string      `json:"body"`
	Read       bool        `json:"read"`
	Attachment *Attachment `json:"attachment,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Involves reports whether userID is the sender or the receiver.
func (m Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// CorrespondentOf returns the other party of the message relative to userID.
func (m Message) CorrespondentOf(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// NewMessage carries the fields a sender provides.
type NewMessage struct {
	SenderID   string
	ReceiverID string
	Body       string
	Attachment *Attachment
}

// MessageEvent is pushed to websocket clients.
type MessageEvent struct {
	Type      string   `json:"type"`
	Message   *Message `json:"message,omitempty"`
	MessageID string   `json:"message_id,omitempty"`
}
