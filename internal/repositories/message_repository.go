package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

const messageColumns = `id, sender_id, receiver_id, body, read, attachment_file_id, attachment_name, attachment_size, attachment_mime, created_at`

// MessageRepository defines interactions with stored direct messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	ListThread(ctx context.Context, userA, userB string, limit, offset int) ([]models.Message, error)
	ListUserMessages(ctx context.Context, userID string, limit int) ([]models.Message, error)
	ListUnreadFrom(ctx context.Context, senderID, receiverID string) ([]models.Message, error)
	MarkRead(ctx context.Context, messageID string) error
	CountUnread(ctx context.Context, userID string) (int, error)
	DeleteMessage(ctx context.Context, messageID string, senderID string) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewMessageRepo constructs MessageRepo. A zero timeout selects DefaultTimeout.
func NewMessageRepo(db *sqlx.DB, timeout time.Duration) *MessageRepo {
	return &MessageRepo{db: db, timeout: timeout}
}

type messageRow struct {
	ID             string         `db:"id"`
	SenderID       string         `db:"sender_id"`
	ReceiverID     string         `db:"receiver_id"`
	Body           string         `db:"body"`
	Read           bool           `db:"read"`
	AttachmentID   sql.NullString `db:"attachment_file_id"`
	AttachmentName sql.NullString `db:"attachment_name"`
	AttachmentSize sql.NullInt64  `db:"attachment_size"`
	AttachmentMime sql.NullString `db:"attachment_mime"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r messageRow) toModel() models.Message {
	msg := models.Message{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Body:       r.Body,
		Read:       r.Read,
		CreatedAt:  r.CreatedAt,
	}
	if r.AttachmentID.Valid {
		msg.Attachment = &models.Attachment{
			FileID:   r.AttachmentID.String,
			Name:     r.AttachmentName.String,
			Size:     r.AttachmentSize.Int64,
			MimeType: r.AttachmentMime.String,
		}
	}
	return msg
}

func rowsToModels(rows []messageRow) []models.Message {
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toModel())
	}
	return msgs
}

// CreateMessage stores a new unread message. There is no idempotency key, so
// repeated calls store repeated messages.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var (
		fileID, name, mime sql.NullString
		size               sql.NullInt64
	)
	if a := msg.Attachment; a != nil {
		fileID = sql.NullString{String: a.FileID, Valid: true}
		name = sql.NullString{String: a.Name, Valid: true}
		size = sql.NullInt64{Int64: a.Size, Valid: true}
		mime = sql.NullString{String: a.MimeType, Valid: true}
	}

	var row messageRow
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (id, sender_id, receiver_id, body, read, attachment_file_id, attachment_name, attachment_size, attachment_mime)
        VALUES ($1, $2, $3, $4, FALSE, $5, $6, $7, $8) RETURNING `+messageColumns,
		uuid.NewString(), msg.SenderID, msg.ReceiverID, msg.Body, fileID, name, size, mime).StructScan(&row)
	if err != nil {
		return models.Message{}, writeErr("create message", err)
	}
	return row.toModel(), nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var row messageRow
	err := r.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, readErr("get message", err)
	}
	return row.toModel(), nil
}

// ListThread returns one page of the thread between two users, oldest first.
// The page itself is selected newest first so offset 0 is always the latest.
func (r *MessageRepo) ListThread(ctx context.Context, userA, userB string, limit, offset int) ([]models.Message, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + messageColumns + `
        FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at DESC
        LIMIT $3 OFFSET $4`
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query, userA, userB, limit, offset); err != nil {
		return nil, readErr("list thread", err)
	}
	msgs := rowsToModels(rows)
	reverse(msgs)
	return msgs, nil
}

// ListUserMessages returns the most recent messages sent or received by the
// user, newest first. It is a capped window, not the full history.
func (r *MessageRepo) ListUserMessages(ctx context.Context, userID string, limit int) ([]models.Message, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 200
	}
	query := `SELECT ` + messageColumns + `
        FROM messages
        WHERE sender_id=$1 OR receiver_id=$1
        ORDER BY created_at DESC
        LIMIT $2`
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit); err != nil {
		return nil, readErr("list user messages", err)
	}
	return rowsToModels(rows), nil
}

// ListUnreadFrom returns every unread message from sender to receiver.
// The query is unbounded.
func (r *MessageRepo) ListUnreadFrom(ctx context.Context, senderID, receiverID string) ([]models.Message, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + messageColumns + `
        FROM messages
        WHERE sender_id=$1 AND receiver_id=$2 AND read = FALSE
        ORDER BY created_at ASC`
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query, senderID, receiverID); err != nil {
		return nil, readErr("list unread", err)
	}
	return rowsToModels(rows), nil
}

// MarkRead sets the read flag. Marking an already read message is a no-op.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID string) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE messages SET read = TRUE WHERE id=$1`, messageID)
	if err != nil {
		return writeErr("mark read", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return writeErr("mark read", err)
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// CountUnread counts unread messages addressed to the user.
func (r *MessageRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE receiver_id=$1 AND read = FALSE`, userID); err != nil {
		return 0, readErr("count unread", err)
	}
	return count, nil
}

// DeleteMessage removes a message (sender only).
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID string, senderID string) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id=$1 AND sender_id=$2`, messageID, senderID)
	if err != nil {
		return writeErr("delete message", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return writeErr("delete message", err)
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func reverse(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
