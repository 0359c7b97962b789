package conversations

import (
	"context"
	"log/slog"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

type threadLister interface {
	ListThread(ctx context.Context, userA, userB string, limit, offset int) ([]models.Message, error)
}

// LoadThread returns one page of the thread between two users in
// chronological order. Read failures are logged and yield an empty page.
func LoadThread(ctx context.Context, store threadLister, userA, userB string, limit, offset int, logger *slog.Logger) []models.Message {
	msgs, err := store.ListThread(ctx, userA, userB, limit, offset)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(ctx, "load thread failed", "user_id", userA, "correspondent_id", userB, "error", err)
		observability.IncRemoteError("list_thread")
		return []models.Message{}
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs
}
