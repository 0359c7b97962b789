package conversations

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

type readStore interface {
	ListUnreadFrom(ctx context.Context, senderID, receiverID string) ([]models.Message, error)
	MarkRead(ctx context.Context, messageID string) error
}

// MarkResult lists the message ids a bulk mark touched.
type MarkResult struct {
	Succeeded []string
	Failed    []string
}

// Marked returns the number of messages marked read.
func (r MarkResult) Marked() int {
	return len(r.Succeeded)
}

// ReadStateUpdater moves messages from unread to read.
type ReadStateUpdater struct {
	store  readStore
	logger *slog.Logger
}

// NewReadStateUpdater constructs a ReadStateUpdater.
func NewReadStateUpdater(store readStore, logger *slog.Logger) *ReadStateUpdater {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadStateUpdater{store: store, logger: logger}
}

// MarkOne marks a single message read and returns the store error, if any.
func (u *ReadStateUpdater) MarkOne(ctx context.Context, messageID string) error {
	if err := u.store.MarkRead(ctx, messageID); err != nil {
		u.logger.ErrorContext(ctx, "mark read failed", "message_id", messageID, "error", err)
		return err
	}
	observability.AddMessagesMarkedRead(1)
	return nil
}

// MarkConversation marks every unread message from correspondent to userID
// and returns how many were marked. Individual failures are not reported.
func (u *ReadStateUpdater) MarkConversation(ctx context.Context, correspondent, userID string) int {
	return u.MarkConversationDetailed(ctx, correspondent, userID).Marked()
}

// MarkConversationDetailed is MarkConversation with per-message outcomes.
// All marks run concurrently and the call waits for every one of them.
// There is no rollback: a partial failure leaves the successful marks applied.
func (u *ReadStateUpdater) MarkConversationDetailed(ctx context.Context, correspondent, userID string) MarkResult {
	unread, err := u.store.ListUnreadFrom(ctx, correspondent, userID)
	if err != nil {
		u.logger.ErrorContext(ctx, "load unread messages failed", "correspondent_id", correspondent, "user_id", userID, "error", err)
		observability.IncRemoteError("list_unread")
		return MarkResult{}
	}

	var (
		g      errgroup.Group
		mu     sync.Mutex
		result MarkResult
	)
	for _, msg := range unread {
		id := msg.ID
		g.Go(func() error {
			err := u.MarkOne(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, id)
				return nil
			}
			result.Succeeded = append(result.Succeeded, id)
			return nil
		})
	}
	_ = g.Wait()

	if len(result.Failed) > 0 {
		u.logger.WarnContext(ctx, "conversation partially marked read",
			"correspondent_id", correspondent, "user_id", userID,
			"marked", len(result.Succeeded), "failed", len(result.Failed))
	}
	return result
}
