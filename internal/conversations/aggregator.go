// Package conversations turns the flat message store into per-correspondent
// conversation lists and tracks their read state.
package conversations

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

const (
	// DefaultWindow is how many recent messages one aggregation pass reads.
	DefaultWindow = 200
	// DefaultDisplayLimit is how many conversations a list returns.
	DefaultDisplayLimit = 20
)

type messageLister interface {
	ListUserMessages(ctx context.Context, userID string, limit int) ([]models.Message, error)
}

// Aggregate reduces messages involving userID to one conversation per
// correspondent, sorted by last message time, newest first.
//
// Input is expected newest first, in which case the first message seen for a
// correspondent is its last message. A later-timestamped message still wins
// if the input arrives in another order.
func Aggregate(messages []models.Message, userID string) []models.Conversation {
	index := make(map[string]int)
	result := make([]models.Conversation, 0)

	for _, msg := range messages {
		if !msg.Involves(userID) {
			continue
		}
		correspondent := msg.CorrespondentOf(userID)
		i, seen := index[correspondent]
		if !seen {
			i = len(result)
			index[correspondent] = i
			result = append(result, models.Conversation{CorrespondentID: correspondent, LastMessage: msg})
		} else if msg.CreatedAt.After(result[i].LastMessage.CreatedAt) {
			result[i].LastMessage = msg
		}
		// every unread message in the window counts, not only the last one
		if msg.ReceiverID == userID && !msg.Read {
			result[i].UnreadCount++
		}
	}

	sort.SliceStable(result, func(a, b int) bool {
		return result[a].LastMessage.CreatedAt.After(result[b].LastMessage.CreatedAt)
	})
	return result
}

// Aggregator builds conversation lists from the message store.
type Aggregator struct {
	messages messageLister
	window   int
	logger   *slog.Logger
}

// NewAggregator constructs an Aggregator reading at most window messages per
// pass. A non-positive window selects DefaultWindow.
func NewAggregator(messages messageLister, window int, logger *slog.Logger) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{messages: messages, window: window, logger: logger}
}

// Window returns the number of messages read per pass.
func (a *Aggregator) Window() int {
	return a.window
}

// List returns up to limit conversations for the user.
//
// Only the most recent window messages are considered, shared across all
// correspondents: a correspondent whose latest message is older than the
// window does not appear. Read failures are logged and yield an empty list.
func (a *Aggregator) List(ctx context.Context, userID string, limit int) []models.Conversation {
	ctx, span := otel.Tracer("messaging-service/conversations").Start(ctx, "conversations.aggregate")
	defer span.End()

	if limit <= 0 {
		limit = DefaultDisplayLimit
	}

	msgs, err := a.messages.ListUserMessages(ctx, userID, a.window)
	if err != nil {
		a.logger.ErrorContext(ctx, "load conversation window failed", "user_id", userID, "error", err)
		observability.IncRemoteError("list_user_messages")
		span.RecordError(err)
		return []models.Conversation{}
	}

	convs := Aggregate(msgs, userID)
	if len(convs) > limit {
		convs = convs[:limit]
	}
	span.SetAttributes(
		attribute.Int("messages.window", len(msgs)),
		attribute.Int("conversations.count", len(convs)),
	)
	return convs
}

// UnreadTotal returns the unread count for the user, or 0 when the store
// cannot be read.
func UnreadTotal(ctx context.Context, store repositories.MessageRepository, userID string, logger *slog.Logger) int {
	count, err := store.CountUnread(ctx, userID)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(ctx, "count unread failed", "user_id", userID, "error", err)
		observability.IncRemoteError("count_unread")
		return 0
	}
	return count
}
