package conversations

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"messaging-service/internal/models"
)

// View is the state behind one open conversation list: the current user, the
// last rendered list and the profiles resolved for it.
type View struct {
	aggregator *Aggregator
	profiles   *ProfileCache
	userID     string
	limit      int

	// pass serializes compute and store so an older read never replaces a
	// newer one.
	pass sync.Mutex

	mu       sync.Mutex
	current  []models.Conversation
	snapshot []byte
}

// NewView creates a view for userID showing up to limit conversations.
func NewView(aggregator *Aggregator, profiles *ProfileCache, userID string, limit int) *View {
	if limit <= 0 {
		limit = DefaultDisplayLimit
	}
	return &View{aggregator: aggregator, profiles: profiles, userID: userID, limit: limit}
}

// UserID returns the owner of the view.
func (v *View) UserID() string {
	return v.userID
}

// Load recomputes the list and always replaces the view state.
func (v *View) Load(ctx context.Context) []models.Conversation {
	v.pass.Lock()
	defer v.pass.Unlock()

	convs := v.compute(ctx)
	payload, _ := json.Marshal(convs)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = convs
	v.snapshot = payload
	return convs
}

// Refresh recomputes the list without signalling a load and replaces the view
// state only when the serialized result differs from the current one.
func (v *View) Refresh(ctx context.Context) ([]models.Conversation, bool) {
	v.pass.Lock()
	defer v.pass.Unlock()

	convs := v.compute(ctx)
	payload, err := json.Marshal(convs)
	if err != nil {
		return nil, false
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.snapshot != nil && bytes.Equal(v.snapshot, payload) {
		return v.current, false
	}
	v.current = convs
	v.snapshot = payload
	return convs, true
}

// Current returns the last stored list.
func (v *View) Current() []models.Conversation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

func (v *View) compute(ctx context.Context) []models.Conversation {
	convs := v.aggregator.List(ctx, v.userID, v.limit)
	if v.profiles != nil {
		v.profiles.Attach(ctx, convs)
	}
	return convs
}
