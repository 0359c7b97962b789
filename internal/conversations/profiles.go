package conversations

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

type profileGetter interface {
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
}

// ProfileCache holds profiles fetched for one conversation-list view.
// Concurrent lookups of the same uncached id share a single fetch.
type ProfileCache struct {
	store    profileGetter
	logger   *slog.Logger
	group    singleflight.Group
	mu       sync.RWMutex
	profiles map[string]models.Profile
}

// NewProfileCache creates an empty cache over the profile store.
func NewProfileCache(store profileGetter, logger *slog.Logger) *ProfileCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileCache{store: store, logger: logger, profiles: make(map[string]models.Profile)}
}

// Get returns the profile for userID, fetching it on a miss.
func (c *ProfileCache) Get(ctx context.Context, userID string) (models.Profile, bool) {
	c.mu.RLock()
	profile, ok := c.profiles[userID]
	c.mu.RUnlock()
	if ok {
		return profile, true
	}

	v, err, _ := c.group.Do(userID, func() (interface{}, error) {
		c.mu.RLock()
		cached, ok := c.profiles[userID]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}
		p, err := c.store.GetProfile(ctx, userID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.profiles[userID] = p
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		if !errors.Is(err, repositories.ErrProfileNotFound) {
			c.logger.WarnContext(ctx, "profile fetch failed", "user_id", userID, "error", err)
		}
		return models.Profile{}, false
	}
	return v.(models.Profile), true
}

// Len reports how many profiles are cached.
func (c *ProfileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.profiles)
}

// Attach resolves the correspondent profile of every conversation in place.
// Conversations whose profile cannot be loaded are left without one.
func (c *ProfileCache) Attach(ctx context.Context, convs []models.Conversation) {
	var g errgroup.Group
	for i := range convs {
		i := i
		g.Go(func() error {
			if p, ok := c.Get(ctx, convs[i].CorrespondentID); ok {
				convs[i].Correspondent = &p
			}
			return nil
		})
	}
	_ = g.Wait()
}
