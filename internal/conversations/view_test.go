package conversations

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

func TestViewRefreshReportsOnlyChanges(t *testing.T) {
	store := &historyStore{all: []models.Message{msg("m1", "A", "U", false, 1)}}
	view := NewView(NewAggregator(store, 0, nil), nil, "U", 0)

	initial := view.Load(context.Background())
	require.Len(t, initial, 1)

	_, changed := view.Refresh(context.Background())
	assert.False(t, changed)

	store.all = append(store.all, msg("m2", "B", "U", false, 2))
	convs, changed := view.Refresh(context.Background())
	assert.True(t, changed)
	require.Len(t, convs, 2)
	assert.Equal(t, convs, view.Current())
}

func TestViewAttachesProfiles(t *testing.T) {
	store := &historyStore{all: []models.Message{
		msg("m1", "A", "U", false, 1),
		msg("m2", "U", "B", false, 2),
	}}
	profiles := new(mocks.ProfileRepositoryMock)
	profiles.On("GetProfile", mock.Anything, "A").Return(models.Profile{UserID: "A", Name: "Ann"}, nil).Once()
	profiles.On("GetProfile", mock.Anything, "B").Return(nil, repositories.ErrProfileNotFound).Once()

	view := NewView(NewAggregator(store, 0, nil), NewProfileCache(profiles, nil), "U", 0)
	convs := view.Load(context.Background())

	require.Len(t, convs, 2)
	assert.Equal(t, "B", convs[0].CorrespondentID)
	assert.Nil(t, convs[0].Correspondent)
	require.NotNil(t, convs[1].Correspondent)
	assert.Equal(t, "Ann", convs[1].Correspondent.Name)
	profiles.AssertExpectations(t)
}

func TestProfileCacheDeduplicatesConcurrentFetches(t *testing.T) {
	profiles := new(mocks.ProfileRepositoryMock)
	profiles.On("GetProfile", mock.Anything, "A").
		After(50*time.Millisecond).
		Return(models.Profile{UserID: "A", Name: "Ann"}, nil)

	cache := NewProfileCache(profiles, nil)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, ok := cache.Get(context.Background(), "A")
			assert.True(t, ok)
			assert.Equal(t, "Ann", p.Name)
		}()
	}
	wg.Wait()

	profiles.AssertNumberOfCalls(t, "GetProfile", 1)
	assert.Equal(t, 1, cache.Len())

	_, ok := cache.Get(context.Background(), "A")
	assert.True(t, ok)
	profiles.AssertNumberOfCalls(t, "GetProfile", 1)
}

// gatedStore blocks the first read until released and serves the older
// history to it. Later reads get the newer history.
type gatedStore struct {
	older, newer []models.Message
	entered      chan struct{}
	release      chan struct{}

	mu    sync.Mutex
	calls int
}

func (s *gatedStore) ListUserMessages(context.Context, string, int) ([]models.Message, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()

	if first {
		close(s.entered)
		<-s.release
		return newestFirst(s.older), nil
	}
	return newestFirst(s.newer), nil
}

func TestViewOverlappingLoadDoesNotRevertRefresh(t *testing.T) {
	store := &gatedStore{
		older:   []models.Message{msg("old", "A", "U", false, 1)},
		newer:   []models.Message{msg("old", "A", "U", false, 1), msg("new", "A", "U", false, 2)},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	view := NewView(NewAggregator(store, 0, nil), nil, "U", 0)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		view.Load(context.Background())
	}()
	<-store.entered

	refreshed := make(chan []models.Conversation, 1)
	go func() {
		defer wg.Done()
		convs, _ := view.Refresh(context.Background())
		refreshed <- convs
	}()
	time.Sleep(30 * time.Millisecond)
	close(store.release)
	wg.Wait()

	current := view.Current()
	require.Len(t, current, 1)
	assert.Equal(t, "new", current[0].LastMessage.ID)
	assert.Equal(t, 2, current[0].UnreadCount)

	convs := <-refreshed
	require.Len(t, convs, 1)
	assert.Equal(t, "new", convs[0].LastMessage.ID)
}
