package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"messaging-service/internal/observability"
)

// ErrSubscriptionSetup is returned when a listener cannot subscribe to the
// change feed. Callers fall back to manual refresh.
var ErrSubscriptionSetup = errors.New("realtime subscription setup failed")

const (
	DefaultMinInterval = time.Second
	DefaultSettleDelay = 500 * time.Millisecond
)

// State is the refresh state of a Listener.
type State int

const (
	Idle State = iota
	PendingRefresh
)

func (s State) String() string {
	if s == PendingRefresh {
		return "pending_refresh"
	}
	return "idle"
}

// ListenerConfig tunes refresh coalescing.
type ListenerConfig struct {
	// MinInterval is the minimum time between two accepted events.
	MinInterval time.Duration
	// SettleDelay is the wait between an accepted event and the refresh.
	SettleDelay time.Duration
}

func (c ListenerConfig) withDefaults() ListenerConfig {
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	return c
}

// Listener turns message creation events for one user into debounced
// refreshes of that user's conversation list.
//
// In Idle, a create event involving the user moves to PendingRefresh when at
// least MinInterval has passed since the last accepted event; otherwise the
// event is dropped. PendingRefresh waits SettleDelay, runs the refresh and
// returns to Idle. Events arriving while pending are dropped.
type Listener struct {
	userID  string
	refresh func(context.Context)
	cfg     ListenerConfig
	logger  *slog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        State
	lastAccepted time.Time
	timer        *time.Timer
	stopped      bool
	unsubscribe  Unsubscribe
}

// Listen subscribes to message changes for userID. On failure it logs, and
// returns a nil Listener with an error wrapping ErrSubscriptionSetup.
func Listen(ctx context.Context, feed Feed, userID string, refresh func(context.Context), cfg ListenerConfig, logger *slog.Logger) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l := &Listener{
		userID:  userID,
		refresh: refresh,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
		ctx:     lctx,
		cancel:  cancel,
	}

	if feed == nil {
		cancel()
		logger.WarnContext(ctx, "realtime unavailable", "user_id", userID, "error", "no change feed")
		return nil, fmt.Errorf("%w: no change feed", ErrSubscriptionSetup)
	}
	unsubscribe, err := feed.Subscribe(MessagesPattern, l.handle)
	if err != nil {
		cancel()
		logger.ErrorContext(ctx, "realtime subscribe failed", "user_id", userID, "error", err)
		observability.IncListenerEvent("subscribe_error")
		return nil, fmt.Errorf("%w: %v", ErrSubscriptionSetup, err)
	}

	l.mu.Lock()
	l.unsubscribe = unsubscribe
	l.mu.Unlock()
	return l, nil
}

// State returns the current refresh state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Listener) handle(ev Event) {
	if !ev.IsCreate() || !ev.Payload.Involves(l.userID) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped || l.state == PendingRefresh {
		observability.IncListenerEvent("dropped")
		return
	}
	now := l.now()
	if !l.lastAccepted.IsZero() && now.Sub(l.lastAccepted) < l.cfg.MinInterval {
		observability.IncListenerEvent("dropped")
		return
	}

	l.lastAccepted = now
	l.state = PendingRefresh
	l.timer = time.AfterFunc(l.cfg.SettleDelay, l.fire)
	observability.IncListenerEvent("accepted")
}

func (l *Listener) fire() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.state = Idle
	l.timer = nil
	l.mu.Unlock()

	observability.IncListenerEvent("refresh")
	l.refresh(l.ctx)
}

// Stop tears down the subscription and cancels a pending refresh.
func (l *Listener) Stop() {
	if l == nil {
		return
	}
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.state = Idle
	unsubscribe := l.unsubscribe
	l.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	l.cancel()
}
