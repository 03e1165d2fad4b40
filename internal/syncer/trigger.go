package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pokerankr/ranksync/internal/auth"
	"github.com/pokerankr/ranksync/internal/store"
)

// Trigger turns auth events into sync runs. A sign-in on an already
// synced device schedules a pull; a sign-in on a fresh device either
// adopts the cloud copy or hands off to the first-sync decision flow.
// Repeated events for the same account inside the debounce window are
// ignored, so an auth provider that re-emits its session on refresh
// does not cause a sync storm.
type Trigger struct {
	session *Session
	flow    *FirstSync
	store   *store.Store
	logger  *slog.Logger

	// debounce is how long repeat sign-in events for one account are
	// suppressed after the first is handled.
	debounce time.Duration

	// flowDelay is how long a fresh device waits before starting the
	// first-sync decision flow, giving the app a moment to finish its
	// own startup before the prompt appears.
	flowDelay time.Duration

	mu      sync.Mutex
	handled map[string]bool

	wg sync.WaitGroup
}

// NewTrigger creates a Trigger with the given debounce window and
// first-sync delay.
func NewTrigger(sn *Session, flow *FirstSync, st *store.Store, debounce, flowDelay time.Duration, logger *slog.Logger) *Trigger {
	return &Trigger{
		session:   sn,
		flow:      flow,
		store:     st,
		logger:    logger,
		debounce:  debounce,
		flowDelay: flowDelay,
		handled:   make(map[string]bool),
	}
}

// Run consumes auth events until the channel closes or the context is
// cancelled. Wire it to the channel returned by auth.Service.Subscribe.
func (t *Trigger) Run(ctx context.Context, events <-chan *auth.User) error {
	defer t.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case user, ok := <-events:
			if !ok {
				return nil
			}

			if user == nil {
				t.logger.Debug("signed out, no sync scheduled")
				continue
			}

			t.handleSignIn(ctx, user)
		}
	}
}

// handleSignIn reacts to one sign-in event.
func (t *Trigger) handleSignIn(ctx context.Context, user *auth.User) {
	if t.debounced(user.ID) {
		t.logger.Debug("sign-in debounced", slog.String("user_id", user.ID))
		return
	}

	if t.store.DeviceSynced(user.ID) {
		t.logger.Debug("device already synced, pulling", slog.String("user_id", user.ID))

		if err := t.session.Pull(ctx); err != nil {
			t.logger.Warn("pull after sign-in", slog.String("error", err.Error()))
		}

		return
	}

	if t.store.HasProgress() {
		t.scheduleFlow(ctx, user.ID)
		return
	}

	// Fresh device, nothing local. Adopt the cloud copy directly.
	if err := t.session.Pull(ctx); err != nil {
		t.logger.Warn("pull on fresh device", slog.String("error", err.Error()))
	}

	if err := t.store.MarkDeviceSynced(user.ID); err != nil {
		t.logger.Warn("recording device sync marker",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
}

// debounced marks the account handled and reports whether it already
// was within the window.
func (t *Trigger) debounced(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.handled[userID] {
		return true
	}

	t.handled[userID] = true

	time.AfterFunc(t.debounce, func() {
		t.mu.Lock()
		delete(t.handled, userID)
		t.mu.Unlock()
	})

	return false
}

// scheduleFlow starts the first-sync decision flow after flowDelay.
func (t *Trigger) scheduleFlow(ctx context.Context, userID string) {
	t.logger.Info("scheduling first sync decision",
		slog.String("user_id", userID),
		slog.Duration("delay", t.flowDelay),
	)

	t.wg.Add(1)

	go func() {
		defer t.wg.Done()

		timer := time.NewTimer(t.flowDelay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := t.flow.Run(ctx, userID); err != nil {
			t.logger.Warn("first sync decision flow", slog.String("error", err.Error()))
		}
	}()
}
