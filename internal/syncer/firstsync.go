package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pokerankr/ranksync/internal/store"
)

// Choice is the player's answer to the first-sync prompt.
type Choice string

const (
	// ChoiceMerge combines local progress with the account's cloud
	// progress.
	ChoiceMerge Choice = "merge"

	// ChoiceReplace discards local progress in favour of the account's
	// cloud progress.
	ChoiceReplace Choice = "replace"
)

// FlowState is the current phase of the first-sync decision flow.
type FlowState int

const (
	// FlowIdle means no first sync is running; a sign-in may start one.
	FlowIdle FlowState = iota

	// FlowAwaitingDecision means the player is being asked whether to
	// merge or replace.
	FlowAwaitingDecision

	// FlowMerging means local progress is being pushed before the
	// cloud copy is restored.
	FlowMerging

	// FlowReplacing means local progress is being discarded and the
	// cloud copy restored.
	FlowReplacing

	// FlowSettled means this device has completed its first sync for
	// the account and the flow will not run again.
	FlowSettled
)

// UI is how the decision flow reaches the player. The daemon wires a
// terminal implementation; tests substitute a scripted one.
type UI interface {
	// PromptMergeOrReplace asks whether local progress should be merged
	// into the account or replaced by it.
	PromptMergeOrReplace(ctx context.Context) (Choice, error)

	// NotifySyncFailed tells the player their progress was not
	// uploaded and nothing was discarded.
	NotifySyncFailed()

	// ReloadApp signals the app to re-read progress from the local
	// store after the flow rewrote it.
	ReloadApp()
}

// FirstSync runs the one-time decision flow for an account's first
// sync on this device. On devices with no local progress the remote
// copy is adopted silently; otherwise the player chooses between
// merging and replacing. The flow settles at most once per account
// and device.
type FirstSync struct {
	session *Session
	store   *store.Store
	ui      UI
	logger  *slog.Logger

	mu      sync.Mutex
	state   FlowState
	running bool
}

// NewFirstSync creates the decision flow over an existing session.
func NewFirstSync(sn *Session, st *store.Store, ui UI, logger *slog.Logger) *FirstSync {
	return &FirstSync{
		session: sn,
		store:   st,
		ui:      ui,
		logger:  logger,
	}
}

// State returns the flow's current phase.
func (f *FirstSync) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.state
}

func (f *FirstSync) setState(s FlowState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// Run executes the decision flow for the given account. Calling Run
// again after the flow settled, or while it is already running, does
// nothing.
func (f *FirstSync) Run(ctx context.Context, userID string) error {
	f.mu.Lock()
	if f.state != FlowIdle || f.running {
		f.mu.Unlock()
		f.logger.Debug("first sync not idle, skipping", slog.Int("state", int(f.state)))

		return nil
	}

	f.running = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	if f.store.DeviceSynced(userID) {
		f.setState(FlowSettled)
		return nil
	}

	if !f.store.HasProgress() {
		return f.adopt(ctx, userID)
	}

	f.setState(FlowAwaitingDecision)

	choice, err := f.ui.PromptMergeOrReplace(ctx)
	if err != nil {
		// Prompt dismissed or cancelled. Local progress is untouched
		// and the flow can run again on the next sign-in.
		f.setState(FlowIdle)

		return fmt.Errorf("first sync prompt: %w", err)
	}

	switch choice {
	case ChoiceReplace:
		return f.replace(ctx, userID)
	default:
		return f.merge(ctx, userID)
	}
}

// adopt handles a device with no local progress: the cloud copy is
// pulled in without asking.
func (f *FirstSync) adopt(ctx context.Context, userID string) error {
	f.logger.Info("first sync, no local progress, adopting cloud copy",
		slog.String("user_id", userID))

	if err := f.session.Pull(ctx); err != nil {
		f.logger.Warn("first sync pull incomplete", slog.String("error", err.Error()))
	}

	f.markSynced(userID)
	f.setState(FlowSettled)

	return nil
}

// merge pushes local progress into the account before restoring the
// merged cloud copy. If the push fails, or was skipped because
// another sync held the guard, nothing is cleared and the flow
// returns to idle so the player can retry.
func (f *FirstSync) merge(ctx context.Context, userID string) error {
	f.setState(FlowMerging)
	f.logger.Info("first sync, merging local progress", slog.String("user_id", userID))

	if err := f.session.Push(ctx); err != nil {
		f.ui.NotifySyncFailed()
		f.setState(FlowIdle)

		return fmt.Errorf("merging local progress: %w", err)
	}

	if err := f.store.ClearProgress(); err != nil {
		f.ui.NotifySyncFailed()
		f.setState(FlowIdle)

		return fmt.Errorf("clearing merged progress: %w", err)
	}

	f.markSynced(userID)

	if err := f.session.Pull(ctx); err != nil {
		f.logger.Warn("restoring merged progress incomplete", slog.String("error", err.Error()))
	}

	f.ui.ReloadApp()
	f.setState(FlowSettled)

	return nil
}

// replace discards local progress and restores the cloud copy.
func (f *FirstSync) replace(ctx context.Context, userID string) error {
	f.setState(FlowReplacing)
	f.logger.Info("first sync, replacing local progress", slog.String("user_id", userID))

	if err := f.store.ClearProgress(); err != nil {
		f.ui.NotifySyncFailed()
		f.setState(FlowIdle)

		return fmt.Errorf("clearing local progress: %w", err)
	}

	if err := f.session.Pull(ctx); err != nil {
		f.logger.Warn("restoring cloud progress incomplete", slog.String("error", err.Error()))
	}

	f.markSynced(userID)
	f.ui.ReloadApp()
	f.setState(FlowSettled)

	return nil
}

// markSynced records the device sync marker, logging on failure. A
// missed marker means the flow may ask again next session, which is
// annoying but safe.
func (f *FirstSync) markSynced(userID string) {
	if err := f.store.MarkDeviceSynced(userID); err != nil {
		f.logger.Warn("recording device sync marker",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
