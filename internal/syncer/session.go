// Package syncer reconciles locally stored game progress with the
// remote copy kept per account. A Session owns the push and pull
// operations, the first-sync decision flow decides what happens the
// first time an account is used on a device that already has local
// progress, and the trigger schedules syncs off auth events.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pokerankr/ranksync/internal/auth"
	errs "github.com/pokerankr/ranksync/internal/errors"
	"github.com/pokerankr/ranksync/internal/progress"
	"github.com/pokerankr/ranksync/internal/remote"
	"github.com/pokerankr/ranksync/internal/store"
)

//go:generate mockgen -source=session.go -destination=session_mock_test.go -package=syncer

// RemoteStore is the per-table record API the sync session talks to.
// *remote.Client satisfies this interface.
type RemoteStore interface {
	FetchOne(ctx context.Context, table, userID string) (json.RawMessage, error)
	Insert(ctx context.Context, table, userID string, value json.RawMessage) error
	Update(ctx context.Context, table, userID string, value json.RawMessage) error
}

// UserSource reports the currently signed-in user. *auth.Service
// satisfies this interface.
type UserSource interface {
	CurrentUser() *auth.User
}

// Session coordinates sync runs for one device. At most one push or
// pull is in flight at a time; calls that arrive while a run is active
// return errs.ErrSyncInFlight immediately so callers can tell a
// skipped run from a completed one.
type Session struct {
	store  *store.Store
	remote RemoteStore
	users  UserSource
	logger *slog.Logger

	inFlight atomic.Bool
}

// NewSession creates a Session over the given local store and remote.
func NewSession(st *store.Store, rs RemoteStore, users UserSource, logger *slog.Logger) *Session {
	return &Session{
		store:  st,
		remote: rs,
		users:  users,
		logger: logger,
	}
}

// LastSyncAt returns when the last sync run finished, or the zero time
// if no run has completed yet. Informational only; no sync decision
// reads it.
func (s *Session) LastSyncAt() time.Time {
	return s.store.LastSyncAt()
}

// begin claims the in-flight guard. Returns false when another run
// holds it.
func (s *Session) begin(op string) bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("sync already in flight, skipping", slog.String("op", op))
		return false
	}

	return true
}

func (s *Session) end() {
	s.inFlight.Store(false)
}

// persist writes a category value to the local store, logging on
// failure. A failed local write is not fatal to the run; the next
// pull repairs it.
func (s *Session) persist(key, value string) {
	if err := s.store.Set(key, value); err != nil {
		s.logger.Warn("persisting category",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Session) markSynced() {
	if err := s.store.SetLastSyncAt(time.Now()); err != nil {
		s.logger.Warn("recording sync time", slog.String("error", err.Error()))
	}
}

// Push uploads local progress to the remote, merging with whatever the
// remote already holds so no remote-only progress is lost. Each
// category is pushed independently; a failing category is logged and
// the rest still run. Returns errs.ErrNoSession when nobody is signed
// in and errs.ErrSyncInFlight when another sync holds the guard; in
// both cases nothing was uploaded.
func (s *Session) Push(ctx context.Context) error {
	user := s.users.CurrentUser()
	if user == nil {
		s.logger.Debug("push skipped, not signed in")
		return errs.ErrNoSession
	}

	if !s.begin("push") {
		return errs.ErrSyncInFlight
	}
	defer s.end()

	categories := []struct {
		name string
		push func(ctx context.Context, userID string) error
	}{
		{store.KeyAchievements, s.pushAchievements},
		{store.KeyCompletions, s.pushCompletions},
		{store.KeySaveSlots, s.pushSlots},
		{store.KeyRankings, s.pushRankings},
	}

	failed := 0

	for _, cat := range categories {
		if err := cat.push(ctx, user.ID); err != nil {
			failed++

			s.logger.Warn("pushing category",
				slog.String("category", cat.name),
				slog.String("error", err.Error()),
			)
		}
	}

	s.markSynced()
	s.logger.Info("push finished",
		slog.String("user_id", user.ID),
		slog.Int("failed", failed),
	)

	if failed > 0 {
		return fmt.Errorf("pushing progress: %d of %d categories failed", failed, len(categories))
	}

	return nil
}

// pushAchievements uploads the local achievement map. Nothing happens
// when the local map is empty; there is no progress to protect and an
// empty upload could shrink the remote copy.
func (s *Session) pushAchievements(ctx context.Context, userID string) error {
	local := progress.DecodeAchievements(s.store.Get(store.KeyAchievements))
	if len(local) == 0 {
		return nil
	}

	remoteRaw, err := s.remote.FetchOne(ctx, remote.TableAchievements, userID)
	if err != nil {
		return fmt.Errorf("fetching remote achievements: %w", err)
	}

	if remoteRaw == nil {
		return s.remote.Insert(ctx, remote.TableAchievements, userID,
			json.RawMessage(progress.EncodeAchievements(local)))
	}

	merged, changed := progress.MergeAchievements(progress.DecodeAchievements(string(remoteRaw)), local)
	if !changed {
		return nil
	}

	return s.remote.Update(ctx, remote.TableAchievements, userID,
		json.RawMessage(progress.EncodeAchievements(merged)))
}

func (s *Session) pushCompletions(ctx context.Context, userID string) error {
	local := progress.DecodeCompletions(s.store.Get(store.KeyCompletions))
	if len(local) == 0 {
		return nil
	}

	remoteRaw, err := s.remote.FetchOne(ctx, remote.TableCompletions, userID)
	if err != nil {
		return fmt.Errorf("fetching remote completions: %w", err)
	}

	if remoteRaw == nil {
		return s.remote.Insert(ctx, remote.TableCompletions, userID,
			json.RawMessage(progress.EncodeCompletions(local)))
	}

	merged, changed := progress.MergeCompletions(progress.DecodeCompletions(string(remoteRaw)), local)
	if !changed {
		return nil
	}

	return s.remote.Update(ctx, remote.TableCompletions, userID,
		json.RawMessage(progress.EncodeCompletions(merged)))
}

func (s *Session) pushSlots(ctx context.Context, userID string) error {
	local := progress.DecodeSlots(s.store.Get(store.KeySaveSlots))
	if local.Empty() {
		return nil
	}

	remoteRaw, err := s.remote.FetchOne(ctx, remote.TableSaveSlots, userID)
	if err != nil {
		return fmt.Errorf("fetching remote save slots: %w", err)
	}

	if remoteRaw == nil {
		return s.remote.Insert(ctx, remote.TableSaveSlots, userID,
			json.RawMessage(progress.EncodeSlots(local)))
	}

	merged, changed := progress.MergeSlots(progress.DecodeSlots(string(remoteRaw)), local)
	if !changed {
		return nil
	}

	return s.remote.Update(ctx, remote.TableSaveSlots, userID,
		json.RawMessage(progress.EncodeSlots(merged)))
}

func (s *Session) pushRankings(ctx context.Context, userID string) error {
	local := progress.DecodeRankings(s.store.Get(store.KeyRankings))
	if len(local) == 0 {
		return nil
	}

	remoteRaw, err := s.remote.FetchOne(ctx, remote.TableRankings, userID)
	if err != nil {
		return fmt.Errorf("fetching remote rankings: %w", err)
	}

	if remoteRaw == nil {
		return s.remote.Insert(ctx, remote.TableRankings, userID,
			json.RawMessage(progress.EncodeRankings(local)))
	}

	merged, changed := progress.MergeRankings(progress.DecodeRankings(string(remoteRaw)), local)
	if !changed {
		return nil
	}

	return s.remote.Update(ctx, remote.TableRankings, userID,
		json.RawMessage(progress.EncodeRankings(merged)))
}

// Pull downloads remote progress, merges it into the local copy, and
// writes the merged result back to the local store. The four category
// fetches run concurrently; a failing fetch is logged and its category
// keeps its local value. Returns errs.ErrNoSession when nobody is
// signed in and errs.ErrSyncInFlight when another sync holds the
// guard; in both cases nothing changed.
func (s *Session) Pull(ctx context.Context) error {
	user := s.users.CurrentUser()
	if user == nil {
		s.logger.Debug("pull skipped, not signed in")
		return errs.ErrNoSession
	}

	if !s.begin("pull") {
		return errs.ErrSyncInFlight
	}
	defer s.end()

	var (
		achRaw  json.RawMessage
		compRaw json.RawMessage
		slotRaw json.RawMessage
		rankRaw json.RawMessage
	)

	fetches := []struct {
		table string
		dst   *json.RawMessage
	}{
		{remote.TableAchievements, &achRaw},
		{remote.TableCompletions, &compRaw},
		{remote.TableSaveSlots, &slotRaw},
		{remote.TableRankings, &rankRaw},
	}

	var failed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)

	for _, f := range fetches {
		g.Go(func() error {
			raw, err := s.remote.FetchOne(gctx, f.table, user.ID)
			if err != nil {
				failed.Add(1)

				s.logger.Warn("fetching category",
					slog.String("table", f.table),
					slog.String("error", err.Error()),
				)

				return nil
			}

			*f.dst = raw

			return nil
		})
	}

	// Fetch goroutines never return errors; failures are per-category.
	_ = g.Wait()

	if achRaw != nil {
		local := progress.DecodeAchievements(s.store.Get(store.KeyAchievements))
		merged, _ := progress.MergeAchievements(progress.DecodeAchievements(string(achRaw)), local)
		s.persist(store.KeyAchievements, progress.EncodeAchievements(merged))
	}

	if compRaw != nil {
		local := progress.DecodeCompletions(s.store.Get(store.KeyCompletions))
		merged, _ := progress.MergeCompletions(progress.DecodeCompletions(string(compRaw)), local)
		s.persist(store.KeyCompletions, progress.EncodeCompletions(merged))
	}

	// Save slots only restore onto a device with no slots of its own.
	// Merging slot arrays on pull could evict a run the player paused
	// on this device minutes ago, so the local array wins outright.
	if slotRaw != nil {
		local := progress.DecodeSlots(s.store.Get(store.KeySaveSlots))
		if local.Empty() {
			bounded, _ := progress.MergeSlots(progress.DecodeSlots(string(slotRaw)), progress.SlotArray{})
			if !bounded.Empty() {
				s.persist(store.KeySaveSlots, progress.EncodeSlots(bounded))
			}
		}
	}

	if rankRaw != nil {
		localRaw := s.store.Get(store.KeyRankings)

		local := progress.DecodeRankings(localRaw)
		if len(local) == 0 {
			// Nothing local to reconcile against, keep the remote
			// record byte for byte.
			s.persist(store.KeyRankings, string(rankRaw))
		} else {
			merged, _ := progress.MergeRankings(progress.DecodeRankings(string(rankRaw)), local)
			s.persist(store.KeyRankings, progress.EncodeRankings(merged))
		}
	}

	s.markSynced()
	s.logger.Info("pull finished",
		slog.String("user_id", user.ID),
		slog.Int("failed", int(failed.Load())),
	)

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("pulling progress: %d of %d categories failed", n, len(fetches))
	}

	return nil
}
