// Package auth manages the account session: sign-in/out against the
// remote API, token persistence in the local store, and a typed
// publish/subscribe feed of session transitions. Subscribers get the
// current state once on subscribe (when known) and every transition
// afterwards; nil means signed out.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	errs "github.com/pokerankr/ranksync/internal/errors"
	"github.com/pokerankr/ranksync/internal/remote"
	"github.com/pokerankr/ranksync/internal/store"
)

// subBuffer is the per-subscriber channel buffer. A subscriber that
// falls this far behind misses intermediate transitions but always
// receives the latest one eventually.
const subBuffer = 4

// User is the signed-in account identity.
type User struct {
	ID    string
	Email string
}

// Service holds the session and fans out transitions to subscribers.
type Service struct {
	client *remote.Client
	store  *store.Store
	device string
	logger *slog.Logger

	mu          sync.Mutex
	user        *User
	initialized bool
	nextSubID   int
	subs        map[int]chan *User
}

// NewService creates a session service. The session starts unknown;
// call Restore or SignIn to initialize it.
func NewService(client *remote.Client, st *store.Store, device string, logger *slog.Logger) *Service {
	return &Service{
		client: client,
		store:  st,
		device: device,
		logger: logger,
		subs:   make(map[int]chan *User),
	}
}

// CurrentUser returns the signed-in user, or nil.
func (s *Service) CurrentUser() *User {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.user
}

// Subscribe registers for session transitions. If the session state is
// already known, the current value is delivered immediately. The
// returned function unsubscribes and closes the channel.
func (s *Service) Subscribe() (<-chan *User, func()) {
	s.mu.Lock()

	id := s.nextSubID
	s.nextSubID++

	ch := make(chan *User, subBuffer)
	s.subs[id] = ch

	if s.initialized {
		ch <- s.user
	}

	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}

	return ch, unsubscribe
}

// setUser records the new session state and notifies subscribers.
func (s *Service) setUser(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = u
	s.initialized = true

	for id, ch := range s.subs {
		select {
		case ch <- u:
			continue
		default:
		}

		// Subscriber is not draining. Evict its oldest buffered
		// transition so the latest still lands.
		s.logger.Warn("subscriber lagging, dropping oldest session notification",
			slog.Int("subscriber", id))

		select {
		case <-ch:
		default:
		}

		select {
		case ch <- u:
		default:
		}
	}
}

// Restore validates a cached session token, if any. A stale token is
// discarded silently; the session then starts signed out. Any other
// failure (network) is returned so the caller can retry later.
func (s *Service) Restore(ctx context.Context) error {
	token := s.store.Token()
	if token == "" {
		s.setUser(nil)
		return nil
	}

	s.client.SetToken(token)

	resp, err := s.client.Session(ctx, token)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidToken) {
			s.logger.Info("cached session expired, sign-in required")

			s.client.SetToken("")

			if clearErr := s.store.ClearSession(); clearErr != nil {
				s.logger.Warn("clearing stale session", slog.String("error", clearErr.Error()))
			}

			s.setUser(nil)

			return nil
		}

		return fmt.Errorf("restoring session: %w", err)
	}

	s.adopt(token, resp.User)

	return nil
}

// SignIn authenticates with the remote API and persists the session.
func (s *Service) SignIn(ctx context.Context, email, password string) error {
	resp, err := s.client.SignIn(ctx, email, password, s.device)
	if err != nil {
		return err
	}

	s.adopt(resp.Token, resp.User)

	return nil
}

// SignUp creates an account and signs in as it.
func (s *Service) SignUp(ctx context.Context, email, password string) error {
	resp, err := s.client.SignUp(ctx, email, password, s.device)
	if err != nil {
		return err
	}

	s.adopt(resp.Token, resp.User)

	return nil
}

// SignOut invalidates the session remotely and locally. The local
// session is cleared even when the remote call fails; the token is
// short-lived server-side anyway.
func (s *Service) SignOut(ctx context.Context) error {
	token := s.store.Token()

	if token != "" {
		if err := s.client.SignOut(ctx, token); err != nil {
			s.logger.Warn("remote sign-out failed", slog.String("error", err.Error()))
		}
	}

	s.client.SetToken("")

	if err := s.store.ClearSession(); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}

	s.setUser(nil)

	return nil
}

// adopt persists and publishes a fresh session.
func (s *Service) adopt(token string, u remote.User) {
	s.client.SetToken(token)

	if err := s.store.SetToken(token); err != nil {
		s.logger.Warn("persisting session token", slog.String("error", err.Error()))
	}

	if err := s.store.SetUser(store.SessionUser{ID: u.ID, Email: u.Email}); err != nil {
		s.logger.Warn("persisting session user", slog.String("error", err.Error()))
	}

	s.logger.Info("signed in", slog.String("user_id", u.ID), slog.String("email", u.Email))
	s.setUser(&User{ID: u.ID, Email: u.Email})
}
