package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/pokerankr/ranksync/internal/auth"
	"github.com/pokerankr/ranksync/internal/config"
	errs "github.com/pokerankr/ranksync/internal/errors"
	"github.com/pokerankr/ranksync/internal/logging"
	"github.com/pokerankr/ranksync/internal/remote"
	"github.com/pokerankr/ranksync/internal/store"
	"github.com/pokerankr/ranksync/internal/syncer"
)

var Version = "dev"

func main() {
	cmd := "daemon"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	if err := run(cmd); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	switch cmd {
	case "daemon":
		return app.daemon(ctx)
	case "push":
		return app.oneShot(ctx, app.session.Push)
	case "pull":
		return app.oneShot(ctx, app.session.Pull)
	case "status":
		return app.status(ctx)
	case "signout":
		return app.signOut(ctx)
	case "wipe":
		return app.wipe(ctx)
	default:
		return fmt.Errorf("unknown command %q (expected daemon, push, pull, status, signout, or wipe)", cmd)
	}
}

// app bundles the wired components shared by all subcommands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	auth    *auth.Service
	session *syncer.Session
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	dbPath := cfg.StateDB
	if dbPath == "" {
		p, err := config.DefaultStateDB()
		if err != nil {
			return nil, fmt.Errorf("resolving state db path: %w", err)
		}

		dbPath = p
	}

	st, err := store.LoadAt(dbPath)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	client := remote.NewClient(cfg.APIURL, nil)
	authSvc := auth.NewService(client, st, cfg.DeviceName, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		auth:    authSvc,
		session: syncer.NewSession(st, client, authSvc, logger),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing state db", slog.String("error", err.Error()))
	}
}

// signIn restores the cached session, falling back to the configured
// credentials when the cached token is gone or expired.
func (a *app) signIn(ctx context.Context) error {
	if err := a.auth.Restore(ctx); err != nil {
		a.logger.Warn("restoring session", slog.String("error", err.Error()))
	}

	if a.auth.CurrentUser() != nil {
		return nil
	}

	if a.cfg.Email == "" {
		return fmt.Errorf("no cached session: %w (set POKERANKR_EMAIL and POKERANKR_PASSWORD)", errs.ErrNoSession)
	}

	a.logger.Info("signing in", slog.String("email", a.cfg.Email))

	if err := a.auth.SignIn(ctx, a.cfg.Email, a.cfg.Password); err != nil {
		return fmt.Errorf("signing in: %w", err)
	}

	return nil
}

// daemon keeps a session alive and syncs on auth events until the
// process is signalled.
func (a *app) daemon(ctx context.Context) error {
	a.logger.Info("ranksync starting",
		slog.String("version", Version),
		slog.String("device", a.cfg.DeviceName),
		slog.String("api", a.cfg.APIURL),
	)

	ui := newTerminalUI(a.logger)
	flow := syncer.NewFirstSync(a.session, a.store, ui, a.logger)
	trigger := syncer.NewTrigger(a.session, flow, a.store, a.cfg.SyncDebounce, a.cfg.FirstSyncDelay, a.logger)

	// Subscribe before signing in so the sign-in event reaches the
	// trigger.
	events, unsubscribe := a.auth.Subscribe()
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return trigger.Run(gctx, events)
	})

	if err := a.signIn(gctx); err != nil {
		return err
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		a.logger.Info("ranksync stopping")
		return nil
	}

	return err
}

// oneShot signs in and runs a single push or pull.
func (a *app) oneShot(ctx context.Context, op func(context.Context) error) error {
	if err := a.signIn(ctx); err != nil {
		return err
	}

	return op(ctx)
}

func (a *app) signOut(ctx context.Context) error {
	if a.auth.CurrentUser() == nil {
		if err := a.auth.Restore(ctx); err != nil {
			a.logger.Warn("restoring session", slog.String("error", err.Error()))
		}
	}

	if err := a.auth.SignOut(ctx); err != nil {
		return fmt.Errorf("signing out: %w", err)
	}

	fmt.Println("signed out")

	return nil
}
