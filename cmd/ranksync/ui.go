package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/pokerankr/ranksync/internal/progress"
	"github.com/pokerankr/ranksync/internal/store"
	"github.com/pokerankr/ranksync/internal/syncer"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(14)
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
)

// terminalUI answers the first-sync decision flow on the terminal.
type terminalUI struct {
	logger *slog.Logger
}

func newTerminalUI(logger *slog.Logger) *terminalUI {
	return &terminalUI{logger: logger}
}

func (u *terminalUI) PromptMergeOrReplace(ctx context.Context) (syncer.Choice, error) {
	var choice syncer.Choice

	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[syncer.Choice]().
			Title("This device already has PokeRankr progress").
			Description("Your account also has progress in the cloud. What should happen to the progress on this device?").
			Options(
				huh.NewOption("Merge it into my account", syncer.ChoiceMerge),
				huh.NewOption("Replace it with my account's cloud progress", syncer.ChoiceReplace),
			).
			Value(&choice),
	))

	if err := form.RunWithContext(ctx); err != nil {
		return "", fmt.Errorf("running decision form: %w", err)
	}

	return choice, nil
}

func (u *terminalUI) NotifySyncFailed() {
	fmt.Println(warnStyle.Render("Your progress could not be uploaded. Nothing was discarded; it will be retried on your next sign-in."))
}

func (u *terminalUI) ReloadApp() {
	u.logger.Info("local progress rewritten, app will pick it up on next load")
}

// status prints the cached session and a summary of local progress.
func (a *app) status(_ context.Context) error {
	fmt.Println(titleStyle.Render("ranksync " + Version))

	user, err := a.store.User()
	if err != nil {
		a.logger.Warn("reading cached session", slog.String("error", err.Error()))
	}

	account := "signed out"
	if user != nil {
		account = user.Email
	}

	row := func(label, value string) {
		fmt.Println(labelStyle.Render(label) + value)
	}

	row("account", account)
	row("device", a.cfg.DeviceName)

	if at := a.store.LastSyncAt(); at.IsZero() {
		row("last sync", "never")
	} else {
		row("last sync", at.Local().Format("2006-01-02 15:04:05"))
	}

	if user != nil {
		if a.store.DeviceSynced(user.ID) {
			row("first sync", "settled")
		} else {
			row("first sync", "pending")
		}
	}

	achievements := progress.DecodeAchievements(a.store.Get(store.KeyAchievements))
	completions := progress.DecodeCompletions(a.store.Get(store.KeyCompletions))
	slots := progress.DecodeSlots(a.store.Get(store.KeySaveSlots))
	rankings := progress.DecodeRankings(a.store.Get(store.KeyRankings))

	row("achievements", fmt.Sprintf("%d", len(achievements)))
	row("completions", fmt.Sprintf("%d", len(completions)))
	row("save slots", fmt.Sprintf("%d of %d", slots.Populated(), progress.SlotCount))
	row("rankings", fmt.Sprintf("%d", len(rankings)))

	return nil
}

// wipe clears local game progress after confirmation. The derived
// species and dex caches are kept; they are rebuilt data, not progress.
func (a *app) wipe(ctx context.Context) error {
	if !a.store.HasProgress() {
		fmt.Println("no local progress to wipe")
		return nil
	}

	var confirmed bool

	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Wipe local progress?").
			Description("Achievements, completions, save slots and rankings on this device will be deleted. Cloud progress is untouched.").
			Value(&confirmed),
	))

	if err := form.RunWithContext(ctx); err != nil {
		return fmt.Errorf("running confirm form: %w", err)
	}

	if !confirmed {
		fmt.Println("aborted")
		return nil
	}

	if err := a.store.ClearProgress(); err != nil {
		return fmt.Errorf("wiping local progress: %w", err)
	}

	fmt.Println("local progress wiped")

	return nil
}
