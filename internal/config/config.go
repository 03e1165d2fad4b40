package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for ranksync.
type Config struct {
	// Base URL of the PokeRankr API. The default points at the hosted
	// service; self-hosters override it.
	APIURL string `env:"POKERANKR_API_URL" envDefault:"https://api.pokerankr.app"`

	// Account credentials. Only needed when no session token is cached
	// in the state database yet; both must be set together.
	Email    string `env:"POKERANKR_EMAIL"`
	Password string `env:"POKERANKR_PASSWORD"`

	// Path of the local state database. Empty means
	// ~/.ranksync/state.db.
	StateDB string `env:"RANKSYNC_STATE_DB"`

	// Device name this client identifies as. Defaults to system hostname.
	DeviceName string `env:"DEVICE_NAME"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// SyncDebounce is the window in which repeated sign-in notifications
	// for the same user are coalesced into one sync.
	SyncDebounce time.Duration `env:"RANKSYNC_DEBOUNCE" envDefault:"5s"`

	// FirstSyncDelay postpones the interactive first-sync decision after
	// sign-in so startup output settles before the prompt appears.
	FirstSyncDelay time.Duration `env:"RANKSYNC_FIRST_SYNC_DELAY" envDefault:"2s"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DeviceName == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "ranksync"
		}

		cfg.DeviceName = hostname
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.StateDB != "" {
		abs, err := filepath.Abs(cfg.StateDB)
		if err != nil {
			return nil, fmt.Errorf("resolving state db to absolute path: %w", err)
		}

		cfg.StateDB = abs
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("POKERANKR_API_URL must not be empty")
	}

	// Credentials are optional (a cached session may exist), but a lone
	// email or password is always a configuration mistake.
	if (c.Email == "") != (c.Password == "") {
		return fmt.Errorf("POKERANKR_EMAIL and POKERANKR_PASSWORD must be set together")
	}

	if c.SyncDebounce <= 0 {
		return fmt.Errorf("RANKSYNC_DEBOUNCE must be positive")
	}

	if c.FirstSyncDelay < 0 {
		return fmt.Errorf("RANKSYNC_FIRST_SYNC_DELAY must not be negative")
	}

	return nil
}

// DefaultStateDB returns the default state database path:
// ~/.ranksync/state.db
func DefaultStateDB() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".ranksync", "state.db"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
