package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearConfigEnv unsets all config env vars so tests start clean.
func clearConfigEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"POKERANKR_API_URL",
		"POKERANKR_EMAIL",
		"POKERANKR_PASSWORD",
		"RANKSYNC_STATE_DB",
		"DEVICE_NAME",
		"ENVIRONMENT",
		"RANKSYNC_DEBOUNCE",
		"RANKSYNC_FIRST_SYNC_DELAY",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.pokerankr.app", cfg.APIURL)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 5*time.Second, cfg.SyncDebounce)
	assert.Equal(t, 2*time.Second, cfg.FirstSyncDelay)
	assert.NotEmpty(t, cfg.DeviceName, "device name should default to hostname")
}

func TestLoad_Credentials(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("POKERANKR_EMAIL", "ash@example.com")
	t.Setenv("POKERANKR_PASSWORD", "pikachu123")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ash@example.com", cfg.Email)
	assert.Equal(t, "pikachu123", cfg.Password)
}

func TestLoad_LoneEmailRejected(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("POKERANKR_EMAIL", "ash@example.com")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be set together")
}

func TestLoad_LonePasswordRejected(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("POKERANKR_PASSWORD", "pikachu123")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be set together")
}

func TestLoad_StateDBResolvedToAbsolute(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("RANKSYNC_STATE_DB", "state.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, len(cfg.StateDB) > 0 && cfg.StateDB[0] == '/',
		"state db path should be absolute, got %q", cfg.StateDB)
}

func TestLoad_ZeroDebounceRejected(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("RANKSYNC_DEBOUNCE", "0s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RANKSYNC_DEBOUNCE")
}

func TestLoad_NegativeFirstSyncDelayRejected(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("RANKSYNC_FIRST_SYNC_DELAY", "-1s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RANKSYNC_FIRST_SYNC_DELAY")
}

func TestLoad_DeviceNameOverride(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DEVICE_NAME", "living-room-pc")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "living-room-pc", cfg.DeviceName)
}

func TestIsProduction(t *testing.T) {
	cfg := &Config{Environment: "production"}
	assert.True(t, cfg.IsProduction())

	cfg.Environment = "development"
	assert.False(t, cfg.IsProduction())
}
