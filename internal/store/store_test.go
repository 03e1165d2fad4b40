package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := LoadAt(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// --- LoadAt / Close ---

func TestLoadAt_CreatesDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "state.db")
	s, err := LoadAt(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestLoadAt_ReopensExistingDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	s1, err := LoadAt(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.Set(KeyAchievements, `{"first_win":{}}`))
	require.NoError(t, s1.Close())

	s2, err := LoadAt(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	assert.Equal(t, `{"first_win":{}}`, s2.Get(KeyAchievements))
}

// --- Get / Set / Remove / Keys ---

func TestGet_EmptyByDefault(t *testing.T) {
	s := testDB(t)
	assert.Equal(t, "", s.Get(KeyRankings))
}

func TestSet_RoundTrip(t *testing.T) {
	s := testDB(t)
	require.NoError(t, s.Set(KeyCompletions, `[{"date":"2024-01-01","category":"gen1"}]`))
	assert.Equal(t, `[{"date":"2024-01-01","category":"gen1"}]`, s.Get(KeyCompletions))
}

func TestRemove(t *testing.T) {
	s := testDB(t)
	require.NoError(t, s.Set(KeySaveSlots, `[null,null,null]`))
	require.NoError(t, s.Remove(KeySaveSlots))
	assert.Equal(t, "", s.Get(KeySaveSlots))
}

func TestRemove_MissingKeyIsNoop(t *testing.T) {
	s := testDB(t)
	assert.NoError(t, s.Remove("never-set"))
}

func TestKeys_ListsProgressSpace(t *testing.T) {
	s := testDB(t)
	require.NoError(t, s.Set(KeyAchievements, "{}"))
	require.NoError(t, s.Set("cache.dex", "[]"))

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{KeyAchievements, "cache.dex"}, keys)
}

// --- HasProgress ---

func TestHasProgress_FalseWhenEmpty(t *testing.T) {
	s := testDB(t)
	assert.False(t, s.HasProgress())
}

func TestHasProgress_TrueWithAnyCategory(t *testing.T) {
	s := testDB(t)
	require.NoError(t, s.Set(KeyRankings, `[{"id":"r1"}]`))
	assert.True(t, s.HasProgress())
}

func TestHasProgress_CacheKeysDoNotCount(t *testing.T) {
	s := testDB(t)
	require.NoError(t, s.Set("cache.dex", "[]"))
	assert.False(t, s.HasProgress())
}

// --- ClearProgress ---

func TestClearProgress_RemovesCategories(t *testing.T) {
	s := testDB(t)
	for _, key := range CategoryKeys {
		require.NoError(t, s.Set(key, "{}"))
	}

	require.NoError(t, s.ClearProgress())

	for _, key := range CategoryKeys {
		assert.Equal(t, "", s.Get(key), "category %s should be cleared", key)
	}
}

func TestClearProgress_PreservesCacheKeys(t *testing.T) {
	s := testDB(t)
	require.NoError(t, s.Set(KeyAchievements, "{}"))
	require.NoError(t, s.Set("cache.dex", `["bulbasaur"]`))
	require.NoError(t, s.Set("cache.species", `{"1":"bulbasaur"}`))

	require.NoError(t, s.ClearProgress())

	assert.Equal(t, "", s.Get(KeyAchievements))
	assert.Equal(t, `["bulbasaur"]`, s.Get("cache.dex"))
	assert.Equal(t, `{"1":"bulbasaur"}`, s.Get("cache.species"))
}

func TestClearProgress_PreservesSession(t *testing.T) {
	s := testDB(t)
	require.NoError(t, s.SetToken("tok_abc"))
	require.NoError(t, s.Set(KeyRankings, "[]"))

	require.NoError(t, s.ClearProgress())

	assert.Equal(t, "tok_abc", s.Token())
}

// --- Session ---

func TestToken_EmptyByDefault(t *testing.T) {
	s := testDB(t)
	assert.Equal(t, "", s.Token())
}

func TestSetToken_RoundTrip(t *testing.T) {
	s := testDB(t)
	require.NoError(t, s.SetToken("tok_abc123"))
	assert.Equal(t, "tok_abc123", s.Token())
}

func TestUser_NilByDefault(t *testing.T) {
	s := testDB(t)
	u, err := s.User()
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestSetUser_RoundTrip(t *testing.T) {
	s := testDB(t)
	require.NoError(t, s.SetUser(SessionUser{ID: "u1", Email: "ash@example.com"}))

	u, err := s.User()
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "ash@example.com", u.Email)
}

func TestClearSession(t *testing.T) {
	s := testDB(t)
	require.NoError(t, s.SetToken("tok"))
	require.NoError(t, s.SetUser(SessionUser{ID: "u1"}))

	require.NoError(t, s.ClearSession())

	assert.Equal(t, "", s.Token())
	u, err := s.User()
	require.NoError(t, err)
	assert.Nil(t, u)
}

// --- Device sync marker ---

func TestDeviceSynced_FalseByDefault(t *testing.T) {
	s := testDB(t)
	assert.False(t, s.DeviceSynced("u1"))
}

func TestMarkDeviceSynced(t *testing.T) {
	s := testDB(t)
	require.NoError(t, s.MarkDeviceSynced("u1"))
	assert.True(t, s.DeviceSynced("u1"))
	assert.False(t, s.DeviceSynced("u2"), "marker is per user")
}

func TestDeviceSynced_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	s1, err := LoadAt(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.MarkDeviceSynced("u1"))
	require.NoError(t, s1.Close())

	s2, err := LoadAt(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	assert.True(t, s2.DeviceSynced("u1"))
}

// --- Last sync timestamp ---

func TestLastSyncAt_ZeroByDefault(t *testing.T) {
	s := testDB(t)
	assert.True(t, s.LastSyncAt().IsZero())
}

func TestSetLastSyncAt_RoundTrip(t *testing.T) {
	s := testDB(t)
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetLastSyncAt(at))
	assert.Equal(t, at, s.LastSyncAt())
}
