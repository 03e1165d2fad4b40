// Package store is the device-local persistent store: a synchronous
// string key-value space backed by bbolt. It holds the mirrored game
// progress categories, the cached session, and per-user device sync
// markers. It is the only writer of the database while the app runs,
// so no locking beyond bbolt's own transactions is needed.
package store

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.ranksync/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

// Progress category keys. These mirror the keys the PokeRankr web app
// uses in its own local storage, so a record synced down here matches
// what the app reads after a reload.
const (
	KeyAchievements = "achievements"
	KeyCompletions  = "completions"
	KeySaveSlots    = "saveSlots"
	KeyRankings     = "rankings"
)

// CategoryKeys lists the four game-data category keys in sync order.
var CategoryKeys = []string{KeyAchievements, KeyCompletions, KeySaveSlots, KeyRankings}

// cachePrefix marks progress-bucket keys that hold derived species/dex
// caches rather than user progress. They survive a progress clear.
const cachePrefix = "cache."

var (
	progressBucket = []byte("progress")
	sessionBucket  = []byte("session")
	metaBucket     = []byte("meta")

	tokenKey    = []byte("token")
	userKey     = []byte("user")
	lastSyncKey = []byte("lastSync")
)

func syncedKey(userID string) []byte {
	return []byte("synced:" + userID)
}

// SessionUser is the cached identity of the signed-in account.
type SessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Store wraps a bbolt database for all persistent application state.
type Store struct {
	db *bolt.DB
}

// Load opens the state database at ~/.ranksync/state.db, creating it
// if it does not exist. All buckets are created on open.
func Load() (*Store, error) {
	return LoadAt(dbPath())
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. Useful for tests that need an isolated database.
func LoadAt(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{progressBucket, sessionBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the progress value stored under key, or empty string.
func (s *Store) Get(key string) string {
	var value string

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(progressBucket).Get([]byte(key))
		if v != nil {
			value = string(v)
		}

		return nil
	})

	return value
}

// Set stores a progress value under key.
func (s *Store) Set(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(progressBucket).Put([]byte(key), []byte(value))
	})
}

// Remove deletes the progress value stored under key.
func (s *Store) Remove(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(progressBucket).Delete([]byte(key))
	})
}

// Keys returns all keys in the progress space, sorted by bbolt's
// natural byte order.
func (s *Store) Keys() ([]string, error) {
	var keys []string

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(progressBucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing progress keys: %w", err)
	}

	return keys, nil
}

// HasProgress reports whether any game-data category holds a value.
// Cache keys do not count as progress.
func (s *Store) HasProgress() bool {
	for _, key := range CategoryKeys {
		if s.Get(key) != "" {
			return true
		}
	}

	return false
}

// ClearProgress removes all game-data keys from the progress space.
// Cache keys (the species/dex caches) are preserved; session state
// lives in its own bucket and is untouched.
func (s *Store) ClearProgress() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(progressBucket)

		var doomed [][]byte

		err := b.ForEach(func(k, _ []byte) error {
			if !strings.HasPrefix(string(k), cachePrefix) {
				doomed = append(doomed, append([]byte(nil), k...))
			}

			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		return nil
	})
}

// Token returns the cached session token, or empty string.
func (s *Store) Token() string {
	var token string

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionBucket).Get(tokenKey)
		if v != nil {
			token = string(v)
		}

		return nil
	})

	return token
}

// SetToken persists the session token.
func (s *Store) SetToken(token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Put(tokenKey, []byte(token))
	})
}

// User returns the cached session user, or nil when signed out.
func (s *Store) User() (*SessionUser, error) {
	var u *SessionUser

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionBucket).Get(userKey)
		if v == nil {
			return nil
		}

		u = &SessionUser{}

		return json.Unmarshal(v, u)
	})
	if err != nil {
		return nil, fmt.Errorf("decoding session user: %w", err)
	}

	return u, nil
}

// SetUser persists the session user.
func (s *Store) SetUser(u SessionUser) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(u)
		if err != nil {
			return err
		}

		return tx.Bucket(sessionBucket).Put(userKey, data)
	})
}

// ClearSession removes the cached token and user.
func (s *Store) ClearSession() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionBucket)
		if err := b.Delete(tokenKey); err != nil {
			return err
		}

		return b.Delete(userKey)
	})
}

// DeviceSynced reports whether the given user has completed a first-sync
// decision on this device.
func (s *Store) DeviceSynced(userID string) bool {
	var synced bool

	_ = s.db.View(func(tx *bolt.Tx) error {
		synced = tx.Bucket(metaBucket).Get(syncedKey(userID)) != nil
		return nil
	})

	return synced
}

// MarkDeviceSynced records that the given user has completed a first-sync
// decision on this device. Never cleared by the sync engine itself.
func (s *Store) MarkDeviceSynced(userID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Put(syncedKey(userID), []byte("1"))
	})
}

// LastSyncAt returns the time of the last completed sync, or the zero
// time when no sync has run. Informational only.
func (s *Store) LastSyncAt() time.Time {
	var at time.Time

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(metaBucket).Get(lastSyncKey)
		if v == nil {
			return nil
		}

		t, err := time.Parse(time.RFC3339, string(v))
		if err == nil {
			at = t
		}

		return nil
	})

	return at
}

// SetLastSyncAt records the time of the last completed sync.
func (s *Store) SetLastSyncAt(at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Put(lastSyncKey, []byte(at.UTC().Format(time.RFC3339)))
	})
}

func dbPath() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		// Fail loudly rather than silently writing to the current directory
		// where the database (containing a session token) might end up with
		// wrong permissions or inside a source-controlled tree.
		fmt.Fprintf(os.Stderr, "fatal: cannot determine home directory: %v\n", err)
		os.Exit(1)
	}

	return filepath.Join(dir, ".ranksync", "state.db")
}
