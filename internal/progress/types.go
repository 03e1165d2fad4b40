// Package progress defines the four synced game-data categories, the
// codec that moves them between opaque JSON and typed values, and the
// pure merge policies that reconcile a local copy with a remote copy.
//
// Records are treated as opaque JSON owned by the PokeRankr app: only
// the identity fields the merge rules need are extracted, and the raw
// bytes are carried through so auxiliary payload survives a sync
// round trip untouched.
package progress

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// SlotCount is the fixed capacity of the save-slot array.
const SlotCount = 3

// AchievementMap maps achievement keys to their opaque unlock records.
type AchievementMap map[string]json.RawMessage

// Completion is one completed ranking run. Identity for merge purposes
// is the (date, category) pair; everything else rides along in raw.
type Completion struct {
	Date     string
	Category string

	raw json.RawMessage
}

// Identity returns the dedup key for a completion event.
func (c Completion) Identity() string {
	return c.Date + "|" + c.Category
}

// UnmarshalJSON captures the raw record and extracts identity fields.
func (c *Completion) UnmarshalJSON(data []byte) error {
	c.raw = append(json.RawMessage(nil), data...)
	c.Date = gjson.GetBytes(data, "date").String()
	c.Category = gjson.GetBytes(data, "category").String()

	return nil
}

// MarshalJSON emits the original record when one was decoded, so
// auxiliary payload is preserved verbatim.
func (c Completion) MarshalJSON() ([]byte, error) {
	if len(c.raw) > 0 {
		return c.raw, nil
	}

	return json.Marshal(struct {
		Date     string `json:"date"`
		Category string `json:"category"`
	}{c.Date, c.Category})
}

// SaveSlot is one paused in-progress run. Identity for merge purposes
// is the (savedAt, a.id, b.id) triple of the saved matchup.
type SaveSlot struct {
	SavedAt  int64 // epoch milliseconds; 0 when the record carries none
	MatchupA string
	MatchupB string

	raw json.RawMessage
}

// Identity returns the dedup key for a slot snapshot.
func (s SaveSlot) Identity() string {
	return fmt.Sprintf("%d|%s|%s", s.SavedAt, s.MatchupA, s.MatchupB)
}

// UnmarshalJSON captures the raw snapshot and extracts identity fields.
// Matchup ids may be numbers or strings in the wild; both normalize to
// their string form.
func (s *SaveSlot) UnmarshalJSON(data []byte) error {
	s.raw = append(json.RawMessage(nil), data...)
	s.SavedAt = timestampMillis(gjson.GetBytes(data, "meta.savedAt"))
	s.MatchupA = gjson.GetBytes(data, "currentMatchup.a.id").String()
	s.MatchupB = gjson.GetBytes(data, "currentMatchup.b.id").String()

	return nil
}

// MarshalJSON emits the original snapshot when one was decoded.
func (s SaveSlot) MarshalJSON() ([]byte, error) {
	if len(s.raw) > 0 {
		return s.raw, nil
	}

	type id struct {
		ID string `json:"id"`
	}

	return json.Marshal(struct {
		Meta struct {
			SavedAt int64 `json:"savedAt"`
		} `json:"meta"`
		CurrentMatchup struct {
			A id `json:"a"`
			B id `json:"b"`
		} `json:"currentMatchup"`
	}{
		Meta: struct {
			SavedAt int64 `json:"savedAt"`
		}{s.SavedAt},
		CurrentMatchup: struct {
			A id `json:"a"`
			B id `json:"b"`
		}{id{s.MatchupA}, id{s.MatchupB}},
	})
}

// SlotArray is the fixed 3-slot save array. Populated slots occupy the
// lowest indices; nil means empty.
type SlotArray [SlotCount]*SaveSlot

// Empty reports whether no slot is populated.
func (a SlotArray) Empty() bool {
	for _, s := range a {
		if s != nil {
			return false
		}
	}

	return true
}

// Populated returns the number of non-empty slots.
func (a SlotArray) Populated() int {
	n := 0

	for _, s := range a {
		if s != nil {
			n++
		}
	}

	return n
}

// Ranking is one completed ranking result. Key is the canonical
// identity used to detect the same ranking across sources; Timestamp
// is the effective recency used to pick a survivor on conflict.
type Ranking struct {
	Key       string
	Timestamp int64 // epoch milliseconds

	raw json.RawMessage
}

// UnmarshalJSON captures the raw record and derives the canonical key
// and effective timestamp.
func (r *Ranking) UnmarshalJSON(data []byte) error {
	r.raw = append(json.RawMessage(nil), data...)
	r.Key = canonicalKey(data)
	r.Timestamp = effectiveTimestamp(data, time.Now())

	return nil
}

// MarshalJSON emits the original record when one was decoded.
func (r Ranking) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}

	return json.Marshal(struct {
		Key          string `json:"key"`
		LastModified int64  `json:"lastModified"`
	}{r.Key, r.Timestamp})
}

// canonicalKey derives the identity of a ranking record: explicit key,
// else explicit id, else a composite of category and the shiny flags.
func canonicalKey(data []byte) string {
	if key := gjson.GetBytes(data, "key"); key.Exists() && key.String() != "" {
		return key.String()
	}

	if id := gjson.GetBytes(data, "id"); id.Exists() && id.String() != "" {
		return id.String()
	}

	category := gjson.GetBytes(data, "category").String()
	includeShinies := gjson.GetBytes(data, "includeShinies").Bool()
	shinyOnly := gjson.GetBytes(data, "shinyOnly").Bool()

	return fmt.Sprintf("%s_%t_%t", category, includeShinies, shinyOnly)
}

// effectiveTimestamp resolves a ranking record's recency: lastModified,
// else date, else now.
func effectiveTimestamp(data []byte, now time.Time) int64 {
	if ts := timestampMillis(gjson.GetBytes(data, "lastModified")); ts != 0 {
		return ts
	}

	if ts := timestampMillis(gjson.GetBytes(data, "date")); ts != 0 {
		return ts
	}

	return now.UnixMilli()
}

// timestampMillis converts a JSON timestamp field to epoch milliseconds.
// Numbers are taken as epoch milliseconds; strings are parsed as
// RFC 3339. Anything else yields 0.
func timestampMillis(v gjson.Result) int64 {
	switch v.Type {
	case gjson.Number:
		return v.Int()
	case gjson.String:
		t, err := time.Parse(time.RFC3339, v.String())
		if err != nil {
			return 0
		}

		return t.UnixMilli()
	default:
		return 0
	}
}
