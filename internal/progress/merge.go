package progress

import (
	"bytes"
	"sort"
)

// The merge functions are pure. Each takes the remote copy first and
// the local copy second, returns the merged value plus a changed flag
// reporting whether the merged value differs from the remote input,
// and never mutates either argument.

// MergeAchievements unions two achievement maps. On a key collision
// the local record wins.
func MergeAchievements(remote, local AchievementMap) (AchievementMap, bool) {
	merged := make(AchievementMap, len(remote)+len(local))
	for k, v := range remote {
		merged[k] = v
	}

	changed := false

	for k, v := range local {
		prev, ok := merged[k]
		if !ok || !bytes.Equal(prev, v) {
			changed = true
		}

		merged[k] = v
	}

	return merged, changed
}

// MergeCompletions concatenates remote history before local history and
// drops duplicate (date, category) events, keeping the first
// occurrence of each.
func MergeCompletions(remote, local []Completion) ([]Completion, bool) {
	merged := make([]Completion, 0, len(remote)+len(local))
	seen := make(map[string]struct{}, len(remote)+len(local))

	for _, c := range append(append([]Completion{}, remote...), local...) {
		id := c.Identity()
		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}

		merged = append(merged, c)
	}

	return merged, !sameCompletions(merged, remote)
}

func sameCompletions(a, b []Completion) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i].Identity() != b[i].Identity() {
			return false
		}
	}

	return true
}

// MergeSlots combines two slot arrays into the three most recent
// distinct snapshots. Remote slots are considered before local ones,
// duplicates by (savedAt, matchup) are dropped, and the survivors are
// ordered newest first and packed into the low slots. The stable sort
// keeps a remote snapshot ahead of a local one saved at the same
// instant.
func MergeSlots(remote, local SlotArray) (SlotArray, bool) {
	candidates := make([]*SaveSlot, 0, 2*SlotCount)
	seen := make(map[string]struct{}, 2*SlotCount)

	for _, arr := range []SlotArray{remote, local} {
		for _, s := range arr {
			if s == nil {
				continue
			}

			id := s.Identity()
			if _, ok := seen[id]; ok {
				continue
			}

			seen[id] = struct{}{}

			candidates = append(candidates, s)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].SavedAt > candidates[j].SavedAt
	})

	var merged SlotArray

	for i := 0; i < len(candidates) && i < SlotCount; i++ {
		merged[i] = candidates[i]
	}

	return merged, !sameSlots(merged, remote)
}

func sameSlots(a, b SlotArray) bool {
	for i := range a {
		switch {
		case a[i] == nil && b[i] == nil:
		case a[i] == nil || b[i] == nil:
			return false
		case a[i].Identity() != b[i].Identity():
			return false
		}
	}

	return true
}

// MergeRankings unions two ranking sets by canonical key. When both
// sides hold the same ranking, the local copy replaces the remote one
// only if its effective timestamp is strictly newer. Remote ordering is
// preserved; rankings only the local side has are appended after.
func MergeRankings(remote, local []Ranking) ([]Ranking, bool) {
	merged := make([]Ranking, 0, len(remote)+len(local))
	index := make(map[string]int, len(remote)+len(local))

	for _, r := range remote {
		if _, ok := index[r.Key]; ok {
			continue
		}

		index[r.Key] = len(merged)

		merged = append(merged, r)
	}

	changed := len(merged) != len(remote)

	for _, l := range local {
		i, ok := index[l.Key]
		if !ok {
			index[l.Key] = len(merged)

			merged = append(merged, l)
			changed = true

			continue
		}

		if l.Timestamp > merged[i].Timestamp {
			merged[i] = l
			changed = true
		}
	}

	return merged, changed
}
