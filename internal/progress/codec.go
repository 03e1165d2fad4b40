package progress

import "encoding/json"

// The decoders below never fail. A missing, empty, or malformed raw
// value decodes to the category's empty value, so a corrupt record
// degrades to "nothing stored" instead of wedging a sync.

// DecodeAchievements parses a raw achievements record.
func DecodeAchievements(raw string) AchievementMap {
	m := make(AchievementMap)
	if raw == "" {
		return m
	}

	if err := json.Unmarshal([]byte(raw), &m); err != nil || m == nil {
		return make(AchievementMap)
	}

	return m
}

// EncodeAchievements renders an achievement map back to raw JSON.
func EncodeAchievements(m AchievementMap) string {
	if m == nil {
		m = make(AchievementMap)
	}

	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}

	return string(data)
}

// DecodeCompletions parses a raw completion history record.
func DecodeCompletions(raw string) []Completion {
	if raw == "" {
		return []Completion{}
	}

	var list []Completion
	if err := json.Unmarshal([]byte(raw), &list); err != nil || list == nil {
		return []Completion{}
	}

	return list
}

// EncodeCompletions renders a completion history back to raw JSON.
func EncodeCompletions(list []Completion) string {
	if list == nil {
		list = []Completion{}
	}

	data, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}

	return string(data)
}

// DecodeSlots parses a raw save-slot record into the fixed 3-slot
// array. Arrays of any length are accepted; extra entries are dropped
// and short arrays leave trailing slots empty.
func DecodeSlots(raw string) SlotArray {
	var out SlotArray
	if raw == "" {
		return out
	}

	var list []*SaveSlot
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return SlotArray{}
	}

	for i := 0; i < len(list) && i < SlotCount; i++ {
		out[i] = list[i]
	}

	return out
}

// EncodeSlots renders the slot array back to raw JSON. Empty slots
// encode as null so slot positions stay stable.
func EncodeSlots(slots SlotArray) string {
	data, err := json.Marshal(slots)
	if err != nil {
		return "[null,null,null]"
	}

	return string(data)
}

// DecodeRankings parses a raw saved-rankings record.
func DecodeRankings(raw string) []Ranking {
	if raw == "" {
		return []Ranking{}
	}

	var list []Ranking
	if err := json.Unmarshal([]byte(raw), &list); err != nil || list == nil {
		return []Ranking{}
	}

	return list
}

// EncodeRankings renders a ranking set back to raw JSON.
func EncodeRankings(list []Ranking) string {
	if list == nil {
		list = []Ranking{}
	}

	data, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}

	return string(data)
}
