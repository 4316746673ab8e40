package db

import (
	"cmp"
	"slices"
	"time"
)

// LogEntryType tags a LogEntry.
type LogEntryType string

// Log entry types.
const (
	LogEntryAchievement LogEntryType = "Achievement"
	LogEntryFirstPlay   LogEntryType = "FirstPlay"
)

// LogEntry is one line of the activity log: an achievement unlock or a first play.
// It is a read-time projection and never stored.
type LogEntry struct {
	Type            LogEntryType `json:"type"`
	AppID           int64        `json:"appid"`
	APIName         string       `json:"apiname,omitempty"`
	GameName        string       `json:"game_name"`
	AchievementName string       `json:"achievement_name,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
	AchievementIcon string       `json:"achievement_icon,omitempty"`
	GameIconURL     *string      `json:"game_icon_url"`
}

// FirstPlayEntry converts a first play into a log entry.
func FirstPlayEntry(fp FirstPlay) LogEntry {
	return LogEntry{
		Type:        LogEntryFirstPlay,
		AppID:       fp.AppID,
		GameName:    fp.GameName,
		Timestamp:   fp.PlayedAt,
		GameIconURL: fp.GameIconURL,
	}
}

// MergeLogEntries merges unlock and first-play entries, newest first, and
// keeps at most limit entries. Unlocks sort before first plays at equal times.
func MergeLogEntries(unlocks, firstPlays []LogEntry, limit int) []LogEntry {
	entries := make([]LogEntry, 0, len(unlocks)+len(firstPlays))
	entries = append(entries, unlocks...)
	entries = append(entries, firstPlays...)

	slices.SortStableFunc(entries, func(a, b LogEntry) int {
		return cmp.Compare(b.Timestamp.UnixNano(), a.Timestamp.UnixNano())
	})

	if limit >= 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
