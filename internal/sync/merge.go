package sync

import (
	"context"
	"time"

	"github.com/justestif/go-overachiever/internal/db"
	"github.com/justestif/go-overachiever/internal/steam"
)

// MergeResult holds a game's counts after a merge.
type MergeResult struct {
	Unlocked int
	Total    int
}

// BuildMerge combines fetched progress with the fetched schema for one game.
// The schema decides which achievements exist; progress is looked up by API
// name and missing entries are locked. When the schema is empty but progress is
// not, the progress list is used as the achievement set. An API name listed
// twice counts once, with its first definition.
func BuildMerge(appID int64, progress []steam.PlayerAchievement, schema []steam.SchemaAchievement) ([]db.AchievementState, []db.SchemaEntry, MergeResult) {
	byName := make(map[string]steam.PlayerAchievement, len(progress))
	for _, p := range progress {
		byName[p.APIName] = p
	}

	if len(schema) == 0 {
		schema = make([]steam.SchemaAchievement, 0, len(progress))
		for _, p := range progress {
			schema = append(schema, steam.SchemaAchievement{Name: p.APIName, DisplayName: p.APIName})
		}
	}

	states := make([]db.AchievementState, 0, len(schema))
	entries := make([]db.SchemaEntry, 0, len(schema))
	seen := make(map[string]struct{}, len(schema))
	var result MergeResult

	for _, sa := range schema {
		if _, dup := seen[sa.Name]; dup {
			continue
		}
		seen[sa.Name] = struct{}{}

		entries = append(entries, schemaEntry(appID, sa))

		state := db.AchievementState{AppID: appID, APIName: sa.Name}
		if p, ok := byName[sa.Name]; ok && p.Unlocked() {
			state.Achieved = true
			if p.UnlockTime > 0 {
				t := time.Unix(p.UnlockTime, 0).UTC()
				state.UnlockTime = &t
			}
			result.Unlocked++
		}
		states = append(states, state)
	}
	result.Total = len(states)

	return states, entries, result
}

func schemaEntry(appID int64, sa steam.SchemaAchievement) db.SchemaEntry {
	entry := db.SchemaEntry{
		AppID:       appID,
		APIName:     sa.Name,
		DisplayName: sa.DisplayName,
		Icon:        sa.Icon,
		IconGray:    sa.IconGray,
	}
	if entry.DisplayName == "" {
		entry.DisplayName = sa.Name
	}
	if sa.Description != "" {
		desc := sa.Description
		entry.Description = &desc
	}
	return entry
}

// MergeAchievements merges fetched data for one game and persists it: schema
// entries first, then unlock states, then the game's counts and scrape time.
// The scrape time is written last so a failed write leaves the game unscraped.
func (s *Service) MergeAchievements(ctx context.Context, steamID string, appID int64, progress []steam.PlayerAchievement, schema []steam.SchemaAchievement) (MergeResult, error) {
	states, entries, result := BuildMerge(appID, progress, schema)

	if err := s.store.UpsertAchievementSchema(ctx, appID, entries); err != nil {
		return MergeResult{}, storeErr("upserting achievement schema", err)
	}
	if err := s.store.UpsertAchievementStates(ctx, steamID, appID, states); err != nil {
		return MergeResult{}, storeErr("upserting achievement states", err)
	}
	if err := s.store.UpdateAchievementCounts(ctx, steamID, appID, result.Total, result.Unlocked, s.now()); err != nil {
		return MergeResult{}, storeErr("updating achievement counts", err)
	}

	return result, nil
}
