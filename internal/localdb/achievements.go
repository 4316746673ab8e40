package localdb

import (
	"context"
	"fmt"
	"time"

	"github.com/justestif/go-overachiever/internal/db"
)

// UpsertAchievementStates stores a user's unlock states for one game. A null
// unlock time never replaces a stored one.
func (s *Store) UpsertAchievementStates(ctx context.Context, steamID string, appID int64, states []db.AchievementState) error {
	if len(states) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO achievements (steam_id, appid, apiname, achieved, unlocktime)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (steam_id, appid, apiname) DO UPDATE SET
			achieved = excluded.achieved,
			unlocktime = COALESCE(excluded.unlocktime, achievements.unlocktime)
	`)
	if err != nil {
		return fmt.Errorf("preparing achievement upsert: %w", err)
	}
	defer stmt.Close()

	for _, st := range states {
		if _, err := stmt.ExecContext(ctx, steamID, appID, st.APIName, st.Achieved, tsPtr(st.UnlockTime)); err != nil {
			return fmt.Errorf("upserting achievement %s: %w", st.APIName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing achievements: %w", err)
	}
	return nil
}

// UpsertAchievementSchema stores achievement definitions, overwriting any
// previous copy.
func (s *Store) UpsertAchievementSchema(ctx context.Context, appID int64, entries []db.SchemaEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO achievement_schemas (appid, apiname, display_name, description, icon, icon_gray)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (appid, apiname) DO UPDATE SET
			display_name = excluded.display_name,
			description = excluded.description,
			icon = excluded.icon,
			icon_gray = excluded.icon_gray
	`)
	if err != nil {
		return fmt.Errorf("preparing schema upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, appID, e.APIName, e.DisplayName, e.Description, e.Icon, e.IconGray); err != nil {
			return fmt.Errorf("upserting schema entry %s: %w", e.APIName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema: %w", err)
	}
	return nil
}

// GameAchievements returns a game's achievements joined with the user's
// unlock state. Achievements the user has no row for are locked.
func (s *Store) GameAchievements(ctx context.Context, steamID string, appID int64) ([]db.GameAchievement, error) {
	achievements := []db.GameAchievement{}
	err := s.db.SelectContext(ctx, &achievements, `
		SELECT s.appid, s.apiname, s.display_name AS name, s.description, s.icon, s.icon_gray,
			COALESCE(a.achieved, 0) AS achieved, a.unlocktime
		FROM achievement_schemas s
		LEFT JOIN achievements a
			ON a.appid = s.appid AND a.apiname = s.apiname AND a.steam_id = ?
		WHERE s.appid = ?
		ORDER BY s.display_name COLLATE NOCASE
	`, steamID, appID)
	if err != nil {
		return nil, fmt.Errorf("querying game achievements: %w", err)
	}
	return achievements, nil
}

type unlockRow struct {
	AppID           int64     `db:"appid"`
	APIName         string    `db:"apiname"`
	GameName        string    `db:"game_name"`
	AchievementName string    `db:"achievement_name"`
	UnlockTime      time.Time `db:"unlocktime"`
	Icon            string    `db:"icon"`
	GameIconURL     *string   `db:"img_icon_url"`
}

type firstPlayRow struct {
	AppID       int64     `db:"appid"`
	GameName    string    `db:"game_name"`
	PlayedAt    time.Time `db:"played_at"`
	GameIconURL *string   `db:"img_icon_url"`
}

// LogEntries returns the newest achievement unlocks and first plays, merged
// newest first. A negative limit returns everything.
func (s *Store) LogEntries(ctx context.Context, steamID string, limit int) ([]db.LogEntry, error) {
	sqlLimit := limit
	if limit < 0 {
		sqlLimit = -1
	}

	var unlocks []unlockRow
	err := s.db.SelectContext(ctx, &unlocks, `
		SELECT a.appid, a.apiname, g.name AS game_name,
			COALESCE(s.display_name, a.apiname) AS achievement_name,
			a.unlocktime, COALESCE(s.icon, '') AS icon, g.img_icon_url
		FROM achievements a
		JOIN games g ON g.steam_id = a.steam_id AND g.appid = a.appid
		LEFT JOIN achievement_schemas s ON s.appid = a.appid AND s.apiname = a.apiname
		WHERE a.steam_id = ? AND a.achieved = 1 AND a.unlocktime IS NOT NULL
		ORDER BY a.unlocktime DESC
		LIMIT ?
	`, steamID, sqlLimit)
	if err != nil {
		return nil, fmt.Errorf("querying unlocks: %w", err)
	}

	var firstPlays []firstPlayRow
	err = s.db.SelectContext(ctx, &firstPlays, `
		SELECT f.appid, g.name AS game_name, f.played_at, g.img_icon_url
		FROM first_plays f
		JOIN games g ON g.steam_id = f.steam_id AND g.appid = f.appid
		WHERE f.steam_id = ?
		ORDER BY f.played_at DESC
		LIMIT ?
	`, steamID, sqlLimit)
	if err != nil {
		return nil, fmt.Errorf("querying first plays: %w", err)
	}

	unlockEntries := make([]db.LogEntry, len(unlocks))
	for i, u := range unlocks {
		unlockEntries[i] = db.LogEntry{
			Type:            db.LogEntryAchievement,
			AppID:           u.AppID,
			APIName:         u.APIName,
			GameName:        u.GameName,
			AchievementName: u.AchievementName,
			Timestamp:       u.UnlockTime,
			AchievementIcon: u.Icon,
			GameIconURL:     u.GameIconURL,
		}
	}
	firstPlayEntries := make([]db.LogEntry, len(firstPlays))
	for i, f := range firstPlays {
		firstPlayEntries[i] = db.FirstPlayEntry(db.FirstPlay{
			AppID:       f.AppID,
			GameName:    f.GameName,
			PlayedAt:    f.PlayedAt,
			GameIconURL: f.GameIconURL,
		})
	}

	return db.MergeLogEntries(unlockEntries, firstPlayEntries, limit), nil
}
