package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AchievementRepository handles achievement schemas and unlock states.
type AchievementRepository struct {
	pool *pgxpool.Pool
}

// UpsertStates stores a user's unlock states for one game. A null unlock time
// never replaces a stored one.
func (r *AchievementRepository) UpsertStates(ctx context.Context, steamID string, appID int64, states []AchievementState) error {
	if len(states) == 0 {
		return nil
	}

	query := `
		INSERT INTO user_achievements (steam_id, appid, apiname, achieved, unlocktime)
		SELECT $1::text, $2::bigint, * FROM unnest($3::text[], $4::bool[], $5::timestamptz[])
		ON CONFLICT (steam_id, appid, apiname) DO UPDATE SET
			achieved = EXCLUDED.achieved,
			unlocktime = COALESCE(EXCLUDED.unlocktime, user_achievements.unlocktime)
	`

	names := make([]string, len(states))
	achieved := make([]bool, len(states))
	unlockTimes := make([]*time.Time, len(states))
	for i, st := range states {
		names[i] = st.APIName
		achieved[i] = st.Achieved
		unlockTimes[i] = st.UnlockTime
	}

	if _, err := r.pool.Exec(ctx, query, steamID, appID, names, achieved, unlockTimes); err != nil {
		return fmt.Errorf("batch upserting achievements: %w", err)
	}
	return nil
}

// UpsertSchema stores achievement definitions, overwriting any previous copy.
func (r *AchievementRepository) UpsertSchema(ctx context.Context, appID int64, entries []SchemaEntry) error {
	if len(entries) == 0 {
		return nil
	}

	query := `
		INSERT INTO achievement_schemas (appid, apiname, display_name, description, icon, icon_gray)
		SELECT $1::bigint, * FROM unnest($2::text[], $3::text[], $4::text[], $5::text[], $6::text[])
		ON CONFLICT (appid, apiname) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			description = EXCLUDED.description,
			icon = EXCLUDED.icon,
			icon_gray = EXCLUDED.icon_gray
	`

	names := make([]string, len(entries))
	displayNames := make([]string, len(entries))
	descriptions := make([]*string, len(entries))
	icons := make([]string, len(entries))
	iconsGray := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.APIName
		displayNames[i] = e.DisplayName
		descriptions[i] = e.Description
		icons[i] = e.Icon
		iconsGray[i] = e.IconGray
	}

	if _, err := r.pool.Exec(ctx, query, appID, names, displayNames, descriptions, icons, iconsGray); err != nil {
		return fmt.Errorf("batch upserting achievement schema: %w", err)
	}
	return nil
}

// GetForGame retrieves a game's achievements joined with the user's unlock
// state. Achievements the user has no row for are locked.
func (r *AchievementRepository) GetForGame(ctx context.Context, steamID string, appID int64) ([]GameAchievement, error) {
	query := `
		SELECT s.appid, s.apiname, s.display_name, s.description, s.icon, s.icon_gray,
			COALESCE(a.achieved, FALSE), a.unlocktime
		FROM achievement_schemas s
		LEFT JOIN user_achievements a
			ON a.appid = s.appid AND a.apiname = s.apiname AND a.steam_id = $1
		WHERE s.appid = $2
		ORDER BY LOWER(s.display_name)
	`
	rows, err := r.pool.Query(ctx, query, steamID, appID)
	if err != nil {
		return nil, fmt.Errorf("querying game achievements: %w", err)
	}
	defer rows.Close()

	achievements := []GameAchievement{}
	for rows.Next() {
		var a GameAchievement
		if err := rows.Scan(
			&a.AppID,
			&a.APIName,
			&a.Name,
			&a.Description,
			&a.Icon,
			&a.IconGray,
			&a.Achieved,
			&a.UnlockTime,
		); err != nil {
			return nil, fmt.Errorf("scanning game achievement: %w", err)
		}
		achievements = append(achievements, a)
	}
	return achievements, rows.Err()
}

// LogEntries retrieves the newest achievement unlocks and first plays, merged
// newest first. A negative limit returns everything.
func (r *AchievementRepository) LogEntries(ctx context.Context, steamID string, limit int) ([]LogEntry, error) {
	var sqlLimit any = limit
	if limit < 0 {
		sqlLimit = nil
	}

	unlocks, err := r.unlockEntries(ctx, steamID, sqlLimit)
	if err != nil {
		return nil, err
	}
	firstPlays, err := r.firstPlayEntries(ctx, steamID, sqlLimit)
	if err != nil {
		return nil, err
	}
	return MergeLogEntries(unlocks, firstPlays, limit), nil
}

func (r *AchievementRepository) unlockEntries(ctx context.Context, steamID string, limit any) ([]LogEntry, error) {
	query := `
		SELECT a.appid, a.apiname, g.name, COALESCE(s.display_name, a.apiname),
			a.unlocktime, COALESCE(s.icon, ''), g.img_icon_url
		FROM user_achievements a
		JOIN user_games g ON g.steam_id = a.steam_id AND g.appid = a.appid
		LEFT JOIN achievement_schemas s ON s.appid = a.appid AND s.apiname = a.apiname
		WHERE a.steam_id = $1 AND a.achieved AND a.unlocktime IS NOT NULL
		ORDER BY a.unlocktime DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, steamID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying unlocks: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		e := LogEntry{Type: LogEntryAchievement}
		if err := rows.Scan(
			&e.AppID,
			&e.APIName,
			&e.GameName,
			&e.AchievementName,
			&e.Timestamp,
			&e.AchievementIcon,
			&e.GameIconURL,
		); err != nil {
			return nil, fmt.Errorf("scanning unlock: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *AchievementRepository) firstPlayEntries(ctx context.Context, steamID string, limit any) ([]LogEntry, error) {
	query := `
		SELECT f.appid, g.name, f.played_at, g.img_icon_url
		FROM first_plays f
		JOIN user_games g ON g.steam_id = f.steam_id AND g.appid = f.appid
		WHERE f.steam_id = $1
		ORDER BY f.played_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, steamID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying first plays: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var fp FirstPlay
		if err := rows.Scan(&fp.AppID, &fp.GameName, &fp.PlayedAt, &fp.GameIconURL); err != nil {
			return nil, fmt.Errorf("scanning first play: %w", err)
		}
		entries = append(entries, FirstPlayEntry(fp))
	}
	return entries, rows.Err()
}
