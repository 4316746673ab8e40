package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GameRepository handles a user's game library.
type GameRepository struct {
	pool *pgxpool.Pool
}

const gameColumns = `appid, name, playtime_forever, rtime_last_played, img_icon_url, added_at,
	achievements_total, achievements_unlocked, last_achievement_scrape`

// GetAll retrieves every game in the user's library, ordered by name.
func (r *GameRepository) GetAll(ctx context.Context, steamID string) ([]Game, error) {
	query := `SELECT ` + gameColumns + ` FROM user_games WHERE steam_id = $1 ORDER BY LOWER(name)`
	return r.query(ctx, query, steamID)
}

// GetNeverScraped retrieves games whose achievements were never fetched.
func (r *GameRepository) GetNeverScraped(ctx context.Context, steamID string) ([]Game, error) {
	query := `SELECT ` + gameColumns + ` FROM user_games
		WHERE steam_id = $1 AND last_achievement_scrape IS NULL
		ORDER BY LOWER(name)`
	return r.query(ctx, query, steamID)
}

func (r *GameRepository) query(ctx context.Context, query string, args ...any) ([]Game, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying games: %w", err)
	}
	defer rows.Close()

	games := []Game{}
	for rows.Next() {
		var g Game
		if err := rows.Scan(
			&g.AppID,
			&g.Name,
			&g.PlaytimeForever,
			&g.RtimeLastPlayed,
			&g.ImgIconURL,
			&g.AddedAt,
			&g.AchievementsTotal,
			&g.AchievementsUnlocked,
			&g.LastAchievementScrape,
		); err != nil {
			return nil, fmt.Errorf("scanning game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// UpsertBatch inserts new games and refreshes library fields of existing
// ones. Achievement columns and added_at are left alone on update.
func (r *GameRepository) UpsertBatch(ctx context.Context, steamID string, games []Game) error {
	if len(games) == 0 {
		return nil
	}

	query := `
		INSERT INTO user_games (steam_id, appid, name, playtime_forever, rtime_last_played, img_icon_url, added_at)
		SELECT $1::text, * FROM unnest($2::bigint[], $3::text[], $4::int[], $5::bigint[], $6::text[], $7::timestamptz[])
		ON CONFLICT (steam_id, appid) DO UPDATE SET
			name = EXCLUDED.name,
			playtime_forever = EXCLUDED.playtime_forever,
			rtime_last_played = EXCLUDED.rtime_last_played,
			img_icon_url = EXCLUDED.img_icon_url
	`

	appIDs := make([]int64, len(games))
	names := make([]string, len(games))
	playtimes := make([]int, len(games))
	lastPlayed := make([]*int64, len(games))
	icons := make([]*string, len(games))
	addedAts := make([]time.Time, len(games))

	now := time.Now()
	for i, g := range games {
		appIDs[i] = g.AppID
		names[i] = g.Name
		playtimes[i] = g.PlaytimeForever
		lastPlayed[i] = g.RtimeLastPlayed
		icons[i] = g.ImgIconURL
		addedAts[i] = g.AddedAt
		if g.AddedAt.IsZero() {
			addedAts[i] = now
		}
	}

	_, err := r.pool.Exec(ctx, query, steamID, appIDs, names, playtimes, lastPlayed, icons, addedAts)
	if err != nil {
		return fmt.Errorf("batch upserting games: %w", err)
	}
	return nil
}

// UpdateAchievementCounts stores a game's counts and marks it scraped.
func (r *GameRepository) UpdateAchievementCounts(ctx context.Context, steamID string, appID int64, total, unlocked int, scrapedAt time.Time) error {
	query := `
		UPDATE user_games
		SET achievements_total = $3, achievements_unlocked = $4, last_achievement_scrape = $5
		WHERE steam_id = $1 AND appid = $2
	`
	result, err := r.pool.Exec(ctx, query, steamID, appID, total, unlocked, scrapedAt)
	if err != nil {
		return fmt.Errorf("updating achievement counts: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordFirstPlay stores the first play of a game. Later calls for the same
// game are ignored.
func (r *GameRepository) RecordFirstPlay(ctx context.Context, steamID string, appID int64, playedAt time.Time) error {
	query := `
		INSERT INTO first_plays (steam_id, appid, played_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (steam_id, appid) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, steamID, appID, playedAt); err != nil {
		return fmt.Errorf("recording first play: %w", err)
	}
	return nil
}

// RecordLastUpdate stores when the last sync flow completed.
func (r *GameRepository) RecordLastUpdate(ctx context.Context, steamID string, at time.Time) error {
	query := `
		INSERT INTO user_settings (steam_id, last_update)
		VALUES ($1, $2)
		ON CONFLICT (steam_id) DO UPDATE SET last_update = EXCLUDED.last_update
	`
	if _, err := r.pool.Exec(ctx, query, steamID, at); err != nil {
		return fmt.Errorf("recording last update: %w", err)
	}
	return nil
}

// LastUpdate returns when the last sync flow completed, or nil.
func (r *GameRepository) LastUpdate(ctx context.Context, steamID string) (*time.Time, error) {
	var last *time.Time
	err := r.pool.QueryRow(ctx, `SELECT last_update FROM user_settings WHERE steam_id = $1`, steamID).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying last update: %w", err)
	}
	return last, nil
}
