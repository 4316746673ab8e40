package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/justestif/go-overachiever/internal/db"
)

const gameColumns = `appid, name, playtime_forever, rtime_last_played, img_icon_url, added_at,
	achievements_total, achievements_unlocked, last_achievement_scrape`

// AllGames returns every game in the user's library, ordered by name.
func (s *Store) AllGames(ctx context.Context, steamID string) ([]db.Game, error) {
	games := []db.Game{}
	query := `SELECT ` + gameColumns + ` FROM games WHERE steam_id = ? ORDER BY name COLLATE NOCASE`
	if err := s.db.SelectContext(ctx, &games, query, steamID); err != nil {
		return nil, fmt.Errorf("querying games: %w", err)
	}
	return games, nil
}

// GamesNeverScraped returns games whose achievements were never fetched.
func (s *Store) GamesNeverScraped(ctx context.Context, steamID string) ([]db.Game, error) {
	games := []db.Game{}
	query := `SELECT ` + gameColumns + ` FROM games
		WHERE steam_id = ? AND last_achievement_scrape IS NULL
		ORDER BY name COLLATE NOCASE`
	if err := s.db.SelectContext(ctx, &games, query, steamID); err != nil {
		return nil, fmt.Errorf("querying unscraped games: %w", err)
	}
	return games, nil
}

// UpsertGames inserts new games and refreshes library fields of existing
// ones. Achievement columns and added_at are left alone on update.
func (s *Store) UpsertGames(ctx context.Context, steamID string, games []db.Game) error {
	if len(games) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO games (steam_id, appid, name, playtime_forever, rtime_last_played, img_icon_url, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (steam_id, appid) DO UPDATE SET
			name = excluded.name,
			playtime_forever = excluded.playtime_forever,
			rtime_last_played = excluded.rtime_last_played,
			img_icon_url = excluded.img_icon_url
	`)
	if err != nil {
		return fmt.Errorf("preparing game upsert: %w", err)
	}
	defer stmt.Close()

	for _, g := range games {
		addedAt := g.AddedAt
		if addedAt.IsZero() {
			addedAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, steamID, g.AppID, g.Name, g.PlaytimeForever, g.RtimeLastPlayed, g.ImgIconURL, ts(addedAt)); err != nil {
			return fmt.Errorf("upserting game %d: %w", g.AppID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing games: %w", err)
	}
	return nil
}

// UpdateAchievementCounts stores a game's counts and marks it scraped.
func (s *Store) UpdateAchievementCounts(ctx context.Context, steamID string, appID int64, total, unlocked int, scrapedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE games
		SET achievements_total = ?, achievements_unlocked = ?, last_achievement_scrape = ?
		WHERE steam_id = ? AND appid = ?
	`, total, unlocked, ts(scrapedAt), steamID, appID)
	if err != nil {
		return fmt.Errorf("updating achievement counts: %w", err)
	}
	return nil
}

// MarkZeroAchievements records that a game has no achievements.
func (s *Store) MarkZeroAchievements(ctx context.Context, steamID string, appID int64, scrapedAt time.Time) error {
	return s.UpdateAchievementCounts(ctx, steamID, appID, 0, 0, scrapedAt)
}

// RecordFirstPlay stores the first play of a game. Later calls for the same
// game are ignored.
func (s *Store) RecordFirstPlay(ctx context.Context, steamID string, appID int64, playedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO first_plays (steam_id, appid, played_at) VALUES (?, ?, ?)`,
		steamID, appID, ts(playedAt))
	if err != nil {
		return fmt.Errorf("recording first play: %w", err)
	}
	return nil
}

// RecordLastUpdate stores when the last sync flow completed.
func (s *Store) RecordLastUpdate(ctx context.Context, steamID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (steam_id, last_update) VALUES (?, ?)
		ON CONFLICT (steam_id) DO UPDATE SET last_update = excluded.last_update
	`, steamID, ts(at))
	if err != nil {
		return fmt.Errorf("recording last update: %w", err)
	}
	return nil
}

// LastUpdate returns when the last sync flow completed, or nil.
func (s *Store) LastUpdate(ctx context.Context, steamID string) (*time.Time, error) {
	var last *time.Time
	err := s.db.QueryRowxContext(ctx, `SELECT last_update FROM settings WHERE steam_id = ?`, steamID).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying last update: %w", err)
	}
	return last, nil
}
