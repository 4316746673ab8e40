package db

import (
	"context"
	"fmt"
)

// schemaStatements create the server tables. They are idempotent; there is no
// migration history.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		steam_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		avatar_url TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS user_games (
		steam_id TEXT NOT NULL,
		appid BIGINT NOT NULL,
		name TEXT NOT NULL,
		playtime_forever INTEGER NOT NULL DEFAULT 0,
		rtime_last_played BIGINT,
		img_icon_url TEXT,
		added_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		achievements_total INTEGER,
		achievements_unlocked INTEGER,
		last_achievement_scrape TIMESTAMPTZ,
		PRIMARY KEY (steam_id, appid)
	)`,
	`CREATE TABLE IF NOT EXISTS achievement_schemas (
		appid BIGINT NOT NULL,
		apiname TEXT NOT NULL,
		display_name TEXT NOT NULL,
		description TEXT,
		icon TEXT NOT NULL DEFAULT '',
		icon_gray TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (appid, apiname)
	)`,
	`CREATE TABLE IF NOT EXISTS user_achievements (
		steam_id TEXT NOT NULL,
		appid BIGINT NOT NULL,
		apiname TEXT NOT NULL,
		achieved BOOLEAN NOT NULL DEFAULT FALSE,
		unlocktime TIMESTAMPTZ,
		PRIMARY KEY (steam_id, appid, apiname)
	)`,
	`CREATE TABLE IF NOT EXISTS run_history (
		id BIGSERIAL PRIMARY KEY,
		steam_id TEXT NOT NULL,
		run_at TIMESTAMPTZ NOT NULL,
		total_games INTEGER NOT NULL,
		unplayed_games INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS achievement_history (
		id BIGSERIAL PRIMARY KEY,
		steam_id TEXT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL,
		total_achievements INTEGER NOT NULL,
		unlocked_achievements INTEGER NOT NULL,
		games_with_achievements INTEGER NOT NULL,
		avg_completion_percent DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS first_plays (
		steam_id TEXT NOT NULL,
		appid BIGINT NOT NULL,
		played_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (steam_id, appid)
	)`,
	`CREATE TABLE IF NOT EXISTS user_settings (
		steam_id TEXT PRIMARY KEY,
		last_update TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS game_ratings (
		id BIGSERIAL PRIMARY KEY,
		steam_id TEXT NOT NULL,
		appid BIGINT NOT NULL,
		rating SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 5),
		comment TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (steam_id, appid)
	)`,
	`CREATE TABLE IF NOT EXISTS achievement_tips (
		id BIGSERIAL PRIMARY KEY,
		steam_id TEXT NOT NULL,
		appid BIGINT NOT NULL,
		apiname TEXT NOT NULL,
		difficulty SMALLINT NOT NULL CHECK (difficulty BETWEEN 1 AND 5),
		tip TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_achievements_unlocktime ON user_achievements (steam_id, unlocktime DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_run_history_steam_id ON run_history (steam_id, run_at)`,
	`CREATE INDEX IF NOT EXISTS idx_achievement_history_steam_id ON achievement_history (steam_id, recorded_at)`,
	`CREATE INDEX IF NOT EXISTS idx_achievement_tips_lookup ON achievement_tips (appid, apiname)`,
}

// EnsureSchema creates any missing tables and indexes.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}
