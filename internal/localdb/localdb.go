// Package localdb provides the SQLite store used in local mode: the CLI
// commands and a single-machine server.
package localdb

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/justestif/go-overachiever/internal/logging"
)

// DefaultPath is used when no path is configured.
const DefaultPath = "overachiever.db"

// Store is a SQLite-backed store. It implements sync.Store and web.Store.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the database at path and creates missing tables.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}

	conn, err := sqlx.Connect("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY between
	// the sync flow and concurrent readers.
	conn.SetMaxOpenConns(1)

	s := &Store{db: conn}
	if err := s.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logging.Debug().Str("path", path).Msg("sqlite database ready")
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS users (
			steam_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			avatar_url TEXT,
			created_at DATETIME NOT NULL,
			last_seen DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS games (
			steam_id TEXT NOT NULL,
			appid INTEGER NOT NULL,
			name TEXT NOT NULL,
			playtime_forever INTEGER NOT NULL DEFAULT 0,
			rtime_last_played INTEGER,
			img_icon_url TEXT,
			added_at DATETIME NOT NULL,
			achievements_total INTEGER,
			achievements_unlocked INTEGER,
			last_achievement_scrape DATETIME,
			PRIMARY KEY (steam_id, appid)
		);`,
		`CREATE TABLE IF NOT EXISTS achievement_schemas (
			appid INTEGER NOT NULL,
			apiname TEXT NOT NULL,
			display_name TEXT NOT NULL,
			description TEXT,
			icon TEXT NOT NULL DEFAULT '',
			icon_gray TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (appid, apiname)
		);`,
		`CREATE TABLE IF NOT EXISTS achievements (
			steam_id TEXT NOT NULL,
			appid INTEGER NOT NULL,
			apiname TEXT NOT NULL,
			achieved BOOLEAN NOT NULL DEFAULT 0,
			unlocktime DATETIME,
			PRIMARY KEY (steam_id, appid, apiname)
		);`,
		`CREATE TABLE IF NOT EXISTS run_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			steam_id TEXT NOT NULL,
			run_at DATETIME NOT NULL,
			total_games INTEGER NOT NULL,
			unplayed_games INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS achievement_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			steam_id TEXT NOT NULL,
			recorded_at DATETIME NOT NULL,
			total_achievements INTEGER NOT NULL,
			unlocked_achievements INTEGER NOT NULL,
			games_with_achievements INTEGER NOT NULL,
			avg_completion_percent REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS first_plays (
			steam_id TEXT NOT NULL,
			appid INTEGER NOT NULL,
			played_at DATETIME NOT NULL,
			PRIMARY KEY (steam_id, appid)
		);`,
		`CREATE TABLE IF NOT EXISTS settings (
			steam_id TEXT PRIMARY KEY,
			last_update DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS game_ratings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			steam_id TEXT NOT NULL,
			appid INTEGER NOT NULL,
			rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
			comment TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (steam_id, appid)
		);`,
		`CREATE TABLE IF NOT EXISTS achievement_tips (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			steam_id TEXT NOT NULL,
			appid INTEGER NOT NULL,
			apiname TEXT NOT NULL,
			difficulty INTEGER NOT NULL CHECK (difficulty BETWEEN 1 AND 5),
			tip TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_achievements_unlocktime ON achievements(steam_id, unlocktime);`,
		`CREATE INDEX IF NOT EXISTS idx_run_history_steam_id ON run_history(steam_id, run_at);`,
		`CREATE INDEX IF NOT EXISTS idx_achievement_history_steam_id ON achievement_history(steam_id, recorded_at);`,
		`CREATE INDEX IF NOT EXISTS idx_achievement_tips_lookup ON achievement_tips(appid, apiname);`,
	}

	for _, query := range tables {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	for _, index := range indexes {
		if _, err := s.db.Exec(index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// ts normalizes a timestamp for storage. Whole UTC seconds keep the text
// encoding sortable.
func ts(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func tsPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := ts(*t)
	return &v
}
