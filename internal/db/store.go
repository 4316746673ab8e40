package db

import (
	"context"
	"time"
)

// Store exposes the repositories through the flat method set used by the
// sync service and the web server, mirroring the local SQLite store.
type Store struct {
	db *DB
}

// NewStore wraps db as a Store.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

func (s *Store) AllGames(ctx context.Context, steamID string) ([]Game, error) {
	return s.db.Games().GetAll(ctx, steamID)
}

func (s *Store) GamesNeverScraped(ctx context.Context, steamID string) ([]Game, error) {
	return s.db.Games().GetNeverScraped(ctx, steamID)
}

func (s *Store) UpsertGames(ctx context.Context, steamID string, games []Game) error {
	return s.db.Games().UpsertBatch(ctx, steamID, games)
}

func (s *Store) UpdateAchievementCounts(ctx context.Context, steamID string, appID int64, total, unlocked int, scrapedAt time.Time) error {
	return s.db.Games().UpdateAchievementCounts(ctx, steamID, appID, total, unlocked, scrapedAt)
}

// MarkZeroAchievements records that a game has no achievements.
func (s *Store) MarkZeroAchievements(ctx context.Context, steamID string, appID int64, scrapedAt time.Time) error {
	return s.db.Games().UpdateAchievementCounts(ctx, steamID, appID, 0, 0, scrapedAt)
}

func (s *Store) UpsertAchievementStates(ctx context.Context, steamID string, appID int64, states []AchievementState) error {
	return s.db.Achievements().UpsertStates(ctx, steamID, appID, states)
}

func (s *Store) UpsertAchievementSchema(ctx context.Context, appID int64, entries []SchemaEntry) error {
	return s.db.Achievements().UpsertSchema(ctx, appID, entries)
}

func (s *Store) GameAchievements(ctx context.Context, steamID string, appID int64) ([]GameAchievement, error) {
	return s.db.Achievements().GetForGame(ctx, steamID, appID)
}

func (s *Store) LogEntries(ctx context.Context, steamID string, limit int) ([]LogEntry, error) {
	return s.db.Achievements().LogEntries(ctx, steamID, limit)
}

func (s *Store) InsertRunHistory(ctx context.Context, steamID string, run RunHistory) error {
	if run.RunAt.IsZero() {
		run.RunAt = time.Now()
	}
	return s.db.History().InsertRun(ctx, steamID, &run)
}

func (s *Store) InsertAchievementHistory(ctx context.Context, steamID string, h AchievementHistory) error {
	if h.RecordedAt.IsZero() {
		h.RecordedAt = time.Now()
	}
	return s.db.History().InsertAchievements(ctx, steamID, &h)
}

func (s *Store) RunHistory(ctx context.Context, steamID string) ([]RunHistory, error) {
	return s.db.History().GetRuns(ctx, steamID)
}

func (s *Store) AchievementHistory(ctx context.Context, steamID string) ([]AchievementHistory, error) {
	return s.db.History().GetAchievements(ctx, steamID)
}

func (s *Store) RecordLastUpdate(ctx context.Context, steamID string, at time.Time) error {
	return s.db.Games().RecordLastUpdate(ctx, steamID, at)
}

func (s *Store) LastUpdate(ctx context.Context, steamID string) (*time.Time, error) {
	return s.db.Games().LastUpdate(ctx, steamID)
}

func (s *Store) RecordFirstPlay(ctx context.Context, steamID string, appID int64, playedAt time.Time) error {
	return s.db.Games().RecordFirstPlay(ctx, steamID, appID, playedAt)
}

func (s *Store) UpsertUser(ctx context.Context, u User) error {
	return s.db.Users().Upsert(ctx, &u)
}

func (s *Store) UpsertRating(ctx context.Context, r GameRating) error {
	return s.db.Community().UpsertRating(ctx, &r)
}

func (s *Store) CommunityRatings(ctx context.Context, appID int64) ([]GameRating, error) {
	return s.db.Community().GetRatings(ctx, appID)
}

func (s *Store) InsertTip(ctx context.Context, tip AchievementTip) error {
	return s.db.Community().InsertTip(ctx, &tip)
}

func (s *Store) AchievementTips(ctx context.Context, appID int64, apiName string) ([]AchievementTip, error) {
	return s.db.Community().GetTips(ctx, appID, apiName)
}
