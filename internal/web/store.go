package web

import (
	"context"

	"github.com/justestif/go-overachiever/internal/db"
	"github.com/justestif/go-overachiever/internal/sync"
)

// Store is everything the server reads and writes. Both db.Store and
// localdb.Store implement it.
type Store interface {
	sync.Store

	GameAchievements(ctx context.Context, steamID string, appID int64) ([]db.GameAchievement, error)
	RunHistory(ctx context.Context, steamID string) ([]db.RunHistory, error)
	AchievementHistory(ctx context.Context, steamID string) ([]db.AchievementHistory, error)
	LogEntries(ctx context.Context, steamID string, limit int) ([]db.LogEntry, error)

	UpsertUser(ctx context.Context, u db.User) error
	UpsertRating(ctx context.Context, r db.GameRating) error
	CommunityRatings(ctx context.Context, appID int64) ([]db.GameRating, error)
	InsertTip(ctx context.Context, tip db.AchievementTip) error
	AchievementTips(ctx context.Context, appID int64, apiName string) ([]db.AchievementTip, error)
}

// History is the payload of the History message and GET /api/history.
type History struct {
	RunHistory         []db.RunHistory         `json:"run_history"`
	AchievementHistory []db.AchievementHistory `json:"achievement_history"`
	LogEntries         []db.LogEntry           `json:"log_entries"`
}

func loadHistory(ctx context.Context, store Store, steamID string, logLimit int) (*History, error) {
	runs, err := store.RunHistory(ctx, steamID)
	if err != nil {
		return nil, err
	}
	achievements, err := store.AchievementHistory(ctx, steamID)
	if err != nil {
		return nil, err
	}
	entries, err := store.LogEntries(ctx, steamID, logLimit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []db.LogEntry{}
	}
	return &History{
		RunHistory:         runs,
		AchievementHistory: achievements,
		LogEntries:         entries,
	}, nil
}
