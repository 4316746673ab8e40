package localdb

import (
	"context"
	"fmt"
	"time"

	"github.com/justestif/go-overachiever/internal/db"
)

// InsertRunHistory appends a library-size snapshot.
func (s *Store) InsertRunHistory(ctx context.Context, steamID string, run db.RunHistory) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_history (steam_id, run_at, total_games, unplayed_games) VALUES (?, ?, ?, ?)`,
		steamID, ts(orNow(run.RunAt)), run.TotalGames, run.UnplayedGames)
	if err != nil {
		return fmt.Errorf("inserting run history: %w", err)
	}
	return nil
}

// InsertAchievementHistory appends an achievement snapshot.
func (s *Store) InsertAchievementHistory(ctx context.Context, steamID string, h db.AchievementHistory) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO achievement_history
			(steam_id, recorded_at, total_achievements, unlocked_achievements, games_with_achievements, avg_completion_percent)
		VALUES (?, ?, ?, ?, ?, ?)
	`, steamID, ts(orNow(h.RecordedAt)), h.TotalAchievements, h.UnlockedAchievements, h.GamesWithAchievements, h.AvgCompletionPercent)
	if err != nil {
		return fmt.Errorf("inserting achievement history: %w", err)
	}
	return nil
}

// RunHistory returns the user's run snapshots, oldest first.
func (s *Store) RunHistory(ctx context.Context, steamID string) ([]db.RunHistory, error) {
	runs := []db.RunHistory{}
	err := s.db.SelectContext(ctx, &runs, `
		SELECT id, run_at, total_games, unplayed_games
		FROM run_history WHERE steam_id = ? ORDER BY run_at, id
	`, steamID)
	if err != nil {
		return nil, fmt.Errorf("querying run history: %w", err)
	}
	return runs, nil
}

// AchievementHistory returns the user's achievement snapshots, oldest first.
func (s *Store) AchievementHistory(ctx context.Context, steamID string) ([]db.AchievementHistory, error) {
	history := []db.AchievementHistory{}
	err := s.db.SelectContext(ctx, &history, `
		SELECT id, recorded_at, total_achievements, unlocked_achievements, games_with_achievements, avg_completion_percent
		FROM achievement_history WHERE steam_id = ? ORDER BY recorded_at, id
	`, steamID)
	if err != nil {
		return nil, fmt.Errorf("querying achievement history: %w", err)
	}
	return history, nil
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
