package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryRepository handles run and achievement snapshots.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

// InsertRun appends a library-size snapshot.
func (r *HistoryRepository) InsertRun(ctx context.Context, steamID string, run *RunHistory) error {
	query := `
		INSERT INTO run_history (steam_id, run_at, total_games, unplayed_games)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := r.pool.QueryRow(ctx, query, steamID, run.RunAt, run.TotalGames, run.UnplayedGames).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("inserting run history: %w", err)
	}
	return nil
}

// InsertAchievements appends an achievement snapshot.
func (r *HistoryRepository) InsertAchievements(ctx context.Context, steamID string, h *AchievementHistory) error {
	query := `
		INSERT INTO achievement_history
			(steam_id, recorded_at, total_achievements, unlocked_achievements, games_with_achievements, avg_completion_percent)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := r.pool.QueryRow(ctx, query,
		steamID,
		h.RecordedAt,
		h.TotalAchievements,
		h.UnlockedAchievements,
		h.GamesWithAchievements,
		h.AvgCompletionPercent,
	).Scan(&h.ID)
	if err != nil {
		return fmt.Errorf("inserting achievement history: %w", err)
	}
	return nil
}

// GetRuns retrieves the user's run snapshots, oldest first.
func (r *HistoryRepository) GetRuns(ctx context.Context, steamID string) ([]RunHistory, error) {
	query := `
		SELECT id, run_at, total_games, unplayed_games
		FROM run_history
		WHERE steam_id = $1
		ORDER BY run_at, id
	`
	rows, err := r.pool.Query(ctx, query, steamID)
	if err != nil {
		return nil, fmt.Errorf("querying run history: %w", err)
	}
	defer rows.Close()

	runs := []RunHistory{}
	for rows.Next() {
		var run RunHistory
		if err := rows.Scan(&run.ID, &run.RunAt, &run.TotalGames, &run.UnplayedGames); err != nil {
			return nil, fmt.Errorf("scanning run history: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetAchievements retrieves the user's achievement snapshots, oldest first.
func (r *HistoryRepository) GetAchievements(ctx context.Context, steamID string) ([]AchievementHistory, error) {
	query := `
		SELECT id, recorded_at, total_achievements, unlocked_achievements, games_with_achievements, avg_completion_percent
		FROM achievement_history
		WHERE steam_id = $1
		ORDER BY recorded_at, id
	`
	rows, err := r.pool.Query(ctx, query, steamID)
	if err != nil {
		return nil, fmt.Errorf("querying achievement history: %w", err)
	}
	defer rows.Close()

	history := []AchievementHistory{}
	for rows.Next() {
		var h AchievementHistory
		if err := rows.Scan(
			&h.ID,
			&h.RecordedAt,
			&h.TotalAchievements,
			&h.UnlockedAchievements,
			&h.GamesWithAchievements,
			&h.AvgCompletionPercent,
		); err != nil {
			return nil, fmt.Errorf("scanning achievement history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}
