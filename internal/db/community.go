package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CommunityRepository handles game ratings and achievement tips.
type CommunityRepository struct {
	pool *pgxpool.Pool
}

// UpsertRating stores a user's rating of a game, replacing an earlier one.
func (r *CommunityRepository) UpsertRating(ctx context.Context, rating *GameRating) error {
	query := `
		INSERT INTO game_ratings (steam_id, appid, rating, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (steam_id, appid) DO UPDATE SET
			rating = EXCLUDED.rating,
			comment = EXCLUDED.comment,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		rating.SteamID,
		rating.AppID,
		rating.Rating,
		rating.Comment,
	).Scan(&rating.ID, &rating.CreatedAt, &rating.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting rating: %w", err)
	}
	return nil
}

// GetRatings retrieves every rating of a game, newest first.
func (r *CommunityRepository) GetRatings(ctx context.Context, appID int64) ([]GameRating, error) {
	query := `
		SELECT id, steam_id, appid, rating, comment, created_at, updated_at
		FROM game_ratings
		WHERE appid = $1
		ORDER BY updated_at DESC, id DESC
	`
	rows, err := r.pool.Query(ctx, query, appID)
	if err != nil {
		return nil, fmt.Errorf("querying ratings: %w", err)
	}
	defer rows.Close()

	ratings := []GameRating{}
	for rows.Next() {
		var g GameRating
		if err := rows.Scan(&g.ID, &g.SteamID, &g.AppID, &g.Rating, &g.Comment, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning rating: %w", err)
		}
		ratings = append(ratings, g)
	}
	return ratings, rows.Err()
}

// InsertTip stores an achievement tip.
func (r *CommunityRepository) InsertTip(ctx context.Context, tip *AchievementTip) error {
	query := `
		INSERT INTO achievement_tips (steam_id, appid, apiname, difficulty, tip, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		tip.SteamID,
		tip.AppID,
		tip.APIName,
		tip.Difficulty,
		tip.Tip,
	).Scan(&tip.ID, &tip.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting tip: %w", err)
	}
	return nil
}

// GetTips retrieves the tips for one achievement, newest first.
func (r *CommunityRepository) GetTips(ctx context.Context, appID int64, apiName string) ([]AchievementTip, error) {
	query := `
		SELECT id, steam_id, appid, apiname, difficulty, tip, created_at
		FROM achievement_tips
		WHERE appid = $1 AND apiname = $2
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.pool.Query(ctx, query, appID, apiName)
	if err != nil {
		return nil, fmt.Errorf("querying tips: %w", err)
	}
	defer rows.Close()

	tips := []AchievementTip{}
	for rows.Next() {
		var t AchievementTip
		if err := rows.Scan(&t.ID, &t.SteamID, &t.AppID, &t.APIName, &t.Difficulty, &t.Tip, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning tip: %w", err)
		}
		tips = append(tips, t)
	}
	return tips, rows.Err()
}
