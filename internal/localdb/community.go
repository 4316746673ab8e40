package localdb

import (
	"context"
	"fmt"
	"time"

	"github.com/justestif/go-overachiever/internal/db"
)

// UpsertUser creates a user or refreshes their profile and last_seen.
func (s *Store) UpsertUser(ctx context.Context, u db.User) error {
	now := ts(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (steam_id, display_name, avatar_url, created_at, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (steam_id) DO UPDATE SET
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url,
			last_seen = excluded.last_seen
	`, u.SteamID, u.DisplayName, u.AvatarURL, now, now)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// UpsertRating stores a user's rating of a game, replacing an earlier one.
func (s *Store) UpsertRating(ctx context.Context, r db.GameRating) error {
	now := ts(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO game_ratings (steam_id, appid, rating, comment, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (steam_id, appid) DO UPDATE SET
			rating = excluded.rating,
			comment = excluded.comment,
			updated_at = excluded.updated_at
	`, r.SteamID, r.AppID, r.Rating, r.Comment, now, now)
	if err != nil {
		return fmt.Errorf("upserting rating: %w", err)
	}
	return nil
}

// CommunityRatings returns every rating of a game, newest first.
func (s *Store) CommunityRatings(ctx context.Context, appID int64) ([]db.GameRating, error) {
	ratings := []db.GameRating{}
	err := s.db.SelectContext(ctx, &ratings, `
		SELECT id, steam_id, appid, rating, comment, created_at, updated_at
		FROM game_ratings WHERE appid = ? ORDER BY updated_at DESC, id DESC
	`, appID)
	if err != nil {
		return nil, fmt.Errorf("querying ratings: %w", err)
	}
	return ratings, nil
}

// InsertTip stores an achievement tip.
func (s *Store) InsertTip(ctx context.Context, tip db.AchievementTip) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO achievement_tips (steam_id, appid, apiname, difficulty, tip, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tip.SteamID, tip.AppID, tip.APIName, tip.Difficulty, tip.Tip, ts(time.Now()))
	if err != nil {
		return fmt.Errorf("inserting tip: %w", err)
	}
	return nil
}

// AchievementTips returns the tips for one achievement, newest first.
func (s *Store) AchievementTips(ctx context.Context, appID int64, apiName string) ([]db.AchievementTip, error) {
	tips := []db.AchievementTip{}
	err := s.db.SelectContext(ctx, &tips, `
		SELECT id, steam_id, appid, apiname, difficulty, tip, created_at
		FROM achievement_tips WHERE appid = ? AND apiname = ?
		ORDER BY created_at DESC, id DESC
	`, appID, apiName)
	if err != nil {
		return nil, fmt.Errorf("querying tips: %w", err)
	}
	return tips, nil
}
