package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository handles user database operations.
type UserRepository struct {
	pool *pgxpool.Pool
}

// Get retrieves a user by Steam ID.
func (r *UserRepository) Get(ctx context.Context, steamID string) (*User, error) {
	query := `
		SELECT steam_id, display_name, avatar_url, created_at, last_seen
		FROM users
		WHERE steam_id = $1
	`
	var user User
	err := r.pool.QueryRow(ctx, query, steamID).Scan(
		&user.SteamID,
		&user.DisplayName,
		&user.AvatarURL,
		&user.CreatedAt,
		&user.LastSeen,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &user, nil
}

// Upsert creates a user or refreshes their profile and last_seen.
func (r *UserRepository) Upsert(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (steam_id, display_name, avatar_url, created_at, last_seen)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (steam_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			avatar_url = EXCLUDED.avatar_url,
			last_seen = NOW()
		RETURNING created_at, last_seen
	`
	err := r.pool.QueryRow(ctx, query,
		user.SteamID,
		user.DisplayName,
		user.AvatarURL,
	).Scan(&user.CreatedAt, &user.LastSeen)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}
