package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"
)

// newTestStore connects to TEST_DATABASE_URL and skips when it is unset.
// Each call gets its own steam ID and app IDs so runs never collide.
func newTestStore(t *testing.T) (*Store, string, int64) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	database, err := New(ctx, url)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(database.Close)
	if err := database.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	seed := time.Now().UnixNano()
	steamID := fmt.Sprintf("7656%013d", seed%1e13)
	appBase := 1e9 + seed%1e9
	return NewStore(database), steamID, appBase
}

func TestStore_AchievementUpserts(t *testing.T) {
	s, steamID, appID := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertGames(ctx, steamID, []Game{{AppID: appID, Name: "Portal"}}); err != nil {
		t.Fatalf("UpsertGames() error = %v", err)
	}

	desc := "Win once"
	entries := []SchemaEntry{
		{AppID: appID, APIName: "WIN", DisplayName: "Win", Description: &desc},
		{AppID: appID, APIName: "CAKE", DisplayName: "Cake"},
	}
	if err := s.UpsertAchievementSchema(ctx, appID, entries); err != nil {
		t.Fatalf("UpsertAchievementSchema() error = %v", err)
	}

	unlocked := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	states := []AchievementState{
		{AppID: appID, APIName: "WIN", Achieved: true, UnlockTime: &unlocked},
		{AppID: appID, APIName: "CAKE"},
	}
	if err := s.UpsertAchievementStates(ctx, steamID, appID, states); err != nil {
		t.Fatalf("UpsertAchievementStates() error = %v", err)
	}

	// A later write without a timestamp keeps the stored one.
	states[0].UnlockTime = nil
	if err := s.UpsertAchievementStates(ctx, steamID, appID, states); err != nil {
		t.Fatalf("second UpsertAchievementStates() error = %v", err)
	}

	got, err := s.GameAchievements(ctx, steamID, appID)
	if err != nil {
		t.Fatalf("GameAchievements() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d achievements, want 2", len(got))
	}
	// Ordered by display name.
	if got[0].APIName != "CAKE" || got[0].Achieved || got[0].UnlockTime != nil {
		t.Errorf("CAKE = %+v", got[0])
	}
	if got[1].APIName != "WIN" || !got[1].Achieved {
		t.Errorf("WIN = %+v", got[1])
	}
	if got[1].UnlockTime == nil || !got[1].UnlockTime.Equal(unlocked) {
		t.Errorf("WIN unlock time = %v, want %v", got[1].UnlockTime, unlocked)
	}
	if got[1].Description == nil || *got[1].Description != desc {
		t.Errorf("WIN description = %v", got[1].Description)
	}
}

func TestStore_AchievementCounts(t *testing.T) {
	s, steamID, appID := newTestStore(t)
	ctx := context.Background()

	games := []Game{{AppID: appID, Name: "Portal"}, {AppID: appID + 1, Name: "Portal 2"}}
	if err := s.UpsertGames(ctx, steamID, games); err != nil {
		t.Fatalf("UpsertGames() error = %v", err)
	}

	if err := s.MarkZeroAchievements(ctx, steamID, appID, time.Now()); err != nil {
		t.Fatalf("MarkZeroAchievements() error = %v", err)
	}

	pending, err := s.GamesNeverScraped(ctx, steamID)
	if err != nil {
		t.Fatalf("GamesNeverScraped() error = %v", err)
	}
	if len(pending) != 1 || pending[0].AppID != appID+1 {
		t.Errorf("never scraped = %+v, want only %d", pending, appID+1)
	}

	err = s.UpdateAchievementCounts(ctx, steamID, appID+99, 1, 1, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateAchievementCounts() on unknown game error = %v, want ErrNotFound", err)
	}
}
