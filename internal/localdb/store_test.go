package localdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/justestif/go-overachiever/internal/db"
)

const steamID = "76561197960287930"

var base = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedGames(t *testing.T, s *Store, games ...db.Game) {
	t.Helper()
	for i := range games {
		if games[i].AddedAt.IsZero() {
			games[i].AddedAt = base
		}
	}
	if err := s.UpsertGames(context.Background(), steamID, games); err != nil {
		t.Fatalf("UpsertGames() error = %v", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	seedGames(t, s, db.Game{AppID: 1, Name: "A"})
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	defer s.Close()

	games, err := s.AllGames(context.Background(), steamID)
	if err != nil || len(games) != 1 {
		t.Fatalf("AllGames() = %v, %v, want 1 game", games, err)
	}
}

func TestUpsertGames_PreservesAchievementColumns(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedGames(t, s, db.Game{AppID: 10, Name: "Portal", PlaytimeForever: 0})

	if err := s.UpdateAchievementCounts(ctx, steamID, 10, 15, 4, base); err != nil {
		t.Fatalf("UpdateAchievementCounts() error = %v", err)
	}

	rtime := int64(1717000000)
	icon := "abc123"
	seedGames(t, s, db.Game{AppID: 10, Name: "Portal (2007)", PlaytimeForever: 42, RtimeLastPlayed: &rtime, ImgIconURL: &icon, AddedAt: base.Add(time.Hour)})

	games, err := s.AllGames(ctx, steamID)
	if err != nil {
		t.Fatalf("AllGames() error = %v", err)
	}
	if len(games) != 1 {
		t.Fatalf("got %d games, want 1", len(games))
	}
	g := games[0]
	if g.Name != "Portal (2007)" || g.PlaytimeForever != 42 {
		t.Errorf("library fields not updated: %+v", g)
	}
	if g.RtimeLastPlayed == nil || *g.RtimeLastPlayed != rtime || g.ImgIconURL == nil || *g.ImgIconURL != icon {
		t.Errorf("optional fields = %v, %v", g.RtimeLastPlayed, g.ImgIconURL)
	}
	if g.AchievementsTotal == nil || *g.AchievementsTotal != 15 || *g.AchievementsUnlocked != 4 {
		t.Errorf("achievement counts lost: %v / %v", g.AchievementsUnlocked, g.AchievementsTotal)
	}
	if g.LastAchievementScrape == nil || !g.LastAchievementScrape.Equal(base) {
		t.Errorf("last scrape = %v, want %v", g.LastAchievementScrape, base)
	}
	if !g.AddedAt.Equal(base) {
		t.Errorf("added_at = %v, want original %v", g.AddedAt, base)
	}
}

func TestGamesNeverScraped(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedGames(t, s,
		db.Game{AppID: 1, Name: "Never"},
		db.Game{AppID: 2, Name: "Scraped"},
		db.Game{AppID: 3, Name: "Zero"},
	)

	if err := s.UpdateAchievementCounts(ctx, steamID, 2, 10, 1, base); err != nil {
		t.Fatalf("UpdateAchievementCounts() error = %v", err)
	}
	if err := s.MarkZeroAchievements(ctx, steamID, 3, base); err != nil {
		t.Fatalf("MarkZeroAchievements() error = %v", err)
	}

	games, err := s.GamesNeverScraped(ctx, steamID)
	if err != nil {
		t.Fatalf("GamesNeverScraped() error = %v", err)
	}
	if len(games) != 1 || games[0].AppID != 1 {
		t.Errorf("GamesNeverScraped() = %+v, want only game 1", games)
	}

	all, _ := s.AllGames(ctx, steamID)
	for _, g := range all {
		if g.AppID != 3 {
			continue
		}
		if g.AchievementsTotal == nil || *g.AchievementsTotal != 0 || g.LastAchievementScrape == nil {
			t.Errorf("zero-achievement game = %+v, want total 0 and scrape time", g)
		}
		if g.AchievementsDisplay() != "N/A" {
			t.Errorf("AchievementsDisplay() = %q, want N/A", g.AchievementsDisplay())
		}
	}
}

func TestUpsertAchievementStates_CoalescesUnlockTime(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedGames(t, s, db.Game{AppID: 5, Name: "G"})

	unlocked := base.Add(30 * time.Minute)
	first := []db.AchievementState{
		{AppID: 5, APIName: "WIN", Achieved: true, UnlockTime: &unlocked},
		{AppID: 5, APIName: "LOSE", Achieved: false},
	}
	if err := s.UpsertAchievementStates(ctx, steamID, 5, first); err != nil {
		t.Fatalf("UpsertAchievementStates() error = %v", err)
	}

	// Same achievement, timestamp missing from the response.
	second := []db.AchievementState{
		{AppID: 5, APIName: "WIN", Achieved: true},
		{AppID: 5, APIName: "LOSE", Achieved: false},
	}
	for i := 0; i < 2; i++ {
		if err := s.UpsertAchievementStates(ctx, steamID, 5, second); err != nil {
			t.Fatalf("UpsertAchievementStates() error = %v", err)
		}
	}

	if err := s.UpsertAchievementSchema(ctx, 5, []db.SchemaEntry{
		{AppID: 5, APIName: "WIN", DisplayName: "Winner"},
		{AppID: 5, APIName: "LOSE", DisplayName: "Loser"},
	}); err != nil {
		t.Fatalf("UpsertAchievementSchema() error = %v", err)
	}

	achievements, err := s.GameAchievements(ctx, steamID, 5)
	if err != nil {
		t.Fatalf("GameAchievements() error = %v", err)
	}
	if len(achievements) != 2 {
		t.Fatalf("got %d achievements, want 2 (no duplicates)", len(achievements))
	}
	for _, a := range achievements {
		switch a.APIName {
		case "WIN":
			if !a.Achieved || a.UnlockTime == nil || !a.UnlockTime.Equal(unlocked) {
				t.Errorf("WIN = %+v, want achieved at %v", a, unlocked)
			}
			if a.Name != "Winner" {
				t.Errorf("WIN name = %q, want Winner", a.Name)
			}
		case "LOSE":
			if a.Achieved || a.UnlockTime != nil {
				t.Errorf("LOSE = %+v, want locked", a)
			}
		}
	}
}

func TestUpsertAchievementSchema_Overwrites(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	desc := "old"
	if err := s.UpsertAchievementSchema(ctx, 9, []db.SchemaEntry{{AppID: 9, APIName: "A", DisplayName: "Old", Description: &desc, Icon: "a.jpg"}}); err != nil {
		t.Fatalf("UpsertAchievementSchema() error = %v", err)
	}
	if err := s.UpsertAchievementSchema(ctx, 9, []db.SchemaEntry{{AppID: 9, APIName: "A", DisplayName: "New", Icon: "b.jpg"}}); err != nil {
		t.Fatalf("UpsertAchievementSchema() error = %v", err)
	}

	achievements, err := s.GameAchievements(ctx, steamID, 9)
	if err != nil {
		t.Fatalf("GameAchievements() error = %v", err)
	}
	if len(achievements) != 1 {
		t.Fatalf("got %d achievements, want 1", len(achievements))
	}
	a := achievements[0]
	if a.Name != "New" || a.Icon != "b.jpg" || a.Description != nil {
		t.Errorf("schema not overwritten: %+v", a)
	}
	if a.Achieved {
		t.Error("achievement without user row should be locked")
	}
}

func TestRecordFirstPlay_InsertOrIgnore(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedGames(t, s, db.Game{AppID: 7, Name: "Hades"})

	if err := s.RecordFirstPlay(ctx, steamID, 7, base); err != nil {
		t.Fatalf("RecordFirstPlay() error = %v", err)
	}
	if err := s.RecordFirstPlay(ctx, steamID, 7, base.Add(48*time.Hour)); err != nil {
		t.Fatalf("second RecordFirstPlay() error = %v", err)
	}

	entries, err := s.LogEntries(ctx, steamID, 10)
	if err != nil {
		t.Fatalf("LogEntries() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	if entries[0].Type != db.LogEntryFirstPlay || !entries[0].Timestamp.Equal(base) || entries[0].GameName != "Hades" {
		t.Errorf("entry = %+v, want first play of Hades at %v", entries[0], base)
	}
}

func TestLogEntries_MergedNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedGames(t, s, db.Game{AppID: 1, Name: "One"}, db.Game{AppID: 2, Name: "Two"})

	t1, t3 := base.Add(time.Hour), base.Add(3*time.Hour)
	if err := s.UpsertAchievementStates(ctx, steamID, 1, []db.AchievementState{
		{AppID: 1, APIName: "EARLY", Achieved: true, UnlockTime: &t1},
		{AppID: 1, APIName: "LATE", Achieved: true, UnlockTime: &t3},
		{AppID: 1, APIName: "LOCKED", Achieved: false},
	}); err != nil {
		t.Fatalf("UpsertAchievementStates() error = %v", err)
	}
	if err := s.RecordFirstPlay(ctx, steamID, 2, base.Add(2*time.Hour)); err != nil {
		t.Fatalf("RecordFirstPlay() error = %v", err)
	}

	entries, err := s.LogEntries(ctx, steamID, 10)
	if err != nil {
		t.Fatalf("LogEntries() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	want := []string{"LATE", "Two", "EARLY"}
	for i, e := range entries {
		label := e.APIName
		if e.Type == db.LogEntryFirstPlay {
			label = e.GameName
		}
		if label != want[i] {
			t.Errorf("entry %d = %s, want %s", i, label, want[i])
		}
	}
	// No schema stored, so the API name stands in for the display name.
	if entries[0].AchievementName != "LATE" {
		t.Errorf("achievement name = %q, want LATE", entries[0].AchievementName)
	}

	limited, err := s.LogEntries(ctx, steamID, 2)
	if err != nil {
		t.Fatalf("LogEntries(2) error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("LogEntries(2) returned %d entries", len(limited))
	}
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.InsertRunHistory(ctx, steamID, db.RunHistory{RunAt: base, TotalGames: 3, UnplayedGames: 1}); err != nil {
		t.Fatalf("InsertRunHistory() error = %v", err)
	}
	if err := s.InsertRunHistory(ctx, steamID, db.RunHistory{RunAt: base.Add(time.Hour), TotalGames: 4, UnplayedGames: 1}); err != nil {
		t.Fatalf("InsertRunHistory() error = %v", err)
	}
	if err := s.InsertAchievementHistory(ctx, steamID, db.AchievementHistory{
		RecordedAt: base, TotalAchievements: 15, UnlockedAchievements: 10, GamesWithAchievements: 2, AvgCompletionPercent: 62.5,
	}); err != nil {
		t.Fatalf("InsertAchievementHistory() error = %v", err)
	}

	runs, err := s.RunHistory(ctx, steamID)
	if err != nil {
		t.Fatalf("RunHistory() error = %v", err)
	}
	if len(runs) != 2 || runs[0].TotalGames != 3 || runs[1].TotalGames != 4 || runs[0].UnplayedGames != 1 {
		t.Errorf("RunHistory() = %+v", runs)
	}

	history, err := s.AchievementHistory(ctx, steamID)
	if err != nil {
		t.Fatalf("AchievementHistory() error = %v", err)
	}
	if len(history) != 1 || history[0].AvgCompletionPercent != 62.5 || !history[0].RecordedAt.Equal(base) {
		t.Errorf("AchievementHistory() = %+v", history)
	}

	other, _ := s.RunHistory(ctx, "someone-else")
	if len(other) != 0 {
		t.Errorf("history leaked across users: %+v", other)
	}
}

func TestLastUpdate(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	got, err := s.LastUpdate(ctx, steamID)
	if err != nil || got != nil {
		t.Fatalf("LastUpdate() = %v, %v, want nil, nil", got, err)
	}

	for _, at := range []time.Time{base, base.Add(time.Hour)} {
		if err := s.RecordLastUpdate(ctx, steamID, at); err != nil {
			t.Fatalf("RecordLastUpdate() error = %v", err)
		}
	}

	got, err = s.LastUpdate(ctx, steamID)
	if err != nil || got == nil || !got.Equal(base.Add(time.Hour)) {
		t.Errorf("LastUpdate() = %v, %v, want %v", got, err, base.Add(time.Hour))
	}
}

func TestCommunity(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.UpsertUser(ctx, db.User{SteamID: steamID, DisplayName: "gabe"}); err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
	if err := s.UpsertUser(ctx, db.User{SteamID: steamID, DisplayName: "gaben"}); err != nil {
		t.Fatalf("second UpsertUser() error = %v", err)
	}

	comment := "great"
	if err := s.UpsertRating(ctx, db.GameRating{SteamID: steamID, AppID: 620, Rating: 3}); err != nil {
		t.Fatalf("UpsertRating() error = %v", err)
	}
	if err := s.UpsertRating(ctx, db.GameRating{SteamID: steamID, AppID: 620, Rating: 5, Comment: &comment}); err != nil {
		t.Fatalf("UpsertRating() error = %v", err)
	}
	if err := s.UpsertRating(ctx, db.GameRating{SteamID: "other", AppID: 620, Rating: 4}); err != nil {
		t.Fatalf("UpsertRating() error = %v", err)
	}

	ratings, err := s.CommunityRatings(ctx, 620)
	if err != nil {
		t.Fatalf("CommunityRatings() error = %v", err)
	}
	if len(ratings) != 2 {
		t.Fatalf("got %d ratings, want 2 (one per user)", len(ratings))
	}
	if cr := db.NewCommunityRating(620, ratings); cr.AvgRating != 4.5 {
		t.Errorf("average = %v, want 4.5", cr.AvgRating)
	}

	if err := s.UpsertRating(ctx, db.GameRating{SteamID: steamID, AppID: 620, Rating: 9}); err == nil {
		t.Error("UpsertRating() accepted rating 9")
	}

	if err := s.InsertTip(ctx, db.AchievementTip{SteamID: steamID, AppID: 620, APIName: "PORTAL", Difficulty: 2, Tip: "Look up"}); err != nil {
		t.Fatalf("InsertTip() error = %v", err)
	}
	tips, err := s.AchievementTips(ctx, 620, "PORTAL")
	if err != nil {
		t.Fatalf("AchievementTips() error = %v", err)
	}
	if len(tips) != 1 || tips[0].Tip != "Look up" || tips[0].Difficulty != 2 {
		t.Errorf("AchievementTips() = %+v", tips)
	}
	if none, _ := s.AchievementTips(ctx, 620, "OTHER"); len(none) != 0 {
		t.Errorf("AchievementTips(OTHER) = %+v, want none", none)
	}
}
