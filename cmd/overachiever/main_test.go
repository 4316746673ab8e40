package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/justestif/go-overachiever/internal/db"
	"github.com/justestif/go-overachiever/internal/sync"
)

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name string
		ev   sync.Event
		want string
	}{
		{"starting", sync.Starting{}, "Starting sync..."},
		{"progress", sync.ScrapingAchievements{Current: 3, Total: 10, GameName: "Portal"}, "[3/10] Portal"},
		{"done", sync.Done{Summary: sync.Summary{GamesUpdated: 2, AchievementsUpdated: 30, NewGames: 1}},
			"Done: 2 games updated, 30 achievements, 1 new games"},
		{"error", sync.Error{Message: "boom"}, "Sync failed: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatEvent(tt.ev); got != tt.want {
				t.Errorf("formatEvent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFollowFlow(t *testing.T) {
	errFlow := errors.New("flow failed")
	var out bytes.Buffer

	err := followFlow(&out, func(obs sync.Observer) error {
		obs.OnEvent(sync.Starting{})
		obs.OnEvent(sync.FetchingGames{})
		// Let the console poll at least once mid-flow.
		time.Sleep(2 * pollInterval)
		obs.OnEvent(sync.ScrapingAchievements{Current: 1, Total: 1, GameName: "Portal"})
		obs.OnEvent(sync.Error{Message: "boom"})
		return errFlow
	})
	if !errors.Is(err, errFlow) {
		t.Fatalf("followFlow() error = %v, want %v", err, errFlow)
	}

	want := "Starting sync...\nFetching owned games...\n[1/1] Portal\nSync failed: boom\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestStaleWarning(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if got := staleWarning(nil, now); !strings.Contains(got, "No previous update") {
		t.Errorf("never updated: %q", got)
	}

	last := now.Add(-20 * 24 * time.Hour)
	got := staleWarning(&last, now)
	if !strings.Contains(got, "20 days ago") || !strings.Contains(got, "14-day") {
		t.Errorf("stale warning = %q", got)
	}
}

func TestPrintStats(t *testing.T) {
	ten, five, zero := 10, 5, 0
	games := []db.Game{
		{AppID: 1, Name: "A", PlaytimeForever: 60, AchievementsTotal: &ten, AchievementsUnlocked: &ten},
		{AppID: 2, Name: "B", AchievementsTotal: &five, AchievementsUnlocked: &zero},
	}

	var buf bytes.Buffer
	printStats(&buf, games, sync.ComputeStats(games, false), false)
	if !strings.Contains(buf.String(), "100.0%") {
		t.Errorf("played-only average missing:\n%s", buf.String())
	}

	buf.Reset()
	printStats(&buf, games, sync.ComputeStats(games, true), true)
	if !strings.Contains(buf.String(), "50.0%") || !strings.Contains(buf.String(), "10 / 15") {
		t.Errorf("all-games stats wrong:\n%s", buf.String())
	}
}

func TestRun_Usage(t *testing.T) {
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "cli.db"))

	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"dance"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := run(tt.args, &out); err == nil {
				t.Error("run() expected error")
			}
		})
	}
}

func TestRun_StatsEmptyLibrary(t *testing.T) {
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("STEAM_ID", "76561197960287930")
	t.Setenv("DATABASE_URL", "")

	var out bytes.Buffer
	if err := run([]string{"stats"}, &out); err != nil {
		t.Fatalf("run(stats) error = %v", err)
	}
	if !strings.Contains(out.String(), "Games") {
		t.Errorf("stats output = %q", out.String())
	}
}

func TestRun_UpdateNeedsCredentials(t *testing.T) {
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("STEAM_API_KEY", "")
	t.Setenv("STEAM_ID", "")

	var out bytes.Buffer
	err := run([]string{"update"}, &out)
	if err == nil || !strings.Contains(err.Error(), "STEAM_API_KEY") {
		t.Errorf("run(update) error = %v, want missing API key", err)
	}
}
