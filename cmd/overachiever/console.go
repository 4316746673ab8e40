package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/justestif/go-overachiever/internal/db"
	"github.com/justestif/go-overachiever/internal/sync"
)

// pollInterval is how often the console drains queued sync events.
const pollInterval = 100 * time.Millisecond

// followFlow runs flow on its own goroutine and prints its events from a
// polled queue until the flow returns.
func followFlow(out io.Writer, flow func(sync.Observer) error) error {
	q := sync.NewQueue()
	errc := make(chan error, 1)
	go func() {
		errc <- flow(q)
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-errc:
			for _, ev := range q.Drain() {
				printEvent(out, ev)
			}
			return err
		case <-ticker.C:
			for ev, ok := q.Poll(); ok; ev, ok = q.Poll() {
				printEvent(out, ev)
			}
		}
	}
}

func printEvent(out io.Writer, ev sync.Event) {
	if line := formatEvent(ev); line != "" {
		fmt.Fprintln(out, line)
	}
}

// formatEvent renders one event, or "" for events not worth a line.
func formatEvent(ev sync.Event) string {
	switch e := ev.(type) {
	case sync.Starting:
		return "Starting sync..."
	case sync.FetchingGames:
		return "Fetching owned games..."
	case sync.FetchingRecentlyPlayed:
		return "Fetching recently played games..."
	case sync.ScrapingAchievements:
		return fmt.Sprintf("[%d/%d] %s", e.Current, e.Total, e.GameName)
	case sync.GameUpdated:
		return fmt.Sprintf("       %d/%d achievements", e.Unlocked, e.Total)
	case sync.Done:
		return fmt.Sprintf("Done: %d games updated, %d achievements, %d new games",
			e.Summary.GamesUpdated, e.Summary.AchievementsUpdated, e.Summary.NewGames)
	case sync.Error:
		return "Sync failed: " + e.Message
	default:
		return ""
	}
}

func staleWarning(last *time.Time, now time.Time) string {
	if last == nil {
		return "No previous update found. Run 'overachiever scan' to scrape your whole library."
	}
	days := int(now.Sub(*last).Hours() / 24)
	return fmt.Sprintf("Last update was %d days ago. Games played since then may fall outside Steam's "+
		"%d-day recently played window; run 'overachiever scan' to catch up.",
		days, int(sync.RecentlyPlayedWindow.Hours()/24))
}

func printHistory(out io.Writer, runs []db.RunHistory, entries []db.LogEntry) {
	fmt.Fprintln(out, "Runs:")
	if len(runs) == 0 {
		fmt.Fprintln(out, "  (none)")
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, r := range runs {
		fmt.Fprintf(w, "  %s\t%d games\t%d unplayed\n", r.RunAt.Local().Format(time.DateTime), r.TotalGames, r.UnplayedGames)
	}
	w.Flush()

	fmt.Fprintln(out, "\nRecent activity:")
	if len(entries) == 0 {
		fmt.Fprintln(out, "  (none)")
	}
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		when := e.Timestamp.Local().Format(time.DateTime)
		switch e.Type {
		case db.LogEntryFirstPlay:
			fmt.Fprintf(w, "  %s\t%s\tfirst played\n", when, e.GameName)
		default:
			fmt.Fprintf(w, "  %s\t%s\t%s\n", when, e.GameName, e.AchievementName)
		}
	}
	w.Flush()
}

func printStats(out io.Writer, games []db.Game, st sync.Stats, includeUnplayed bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Games\t%d\n", len(games))
	fmt.Fprintf(w, "Games with achievements\t%d\n", st.GamesWithAchievements)
	fmt.Fprintf(w, "Achievements\t%d / %d\n", st.UnlockedAchievements, st.TotalAchievements)
	scope := "played games"
	if includeUnplayed {
		scope = "all games"
	}
	fmt.Fprintf(w, "Average completion (%s)\t%.1f%%\n", scope, st.AvgCompletionPercent)
	w.Flush()
}
