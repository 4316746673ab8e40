package sync

import (
	"time"

	"github.com/justestif/go-overachiever/internal/db"
)

// RecentlyPlayedWindow is how far back Steam's recently-played list reaches.
// An Update older than this misses games, so a Full Scan is needed.
const RecentlyPlayedWindow = 14 * 24 * time.Hour

// Stats aggregates achievement totals over a library.
type Stats struct {
	TotalAchievements     int
	UnlockedAchievements  int
	GamesWithAchievements int
	AvgCompletionPercent  float64
}

// ComputeStats aggregates games that have at least one achievement. The
// average completion only covers played games (playtime > 0) unless
// includeUnplayed is set.
func ComputeStats(games []db.Game, includeUnplayed bool) Stats {
	var stats Stats
	var pctSum float64
	var pctCount int

	for _, g := range games {
		if g.AchievementsTotal == nil || *g.AchievementsTotal <= 0 {
			continue
		}
		stats.GamesWithAchievements++
		stats.TotalAchievements += *g.AchievementsTotal
		if g.AchievementsUnlocked != nil {
			stats.UnlockedAchievements += *g.AchievementsUnlocked
		}

		if !includeUnplayed && g.PlaytimeForever <= 0 {
			continue
		}
		if pct, ok := g.CompletionPercent(); ok {
			pctSum += pct
			pctCount++
		}
	}

	if pctCount > 0 {
		stats.AvgCompletionPercent = pctSum / float64(pctCount)
	}
	return stats
}

// History converts stats into an achievement history snapshot.
func (st Stats) History(at time.Time) db.AchievementHistory {
	return db.AchievementHistory{
		RecordedAt:            at,
		TotalAchievements:     st.TotalAchievements,
		UnlockedAchievements:  st.UnlockedAchievements,
		GamesWithAchievements: st.GamesWithAchievements,
		AvgCompletionPercent:  st.AvgCompletionPercent,
	}
}

// IsStale reports whether recently-played data can no longer be trusted to
// cover everything since the last Update.
func IsStale(lastUpdate *time.Time, now time.Time) bool {
	if lastUpdate == nil {
		return true
	}
	return now.Sub(*lastUpdate) > RecentlyPlayedWindow
}

// CanFullScan reports whether a Full Scan has anything to do.
func CanFullScan(needsScrape int, force bool) bool {
	return needsScrape > 0 || force
}
