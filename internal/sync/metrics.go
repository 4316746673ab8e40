package sync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FlowsTotal counts finished flows by kind and outcome.
	FlowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overachiever_sync_flows_total",
			Help: "Total number of sync flows by flow and outcome",
		},
		[]string{"flow", "outcome"},
	)

	// FlowDuration tracks wall-clock time of a flow.
	FlowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "overachiever_sync_flow_duration_seconds",
			Help:    "Duration of sync flows in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"flow"},
	)

	// GamesScrapedTotal counts per-game scrape results.
	GamesScrapedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overachiever_sync_games_scraped_total",
			Help: "Total number of per-game achievement scrapes by result",
		},
		[]string{"result"},
	)

	// GameSkipsTotal counts skipped games by error kind.
	GameSkipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overachiever_sync_game_skips_total",
			Help: "Total number of games skipped during a scrape by error kind",
		},
		[]string{"kind"},
	)

	// FirstPlaysTotal counts recorded first plays.
	FirstPlaysTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "overachiever_sync_first_plays_total",
			Help: "Total number of first plays detected",
		},
	)
)

// recordFlow records the outcome of a finished flow.
func recordFlow(flow string, err error, elapsed time.Duration) {
	outcome := "done"
	if err != nil {
		outcome = Kind(err)
	}
	FlowsTotal.WithLabelValues(flow, outcome).Inc()
	FlowDuration.WithLabelValues(flow).Observe(elapsed.Seconds())
}

// recordScrape records one game of the scrape phase. err is nil on success.
func recordScrape(zero bool, err error) {
	switch {
	case err != nil:
		GamesScrapedTotal.WithLabelValues("skipped").Inc()
		GameSkipsTotal.WithLabelValues(Kind(err)).Inc()
	case zero:
		GamesScrapedTotal.WithLabelValues("no_achievements").Inc()
	default:
		GamesScrapedTotal.WithLabelValues("scraped").Inc()
	}
}
