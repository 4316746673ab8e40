// Package sync keeps a user's stored library consistent with Steam. It runs
// the Update and Full Scan flows, merges fetched achievements into the store
// and reports progress as a stream of events.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/justestif/go-overachiever/internal/db"
	"github.com/justestif/go-overachiever/internal/logging"
	"github.com/justestif/go-overachiever/internal/steam"
)

// DefaultPacing is the fixed delay between per-game scrapes.
const DefaultPacing = 200 * time.Millisecond

// Flow names used in logs and metrics.
const (
	FlowUpdate   = "update"
	FlowFullScan = "full_scan"
)

// Source is the external game source. *steam.Client implements it.
type Source interface {
	GetOwnedGames(ctx context.Context, steamID string) ([]steam.OwnedGame, error)
	GetRecentlyPlayed(ctx context.Context, steamID string) ([]int64, error)
	GetPlayerAchievements(ctx context.Context, steamID string, appID int64) ([]steam.PlayerAchievement, error)
	GetSchemaForGame(ctx context.Context, appID int64) ([]steam.SchemaAchievement, error)
}

// Store is the persistent store the flows write to. All writes are upserts or
// appends keyed by user and game, so repeating them is safe.
type Store interface {
	AllGames(ctx context.Context, steamID string) ([]db.Game, error)
	GamesNeverScraped(ctx context.Context, steamID string) ([]db.Game, error)
	// UpsertGames inserts or updates library entries without touching
	// achievement counts or added_at of existing rows.
	UpsertGames(ctx context.Context, steamID string, games []db.Game) error
	UpdateAchievementCounts(ctx context.Context, steamID string, appID int64, total, unlocked int, scrapedAt time.Time) error
	MarkZeroAchievements(ctx context.Context, steamID string, appID int64, scrapedAt time.Time) error
	// UpsertAchievementStates never replaces a stored unlock time with null.
	UpsertAchievementStates(ctx context.Context, steamID string, appID int64, states []db.AchievementState) error
	UpsertAchievementSchema(ctx context.Context, appID int64, entries []db.SchemaEntry) error
	InsertRunHistory(ctx context.Context, steamID string, run db.RunHistory) error
	InsertAchievementHistory(ctx context.Context, steamID string, h db.AchievementHistory) error
	RecordLastUpdate(ctx context.Context, steamID string, at time.Time) error
	LastUpdate(ctx context.Context, steamID string) (*time.Time, error)
	// RecordFirstPlay is insert-or-ignore.
	RecordFirstPlay(ctx context.Context, steamID string, appID int64, playedAt time.Time) error
}

// Session is the credentials handle a flow runs with. A nil Source means no
// API key is configured.
type Session struct {
	SteamID string
	Source  Source
}

func (sess Session) validate() error {
	if sess.Source == nil {
		return ErrNotConfigured
	}
	if sess.SteamID == "" {
		return ErrNotAuthenticated
	}
	return nil
}

// Result is the outcome of a successful flow.
type Result struct {
	Summary Summary
	Games   []db.Game
}

// Service runs sync flows. It holds no per-flow state, but the flows are not
// reentrant: callers must run at most one flow per user at a time.
type Service struct {
	store  Store
	pacing time.Duration
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPacing sets the delay between per-game scrapes. Zero disables pacing.
func WithPacing(d time.Duration) Option {
	return func(s *Service) {
		s.pacing = d
	}
}

// WithClock sets the clock used for stored timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a new sync service.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		pacing: DefaultPacing,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunUpdate syncs the owned-games list and scrapes achievements of recently
// played games. Events are sent to obs, which may be nil; the last one is
// always Done or Error.
func (s *Service) RunUpdate(ctx context.Context, sess Session, obs Observer) (*Result, error) {
	return s.run(ctx, sess, FlowUpdate, false, obs)
}

// RunFullScan syncs the owned-games list and scrapes achievements of every
// never-scraped game, or of every game when force is set.
func (s *Service) RunFullScan(ctx context.Context, sess Session, force bool, obs Observer) (*Result, error) {
	return s.run(ctx, sess, FlowFullScan, force, obs)
}

// LastUpdate returns when the last flow completed, or nil if none has.
func (s *Service) LastUpdate(ctx context.Context, steamID string) (*time.Time, error) {
	t, err := s.store.LastUpdate(ctx, steamID)
	if err != nil {
		return nil, storeErr("getting last update", err)
	}
	return t, nil
}

func (s *Service) run(ctx context.Context, sess Session, flow string, force bool, obs Observer) (*Result, error) {
	if logging.RunIDFromContext(ctx) == "" {
		ctx = logging.ContextWithRunID(ctx, logging.NewRunID())
	}
	logger := logging.Ctx(ctx).With().
		Str("flow", flow).
		Str("steam_id", sess.SteamID).
		Bool("force", force).
		Logger()

	em := &emitter{obs: obs}
	start := time.Now()

	logger.Info().Msg("sync started")
	res, err := s.runFlow(ctx, sess, flow, force, em, &logger)
	recordFlow(flow, err, time.Since(start))

	if err != nil {
		logger.Error().Err(err).Str("kind", Kind(err)).Msg("sync failed")
		em.emit(Error{Message: err.Error()})
		return nil, err
	}

	logger.Info().
		Int("games_updated", res.Summary.GamesUpdated).
		Int("achievements_updated", res.Summary.AchievementsUpdated).
		Int("new_games", res.Summary.NewGames).
		Dur("duration", time.Since(start)).
		Msg("sync complete")
	em.emit(Done{Summary: res.Summary, Games: res.Games})
	return res, nil
}

func (s *Service) runFlow(ctx context.Context, sess Session, flow string, force bool, em *emitter, logger *zerolog.Logger) (*Result, error) {
	em.emit(Starting{})
	if err := sess.validate(); err != nil {
		return nil, err
	}

	em.emit(FetchingGames{})
	owned, err := sess.Source.GetOwnedGames(ctx, sess.SteamID)
	if err != nil {
		return nil, err
	}

	newGames, err := s.syncOwnedGames(ctx, sess.SteamID, owned, logger)
	if err != nil {
		return nil, err
	}
	summary := Summary{NewGames: newGames}

	var targets []db.Game
	switch flow {
	case FlowUpdate:
		em.emit(FetchingRecentlyPlayed{})
		recent, err := sess.Source.GetRecentlyPlayed(ctx, sess.SteamID)
		if err != nil {
			return nil, err
		}
		if err := s.recordRun(ctx, sess.SteamID, owned); err != nil {
			return nil, err
		}
		targets = recentTargets(owned, recent, s.now())
		logger.Debug().Int("recently_played", len(recent)).Int("targets", len(targets)).Msg("selected recently played games")

	case FlowFullScan:
		if err := s.recordRun(ctx, sess.SteamID, owned); err != nil {
			return nil, err
		}
		targets, err = s.scanTargets(ctx, sess.SteamID, force)
		if err != nil {
			return nil, err
		}
		logger.Debug().Int("targets", len(targets)).Msg("selected games to scan")

	default:
		return nil, fmt.Errorf("unknown flow %q", flow)
	}

	hadAchievements, err := s.scrape(ctx, sess, targets, em, &summary, logger)
	if err != nil {
		return nil, err
	}

	return s.finish(ctx, sess.SteamID, summary, hadAchievements)
}

// syncOwnedGames upserts the owned games, records first plays and returns how
// many games were not stored before.
func (s *Service) syncOwnedGames(ctx context.Context, steamID string, owned []steam.OwnedGame, logger *zerolog.Logger) (int, error) {
	prev, err := s.store.AllGames(ctx, steamID)
	if err != nil {
		return 0, storeErr("getting games", err)
	}
	prevByID := make(map[int64]db.Game, len(prev))
	for _, g := range prev {
		prevByID[g.AppID] = g
	}

	now := s.now()
	games := make([]db.Game, len(owned))
	var newGames int
	var firstPlays []db.FirstPlay

	for i, o := range owned {
		games[i] = toGame(o, now)

		p, ok := prevByID[o.AppID]
		if !ok {
			newGames++
			continue
		}
		if p.PlaytimeForever == 0 && o.PlaytimeForever > 0 {
			playedAt := now
			if o.RtimeLastPlayed > 0 {
				playedAt = time.Unix(o.RtimeLastPlayed, 0).UTC()
			}
			firstPlays = append(firstPlays, db.FirstPlay{AppID: o.AppID, GameName: o.Name, PlayedAt: playedAt})
		}
	}

	if err := s.store.UpsertGames(ctx, steamID, games); err != nil {
		return 0, storeErr("upserting games", err)
	}

	for _, fp := range firstPlays {
		if err := s.store.RecordFirstPlay(ctx, steamID, fp.AppID, fp.PlayedAt); err != nil {
			return 0, storeErr("recording first play", err)
		}
		FirstPlaysTotal.Inc()
		logger.Info().Int64("appid", fp.AppID).Str("game", fp.GameName).Msg("first play detected")
	}

	return newGames, nil
}

// recordRun appends a library-size snapshot.
func (s *Service) recordRun(ctx context.Context, steamID string, owned []steam.OwnedGame) error {
	run := db.RunHistory{RunAt: s.now(), TotalGames: len(owned)}
	for _, o := range owned {
		if o.PlaytimeForever == 0 {
			run.UnplayedGames++
		}
	}
	if err := s.store.InsertRunHistory(ctx, steamID, run); err != nil {
		return storeErr("inserting run history", err)
	}
	return nil
}

func (s *Service) scanTargets(ctx context.Context, steamID string, force bool) ([]db.Game, error) {
	if force {
		games, err := s.store.AllGames(ctx, steamID)
		if err != nil {
			return nil, storeErr("getting games", err)
		}
		return games, nil
	}
	games, err := s.store.GamesNeverScraped(ctx, steamID)
	if err != nil {
		return nil, storeErr("getting games to scan", err)
	}
	return games, nil
}

// recentTargets returns the owned games that were recently played, in owned order.
func recentTargets(owned []steam.OwnedGame, recent []int64, now time.Time) []db.Game {
	if len(recent) == 0 {
		return nil
	}
	ids := make(map[int64]struct{}, len(recent))
	for _, id := range recent {
		ids[id] = struct{}{}
	}
	var targets []db.Game
	for _, o := range owned {
		if _, ok := ids[o.AppID]; ok {
			targets = append(targets, toGame(o, now))
		}
	}
	return targets
}

// scrape fetches and merges achievements for each target. Per-game failures
// are logged and skipped; only cancellation stops the loop.
func (s *Service) scrape(ctx context.Context, sess Session, targets []db.Game, em *emitter, summary *Summary, logger *zerolog.Logger) (bool, error) {
	limit := rate.Inf
	if s.pacing > 0 {
		limit = rate.Every(s.pacing)
	}
	limiter := rate.NewLimiter(limit, 1)

	var hadAchievements bool
	for i, g := range targets {
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("sync canceled: %w", err)
		}
		if err := limiter.Wait(ctx); err != nil {
			return false, fmt.Errorf("sync canceled: %w", err)
		}

		res, err := s.scrapeGame(ctx, sess, g.AppID)
		recordScrape(err == nil && res.Total == 0, err)
		if err != nil {
			logger.Warn().Err(err).
				Int64("appid", g.AppID).
				Str("game", g.Name).
				Str("kind", Kind(err)).
				Msg("skipping game")
		} else {
			summary.GamesUpdated++
			summary.AchievementsUpdated += res.Total
			if res.Total > 0 {
				hadAchievements = true
			}
		}

		em.emit(ScrapingAchievements{Current: i + 1, Total: len(targets), GameName: g.Name})
		if err == nil {
			em.emit(GameUpdated{AppID: g.AppID, Unlocked: res.Unlocked, Total: res.Total})
		}
	}

	return hadAchievements, nil
}

// scrapeGame fetches progress and schema for one game and merges them. A game
// without achievements is marked as such and its schema is not fetched.
func (s *Service) scrapeGame(ctx context.Context, sess Session, appID int64) (MergeResult, error) {
	progress, err := sess.Source.GetPlayerAchievements(ctx, sess.SteamID, appID)
	if err != nil {
		return MergeResult{}, err
	}

	if len(progress) == 0 {
		if err := s.store.MarkZeroAchievements(ctx, sess.SteamID, appID, s.now()); err != nil {
			return MergeResult{}, storeErr("marking zero achievements", err)
		}
		return MergeResult{}, nil
	}

	schema, err := sess.Source.GetSchemaForGame(ctx, appID)
	if err != nil {
		return MergeResult{}, err
	}

	return s.MergeAchievements(ctx, sess.SteamID, appID, progress, schema)
}

// finish appends the achievement snapshot, records the update time and
// re-reads the stored library.
func (s *Service) finish(ctx context.Context, steamID string, summary Summary, hadAchievements bool) (*Result, error) {
	now := s.now()

	if hadAchievements {
		all, err := s.store.AllGames(ctx, steamID)
		if err != nil {
			return nil, storeErr("getting games", err)
		}
		stats := ComputeStats(all, false)
		if err := s.store.InsertAchievementHistory(ctx, steamID, stats.History(now)); err != nil {
			return nil, storeErr("inserting achievement history", err)
		}
	}

	if err := s.store.RecordLastUpdate(ctx, steamID, now); err != nil {
		return nil, storeErr("recording last update", err)
	}

	games, err := s.store.AllGames(ctx, steamID)
	if err != nil {
		return nil, storeErr("getting games", err)
	}

	return &Result{Summary: summary, Games: games}, nil
}

func toGame(o steam.OwnedGame, addedAt time.Time) db.Game {
	g := db.Game{
		AppID:           o.AppID,
		Name:            o.Name,
		PlaytimeForever: o.PlaytimeForever,
		AddedAt:         addedAt,
	}
	if o.RtimeLastPlayed > 0 {
		ts := o.RtimeLastPlayed
		g.RtimeLastPlayed = &ts
	}
	if o.ImgIconURL != "" {
		icon := o.ImgIconURL
		g.ImgIconURL = &icon
	}
	return g
}
