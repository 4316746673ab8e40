package sync

import (
	"context"
	"errors"
	"slices"
	gosync "sync"
	"time"

	"github.com/justestif/go-overachiever/internal/db"
	"github.com/justestif/go-overachiever/internal/steam"
)

var errFake = errors.New("fake failure")

// fakeSource is a scripted Source.
type fakeSource struct {
	owned       []steam.OwnedGame
	ownedErr    error
	recent      []int64
	recentErr   error
	progress    map[int64][]steam.PlayerAchievement
	progressErr map[int64]error
	schema      map[int64][]steam.SchemaAchievement
	schemaErr   map[int64]error

	mu    gosync.Mutex
	calls []string
}

func (f *fakeSource) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeSource) GetOwnedGames(ctx context.Context, steamID string) ([]steam.OwnedGame, error) {
	f.record("owned")
	if f.ownedErr != nil {
		return nil, f.ownedErr
	}
	return f.owned, nil
}

func (f *fakeSource) GetRecentlyPlayed(ctx context.Context, steamID string) ([]int64, error) {
	f.record("recent")
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	return f.recent, nil
}

func (f *fakeSource) GetPlayerAchievements(ctx context.Context, steamID string, appID int64) ([]steam.PlayerAchievement, error) {
	f.record("progress")
	if err := f.progressErr[appID]; err != nil {
		return nil, err
	}
	return f.progress[appID], nil
}

func (f *fakeSource) GetSchemaForGame(ctx context.Context, appID int64) ([]steam.SchemaAchievement, error) {
	f.record("schema")
	if err := f.schemaErr[appID]; err != nil {
		return nil, err
	}
	return f.schema[appID], nil
}

func (f *fakeSource) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

type stateKey struct {
	appID   int64
	apiName string
}

// memStore is an in-memory Store for a single user with the same upsert
// rules as the SQL stores.
type memStore struct {
	games       []db.Game
	states      map[stateKey]db.AchievementState
	schema      map[stateKey]db.SchemaEntry
	runs        []db.RunHistory
	history     []db.AchievementHistory
	firstPlays  map[int64]time.Time
	lastUpdate  *time.Time
	failUpserts bool
	failStates  map[int64]bool
}

func newMemStore(games ...db.Game) *memStore {
	return &memStore{
		games:      games,
		states:     make(map[stateKey]db.AchievementState),
		schema:     make(map[stateKey]db.SchemaEntry),
		firstPlays: make(map[int64]time.Time),
		failStates: make(map[int64]bool),
	}
}

func (m *memStore) find(appID int64) *db.Game {
	for i := range m.games {
		if m.games[i].AppID == appID {
			return &m.games[i]
		}
	}
	return nil
}

func (m *memStore) AllGames(ctx context.Context, steamID string) ([]db.Game, error) {
	return slices.Clone(m.games), nil
}

func (m *memStore) GamesNeverScraped(ctx context.Context, steamID string) ([]db.Game, error) {
	var out []db.Game
	for _, g := range m.games {
		if g.LastAchievementScrape == nil {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memStore) UpsertGames(ctx context.Context, steamID string, games []db.Game) error {
	if m.failUpserts {
		return errFake
	}
	for _, g := range games {
		if existing := m.find(g.AppID); existing != nil {
			existing.Name = g.Name
			existing.PlaytimeForever = g.PlaytimeForever
			existing.RtimeLastPlayed = g.RtimeLastPlayed
			existing.ImgIconURL = g.ImgIconURL
			continue
		}
		m.games = append(m.games, g)
	}
	return nil
}

func (m *memStore) UpdateAchievementCounts(ctx context.Context, steamID string, appID int64, total, unlocked int, at time.Time) error {
	if g := m.find(appID); g != nil {
		g.AchievementsTotal = &total
		g.AchievementsUnlocked = &unlocked
		g.LastAchievementScrape = &at
	}
	return nil
}

func (m *memStore) MarkZeroAchievements(ctx context.Context, steamID string, appID int64, at time.Time) error {
	return m.UpdateAchievementCounts(ctx, steamID, appID, 0, 0, at)
}

func (m *memStore) UpsertAchievementStates(ctx context.Context, steamID string, appID int64, states []db.AchievementState) error {
	if m.failStates[appID] {
		return errFake
	}
	for _, st := range states {
		key := stateKey{appID, st.APIName}
		if old, ok := m.states[key]; ok && st.UnlockTime == nil {
			st.UnlockTime = old.UnlockTime
		}
		m.states[key] = st
	}
	return nil
}

func (m *memStore) UpsertAchievementSchema(ctx context.Context, appID int64, entries []db.SchemaEntry) error {
	for _, e := range entries {
		m.schema[stateKey{appID, e.APIName}] = e
	}
	return nil
}

func (m *memStore) InsertRunHistory(ctx context.Context, steamID string, run db.RunHistory) error {
	m.runs = append(m.runs, run)
	return nil
}

func (m *memStore) InsertAchievementHistory(ctx context.Context, steamID string, h db.AchievementHistory) error {
	m.history = append(m.history, h)
	return nil
}

func (m *memStore) RecordLastUpdate(ctx context.Context, steamID string, at time.Time) error {
	m.lastUpdate = &at
	return nil
}

func (m *memStore) LastUpdate(ctx context.Context, steamID string) (*time.Time, error) {
	return m.lastUpdate, nil
}

func (m *memStore) RecordFirstPlay(ctx context.Context, steamID string, appID int64, playedAt time.Time) error {
	if _, ok := m.firstPlays[appID]; !ok {
		m.firstPlays[appID] = playedAt
	}
	return nil
}
