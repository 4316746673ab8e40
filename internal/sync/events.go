package sync

import (
	gosync "sync"

	"github.com/justestif/go-overachiever/internal/db"
)

// Event is a progress event emitted by a sync flow. The set of implementations
// is closed: Starting, FetchingGames, FetchingRecentlyPlayed,
// ScrapingAchievements, GameUpdated, Done and Error.
type Event interface {
	// State returns the event's wire tag.
	State() string
	isEvent()
}

// Starting is the first event of every flow.
type Starting struct{}

// FetchingGames is emitted before the owned-games call.
type FetchingGames struct{}

// FetchingRecentlyPlayed is emitted before the recently-played call (Update only).
type FetchingRecentlyPlayed struct{}

// ScrapingAchievements is emitted after each game of the scrape phase, whether
// or not the game was scraped successfully.
type ScrapingAchievements struct {
	Current  int    `json:"current"`
	Total    int    `json:"total"`
	GameName string `json:"game_name"`
}

// GameUpdated carries a game's new counts after a successful scrape.
type GameUpdated struct {
	AppID    int64 `json:"appid"`
	Unlocked int   `json:"unlocked"`
	Total    int   `json:"total"`
}

// Done terminates a successful flow.
type Done struct {
	Summary Summary   `json:"summary"`
	Games   []db.Game `json:"games"`
}

// Error terminates a failed flow. Message is shown to the user verbatim.
type Error struct {
	Message string `json:"message"`
}

func (Starting) State() string               { return "Starting" }
func (FetchingGames) State() string          { return "FetchingGames" }
func (FetchingRecentlyPlayed) State() string { return "FetchingRecentlyPlayed" }
func (ScrapingAchievements) State() string   { return "ScrapingAchievements" }
func (GameUpdated) State() string            { return "GameUpdated" }
func (Done) State() string                   { return "Done" }
func (Error) State() string                  { return "Error" }

func (Starting) isEvent()               {}
func (FetchingGames) isEvent()          {}
func (FetchingRecentlyPlayed) isEvent() {}
func (ScrapingAchievements) isEvent()   {}
func (GameUpdated) isEvent()            {}
func (Done) isEvent()                   {}
func (Error) isEvent()                  {}

// Summary is the terminal summary of a flow.
type Summary struct {
	GamesUpdated        int `json:"games_updated"`
	AchievementsUpdated int `json:"achievements_updated"`
	NewGames            int `json:"new_games"`
}

// IsTerminal reports whether e ends a flow.
func IsTerminal(e Event) bool {
	switch e.(type) {
	case Done, Error:
		return true
	default:
		return false
	}
}

// Observer receives the events of a flow in order. OnEvent is called from the
// goroutine running the flow and should not block for long.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent calls f(e).
func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Queue is an unbounded Observer that a consumer polls without blocking,
// typically once per render tick.
type Queue struct {
	mu     gosync.Mutex
	events []Event
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// OnEvent appends e to the queue.
func (q *Queue) OnEvent(e Event) {
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()
}

// Poll removes and returns the oldest event, or false if the queue is empty.
func (q *Queue) Poll() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil, false
	}
	e := q.events[0]
	q.events[0] = nil
	q.events = q.events[1:]
	return e, true
}

// Drain removes and returns every queued event.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	events := q.events
	q.events = nil
	return events
}

// emitter forwards events to an observer and enforces a single terminal event.
type emitter struct {
	obs  Observer
	done bool
}

func (e *emitter) emit(ev Event) {
	if e.done {
		return
	}
	if IsTerminal(ev) {
		e.done = true
	}
	if e.obs != nil {
		e.obs.OnEvent(ev)
	}
}
