package web

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/justestif/go-overachiever/internal/sync"
)

type wsConn struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialWS(t *testing.T, env *testEnv) *wsConn {
	t.Helper()
	ts := httptest.NewServer(env.server.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &wsConn{t: t, conn: conn}
}

func (c *wsConn) send(msg string) {
	c.t.Helper()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

// recv reads one server message as a generic object.
func (c *wsConn) recv() map[string]any {
	c.t.Helper()
	if err := c.conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		c.t.Fatalf("deadline: %v", err)
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		c.t.Fatalf("decoding %s: %v", data, err)
	}
	return m
}

func (c *wsConn) expect(typ string) map[string]any {
	c.t.Helper()
	m := c.recv()
	if m["type"] != typ {
		c.t.Fatalf("got message %v, want type %s", m, typ)
	}
	return m
}

func (c *wsConn) authenticate(env *testEnv) {
	c.t.Helper()
	c.send(`{"type":"Authenticate","token":"` + env.token(c.t) + `"}`)
	m := c.expect("Authenticated")
	user := m["user"].(map[string]any)
	if user["steam_id"] != testSteamID {
		c.t.Fatalf("authenticated as %v", user["steam_id"])
	}
}

func TestWebSocket_PingAndErrors(t *testing.T) {
	env := newTestEnv(t)
	c := dialWS(t, env)

	c.send(`{"type":"Ping"}`)
	c.expect("Pong")

	c.send(`not json`)
	c.expect("Error")

	c.send(`{"type":"FetchGames"}`)
	if m := c.expect("AuthError"); m["reason"] != "Not authenticated" {
		t.Errorf("reason = %v", m["reason"])
	}

	c.send(`{"type":"Authenticate","token":"garbage"}`)
	c.expect("AuthError")

	c.authenticate(env)
	c.send(`{"type":"Dance"}`)
	c.expect("Error")
}

func TestWebSocket_SyncFromSteam(t *testing.T) {
	env := newTestEnv(t)
	c := dialWS(t, env)
	c.authenticate(env)

	c.send(`{"type":"SyncFromSteam"}`)

	var states []string
	var complete map[string]any
	for complete == nil {
		m := c.recv()
		switch m["type"] {
		case "SyncProgress":
			state := m["state"].(map[string]any)
			states = append(states, state["state"].(string))
			if state["state"] == "Error" {
				t.Fatalf("sync failed: %v", state["message"])
			}
		case "SyncComplete":
			complete = m
		default:
			t.Fatalf("unexpected message %v", m)
		}
	}

	want := []string{"Starting", "FetchingGames", "FetchingRecentlyPlayed", "ScrapingAchievements", "GameUpdated"}
	if strings.Join(states, ",") != strings.Join(want, ",") {
		t.Errorf("states = %v, want %v", states, want)
	}

	result := complete["result"].(map[string]any)
	if result["games_updated"] != float64(1) || result["achievements_updated"] != float64(2) || result["new_games"] != float64(2) {
		t.Errorf("result = %v", result)
	}
	if games := complete["games"].([]any); len(games) != 2 {
		t.Errorf("SyncComplete carried %d games, want 2", len(games))
	}

	c.send(`{"type":"FetchAchievements","appid":400}`)
	m := c.expect("Achievements")
	if list := m["achievements"].([]any); len(list) != 2 {
		t.Errorf("got %d achievements, want 2", len(list))
	}

	c.send(`{"type":"FetchHistory"}`)
	m = c.expect("History")
	if runs := m["run_history"].([]any); len(runs) != 1 {
		t.Errorf("got %d runs, want 1", len(runs))
	}
}

func TestWebSocket_SyncWithoutSource(t *testing.T) {
	env := newTestEnv(t, func(cfg *ServerConfig) { cfg.Source = nil })
	c := dialWS(t, env)
	c.authenticate(env)

	c.send(`{"type":"FullScan","force":true}`)
	c.expect("SyncProgress") // Starting
	m := c.expect("SyncProgress")
	state := m["state"].(map[string]any)
	if state["state"] != "Error" || !strings.Contains(state["message"].(string), "Steam API key not configured") {
		t.Errorf("state = %v, want not-configured error", state)
	}
}

func TestWebSocket_OneSyncPerUser(t *testing.T) {
	env := newTestEnv(t)
	env.source.block = make(chan struct{})

	first := dialWS(t, env)
	first.authenticate(env)
	second := dialWS(t, env)
	second.authenticate(env)

	first.send(`{"type":"SyncFromSteam"}`)
	first.expect("SyncProgress") // Starting
	first.expect("SyncProgress") // FetchingGames, now blocked

	second.send(`{"type":"FullScan","force":false}`)
	if m := second.expect("Error"); m["message"] != ErrSyncInProgress.Error() {
		t.Errorf("message = %v, want %q", m["message"], ErrSyncInProgress)
	}

	close(env.source.block)
	for {
		if m := first.recv(); m["type"] == "SyncComplete" {
			break
		}
	}

	// The guard is released once the flow ends.
	second.send(`{"type":"SyncFromSteam"}`)
	for {
		if m := second.recv(); m["type"] == "SyncComplete" {
			break
		}
	}
}

func TestRunSync_ReleasesGuardOnce(t *testing.T) {
	env := newTestEnv(t)
	hub := env.server.hub

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &Client{
		hub:    hub,
		server: env.server,
		send:   make(chan []byte),
		ctx:    ctx,
		cancel: cancel,
		logger: zerolog.Nop(),
	}

	if !hub.acquireSync(testSteamID) {
		t.Fatal("acquireSync() = false on an idle hub")
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.runSync(testSteamID, sync.FlowUpdate, false)
	}()

	timeout := time.After(5 * time.Second)
	for complete := false; !complete; {
		select {
		case data := <-c.send:
			var m map[string]any
			if err := json.Unmarshal(data, &m); err != nil {
				t.Fatalf("decoding %s: %v", data, err)
			}
			complete = m["type"] == "SyncComplete"
		case <-timeout:
			t.Fatal("timed out waiting for SyncComplete")
		}
	}

	// A second flow takes the guard before the first one has returned.
	if !hub.acquireSync(testSteamID) {
		t.Fatal("acquireSync() = false after SyncComplete")
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runSync did not return")
	}

	if hub.acquireSync(testSteamID) {
		t.Error("acquireSync() = true while the second flow holds the guard")
	}
}

func TestWebSocket_CommunityMessages(t *testing.T) {
	env := newTestEnv(t)
	c := dialWS(t, env)

	c.send(`{"type":"GetCommunityRatings","appid":620}`)
	if m := c.expect("CommunityRatings"); m["rating_count"] != float64(0) {
		t.Errorf("rating_count = %v, want 0", m["rating_count"])
	}

	c.send(`{"type":"SubmitRating","appid":620,"rating":5}`)
	c.expect("AuthError")

	c.authenticate(env)
	c.send(`{"type":"SubmitRating","appid":620,"rating":7}`)
	c.expect("Error")

	c.send(`{"type":"SubmitRating","appid":620,"rating":5}`)
	c.expect("RatingSubmitted")

	c.send(`{"type":"SubmitAchievementTip","appid":620,"apiname":"ACH_X","difficulty":4,"tip":"use the portal gun"}`)
	c.expect("TipSubmitted")

	c.send(`{"type":"GetCommunityTips","appid":620,"apiname":"ACH_X"}`)
	m := c.expect("CommunityTips")
	if tips := m["tips"].([]any); len(tips) != 1 {
		t.Errorf("got %d tips, want 1", len(tips))
	}

	c.send(`{"type":"GetCommunityRatings","appid":620}`)
	if m := c.expect("CommunityRatings"); m["avg_rating"] != float64(5) {
		t.Errorf("avg_rating = %v, want 5", m["avg_rating"])
	}
}
