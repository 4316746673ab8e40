package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	gosync "sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/justestif/go-overachiever/internal/db"
	"github.com/justestif/go-overachiever/internal/logging"
	"github.com/justestif/go-overachiever/internal/sync"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// ErrSyncInProgress is reported when a user starts a second sync while one runs.
var ErrSyncInProgress = errors.New("a sync is already running for this account")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers connect from the frontend origin; the token check is the gate.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub tracks connected clients and the users with a sync in flight.
type Hub struct {
	register   chan *Client
	unregister chan *Client

	mu      gosync.Mutex
	clients map[*Client]struct{}
	syncing map[string]struct{}
}

// NewHub creates an empty hub. Run must be called to service it.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]struct{}),
		syncing:    make(map[string]struct{}),
	}
}

// Run services registrations until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			logging.Debug().Int("clients", n).Msg("websocket client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.cancel()
			}
			n := len(h.clients)
			h.mu.Unlock()
			logging.Debug().Int("clients", n).Msg("websocket client disconnected")

		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.cancel()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return nil
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// acquireSync marks steamID as syncing. It reports false if it already was.
func (h *Hub) acquireSync(steamID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.syncing[steamID]; busy {
		return false
	}
	h.syncing[steamID] = struct{}{}
	return true
}

func (h *Hub) releaseSync(steamID string) {
	h.mu.Lock()
	delete(h.syncing, steamID)
	h.mu.Unlock()
}

// Client is one WebSocket connection.
type Client struct {
	hub    *Hub
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	// Only the read pump touches user. logger is never reassigned.
	user *UserProfile
}

// handleWebSocket upgrades the request and starts the client's pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	c := &Client{
		hub:    s.hub,
		server: s,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
		logger: logging.Ctx(r.Context()).With().Str("remote", r.RemoteAddr).Logger(),
	}

	select {
	case s.hub.register <- c:
	case <-ctx.Done():
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// Send queues m for the write pump. It drops m once the client is gone.
func (c *Client) Send(m ServerMessage) {
	data, err := EncodeServerMessage(m)
	if err != nil {
		c.logger.Error().Err(err).Str("type", m.MessageType()).Msg("encoding server message")
		return
	}
	select {
	case c.send <- data:
	case <-c.ctx.Done():
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.ctx.Done():
		}
		c.cancel()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		msg, err := DecodeClientMessage(data)
		if err != nil {
			c.Send(ErrorMessage{Message: fmt.Sprintf("Invalid message: %v", err)})
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug().Err(err).Msg("websocket write failed")
				c.cancel()
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handle answers one client message. Syncs run in their own goroutine so the
// connection keeps serving pings and reads while Steam is being scraped.
func (c *Client) handle(msg ClientMessage) {
	ctx := c.ctx
	store := c.server.store

	switch msg.Type {
	case MsgPing:
		c.Send(Pong{})
		return

	case MsgAuthenticate:
		claims, err := c.server.jwt.ValidateToken(msg.Token)
		if err != nil {
			c.Send(AuthError{Reason: err.Error()})
			return
		}
		c.user = &UserProfile{
			SteamID:     claims.SteamID,
			DisplayName: claims.DisplayName,
			AvatarURL:   claims.AvatarURL,
		}
		c.Send(Authenticated{User: *c.user})
		return

	case MsgGetCommunityRatings:
		ratings, err := store.CommunityRatings(ctx, msg.AppID)
		if err != nil {
			c.sendStoreError(err)
			return
		}
		c.Send(CommunityRatings{db.NewCommunityRating(msg.AppID, ratings)})
		return

	case MsgGetCommunityTips:
		tips, err := store.AchievementTips(ctx, msg.AppID, msg.APIName)
		if err != nil {
			c.sendStoreError(err)
			return
		}
		c.Send(CommunityTips{AppID: msg.AppID, APIName: msg.APIName, Tips: tips})
		return
	}

	if c.user == nil {
		c.Send(AuthError{Reason: "Not authenticated"})
		return
	}
	steamID := c.user.SteamID

	switch msg.Type {
	case MsgFetchGames:
		games, err := store.AllGames(ctx, steamID)
		if err != nil {
			c.sendStoreError(err)
			return
		}
		c.Send(Games{Games: games})

	case MsgFetchAchievements:
		achievements, err := store.GameAchievements(ctx, steamID, msg.AppID)
		if err != nil {
			c.sendStoreError(err)
			return
		}
		c.Send(Achievements{AppID: msg.AppID, Achievements: achievements})

	case MsgFetchHistory:
		h, err := loadHistory(ctx, store, steamID, c.server.logLimit)
		if err != nil {
			c.sendStoreError(err)
			return
		}
		c.Send(HistoryMessage{*h})

	case MsgSubmitRating:
		rating := db.GameRating{SteamID: steamID, AppID: msg.AppID, Rating: msg.Rating, Comment: msg.Comment}
		if err := validate.Struct(rating); err != nil {
			c.Send(ErrorMessage{Message: validationMessage(err)})
			return
		}
		if err := store.UpsertRating(ctx, rating); err != nil {
			c.sendStoreError(err)
			return
		}
		c.Send(RatingSubmitted{AppID: msg.AppID})

	case MsgSubmitAchievementTip:
		tip := db.AchievementTip{SteamID: steamID, AppID: msg.AppID, APIName: msg.APIName, Difficulty: msg.Difficulty, Tip: msg.Tip}
		if err := validate.Struct(tip); err != nil {
			c.Send(ErrorMessage{Message: validationMessage(err)})
			return
		}
		if err := store.InsertTip(ctx, tip); err != nil {
			c.sendStoreError(err)
			return
		}
		c.Send(TipSubmitted{AppID: msg.AppID, APIName: msg.APIName})

	case MsgSyncFromSteam:
		c.startSync(steamID, sync.FlowUpdate, false)

	case MsgFullScan:
		c.startSync(steamID, sync.FlowFullScan, msg.Force)

	default:
		c.Send(ErrorMessage{Message: fmt.Sprintf("Unknown message type %q", msg.Type)})
	}
}

// startSync runs a flow for steamID unless one is already running for that
// user on any connection. Events are forwarded as they arrive.
func (c *Client) startSync(steamID, flow string, force bool) {
	if !c.hub.acquireSync(steamID) {
		c.Send(ErrorMessage{Message: ErrSyncInProgress.Error()})
		return
	}

	go c.runSync(steamID, flow, force)
}

// runSync runs a flow whose guard the caller holds. The guard is released
// exactly once: on the terminal event, or when the flow returns without one.
func (c *Client) runSync(steamID, flow string, force bool) {
	release := gosync.OnceFunc(func() { c.hub.releaseSync(steamID) })
	defer release()

	sess := sync.Session{SteamID: steamID, Source: c.server.source}
	obs := sync.ObserverFunc(func(ev sync.Event) {
		// The guard is free by the time the terminal message is queued.
		if sync.IsTerminal(ev) {
			release()
		}
		c.Send(ToServerMessage(ev))
	})
	ctx := logging.ContextWithRunID(c.ctx, logging.NewRunID())
	logger := c.logger.With().Str("steam_id", steamID).Str("flow", flow).Logger()

	var err error
	switch flow {
	case sync.FlowFullScan:
		_, err = c.server.sync.RunFullScan(ctx, sess, force, obs)
	default:
		_, err = c.server.sync.RunUpdate(ctx, sess, obs)
	}
	if err != nil {
		logger.Debug().Err(err).Msg("websocket sync ended with error")
	}
}

func (c *Client) sendStoreError(err error) {
	c.logger.Error().Err(err).Msg("store request failed")
	c.Send(ErrorMessage{Message: "Database error: " + err.Error()})
}
