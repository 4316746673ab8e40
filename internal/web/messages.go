package web

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/justestif/go-overachiever/internal/db"
	"github.com/justestif/go-overachiever/internal/sync"
)

// Client message types.
const (
	MsgAuthenticate         = "Authenticate"
	MsgFetchGames           = "FetchGames"
	MsgFetchAchievements    = "FetchAchievements"
	MsgSyncFromSteam        = "SyncFromSteam"
	MsgFullScan             = "FullScan"
	MsgFetchHistory         = "FetchHistory"
	MsgSubmitRating         = "SubmitRating"
	MsgSubmitAchievementTip = "SubmitAchievementTip"
	MsgGetCommunityRatings  = "GetCommunityRatings"
	MsgGetCommunityTips     = "GetCommunityTips"
	MsgPing                 = "Ping"
)

// ClientMessage is any message a browser sends. Type selects which of the
// other fields are meaningful.
type ClientMessage struct {
	Type       string  `json:"type"`
	Token      string  `json:"token,omitempty"`
	AppID      int64   `json:"appid,omitempty"`
	Force      bool    `json:"force,omitempty"`
	Rating     int     `json:"rating,omitempty"`
	Comment    *string `json:"comment,omitempty"`
	APIName    string  `json:"apiname,omitempty"`
	Difficulty int     `json:"difficulty,omitempty"`
	Tip        string  `json:"tip,omitempty"`
}

var errMissingType = errors.New("missing message type")

// DecodeClientMessage parses one client frame.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, err
	}
	if msg.Type == "" {
		return msg, errMissingType
	}
	return msg, nil
}

// ServerMessage is a message sent to the browser. Its fields are encoded next
// to a "type" tag naming the message.
type ServerMessage interface {
	MessageType() string
}

// UserProfile identifies the authenticated user.
type UserProfile struct {
	SteamID     string  `json:"steam_id"`
	DisplayName string  `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

// Authenticated confirms a valid token and names the user it belongs to.
type Authenticated struct {
	User UserProfile `json:"user"`
}

// AuthError rejects a token, or a request that needs one.
type AuthError struct {
	Reason string `json:"reason"`
}

// Games lists the user's library.
type Games struct {
	Games []db.Game `json:"games"`
}

// Achievements lists one game's achievements with the user's unlock state.
type Achievements struct {
	AppID        int64                `json:"appid"`
	Achievements []db.GameAchievement `json:"achievements"`
}

// SyncProgress carries one non-terminal sync event, or the Error that ended a
// sync.
type SyncProgress struct {
	State sync.Event `json:"-"`
}

// SyncComplete carries the Done event of a sync.
type SyncComplete struct {
	Result sync.Summary `json:"result"`
	Games  []db.Game    `json:"games"`
}

// CommunityRatings summarizes every rating of a game.
type CommunityRatings struct {
	db.CommunityRating
}

// CommunityTips lists the tips left for one achievement.
type CommunityTips struct {
	AppID   int64               `json:"appid"`
	APIName string              `json:"apiname"`
	Tips    []db.AchievementTip `json:"tips"`
}

// RatingSubmitted acknowledges a stored rating.
type RatingSubmitted struct {
	AppID int64 `json:"appid"`
}

// TipSubmitted acknowledges a stored tip.
type TipSubmitted struct {
	AppID   int64  `json:"appid"`
	APIName string `json:"apiname"`
}

// HistoryMessage carries the user's history and activity log.
type HistoryMessage struct {
	History
}

// ErrorMessage reports a failed request in plain text.
type ErrorMessage struct {
	Message string `json:"message"`
}

// Pong answers Ping.
type Pong struct{}

func (Authenticated) MessageType() string    { return "Authenticated" }
func (AuthError) MessageType() string        { return "AuthError" }
func (Games) MessageType() string            { return "Games" }
func (Achievements) MessageType() string     { return "Achievements" }
func (SyncProgress) MessageType() string     { return "SyncProgress" }
func (SyncComplete) MessageType() string     { return "SyncComplete" }
func (CommunityRatings) MessageType() string { return "CommunityRatings" }
func (CommunityTips) MessageType() string    { return "CommunityTips" }
func (RatingSubmitted) MessageType() string  { return "RatingSubmitted" }
func (TipSubmitted) MessageType() string     { return "TipSubmitted" }
func (HistoryMessage) MessageType() string   { return "History" }
func (ErrorMessage) MessageType() string     { return "Error" }
func (Pong) MessageType() string             { return "Pong" }

// MarshalJSON encodes the event as {"state": {"state": "...", ...}}.
func (m SyncProgress) MarshalJSON() ([]byte, error) {
	state, err := EncodeEvent(m.State)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		State json.RawMessage `json:"state"`
	}{state})
}

// EncodeServerMessage encodes m with its "type" tag.
func EncodeServerMessage(m ServerMessage) ([]byte, error) {
	return tagged("type", m.MessageType(), m)
}

// EncodeEvent encodes a sync event with its "state" tag.
func EncodeEvent(ev sync.Event) ([]byte, error) {
	if ev == nil {
		return nil, errors.New("nil event")
	}
	return tagged("state", ev.State(), ev)
}

// ToServerMessage re-encodes a sync event for the browser.
func ToServerMessage(ev sync.Event) ServerMessage {
	if done, ok := ev.(sync.Done); ok {
		games := done.Games
		if games == nil {
			games = []db.Game{}
		}
		return SyncComplete{Result: done.Summary, Games: games}
	}
	return SyncProgress{State: ev}
}

// tagged marshals v and prepends key:tag to the resulting object.
func tagged(key, tag string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", tag, err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encoding %s: not an object", tag)
	}

	head, err := json.Marshal(map[string]string{key: tag})
	if err != nil {
		return nil, err
	}
	if string(body) == "{}" {
		return head, nil
	}

	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}
