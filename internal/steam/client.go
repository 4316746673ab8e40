// Package steam provides a client for the parts of the Steam Web API that
// overachiever syncs from: owned games, recently played games, player
// achievements and achievement schemas.
package steam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	baseURL   = "https://api.steampowered.com"
	userAgent = "overachiever/1.0"

	// DefaultTimeout bounds every Steam call.
	DefaultTimeout = 30 * time.Second
)

// Error kinds. Every error returned by Client matches one of these with errors.Is.
var (
	// ErrTransport covers network failures, timeouts and 5xx responses.
	ErrTransport = errors.New("steam transport error")

	// ErrRateLimited is returned on HTTP 429. It is a transport error.
	ErrRateLimited = fmt.Errorf("%w: rate limit exceeded", ErrTransport)

	// ErrDataUnavailable is returned for well-formed responses saying the
	// resource does not exist or cannot be read (private profile, unknown app).
	ErrDataUnavailable = errors.New("steam data unavailable")

	// ErrInvalidAPIKey is returned when Steam rejects the API key.
	ErrInvalidAPIKey = errors.New("invalid Steam API key")
)

// noStatsMessages are playerstats errors meaning "this app has no achievements".
var noStatsMessages = []string{
	"requested app has no stats",
	"no stats",
}

// Client is a Steam Web API client. All calls are sequential from the caller's
// point of view; the client does no retrying or backoff.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client for the given Web API key. A zero timeout uses DefaultTimeout.
func NewClient(apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
	}
}

// GetOwnedGames returns every game in the user's library, including free games
// that were played. A private library yields an empty slice.
func (c *Client) GetOwnedGames(ctx context.Context, steamID string) ([]OwnedGame, error) {
	id, err := parseSteamID(steamID)
	if err != nil {
		return nil, err
	}

	input, err := json.Marshal(map[string]any{
		"steamid":                   id,
		"include_appinfo":           true,
		"include_played_free_games": true,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding owned games input: %w", err)
	}

	params := url.Values{
		"key":        {c.apiKey},
		"input_json": {string(input)},
		"format":     {"json"},
	}

	body, err := c.doRequest(ctx, "/IPlayerService/GetOwnedGames/v1/", params)
	if err != nil {
		return nil, fmt.Errorf("fetching owned games: %w", statusErr(err))
	}

	var resp ownedGamesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing owned games response: %v", ErrTransport, err)
	}

	games := resp.Response.Games
	if games == nil {
		games = []OwnedGame{}
	}
	return games, nil
}

// GetRecentlyPlayed returns the app IDs Steam reports as played in the last two weeks.
func (c *Client) GetRecentlyPlayed(ctx context.Context, steamID string) ([]int64, error) {
	id, err := parseSteamID(steamID)
	if err != nil {
		return nil, err
	}

	input, err := json.Marshal(map[string]any{
		"steamid": id,
		"count":   0,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding recently played input: %w", err)
	}

	params := url.Values{
		"key":        {c.apiKey},
		"input_json": {string(input)},
		"format":     {"json"},
	}

	body, err := c.doRequest(ctx, "/IPlayerService/GetRecentlyPlayedGames/v1/", params)
	if err != nil {
		return nil, fmt.Errorf("fetching recently played games: %w", statusErr(err))
	}

	var resp recentlyPlayedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing recently played response: %v", ErrTransport, err)
	}

	appIDs := make([]int64, 0, len(resp.Response.Games))
	for _, g := range resp.Response.Games {
		appIDs = append(appIDs, g.AppID)
	}
	return appIDs, nil
}

// GetPlayerAchievements returns the player's progress for one game. A game
// without achievements yields an empty slice and a nil error.
func (c *Client) GetPlayerAchievements(ctx context.Context, steamID string, appID int64) ([]PlayerAchievement, error) {
	if _, err := parseSteamID(steamID); err != nil {
		return nil, err
	}

	params := url.Values{
		"appid":   {strconv.FormatInt(appID, 10)},
		"key":     {c.apiKey},
		"steamid": {steamID},
		"format":  {"json"},
	}

	body, err := c.doRequest(ctx, "/ISteamUserStats/GetPlayerAchievements/v0001/", params)
	var se *statusError
	switch {
	case errors.As(err, &se):
		// Steam reports "no stats" and private profiles as 4xx with a JSON body.
		body = se.body
	case err != nil:
		return nil, fmt.Errorf("fetching achievements for app %d: %w", appID, err)
	}

	var resp playerAchievementsResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil || resp.PlayerStats == nil {
		if se != nil {
			return nil, fmt.Errorf("fetching achievements for app %d: %w", appID, statusErr(se))
		}
		return nil, fmt.Errorf("%w: parsing achievements response for app %d", ErrTransport, appID)
	}

	stats := resp.PlayerStats
	if !stats.Success && stats.Error != "" {
		if isNoStats(stats.Error) {
			return []PlayerAchievement{}, nil
		}
		return nil, fmt.Errorf("%w: app %d: %s", ErrDataUnavailable, appID, stats.Error)
	}

	if stats.Achievements == nil {
		return []PlayerAchievement{}, nil
	}
	return stats.Achievements, nil
}

// GetSchemaForGame returns the achievement definitions for a game.
func (c *Client) GetSchemaForGame(ctx context.Context, appID int64) ([]SchemaAchievement, error) {
	params := url.Values{
		"appid":  {strconv.FormatInt(appID, 10)},
		"key":    {c.apiKey},
		"format": {"json"},
	}

	body, err := c.doRequest(ctx, "/ISteamUserStats/GetSchemaForGame/v2/", params)
	if err != nil {
		return nil, fmt.Errorf("fetching schema for app %d: %w", appID, statusErr(err))
	}

	var resp schemaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing schema response for app %d: %v", ErrTransport, appID, err)
	}

	achievements := resp.Game.AvailableGameStats.Achievements
	if achievements == nil {
		achievements = []SchemaAchievement{}
	}
	return achievements, nil
}

// statusError carries a 4xx response so callers can inspect its body.
type statusError struct {
	code int
	body []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// statusErr maps a leftover 4xx statusError onto an error kind.
func statusErr(err error) error {
	var se *statusError
	if !errors.As(err, &se) {
		return err
	}
	switch se.code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w (status %d)", ErrInvalidAPIKey, se.code)
	default:
		return fmt.Errorf("%w: status %d", ErrDataUnavailable, se.code)
	}
}

// doRequest performs a single GET. 429 and 5xx become transport errors;
// other 4xx responses are returned as *statusError.
func (c *Client) doRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := strings.TrimRight(c.baseURL, "/") + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: executing request: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %w", ErrTransport, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, &statusError{code: resp.StatusCode, body: body}
	}

	return body, nil
}

// parseSteamID validates a SteamID64.
func parseSteamID(steamID string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(steamID), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid steam id %q", ErrDataUnavailable, steamID)
	}
	return id, nil
}

func isNoStats(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range noStatsMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
