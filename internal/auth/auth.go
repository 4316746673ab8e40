// Package auth implements Steam OpenID 2.0 login and the JWTs issued after it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	// SteamOpenIDEndpoint is Steam's OpenID 2.0 provider.
	SteamOpenIDEndpoint = "https://steamcommunity.com/openid/login"

	openIDNamespace      = "http://specs.openid.net/auth/2.0"
	openIDIdentifierPick = "http://specs.openid.net/auth/2.0/identifier_select"
	verifyTimeout        = 10 * time.Second
)

var (
	// ErrAuthCanceled is returned when the user backs out of the Steam login page.
	ErrAuthCanceled = errors.New("steam login canceled")

	// ErrReturnMismatch is returned when the assertion was issued for another return URL.
	ErrReturnMismatch = errors.New("OpenID return_to mismatch")

	// ErrInvalidClaimedID is returned when the claimed identity is not a Steam ID URL.
	ErrInvalidClaimedID = errors.New("invalid OpenID claimed_id")

	// ErrAssertionRejected is returned when Steam does not confirm the assertion.
	ErrAssertionRejected = errors.New("OpenID assertion rejected by Steam")
)

var claimedIDPattern = regexp.MustCompile(`^https?://steamcommunity\.com/openid/id/(\d{17})$`)

// Authenticator drives the Steam OpenID login round trip.
type Authenticator struct {
	endpoint    string
	callbackURL string
	httpClient  *http.Client
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithEndpoint points the Authenticator at another OpenID provider URL.
func WithEndpoint(endpoint string) Option {
	return func(a *Authenticator) {
		a.endpoint = endpoint
	}
}

// WithHTTPClient sets the client used to confirm assertions.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Authenticator) {
		a.httpClient = c
	}
}

// New creates an Authenticator that sends users back to callbackURL.
func New(callbackURL string, opts ...Option) *Authenticator {
	a := &Authenticator{
		endpoint:    SteamOpenIDEndpoint,
		callbackURL: callbackURL,
		httpClient:  &http.Client{Timeout: verifyTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Realm is the callback URL's origin; Steam shows it on the login page.
func (a *Authenticator) Realm() string {
	u, err := url.Parse(a.callbackURL)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(a.callbackURL, "/auth/steam/callback")
	}
	return u.Scheme + "://" + u.Host
}

// LoginURL returns the Steam page the user is redirected to.
func (a *Authenticator) LoginURL() string {
	q := url.Values{}
	q.Set("openid.ns", openIDNamespace)
	q.Set("openid.mode", "checkid_setup")
	q.Set("openid.return_to", a.callbackURL)
	q.Set("openid.realm", a.Realm())
	q.Set("openid.identity", openIDIdentifierPick)
	q.Set("openid.claimed_id", openIDIdentifierPick)
	return a.endpoint + "?" + q.Encode()
}

// Verify checks the callback query Steam redirected back with and returns the
// authenticated Steam ID. The assertion is confirmed with Steam directly.
func (a *Authenticator) Verify(ctx context.Context, params url.Values) (string, error) {
	switch params.Get("openid.mode") {
	case "id_res":
	case "cancel":
		return "", ErrAuthCanceled
	default:
		return "", fmt.Errorf("unexpected openid.mode %q", params.Get("openid.mode"))
	}

	if !strings.HasPrefix(params.Get("openid.return_to"), a.callbackURL) {
		return "", ErrReturnMismatch
	}

	steamID, err := SteamIDFromClaimedID(params.Get("openid.claimed_id"))
	if err != nil {
		return "", err
	}

	if err := a.checkAuthentication(ctx, params); err != nil {
		return "", err
	}
	return steamID, nil
}

// SteamIDFromClaimedID extracts the 17-digit Steam ID from an OpenID claimed_id.
func SteamIDFromClaimedID(claimedID string) (string, error) {
	m := claimedIDPattern.FindStringSubmatch(claimedID)
	if m == nil {
		return "", ErrInvalidClaimedID
	}
	return m[1], nil
}

// checkAuthentication replays the signed fields to Steam with mode
// check_authentication.
func (a *Authenticator) checkAuthentication(ctx context.Context, params url.Values) error {
	form := url.Values{}
	for k, v := range params {
		if strings.HasPrefix(k, "openid.") {
			form[k] = v
		}
	}
	form.Set("openid.mode", "check_authentication")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("verifying assertion: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("reading verification response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrAssertionRejected, resp.StatusCode)
	}

	// Key-value form: one "key:value" pair per line.
	for _, line := range strings.Split(string(body), "\n") {
		if strings.TrimSpace(line) == "is_valid:true" {
			return nil
		}
	}
	return ErrAssertionRejected
}
