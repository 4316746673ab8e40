package web

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/justestif/go-overachiever/internal/auth"
	"github.com/justestif/go-overachiever/internal/db"
	"github.com/justestif/go-overachiever/internal/logging"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type contextKey string

const claimsKey contextKey = "claims"

// claimsFrom returns the claims requireAuth stored in ctx.
func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// requireAuth rejects requests without a valid "Authorization: Bearer" token.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			respondError(w, r, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}
		claims, err := s.jwt.ValidateToken(token)
		if err != nil {
			respondError(w, r, http.StatusUnauthorized, "invalid token", nil)
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

// handleSteamLogin redirects to Steam (GET /auth/steam).
func (s *Server) handleSteamLogin(w http.ResponseWriter, r *http.Request) {
	if s.openID == nil {
		respondError(w, r, http.StatusServiceUnavailable, "steam login is not configured", nil)
		return
	}
	http.Redirect(w, r, s.openID.LoginURL(), http.StatusTemporaryRedirect)
}

// handleSteamCallback verifies the OpenID assertion, records the user and
// redirects to the frontend with a token (GET /auth/steam/callback).
func (s *Server) handleSteamCallback(w http.ResponseWriter, r *http.Request) {
	if s.openID == nil {
		respondError(w, r, http.StatusServiceUnavailable, "steam login is not configured", nil)
		return
	}
	logger := logging.Ctx(r.Context())

	steamID, err := s.openID.Verify(r.Context(), r.URL.Query())
	if err != nil {
		logger.Warn().Err(err).Msg("steam login failed")
		http.Redirect(w, r, "/?error=auth_failed", http.StatusTemporaryRedirect)
		return
	}

	user := db.User{SteamID: steamID, DisplayName: defaultDisplayName(steamID)}
	if err := s.store.UpsertUser(r.Context(), user); err != nil {
		logger.Error().Err(err).Str("steam_id", steamID).Msg("saving user")
		http.Redirect(w, r, "/?error=db_error", http.StatusTemporaryRedirect)
		return
	}

	token, err := s.jwt.GenerateToken(user.SteamID, user.DisplayName, user.AvatarURL)
	if err != nil {
		logger.Error().Err(err).Msg("issuing token")
		http.Redirect(w, r, "/?error=auth_failed", http.StatusTemporaryRedirect)
		return
	}

	logger.Info().Str("steam_id", steamID).Msg("user logged in")
	http.Redirect(w, r, "/?token="+url.QueryEscape(token), http.StatusTemporaryRedirect)
}

// defaultDisplayName names a user until their Steam profile is fetched.
func defaultDisplayName(steamID string) string {
	return "User " + steamID[:min(8, len(steamID))]
}

// handleGetGames handles GET /api/games.
func (s *Server) handleGetGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.store.AllGames(r.Context(), claimsFrom(r.Context()).SteamID)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "failed to load games", err)
		return
	}
	respondJSON(w, r, http.StatusOK, games)
}

// handleGetAchievements handles GET /api/games/{appid}/achievements.
func (s *Server) handleGetAchievements(w http.ResponseWriter, r *http.Request) {
	appID, ok := appIDParam(w, r)
	if !ok {
		return
	}
	achievements, err := s.store.GameAchievements(r.Context(), claimsFrom(r.Context()).SteamID, appID)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "failed to load achievements", err)
		return
	}
	respondJSON(w, r, http.StatusOK, achievements)
}

// handleGetHistory handles GET /api/history.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.logLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, r, http.StatusBadRequest, "limit must be a non-negative integer", nil)
			return
		}
		limit = n
	}

	h, err := loadHistory(r.Context(), s.store, claimsFrom(r.Context()).SteamID, limit)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "failed to load history", err)
		return
	}
	respondJSON(w, r, http.StatusOK, h)
}

// handleGetRatings handles GET /api/community/ratings/{appid}.
func (s *Server) handleGetRatings(w http.ResponseWriter, r *http.Request) {
	appID, ok := appIDParam(w, r)
	if !ok {
		return
	}
	ratings, err := s.store.CommunityRatings(r.Context(), appID)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "failed to load ratings", err)
		return
	}
	respondJSON(w, r, http.StatusOK, db.NewCommunityRating(appID, ratings))
}

type submitRatingRequest struct {
	AppID   int64   `json:"appid"`
	Rating  int     `json:"rating"`
	Comment *string `json:"comment"`
}

// handleSubmitRating handles POST /api/community/ratings.
func (s *Server) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	var req submitRatingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rating := db.GameRating{
		SteamID: claimsFrom(r.Context()).SteamID,
		AppID:   req.AppID,
		Rating:  req.Rating,
		Comment: req.Comment,
	}
	if err := validate.Struct(rating); err != nil {
		respondError(w, r, http.StatusBadRequest, validationMessage(err), nil)
		return
	}
	if err := s.store.UpsertRating(r.Context(), rating); err != nil {
		respondError(w, r, http.StatusInternalServerError, "failed to save rating", err)
		return
	}
	respondJSON(w, r, http.StatusCreated, RatingSubmitted{AppID: rating.AppID})
}

// handleGetTips handles GET /api/community/tips/{appid}/{apiname}.
func (s *Server) handleGetTips(w http.ResponseWriter, r *http.Request) {
	appID, ok := appIDParam(w, r)
	if !ok {
		return
	}
	apiName := chi.URLParam(r, "apiname")
	tips, err := s.store.AchievementTips(r.Context(), appID, apiName)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "failed to load tips", err)
		return
	}
	respondJSON(w, r, http.StatusOK, CommunityTips{AppID: appID, APIName: apiName, Tips: tips})
}

type submitTipRequest struct {
	AppID      int64  `json:"appid"`
	APIName    string `json:"apiname"`
	Difficulty int    `json:"difficulty"`
	Tip        string `json:"tip"`
}

// handleSubmitTip handles POST /api/community/tips.
func (s *Server) handleSubmitTip(w http.ResponseWriter, r *http.Request) {
	var req submitTipRequest
	if !decodeBody(w, r, &req) {
		return
	}

	tip := db.AchievementTip{
		SteamID:    claimsFrom(r.Context()).SteamID,
		AppID:      req.AppID,
		APIName:    req.APIName,
		Difficulty: req.Difficulty,
		Tip:        strings.TrimSpace(req.Tip),
	}
	if err := validate.Struct(tip); err != nil {
		respondError(w, r, http.StatusBadRequest, validationMessage(err), nil)
		return
	}
	if err := s.store.InsertTip(r.Context(), tip); err != nil {
		respondError(w, r, http.StatusInternalServerError, "failed to save tip", err)
		return
	}
	respondJSON(w, r, http.StatusCreated, TipSubmitted{AppID: tip.AppID, APIName: tip.APIName})
}

func appIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	appID, err := strconv.ParseInt(chi.URLParam(r, "appid"), 10, 64)
	if err != nil || appID <= 0 {
		respondError(w, r, http.StatusBadRequest, "invalid appid", nil)
		return 0, false
	}
	return appID, true
}

const maxBodyBytes = 16 * 1024

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body", nil)
		return false
	}
	return true
}

// validationMessage turns validator errors into a short user-facing message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "min", "max":
		if fe.Kind().String() == "string" {
			return field + " is too long"
		}
		return field + " must be between 1 and 5"
	case "required":
		return field + " is required"
	case "gt":
		return field + " must be positive"
	default:
		return field + " is invalid"
	}
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("encoding response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("writing response")
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Int("status", status).Msg(message)
	}
	respondJSON(w, r, status, map[string]string{"error": message})
}
