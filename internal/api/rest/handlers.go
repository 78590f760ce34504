package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fortuna/diamond/internal/feed"
	"github.com/fortuna/diamond/internal/ingest/mlb"
	"github.com/fortuna/diamond/internal/store"
	"github.com/fortuna/diamond/internal/store/repository"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// StatsAPI is the upstream Stats API surface the handlers proxy.
type StatsAPI interface {
	FetchLiveFeed(ctx context.Context, gamePk int64) (map[string]interface{}, error)
	FetchScheduleRange(ctx context.Context, q mlb.ScheduleQuery) ([]mlb.ScheduledGame, error)
	FetchSports(ctx context.Context) ([]mlb.Sport, error)
	CheckSportID(ctx context.Context, id int64) (*mlb.Sport, bool, error)
	FetchGameTypes(ctx context.Context) ([]mlb.GameType, error)
}

// GameStore reads the stored schedule.
type GameStore interface {
	GetByPk(ctx context.Context, gamePk int64) (*store.Game, error)
	GetByDate(ctx context.Context, date time.Time) ([]*store.Game, error)
}

// PitchStore reads stored pitch events.
type PitchStore interface {
	ListByGame(ctx context.Context, gamePk int64) ([]feed.PitchEvent, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handler contains dependencies for HTTP handlers
type Handler struct {
	api    StatsAPI
	games  GameStore
	events PitchStore
	checks map[string]HealthCheck
	logger *logrus.Logger
}

// NewHandler creates a new handler. games and events may be nil when the
// service runs without a database; the stored-data routes then return 503.
func NewHandler(api StatsAPI, games GameStore, events PitchStore, checks map[string]HealthCheck, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{api: api, games: games, events: events, checks: checks, logger: logger}
}

// HealthCheck runs every dependency check. Any failure makes the service
// degraded and the response 503.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	respondJSON(w, status, map[string]interface{}{
		"status":       state,
		"service":      "diamond",
		"dependencies": deps,
	})
}

// GetSchedule proxies the Stats API schedule for a date range.
// Query: start, end (YYYY-MM-DD, end defaults to start, start to today),
// sport_id and game_type (comma-separated).
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start := mlb.Today()
	if raw := q.Get("start"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid start format (use YYYY-MM-DD)", err)
			return
		}
		start = d
	}
	end := start
	if raw := q.Get("end"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid end format (use YYYY-MM-DD)", err)
			return
		}
		end = d
	}
	if end.Before(start) {
		respondError(w, http.StatusBadRequest, "end is before start", nil)
		return
	}

	sportIDs, err := parseIntList(q.Get("sport_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid sport_id", err)
		return
	}

	var gameTypes []string
	if raw := q.Get("game_type"); raw != "" {
		gameTypes = strings.Split(raw, ",")
	}

	games, err := h.api.FetchScheduleRange(r.Context(), mlb.ScheduleQuery{
		SportIDs: sportIDs, GameTypes: gameTypes, Start: start, End: end,
	})
	if errors.Is(err, mlb.ErrNoGames) {
		respondJSON(w, http.StatusOK, []mlb.ScheduledGame{})
		return
	}
	if err != nil {
		h.respondUpstreamError(w, "Failed to fetch schedule", err)
		return
	}

	respondJSON(w, http.StatusOK, games)
}

// GetGamesByDate returns the stored schedule of one date (default today).
func (h *Handler) GetGamesByDate(w http.ResponseWriter, r *http.Request) {
	if h.games == nil {
		respondError(w, http.StatusServiceUnavailable, "Game storage is not configured", nil)
		return
	}

	date := mlb.Today()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		date = d
	}

	games, err := h.games.GetByDate(r.Context(), date)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch games", err)
		return
	}

	views := make([]store.GameView, 0, len(games))
	for _, g := range games {
		views = append(views, g.View())
	}
	respondJSON(w, http.StatusOK, views)
}

// GetGame returns one stored game.
func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	if h.games == nil {
		respondError(w, http.StatusServiceUnavailable, "Game storage is not configured", nil)
		return
	}

	gamePk, ok := parseInt64(mux.Vars(r)["gamePk"])
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid game pk", nil)
		return
	}

	game, err := h.games.GetByPk(r.Context(), gamePk)
	if errors.Is(err, repository.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Game not found", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch game", err)
		return
	}

	respondJSON(w, http.StatusOK, game.View())
}

// GetGamePitches returns a game's pitch events. With source=live the live
// feed is fetched and flattened now instead of reading stored rows.
func (h *Handler) GetGamePitches(w http.ResponseWriter, r *http.Request) {
	gamePk, ok := parseInt64(mux.Vars(r)["gamePk"])
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid game pk", nil)
		return
	}

	var (
		events []feed.PitchEvent
		err    error
	)
	switch source := r.URL.Query().Get("source"); source {
	case "live":
		events, err = h.livePitches(r.Context(), gamePk)
		if err != nil {
			h.respondUpstreamError(w, "Failed to flatten live feed", err)
			return
		}
	case "", "stored":
		if h.events == nil {
			respondError(w, http.StatusServiceUnavailable, "Pitch storage is not configured", nil)
			return
		}
		events, err = h.events.ListByGame(r.Context(), gamePk)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to fetch pitch events", err)
			return
		}
	default:
		respondError(w, http.StatusBadRequest, "Invalid source (use live or stored)", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"game_pk": gamePk,
		"count":   len(events),
		"events":  events,
	})
}

func (h *Handler) livePitches(ctx context.Context, gamePk int64) ([]feed.PitchEvent, error) {
	doc, err := h.api.FetchLiveFeed(ctx, gamePk)
	if err != nil {
		return nil, err
	}
	return feed.Flatten(doc)
}

// GetSports lists the sports known to the Stats API.
func (h *Handler) GetSports(w http.ResponseWriter, r *http.Request) {
	sports, err := h.api.FetchSports(r.Context())
	if err != nil {
		h.respondUpstreamError(w, "Failed to fetch sports", err)
		return
	}
	respondJSON(w, http.StatusOK, sports)
}

// GetSport checks one sport id.
func (h *Handler) GetSport(w http.ResponseWriter, r *http.Request) {
	id, ok := parseInt64(mux.Vars(r)["sportID"])
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid sport ID", nil)
		return
	}

	sport, found, err := h.api.CheckSportID(r.Context(), id)
	if err != nil {
		h.respondUpstreamError(w, "Failed to fetch sports", err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "Sport not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, sport)
}

// GetGameTypes lists the game type codes.
func (h *Handler) GetGameTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.api.FetchGameTypes(r.Context())
	if err != nil {
		h.respondUpstreamError(w, "Failed to fetch game types", err)
		return
	}
	respondJSON(w, http.StatusOK, types)
}

// respondUpstreamError maps Stats API and flattening failures to status codes.
func (h *Handler) respondUpstreamError(w http.ResponseWriter, message string, err error) {
	var (
		transport  *mlb.TransportError
		shape      *mlb.DataShapeError
		structural *feed.StructuralError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &structural):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &transport), errors.As(err, &shape):
		status = http.StatusBadGateway
	case errors.Is(err, mlb.ErrNoGames):
		status = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	h.logger.WithError(err).WithField("status", status).Warn("[rest] ⚠️ " + message)
	respondError(w, status, message, err)
}

func parseIntList(raw string) ([]int, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
