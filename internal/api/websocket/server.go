// Package websocket streams newly flattened pitch events to browser and
// service clients.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fortuna/diamond/internal/feed"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ErrBacklogged is returned when the hub queue is full.
var ErrBacklogged = errors.New("websocket broadcast queue full")

// PitchMessage is the JSON frame sent to clients.
type PitchMessage struct {
	GamePk int64             `json:"game_pk"`
	Events []feed.PitchEvent `json:"events"`
}

// Server represents the WebSocket server
type Server struct {
	hub    *Hub
	server *http.Server
	logger *logrus.Logger
}

// NewServer creates a server around hub.
func NewServer(hub *Hub, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{hub: hub, logger: logger}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the websocket routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/pitches", s.handlePitches)
	mux.HandleFunc("/ws/health", s.handleHealth)
	return mux
}

// Start listens on port until Shutdown.
func (s *Server) Start(port string) error {
	s.server.Addr = fmt.Sprintf(":%s", port)
	s.logger.Infof("[ws-server] listening on :%s", port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handlePitches upgrades the connection. An optional game_pk query parameter
// limits the stream to one game.
func (s *Server) handlePitches(w http.ResponseWriter, r *http.Request) {
	var gamePk int64
	if raw := r.URL.Query().Get("game_pk"); raw != "" {
		pk, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || pk <= 0 {
			http.Error(w, "invalid game_pk", http.StatusBadRequest)
			return
		}
		gamePk = pk
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("[ws-server] failed to upgrade connection")
		return
	}

	client := newClient(s.hub, conn, gamePk)
	s.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "healthy",
		"clients": s.hub.ClientCount(),
	})
}

// PublishPitchEvents broadcasts a game's new events to subscribers.
func (s *Server) PublishPitchEvents(_ context.Context, gamePk int64, events []feed.PitchEvent) error {
	if len(events) == 0 {
		return nil
	}
	data, err := json.Marshal(PitchMessage{GamePk: gamePk, Events: events})
	if err != nil {
		return fmt.Errorf("encoding pitch message: %w", err)
	}
	if !s.hub.Broadcast(gamePk, data) {
		return ErrBacklogged
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
