// Package rest serves the HTTP API: schedule and reference proxies, stored
// games and pitch events, live flattening and backfill jobs.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fortuna/diamond/internal/metrics"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server represents the REST API server
type Server struct {
	port    string
	server  *http.Server
	handler *Handler
	router  http.Handler
	logger  *logrus.Logger
}

// NewServer creates a new REST API server. backfillSvc may be nil.
func NewServer(port string, handler *Handler, backfillSvc BackfillService, m *metrics.Manager, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	backfillHandler := NewBackfillHandler(backfillSvc)

	router := mux.NewRouter()

	// Apply middleware
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggingMiddleware(logger))
	router.Use(MetricsMiddleware(m))

	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	router.Handle("/metrics", m.Handler()).Methods("GET")

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/schedule", handler.GetSchedule).Methods("GET")

	// Games
	api.HandleFunc("/games", handler.GetGamesByDate).Methods("GET")
	api.HandleFunc("/games/{gamePk:[0-9]+}", handler.GetGame).Methods("GET")
	api.HandleFunc("/games/{gamePk:[0-9]+}/pitches", handler.GetGamePitches).Methods("GET")

	// Reference data
	api.HandleFunc("/sports", handler.GetSports).Methods("GET")
	api.HandleFunc("/sports/{sportID}", handler.GetSport).Methods("GET")
	api.HandleFunc("/game-types", handler.GetGameTypes).Methods("GET")

	// Backfill operations
	api.HandleFunc("/backfill", backfillHandler.HandleBackfillRequest).Methods("POST")
	api.HandleFunc("/backfill/status", backfillHandler.HandleBackfillStatus).Methods("GET")

	root := CORSMiddleware(router)
	return &Server{
		port:    port,
		handler: handler,
		router:  root,
		logger:  logger,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%s", port),
			Handler:           root,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the REST API server
func (s *Server) Start() error {
	s.logger.Infof("[rest] listening on :%s", s.port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
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
