package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fortuna/diamond/internal/api/rest"
	"github.com/fortuna/diamond/internal/api/websocket"
	"github.com/fortuna/diamond/internal/backfill"
	"github.com/fortuna/diamond/internal/cache"
	"github.com/fortuna/diamond/internal/config"
	"github.com/fortuna/diamond/internal/ingest"
	"github.com/fortuna/diamond/internal/ingest/mlb"
	"github.com/fortuna/diamond/internal/logging"
	"github.com/fortuna/diamond/internal/metrics"
	"github.com/fortuna/diamond/internal/publisher"
	"github.com/fortuna/diamond/internal/scheduler"
	"github.com/fortuna/diamond/internal/store"
	"github.com/fortuna/diamond/internal/store/repository"
	"github.com/sirupsen/logrus"
)

const (
	serviceName    = "diamond"
	serviceVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := logging.New(cfg.LogLevel)
	logger.Infof("Starting %s v%s - live baseball feed normalizer", serviceName, serviceVersion)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewManager()
	client := mlb.New(cfg.APIBase, cfg.RequestTimeout, logger)

	db, err := store.NewDatabase(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()
	logger.Info("✓ Connected to database")

	if err := db.RunMigrations(ctx); err != nil {
		logger.WithError(err).Fatal("failed to run database migrations")
	}
	logger.Info("✓ Database migrations applied")

	redisCache := connectRedis(ctx, cfg.RedisURL, logger)
	defer redisCache.Close()
	logger.Info("✓ Connected to Redis")

	games := repository.NewGameRepository(db)
	pitches := repository.NewPitchEventRepository(db)

	hub := websocket.NewHub(logger, m)
	go hub.Run(ctx)
	wsServer := websocket.NewServer(hub, logger)

	stream := publisher.NewRedisStreamPublisher(redisCache.Client(), publisher.DefaultStream)

	liveIngester := ingest.NewLiveIngester(client, cfg.Workers, logger, m)
	sched, err := scheduler.NewOrchestrator(scheduler.Dependencies{
		Schedule: client,
		Ingester: liveIngester,
		Cache:    redisCache,
		Store:    games,
		Writer:   pitches,
		Publishers: map[string]scheduler.EventPublisher{
			"redis":     stream,
			"websocket": wsServer,
		},
	}, scheduler.ConfigFrom(cfg), logger, m)
	if err != nil {
		logger.WithError(err).Fatal("failed to create scheduler")
	}

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Start(ctx)
	}()
	logger.Info("✓ Scheduler started")

	// Backfill gets its own ingester so stopping the live poller does not
	// stop a running job.
	backfillRunner := backfill.NewRunner(client, ingest.NewLiveIngester(client, cfg.Workers, logger, m), pitches, logger).
		WithScheduleFilter(cfg.SportIDs, cfg.GameTypes)
	backfillService := backfill.NewService(backfill.NewRepository(db), backfillRunner, logger)
	backfillService.Start()

	handler := rest.NewHandler(client, games, pitches, map[string]rest.HealthCheck{
		"database": db.HealthCheck,
		"redis":    redisCache.HealthCheck,
	}, logger)
	restServer := rest.NewServer(cfg.RESTPort, handler, backfillService, m, logger)
	go func() {
		if err := restServer.Start(); err != nil {
			logger.WithError(err).Error("REST server error")
		}
	}()

	go func() {
		if err := wsServer.Start(cfg.WSPort); err != nil {
			logger.WithError(err).Error("WebSocket server error")
		}
	}()

	logger.WithFields(logrus.Fields{
		"rest":      "http://0.0.0.0:" + cfg.RESTPort,
		"websocket": "ws://0.0.0.0:" + cfg.WSPort + "/ws/pitches",
		"workers":   liveIngester.Workers(),
	}).Infof("✓ %s v%s started successfully", serviceName, serviceVersion)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")

	sched.Stop()
	<-schedDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := backfillService.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("backfill shutdown error")
	}
	if err := restServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("REST API server shutdown error")
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("WebSocket server shutdown error")
	}
	cancel()

	logger.Info("diamond stopped")
}

// connectRedis retries while Redis comes up alongside the service.
func connectRedis(ctx context.Context, url string, logger *logrus.Logger) *cache.RedisCache {
	const (
		maxRetries = 30
		retryDelay = 2 * time.Second
	)

	for i := 1; ; i++ {
		rc, err := cache.NewRedisCache(ctx, url)
		if err == nil {
			return rc
		}
		if i == maxRetries {
			logger.WithError(err).Fatalf("failed to connect to Redis after %d attempts", maxRetries)
		}
		logger.WithError(err).Warnf("Redis connection attempt %d/%d failed (retrying in %v)", i, maxRetries, retryDelay)
		time.Sleep(retryDelay)
	}
}
