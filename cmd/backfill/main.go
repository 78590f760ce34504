package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fortuna/diamond/internal/backfill"
	"github.com/fortuna/diamond/internal/config"
	"github.com/fortuna/diamond/internal/ingest"
	"github.com/fortuna/diamond/internal/ingest/mlb"
	"github.com/fortuna/diamond/internal/logging"
	"github.com/fortuna/diamond/internal/store"
	"github.com/fortuna/diamond/internal/store/repository"
	"github.com/sirupsen/logrus"
)

const (
	appName    = "diamond-backfill"
	appVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	var (
		dsn       = flag.String("dsn", cfg.DatabaseDSN, "Postgres DSN")
		apiBase   = flag.String("api-url", cfg.APIBase, "Stats API base URL")
		workers   = flag.Int("workers", cfg.Workers, "Concurrent game fetches")
		season    = flag.Int("season", 0, "Season to backfill (e.g., 2024)")
		startDate = flag.String("start", "", "Start date (YYYY-MM-DD)")
		endDate   = flag.String("end", "", "End date (YYYY-MM-DD, defaults to --start)")
		games     = flag.String("game", "", "Comma-separated game pks to backfill")
		dryRun    = flag.Bool("dry-run", false, "Fetch and flatten without writing to the database")
	)
	flag.Parse()

	logger := logging.New(cfg.LogLevel)
	logger.Infof("=== %s v%s ===", appName, appVersion)

	req, err := buildRequest(*season, *startDate, *endDate, *games, *dryRun)
	if err != nil {
		logger.WithError(err).Fatal("invalid arguments")
	}
	spec, err := req.Spec()
	if err != nil {
		logger.WithError(err).Fatal("Specify --season, --start/--end, or --game")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := mlb.New(*apiBase, cfg.RequestTimeout, logger)

	var writer backfill.EventWriter
	if !spec.DryRun {
		db, err := store.NewDatabase(ctx, *dsn, logger)
		if err != nil {
			logger.WithError(err).Fatal("connect database")
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			logger.WithError(err).Fatal("run migrations")
		}
		writer = repository.NewPitchEventRepository(db)
	}

	runner := backfill.NewRunner(client, ingest.NewLiveIngester(client, *workers, logger, nil), writer, logger).
		WithScheduleFilter(cfg.SportIDs, cfg.GameTypes)

	result, err := runner.Run(ctx, spec, &consoleReporter{logger: logger, dryRun: spec.DryRun})
	if err != nil {
		logger.WithError(err).Error("backfill failed")
		os.Exit(1)
	}

	logger.WithFields(logrus.Fields{
		"written": result.GamesWritten,
		"failed":  result.GamesFailed,
		"rows":    result.Rows,
	}).Info("✓ Backfill completed")
	if result.GamesFailed > 0 {
		os.Exit(2)
	}
}

func buildRequest(season int, startStr, endStr, gameList string, dryRun bool) (backfill.Request, error) {
	req := backfill.Request{Season: season, DryRun: dryRun}

	if gameList != "" {
		for _, raw := range strings.Split(gameList, ",") {
			pk, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
			if err != nil {
				return req, fmt.Errorf("invalid game pk %q: %w", raw, err)
			}
			req.GamePks = append(req.GamePks, pk)
		}
	}

	if startStr != "" {
		start, err := time.Parse(time.DateOnly, startStr)
		if err != nil {
			return req, fmt.Errorf("invalid start date: %w", err)
		}
		req.StartDate = &start
	}
	if endStr != "" {
		end, err := time.Parse(time.DateOnly, endStr)
		if err != nil {
			return req, fmt.Errorf("invalid end date: %w", err)
		}
		req.EndDate = &end
	}

	return req, nil
}

type consoleReporter struct {
	logger *logrus.Logger
	dryRun bool
}

func (c *consoleReporter) OnJobStart(spec backfill.JobSpec, total int) {
	c.logger.Infof("Starting %s job (dry_run=%v, steps=%d)", spec.Type, c.dryRun, total)
}

func (c *consoleReporter) OnDateStart(date time.Time, index int, total int) {
	c.logger.Infof("[%d/%d] %s", index+1, total, date.Format(time.DateOnly))
}

func (c *consoleReporter) OnGameWritten(gamePk int64, rows int) {
	verb := "stored"
	if c.dryRun {
		verb = "flattened"
	}
	c.logger.Infof("  ✓ game %d %s (%d rows)", gamePk, verb, rows)
}

func (c *consoleReporter) OnGameFailed(gamePk int64, err error) {
	c.logger.WithError(err).Warnf("  ⚠️ game %d failed", gamePk)
}

func (c *consoleReporter) OnProgress(message string, current int, total int) {
	c.logger.Debugf("Progress: %s (%d/%d)", message, current, total)
}

func (c *consoleReporter) OnJobComplete(result *backfill.Result) {
	c.logger.Infof("Job complete: %d games, %d rows", result.GamesWritten, result.Rows)
}

func (c *consoleReporter) OnJobError(err error) {
	c.logger.WithError(err).Error("Job error")
}
