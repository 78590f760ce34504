// Package scheduler drives the recurring work: polling live games into the
// store and the live sinks, and syncing the daily schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fortuna/diamond/internal/config"
	"github.com/fortuna/diamond/internal/feed"
	"github.com/fortuna/diamond/internal/ingest"
	"github.com/fortuna/diamond/internal/ingest/mlb"
	"github.com/fortuna/diamond/internal/metrics"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ScheduleSource fetches schedules from the Stats API.
type ScheduleSource interface {
	FetchScheduleRange(ctx context.Context, q mlb.ScheduleQuery) ([]mlb.ScheduledGame, error)
}

// ScheduleCache caches daily schedules and per-game publish cursors.
type ScheduleCache interface {
	GetSchedule(ctx context.Context, date time.Time) ([]mlb.ScheduledGame, bool, error)
	SetSchedule(ctx context.Context, date time.Time, games []mlb.ScheduledGame, ttl time.Duration) error
	PublishCursor(ctx context.Context, gamePk int64) (int, error)
	SetPublishCursor(ctx context.Context, gamePk int64, n int) error
}

// ScheduleStore persists schedule rows.
type ScheduleStore interface {
	UpsertSchedule(ctx context.Context, games []mlb.ScheduledGame) (int, error)
}

// EventWriter stores a game's rows, replacing earlier ones.
type EventWriter interface {
	WriteEvents(ctx context.Context, gamePk int64, events []feed.PitchEvent) (int, error)
}

// EventPublisher pushes newly seen events to a live sink.
type EventPublisher interface {
	PublishPitchEvents(ctx context.Context, gamePk int64, events []feed.PitchEvent) error
}

// BatchIngester fetches and flattens many games at once.
type BatchIngester interface {
	FetchAndFlatten(ctx context.Context, gamePks []int64) *ingest.Batch
	Shutdown()
}

// Config holds scheduler configuration
type Config struct {
	PollInterval        time.Duration
	DailyScheduleHour   int
	EnableLivePolling   bool
	EnableDailySchedule bool
	MaxRetries          int
	RetryDelay          time.Duration
	ScheduleCacheTTL    time.Duration
	SportIDs            []int
	GameTypes           []string
	LiveStates          []string
}

// ConfigFrom extracts the scheduler settings from the service config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		PollInterval:        cfg.PollInterval,
		DailyScheduleHour:   cfg.DailyScheduleHour,
		EnableLivePolling:   cfg.EnableLivePolling,
		EnableDailySchedule: cfg.EnableDailySchedule,
		MaxRetries:          cfg.MaxRetries,
		RetryDelay:          cfg.RetryDelay,
		ScheduleCacheTTL:    cfg.ScheduleCacheTTL,
		SportIDs:            cfg.SportIDs,
		GameTypes:           cfg.GameTypes,
		LiveStates:          cfg.LiveStates,
	}
}

// Dependencies are the collaborators of an Orchestrator. Only Schedule and
// Ingester are required; a nil Cache falls back to in-process cursors and no
// schedule caching.
type Dependencies struct {
	Schedule   ScheduleSource
	Ingester   BatchIngester
	Cache      ScheduleCache
	Store      ScheduleStore
	Writer     EventWriter
	Publishers map[string]EventPublisher
}

// CycleReport summarizes one live polling cycle.
type CycleReport struct {
	CycleID     string
	LiveGames   int
	GamesStored int
	RowsWritten int
	Published   int
	Failures    []ingest.Failure
	Skipped     []int64
}

// Orchestrator manages scheduled tasks for data ingestion
type Orchestrator struct {
	deps    Dependencies
	config  Config
	logger  *logrus.Logger
	metrics *metrics.Manager

	mu      sync.Mutex
	cursors map[int64]int

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewOrchestrator creates a new scheduler orchestrator
func NewOrchestrator(deps Dependencies, cfg Config, logger *logrus.Logger, m *metrics.Manager) (*Orchestrator, error) {
	if deps.Schedule == nil || deps.Ingester == nil {
		return nil, errors.New("scheduler requires a schedule source and an ingester")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %v", cfg.PollInterval)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Orchestrator{
		deps:    deps,
		config:  cfg,
		logger:  logger,
		metrics: m,
		cursors: make(map[int64]int),
		stop:    make(chan struct{}),
	}, nil
}

// Start begins all scheduled tasks and blocks until ctx is done or Stop is
// called.
func (o *Orchestrator) Start(ctx context.Context) {
	o.logger.WithFields(logrus.Fields{
		"live_polling":   o.config.EnableLivePolling,
		"poll_interval":  o.config.PollInterval,
		"daily_schedule": o.config.EnableDailySchedule,
		"daily_hour":     o.config.DailyScheduleHour,
		"live_states":    o.config.LiveStates,
	}).Info("[scheduler] starting")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if o.config.EnableLivePolling {
		o.wg.Add(1)
		go o.runLivePolling(ctx)
	}
	if o.config.EnableDailySchedule {
		o.wg.Add(1)
		go o.runDailySchedule(ctx)
	}

	select {
	case <-ctx.Done():
	case <-o.stop:
		cancel()
	}
	o.wg.Wait()
	o.logger.Info("[scheduler] stopped")
}

// Stop cancels the scheduled tasks and stops the ingester from starting new
// fetches. Fetches already running finish normally.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		o.logger.Info("[scheduler] stopping...")
		o.deps.Ingester.Shutdown()
		close(o.stop)
	})
}

func (o *Orchestrator) runLivePolling(ctx context.Context) {
	defer o.wg.Done()
	o.logger.Infof("[scheduler] → live polling started (interval: %v)", o.config.PollInterval)

	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := o.PollOnce(ctx); err != nil && ctx.Err() == nil {
			o.logger.WithError(err).Error("[scheduler] live poll failed")
		}

		select {
		case <-ctx.Done():
			o.logger.Info("[scheduler] → live polling stopped")
			return
		case <-ticker.C:
		}
	}
}

// PollOnce runs one live polling cycle: load today's schedule, fetch and
// flatten every live game, store each game's rows and publish the events not
// yet published.
func (o *Orchestrator) PollOnce(ctx context.Context) (*CycleReport, error) {
	start := time.Now()
	report := &CycleReport{CycleID: uuid.NewString()}
	log := o.logger.WithField("cycle", report.CycleID)

	games, err := o.loadSchedule(ctx, mlb.Today())
	if err != nil {
		return report, err
	}

	live := mlb.GamePks(games, o.config.LiveStates...)
	report.LiveGames = len(live)
	defer func() { o.metrics.RecordPollCycle(time.Since(start), report.LiveGames) }()

	if len(live) == 0 {
		log.Debug("[scheduler] no live games")
		return report, nil
	}

	batch := o.deps.Ingester.FetchAndFlatten(ctx, live)
	report.Failures = batch.Failures
	report.Skipped = batch.Skipped

	for _, pk := range live {
		events, ok := batch.Games[pk]
		if !ok {
			continue
		}
		o.storeGame(ctx, report, pk, events)
		o.publishNew(ctx, report, pk, events)
	}

	log.WithFields(logrus.Fields{
		"live":      report.LiveGames,
		"stored":    report.GamesStored,
		"rows":      report.RowsWritten,
		"published": report.Published,
		"failures":  len(report.Failures),
		"duration":  time.Since(start).Round(time.Millisecond),
	}).Info("[scheduler] ✓ live poll complete")
	return report, nil
}

func (o *Orchestrator) storeGame(ctx context.Context, report *CycleReport, gamePk int64, events []feed.PitchEvent) {
	if o.deps.Writer == nil {
		return
	}
	n, err := o.deps.Writer.WriteEvents(ctx, gamePk, events)
	if err != nil {
		o.logger.WithError(err).WithField("game_pk", gamePk).Warn("[scheduler] ⚠️ failed to store game")
		return
	}
	report.GamesStored++
	report.RowsWritten += n
	o.metrics.RecordRowsWritten(n)
}

// publishNew sends the events past the game's cursor to every publisher and
// advances the cursor when all of them succeeded. A game whose row count
// shrank (a corrected feed) has its cursor pulled back without publishing.
func (o *Orchestrator) publishNew(ctx context.Context, report *CycleReport, gamePk int64, events []feed.PitchEvent) {
	if len(o.deps.Publishers) == 0 {
		return
	}

	cursor := o.cursor(ctx, gamePk)
	if cursor > len(events) {
		o.setCursor(ctx, gamePk, len(events))
		return
	}
	fresh := events[cursor:]
	if len(fresh) == 0 {
		return
	}

	ok := true
	for name, p := range o.deps.Publishers {
		if err := p.PublishPitchEvents(ctx, gamePk, fresh); err != nil {
			ok = false
			o.metrics.RecordPublishError(name)
			o.logger.WithError(err).WithFields(logrus.Fields{"game_pk": gamePk, "sink": name}).
				Warn("[scheduler] ⚠️ failed to publish events")
		}
	}
	if !ok {
		return
	}

	o.setCursor(ctx, gamePk, len(events))
	report.Published += len(fresh)
	o.metrics.RecordPublished(len(fresh))
}

func (o *Orchestrator) cursor(ctx context.Context, gamePk int64) int {
	if o.deps.Cache != nil {
		n, err := o.deps.Cache.PublishCursor(ctx, gamePk)
		if err == nil {
			return n
		}
		o.logger.WithError(err).WithField("game_pk", gamePk).Warn("[scheduler] ⚠️ cursor read failed, using local cursor")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cursors[gamePk]
}

func (o *Orchestrator) setCursor(ctx context.Context, gamePk int64, n int) {
	o.mu.Lock()
	o.cursors[gamePk] = n
	o.mu.Unlock()

	if o.deps.Cache != nil {
		if err := o.deps.Cache.SetPublishCursor(ctx, gamePk, n); err != nil {
			o.logger.WithError(err).WithField("game_pk", gamePk).Warn("[scheduler] ⚠️ cursor write failed")
		}
	}
}

// preGameStates are the coded states of games that have not started yet.
var preGameStates = map[string]bool{"S": true, "P": true, "PW": true}

// loadSchedule returns the date's schedule from the cache, or fetches it
// with retries and refreshes the cache and the store. A cached schedule
// holding a game past its start time but not yet started is refetched, so the
// game is polled as soon as it goes live.
func (o *Orchestrator) loadSchedule(ctx context.Context, date time.Time) ([]mlb.ScheduledGame, error) {
	if o.deps.Cache != nil {
		games, hit, err := o.deps.Cache.GetSchedule(ctx, date)
		if err != nil {
			o.logger.WithError(err).Warn("[scheduler] ⚠️ schedule cache read failed")
		}
		if hit && !dueToStart(games, time.Now()) {
			return games, nil
		}
	}

	games, err := o.fetchScheduleWithRetry(ctx, date)
	if err != nil {
		return nil, err
	}

	if o.deps.Cache != nil && o.config.ScheduleCacheTTL > 0 {
		if err := o.deps.Cache.SetSchedule(ctx, date, games, o.config.ScheduleCacheTTL); err != nil {
			o.logger.WithError(err).Warn("[scheduler] ⚠️ schedule cache write failed")
		}
	}
	if o.deps.Store != nil && len(games) > 0 {
		if _, err := o.deps.Store.UpsertSchedule(ctx, games); err != nil {
			o.logger.WithError(err).Warn("[scheduler] ⚠️ schedule upsert failed")
		}
	}
	return games, nil
}

// dueToStart reports whether any game is still pre-game after its start time.
func dueToStart(games []mlb.ScheduledGame, now time.Time) bool {
	for _, g := range games {
		if preGameStates[g.State] && !g.StartTime.IsZero() && !g.StartTime.After(now) {
			return true
		}
	}
	return false
}

// fetchScheduleWithRetry treats a day without games as an empty schedule.
// Client errors (4xx other than 429) are not retried.
func (o *Orchestrator) fetchScheduleWithRetry(ctx context.Context, date time.Time) ([]mlb.ScheduledGame, error) {
	q := mlb.ScheduleQuery{
		SportIDs:  o.config.SportIDs,
		GameTypes: o.config.GameTypes,
		Start:     date,
		End:       date,
	}

	var err error
	for attempt := 1; attempt <= o.config.MaxRetries; attempt++ {
		var games []mlb.ScheduledGame
		games, err = o.deps.Schedule.FetchScheduleRange(ctx, q)
		if errors.Is(err, mlb.ErrNoGames) {
			return []mlb.ScheduledGame{}, nil
		}
		if err == nil {
			return games, nil
		}
		var te *mlb.TransportError
		if errors.As(err, &te) && !te.Temporary() {
			return nil, fmt.Errorf("schedule request rejected: %w", err)
		}

		o.logger.WithError(err).Warnf("[scheduler] ⚠️ schedule attempt %d/%d failed", attempt, o.config.MaxRetries)
		if attempt < o.config.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.config.RetryDelay):
			}
		}
	}
	return nil, fmt.Errorf("schedule unavailable after %d attempts: %w", o.config.MaxRetries, err)
}

func (o *Orchestrator) runDailySchedule(ctx context.Context) {
	defer o.wg.Done()
	o.logger.Infof("[scheduler] → daily schedule sync started (runs at %02d:00 Eastern)", o.config.DailyScheduleHour)

	for {
		next := nextDailyRun(time.Now(), o.config.DailyScheduleHour)
		o.logger.Infof("[scheduler] next schedule sync: %s", next.Format("2006-01-02 15:04:05 MST"))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			o.logger.Info("[scheduler] → daily schedule sync stopped")
			return
		case <-timer.C:
			if _, err := o.SyncSchedule(ctx, mlb.Today()); err != nil && ctx.Err() == nil {
				o.logger.WithError(err).Error("[scheduler] daily schedule sync failed")
			}
		}
	}
}

// nextDailyRun is the next occurrence of hour:00 Eastern strictly after now.
func nextDailyRun(now time.Time, hour int) time.Time {
	local := now.In(mlb.Eastern())
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, mlb.Eastern())
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, 0, 0, 0, mlb.Eastern())
	}
	return next
}

// SyncSchedule fetches the date's schedule and upserts it into the store,
// refreshing the cache. It returns the number of games stored.
func (o *Orchestrator) SyncSchedule(ctx context.Context, date time.Time) (int, error) {
	start := time.Now()

	games, err := o.fetchScheduleWithRetry(ctx, date)
	if err != nil {
		return 0, err
	}

	if o.deps.Cache != nil && o.config.ScheduleCacheTTL > 0 {
		if err := o.deps.Cache.SetSchedule(ctx, date, games, o.config.ScheduleCacheTTL); err != nil {
			o.logger.WithError(err).Warn("[scheduler] ⚠️ schedule cache write failed")
		}
	}

	n := 0
	if o.deps.Store != nil && len(games) > 0 {
		n, err = o.deps.Store.UpsertSchedule(ctx, games)
		if err != nil {
			return 0, fmt.Errorf("storing schedule: %w", err)
		}
	}

	o.logger.WithFields(logrus.Fields{
		"date":     date.Format(time.DateOnly),
		"games":    n,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("[scheduler] ✓ schedule synced")
	return n, nil
}

// GetStatus returns current scheduler status
func (o *Orchestrator) GetStatus() map[string]interface{} {
	return map[string]interface{}{
		"live_polling_enabled":   o.config.EnableLivePolling,
		"poll_interval":          o.config.PollInterval.String(),
		"daily_schedule_enabled": o.config.EnableDailySchedule,
		"daily_schedule_hour":    o.config.DailyScheduleHour,
		"live_states":            o.config.LiveStates,
	}
}
