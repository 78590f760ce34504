package backfill

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fortuna/diamond/internal/feed"
	"github.com/fortuna/diamond/internal/ingest"
	"github.com/fortuna/diamond/internal/ingest/mlb"
	"github.com/sirupsen/logrus"
)

// DefaultChunkSize bounds how many games are fetched in one batch.
const DefaultChunkSize = 50

// ScheduleSource lists the games to backfill.
type ScheduleSource interface {
	FetchSchedule(ctx context.Context, q mlb.ScheduleQuery) ([]mlb.ScheduledGame, error)
	FetchScheduleRange(ctx context.Context, q mlb.ScheduleQuery) ([]mlb.ScheduledGame, error)
}

// BatchIngester fetches and flattens many games at once.
type BatchIngester interface {
	FetchAndFlatten(ctx context.Context, gamePks []int64) *ingest.Batch
}

// EventWriter stores one game's rows, replacing earlier ones.
type EventWriter interface {
	WriteEvents(ctx context.Context, gamePk int64, events []feed.PitchEvent) (int, error)
}

// Runner executes backfill specs.
type Runner struct {
	schedule  ScheduleSource
	ingester  BatchIngester
	writer    EventWriter
	sportIDs  []int
	gameTypes []string
	chunkSize int
	logger    *logrus.Logger
}

// NewRunner creates a runner. writer may be nil when only dry runs are
// executed.
func NewRunner(schedule ScheduleSource, ingester BatchIngester, writer EventWriter, logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner{
		schedule:  schedule,
		ingester:  ingester,
		writer:    writer,
		chunkSize: DefaultChunkSize,
		logger:    logger,
	}
}

// WithScheduleFilter restricts schedule lookups to sports and game types.
func (r *Runner) WithScheduleFilter(sportIDs []int, gameTypes []string) *Runner {
	r.sportIDs = sportIDs
	r.gameTypes = gameTypes
	return r
}

// WithChunkSize overrides DefaultChunkSize.
func (r *Runner) WithChunkSize(n int) *Runner {
	if n > 0 {
		r.chunkSize = n
	}
	return r
}

// dateGroup is one unit of progress: the games scheduled on a date.
type dateGroup struct {
	date    time.Time
	gamePks []int64
}

// Run executes the job spec. Individual game failures are reported and
// counted but do not stop the run; schedule errors and cancellation do.
func (r *Runner) Run(ctx context.Context, spec JobSpec, reporter Reporter) (*Result, error) {
	if reporter == nil {
		reporter = nopReporter{}
	}
	if !spec.DryRun && r.writer == nil {
		return nil, errors.New("backfill runner has no writer")
	}

	result := &Result{}

	switch spec.Type {
	case JobTypeGame:
		if len(spec.GamePks) == 0 {
			return nil, fmt.Errorf("no game pks provided for job type %q", JobTypeGame)
		}
		total := len(spec.GamePks)
		reporter.OnJobStart(spec, total)

		for start := 0; start < total; start += r.chunkSize {
			end := min(start+r.chunkSize, total)
			if err := r.processGames(ctx, spec.GamePks[start:end], spec.DryRun, reporter, result); err != nil {
				reporter.OnJobError(err)
				return result, err
			}
			reporter.OnProgress(fmt.Sprintf("Processed %d/%d games", end, total), end, total)
		}

	case JobTypeSeason, JobTypeDateRange:
		groups, err := r.dateGroups(ctx, spec)
		if err != nil {
			reporter.OnJobError(err)
			return nil, err
		}
		total := len(groups)
		reporter.OnJobStart(spec, total)
		if total == 0 {
			reporter.OnProgress("No dates to process", 0, 0)
		}

		for idx, group := range groups {
			reporter.OnDateStart(group.date, idx, total)
			for start := 0; start < len(group.gamePks); start += r.chunkSize {
				end := min(start+r.chunkSize, len(group.gamePks))
				if err := r.processGames(ctx, group.gamePks[start:end], spec.DryRun, reporter, result); err != nil {
					reporter.OnJobError(err)
					return result, err
				}
			}
			reporter.OnProgress(fmt.Sprintf("Processed %s", group.date.Format("Jan 2, 2006")), idx+1, total)
		}

	default:
		return nil, fmt.Errorf("unsupported job type %s", spec.Type)
	}

	reporter.OnJobComplete(result)
	r.logger.WithFields(logrus.Fields{
		"type":    spec.Type,
		"written": result.GamesWritten,
		"failed":  result.GamesFailed,
		"rows":    result.Rows,
		"dry_run": spec.DryRun,
	}).Info("[backfill] ✓ run complete")
	return result, nil
}

// dateGroups resolves a season or date range into per-date game lists. A
// date range covers every day in the range, including days without games.
func (r *Runner) dateGroups(ctx context.Context, spec JobSpec) ([]dateGroup, error) {
	q := mlb.ScheduleQuery{SportIDs: r.sportIDs, GameTypes: r.gameTypes}

	var (
		games []mlb.ScheduledGame
		err   error
	)
	if spec.Type == JobTypeSeason {
		if spec.Season <= 0 {
			return nil, errors.New("season job requires a season")
		}
		q.Seasons = []int{spec.Season}
		games, err = r.schedule.FetchSchedule(ctx, q)
	} else {
		if spec.Start.IsZero() || spec.End.IsZero() {
			return nil, errors.New("date range job requires start and end dates")
		}
		q.Start, q.End = spec.Start, spec.End
		games, err = r.schedule.FetchScheduleRange(ctx, q)
	}
	if err != nil && !errors.Is(err, mlb.ErrNoGames) {
		return nil, fmt.Errorf("loading schedule: %w", err)
	}

	byDate := make(map[string][]int64)
	for _, g := range games {
		byDate[g.Date] = append(byDate[g.Date], g.GamePk)
	}

	if spec.Type == JobTypeDateRange {
		dates := enumerateDates(spec.Start, spec.End)
		groups := make([]dateGroup, 0, len(dates))
		for _, d := range dates {
			groups = append(groups, dateGroup{date: d, gamePks: byDate[d.Format(time.DateOnly)]})
		}
		return groups, nil
	}

	groups := make([]dateGroup, 0, len(byDate))
	for day, pks := range byDate {
		d, err := time.Parse(time.DateOnly, day)
		if err != nil {
			r.logger.WithField("date", day).Warn("[backfill] ⚠️ skipping games with unparseable date")
			continue
		}
		groups = append(groups, dateGroup{date: d, gamePks: pks})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].date.Before(groups[j].date) })
	return groups, nil
}

// processGames fetches one chunk and stores each game that flattened.
func (r *Runner) processGames(ctx context.Context, gamePks []int64, dryRun bool, reporter Reporter, result *Result) error {
	if len(gamePks) == 0 {
		return nil
	}

	batch := r.ingester.FetchAndFlatten(ctx, gamePks)

	for _, f := range batch.Failures {
		result.GamesFailed++
		result.Failures = append(result.Failures, f)
		reporter.OnGameFailed(f.GamePk, f.Err)
	}

	for _, pk := range gamePks {
		events, ok := batch.Games[pk]
		if !ok {
			continue
		}
		delete(batch.Games, pk)

		rows := len(events)
		if !dryRun {
			n, err := r.writer.WriteEvents(ctx, pk, events)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				result.GamesFailed++
				result.Failures = append(result.Failures, ingest.Failure{GamePk: pk, Err: err})
				reporter.OnGameFailed(pk, err)
				continue
			}
			rows = n
		}

		result.GamesWritten++
		result.Rows += rows
		reporter.OnGameWritten(pk, rows)
	}

	if len(batch.Skipped) > 0 {
		result.GamesSkipped += len(batch.Skipped)
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%d games skipped: ingester stopped", len(batch.Skipped))
	}
	return nil
}

func enumerateDates(start, end time.Time) []time.Time {
	if end.Before(start) {
		start, end = end, start
	}

	var dates []time.Time
	current := truncateDate(start)
	final := truncateDate(end)

	for !current.After(final) {
		dates = append(dates, current)
		current = current.AddDate(0, 0, 1)
	}

	return dates
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type nopReporter struct{}

func (nopReporter) OnJobStart(JobSpec, int)         {}
func (nopReporter) OnDateStart(time.Time, int, int) {}
func (nopReporter) OnGameWritten(int64, int)        {}
func (nopReporter) OnGameFailed(int64, error)       {}
func (nopReporter) OnProgress(string, int, int)     {}
func (nopReporter) OnJobComplete(*Result)           {}
func (nopReporter) OnJobError(error)                {}
