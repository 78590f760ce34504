// Package ingest fetches live game feeds for many games at once and flattens
// each into pitch event rows.
package ingest

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/fortuna/diamond/internal/feed"
	"github.com/fortuna/diamond/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Fetcher retrieves one game's live feed document.
type Fetcher interface {
	FetchLiveFeed(ctx context.Context, gamePk int64) (map[string]interface{}, error)
}

// DefaultWorkers is the pool size used when none is configured.
func DefaultWorkers() int {
	return min(32, runtime.NumCPU()+4)
}

// Failure records a game whose fetch or flatten failed.
type Failure struct {
	GamePk int64
	Err    error
}

func (f Failure) Error() string {
	return fmt.Sprintf("game %d: %v", f.GamePk, f.Err)
}

// Batch is the result of one multi-game run. Games holds every game that was
// fetched and flattened, including games with no rows. Games that failed are
// only in Failures, and games never started because of Shutdown or context
// cancellation are only in Skipped.
type Batch struct {
	Games    map[int64][]feed.PitchEvent
	Failures []Failure
	Skipped  []int64
}

// Rows returns the total number of rows across games.
func (b *Batch) Rows() int {
	n := 0
	for _, events := range b.Games {
		n += len(events)
	}
	return n
}

// outcome is the result of one task: exactly one of events or err is set
// unless the task was skipped.
type outcome struct {
	gamePk  int64
	events  []feed.PitchEvent
	err     error
	skipped bool
}

// LiveIngester runs fetch and flatten tasks on a bounded pool.
type LiveIngester struct {
	fetcher Fetcher
	workers int
	logger  *logrus.Logger
	metrics *metrics.Manager

	stop     chan struct{}
	stopOnce sync.Once
}

// NewLiveIngester creates an ingester. A non-positive workers value selects
// DefaultWorkers.
func NewLiveIngester(fetcher Fetcher, workers int, logger *logrus.Logger, m *metrics.Manager) *LiveIngester {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LiveIngester{
		fetcher: fetcher,
		workers: workers,
		logger:  logger,
		metrics: m,
		stop:    make(chan struct{}),
	}
}

// Workers returns the pool size.
func (li *LiveIngester) Workers() int {
	return li.workers
}

// Shutdown stops scheduling new tasks. Tasks already running finish and are
// reported normally. It is safe to call more than once.
func (li *LiveIngester) Shutdown() {
	li.stopOnce.Do(func() {
		close(li.stop)
		li.logger.Info("[live-ingester] shutdown requested, no new games will be fetched")
	})
}

func (li *LiveIngester) stopped(ctx context.Context) bool {
	select {
	case <-li.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// FetchAndFlatten fetches and flattens every game concurrently. A failing game
// never cancels or affects the others, and the call itself never fails.
// Duplicate ids are processed once.
func (li *LiveIngester) FetchAndFlatten(ctx context.Context, gamePks []int64) *Batch {
	ids := dedupe(gamePks)
	outcomes := make([]outcome, len(ids))

	// Not errgroup.WithContext: tasks report through outcomes and never cancel
	// their siblings.
	var g errgroup.Group
	g.SetLimit(li.workers)

	for i, pk := range ids {
		i, pk := i, pk
		if li.stopped(ctx) {
			outcomes[i] = outcome{gamePk: pk, skipped: true}
			continue
		}
		g.Go(func() error {
			if li.stopped(ctx) {
				outcomes[i] = outcome{gamePk: pk, skipped: true}
				return nil
			}
			outcomes[i] = li.run(ctx, pk)
			return nil
		})
	}
	_ = g.Wait()

	return li.collect(outcomes)
}

// run fetches and flattens one game.
func (li *LiveIngester) run(ctx context.Context, gamePk int64) (out outcome) {
	out.gamePk = gamePk
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out.events = nil
			out.err = fmt.Errorf("panic while processing game: %v", r)
		}
		if out.err != nil {
			li.metrics.RecordGameFetch(metrics.OutcomeFailure, time.Since(start))
		} else {
			li.metrics.RecordGameFetch(metrics.OutcomeSuccess, time.Since(start))
		}
	}()

	doc, err := li.fetcher.FetchLiveFeed(ctx, gamePk)
	if err != nil {
		out.err = err
		return out
	}

	events, stats, err := feed.FlattenWithStats(doc)
	if err != nil {
		out.err = err
		return out
	}
	li.metrics.RecordFlattened(stats.Pitches, stats.Walks, stats.Skipped)

	li.logger.WithFields(logrus.Fields{
		"game_pk":  gamePk,
		"plays":    stats.Plays,
		"rows":     len(events),
		"duration": time.Since(start),
	}).Debug("[live-ingester] ✓ game flattened")

	out.events = events
	return out
}

func (li *LiveIngester) collect(outcomes []outcome) *Batch {
	batch := &Batch{Games: make(map[int64][]feed.PitchEvent, len(outcomes))}

	for _, o := range outcomes {
		switch {
		case o.skipped:
			batch.Skipped = append(batch.Skipped, o.gamePk)
			li.metrics.RecordGameFetch(metrics.OutcomeSkipped, 0)
		case o.err != nil:
			batch.Failures = append(batch.Failures, Failure{GamePk: o.gamePk, Err: o.err})
			li.logger.WithError(o.err).WithField("game_pk", o.gamePk).Warn("[live-ingester] ⚠️ game failed")
		default:
			batch.Games[o.gamePk] = o.events
		}
	}

	li.logger.WithFields(logrus.Fields{
		"games":    len(batch.Games),
		"failures": len(batch.Failures),
		"skipped":  len(batch.Skipped),
		"rows":     batch.Rows(),
	}).Info("[live-ingester] batch complete")
	return batch
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
