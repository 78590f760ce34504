package backfill

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fortuna/diamond/internal/feed"
	"github.com/fortuna/diamond/internal/ingest"
	"github.com/fortuna/diamond/internal/ingest/mlb"
	"github.com/sirupsen/logrus"
	. "github.com/smartystreets/goconvey/convey"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeSchedule struct {
	games      []mlb.ScheduledGame
	err        error
	lastQuery  mlb.ScheduleQuery
	rangeCalls int
	seasonCall int
}

func (f *fakeSchedule) FetchSchedule(_ context.Context, q mlb.ScheduleQuery) ([]mlb.ScheduledGame, error) {
	f.seasonCall++
	f.lastQuery = q
	return f.games, f.err
}

func (f *fakeSchedule) FetchScheduleRange(_ context.Context, q mlb.ScheduleQuery) ([]mlb.ScheduledGame, error) {
	f.rangeCalls++
	f.lastQuery = q
	return f.games, f.err
}

// fakeIngester returns two rows for every game except those in fail.
type fakeIngester struct {
	mu      sync.Mutex
	fail    map[int64]error
	skipAll bool
	calls   [][]int64
}

func (f *fakeIngester) FetchAndFlatten(_ context.Context, gamePks []int64) *ingest.Batch {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]int64(nil), gamePks...))

	batch := &ingest.Batch{Games: map[int64][]feed.PitchEvent{}}
	for _, pk := range gamePks {
		switch {
		case f.skipAll:
			batch.Skipped = append(batch.Skipped, pk)
		case f.fail[pk] != nil:
			batch.Failures = append(batch.Failures, ingest.Failure{GamePk: pk, Err: f.fail[pk]})
		default:
			batch.Games[pk] = []feed.PitchEvent{{GameID: feed.Some(pk)}, {GameID: feed.Some(pk)}}
		}
	}
	return batch
}

type fakeWriter struct {
	mu      sync.Mutex
	written []int64
	fail    map[int64]error
}

func (f *fakeWriter) WriteEvents(_ context.Context, gamePk int64, events []feed.PitchEvent) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[gamePk]; err != nil {
		return 0, err
	}
	f.written = append(f.written, gamePk)
	return len(events), nil
}

type recordingReporter struct {
	nopReporter
	dates    []time.Time
	written  []int64
	failed   []int64
	total    int
	complete bool
	errs     []error
}

func (r *recordingReporter) OnJobStart(_ JobSpec, total int)       { r.total = total }
func (r *recordingReporter) OnDateStart(d time.Time, _ int, _ int) { r.dates = append(r.dates, d) }
func (r *recordingReporter) OnGameWritten(pk int64, _ int)         { r.written = append(r.written, pk) }
func (r *recordingReporter) OnGameFailed(pk int64, _ error)        { r.failed = append(r.failed, pk) }
func (r *recordingReporter) OnJobComplete(*Result)                 { r.complete = true }
func (r *recordingReporter) OnJobError(err error)                  { r.errs = append(r.errs, err) }

func day(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func TestRunnerGames(t *testing.T) {
	Convey("Given explicit game pks with one failing fetch", t, func() {
		ing := &fakeIngester{fail: map[int64]error{2: &mlb.TransportError{StatusCode: 503}}}
		w := &fakeWriter{}
		r := NewRunner(&fakeSchedule{}, ing, w, quietLogger()).WithChunkSize(2)
		rep := &recordingReporter{}

		result, err := r.Run(context.Background(), JobSpec{Type: JobTypeGame, GamePks: []int64{1, 2, 3}}, rep)

		Convey("Then the run completes and reports the failure", func() {
			So(err, ShouldBeNil)
			So(result.GamesWritten, ShouldEqual, 2)
			So(result.GamesFailed, ShouldEqual, 1)
			So(result.Rows, ShouldEqual, 4)
			So(result.Failures[0].GamePk, ShouldEqual, int64(2))
			So(w.written, ShouldResemble, []int64{1, 3})
			So(rep.failed, ShouldResemble, []int64{2})
			So(rep.complete, ShouldBeTrue)
		})

		Convey("Then games are fetched in chunks", func() {
			So(ing.calls, ShouldResemble, [][]int64{{1, 2}, {3}})
		})
	})

	Convey("Given a dry run", t, func() {
		w := &fakeWriter{}
		r := NewRunner(&fakeSchedule{}, &fakeIngester{}, w, quietLogger())

		result, err := r.Run(context.Background(), JobSpec{Type: JobTypeGame, GamePks: []int64{7}, DryRun: true}, nil)

		Convey("Then games are flattened but nothing is written", func() {
			So(err, ShouldBeNil)
			So(result.GamesWritten, ShouldEqual, 1)
			So(result.Rows, ShouldEqual, 2)
			So(w.written, ShouldBeEmpty)
		})
	})

	Convey("Given a failing store write", t, func() {
		w := &fakeWriter{fail: map[int64]error{1: errors.New("copy failed")}}
		r := NewRunner(&fakeSchedule{}, &fakeIngester{}, w, quietLogger())

		result, err := r.Run(context.Background(), JobSpec{Type: JobTypeGame, GamePks: []int64{1, 2}}, nil)

		Convey("Then the game counts as failed and the rest continue", func() {
			So(err, ShouldBeNil)
			So(result.GamesFailed, ShouldEqual, 1)
			So(w.written, ShouldResemble, []int64{2})
		})
	})

	Convey("Given an ingester that has been shut down", t, func() {
		r := NewRunner(&fakeSchedule{}, &fakeIngester{skipAll: true}, &fakeWriter{}, quietLogger())
		rep := &recordingReporter{}

		result, err := r.Run(context.Background(), JobSpec{Type: JobTypeGame, GamePks: []int64{1, 2}}, rep)

		Convey("Then the run stops with an error", func() {
			So(err, ShouldNotBeNil)
			So(result.GamesSkipped, ShouldEqual, 2)
			So(rep.errs, ShouldHaveLength, 1)
			So(rep.complete, ShouldBeFalse)
		})
	})

	Convey("Given no writer and a real run", t, func() {
		r := NewRunner(&fakeSchedule{}, &fakeIngester{}, nil, quietLogger())

		_, err := r.Run(context.Background(), JobSpec{Type: JobTypeGame, GamePks: []int64{1}}, nil)

		Convey("Then the run is refused", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRunnerSchedules(t *testing.T) {
	games := []mlb.ScheduledGame{
		{GamePk: 10, Date: "2024-04-02"},
		{GamePk: 11, Date: "2024-04-02"},
		{GamePk: 20, Date: "2024-04-01"},
	}

	Convey("Given a season job", t, func() {
		sched := &fakeSchedule{games: games}
		w := &fakeWriter{}
		r := NewRunner(sched, &fakeIngester{}, w, quietLogger()).WithScheduleFilter([]int{1}, []string{"R"})
		rep := &recordingReporter{}

		result, err := r.Run(context.Background(), JobSpec{Type: JobTypeSeason, Season: 2024}, rep)

		Convey("Then dates are processed in order with the configured filter", func() {
			So(err, ShouldBeNil)
			So(sched.seasonCall, ShouldEqual, 1)
			So(sched.lastQuery.Seasons, ShouldResemble, []int{2024})
			So(sched.lastQuery.SportIDs, ShouldResemble, []int{1})
			So(rep.total, ShouldEqual, 2)
			So(rep.dates, ShouldResemble, []time.Time{day("2024-04-01"), day("2024-04-02")})
			So(w.written, ShouldResemble, []int64{20, 10, 11})
			So(result.GamesWritten, ShouldEqual, 3)
		})
	})

	Convey("Given a date range job", t, func() {
		sched := &fakeSchedule{games: games}
		rep := &recordingReporter{}
		r := NewRunner(sched, &fakeIngester{}, &fakeWriter{}, quietLogger())

		_, err := r.Run(context.Background(), JobSpec{
			Type: JobTypeDateRange, Start: day("2024-03-31"), End: day("2024-04-02"),
		}, rep)

		Convey("Then every day in the range is a progress step", func() {
			So(err, ShouldBeNil)
			So(sched.rangeCalls, ShouldEqual, 1)
			So(rep.total, ShouldEqual, 3)
			So(rep.dates[0], ShouldEqual, day("2024-03-31"))
		})
	})

	Convey("Given a range without games", t, func() {
		sched := &fakeSchedule{err: mlb.ErrNoGames}
		r := NewRunner(sched, &fakeIngester{}, &fakeWriter{}, quietLogger())

		result, err := r.Run(context.Background(), JobSpec{
			Type: JobTypeDateRange, Start: day("2024-12-01"), End: day("2024-12-01"),
		}, nil)

		Convey("Then the run completes empty", func() {
			So(err, ShouldBeNil)
			So(result.GamesWritten, ShouldEqual, 0)
		})
	})

	Convey("Given a schedule outage", t, func() {
		sched := &fakeSchedule{err: &mlb.TransportError{StatusCode: 500}}
		r := NewRunner(sched, &fakeIngester{}, &fakeWriter{}, quietLogger())

		_, err := r.Run(context.Background(), JobSpec{Type: JobTypeSeason, Season: 2024}, nil)

		Convey("Then the run fails with the transport error", func() {
			var te *mlb.TransportError
			So(errors.As(err, &te), ShouldBeTrue)
		})
	})
}

func TestEnumerateDates(t *testing.T) {
	Convey("Given reversed bounds", t, func() {
		dates := enumerateDates(day("2024-04-03"), day("2024-04-01"))

		Convey("Then the range is normalized", func() {
			So(dates, ShouldHaveLength, 3)
			So(dates[0], ShouldEqual, day("2024-04-01"))
		})
	})
}
