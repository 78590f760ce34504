package rest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fortuna/diamond/internal/backfill"
	"github.com/fortuna/diamond/internal/feed"
	"github.com/fortuna/diamond/internal/ingest/mlb"
	"github.com/fortuna/diamond/internal/metrics"
	"github.com/fortuna/diamond/internal/store"
	"github.com/fortuna/diamond/internal/store/repository"
	"github.com/sirupsen/logrus"
	. "github.com/smartystreets/goconvey/convey"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeAPI struct {
	doc        map[string]interface{}
	feedErr    error
	schedule   []mlb.ScheduledGame
	scheduleQ  mlb.ScheduleQuery
	scheduleEr error
	sports     []mlb.Sport
}

func (f *fakeAPI) FetchLiveFeed(context.Context, int64) (map[string]interface{}, error) {
	return f.doc, f.feedErr
}

func (f *fakeAPI) FetchScheduleRange(_ context.Context, q mlb.ScheduleQuery) ([]mlb.ScheduledGame, error) {
	f.scheduleQ = q
	return f.schedule, f.scheduleEr
}

func (f *fakeAPI) FetchSports(context.Context) ([]mlb.Sport, error) { return f.sports, nil }

func (f *fakeAPI) CheckSportID(_ context.Context, id int64) (*mlb.Sport, bool, error) {
	for i := range f.sports {
		if f.sports[i].ID == id {
			return &f.sports[i], true, nil
		}
	}
	return nil, false, nil
}

func (f *fakeAPI) FetchGameTypes(context.Context) ([]mlb.GameType, error) {
	return []mlb.GameType{{ID: "R", Description: "Regular Season"}}, nil
}

type fakeGames struct{ games []*store.Game }

func (f *fakeGames) GetByPk(_ context.Context, pk int64) (*store.Game, error) {
	for _, g := range f.games {
		if g.GamePk == pk {
			return g, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeGames) GetByDate(_ context.Context, date time.Time) ([]*store.Game, error) {
	var out []*store.Game
	for _, g := range f.games {
		if g.GameDate.Equal(date) {
			out = append(out, g)
		}
	}
	return out, nil
}

type fakePitches struct{ events map[int64][]feed.PitchEvent }

func (f *fakePitches) ListByGame(_ context.Context, pk int64) ([]feed.PitchEvent, error) {
	return f.events[pk], nil
}

type fakeBackfill struct {
	last backfill.Request
}

func (f *fakeBackfill) Enqueue(_ context.Context, req backfill.Request) (*backfill.Job, error) {
	if _, err := req.Spec(); err != nil {
		return nil, err
	}
	f.last = req
	return &backfill.Job{JobID: "job-1", JobType: backfill.JobTypeGame, Status: backfill.JobStatusQueued}, nil
}

func (f *fakeBackfill) GetStatus(context.Context) (*backfill.StatusSummary, error) {
	return &backfill.StatusSummary{
		ActiveJob: &backfill.Job{
			JobID:         "job-2",
			Status:        backfill.JobStatusRunning,
			StatusMessage: sql.NullString{String: "Processing", Valid: true},
		},
	}, nil
}

type fixture struct {
	api      *fakeAPI
	backfill *fakeBackfill
	server   *Server
	checkErr error
}

func newFixture() *fixture {
	f := &fixture{
		api: &fakeAPI{
			doc: map[string]interface{}{
				"gamePk":   json.Number("1"),
				"liveData": map[string]interface{}{"plays": map[string]interface{}{"allPlays": []interface{}{}}},
			},
			sports: []mlb.Sport{{ID: 1, Code: "mlb", Name: "Major League Baseball"}},
		},
		backfill: &fakeBackfill{},
	}

	games := &fakeGames{games: []*store.Game{{
		GamePk:   100,
		GameDate: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		State:    sql.NullString{String: "F", Valid: true},
	}}}
	pitches := &fakePitches{events: map[int64][]feed.PitchEvent{
		100: {{GameID: feed.Some[int64](100), PlayCode: feed.Some("B")}},
	}}
	checks := map[string]HealthCheck{
		"database": func(context.Context) error { return f.checkErr },
	}

	h := NewHandler(f.api, games, pitches, checks, quietLogger())
	f.server = NewServer("0", h, f.backfill, metrics.NewManager(), quietLogger())
	return f
}

func (f *fixture) do(method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, reader))

	var decoded map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	return rec, decoded
}

func TestHealthAndMetrics(t *testing.T) {
	Convey("Given a server with a database check", t, func() {
		f := newFixture()

		Convey("When every dependency is up", func() {
			rec, body := f.do(http.MethodGet, "/health", "")

			Convey("Then the service is healthy", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(body["status"], ShouldEqual, "healthy")
			})
		})

		Convey("When the database is down", func() {
			f.checkErr = errors.New("connection refused")
			rec, body := f.do(http.MethodGet, "/health", "")

			Convey("Then the service is degraded", func() {
				So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(body["status"], ShouldEqual, "degraded")
			})
		})

		Convey("When metrics are scraped after a request", func() {
			f.do(http.MethodGet, "/api/v1/sports", "")
			rec, _ := f.do(http.MethodGet, "/metrics", "")

			Convey("Then request counts are labelled by route template", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, `route="/api/v1/sports"`)
			})
		})

		Convey("When a preflight request arrives", func() {
			rec, _ := f.do(http.MethodOptions, "/api/v1/backfill", "")

			Convey("Then CORS headers are returned", func() {
				So(rec.Code, ShouldEqual, http.StatusNoContent)
				So(rec.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
			})
		})
	})
}

func TestScheduleRoutes(t *testing.T) {
	Convey("Given a schedule request", t, func() {
		f := newFixture()
		f.api.schedule = []mlb.ScheduledGame{{GamePk: 5, Date: "2024-07-01"}}

		Convey("When filters are passed", func() {
			rec := httptest.NewRecorder()
			f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
				"/api/v1/schedule?start=2024-07-01&end=2024-07-02&sport_id=1,11&game_type=R,P", nil))

			Convey("Then they reach the Stats API query", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(f.api.scheduleQ.SportIDs, ShouldResemble, []int{1, 11})
				So(f.api.scheduleQ.GameTypes, ShouldResemble, []string{"R", "P"})
				So(f.api.scheduleQ.End.Format(time.DateOnly), ShouldEqual, "2024-07-02")

				var games []mlb.ScheduledGame
				So(json.Unmarshal(rec.Body.Bytes(), &games), ShouldBeNil)
				So(games[0].GamePk, ShouldEqual, int64(5))
			})
		})

		Convey("When no games are scheduled", func() {
			f.api.scheduleEr = mlb.ErrNoGames
			rec := httptest.NewRecorder()
			f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/schedule?start=2024-12-25", nil))

			Convey("Then an empty list is returned", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(rec.Body.String()), ShouldEqual, "[]")
			})
		})

		Convey("When the range is inverted or malformed", func() {
			rec, _ := f.do(http.MethodGet, "/api/v1/schedule?start=2024-07-02&end=2024-07-01", "")
			So(rec.Code, ShouldEqual, http.StatusBadRequest)

			rec, _ = f.do(http.MethodGet, "/api/v1/schedule?start=July", "")
			So(rec.Code, ShouldEqual, http.StatusBadRequest)

			rec, _ = f.do(http.MethodGet, "/api/v1/schedule?sport_id=mlb", "")
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the Stats API is down", func() {
			f.api.scheduleEr = &mlb.TransportError{URL: "x", StatusCode: 503}
			rec, body := f.do(http.MethodGet, "/api/v1/schedule", "")

			Convey("Then the gateway error is surfaced", func() {
				So(rec.Code, ShouldEqual, http.StatusBadGateway)
				So(body["error"], ShouldEqual, "Failed to fetch schedule")
			})
		})
	})
}

func TestGameRoutes(t *testing.T) {
	Convey("Given stored games and pitch events", t, func() {
		f := newFixture()

		Convey("Then games are listed by date", func() {
			rec := httptest.NewRecorder()
			f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/games?date=2024-07-01", nil))
			So(rec.Code, ShouldEqual, http.StatusOK)

			var games []store.GameView
			So(json.Unmarshal(rec.Body.Bytes(), &games), ShouldBeNil)
			So(games, ShouldHaveLength, 1)
			So(games[0].State, ShouldEqual, "F")
		})

		Convey("Then a single game is found or reported missing", func() {
			rec, body := f.do(http.MethodGet, "/api/v1/games/100", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(body["game_pk"], ShouldEqual, 100.0)

			rec, _ = f.do(http.MethodGet, "/api/v1/games/999", "")
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then stored pitches are returned", func() {
			rec, body := f.do(http.MethodGet, "/api/v1/games/100/pitches", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(body["count"], ShouldEqual, 1.0)
		})

		Convey("Then live pitches are flattened on demand", func() {
			rec, body := f.do(http.MethodGet, "/api/v1/games/1/pitches?source=live", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(body["count"], ShouldEqual, 0.0)
			So(body["events"], ShouldResemble, []interface{}{})
		})

		Convey("Then a malformed live feed is unprocessable", func() {
			f.api.doc = map[string]interface{}{"gamePk": json.Number("1")}
			rec, _ := f.do(http.MethodGet, "/api/v1/games/1/pitches?source=live", "")
			So(rec.Code, ShouldEqual, http.StatusUnprocessableEntity)
		})

		Convey("Then an upstream shape error is a bad gateway", func() {
			f.api.feedErr = &mlb.DataShapeError{URL: "x", Key: "gamePk"}
			rec, _ := f.do(http.MethodGet, "/api/v1/games/1/pitches?source=live", "")
			So(rec.Code, ShouldEqual, http.StatusBadGateway)
		})

		Convey("Then an unknown source is rejected", func() {
			rec, _ := f.do(http.MethodGet, "/api/v1/games/1/pitches?source=cache", "")
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})

	Convey("Given a handler without storage", t, func() {
		h := NewHandler(&fakeAPI{}, nil, nil, nil, quietLogger())
		s := NewServer("0", h, nil, nil, quietLogger())

		Convey("Then stored-data routes are unavailable", func() {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/games", nil))
			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)

			rec = httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/backfill", strings.NewReader(`{}`)))
			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestReferenceRoutes(t *testing.T) {
	Convey("Given the reference lists", t, func() {
		f := newFixture()

		Convey("Then a known sport is returned and an unknown one is missing", func() {
			rec, body := f.do(http.MethodGet, "/api/v1/sports/1", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(body["code"], ShouldEqual, "mlb")

			rec, _ = f.do(http.MethodGet, "/api/v1/sports/42", "")
			So(rec.Code, ShouldEqual, http.StatusNotFound)

			rec, _ = f.do(http.MethodGet, "/api/v1/sports/abc", "")
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then game types are listed", func() {
			rec := httptest.NewRecorder()
			f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/game-types", nil))
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "Regular Season")
		})
	})
}

func TestBackfillRoutes(t *testing.T) {
	Convey("Given the backfill endpoints", t, func() {
		f := newFixture()

		Convey("When a game job is posted", func() {
			rec, body := f.do(http.MethodPost, "/api/v1/backfill", `{"game_pk": 745000, "game_pks": [745001], "dry_run": true}`)

			Convey("Then it is accepted", func() {
				So(rec.Code, ShouldEqual, http.StatusAccepted)
				So(body["job"].(map[string]interface{})["job_id"], ShouldEqual, "job-1")
				So(f.backfill.last.GamePks, ShouldResemble, []int64{745001, 745000})
				So(f.backfill.last.DryRun, ShouldBeTrue)
			})
		})

		Convey("When a request is invalid", func() {
			rec, _ := f.do(http.MethodPost, "/api/v1/backfill", `{}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)

			rec, _ = f.do(http.MethodPost, "/api/v1/backfill", `{"start_date": "07/01/2024"}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)

			rec, _ = f.do(http.MethodPost, "/api/v1/backfill", `not json`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When status is requested", func() {
			rec, body := f.do(http.MethodGet, "/api/v1/backfill/status", "")

			Convey("Then the active job is reported", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(body["status"], ShouldEqual, "running")
				So(body["message"], ShouldEqual, "Processing")
				So(body["history"], ShouldResemble, []interface{}{})
			})
		})
	})
}
