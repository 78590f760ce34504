package mlb

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	. "github.com/smartystreets/goconvey/convey"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestClient serves routes keyed by request path.
func newTestClient(t *testing.T, routes map[string]http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	for path, h := range routes {
		mux.HandleFunc(path, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL, 2*time.Second, quietLogger()), srv
}

func serveJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}
}

func TestFetchLiveFeed(t *testing.T) {
	Convey("Given a Stats API server", t, func() {
		client, srv := newTestClient(t, map[string]http.HandlerFunc{
			"/api/v1.1/game/1/feed/live": serveJSON(`{"gamePk": 1, "liveData": {"plays": {"allPlays": []}}, "speed": 95.5}`),
			"/api/v1.1/game/2/feed/live": func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "gone", http.StatusNotFound)
			},
			"/api/v1.1/game/3/feed/live": serveJSON(`{"message": "no game"}`),
			"/api/v1.1/game/4/feed/live": serveJSON(`[1, 2]`),
			"/api/v1.1/game/5/feed/live": serveJSON(`{"gamePk": `),
		})
		ctx := context.Background()

		Convey("When the game exists", func() {
			doc, err := client.FetchLiveFeed(ctx, 1)

			Convey("Then the document is returned with numbers as received", func() {
				So(err, ShouldBeNil)
				So(doc["gamePk"], ShouldEqual, json.Number("1"))
				So(doc["speed"], ShouldEqual, json.Number("95.5"))
			})
		})

		Convey("When the server answers with a non-200 status", func() {
			_, err := client.FetchLiveFeed(ctx, 2)

			Convey("Then a transport error carries the target and status", func() {
				var te *TransportError
				So(errors.As(err, &te), ShouldBeTrue)
				So(te.StatusCode, ShouldEqual, http.StatusNotFound)
				So(te.URL, ShouldEqual, srv.URL+"/api/v1.1/game/2/feed/live")
				So(te.Temporary(), ShouldBeFalse)
				So(err.Error(), ShouldContainSubstring, "404")
			})
		})

		Convey("When the document lacks the game id", func() {
			_, err := client.FetchLiveFeed(ctx, 3)

			Convey("Then a data shape error names the missing key", func() {
				var de *DataShapeError
				So(errors.As(err, &de), ShouldBeTrue)
				So(de.Key, ShouldEqual, "gamePk")
				So(de.URL, ShouldEndWith, "/game/3/feed/live")
			})
		})

		Convey("When the document is not an object", func() {
			_, err := client.FetchLiveFeed(ctx, 4)

			Convey("Then it is a data shape error", func() {
				var de *DataShapeError
				So(errors.As(err, &de), ShouldBeTrue)
			})
		})

		Convey("When the body is truncated", func() {
			_, err := client.FetchLiveFeed(ctx, 5)

			Convey("Then it is a transport error wrapping the decode failure", func() {
				var te *TransportError
				So(errors.As(err, &te), ShouldBeTrue)
				So(te.StatusCode, ShouldEqual, 0)
				So(te.Err, ShouldNotBeNil)
			})
		})
	})

	Convey("Given a server that is not reachable", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		client := New(srv.URL, time.Second, quietLogger())

		_, err := client.FetchLiveFeed(context.Background(), 1)

		Convey("Then the failure is a temporary transport error", func() {
			var te *TransportError
			So(errors.As(err, &te), ShouldBeTrue)
			So(te.Temporary(), ShouldBeTrue)
		})
	})
}

func TestReferenceLookups(t *testing.T) {
	Convey("Given the sports and game type endpoints", t, func() {
		client, _ := newTestClient(t, map[string]http.HandlerFunc{
			"/api/v1/sports": serveJSON(`{"copyright": "x", "sports": [
				{"id": 1, "code": "mlb", "name": "Major League Baseball", "abbreviation": "MLB", "activeStatus": true},
				{"id": 11, "code": "aaa", "name": "Triple-A", "abbreviation": "AAA", "activeStatus": true}
			]}`),
			"/api/v1/gameTypes": serveJSON(`[{"id": "R", "description": "Regular Season"}, {"id": "S", "description": "Spring Training"}]`),
		})
		ctx := context.Background()

		Convey("Then sports are listed", func() {
			sports, err := client.FetchSports(ctx)
			So(err, ShouldBeNil)
			So(sports, ShouldHaveLength, 2)
			So(sports[1].Abbreviation, ShouldEqual, "AAA")
		})

		Convey("Then a known sport id is found", func() {
			sport, ok, err := client.CheckSportID(ctx, 11)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(sport.Name, ShouldEqual, "Triple-A")
		})

		Convey("Then an unknown sport id is reported as absent", func() {
			sport, ok, err := client.CheckSportID(ctx, 99)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
			So(sport, ShouldBeNil)
		})

		Convey("Then game types are listed", func() {
			types, err := client.FetchGameTypes(ctx)
			So(err, ShouldBeNil)
			So(types, ShouldResemble, []GameType{
				{ID: "R", Description: "Regular Season"},
				{ID: "S", Description: "Spring Training"},
			})
		})
	})

	Convey("Given a sports response without the sports key", t, func() {
		client, _ := newTestClient(t, map[string]http.HandlerFunc{
			"/api/v1/sports": serveJSON(`{"copyright": "x"}`),
		})

		_, err := client.FetchSports(context.Background())

		Convey("Then a data shape error is returned", func() {
			var de *DataShapeError
			So(errors.As(err, &de), ShouldBeTrue)
			So(de.Key, ShouldEqual, "sports")
		})
	})
}
