package websocket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fortuna/diamond/internal/feed"
	"github.com/fortuna/diamond/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	. "github.com/smartystreets/goconvey/convey"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func waitForClients(hub *Hub, n int) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/pitches" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestPitchStream(t *testing.T) {
	Convey("Given a running hub and server", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		hub := NewHub(quietLogger(), metrics.NewManager())
		go hub.Run(ctx)
		s := NewServer(hub, quietLogger())
		srv := httptest.NewServer(s.Handler())
		defer srv.Close()

		all := dial(t, srv, "")
		onlyOne := dial(t, srv, "?game_pk=2")
		So(waitForClients(hub, 2), ShouldBeTrue)

		Convey("When events are published for a game", func() {
			err := s.PublishPitchEvents(ctx, 1, []feed.PitchEvent{{GameID: feed.Some[int64](1), PlayCode: feed.Some("X")}})
			So(err, ShouldBeNil)
			So(s.PublishPitchEvents(ctx, 2, []feed.PitchEvent{{GameID: feed.Some[int64](2)}}), ShouldBeNil)

			Convey("Then unfiltered clients receive every game in order", func() {
				_ = all.SetReadDeadline(time.Now().Add(2 * time.Second))
				var first, second PitchMessage
				So(all.ReadJSON(&first), ShouldBeNil)
				So(all.ReadJSON(&second), ShouldBeNil)
				So(first.GamePk, ShouldEqual, int64(1))
				So(first.Events[0].PlayCode, ShouldResemble, feed.Some("X"))
				So(second.GamePk, ShouldEqual, int64(2))
			})

			Convey("Then filtered clients receive only their game", func() {
				_ = onlyOne.SetReadDeadline(time.Now().Add(2 * time.Second))
				var msg PitchMessage
				So(onlyOne.ReadJSON(&msg), ShouldBeNil)
				So(msg.GamePk, ShouldEqual, int64(2))
			})
		})

		Convey("When a client disconnects", func() {
			_ = all.Close()

			Convey("Then it is unregistered", func() {
				So(waitForClients(hub, 1), ShouldBeTrue)
			})
		})

		Convey("When the health endpoint is queried", func() {
			resp, err := http.Get(srv.URL + "/ws/health")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			var body map[string]interface{}
			So(json.NewDecoder(resp.Body).Decode(&body), ShouldBeNil)

			Convey("Then it reports the client count", func() {
				So(body["status"], ShouldEqual, "healthy")
				So(body["clients"], ShouldEqual, 2.0)
			})
		})
	})

	Convey("Given an invalid game filter", t, func() {
		s := NewServer(NewHub(quietLogger(), nil), quietLogger())
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/pitches?game_pk=abc", nil))

		Convey("Then the upgrade is refused", func() {
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})

	Convey("Given nothing to publish", t, func() {
		s := NewServer(NewHub(quietLogger(), nil), quietLogger())

		Convey("Then publishing succeeds without queuing", func() {
			So(s.PublishPitchEvents(context.Background(), 1, nil), ShouldBeNil)
		})
	})
}
