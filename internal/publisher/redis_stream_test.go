package publisher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fortuna/diamond/internal/feed"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEntryValues(t *testing.T) {
	Convey("Given a pitch event", t, func() {
		now := time.Unix(1719855000, 0)
		event := feed.PitchEvent{
			GameID:   feed.Some[int64](745804),
			PlayID:   feed.Some("a1b2"),
			PlayCode: feed.Some("S"),
		}

		values, err := entryValues(745804, &event, now)
		So(err, ShouldBeNil)

		Convey("Then the entry carries its keys and JSON data", func() {
			So(values["game_pk"], ShouldEqual, "745804")
			So(values["play_id"], ShouldEqual, "a1b2")
			So(values["timestamp"], ShouldEqual, int64(1719855000))

			var decoded map[string]interface{}
			So(json.Unmarshal([]byte(values["data"].(string)), &decoded), ShouldBeNil)
			So(decoded["play_code"], ShouldEqual, "S")
			So(decoded["start_speed"], ShouldBeNil)
		})
	})

	Convey("Given a walk row without a play id", t, func() {
		values, err := entryValues(1, &feed.PitchEvent{}, time.Now())
		So(err, ShouldBeNil)

		Convey("Then the play id field is empty", func() {
			So(values["play_id"], ShouldEqual, "")
		})
	})
}

func TestPublishNothing(t *testing.T) {
	Convey("Given no events", t, func() {
		p := NewRedisStreamPublisher(nil, "")

		Convey("Then publishing is a no-op and the default stream is used", func() {
			So(p.Stream(), ShouldEqual, DefaultStream)
			So(p.PublishPitchEvents(context.Background(), 1, nil), ShouldBeNil)
		})
	})
}
