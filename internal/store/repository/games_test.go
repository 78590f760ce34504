package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/fortuna/diamond/internal/ingest/mlb"
	. "github.com/smartystreets/goconvey/convey"
)

func TestScheduleArgs(t *testing.T) {
	Convey("Given a fully populated schedule row", t, func() {
		start := time.Date(2024, 7, 1, 17, 10, 0, 0, time.UTC)
		args := scheduleArgs(mlb.ScheduledGame{
			GamePk: 200, StartTime: start, Time: "01:10 PM", Date: "2024-07-01",
			Away: "Chicago Cubs", Home: "St. Louis Cardinals", State: "I",
			VenueID: 2889, VenueName: "Busch Stadium",
		})

		Convey("Then every parameter is present", func() {
			So(args, ShouldHaveLength, 9)
			So(args[0], ShouldEqual, int64(200))
			So(args[2], ShouldResemble, sql.NullTime{Time: start, Valid: true})
			So(args[7], ShouldResemble, sql.NullInt64{Int64: 2889, Valid: true})
		})
	})

	Convey("Given a row with absent fields", t, func() {
		args := scheduleArgs(mlb.ScheduledGame{GamePk: 300, Date: "2024-07-02"})

		Convey("Then they are stored as NULL", func() {
			So(args[2].(sql.NullTime).Valid, ShouldBeFalse)
			So(args[3].(sql.NullString).Valid, ShouldBeFalse)
			So(args[7].(sql.NullInt64).Valid, ShouldBeFalse)
		})
	})
}
