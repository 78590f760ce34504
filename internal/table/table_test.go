package table

import (
	"testing"

	"github.com/fortuna/diamond/internal/feed"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTable(t *testing.T) {
	Convey("Given no events", t, func() {
		tbl, err := New(nil)

		Convey("Then the no-data result is returned instead of an empty table", func() {
			So(err, ShouldEqual, ErrNoData)
			So(tbl, ShouldBeNil)
			So(tbl.Len(), ShouldEqual, 0)
		})
	})

	Convey("Given two games' events", t, func() {
		first, err := New([]feed.PitchEvent{
			{GameID: feed.Some[int64](1), PlayCode: feed.Some("S")},
			{GameID: feed.Some[int64](1)},
		})
		So(err, ShouldBeNil)
		second, err := New([]feed.PitchEvent{{GameID: feed.Some[int64](2), Balls: feed.Some[int64](0)}})
		So(err, ShouldBeNil)

		Convey("Then rows line up with the shared columns", func() {
			So(first.Columns, ShouldResemble, feed.Columns)
			So(first.Rows[0], ShouldHaveLength, len(feed.Columns))
		})

		Convey("Then missing values are nil and present zeros are kept", func() {
			codes, ok := first.Column("play_code")
			So(ok, ShouldBeTrue)
			So(codes, ShouldResemble, []any{"S", nil})

			balls, _ := second.Column("balls")
			So(balls, ShouldResemble, []any{int64(0)})
		})

		Convey("Then the tables concatenate", func() {
			So(first.Append(second), ShouldBeNil)
			So(first.Len(), ShouldEqual, 3)
			ids, _ := first.Column("game_id")
			So(ids, ShouldResemble, []any{int64(1), int64(1), int64(2)})
		})

		Convey("Then a table with other columns is rejected", func() {
			So(first.Append(&Table{Columns: []string{"x"}}), ShouldNotBeNil)
		})

		Convey("Then records are keyed by column", func() {
			recs := second.Records()
			So(recs, ShouldHaveLength, 1)
			So(recs[0]["game_id"], ShouldEqual, int64(2))
			So(recs[0]["event"], ShouldBeNil)
		})

		Convey("Then renaming a table's columns leaves other tables intact", func() {
			first.Columns[0] = "renamed"
			So(feed.Columns[0], ShouldEqual, "game_id")
			So(second.Columns[0], ShouldEqual, "game_id")
		})

		Convey("Then unknown columns are reported", func() {
			_, ok := first.Column("nope")
			So(ok, ShouldBeFalse)
		})
	})
}
