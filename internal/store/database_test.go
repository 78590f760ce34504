package store

import (
	"strings"
	"testing"

	"github.com/fortuna/diamond/internal/feed"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMigrations(t *testing.T) {
	Convey("Given the embedded migrations", t, func() {
		names, err := Migrations()
		So(err, ShouldBeNil)

		Convey("Then they are listed in apply order", func() {
			So(names, ShouldResemble, []string{
				"001_create_games.sql",
				"002_create_pitch_events.sql",
				"003_create_backfill_jobs.sql",
			})
		})

		Convey("Then every file can be read", func() {
			for _, name := range names {
				content, err := migrationFiles.ReadFile("migrations/" + name)
				So(err, ShouldBeNil)
				So(strings.Contains(string(content), "CREATE TABLE"), ShouldBeTrue)
			}
		})
	})
}

func TestPitchEventsSchema(t *testing.T) {
	Convey("Given the pitch events migration", t, func() {
		content, err := migrationFiles.ReadFile("migrations/002_create_pitch_events.sql")
		So(err, ShouldBeNil)

		var columns []string
		inTable := false
		for _, line := range strings.Split(string(content), "\n") {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "CREATE TABLE"):
				inTable = true
			case strings.HasPrefix(line, ")"):
				inTable = false
			case inTable && line != "":
				columns = append(columns, strings.Fields(line)[0])
			}
		}

		Convey("Then its data columns are the record columns in order", func() {
			So(columns[0], ShouldEqual, "row_id")
			So(columns[len(columns)-1], ShouldEqual, "ingested_at")
			So(columns[1:len(columns)-1], ShouldResemble, feed.Columns)
		})
	})
}
