package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNew(t *testing.T) {
	Convey("Given a configured level", t, func() {
		var buf bytes.Buffer
		logger := NewWithOutput("warn", &buf)

		Convey("Then lower levels are dropped", func() {
			So(logger.GetLevel(), ShouldEqual, logrus.WarnLevel)
			logger.Info("hidden")
			logger.WithField("game_pk", 745804).Warn("shown")
			So(buf.String(), ShouldNotContainSubstring, "hidden")
			So(buf.String(), ShouldContainSubstring, "game_pk=745804")
		})
	})

	Convey("Given an unknown level", t, func() {
		var buf bytes.Buffer
		logger := NewWithOutput("loud", &buf)

		Convey("Then info is used and the problem is logged", func() {
			So(logger.GetLevel(), ShouldEqual, logrus.InfoLevel)
			So(buf.String(), ShouldContainSubstring, "unknown log level")
		})
	})
}
