package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

var configEnvVars = []string{
	"DIAMOND_CONFIG", "DIAMOND_REST_PORT", "DIAMOND_POLL_INTERVAL", "DIAMOND_WORKERS",
	"DIAMOND_SPORT_IDS", "DIAMOND_LIVE_STATES", "DIAMOND_ENABLE_LIVE_POLLING",
	"DIAMOND_DAILY_SCHEDULE_HOUR", "DIAMOND_LOG_LEVEL", "DIAMOND_GAME_TYPES",
}

func clearConfigEnv(t *testing.T) {
	for _, key := range configEnvVars {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func writeConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "diamond.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	Convey("Given no configuration sources", t, func() {
		clearConfigEnv(t)

		cfg, err := Load()

		Convey("Then the defaults are used", func() {
			So(err, ShouldBeNil)
			So(cfg.RESTPort, ShouldEqual, "8080")
			So(cfg.PollInterval, ShouldEqual, 10*time.Second)
			So(cfg.LiveStates, ShouldResemble, []string{"I", "M", "N"})
			So(cfg.SportIDs, ShouldResemble, []int{1})
			So(cfg.Workers, ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given environment overrides", t, func() {
		clearConfigEnv(t)
		t.Setenv("DIAMOND_REST_PORT", "9000")
		t.Setenv("DIAMOND_POLL_INTERVAL", "3s")
		t.Setenv("DIAMOND_WORKERS", "6")
		t.Setenv("DIAMOND_SPORT_IDS", "1,11")
		t.Setenv("DIAMOND_ENABLE_LIVE_POLLING", "false")

		cfg, err := Load()

		Convey("Then they replace the defaults", func() {
			So(err, ShouldBeNil)
			So(cfg.RESTPort, ShouldEqual, "9000")
			So(cfg.PollInterval, ShouldEqual, 3*time.Second)
			So(cfg.Workers, ShouldEqual, 6)
			So(cfg.SportIDs, ShouldResemble, []int{1, 11})
			So(cfg.EnableLivePolling, ShouldBeFalse)
		})
	})

	Convey("Given list settings in the environment", t, func() {
		clearConfigEnv(t)
		t.Setenv("DIAMOND_SPORT_IDS", "11")
		t.Setenv("DIAMOND_LIVE_STATES", "I, M")
		t.Setenv("DIAMOND_GAME_TYPES", "R,,F")

		cfg, err := Load()

		Convey("Then single and comma separated values decode into typed slices", func() {
			So(err, ShouldBeNil)
			So(cfg.SportIDs, ShouldResemble, []int{11})
			So(cfg.LiveStates, ShouldResemble, []string{"I", "M"})
			So(cfg.GameTypes, ShouldResemble, []string{"R", "F"})
		})
	})

	Convey("Given a YAML file and an environment override", t, func() {
		clearConfigEnv(t)
		path := writeConfigFile(t, `
log_level: debug
rest_port: "7000"
live_states: ["I"]
game_types: ["R", "F", "D"]
schedule_cache_ttl: 1m
`)
		t.Setenv("DIAMOND_CONFIG", path)
		t.Setenv("DIAMOND_REST_PORT", "7001")

		cfg, err := Load()

		Convey("Then the file applies and the environment wins", func() {
			So(err, ShouldBeNil)
			So(cfg.LogLevel, ShouldEqual, "debug")
			So(cfg.RESTPort, ShouldEqual, "7001")
			So(cfg.LiveStates, ShouldResemble, []string{"I"})
			So(cfg.GameTypes, ShouldResemble, []string{"R", "F", "D"})
			So(cfg.ScheduleCacheTTL, ShouldEqual, time.Minute)
			So(cfg.WSPort, ShouldEqual, "8081")
		})
	})

	Convey("Given a missing config file", t, func() {
		clearConfigEnv(t)
		t.Setenv("DIAMOND_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

		_, err := Load()

		Convey("Then loading fails", func() {
			So(errors.Is(err, ErrLoadConfig), ShouldBeTrue)
		})
	})

	Convey("Given an invalid setting", t, func() {
		clearConfigEnv(t)
		t.Setenv("DIAMOND_DAILY_SCHEDULE_HOUR", "24")

		_, err := Load()

		Convey("Then validation rejects it", func() {
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given the defaults", t, func() {
		cfg := New()
		So(cfg.Validate(), ShouldBeNil)

		Convey("Then non-positive intervals are rejected", func() {
			cfg.PollInterval = 0
			So(cfg.Validate(), ShouldNotBeNil)
		})

		Convey("Then an empty port is rejected", func() {
			cfg.WSPort = ""
			So(cfg.Validate(), ShouldNotBeNil)
		})
	})
}
