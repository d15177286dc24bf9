package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/rally/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
				convey.So(cfg.CommandQueueSize, convey.ShouldEqual, 256)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("RALLY_ADDR", ":8080")
			_ = os.Setenv("RALLY_STORE", "SQLite")
			_ = os.Setenv("RALLY_SQLITE_PATH", "/tmp/club.db")
			_ = os.Setenv("RALLY_COMMAND_QUEUE_SIZE", "64")
			_ = os.Setenv("RALLY_MAX_COURTS", "6")
			_ = os.Setenv("RALLY_PLAYERS_SEED", "99")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Store, convey.ShouldEqual, config.StoreSQLite)
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "/tmp/club.db")
				convey.So(cfg.CommandQueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.MaxCourts, convey.ShouldEqual, 6)
				convey.So(cfg.PlayersSeed, convey.ShouldEqual, 99)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			tmpFile := createTempConfigFile(t, `
addr: ":9090"
log_level: debug
session_ttl_minutes: 90
dedupe_size: 500
max_courts: 4
`)
			_ = os.Setenv("RALLY_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.SessionTTLMinutes, convey.ShouldEqual, 90)
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 500)
				convey.So(cfg.MaxCourts, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When both file and environment variables are set", func() {
			tmpFile := createTempConfigFile(t, "addr: \":9090\"\nmax_courts: 4\n")
			_ = os.Setenv("RALLY_CONFIG", tmpFile)
			_ = os.Setenv("RALLY_MAX_COURTS", "8")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env vars take precedence", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.MaxCourts, convey.ShouldEqual, 8)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("RALLY_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

			_, err := config.Load(ctx)

			convey.Convey("Then it fails with a load error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the loaded values are invalid", func() {
			_ = os.Setenv("RALLY_STORE", "postgres")

			_, err := config.Load(ctx)

			convey.Convey("Then it fails validation", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, k := range []string{
		"RALLY_CONFIG", "RALLY_ADDR", "RALLY_STORE", "RALLY_SQLITE_PATH",
		"RALLY_COMMAND_QUEUE_SIZE", "RALLY_MAX_COURTS", "RALLY_PLAYERS_SEED",
	} {
		_ = os.Unsetenv(k)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rally.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
