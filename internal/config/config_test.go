package config_test

import (
	"errors"
	"testing"

	"github.com/okian/rally/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.SessionTTLMinutes, convey.ShouldEqual, 720)
			convey.So(cfg.CommandQueueSize, convey.ShouldEqual, 256)
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.MaxCourts, convey.ShouldEqual, 32)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with invalid values", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":      func(c *config.Config) { c.Addr = " " },
			"unknown store":   func(c *config.Config) { c.Store = "postgres" },
			"sqlite no path":  func(c *config.Config) { c.Store = config.StoreSQLite; c.SQLitePath = "" },
			"zero ttl":        func(c *config.Config) { c.SessionTTLMinutes = 0 },
			"zero queue":      func(c *config.Config) { c.CommandQueueSize = 0 },
			"negative courts": func(c *config.Config) { c.MaxCourts = -1 },
		}
		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			_ = name
		}
	})
}
