package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/rally/internal/adapters/repository"
	service "github.com/okian/rally/internal/app"
	"github.com/okian/rally/internal/domain/session"
	"github.com/okian/rally/internal/domain/types"
	"github.com/okian/rally/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func started(opts ...service.Option) (*service.Service, context.Context) {
	svc := service.New(opts...)
	ctx := context.Background()
	So(svc.Start(ctx), ShouldBeNil)
	return svc, ctx
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["maxCourts"], ShouldEqual, 32)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithSessionTTL(time.Minute),
			service.WithCommandQueueSize(16),
			service.WithDedupeSize(100),
			service.WithMaxCourts(4),
		)

		Convey("Then the options are reflected in stats", func() {
			stats := svc.GetStats()
			So(stats["queueSize"], ShouldEqual, 16)
			So(stats["dedupeSize"], ShouldEqual, 100)
			So(stats["maxCourts"], ShouldEqual, 4)
			So(stats["sessionTTL"], ShouldEqual, "1m0s")
		})
	})
}

func TestService_Start(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New()
		// Ensure service is stopped after test
		defer svc.Stop()

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := svc.Start(ctx)

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
			})

			Convey("And it should be marked as started", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["sessions"], ShouldEqual, 0)
			})

			Convey("And starting again is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})
		})
	})
}

func TestService_Stop(t *testing.T) {
	Convey("Given a started service with a session", t, func() {
		svc, ctx := started()
		snap, err := svc.CreateSession(ctx)
		So(err, ShouldBeNil)

		Convey("When stopping the service", func() {
			svc.Stop()

			Convey("Then it should be marked as stopped", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, false)
			})

			Convey("And sessions are no longer reachable", func() {
				_, err := svc.Snapshot(ctx, snap.SessionID)
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})

			Convey("And stopping again is safe", func() {
				So(func() { svc.Stop() }, ShouldNotPanic)
			})
		})
	})

	Convey("Given a service that was never started", t, func() {
		svc := service.New()

		Convey("Then creating a session fails", func() {
			_, err := svc.CreateSession(context.Background())
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})
}

func TestService_Players(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc, ctx := started(service.WithRegistry(repository.NewMemoryStore()))
		defer svc.Stop()

		Convey("When registering a player", func() {
			p, err := svc.RegisterPlayer(ctx, "ann", "ash", "b")
			So(err, ShouldBeNil)

			Convey("Then the record is normalized and listed", func() {
				So(p.ID, ShouldStartWith, "AAsh")
				So(p.Rating, ShouldEqual, "B")
				ps, err := svc.ListPlayers(ctx)
				So(err, ShouldBeNil)
				So(ps, ShouldHaveLength, 1)
				So(svc.GetStats()["players"], ShouldEqual, 1)
			})

			Convey("And it can be patched and deleted", func() {
				rating := "A"
				got, err := svc.UpdatePlayer(ctx, p.ID, types.PlayerPatch{Rating: &rating})
				So(err, ShouldBeNil)
				So(got.Rating, ShouldEqual, "A")

				So(svc.DeletePlayer(ctx, p.ID), ShouldBeNil)
				_, err = svc.GetPlayer(ctx, p.ID)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestService_Sessions(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc, ctx := started(service.WithMaxCourts(2))
		defer svc.Stop()

		snap, err := svc.CreateSession(ctx)
		So(err, ShouldBeNil)
		id := snap.SessionID

		Convey("Then a new session is in the lobby", func() {
			So(snap.Phase, ShouldEqual, "lobby")
			So(snap.Courts, ShouldBeEmpty)
			So(svc.GetStats()["sessions"], ShouldEqual, 1)
		})

		Convey("When an unknown player is added", func() {
			_, err := svc.AddAttendee(ctx, id, "NOBODY1234", false)

			Convey("Then it is rejected as not found", func() {
				So(errors.Is(err, session.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When starting with too many courts", func() {
			_, err := svc.StartSession(ctx, id, "doubles", 3, nil)

			Convey("Then it is a validation error", func() {
				So(errors.Is(err, session.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When starting with an unknown format", func() {
			_, err := svc.StartSession(ctx, id, "triples", 1, nil)

			Convey("Then it is a validation error", func() {
				So(errors.Is(err, session.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When the session is deleted", func() {
			So(svc.DeleteSession(ctx, id), ShouldBeNil)

			Convey("Then it can no longer be found", func() {
				_, err := svc.Snapshot(ctx, id)
				So(errors.Is(err, service.ErrSessionNotFound), ShouldBeTrue)
				So(errors.Is(svc.DeleteSession(ctx, id), service.ErrSessionNotFound), ShouldBeTrue)
			})
		})

		Convey("When asking for an unknown session", func() {
			_, err := svc.GamesPlayed(ctx, "missing")

			Convey("Then it is not found", func() {
				So(errors.Is(err, service.ErrSessionNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestService_Expiry(t *testing.T) {
	Convey("Given a service with a short session TTL", t, func() {
		svc, ctx := started(service.WithSessionTTL(50 * time.Millisecond))
		defer svc.Stop()

		snap, err := svc.CreateSession(ctx)
		So(err, ShouldBeNil)

		Convey("When the session is left untouched", func() {
			deadline := time.Now().Add(3 * time.Second)
			for time.Now().Before(deadline) {
				if svc.GetStats()["sessions"] == 0 {
					break
				}
				time.Sleep(20 * time.Millisecond)
			}

			Convey("Then it expires", func() {
				So(svc.GetStats()["sessions"], ShouldEqual, 0)
				_, err := svc.Snapshot(ctx, snap.SessionID)
				So(errors.Is(err, service.ErrSessionNotFound), ShouldBeTrue)
			})
		})
	})
}
