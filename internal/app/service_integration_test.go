package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	service "github.com/okian/rally/internal/app"
	"github.com/okian/rally/internal/domain/session"
	"github.com/okian/rally/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

// register adds n players and returns their ids.
func register(ctx context.Context, svc *service.Service, n int) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		p, err := svc.RegisterPlayer(ctx, fmt.Sprintf("Player%02d", i), fmt.Sprintf("Test%02d", i), "C")
		So(err, ShouldBeNil)
		ids = append(ids, p.ID)
	}
	return ids
}

func partitioned(snap types.Snapshot) bool {
	seen := make(map[string]int)
	for _, c := range snap.Courts {
		for _, id := range c.Occupants {
			seen[id]++
		}
	}
	for _, w := range snap.Waiting {
		seen[w.ID]++
	}
	for _, p := range snap.Paused {
		seen[p.ID]++
	}
	if len(seen) != len(snap.Attendees) {
		return false
	}
	for _, a := range snap.Attendees {
		if seen[a.ID] != 1 {
			return false
		}
	}
	return true
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a started service with ten registered players", t, func() {
		svc := service.New(service.WithMaxCourts(4))
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		ids := register(ctx, svc, 10)
		snap, err := svc.CreateSession(ctx)
		So(err, ShouldBeNil)
		sid := snap.SessionID

		for _, id := range ids[:9] {
			_, err := svc.AddAttendee(ctx, sid, id, false)
			So(err, ShouldBeNil)
		}
		_, err = svc.AddAttendee(ctx, sid, ids[9], true)
		So(err, ShouldBeNil)

		Convey("When the session starts with two doubles courts", func() {
			seed := int64(7)
			res, err := svc.StartSession(ctx, sid, "doubles", 2, &seed)
			So(err, ShouldBeNil)

			Convey("Then both courts are filled and one attendee waits", func() {
				So(res.IdleCourts, ShouldBeEmpty)
				So(res.Snapshot.Phase, ShouldEqual, "running")
				So(*res.Snapshot.Seed, ShouldEqual, 7)
				So(res.Snapshot.Courts, ShouldHaveLength, 2)
				So(res.Snapshot.Courts[0].Number, ShouldEqual, 1)
				So(res.Snapshot.Waiting, ShouldHaveLength, 1)
				So(res.Snapshot.Paused, ShouldHaveLength, 1)
				So(partitioned(res.Snapshot), ShouldBeTrue)
			})

			Convey("And starting twice is refused", func() {
				_, err := svc.StartSession(ctx, sid, "doubles", 2, nil)
				So(errors.Is(err, session.ErrAlreadyRunning), ShouldBeTrue)
			})

			Convey("And team labels use registry names", func() {
				team := res.Snapshot.Courts[0].Match.Team1
				So(team, ShouldHaveLength, 2)
				So(team[0], ShouldStartWith, "Player")
			})

			Convey("When courts are completed in turn", func() {
				for i := 0; i < 12; i++ {
					r, err := svc.CompleteCourt(ctx, sid, i%2+1, "")
					So(err, ShouldBeNil)
					So(r.Refilled, ShouldBeTrue)
					So(r.Occupants, ShouldHaveLength, 4)
				}
				snap, err := svc.Snapshot(ctx, sid)
				So(err, ShouldBeNil)

				Convey("Then every attendee is in exactly one place", func() {
					So(partitioned(snap), ShouldBeTrue)
				})

				Convey("And games are shared among active attendees", func() {
					rows, err := svc.GamesPlayed(ctx, sid)
					So(err, ShouldBeNil)
					So(rows, ShouldHaveLength, 10)
					total := 0
					for _, r := range rows {
						total += r.Games
					}
					So(total, ShouldEqual, 48)
					So(rows[0].Games, ShouldEqual, 0)
					So(rows[0].ID, ShouldEqual, ids[9])
					So(rows[1].Games, ShouldBeGreaterThanOrEqualTo, 4)
					So(rows[9].Games-rows[1].Games, ShouldBeLessThanOrEqualTo, 2)
				})

				Convey("And the board draws both courts", func() {
					board, err := svc.Board(ctx, sid)
					So(err, ShouldBeNil)
					So(board, ShouldStartWith, "=== Courts ===\n")
					So(board, ShouldContainSubstring, "Court 2 (doubles)")
					So(board, ShouldContainSubstring, "Paused: "+ids[9]+"(0)")
				})
			})

			Convey("When a completion is retried with the same request id", func() {
				first, err := svc.CompleteCourt(ctx, sid, 1, "req-1")
				So(err, ShouldBeNil)
				again, err := svc.CompleteCourt(ctx, sid, 1, "req-1")
				So(err, ShouldBeNil)

				Convey("Then the first result is replayed without another game", func() {
					So(first.Duplicate, ShouldBeFalse)
					So(again.Duplicate, ShouldBeTrue)
					So(again.Occupants, ShouldResemble, first.Occupants)
					rows, err := svc.GamesPlayed(ctx, sid)
					So(err, ShouldBeNil)
					total := 0
					for _, r := range rows {
						total += r.Games
					}
					So(total, ShouldEqual, 4)
				})
			})

			Convey("When the same request id is sent to another court", func() {
				first, err := svc.CompleteCourt(ctx, sid, 1, "req-2")
				So(err, ShouldBeNil)
				other, err := svc.CompleteCourt(ctx, sid, 2, "req-2")
				So(err, ShouldBeNil)

				Convey("Then each court completes once", func() {
					So(first.Duplicate, ShouldBeFalse)
					So(other.Duplicate, ShouldBeFalse)
					So(other.Court, ShouldEqual, 2)
					rows, err := svc.GamesPlayed(ctx, sid)
					So(err, ShouldBeNil)
					total := 0
					for _, r := range rows {
						total += r.Games
					}
					So(total, ShouldEqual, 8)
				})
			})

			Convey("When an attendee on court is removed", func() {
				on := res.Snapshot.Courts[0].Occupants[0]
				_, err := svc.RemoveAttendee(ctx, sid, on)

				Convey("Then it is blocked", func() {
					So(errors.Is(err, session.ErrBlocked), ShouldBeTrue)
				})
			})

			Convey("When the paused attendee returns", func() {
				snap, err := svc.UnpauseAttendee(ctx, sid, ids[9])
				So(err, ShouldBeNil)

				Convey("Then they join the back of the queue", func() {
					So(snap.Paused, ShouldBeEmpty)
					So(snap.Waiting[len(snap.Waiting)-1].ID, ShouldEqual, ids[9])
				})

				Convey("And pausing them again takes them out of the queue", func() {
					snap, err := svc.PauseAttendee(ctx, sid, ids[9])
					So(err, ShouldBeNil)
					So(snap.Waiting, ShouldHaveLength, 1)
					So(snap.Paused, ShouldHaveLength, 1)
				})
			})

			Convey("When a court number is out of range", func() {
				_, err := svc.CompleteCourt(ctx, sid, 3, "")

				Convey("Then it is an invalid court", func() {
					So(errors.Is(err, session.ErrInvalidCourt), ShouldBeTrue)
				})
			})

			Convey("When refilling a busy court", func() {
				_, err := svc.RefillCourt(ctx, sid, 1)

				Convey("Then it is an invalid court", func() {
					So(errors.Is(err, session.ErrInvalidCourt), ShouldBeTrue)
				})
			})
		})

		Convey("When a session starts with more courts than players allow", func() {
			res, err := svc.StartSession(ctx, sid, "doubles", 4, nil)
			So(err, ShouldBeNil)

			Convey("Then the extra courts are reported idle", func() {
				So(res.IdleCourts, ShouldResemble, []int{3, 4})
				So(res.Snapshot.Seed, ShouldNotBeNil)
			})

			Convey("And a manual refill reports there is nobody to place", func() {
				r, err := svc.RefillCourt(ctx, sid, 3)
				So(err, ShouldBeNil)
				So(r.Refilled, ShouldBeFalse)
				So(r.Court, ShouldEqual, 3)
			})
		})

		Convey("When stats are read", func() {
			stats := svc.GetStats()

			Convey("Then they count sessions and attendees", func() {
				So(stats["sessions"], ShouldEqual, 1)
				So(stats["attendees"], ShouldEqual, 10)
				So(stats["players"], ShouldEqual, 10)
			})
		})
	})
}

func TestServiceIntegration_Backpressure(t *testing.T) {
	Convey("Given a service whose sessions queue a single command", t, func() {
		svc := service.New(service.WithCommandQueueSize(1))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		snap, err := svc.CreateSession(ctx)
		So(err, ShouldBeNil)

		Convey("When many callers read the session at once", func() {
			var wg sync.WaitGroup
			errs := make(chan error, 64)
			for i := 0; i < 64; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := svc.Snapshot(ctx, snap.SessionID)
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)

			Convey("Then every call either succeeds or is told to back off", func() {
				for err := range errs {
					if err != nil {
						So(errors.Is(err, service.ErrBackpressure), ShouldBeTrue)
					}
				}
			})
		})
	})
}
