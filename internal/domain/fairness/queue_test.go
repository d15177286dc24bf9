package fairness_test

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/okian/rally/internal/domain/fairness"
	. "github.com/smartystreets/goconvey/convey"
)

func newQueue(seed int64, games map[string]int) *fairness.Queue {
	return fairness.New(rand.New(rand.NewSource(seed)), fairness.GamesFunc(func(id string) int { return games[id] }))
}

func TestQueue_EnqueueRemove(t *testing.T) {
	Convey("Given an empty queue", t, func() {
		q := newQueue(1, nil)

		Convey("When enqueueing ids", func() {
			q.Enqueue("P3")
			q.Enqueue("P1")
			q.Enqueue("P2")
			q.Enqueue("P1")

			Convey("Then they keep arrival order without duplicates", func() {
				So(q.IDs(), ShouldResemble, []string{"P3", "P1", "P2"})
				So(q.Len(), ShouldEqual, 3)
				So(q.Contains("P1"), ShouldBeTrue)
			})

			Convey("And removing one keeps the others in order", func() {
				So(q.Remove("P1"), ShouldBeTrue)
				So(q.Remove("P1"), ShouldBeFalse)
				So(q.IDs(), ShouldResemble, []string{"P3", "P2"})
				So(q.Contains("P1"), ShouldBeFalse)
			})

			Convey("And IDs returns a copy", func() {
				ids := q.IDs()
				ids[0] = "X"
				So(q.IDs()[0], ShouldEqual, "P3")
			})

			Convey("And Reset replaces the contents", func() {
				q.Reset([]string{"A", "B"})
				So(q.IDs(), ShouldResemble, []string{"A", "B"})
				So(q.Contains("P3"), ShouldBeFalse)
			})
		})
	})
}

func TestQueue_PickNext(t *testing.T) {
	Convey("Given a queue of four attendees", t, func() {
		games := map[string]int{"P1": 1, "P2": 0, "P3": 2, "P4": 0}
		q := newQueue(7, games)
		for _, id := range []string{"P1", "P2", "P3", "P4"} {
			q.Enqueue(id)
		}

		Convey("When picking more than are waiting", func() {
			picked, err := q.PickNext(5)

			Convey("Then it fails with ErrInsufficient and changes nothing", func() {
				So(errors.Is(err, fairness.ErrInsufficient), ShouldBeTrue)
				So(picked, ShouldBeNil)
				So(q.IDs(), ShouldResemble, []string{"P1", "P2", "P3", "P4"})
			})
		})

		Convey("When picking a non-positive count", func() {
			_, err := q.PickNext(0)
			So(errors.Is(err, fairness.ErrInvalidCount), ShouldBeTrue)
		})

		Convey("When picking two", func() {
			picked, err := q.PickNext(2)

			Convey("Then the two zero-game attendees are chosen", func() {
				So(err, ShouldBeNil)
				So(picked, ShouldHaveLength, 2)
				So(picked, ShouldContain, "P2")
				So(picked, ShouldContain, "P4")
			})

			Convey("And the remaining order is preserved", func() {
				So(q.IDs(), ShouldResemble, []string{"P1", "P3"})
			})
		})
	})

	Convey("Given an insufficient pick", t, func() {
		rng := rand.New(rand.NewSource(3))
		q := fairness.New(rng, fairness.GamesFunc(func(string) int { return 0 }))
		q.Enqueue("A")
		_, err := q.PickNext(2)
		So(err, ShouldNotBeNil)

		Convey("Then no PRNG state was consumed", func() {
			fresh := rand.New(rand.NewSource(3))
			So(rng.Float64(), ShouldEqual, fresh.Float64())
		})
	})
}

func TestQueue_FairnessProperty(t *testing.T) {
	Convey("Given many random waiting pools", t, func() {
		src := rand.New(rand.NewSource(2024))
		violations := 0

		for trial := 0; trial < 200; trial++ {
			games := map[string]int{}
			q := newQueue(int64(trial), games)
			size := 4 + src.Intn(12)
			for i := 0; i < size; i++ {
				id := fmt.Sprintf("P%02d", i)
				games[id] = src.Intn(4)
				q.Enqueue(id)
			}
			n := 1 + src.Intn(size)
			picked, err := q.PickNext(n)
			if err != nil {
				violations++
				continue
			}

			maxPicked := -1
			for _, id := range picked {
				maxPicked = max(maxPicked, games[id])
			}
			for _, id := range q.IDs() {
				if games[id] < maxPicked {
					violations++
				}
			}
		}

		Convey("Then no picked attendee has strictly more games than one left waiting", func() {
			So(violations, ShouldEqual, 0)
		})
	})
}

func TestQueue_Determinism(t *testing.T) {
	Convey("Given two queues with the same seed and contents", t, func() {
		build := func() *fairness.Queue {
			q := newQueue(42, map[string]int{})
			for i := 0; i < 10; i++ {
				q.Enqueue(fmt.Sprintf("P%d", i))
			}
			return q
		}
		a, b := build(), build()

		Convey("Then successive picks are identical", func() {
			for i := 0; i < 3; i++ {
				pa, errA := a.PickNext(3)
				pb, errB := b.PickNext(3)
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(pa, ShouldResemble, pb)
			}
			So(a.IDs(), ShouldResemble, b.IDs())
		})
	})
}
