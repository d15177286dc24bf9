package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/rally/internal/adapters/http/api"
	service "github.com/okian/rally/internal/app"
	"github.com/okian/rally/internal/domain/session"
	"github.com/okian/rally/internal/domain/types"
	"github.com/okian/rally/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// failing answers every call with err.
type failing struct{ err error }

func (f failing) ListPlayers(context.Context) ([]types.Player, error) { return nil, f.err }
func (f failing) GetPlayer(context.Context, string) (types.Player, error) {
	return types.Player{}, f.err
}
func (f failing) RegisterPlayer(context.Context, string, string, string) (types.Player, error) {
	return types.Player{}, f.err
}
func (f failing) UpdatePlayer(context.Context, string, types.PlayerPatch) (types.Player, error) {
	return types.Player{}, f.err
}
func (f failing) DeletePlayer(context.Context, string) error { return f.err }
func (f failing) CreateSession(context.Context) (types.Snapshot, error) {
	return types.Snapshot{}, f.err
}
func (f failing) DeleteSession(context.Context, string) error { return f.err }
func (f failing) Snapshot(context.Context, string) (types.Snapshot, error) {
	return types.Snapshot{}, f.err
}
func (f failing) Board(context.Context, string) (string, error) { return "", f.err }
func (f failing) GamesPlayed(context.Context, string) ([]types.GamesRow, error) {
	return nil, f.err
}
func (f failing) StartSession(context.Context, string, string, int, *int64) (types.StartResult, error) {
	return types.StartResult{}, f.err
}
func (f failing) AddAttendee(context.Context, string, string, bool) (types.Snapshot, error) {
	return types.Snapshot{}, f.err
}
func (f failing) RemoveAttendee(context.Context, string, string) (types.Snapshot, error) {
	return types.Snapshot{}, f.err
}
func (f failing) PauseAttendee(context.Context, string, string) (types.Snapshot, error) {
	return types.Snapshot{}, f.err
}
func (f failing) UnpauseAttendee(context.Context, string, string) (types.Snapshot, error) {
	return types.Snapshot{}, f.err
}
func (f failing) CompleteCourt(context.Context, string, int, string) (types.CourtResult, error) {
	return types.CourtResult{}, f.err
}
func (f failing) RefillCourt(context.Context, string, int) (types.CourtResult, error) {
	return types.CourtResult{}, f.err
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps api.Dependencies, stats api.StatsProvider) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, stats).Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeAs[T any](w *httptest.ResponseRecorder) T {
	var v T
	So(json.Unmarshal(w.Body.Bytes(), &v), ShouldBeNil)
	return v
}

func TestServer_Register(t *testing.T) {
	Convey("Given a new API server", t, func() {
		mux := newMux(failing{}, &mockStatsProvider{stats: map[string]interface{}{"started": true}})

		Convey("Then the health endpoint serves metrics", func() {
			w := do(mux, "GET", "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("And the stats endpoint serves JSON", func() {
			w := do(mux, "GET", "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
			So(decodeAs[map[string]any](w)["started"], ShouldEqual, true)
		})

		Convey("And unknown routes are not found", func() {
			So(do(mux, "GET", "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("And wrong methods are refused", func() {
			So(do(mux, "PUT", "/sessions", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestServer_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: courts", session.ErrValidation), http.StatusBadRequest, "bad_request"},
		{session.ErrInvalidCourt, http.StatusBadRequest, "invalid_court"},
		{session.ErrNotFound, http.StatusNotFound, "not_found"},
		{service.ErrSessionNotFound, http.StatusNotFound, "not_found"},
		{session.ErrBlocked, http.StatusConflict, "blocked"},
		{session.ErrNotPaused, http.StatusConflict, "not_paused"},
		{session.ErrAlreadyAttending, http.StatusConflict, "already_attending"},
		{session.ErrAlreadyRunning, http.StatusConflict, "already_running"},
		{fmt.Errorf("%w: full", service.ErrBackpressure), http.StatusTooManyRequests, "backpressure"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}

	Convey("Given a server whose dependencies fail", t, func() {
		for _, c := range cases {
			mux := newMux(failing{err: c.err}, &mockStatsProvider{})

			Convey(fmt.Sprintf("When the failure is %q", c.err), func() {
				w := do(mux, "POST", "/sessions/s1/courts/1/complete", "")

				Convey("Then it maps to the expected status and code", func() {
					So(w.Code, ShouldEqual, c.status)
					body := decodeAs[map[string]string](w)
					So(body["code"], ShouldEqual, c.code)
					So(body["message"], ShouldContainSubstring, "api.complete_court")
				})
			})
		}
	})

	Convey("Given malformed requests", t, func() {
		mux := newMux(failing{}, &mockStatsProvider{})

		Convey("Then a non-numeric court is a bad request", func() {
			So(do(mux, "POST", "/sessions/s1/courts/two/complete", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("And invalid JSON is a bad request", func() {
			So(do(mux, "POST", "/sessions/s1/start", "{").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("And unknown fields are a bad request", func() {
			So(do(mux, "POST", "/players", `{"nickname":"x"}`).Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestServer_EndToEnd(t *testing.T) {
	Convey("Given the API over a started service", t, func() {
		svc := service.New()
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		mux := newMux(svc, svc)

		var ids []string
		for i := 0; i < 5; i++ {
			w := do(mux, "POST", "/players", fmt.Sprintf(`{"first_name":"Pat%d","surname":"Lee","rating":"b+"}`, i))
			So(w.Code, ShouldEqual, http.StatusCreated)
			p := decodeAs[types.Player](w)
			So(p.Rating, ShouldEqual, "B+")
			ids = append(ids, p.ID)
		}

		w := do(mux, "POST", "/sessions", "")
		So(w.Code, ShouldEqual, http.StatusCreated)
		sid := decodeAs[types.Snapshot](w).SessionID
		base := "/sessions/" + sid

		for _, id := range ids {
			So(do(mux, "POST", base+"/attendees", `{"player_id":"`+id+`"}`).Code, ShouldEqual, http.StatusCreated)
		}

		Convey("When the session starts with one singles court", func() {
			w := do(mux, "POST", base+"/start", `{"format":"singles","courts":1,"seed":3}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			res := decodeAs[types.StartResult](w)

			Convey("Then two players are on court one and three wait", func() {
				So(res.IdleCourts, ShouldBeEmpty)
				So(res.Snapshot.Courts, ShouldHaveLength, 1)
				So(res.Snapshot.Courts[0].Number, ShouldEqual, 1)
				So(res.Snapshot.Courts[0].Occupants, ShouldHaveLength, 2)
				So(res.Snapshot.Waiting, ShouldHaveLength, 3)
			})

			Convey("And completing with an idempotency key is replayed once", func() {
				req := httptest.NewRequest("POST", base+"/courts/1/complete", http.NoBody)
				req.Header.Set("Idempotency-Key", "k1")
				first := httptest.NewRecorder()
				mux.ServeHTTP(first, req)
				So(first.Code, ShouldEqual, http.StatusOK)
				So(decodeAs[types.CourtResult](first).Duplicate, ShouldBeFalse)

				again := do(mux, "POST", base+"/courts/1/complete", `{"request_id":"k1"}`)
				So(again.Code, ShouldEqual, http.StatusOK)
				So(decodeAs[types.CourtResult](again).Duplicate, ShouldBeTrue)
			})

			Convey("And removing a player on court conflicts", func() {
				on := res.Snapshot.Courts[0].Occupants[0]
				w := do(mux, "DELETE", base+"/attendees/"+on, "")
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decodeAs[map[string]string](w)["code"], ShouldEqual, "blocked")
			})

			Convey("And a waiting player can be paused and unpaused", func() {
				waiting := res.Snapshot.Waiting[0].ID
				w := do(mux, "POST", base+"/attendees/"+waiting+"/pause", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decodeAs[types.Snapshot](w).Paused, ShouldHaveLength, 1)

				w = do(mux, "POST", base+"/attendees/"+waiting+"/unpause", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(do(mux, "POST", base+"/attendees/"+waiting+"/unpause", "").Code, ShouldEqual, http.StatusConflict)
			})

			Convey("And the board is served as text", func() {
				w := do(mux, "GET", base+"/board", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldEqual, "text/plain; charset=utf-8")
				So(w.Body.String(), ShouldContainSubstring, "Court 1 (singles)")
			})

			Convey("And the games table lists every attendee", func() {
				w := do(mux, "GET", base+"/games", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decodeAs[[]types.GamesRow](w), ShouldHaveLength, 5)
			})

			Convey("And an out of range court is rejected", func() {
				w := do(mux, "POST", base+"/courts/2/refill", "")
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeAs[map[string]string](w)["code"], ShouldEqual, "invalid_court")
			})
		})

		Convey("When a player is patched and then deleted", func() {
			w := do(mux, "PATCH", "/players/"+ids[0], `{"surname":"Long"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeAs[types.Player](w).Surname, ShouldEqual, "Long")

			So(do(mux, "DELETE", "/players/"+ids[0], "").Code, ShouldEqual, http.StatusNoContent)

			Convey("Then it is gone from the registry", func() {
				So(do(mux, "GET", "/players/"+ids[0], "").Code, ShouldEqual, http.StatusNotFound)
				So(decodeAs[[]types.Player](do(mux, "GET", "/players", "")), ShouldHaveLength, 4)
			})
		})

		Convey("When the session is deleted", func() {
			So(do(mux, "DELETE", base, "").Code, ShouldEqual, http.StatusNoContent)

			Convey("Then it is not found", func() {
				So(do(mux, "GET", base, "").Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}
