// Package site serves the embedded courtside display.
//
// The display is a static page that polls the board endpoint of one
// session and redraws it, so a laptop next to the courts can show who
// plays next.
package site

import (
	"context"
	"errors"
	"net/http"
)

// Error constants
var (
	ErrServe = errors.New("courtside site serve failed")
)

// Register attaches the courtside display routes to mux. The page lives at
// / and reads the session id from the "session" query parameter.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.Handle("GET /", http.FileServer(FS()))
}
