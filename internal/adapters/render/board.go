// Package render draws a session snapshot as an ASCII court board.
package render

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/okian/rally/internal/domain/model"
)

const (
	defaultWidth  = 33
	defaultPerRow = 2
	gap           = "   "
	ellipsis      = "…"
)

// Option applies a configuration option to the Renderer.
type Option func(*Renderer)

// WithWidth sets the inner width of a court, between the borders.
func WithWidth(w int) Option {
	return func(r *Renderer) {
		if w >= 5 {
			r.width = w
		}
	}
}

// WithPerRow sets how many courts are laid side by side.
func WithPerRow(n int) Option {
	return func(r *Renderer) {
		if n > 0 {
			r.perRow = n
		}
	}
}

// Renderer draws courts and waiting lines.
type Renderer struct {
	width  int
	perRow int
}

// New creates a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{width: defaultWidth, perRow: defaultPerRow}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// fit pads or truncates s to exactly w runes.
func fit(s string, w int) string {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	if n > w {
		return string([]rune(s)[:w-1]) + ellipsis
	}
	return s + strings.Repeat(" ", w-n)
}

// Court returns the lines of one court. number is shown as is.
func (r *Renderer) Court(number int, m model.Match) []string {
	w := r.width
	left := (w - 1) / 2
	right := w - 1 - left
	blank := "│" + fit("", w) + "│"
	line := func(fill, cross string) string {
		return "│" + strings.Repeat(fill, left) + cross + strings.Repeat(fill, right) + "│"
	}

	return []string{
		"┌" + strings.Repeat("─", w) + "┐",
		"│" + fit(fmt.Sprintf("Court %d (%s)", number, m.Format), w) + "│",
		"├" + strings.Repeat("─", w) + "┤",
		blank,
		"│" + fit(strings.Join(m.Team1, " & "), w) + "│",
		blank,
		line("─", "┼"),
		line(" ", "│"),
		line("=", "┼"),
		line(" ", "│"),
		line("─", "┼"),
		blank,
		"│" + fit(strings.Join(m.Team2, " & "), w) + "│",
		blank,
		"└" + strings.Repeat("─", w) + "┘",
	}
}

// Board writes every court of snap, perRow to a row, followed by the
// waiting and paused lines.
func (r *Renderer) Board(out io.Writer, snap model.Snapshot) error {
	var b strings.Builder

	if len(snap.Courts) == 0 {
		b.WriteString("(No matches allocated)\n")
	} else {
		b.WriteString("=== Courts ===\n")
		blocks := make([][]string, len(snap.Courts))
		for i, c := range snap.Courts {
			blocks[i] = r.Court(c.Index+1, c.Match)
		}
		for start := 0; start < len(blocks); start += r.perRow {
			row := blocks[start:min(start+r.perRow, len(blocks))]
			for li := range row[0] {
				parts := make([]string, len(row))
				for j, blk := range row {
					parts[j] = blk[li]
				}
				b.WriteString(strings.Join(parts, gap))
				b.WriteByte('\n')
			}
			b.WriteByte('\n')
		}
	}

	fmt.Fprintf(&b, "Waiting: %s\n", entries(snap.Waiting))
	if len(snap.Paused) > 0 {
		fmt.Fprintf(&b, "Paused: %s\n", entries(snap.Paused))
	}

	_, err := io.WriteString(out, b.String())
	return err
}

func entries(es []model.WaitingEntry) string {
	if len(es) == 0 {
		return "(none)"
	}
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = fmt.Sprintf("%s(%d)", e.ID, e.GamesPlayed)
	}
	return strings.Join(parts, ", ")
}
