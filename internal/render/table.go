package render

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/hamed0406/servicemonitor/internal/domain"
	"github.com/hamed0406/servicemonitor/internal/probe"
)

const (
	ClearScreen = "\x1b[2J\x1b[H"
	TimeLayout  = "2006-01-02 15:04:05"
	glyph       = "●"
)

var widths = [4]int{12, 18, 20, 20}

// Table renders cycle results as a bordered fixed-width table.
type Table struct {
	Out   io.Writer
	Clear bool // clear the screen before each render
	Color bool
	Loc   *time.Location

	now func() time.Time
}

// NewTable clears and colors only when f is a terminal.
func NewTable(f *os.File) *Table {
	tty := isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	return &Table{
		Out:   f,
		Clear: tty,
		Color: tty && !color.NoColor,
		Loc:   time.Local,
		now:   time.Now,
	}
}

func (t *Table) indicator(s domain.Status) string {
	var c *color.Color
	switch s {
	case domain.StatusActive:
		c = color.New(color.FgGreen)
	case domain.StatusInactive:
		c = color.New(color.FgRed)
	default:
		c = color.New(color.FgYellow)
	}
	if t.Color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprint(glyph)
}

// fit pads or truncates s to exactly w columns.
func fit(s string, w int) string {
	n := utf8.RuneCountInString(s)
	if n > w {
		r := []rune(s)
		return string(r[:w-1]) + "…"
	}
	return s + strings.Repeat(" ", w-n)
}

func border(b *strings.Builder) {
	b.WriteString("+")
	for _, w := range widths {
		b.WriteString(strings.Repeat("-", w+2))
		b.WriteString("+")
	}
	b.WriteString("\n")
}

func row(b *strings.Builder, cells [4]string) {
	b.WriteString("|")
	for _, c := range cells {
		b.WriteString(" ")
		b.WriteString(c)
		b.WriteString(" |")
	}
	b.WriteString("\n")
}

// resultCell pads on the plain text so escape codes don't shift columns.
func (t *Table) resultCell(s domain.Status) string {
	text := s.String()
	pad := widths[2] - utf8.RuneCountInString(text) - 2
	return text + " " + t.indicator(s) + strings.Repeat(" ", max(pad, 0))
}

func (t *Table) Render(r domain.CycleResult, next time.Time) error {
	loc := t.Loc
	if loc == nil {
		loc = time.Local
	}

	var b strings.Builder
	if t.Clear {
		b.WriteString(ClearScreen)
	}

	border(&b)
	row(&b, [4]string{
		fit("Server", widths[0]),
		fit("App", widths[1]),
		fit("Result", widths[2]),
		fit("Last Checked", widths[3]),
	})
	border(&b)
	for _, e := range r.Entries {
		row(&b, [4]string{
			fit(probe.FormatServerPrint(e.Endpoint.Address), widths[0]),
			fit(e.Endpoint.Label, widths[1]),
			t.resultCell(e.Status),
			fit(e.CheckedAt.In(loc).Format(TimeLayout), widths[3]),
		})
	}
	border(&b)

	if !next.IsZero() {
		now := time.Now
		if t.now != nil {
			now = t.now
		}
		fmt.Fprintf(&b, "Next check: %s (%s)\n",
			next.In(loc).Format(TimeLayout),
			humanize.RelTime(next, now(), "ago", "from now"),
		)
	}

	if _, err := io.WriteString(t.Out, b.String()); err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	return nil
}
