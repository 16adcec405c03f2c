package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/cevalogistics/launcher"
)

// consoleView renders launcher snapshots as one line each.
type consoleView struct {
	out   io.Writer
	ok    *color.Color
	bad   *color.Color
	busy  *color.Color
	muted *color.Color
}

func newConsoleView(out io.Writer, noColor bool) *consoleView {
	v := &consoleView{
		out:   out,
		ok:    color.New(color.FgGreen, color.Bold),
		bad:   color.New(color.FgRed, color.Bold),
		busy:  color.New(color.FgYellow),
		muted: color.New(color.Faint),
	}
	if noColor {
		for _, c := range []*color.Color{v.ok, v.bad, v.busy, v.muted} {
			c.DisableColor()
		}
	}
	return v
}

func (v *consoleView) render(s launcher.Snapshot) {
	c := v.busy
	switch s.State {
	case "ready":
		c = v.ok
	case "failed":
		c = v.bad
	}
	var b strings.Builder
	b.WriteString(c.Sprintf("%-17s", s.State))
	b.WriteString(" ")
	b.WriteString(s.Status)
	if s.Robots > 0 || s.Cameras > 0 {
		b.WriteString(v.muted.Sprintf("  [robots=%d cameras=%d]", s.Robots, s.Cameras))
	}
	if s.Err != "" && s.Err != s.Status {
		b.WriteString(v.bad.Sprintf("  (%s)", s.Err))
	}
	_, _ = fmt.Fprintln(v.out, b.String())
}

// follow renders every snapshot from ch until it closes.
func (v *consoleView) follow(ch <-chan launcher.Snapshot) {
	for s := range ch {
		v.render(s)
	}
}
