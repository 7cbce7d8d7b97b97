package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/Paintersrp/kr/internal/engine"
	"github.com/Paintersrp/kr/internal/runtime"
)

const (
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

// consoleReporter prints child output and lifecycle lines. Error events are
// left to the caller, which prints the returned error once.
type consoleReporter struct {
	out    io.Writer
	errOut io.Writer
	color  bool
}

func newConsoleReporter(out, errOut io.Writer) *consoleReporter {
	return &consoleReporter{out: out, errOut: errOut, color: isTerminal(out)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func (r *consoleReporter) Write(evt engine.Event) {
	switch evt.Type {
	case engine.EventTypeLog:
		if evt.Source == runtime.LogSourceStderr {
			fmt.Fprintln(r.errOut, evt.Message)
			return
		}
		fmt.Fprintln(r.out, evt.Message)
	case engine.EventTypeCrashed:
		fmt.Fprintln(r.out, r.paint(ansiRed, evt.Message))
	case engine.EventTypeFailed:
		fmt.Fprintln(r.out, evt.Message)
		writeCrashReport(r.errOut, evt.Crashes)
	case engine.EventTypeStarting, engine.EventTypeExited, engine.EventTypeRestarting:
		fmt.Fprintln(r.out, evt.Message)
	}
}

func (r *consoleReporter) paint(color, s string) string {
	if !r.color {
		return s
	}
	return color + s + ansiReset
}

// writeCrashReport summarises the crashes that exhausted the restart limit,
// followed by the output each crash left behind.
func writeCrashReport(w io.Writer, crashes []engine.Crash) {
	if len(crashes) == 0 {
		return
	}
	fmt.Fprintf(w, "See below the past %d crashes:\n", len(crashes))

	table := tablewriter.NewWriter(w)
	table.Header("#", "Attempt", "Crashed At", "Exit Status", "Counts Until")
	for i, c := range crashes {
		_ = table.Append([]string{
			strconv.Itoa(i + 1),
			strconv.Itoa(c.Attempt),
			c.At.Format(time.RFC3339),
			c.Status.String(),
			c.ExpiresAt.Format(time.RFC3339),
		})
	}
	_ = table.Render()

	for _, c := range crashes {
		if len(c.Output) == 0 {
			continue
		}
		fmt.Fprintf(w, "Crash @ %s:\n", c.At.Format(time.RFC3339))
		for _, line := range c.Output {
			fmt.Fprintln(w, line)
		}
	}
}
