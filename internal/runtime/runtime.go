package runtime

import (
	"context"
	"fmt"
	"time"
)

const (
	LogSourceStdout = "stdout"
	LogSourceStderr = "stderr"
	LogSourceSystem = "system"
)

// StartSpec describes the child a runtime should launch.
type StartSpec struct {
	// Command is the raw command line. Runtimes split it on whitespace; no
	// shell quoting is interpreted.
	Command string
	// Capture routes the child's stdout and stderr through Handle.Logs
	// instead of letting the child inherit the supervisor's streams.
	Capture bool
}

// LogEntry is a single line of captured child output.
type LogEntry struct {
	Timestamp time.Time
	Message   string
	Source    string
	Level     string
}

// ExitStatus describes how a child terminated.
type ExitStatus struct {
	// Code is the exit code, or -1 when the child was terminated by a signal.
	Code int
	// Description is the platform rendering of the status, e.g.
	// "exit status 1" or "signal: killed".
	Description string
}

// Success reports whether the child exited normally with code zero.
func (s ExitStatus) Success() bool {
	return s.Code == 0
}

func (s ExitStatus) String() string {
	if s.Description != "" {
		return s.Description
	}
	return fmt.Sprintf("exit status %d", s.Code)
}

// Handle is a live child process. It is owned by a single caller between
// Start and the completion of Wait.
type Handle interface {
	// PID returns the operating system process id of the child.
	PID() int

	// Logs returns captured output lines. The channel is closed once both
	// output streams reach EOF. A nil channel means output is not captured.
	// Callers must drain the channel before calling Wait.
	Logs() <-chan LogEntry

	// Wait blocks until the child exits and reaps it. An unsuccessful exit is
	// reported through ExitStatus; the error is reserved for failures to
	// observe the exit at all.
	Wait() (ExitStatus, error)
}

// Runtime launches children.
type Runtime interface {
	// Start launches the child described by spec. A returned error means
	// the child never ran.
	Start(ctx context.Context, spec StartSpec) (Handle, error)
}
