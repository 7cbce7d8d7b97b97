package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Paintersrp/kr/internal/policy"
	"github.com/Paintersrp/kr/internal/runtime"
)

// DefaultCrashLogLines is the number of trailing output lines kept per crash.
const DefaultCrashLogLines = 5000

var (
	ErrSpawnFailed = errors.New("process failed on startup")
	ErrWaitFailed  = errors.New("failed to wait for process")
)

// State is the terminal state of a supervisor run.
type State string

const (
	StateSucceeded     State = "succeeded"
	StateLimitExceeded State = "limit_exceeded"
)

// Config describes a supervisor run.
type Config struct {
	Command  string
	Settings policy.Settings
	// Capture routes child output through the supervisor as log events.
	Capture bool
	// CrashLogLines bounds the output retained for each crash. Zero keeps
	// none.
	CrashLogLines int
	RunID         string
}

// Crash is a crash that counted against the restart limit.
type Crash struct {
	Attempt   int
	At        time.Time
	ExpiresAt time.Time
	Status    runtime.ExitStatus
	Output    []string
}

// Result describes how a run ended without an error.
type Result struct {
	State    State
	Attempts int
	Status   runtime.ExitStatus
	Crashes  []Crash
}

// Supervisor runs a single child, restarting it after crashes until it exits
// cleanly or the crash window refuses another restart.
//
// The loop is strictly sequential: spawn, drain output, wait, evaluate and
// optionally sleep. The crash window is owned by the loop and never shared.
type Supervisor struct {
	cfg     Config
	runtime runtime.Runtime
	events  chan<- Event
	runID   string

	window  *policy.Window
	crashes []Crash

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewSupervisor builds a supervisor. Events are delivered on events with
// blocking sends; a nil channel disables them.
func NewSupervisor(cfg Config, rt runtime.Runtime, events chan<- Event) *Supervisor {
	if cfg.CrashLogLines < 0 {
		cfg.CrashLogLines = 0
	}
	return &Supervisor{
		cfg:     cfg,
		runtime: rt,
		events:  events,
		runID:   cfg.RunID,
		window:  cfg.Settings.NewWindow(),
		now:     time.Now,
		sleep:   sleepWithContext,
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run supervises the command until a terminal state is reached. Spawn and
// wait failures are returned as errors wrapping ErrSpawnFailed and
// ErrWaitFailed; they never count as crashes.
func (s *Supervisor) Run(ctx context.Context) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	attempt := 0
	for {
		attempt++
		reason := ReasonInitialStart
		if attempt > 1 {
			reason = ReasonRestart
		}
		s.emit(Event{
			Type:    EventTypeStarting,
			Message: fmt.Sprintf("Running %s", s.cfg.Command),
			Attempt: attempt,
			Reason:  reason,
		})

		handle, err := s.runtime.Start(ctx, runtime.StartSpec{Command: s.cfg.Command, Capture: s.cfg.Capture})
		if err != nil {
			s.emit(Event{
				Type:    EventTypeError,
				Message: fmt.Sprintf("Process failed on startup: %v", err),
				Level:   "error",
				Err:     err,
				Attempt: attempt,
				Reason:  ReasonStartFailure,
			})
			return Result{Attempts: attempt}, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
		}
		s.emit(Event{
			Type:    EventTypeStarted,
			Message: fmt.Sprintf("Started %s (pid %d)", s.cfg.Command, handle.PID()),
			Attempt: attempt,
			Reason:  reason,
			PID:     handle.PID(),
		})

		output := s.streamLogs(handle, attempt)
		status, err := handle.Wait()
		if err != nil {
			s.emit(Event{
				Type:    EventTypeError,
				Message: fmt.Sprintf("Failed to wait for process: %v", err),
				Level:   "error",
				Err:     err,
				Attempt: attempt,
				Reason:  ReasonWaitFailure,
				PID:     handle.PID(),
			})
			return Result{Attempts: attempt}, fmt.Errorf("%w: %w", ErrWaitFailed, err)
		}

		if status.Success() {
			s.emit(Event{
				Type:    EventTypeExited,
				Message: fmt.Sprintf("Exit code: %s", status),
				Attempt: attempt,
				Reason:  ReasonCleanExit,
				PID:     handle.PID(),
				Status:  &status,
			})
			return Result{State: StateSucceeded, Attempts: attempt, Status: status}, nil
		}

		now := s.now()
		allowed := s.window.Admit(now)
		s.crashes = append(s.crashes, Crash{
			Attempt:   attempt,
			At:        now,
			ExpiresAt: now.Add(s.window.Span()),
			Status:    status,
			Output:    output.Lines(),
		})
		s.pruneCrashes(now)

		s.emit(Event{
			Type:        EventTypeCrashed,
			Message:     fmt.Sprintf("[CRASH] exit code: %s", status),
			Level:       "error",
			Attempt:     attempt,
			Reason:      ReasonInstanceCrash,
			PID:         handle.PID(),
			Status:      &status,
			WindowCount: s.window.Count(),
			WindowLimit: s.window.Limit(),
		})

		if !allowed {
			crashes := append([]Crash(nil), s.crashes...)
			s.emit(Event{
				Type: EventTypeFailed,
				Message: fmt.Sprintf("The process has crashed more than %d times in the past %s, stop restarting",
					s.cfg.Settings.MaxRetries, s.cfg.Settings.Label),
				Level:       "error",
				Attempt:     attempt,
				Reason:      ReasonRetriesExhaust,
				Status:      &status,
				WindowCount: s.window.Count(),
				WindowLimit: s.window.Limit(),
				Crashes:     crashes,
			})
			return Result{State: StateLimitExceeded, Attempts: attempt, Status: status, Crashes: crashes}, nil
		}

		s.emit(Event{
			Type:        EventTypeRestarting,
			Message:     "Restarting...",
			Attempt:     attempt,
			Reason:      ReasonRestart,
			WindowCount: s.window.Count(),
			WindowLimit: s.window.Limit(),
		})
		if err := s.sleep(ctx, s.cfg.Settings.Delay); err != nil {
			return Result{Attempts: attempt, Status: status, Crashes: append([]Crash(nil), s.crashes...)}, err
		}
	}
}

// streamLogs forwards captured output until the child closes both streams,
// keeping the tail for the crash report.
func (s *Supervisor) streamLogs(handle runtime.Handle, attempt int) *tail {
	buf := newTail(s.cfg.CrashLogLines)
	logs := handle.Logs()
	if logs == nil {
		return buf
	}
	for entry := range logs {
		buf.Add(entry.Source, entry.Message)
		ts := entry.Timestamp
		if ts.IsZero() {
			ts = s.now()
		}
		level := entry.Level
		if level == "" {
			level = "info"
			if entry.Source == runtime.LogSourceStderr {
				level = "warn"
			}
		}
		s.emit(Event{
			Timestamp: ts,
			Type:      EventTypeLog,
			Message:   entry.Message,
			Level:     level,
			Source:    entry.Source,
			Attempt:   attempt,
			PID:       handle.PID(),
		})
	}
	return buf
}

// pruneCrashes keeps the crash records in step with the window.
func (s *Supervisor) pruneCrashes(now time.Time) {
	kept := s.crashes[:0]
	for _, c := range s.crashes {
		if c.ExpiresAt.After(now) {
			kept = append(kept, c)
		}
	}
	for i := len(kept); i < len(s.crashes); i++ {
		s.crashes[i] = Crash{}
	}
	s.crashes = kept
}
