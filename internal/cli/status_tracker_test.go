package cli

import (
	stdcontext "context"
	"errors"
	"testing"
	"time"

	"github.com/Paintersrp/kr/internal/api"
	"github.com/Paintersrp/kr/internal/config"
	"github.com/Paintersrp/kr/internal/engine"
	"github.com/Paintersrp/kr/internal/policy"
	"github.com/Paintersrp/kr/internal/runtime"
)

func newTestTracker(t *testing.T) *statusTracker {
	t.Helper()
	settings, err := policy.Resolve(3, 0, 0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	tracker := newStatusTracker(config.Run{Command: "worker", Policy: settings}, "run-42")
	tracker.now = func() time.Time { return time.Unix(1000, 0) }
	return tracker
}

func TestStatusTrackerNotStarted(t *testing.T) {
	tracker := newTestTracker(t)
	if _, err := tracker.Status(stdcontext.Background()); !errors.Is(err, api.ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestStatusTrackerFollowsCrashLoop(t *testing.T) {
	tracker := newTestTracker(t)
	base := time.Unix(500, 0)
	crashed := runtime.ExitStatus{Code: 1, Description: "exit status 1"}

	tracker.Apply(engine.Event{Timestamp: base, Type: engine.EventTypeStarting, Attempt: 1, Message: "Running worker"})
	tracker.Apply(engine.Event{Timestamp: base, Type: engine.EventTypeStarted, Attempt: 1, PID: 77, Message: "Started worker (pid 77)"})
	tracker.Apply(engine.Event{Timestamp: base.Add(time.Second), Type: engine.EventTypeLog, PID: 77, Message: "hi"})

	report, err := tracker.Status(stdcontext.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !report.Running || report.PID != 77 || report.State != engine.EventTypeStarted {
		t.Fatalf("unexpected running report %+v", report)
	}

	tracker.Apply(engine.Event{Timestamp: base.Add(2 * time.Second), Type: engine.EventTypeCrashed, Attempt: 1, Status: &crashed, WindowCount: 1, WindowLimit: 3})
	tracker.Apply(engine.Event{Timestamp: base.Add(3 * time.Second), Type: engine.EventTypeRestarting, Attempt: 1, WindowCount: 1, WindowLimit: 3})
	tracker.Apply(engine.Event{Timestamp: base.Add(4 * time.Second), Type: engine.EventTypeStarting, Attempt: 2})

	report, err = tracker.Status(stdcontext.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if report.Attempt != 2 || report.Crashes != 1 || report.Restarts != 1 {
		t.Fatalf("unexpected counters %+v", report)
	}
	if report.WindowCount != 1 || report.WindowLimit != 3 || report.WindowLabel != "minute" {
		t.Fatalf("unexpected window %+v", report)
	}
	if report.LastExit != "exit status 1" {
		t.Fatalf("unexpected last exit %q", report.LastExit)
	}
	if !report.StartedAt.Equal(base) {
		t.Fatalf("expected started at first start, got %v", report.StartedAt)
	}
	if !report.LastEvent.Equal(base.Add(4 * time.Second)) {
		t.Fatalf("unexpected last event %v", report.LastEvent)
	}
	if report.RunID != "run-42" || report.Command != "worker" {
		t.Fatalf("unexpected identity %+v", report)
	}
	if !report.GeneratedAt.Equal(time.Unix(1000, 0)) {
		t.Fatalf("unexpected generated at %v", report.GeneratedAt)
	}
}

func TestStatusTrackerTerminalStates(t *testing.T) {
	for _, typ := range []engine.EventType{engine.EventTypeExited, engine.EventTypeFailed, engine.EventTypeError} {
		tracker := newTestTracker(t)
		tracker.Apply(engine.Event{Type: engine.EventTypeStarting, Attempt: 1})
		tracker.Apply(engine.Event{Type: typ, Attempt: 1, Message: "done"})
		report, err := tracker.Status(stdcontext.Background())
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if report.Running || report.State != typ || report.Message != "done" {
			t.Fatalf("%s: unexpected report %+v", typ, report)
		}
	}
}

func TestStatusTrackerRedactsCommand(t *testing.T) {
	run := config.Run{Command: "./worker --api-key=abc123", Policy: policy.Settings{MaxRetries: 4, Label: "minute"}}
	tracker := newStatusTracker(run, "run-1")
	tracker.Apply(engine.Event{Type: engine.EventTypeStarting, Attempt: 1, Message: "Running ./worker --api-key=abc123"})

	report, err := tracker.Status(stdcontext.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if report.Command != "./worker --api-key=[redacted]" {
		t.Fatalf("unexpected command %q", report.Command)
	}
	if report.Message != "Running ./worker --api-key=[redacted]" {
		t.Fatalf("unexpected message %q", report.Message)
	}
}

func TestStatusTrackerReportsPIDWithoutOutput(t *testing.T) {
	tracker := newTestTracker(t)
	tracker.Apply(engine.Event{Type: engine.EventTypeStarting, Attempt: 1, Message: "Running worker"})

	report, err := tracker.Status(stdcontext.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if report.Running || report.PID != 0 {
		t.Fatalf("expected no running child before it started, got %+v", report)
	}

	tracker.Apply(engine.Event{Type: engine.EventTypeStarted, Attempt: 1, PID: 4321, Message: "Started worker (pid 4321)"})
	report, err = tracker.Status(stdcontext.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !report.Running || report.PID != 4321 {
		t.Fatalf("expected running child with pid 4321, got %+v", report)
	}
}
