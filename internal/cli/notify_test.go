package cli

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Paintersrp/kr/internal/engine"
)

type recordingNotifier struct {
	states []string
	sent   bool
	err    error
}

func (r *recordingNotifier) notify(state string) (bool, error) {
	r.states = append(r.states, state)
	return r.sent, r.err
}

func TestSystemdNotifierLifecycle(t *testing.T) {
	rec := &recordingNotifier{sent: true}
	n := newSystemdNotifier(rec.notify)

	n.Write(engine.Event{Type: engine.EventTypeStarting, Message: "Running worker"})
	n.Write(engine.Event{Type: engine.EventTypeStarted, Message: "Started worker (pid 10)"})
	n.Write(engine.Event{Type: engine.EventTypeLog, Message: "ignored"})
	n.Write(engine.Event{Type: engine.EventTypeRestarting, Message: "Restarting..."})
	n.Write(engine.Event{Type: engine.EventTypeStarting, Message: "Running worker"})
	n.Write(engine.Event{Type: engine.EventTypeStarted, Message: "Started worker (pid 11)"})
	n.Write(engine.Event{Type: engine.EventTypeFailed, Message: "stop restarting"})

	want := []string{
		"STATUS=Running worker",
		"READY=1\nSTATUS=Started worker (pid 10)",
		"STATUS=Restarting...",
		"STATUS=Running worker",
		"STATUS=Started worker (pid 11)",
		"STATUS=stop restarting\nSTOPPING=1",
	}
	if !reflect.DeepEqual(rec.states, want) {
		t.Fatalf("unexpected notifications %q", rec.states)
	}
}

func TestSystemdNotifierDisablesWithoutSocket(t *testing.T) {
	rec := &recordingNotifier{sent: false}
	n := newSystemdNotifier(rec.notify)

	n.Write(engine.Event{Type: engine.EventTypeStarting, Message: "Running worker"})
	n.Write(engine.Event{Type: engine.EventTypeExited, Message: "Exit code: exit status 0"})

	if len(rec.states) != 1 {
		t.Fatalf("expected a single notification attempt, got %d", len(rec.states))
	}
}

func TestSystemdNotifierKeepsTryingAfterError(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("write: broken pipe")}
	n := newSystemdNotifier(rec.notify)

	n.Write(engine.Event{Type: engine.EventTypeStarting, Message: "Running worker"})
	n.Write(engine.Event{Type: engine.EventTypeExited, Message: "Exit code: exit status 0"})

	if len(rec.states) != 2 {
		t.Fatalf("expected notifications to continue after an error, got %d", len(rec.states))
	}
}
