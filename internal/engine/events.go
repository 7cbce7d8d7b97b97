package engine

import (
	"time"

	"github.com/Paintersrp/kr/internal/runtime"
)

// EventType captures the lifecycle notifications emitted by the supervisor.
type EventType string

const (
	EventTypeStarting   EventType = "starting"
	EventTypeStarted    EventType = "started"
	EventTypeExited     EventType = "exited"
	EventTypeCrashed    EventType = "crashed"
	EventTypeRestarting EventType = "restarting"
	EventTypeFailed     EventType = "failed"
	EventTypeError      EventType = "error"
	EventTypeLog        EventType = "log"
)

// Terminal reports whether no further events follow an event of this type.
func (t EventType) Terminal() bool {
	switch t {
	case EventTypeExited, EventTypeFailed, EventTypeError:
		return true
	}
	return false
}

// Event represents a single lifecycle or log notification.
type Event struct {
	Timestamp time.Time
	RunID     string
	Type      EventType
	Message   string
	Level     string
	Source    string
	Err       error
	Attempt   int
	Reason    string
	PID       int

	// Status is set on exited and crashed events.
	Status *runtime.ExitStatus

	// WindowCount and WindowLimit describe the crash window after a crash
	// has been evaluated.
	WindowCount int
	WindowLimit int

	// Crashes holds the crashes still inside the window when supervision
	// stops. Only set on failed events.
	Crashes []Crash
}

const (
	ReasonInitialStart   = "initial_start"
	ReasonRestart        = "restart"
	ReasonStartFailure   = "start_failure"
	ReasonWaitFailure    = "wait_failure"
	ReasonCleanExit      = "clean_exit"
	ReasonInstanceCrash  = "instance_crash"
	ReasonRetriesExhaust = "retries_exhausted"
)

func (s *Supervisor) emit(evt Event) {
	if s.events == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.now()
	}
	if evt.Level == "" {
		evt.Level = "info"
	}
	if evt.Source == "" {
		evt.Source = runtime.LogSourceSystem
	}
	evt.RunID = s.runID
	s.events <- evt
}
