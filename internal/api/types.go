package api

import (
	stdcontext "context"
	"errors"
	"time"

	"github.com/Paintersrp/kr/internal/engine"
)

var ErrNotStarted = errors.New("supervisor has not started")

// StatusReport describes the supervised child as observed through events.
type StatusReport struct {
	RunID       string           `json:"run_id"`
	Command     string           `json:"command"`
	State       engine.EventType `json:"state"`
	Running     bool             `json:"running"`
	PID         int              `json:"pid,omitempty"`
	Attempt     int              `json:"attempt"`
	Restarts    int              `json:"restarts"`
	Crashes     int              `json:"crashes"`
	WindowCount int              `json:"window_count"`
	WindowLimit int              `json:"window_limit"`
	WindowLabel string           `json:"window_label"`
	LastExit    string           `json:"last_exit,omitempty"`
	Message     string           `json:"message"`
	StartedAt   time.Time        `json:"started_at"`
	LastEvent   time.Time        `json:"last_event"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// StatusProvider exposes the current supervisor status to API handlers.
type StatusProvider interface {
	Status(ctx stdcontext.Context) (StatusReport, error)
}
