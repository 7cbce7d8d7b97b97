package cli

import (
	stdcontext "context"
	"sync"
	"time"

	"github.com/Paintersrp/kr/internal/api"
	"github.com/Paintersrp/kr/internal/cliutil"
	"github.com/Paintersrp/kr/internal/config"
	"github.com/Paintersrp/kr/internal/engine"
	"github.com/Paintersrp/kr/internal/metrics"
)

// statusTracker maintains the supervisor status observed via engine events
// and mirrors it into the Prometheus metrics. It is read concurrently by the
// HTTP API, so the command and messages it keeps are redacted.
type statusTracker struct {
	mu      sync.RWMutex
	started bool
	report  api.StatusReport
	now     func() time.Time
}

func newStatusTracker(run config.Run, runID string) *statusTracker {
	metrics.SetWindow(0, run.Policy.MaxRetries)
	return &statusTracker{
		report: api.StatusReport{
			RunID:       runID,
			Command:     cliutil.RedactSecrets(run.Command),
			WindowLimit: run.Policy.MaxRetries,
			WindowLabel: run.Policy.Label,
		},
		now: time.Now,
	}
}

func (t *statusTracker) Write(evt engine.Event) {
	t.Apply(evt)
}

// Apply updates the tracker based on the supplied event.
func (t *statusTracker) Apply(evt engine.Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rep := &t.report
	if evt.Timestamp.After(rep.LastEvent) {
		rep.LastEvent = evt.Timestamp
	}
	if evt.PID > 0 {
		rep.PID = evt.PID
	}
	if evt.Type == engine.EventTypeLog {
		return
	}

	rep.State = evt.Type
	rep.Message = cliutil.RedactSecrets(evt.Message)
	if evt.Attempt > 0 {
		rep.Attempt = evt.Attempt
	}
	if evt.Status != nil {
		rep.LastExit = evt.Status.String()
	}
	if evt.WindowLimit > 0 {
		rep.WindowCount = evt.WindowCount
		rep.WindowLimit = evt.WindowLimit
	}

	switch evt.Type {
	case engine.EventTypeStarting:
		if !t.started {
			t.started = true
			rep.StartedAt = evt.Timestamp
		}
		rep.Running = false
		rep.PID = 0
	case engine.EventTypeStarted:
		rep.Running = true
		metrics.SetChildRunning(true)
	case engine.EventTypeCrashed:
		rep.Running = false
		rep.Crashes++
		metrics.SetChildRunning(false)
		metrics.IncrementCrashes()
		metrics.SetWindow(evt.WindowCount, evt.WindowLimit)
	case engine.EventTypeRestarting:
		rep.Restarts++
		metrics.IncrementRestarts()
	case engine.EventTypeExited, engine.EventTypeFailed, engine.EventTypeError:
		rep.Running = false
		metrics.SetChildRunning(false)
	}
}

// Status implements api.StatusProvider.
func (t *statusTracker) Status(stdcontext.Context) (api.StatusReport, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.started {
		return api.StatusReport{}, api.ErrNotStarted
	}
	report := t.report
	report.GeneratedAt = t.now()
	return report, nil
}
