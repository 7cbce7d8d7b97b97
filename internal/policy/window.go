package policy

import "time"

// Window is a sliding-window crash limiter. Every recorded crash counts
// against the limit until its own expiry instant passes; expired entries are
// only dropped when Prune is called.
//
// A Window is not safe for concurrent use. It is owned by the supervisor loop.
type Window struct {
	limit    int
	span     time.Duration
	expiries []time.Time
}

// NewWindow constructs a window allowing fewer than limit crashes within span.
// A limit below one never allows a restart.
func NewWindow(limit int, span time.Duration) *Window {
	if limit < 0 {
		limit = 0
	}
	return &Window{limit: limit, span: span}
}

// Record appends the expiry of a crash that happened at now.
func (w *Window) Record(now time.Time) {
	w.expiries = append(w.expiries, now.Add(w.span))
}

// Prune drops every entry whose expiry is at or before now. Entries sharing
// the same expiry are handled independently.
func (w *Window) Prune(now time.Time) {
	kept := w.expiries[:0]
	for _, exp := range w.expiries {
		if exp.After(now) {
			kept = append(kept, exp)
		}
	}
	for i := len(kept); i < len(w.expiries); i++ {
		w.expiries[i] = time.Time{}
	}
	w.expiries = kept
}

// Allowed reports whether the number of recorded entries is below the limit.
func (w *Window) Allowed() bool {
	return len(w.expiries) < w.limit
}

func (w *Window) Count() int {
	return len(w.expiries)
}

func (w *Window) Limit() int {
	return w.limit
}

func (w *Window) Span() time.Duration {
	return w.span
}

// Admit handles a crash that happened at now: expired entries are pruned,
// the remaining entries decide whether a restart is allowed, and the crash
// itself is recorded. The crash being admitted is therefore not counted
// against its own restart, so a limit of N tolerates N crashes per window and
// the next one stops supervision.
func (w *Window) Admit(now time.Time) bool {
	w.Prune(now)
	allowed := w.Allowed()
	w.Record(now)
	return allowed
}

// Expiries returns a copy of the recorded expiry instants in insertion order.
func (w *Window) Expiries() []time.Time {
	if len(w.expiries) == 0 {
		return nil
	}
	return append([]time.Time(nil), w.expiries...)
}
