package ratelimit

import (
	"time"
)

// Limits bounds outbound calls to one provider.
// A zero field disables that window.
type Limits struct {
	PerSecond int
	PerMinute int
}

// DefaultLimits are deliberately stricter than typical published provider quotas
// to leave room for clock skew and retries.
func DefaultLimits() Limits {
	return Limits{PerSecond: 3, PerMinute: 30}
}

// Window holds the dispatch timestamps of one provider for the per-second and
// per-minute windows. Entries are pruned lazily on each check.
// A Window is not safe for concurrent use; each is owned by one queue worker.
type Window struct {
	limits Limits
	second []time.Time
	minute []time.Time
}

// NewWindow creates an empty window.
func NewWindow(limits Limits) *Window {
	return &Window{limits: limits}
}

// Wait returns how long to sleep before a call may be dispatched at now.
// Zero means a call may go out immediately.
func (w *Window) Wait(now time.Time) time.Duration {
	w.prune(now)

	var wait time.Duration
	if w.limits.PerSecond > 0 && len(w.second) >= w.limits.PerSecond {
		if d := w.second[0].Add(time.Second).Sub(now); d > wait {
			wait = d
		}
	}
	if w.limits.PerMinute > 0 && len(w.minute) >= w.limits.PerMinute {
		if d := w.minute[0].Add(time.Minute).Sub(now); d > wait {
			wait = d
		}
	}
	return wait
}

// Record registers a dispatch at now.
func (w *Window) Record(now time.Time) {
	if w.limits.PerSecond > 0 {
		w.second = append(w.second, now)
	}
	if w.limits.PerMinute > 0 {
		w.minute = append(w.minute, now)
	}
}

// Counts returns the number of dispatches still inside each window at now.
func (w *Window) Counts(now time.Time) (perSecond, perMinute int) {
	w.prune(now)
	return len(w.second), len(w.minute)
}

func (w *Window) prune(now time.Time) {
	w.second = pruneBefore(w.second, now.Add(-time.Second))
	w.minute = pruneBefore(w.minute, now.Add(-time.Minute))
}

// pruneBefore drops timestamps at or before cutoff. Timestamps are appended in
// order, so the expired ones form a prefix.
func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}
