// Package quota tracks per-provider call counts over sliding minute, hour,
// and day windows. Unlike a token bucket, it keeps the exact timestamps so
// the dashboard can report remaining calls and the next reset per window.
package quota

import (
	"sync"
	"time"
)

// Limits configures the maximum calls per trailing window. Zero means the
// window is not enforced.
type Limits struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
	PerDay    int `json:"per_day"`
}

// Status is a point-in-time view of one provider's quota state.
type Status struct {
	Provider        string    `json:"provider"`
	CanCall         bool      `json:"can_call"`
	RemainingMinute int       `json:"remaining_minute"`
	RemainingHour   int       `json:"remaining_hour"`
	RemainingDay    int       `json:"remaining_day"`
	UsedDay         int       `json:"used_day"`
	LimitDay        int       `json:"limit_day"`
	NextResetMinute time.Time `json:"next_reset_minute,omitzero"`
	NextResetHour   time.Time `json:"next_reset_hour,omitzero"`
	NextResetDay    time.Time `json:"next_reset_day,omitzero"`
}

// Tracker records call timestamps per provider and answers whether another
// call is allowed right now. All methods are safe for concurrent use; the
// check-and-record pair is exposed atomically as Reserve so two concurrent
// lookups cannot both observe a free slot and overshoot the limit.
//
// An unknown provider has no history and is fully available.
type Tracker struct {
	mu     sync.Mutex
	limits map[string]Limits
	calls  map[string][]time.Time

	// Now is the clock; overridable in tests.
	Now func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		limits: make(map[string]Limits),
		calls:  make(map[string][]time.Time),
		Now:    time.Now,
	}
}

// SetLimits configures the windows for a provider.
func (t *Tracker) SetLimits(provider string, l Limits) {
	t.mu.Lock()
	t.limits[provider] = l
	t.mu.Unlock()
}

// CanCall reports whether a call right now would stay strictly below every
// configured window limit. The most restrictive window governs.
func (t *Tracker) CanCall(provider string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canCallLocked(provider, t.Now())
}

// RecordCall counts a call against every window. Callers record immediately
// before dispatch so a crash mid-call still counts against quota.
func (t *Tracker) RecordCall(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordLocked(provider, t.Now())
}

// Reserve atomically checks and records one call. It returns false, without
// recording, when any window is at its limit.
func (t *Tracker) Reserve(provider string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.Now()
	if !t.canCallLocked(provider, now) {
		return false
	}
	t.recordLocked(provider, now)
	return true
}

// Status reports remaining calls and the earliest instant each window frees
// a slot. A zero reset time means the window has no tracked calls.
func (t *Tracker) Status(provider string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.Now()
	t.pruneLocked(provider, now)
	l := t.limits[provider]
	calls := t.calls[provider]

	st := Status{
		Provider: provider,
		CanCall:  t.canCallLocked(provider, now),
		LimitDay: l.PerDay,
	}
	st.RemainingMinute, st.NextResetMinute = windowState(calls, now, time.Minute, l.PerMinute)
	st.RemainingHour, st.NextResetHour = windowState(calls, now, time.Hour, l.PerHour)
	st.RemainingDay, st.NextResetDay = windowState(calls, now, 24*time.Hour, l.PerDay)
	st.UsedDay = countWithin(calls, now, 24*time.Hour)
	return st
}

func (t *Tracker) canCallLocked(provider string, now time.Time) bool {
	t.pruneLocked(provider, now)
	l := t.limits[provider]
	calls := t.calls[provider]
	if l.PerMinute > 0 && countWithin(calls, now, time.Minute) >= l.PerMinute {
		return false
	}
	if l.PerHour > 0 && countWithin(calls, now, time.Hour) >= l.PerHour {
		return false
	}
	if l.PerDay > 0 && countWithin(calls, now, 24*time.Hour) >= l.PerDay {
		return false
	}
	return true
}

func (t *Tracker) recordLocked(provider string, now time.Time) {
	t.calls[provider] = append(t.calls[provider], now)
}

// pruneLocked drops timestamps older than the longest window. Timestamps are
// appended in order, so the slice stays sorted.
func (t *Tracker) pruneLocked(provider string, now time.Time) {
	calls := t.calls[provider]
	cutoff := now.Add(-24 * time.Hour)
	i := 0
	for i < len(calls) && !calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		t.calls[provider] = append([]time.Time(nil), calls[i:]...)
	}
}

func countWithin(calls []time.Time, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	n := 0
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].After(cutoff) {
			n++
			continue
		}
		break
	}
	return n
}

// windowState returns calls remaining in the window (-1 when unlimited) and
// the instant the oldest in-window call ages out.
func windowState(calls []time.Time, now time.Time, window time.Duration, limit int) (int, time.Time) {
	in := countWithin(calls, now, window)
	var reset time.Time
	if in > 0 {
		oldest := calls[len(calls)-in]
		reset = oldest.Add(window)
	}
	if limit <= 0 {
		return -1, reset
	}
	rem := limit - in
	if rem < 0 {
		rem = 0
	}
	return rem, reset
}
