// Package pipeline turns per-frame identity guesses into confirmed,
// rate-limited "student entered" events.
package pipeline

import "time"

// DefaultStableWindow is how long an identity must be held before it is confirmed.
const DefaultStableWindow = 2 * time.Second

// Confirmed is emitted once per continuous hold of an identity.
type Confirmed struct {
	Label string
	Since time.Time // start of the hold
	At    time.Time // frame time the hold reached the window
}

// Debouncer is a two-state machine: idle, or holding one identity since a
// timestamp. It is not safe for concurrent use; the frame loop owns it.
type Debouncer struct {
	window  time.Duration
	holding bool
	label   string
	since   time.Time
}

// NewDebouncer creates a Debouncer with the given stability window.
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultStableWindow
	}
	return &Debouncer{window: window}
}

// Window returns the stability window.
func (d *Debouncer) Window() time.Duration { return d.window }

// Observe feeds one frame's identity (empty for none) at time now.
//
// An empty label drops any hold. A new label starts a fresh hold. The same
// label held for at least the window yields a Confirmed event and returns the
// debouncer to idle, so a face that stays in view must be re-held from scratch
// before it can fire again.
func (d *Debouncer) Observe(label string, now time.Time) (Confirmed, bool) {
	if label == "" {
		d.Reset()
		return Confirmed{}, false
	}

	if !d.holding || d.label != label {
		d.holding = true
		d.label = label
		d.since = now
		return Confirmed{}, false
	}

	if now.Sub(d.since) < d.window {
		return Confirmed{}, false
	}

	ev := Confirmed{Label: label, Since: d.since, At: now}
	d.Reset()
	return ev, true
}

// Reset returns the debouncer to idle.
func (d *Debouncer) Reset() {
	d.holding = false
	d.label = ""
	d.since = time.Time{}
}

// Holding returns the tracked identity and how long it has been held at now.
// ok is false when idle.
func (d *Debouncer) Holding(now time.Time) (label string, held time.Duration, ok bool) {
	if !d.holding {
		return "", 0, false
	}
	return d.label, now.Sub(d.since), true
}
