package pipeline

import "time"

// DefaultCooldown is the minimum time between two notifications for one identity.
const DefaultCooldown = 120 * time.Second

// CooldownGate suppresses repeat events for an identity within a window.
// Entries are never evicted; only their effect expires.
type CooldownGate struct {
	window time.Duration
	last   map[string]time.Time
}

// NewCooldownGate creates a gate with the given window.
func NewCooldownGate(window time.Duration) *CooldownGate {
	if window <= 0 {
		window = DefaultCooldown
	}
	return &CooldownGate{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// Allow reports whether an event for label at now may be forwarded, and if so
// records now as the label's last notification time. Suppressed events leave
// the gate unchanged.
func (g *CooldownGate) Allow(label string, now time.Time) bool {
	if last, ok := g.last[label]; ok && now.Sub(last) < g.window {
		return false
	}
	g.last[label] = now
	return true
}

// LastNotified returns when label was last allowed through.
func (g *CooldownGate) LastNotified(label string) (time.Time, bool) {
	t, ok := g.last[label]
	return t, ok
}

// Len returns the number of identities ever allowed through.
func (g *CooldownGate) Len() int { return len(g.last) }
