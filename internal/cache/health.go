package cache

import (
	"sync"
	"time"
)

const (
	defaultFailureThreshold = 3
	defaultCooldown         = 30 * time.Second
)

// health tracks consecutive backend failures. Once the threshold is
// reached the store sits out a cooldown window, after which a single
// successful probe restores it.
type health struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	downUntil time.Time
}

func newHealth(threshold int, cooldown time.Duration) *health {
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &health{threshold: threshold, cooldown: cooldown}
}

// state reports whether the gate is open and whether a recovery probe
// is due before trusting the backend again.
func (h *health) state() (open bool, probe bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.downUntil.IsZero():
		return true, false
	case time.Now().Before(h.downUntil):
		return false, false
	default:
		return true, true
	}
}

func (h *health) failed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	if !h.downUntil.IsZero() && now.After(h.downUntil) {
		// Failed recovery probe: start another cooldown.
		h.downUntil = now.Add(h.cooldown)
		h.failures = 0
		return
	}
	h.failures++
	if h.failures >= h.threshold {
		h.downUntil = now.Add(h.cooldown)
		h.failures = 0
	}
}

func (h *health) succeeded() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = 0
	h.downUntil = time.Time{}
}
