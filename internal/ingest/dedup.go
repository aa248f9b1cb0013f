package ingest

import (
	"sync"
	"time"
)

// dedupWindow suppresses re-delivered eventIds inside a sliding window.
// The sources enforce no idempotency key, so this is an opt-in policy knob.
type dedupWindow struct {
	window time.Duration

	mu      sync.Mutex
	seen    map[string]time.Time
	lastGC  time.Time
}

func newDedupWindow(window time.Duration) *dedupWindow {
	return &dedupWindow{
		window: window,
		seen:   map[string]time.Time{},
		lastGC: time.Now(),
	}
}

// observe records the id and reports whether it was already seen inside the
// window.
func (d *dedupWindow) observe(id string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Opportunistic prune, at most once per window.
	if now.Sub(d.lastGC) >= d.window {
		for k, t := range d.seen {
			if now.Sub(t) >= d.window {
				delete(d.seen, k)
			}
		}
		d.lastGC = now
	}

	if t, ok := d.seen[id]; ok && now.Sub(t) < d.window {
		return true
	}
	d.seen[id] = now
	return false
}
