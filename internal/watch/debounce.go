package watch

import (
	"sync"
	"time"
)

// debouncer coalesces a burst of activity into one callback, fired only
// once the input goes quiet for window — the "await write finish"
// stabilisation window used by both the memory watcher and the session
// delta tracker. Unlike a per-path debouncer, this one carries no event
// payload: callers rearm it on every signal and the
// fired callback re-derives what changed itself (the sync engine's own
// hash diff), so there is nothing worth coalescing beyond "did anything
// happen".
type debouncer struct {
	window time.Duration
	fire   func()

	mu    sync.Mutex
	timer *time.Timer
}

func newDebouncer(window time.Duration, fire func()) *debouncer {
	return &debouncer{window: window, fire: fire}
}

// arm (re)schedules fire to run after window, cancelling any pending
// timer. Calling it repeatedly during a burst keeps pushing fire later.
func (d *debouncer) arm() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}
