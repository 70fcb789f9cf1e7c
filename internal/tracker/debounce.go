package tracker

import (
	"context"
	"sync"
	"time"
)

// Debouncer coalesces bursts of raw observations per path into a single
// settled event. Each path keeps an independent timer that resets on every
// new observation for that path; when it expires the latest observation
// kind wins and a fresh identity is computed before the event is emitted.
type Debouncer struct {
	window time.Duration
	ids    *IdentityComputer
	emit   func(SettledEvent)
	logger Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]*pendingObs
	wg      sync.WaitGroup
	closed  bool
}

type pendingObs struct {
	obs   Observation
	timer *time.Timer
}

// NewDebouncer creates a Debouncer that calls emit for each settled event.
// Identity computation happens on the expiring timer's goroutine, never
// while holding the debouncer lock.
func NewDebouncer(window time.Duration, ids *IdentityComputer, emit func(SettledEvent), logger Logger) *Debouncer {
	if window <= 0 {
		window = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Debouncer{
		window:  window,
		ids:     ids,
		emit:    emit,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]*pendingObs),
	}
}

// Observe records a raw observation. Any in-flight timer for the same path
// is superseded: its pending observation is replaced and the window
// restarts.
func (d *Debouncer) Observe(obs Observation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	// Supersede any in-flight timer. A timer that already fired but has not
	// yet acquired the lock will find no pending entry and emit nothing.
	if p, ok := d.pending[obs.Path]; ok {
		if p.timer.Stop() {
			d.wg.Done()
		}
		delete(d.pending, obs.Path)
	}

	p := &pendingObs{obs: obs}
	path := obs.Path
	d.wg.Add(1)
	p.timer = time.AfterFunc(d.window, func() {
		defer d.wg.Done()
		d.settle(path)
	})
	d.pending[path] = p
}

// settle removes the pending observation for path and emits its settled
// event.
func (d *Debouncer) settle(path string) {
	d.mu.Lock()
	p, ok := d.pending[path]
	if ok {
		delete(d.pending, path)
	}
	closed := d.closed
	d.mu.Unlock()
	if !ok || closed {
		return
	}
	d.dispatch(p.obs)
}

// dispatch computes the identity (except for disappearances) and emits the
// settled event. Identity failures drop the event: the catalog keeps its
// previous state and a later poll or sweep will retry.
func (d *Debouncer) dispatch(obs Observation) {
	ev := SettledEvent{Kind: obs.Kind, Path: obs.Path}
	if obs.Kind != ObsDisappeared {
		id, err := d.ids.Compute(d.ctx, obs.Path)
		if err != nil {
			d.logger.Warn("identity computation failed, observation dropped",
				"path", obs.Path, "kind", obs.Kind.String(), "error", err)
			return
		}
		ev.Identity = id
	}
	d.emit(ev)
}

// Flush settles every pending observation immediately, bypassing the
// timers. Used by the run-once mode.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	var flushed []Observation
	for path, p := range d.pending {
		if p.timer.Stop() {
			d.wg.Done()
		}
		flushed = append(flushed, p.obs)
		delete(d.pending, path)
	}
	d.mu.Unlock()

	for _, obs := range flushed {
		d.dispatch(obs)
	}
}

// PendingCount returns the number of paths with an unexpired timer.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close cancels all pending timers and waits for in-flight settlements to
// finish. No events are emitted after Close returns.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	for path, p := range d.pending {
		if p.timer.Stop() {
			d.wg.Done()
		}
		delete(d.pending, path)
	}
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}
