package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config holds the tracker's tuning knobs. Zero values fall back to the
// documented defaults.
type Config struct {
	PollInterval            time.Duration // default 30s
	DebounceWindow          time.Duration // default 5s
	SweepInterval           time.Duration // default 1h
	HashPrefixBytes         int64         // default 512 KiB
	OutageMissingFraction   float64       // default 0.5
	DeleteConfirmationPolls int           // default 2
	RetryAttempts           int           // default 3
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = 5 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Hour
	}
	if c.HashPrefixBytes <= 0 {
		c.HashPrefixBytes = DefaultHashPrefixBytes
	}
	if c.OutageMissingFraction <= 0 {
		c.OutageMissingFraction = 0.5
	}
	if c.DeleteConfirmationPolls <= 0 {
		c.DeleteConfirmationPolls = 2
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	return c
}

// Summary counts the mutations applied during a processing window.
type Summary struct {
	Created  int
	Modified int
	Moved    int
	Renamed  int
	Deleted  int
	Restored int
}

func (s *Summary) count(o *Outcome) {
	if o == nil {
		return
	}
	switch o.Event {
	case EventCreated:
		s.Created++
	case EventModified:
		s.Modified++
	case EventMoved:
		s.Moved++
	case EventRenamed:
		s.Renamed++
	case EventDeleted:
		s.Deleted++
	case EventRestored:
		s.Restored++
	}
}

// Total returns the number of mutations counted.
func (s *Summary) Total() int {
	return s.Created + s.Modified + s.Moved + s.Renamed + s.Deleted + s.Restored
}

// work is one unit handed to the single consumer: a settled event or a
// prepared sweep batch.
type work struct {
	ev    *SettledEvent
	sweep *sweepBatch
}

// Tracker wires the scanner, debouncer, reconciler and sweep together and
// owns the single consumer goroutine through which every catalog mutation
// flows. Exactly one Tracker may run against a given catalog at a time.
type Tracker struct {
	cfg      Config
	catalog  Catalog
	source   TreeSource
	observer Observer // nil means the polling scanner
	logger   Logger
	clock    Clock
	idgen    IDGenerator

	ids     *IdentityComputer
	scanner *Scanner
	sweep   *Sweep
	rec     *Reconciler

	workCh  chan work
	notifs  chan Notification
	outages chan time.Time

	mu      sync.Mutex
	requeue []SettledEvent
}

// New creates a Tracker. observer may be nil, in which case the polling
// Scanner drives observation; a non-nil observer (e.g. the fsnotify-based
// one) replaces polling while the debouncer, reconciler and sweep stay
// unchanged.
func New(catalog Catalog, source TreeSource, observer Observer, cfg Config, logger Logger, clock Clock, idgen IDGenerator) *Tracker {
	cfg = cfg.withDefaults()
	ids := NewIdentityComputer(source, cfg.HashPrefixBytes, cfg.RetryAttempts, logger)
	return &Tracker{
		cfg:      cfg,
		catalog:  catalog,
		source:   source,
		observer: observer,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
		ids:      ids,
		scanner:  NewScanner(source, cfg.OutageMissingFraction, cfg.DeleteConfirmationPolls, cfg.RetryAttempts, clock, logger),
		sweep:    NewSweep(source, catalog, ids, cfg.RetryAttempts, clock, logger),
		rec:      NewReconciler(catalog, clock, idgen, logger),
		workCh:   make(chan work, 256),
		notifs:   make(chan Notification, 256),
		outages:  make(chan time.Time, 16),
	}
}

// Notifications returns the mutation notification stream. Sends are
// non-blocking: if no consumer keeps up, notifications are dropped rather
// than stalling catalog mutation.
func (t *Tracker) Notifications() <-chan Notification { return t.notifs }

// Outages returns the suspected-outage signal stream.
func (t *Tracker) Outages() <-chan time.Time { return t.outages }

// Run starts the full pipeline and blocks until ctx is cancelled or a
// fatal storage error occurs.
func (t *Tracker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deb := NewDebouncer(t.cfg.DebounceWindow, t.ids, func(ev SettledEvent) {
		select {
		case t.workCh <- work{ev: &ev}:
		case <-ctx.Done():
		}
	}, t.logger)
	defer deb.Close()

	errc := make(chan error, 1)
	var wg sync.WaitGroup

	// Single serialized consumer: the only goroutine that mutates the
	// catalog.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := t.consume(ctx); err != nil {
			errc <- err
			cancel()
		}
	}()

	// Observation: polling scanner by default, push observer if configured.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if t.observer != nil {
			if err := t.observer.Run(ctx, deb.Observe); err != nil && ctx.Err() == nil {
				errc <- fmt.Errorf("observer: %w", err)
				cancel()
			}
			return
		}
		t.pollLoop(ctx, deb)
	}()

	// Periodic full reconciliation sweep.
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.sweepLoop(ctx)
	}()

	t.logger.Info("tracker started",
		"poll_interval", t.cfg.PollInterval,
		"debounce", t.cfg.DebounceWindow,
		"sweep_interval", t.cfg.SweepInterval)

	<-ctx.Done()
	wg.Wait()

	select {
	case err := <-errc:
		return err
	default:
		return nil
	}
}

// pollLoop drives the scanner on its tick and drains the retry buffer each
// cycle.
func (t *Tracker) pollLoop(ctx context.Context, deb *Debouncer) {
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res := t.scanner.Poll(ctx)
			if res.SuspectedOutage {
				t.signalOutage()
			}
			for _, obs := range res.Observations {
				deb.Observe(obs)
			}
			t.drainRequeue(ctx)
		}
	}
}

// sweepLoop prepares sweep batches off the consumer goroutine; only the
// prepared batch (no further I/O) is handed to the consumer.
func (t *Tracker) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, err := t.sweep.Prepare(ctx)
			if err != nil {
				t.logger.Warn("sweep skipped", "error", err)
				continue
			}
			select {
			case t.workCh <- work{sweep: batch}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// consume applies work items one at a time. Non-fatal storage errors
// re-queue the event for the next cycle; fatal ones propagate and stop the
// tracker.
func (t *Tracker) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case w := <-t.workCh:
			if err := t.handle(w); err != nil {
				if IsFatalStorage(err) {
					t.logger.Error("fatal storage error", "error", err)
					return err
				}
				t.logger.Warn("storage error, event re-queued", "error", err)
			}
		}
	}
}

func (t *Tracker) handle(w work) error {
	if w.ev != nil {
		outcome, err := t.rec.Apply(*w.ev)
		if err != nil {
			if !IsFatalStorage(err) {
				t.pushRequeue(*w.ev)
			}
			return err
		}
		t.notify(outcome)
		return nil
	}

	var sum Summary
	if err := w.sweep.applyAll(t, &sum); err != nil {
		return err
	}
	if sum.Total() > 0 {
		t.logger.Info("sweep applied corrections",
			"created", sum.Created, "modified", sum.Modified,
			"moved", sum.Moved, "renamed", sum.Renamed,
			"deleted", sum.Deleted, "restored", sum.Restored)
	}
	return nil
}

// applyAll runs a prepared batch through the reconciler, emitting
// notifications per applied mutation. It must only be called from the
// consumer goroutine. Every listed entry is classified first, so a moved
// record's new path is already in place before the absence pass; absences
// explained by a move in the same sweep are therefore never deleted.
func (b *sweepBatch) applyAll(t *Tracker, sum *Summary) error {
	now := t.clock.Now()

	for _, item := range b.items {
		if item.identity == nil {
			if err := t.catalog.TouchVerified(item.recordID, now); err != nil {
				return err
			}
			continue
		}
		outcome, err := t.rec.Apply(SettledEvent{Kind: ObsAppeared, Path: item.entry.Path, Identity: item.identity})
		if err != nil {
			return err
		}
		sum.count(outcome)
		t.notify(outcome)
	}

	active, err := t.catalog.ListActive()
	if err != nil {
		return fmt.Errorf("sweep listing active records: %w", err)
	}
	for _, r := range active {
		if b.listed[r.NASPath] {
			continue
		}
		outcome, err := t.rec.Apply(SettledEvent{Kind: ObsDisappeared, Path: r.NASPath})
		if err != nil {
			return err
		}
		sum.count(outcome)
		t.notify(outcome)
	}

	return nil
}

// RunOnce performs a single poll cycle synchronously: list, diff, settle
// immediately (a single diff yields at most one observation per path) and
// classify. Used by the CLI once command.
func (t *Tracker) RunOnce(ctx context.Context) (Summary, error) {
	var sum Summary

	res := t.scanner.Poll(ctx)
	if res.Skipped {
		return sum, fmt.Errorf("poll skipped: %w", ErrTimeout)
	}
	if res.SuspectedOutage {
		t.signalOutage()
	}

	for _, obs := range res.Observations {
		ev := SettledEvent{Kind: obs.Kind, Path: obs.Path}
		if obs.Kind != ObsDisappeared {
			id, err := t.ids.Compute(ctx, obs.Path)
			if err != nil {
				t.logger.Warn("identity computation failed, observation skipped",
					"path", obs.Path, "error", err)
				continue
			}
			ev.Identity = id
		}
		outcome, err := t.rec.Apply(ev)
		if err != nil {
			return sum, err
		}
		sum.count(outcome)
		t.notify(outcome)
	}

	t.drainRequeueSync(ctx, &sum)
	return sum, nil
}

// RunSweep performs one full reconciliation sweep synchronously. Used by
// the CLI sweep command and by tests.
func (t *Tracker) RunSweep(ctx context.Context) (Summary, error) {
	var sum Summary
	batch, err := t.sweep.Prepare(ctx)
	if err != nil {
		return sum, err
	}
	if err := batch.applyAll(t, &sum); err != nil {
		return sum, err
	}
	return sum, nil
}

func (t *Tracker) notify(o *Outcome) {
	if o == nil || o.Event == "" || o.Record == nil {
		return
	}
	n := Notification{FileID: o.Record.ID, EventType: o.Event, Timestamp: t.clock.Now()}
	select {
	case t.notifs <- n:
	default:
		t.logger.Debug("notification dropped, no consumer keeping up", "file_id", n.FileID)
	}
}

func (t *Tracker) signalOutage() {
	now := t.clock.Now()
	select {
	case t.outages <- now:
	default:
	}
}

func (t *Tracker) pushRequeue(ev SettledEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requeue = append(t.requeue, ev)
}

// drainRequeue re-submits previously failed events through the consumer.
func (t *Tracker) drainRequeue(ctx context.Context) {
	t.mu.Lock()
	pending := t.requeue
	t.requeue = nil
	t.mu.Unlock()

	for i := range pending {
		select {
		case t.workCh <- work{ev: &pending[i]}:
		case <-ctx.Done():
			return
		}
	}
}

// drainRequeueSync retries failed events inline for the run-once path.
func (t *Tracker) drainRequeueSync(ctx context.Context, sum *Summary) {
	t.mu.Lock()
	pending := t.requeue
	t.requeue = nil
	t.mu.Unlock()

	for _, ev := range pending {
		outcome, err := t.rec.Apply(ev)
		if err != nil {
			if !IsFatalStorage(err) {
				t.pushRequeue(ev)
			}
			t.logger.Warn("re-queued event failed again", "path", ev.Path, "error", err)
			continue
		}
		sum.count(outcome)
		t.notify(outcome)
	}
}
