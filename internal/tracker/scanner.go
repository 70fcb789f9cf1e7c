package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// PollResult summarizes one scanner cycle.
type PollResult struct {
	Observations    []Observation
	SuspectedOutage bool
	Skipped         bool // listing failed; previous snapshot retained
}

// Scanner periodically lists the watched tree and diffs it against the
// previous snapshot. It guards against transient share outages being
// mistaken for mass deletion: anomalously shrunken listings suppress all
// disappearances for the cycle, and individual disappearances are only
// reported after a configurable number of consecutive clean polls.
type Scanner struct {
	source         TreeSource
	clock          Clock
	logger         Logger
	attempts       int
	outageFraction float64
	confirmPolls   int

	prev    *Snapshot
	missing map[string]int // path -> consecutive clean polls absent
}

// NewScanner creates a Scanner. outageFraction <= 0 falls back to 0.5,
// confirmPolls <= 0 to 2, attempts <= 0 to 3.
func NewScanner(source TreeSource, outageFraction float64, confirmPolls, attempts int, clock Clock, logger Logger) *Scanner {
	if outageFraction <= 0 {
		outageFraction = 0.5
	}
	if confirmPolls <= 0 {
		confirmPolls = 2
	}
	if attempts <= 0 {
		attempts = 3
	}
	return &Scanner{
		source:         source,
		clock:          clock,
		logger:         logger,
		attempts:       attempts,
		outageFraction: outageFraction,
		confirmPolls:   confirmPolls,
		missing:        make(map[string]int),
	}
}

// Poll performs one scan cycle. On listing failure the previous snapshot is
// retained and the cycle is skipped so a transient outage cannot look like
// mass deletion.
func (s *Scanner) Poll(ctx context.Context) PollResult {
	listing, err := s.list(ctx)
	if err != nil {
		s.logger.Warn("listing failed, cycle skipped", "error", err)
		return PollResult{Skipped: true}
	}

	next := NewSnapshot(listing, s.clock.Now())

	if s.suspectedOutage(next) {
		s.logger.Warn("suspected outage: listing anomalously small, deferring deletions",
			"previous", s.prev.Len(), "current", next.Len())
		obs := Diff(s.prev, next)
		kept := obs[:0]
		for _, o := range obs {
			if o.Kind != ObsDisappeared {
				kept = append(kept, o)
			}
		}
		// The previous snapshot stays in place and missing streaks do not
		// advance: the cycle is not clean.
		return PollResult{Observations: kept, SuspectedOutage: true}
	}

	var out []Observation
	fresh := make(map[string]bool)
	for _, o := range Diff(s.prev, next) {
		if o.Kind == ObsDisappeared {
			fresh[o.Path] = true
			continue
		}
		out = append(out, o)
	}

	// Advance streaks for paths missing in earlier cycles; a reappearance
	// clears the streak.
	for path := range s.missing {
		if next.Contains(path) {
			delete(s.missing, path)
			continue
		}
		s.missing[path]++
	}
	for path := range fresh {
		s.missing[path] = 1
	}

	// Emit disappearances that survived the full confirmation window.
	for path, polls := range s.missing {
		if polls >= s.confirmPolls {
			out = append(out, Observation{Kind: ObsDisappeared, Path: path})
			delete(s.missing, path)
		}
	}

	s.prev = next
	return PollResult{Observations: out}
}

// suspectedOutage reports whether next is anomalously smaller than the
// previous snapshot.
func (s *Scanner) suspectedOutage(next *Snapshot) bool {
	if s.prev == nil || s.prev.Len() == 0 {
		return false
	}
	shrunk := s.prev.Len() - next.Len()
	if shrunk <= 0 {
		return false
	}
	return float64(shrunk)/float64(s.prev.Len()) > s.outageFraction
}

// list obtains a fresh listing with bounded exponential backoff.
func (s *Scanner) list(ctx context.Context) ([]TreeEntry, error) {
	var listing []TreeEntry
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	op := func() error {
		var err error
		listing, err = s.source.List(ctx)
		if err != nil && errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.attempts-1)), ctx)); err != nil {
		return nil, classifyIOError(fmt.Errorf("listing tree: %w", err))
	}
	return listing, nil
}
