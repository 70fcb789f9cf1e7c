package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// sweepItem is one precomputed decision input for the consumer: either a
// verified skip (identity nil) or a full classification.
type sweepItem struct {
	entry    TreeEntry
	identity *FileIdentity
	recordID string // set for verified skips
}

// sweepBatch carries a fully prepared sweep to the consumer. All listing
// and hashing has already happened; applying the batch only touches the
// catalog.
type sweepBatch struct {
	items  []sweepItem
	listed map[string]bool
}

// Sweep re-derives correct catalog state from a fresh complete listing,
// independent of the incremental pipeline. It corrects any drift from
// missed or mis-debounced events and is idempotent: with no intervening
// filesystem change a second run applies zero mutations and appends zero
// history entries.
type Sweep struct {
	source   TreeSource
	catalog  Catalog
	ids      *IdentityComputer
	clock    Clock
	logger   Logger
	attempts int
}

// NewSweep creates a Sweep.
func NewSweep(source TreeSource, catalog Catalog, ids *IdentityComputer, attempts int, clock Clock, logger Logger) *Sweep {
	if attempts <= 0 {
		attempts = 3
	}
	return &Sweep{source: source, catalog: catalog, ids: ids, clock: clock, logger: logger, attempts: attempts}
}

// Prepare lists the tree and computes identities for every entry that
// needs classification. Entries whose active record already matches by
// path, size and mtime skip hashing and only get their verification
// timestamp bumped. Per-file identity failures skip that file; the record
// keeps its previous state.
func (s *Sweep) Prepare(ctx context.Context) (*sweepBatch, error) {
	listing, err := s.list(ctx)
	if err != nil {
		return nil, err
	}

	batch := &sweepBatch{listed: make(map[string]bool, len(listing))}
	for _, entry := range listing {
		batch.listed[entry.Path] = true

		rec, err := s.catalog.FindActiveByPath(entry.Path)
		if err != nil {
			return nil, fmt.Errorf("sweep lookup %s: %w", entry.Path, err)
		}
		if rec != nil && rec.Size == entry.Size && rec.MTime.Equal(entry.MTime) {
			batch.items = append(batch.items, sweepItem{entry: entry, recordID: rec.ID})
			continue
		}

		id, err := s.ids.Compute(ctx, entry.Path)
		if err != nil {
			s.logger.Warn("sweep skipping unreadable file", "path", entry.Path, "error", err)
			continue
		}
		batch.items = append(batch.items, sweepItem{entry: entry, identity: id})
	}

	return batch, nil
}

func (s *Sweep) list(ctx context.Context) ([]TreeEntry, error) {
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
		return nil, classifyIOError(fmt.Errorf("sweep listing tree: %w", err))
	}
	return listing, nil
}
