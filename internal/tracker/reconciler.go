package tracker

import (
	"encoding/json"
	"fmt"
	"time"
)

// Outcome describes what the reconciler did for one settled event. Event is
// empty for a no-op.
type Outcome struct {
	Event     string
	Record    *FileRecord
	OldPath   string
	Ambiguous bool
}

// Reconciler turns a settled event plus current catalog state into at most
// one record mutation and exactly one history entry. It must only run on
// the tracker's single consumer goroutine: all slow I/O (listing, hashing)
// has already happened by the time an event reaches it.
type Reconciler struct {
	catalog Catalog
	clock   Clock
	idgen   IDGenerator
	logger  Logger
}

// NewReconciler creates a Reconciler over the given catalog.
func NewReconciler(catalog Catalog, clock Clock, idgen IDGenerator, logger Logger) *Reconciler {
	return &Reconciler{catalog: catalog, clock: clock, idgen: idgen, logger: logger}
}

// Apply classifies and applies one settled event. Classification order:
// no-op, modified, move/rename, restore, create for present paths;
// soft-delete for confirmed disappearances. Move/rename is only considered
// when no active record occupies the event path, which keeps the
// one-active-record-per-path invariant in every reachable state.
func (r *Reconciler) Apply(ev SettledEvent) (*Outcome, error) {
	if ev.Kind == ObsDisappeared {
		return r.applyDisappeared(ev.Path)
	}
	if ev.Identity == nil {
		return nil, fmt.Errorf("settled %s event for %s has no identity", ev.Kind, ev.Path)
	}
	return r.applyPresent(ev.Path, ev.Identity)
}

func (r *Reconciler) applyPresent(path string, id *FileIdentity) (*Outcome, error) {
	now := r.clock.Now()

	rec, err := r.catalog.FindActiveByPath(path)
	if err != nil {
		return nil, fmt.Errorf("looking up path %s: %w", path, err)
	}

	if rec != nil {
		if rec.ContentHash == id.ContentHash {
			// Duplicate observation: no mutation, no history entry. The
			// verification timestamp is bookkeeping, not a mutation.
			if err := r.catalog.TouchVerified(rec.ID, now); err != nil {
				return nil, err
			}
			return &Outcome{Record: rec}, nil
		}
		return r.applyModified(rec, id, now)
	}

	candidates, err := r.catalog.FindActiveByHashSize(id.ContentHash, id.Size)
	if err != nil {
		return nil, fmt.Errorf("looking up hash %s: %w", id.ContentHash, err)
	}

	switch len(candidates) {
	case 1:
		return r.applyMove(candidates[0], path, id, now)
	case 0:
		return r.applyCreateOrRestore(path, id, now, false, 0)
	default:
		// Duplicate content across files: never guess which candidate
		// moved. Record a new file flagged for manual review.
		r.logger.Warn("ambiguous move candidates, classifying as create",
			"path", path, "hash", id.ContentHash, "candidates", len(candidates))
		return r.applyCreateOrRestore(path, id, now, true, len(candidates))
	}
}

// applyModified updates the record in place when content at a known path
// changed.
func (r *Reconciler) applyModified(rec *FileRecord, id *FileIdentity, now time.Time) (*Outcome, error) {
	oldHash := rec.ContentHash
	rec.ContentHash = id.ContentHash
	rec.Size = id.Size
	rec.MTime = id.MTime
	rec.LastVerifiedAt = now

	entry := &HistoryEntry{
		FileID:     rec.ID,
		EventType:  EventModified,
		OldPath:    rec.NASPath,
		NewPath:    rec.NASPath,
		OldHash:    oldHash,
		NewHash:    id.ContentHash,
		DetectedAt: now,
	}
	if err := r.catalog.UpdateRecord(rec, entry); err != nil {
		return nil, err
	}
	r.logger.Info("file modified", "path", rec.NASPath, "old_hash", oldHash, "new_hash", id.ContentHash)
	return &Outcome{Event: EventModified, Record: rec}, nil
}

// applyMove relocates the single hash+size candidate to the event path,
// preserving its record ID. Moved and renamed are distinguished by whether
// the filename changed.
func (r *Reconciler) applyMove(rec *FileRecord, path string, id *FileIdentity, now time.Time) (*Outcome, error) {
	oldPath := rec.NASPath
	event := EventMoved
	if rec.Filename != id.Filename {
		event = EventRenamed
	}

	rec.NASPath = path
	rec.Filename = id.Filename
	rec.MTime = id.MTime
	rec.LastVerifiedAt = now

	entry := &HistoryEntry{
		FileID:     rec.ID,
		EventType:  event,
		OldPath:    oldPath,
		NewPath:    path,
		OldHash:    rec.ContentHash,
		NewHash:    rec.ContentHash,
		DetectedAt: now,
	}
	if err := r.catalog.UpdateRecord(rec, entry); err != nil {
		return nil, err
	}
	r.logger.Info("file "+event, "old_path", oldPath, "new_path", path)
	return &Outcome{Event: event, Record: rec, OldPath: oldPath}, nil
}

// applyCreateOrRestore reactivates the most recently deleted matching
// record if one exists, otherwise inserts a new one. Ambiguous matches
// always insert, flagged for manual review.
func (r *Reconciler) applyCreateOrRestore(path string, id *FileIdentity, now time.Time, ambiguous bool, candidates int) (*Outcome, error) {
	if !ambiguous {
		deleted, err := r.catalog.FindDeletedByHashSize(id.ContentHash, id.Size)
		if err != nil {
			return nil, fmt.Errorf("looking up deleted records: %w", err)
		}
		if len(deleted) > 0 {
			// Tie-break: restore only the most recently deleted match; the
			// rest stay deleted.
			return r.applyRestore(deleted[0], path, id, now)
		}
	}

	rec := &FileRecord{
		ID:             r.idgen.New(),
		NASPath:        path,
		Filename:       id.Filename,
		Size:           id.Size,
		ContentHash:    id.ContentHash,
		MTime:          id.MTime,
		Status:         StatusActive,
		LastVerifiedAt: now,
	}
	entry := &HistoryEntry{
		FileID:     rec.ID,
		EventType:  EventCreated,
		NewPath:    path,
		NewHash:    id.ContentHash,
		DetectedAt: now,
	}
	if ambiguous {
		meta, _ := json.Marshal(map[string]any{"ambiguous": true, "candidates": candidates})
		entry.Metadata = string(meta)
	}
	if err := r.catalog.InsertRecord(rec, entry); err != nil {
		return nil, err
	}
	r.logger.Info("file created", "path", path, "hash", id.ContentHash, "ambiguous", ambiguous)
	return &Outcome{Event: EventCreated, Record: rec, Ambiguous: ambiguous}, nil
}

func (r *Reconciler) applyRestore(rec *FileRecord, path string, id *FileIdentity, now time.Time) (*Outcome, error) {
	oldPath := rec.NASPath
	rec.Status = StatusActive
	rec.DeletedAt = nil
	rec.NASPath = path
	rec.Filename = id.Filename
	rec.MTime = id.MTime
	rec.LastVerifiedAt = now

	entry := &HistoryEntry{
		FileID:     rec.ID,
		EventType:  EventRestored,
		OldPath:    oldPath,
		NewPath:    path,
		OldHash:    rec.ContentHash,
		NewHash:    rec.ContentHash,
		DetectedAt: now,
	}
	if err := r.catalog.UpdateRecord(rec, entry); err != nil {
		return nil, err
	}
	r.logger.Info("file restored", "path", path, "id", rec.ID)
	return &Outcome{Event: EventRestored, Record: rec, OldPath: oldPath}, nil
}

func (r *Reconciler) applyDisappeared(path string) (*Outcome, error) {
	now := r.clock.Now()

	rec, err := r.catalog.FindActiveByPath(path)
	if err != nil {
		return nil, fmt.Errorf("looking up path %s: %w", path, err)
	}
	if rec == nil {
		return &Outcome{}, nil
	}

	rec.Status = StatusDeleted
	deletedAt := now
	rec.DeletedAt = &deletedAt

	entry := &HistoryEntry{
		FileID:     rec.ID,
		EventType:  EventDeleted,
		OldPath:    path,
		OldHash:    rec.ContentHash,
		DetectedAt: now,
	}
	if err := r.catalog.UpdateRecord(rec, entry); err != nil {
		return nil, err
	}
	r.logger.Info("file deleted", "path", path, "id", rec.ID)
	return &Outcome{Event: EventDeleted, Record: rec, OldPath: path}, nil
}
