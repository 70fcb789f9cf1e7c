package tracker_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/garimto81/archive-analyzer/internal/testutil"
	"github.com/garimto81/archive-analyzer/internal/tracker"
)

type reconcilerFixture struct {
	catalog tracker.Catalog
	clock   *testutil.StubClock
	rec     *tracker.Reconciler
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	cat := testutil.NewTestCatalog(t)
	clock := testutil.FixedClock()
	return &reconcilerFixture{
		catalog: cat,
		clock:   clock,
		rec:     tracker.NewReconciler(cat, clock, testutil.NewStubIDGenerator(), tracker.NewNopLogger()),
	}
}

func identity(hash string, size int64, filename string, mtime time.Time) *tracker.FileIdentity {
	return &tracker.FileIdentity{Size: size, Filename: filename, ContentHash: hash, MTime: mtime}
}

func (f *reconcilerFixture) appear(t *testing.T, path string, id *tracker.FileIdentity) *tracker.Outcome {
	t.Helper()
	out, err := f.rec.Apply(tracker.SettledEvent{Kind: tracker.ObsAppeared, Path: path, Identity: id})
	if err != nil {
		t.Fatalf("Apply(appeared %s) error = %v", path, err)
	}
	return out
}

func (f *reconcilerFixture) disappear(t *testing.T, path string) *tracker.Outcome {
	t.Helper()
	out, err := f.rec.Apply(tracker.SettledEvent{Kind: tracker.ObsDisappeared, Path: path})
	if err != nil {
		t.Fatalf("Apply(disappeared %s) error = %v", path, err)
	}
	return out
}

func TestReconciler_Create(t *testing.T) {
	f := newReconcilerFixture(t)
	mtime := f.clock.Now()

	out := f.appear(t, "/media/clip.mp4", identity("hash-1", 100, "clip.mp4", mtime))

	if out.Event != tracker.EventCreated {
		t.Fatalf("Event = %q, want created", out.Event)
	}
	if out.Ambiguous {
		t.Error("Ambiguous = true, want false")
	}

	rec, err := f.catalog.FindActiveByPath("/media/clip.mp4")
	if err != nil || rec == nil {
		t.Fatalf("record not in catalog: %v, %v", rec, err)
	}
	if rec.ContentHash != "hash-1" || rec.Status != tracker.StatusActive {
		t.Errorf("record = %+v, want active with hash-1", rec)
	}

	entries, _ := f.catalog.HistoryForFile(rec.ID)
	if len(entries) != 1 || entries[0].EventType != tracker.EventCreated {
		t.Fatalf("history = %v, want one created entry", entries)
	}
	if entries[0].NewPath != "/media/clip.mp4" {
		t.Errorf("NewPath = %q, want event path", entries[0].NewPath)
	}
}

func TestReconciler_NoOp(t *testing.T) {
	f := newReconcilerFixture(t)
	mtime := f.clock.Now()
	id := identity("hash-1", 100, "clip.mp4", mtime)

	created := f.appear(t, "/media/clip.mp4", id)

	f.clock.Advance(time.Hour)
	out := f.appear(t, "/media/clip.mp4", id)

	if out.Event != "" {
		t.Fatalf("Event = %q, want no-op", out.Event)
	}
	if out.Record == nil || out.Record.ID != created.Record.ID {
		t.Fatalf("no-op should still report the record")
	}

	// Verification bumped, but no second history entry
	rec, _ := f.catalog.FindActiveByPath("/media/clip.mp4")
	if !rec.LastVerifiedAt.Equal(f.clock.Now()) {
		t.Errorf("LastVerifiedAt = %v, want %v", rec.LastVerifiedAt, f.clock.Now())
	}
	entries, _ := f.catalog.HistoryForFile(rec.ID)
	if len(entries) != 1 {
		t.Errorf("len(history) = %d, want 1 (no-op must not append)", len(entries))
	}
}

func TestReconciler_Modified(t *testing.T) {
	f := newReconcilerFixture(t)
	mtime := f.clock.Now()

	created := f.appear(t, "/media/clip.mp4", identity("hash-1", 100, "clip.mp4", mtime))

	f.clock.Advance(time.Minute)
	out := f.appear(t, "/media/clip.mp4", identity("hash-2", 150, "clip.mp4", mtime.Add(time.Minute)))

	if out.Event != tracker.EventModified {
		t.Fatalf("Event = %q, want modified", out.Event)
	}
	if out.Record.ID != created.Record.ID {
		t.Errorf("record ID changed on modify: %q -> %q", created.Record.ID, out.Record.ID)
	}

	entries, _ := f.catalog.HistoryForFile(out.Record.ID)
	if len(entries) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(entries))
	}
	last := entries[1]
	if last.OldHash != "hash-1" || last.NewHash != "hash-2" {
		t.Errorf("hashes = %q -> %q, want hash-1 -> hash-2", last.OldHash, last.NewHash)
	}
}

func TestReconciler_MoveAndRename(t *testing.T) {
	t.Run("delete confirmed before reappearance restores", func(t *testing.T) {
		f := newReconcilerFixture(t)
		mtime := f.clock.Now()

		created := f.appear(t, "/media/incoming/clip.mp4", identity("hash-1", 100, "clip.mp4", mtime))
		f.disappear(t, "/media/incoming/clip.mp4")

		out := f.appear(t, "/media/archive/clip.mp4", identity("hash-1", 100, "clip.mp4", mtime))
		// The record was already soft-deleted by the disappearance, so this
		// reappearance is a restore; the pure-move case is below.
		if out.Event != tracker.EventRestored {
			t.Fatalf("Event = %q, want restored after delete+reappear", out.Event)
		}
		if out.Record.ID != created.Record.ID {
			t.Errorf("record ID not preserved: %q -> %q", created.Record.ID, out.Record.ID)
		}
	})

	t.Run("appearance before disappearance relocates the active record", func(t *testing.T) {
		f := newReconcilerFixture(t)
		mtime := f.clock.Now()

		created := f.appear(t, "/media/incoming/clip.mp4", identity("hash-1", 100, "clip.mp4", mtime))

		out := f.appear(t, "/media/archive/clip.mp4", identity("hash-1", 100, "clip.mp4", mtime))
		if out.Event != tracker.EventMoved {
			t.Fatalf("Event = %q, want moved", out.Event)
		}
		if out.Record.ID != created.Record.ID {
			t.Errorf("record ID not preserved: %q -> %q", created.Record.ID, out.Record.ID)
		}
		if out.OldPath != "/media/incoming/clip.mp4" {
			t.Errorf("OldPath = %q, want original path", out.OldPath)
		}

		// The old path no longer resolves; the later disappearance there is
		// then a no-op
		if rec, _ := f.catalog.FindActiveByPath("/media/incoming/clip.mp4"); rec != nil {
			t.Errorf("old path still active: %+v", rec)
		}
		gone := f.disappear(t, "/media/incoming/clip.mp4")
		if gone.Event != "" {
			t.Errorf("disappearance after move applied %q, want no-op", gone.Event)
		}
	})

	t.Run("changed filename is a rename", func(t *testing.T) {
		f := newReconcilerFixture(t)
		mtime := f.clock.Now()

		f.appear(t, "/media/a_0012.mp4", identity("hash-1", 100, "a_0012.mp4", mtime))

		out := f.appear(t, "/media/final_cut.mp4", identity("hash-1", 100, "final_cut.mp4", mtime))
		if out.Event != tracker.EventRenamed {
			t.Fatalf("Event = %q, want renamed", out.Event)
		}

		entries, _ := f.catalog.HistoryForFile(out.Record.ID)
		last := entries[len(entries)-1]
		if last.OldPath != "/media/a_0012.mp4" || last.NewPath != "/media/final_cut.mp4" {
			t.Errorf("entry paths = %q -> %q", last.OldPath, last.NewPath)
		}
	})
}

func TestReconciler_ModifiedBeatsMove(t *testing.T) {
	// Content of one file overwrites another: the occupied path wins the
	// classification and the source record is left alone.
	f := newReconcilerFixture(t)
	mtime := f.clock.Now()

	source := f.appear(t, "/media/a.mp4", identity("hash-a", 100, "a.mp4", mtime))
	target := f.appear(t, "/media/b.mp4", identity("hash-b", 200, "b.mp4", mtime))

	out := f.appear(t, "/media/b.mp4", identity("hash-a", 100, "b.mp4", mtime))
	if out.Event != tracker.EventModified {
		t.Fatalf("Event = %q, want modified", out.Event)
	}
	if out.Record.ID != target.Record.ID {
		t.Errorf("modified wrong record: %q, want %q", out.Record.ID, target.Record.ID)
	}

	// Source record untouched and still active at its path
	rec, _ := f.catalog.FindActiveByPath("/media/a.mp4")
	if rec == nil || rec.ID != source.Record.ID || rec.ContentHash != "hash-a" {
		t.Errorf("source record disturbed: %+v", rec)
	}
}

func TestReconciler_Delete(t *testing.T) {
	f := newReconcilerFixture(t)
	mtime := f.clock.Now()

	created := f.appear(t, "/media/clip.mp4", identity("hash-1", 100, "clip.mp4", mtime))

	f.clock.Advance(time.Hour)
	out := f.disappear(t, "/media/clip.mp4")

	if out.Event != tracker.EventDeleted {
		t.Fatalf("Event = %q, want deleted", out.Event)
	}
	if out.Record.Status != tracker.StatusDeleted {
		t.Errorf("Status = %q, want deleted", out.Record.Status)
	}
	if out.Record.DeletedAt == nil || !out.Record.DeletedAt.Equal(f.clock.Now()) {
		t.Errorf("DeletedAt = %v, want %v", out.Record.DeletedAt, f.clock.Now())
	}

	// Soft delete: the record remains queryable with full history
	entries, _ := f.catalog.HistoryForFile(created.Record.ID)
	if len(entries) != 2 || entries[1].EventType != tracker.EventDeleted {
		t.Fatalf("history = %v, want created then deleted", entries)
	}

	t.Run("disappearance of unknown path is a no-op", func(t *testing.T) {
		out := f.disappear(t, "/media/never-seen.mp4")
		if out.Event != "" || out.Record != nil {
			t.Errorf("outcome = %+v, want empty", out)
		}
	})
}

func TestReconciler_Restore(t *testing.T) {
	f := newReconcilerFixture(t)
	mtime := f.clock.Now()

	created := f.appear(t, "/media/clip.mp4", identity("hash-1", 100, "clip.mp4", mtime))
	f.disappear(t, "/media/clip.mp4")

	f.clock.Advance(24 * time.Hour)
	out := f.appear(t, "/media/restored/clip.mp4", identity("hash-1", 100, "clip.mp4", mtime))

	if out.Event != tracker.EventRestored {
		t.Fatalf("Event = %q, want restored", out.Event)
	}
	if out.Record.ID != created.Record.ID {
		t.Errorf("restore created a new record: %q, want %q", out.Record.ID, created.Record.ID)
	}
	if out.Record.Status != tracker.StatusActive || out.Record.DeletedAt != nil {
		t.Errorf("record = %+v, want active with nil DeletedAt", out.Record)
	}
	if out.Record.NASPath != "/media/restored/clip.mp4" {
		t.Errorf("NASPath = %q, want restore path", out.Record.NASPath)
	}
}

func TestReconciler_RestoreTieBreak(t *testing.T) {
	f := newReconcilerFixture(t)
	mtime := f.clock.Now()

	// Two identical files, both deleted at different times
	f.appear(t, "/media/a.mp4", identity("hash-1", 100, "a.mp4", mtime))
	f.appear(t, "/media/b.mp4", identity("hash-1", 100, "b.mp4", mtime))

	f.clock.Advance(time.Hour)
	f.disappear(t, "/media/a.mp4")
	f.clock.Advance(time.Hour)
	gone := f.disappear(t, "/media/b.mp4")

	f.clock.Advance(time.Hour)
	out := f.appear(t, "/media/back.mp4", identity("hash-1", 100, "back.mp4", mtime))

	if out.Event != tracker.EventRestored {
		t.Fatalf("Event = %q, want restored", out.Event)
	}
	if out.Record.ID != gone.Record.ID {
		t.Errorf("restored %q, want the most recently deleted %q", out.Record.ID, gone.Record.ID)
	}

	// Only one record came back
	active, deleted, err := f.catalog.CountByStatus()
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if active != 1 || deleted != 1 {
		t.Errorf("active=%d deleted=%d, want 1 and 1", active, deleted)
	}
}

func TestReconciler_AmbiguousMatch(t *testing.T) {
	f := newReconcilerFixture(t)
	mtime := f.clock.Now()

	// Two active records with identical content
	a := f.appear(t, "/media/a.mp4", identity("hash-1", 100, "a.mp4", mtime))
	b := f.appear(t, "/media/b.mp4", identity("hash-1", 100, "b.mp4", mtime))

	out := f.appear(t, "/media/c.mp4", identity("hash-1", 100, "c.mp4", mtime))

	if out.Event != tracker.EventCreated {
		t.Fatalf("Event = %q, want created (never guess between candidates)", out.Event)
	}
	if !out.Ambiguous {
		t.Error("Ambiguous = false, want true")
	}
	if out.Record.ID == a.Record.ID || out.Record.ID == b.Record.ID {
		t.Error("ambiguous create must mint a fresh record")
	}

	entries, _ := f.catalog.HistoryForFile(out.Record.ID)
	if len(entries) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(entries))
	}
	var meta struct {
		Ambiguous  bool `json:"ambiguous"`
		Candidates int  `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(entries[0].Metadata), &meta); err != nil {
		t.Fatalf("metadata %q not valid JSON: %v", entries[0].Metadata, err)
	}
	if !meta.Ambiguous || meta.Candidates != 2 {
		t.Errorf("metadata = %+v, want ambiguous with 2 candidates", meta)
	}

	// Both originals untouched
	for _, p := range []string{"/media/a.mp4", "/media/b.mp4"} {
		if rec, _ := f.catalog.FindActiveByPath(p); rec == nil {
			t.Errorf("record at %s disturbed", p)
		}
	}
}

func TestReconciler_MissingIdentity(t *testing.T) {
	f := newReconcilerFixture(t)

	_, err := f.rec.Apply(tracker.SettledEvent{Kind: tracker.ObsAppeared, Path: "/media/x.mp4"})
	if err == nil {
		t.Fatal("Apply() without identity expected error, got nil")
	}
}
