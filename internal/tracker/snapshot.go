package tracker

import "time"

// Snapshot is the immutable set of tree entries observed at the end of one
// poll. The scanner owns it exclusively and replaces it wholesale each
// cycle; it is never shared or mutated in place.
type Snapshot struct {
	takenAt time.Time
	entries map[string]TreeEntry
}

// NewSnapshot builds a snapshot from a fresh listing.
func NewSnapshot(listing []TreeEntry, at time.Time) *Snapshot {
	entries := make(map[string]TreeEntry, len(listing))
	for _, e := range listing {
		entries[e.Path] = e
	}
	return &Snapshot{takenAt: at, entries: entries}
}

// Len returns the number of entries in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Contains reports whether path is present in the snapshot.
func (s *Snapshot) Contains(path string) bool {
	if s == nil {
		return false
	}
	_, ok := s.entries[path]
	return ok
}

// TakenAt returns when the snapshot's listing completed.
func (s *Snapshot) TakenAt() time.Time { return s.takenAt }

// Diff computes the raw observations that transform prev into next.
// A nil prev (first poll) yields an Appeared observation per entry.
func Diff(prev, next *Snapshot) []Observation {
	var obs []Observation

	for path, entry := range next.entries {
		if prev == nil {
			obs = append(obs, Observation{Kind: ObsAppeared, Path: path, Size: entry.Size, MTime: entry.MTime})
			continue
		}
		old, ok := prev.entries[path]
		switch {
		case !ok:
			obs = append(obs, Observation{Kind: ObsAppeared, Path: path, Size: entry.Size, MTime: entry.MTime})
		case old.Size != entry.Size || !old.MTime.Equal(entry.MTime):
			obs = append(obs, Observation{Kind: ObsModified, Path: path, Size: entry.Size, MTime: entry.MTime})
		}
	}

	if prev != nil {
		for path, entry := range prev.entries {
			if _, ok := next.entries[path]; !ok {
				obs = append(obs, Observation{Kind: ObsDisappeared, Path: path, Size: entry.Size, MTime: entry.MTime})
			}
		}
	}

	return obs
}
