package tracker

import "time"

// ObservationKind is the closed set of raw scanner outputs.
type ObservationKind int

const (
	// ObsAppeared means a path is present that was absent from the previous snapshot.
	ObsAppeared ObservationKind = iota
	// ObsModified means a path's size or mtime changed between snapshots.
	ObsModified
	// ObsDisappeared means a path was absent for the full confirmation window.
	ObsDisappeared
)

func (k ObservationKind) String() string {
	switch k {
	case ObsAppeared:
		return "appeared"
	case ObsModified:
		return "modified"
	case ObsDisappeared:
		return "disappeared"
	default:
		return "unknown"
	}
}

// Observation is a single raw filesystem observation produced by a poll diff.
type Observation struct {
	Kind  ObservationKind
	Path  string
	Size  int64
	MTime time.Time
}

// SettledEvent is the single, debounced outcome of a burst of observations
// for one path. Identity is nil for disappearances.
type SettledEvent struct {
	Kind     ObservationKind
	Path     string
	Identity *FileIdentity
}

// History event types, one per catalog mutation.
const (
	EventCreated  = "created"
	EventMoved    = "moved"
	EventRenamed  = "renamed"
	EventModified = "modified"
	EventDeleted  = "deleted"
	EventRestored = "restored"
)

// Notification is emitted on the tracker's notification stream after each
// applied catalog mutation. External mirror consumers subscribe to it; the
// tracker does not depend on anyone listening.
type Notification struct {
	FileID    string
	EventType string
	Timestamp time.Time
}
