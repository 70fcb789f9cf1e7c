package tracker

import "time"

// FileStatus is the lifecycle state of a FileRecord.
type FileStatus string

const (
	StatusActive  FileStatus = "active"
	StatusDeleted FileStatus = "deleted"
)

// FileRecord is one logically distinct file over its lifetime. Records are
// soft-deleted and never physically removed.
type FileRecord struct {
	ID             string // assigned once, never reused
	NASPath        string
	Filename       string
	Size           int64
	ContentHash    string
	MTime          time.Time
	Status         FileStatus
	DeletedAt      *time.Time
	LastVerifiedAt time.Time
}

// HistoryEntry is one append-only ledger row. Every lifecycle mutation to a
// FileRecord produces exactly one entry; entries are never edited or deleted.
type HistoryEntry struct {
	ID         int64
	FileID     string
	EventType  string
	OldPath    string
	NewPath    string
	OldHash    string
	NewHash    string
	DetectedAt time.Time
	SyncedAt   *time.Time // set by an external mirror consumer, never here
	Metadata   string     // opaque JSON payload, e.g. ambiguity flags
}

// Catalog is the persistent store of file records and their history ledger.
// InsertRecord and UpdateRecord commit the record mutation and its history
// entry atomically, or neither. Implementations must be safe for use from
// multiple goroutines, though all mutations are routed through a single
// consumer.
type Catalog interface {
	// FindActiveByPath returns the active record at path, or nil.
	FindActiveByPath(path string) (*FileRecord, error)

	// FindByPath returns the active record at path if one exists, else the
	// most recently deleted record there, else nil.
	FindByPath(path string) (*FileRecord, error)

	// FindActiveByHashSize returns all active records matching hash and size.
	FindActiveByHashSize(hash string, size int64) ([]*FileRecord, error)

	// FindDeletedByHashSize returns deleted records matching hash and size,
	// most recently deleted first.
	FindDeletedByHashSize(hash string, size int64) ([]*FileRecord, error)

	// ListActive returns every active record.
	ListActive() ([]*FileRecord, error)

	// InsertRecord atomically inserts a new record and its history entry.
	InsertRecord(rec *FileRecord, entry *HistoryEntry) error

	// UpdateRecord atomically updates an existing record and appends its
	// history entry.
	UpdateRecord(rec *FileRecord, entry *HistoryEntry) error

	// TouchVerified bumps last_verified_at. Verification bookkeeping is not
	// a lifecycle mutation and produces no history entry.
	TouchVerified(id string, at time.Time) error

	// HistoryForFile returns the ledger for one record, oldest first.
	HistoryForFile(fileID string) ([]*HistoryEntry, error)

	// RecentHistory returns the newest ledger entries across all records.
	RecentHistory(limit int) ([]*HistoryEntry, error)

	// CountByStatus returns the number of active and deleted records.
	CountByStatus() (active int, deleted int, err error)

	// Close closes the underlying store.
	Close() error
}
