package tracker

import (
	"context"
	"time"
)

// TreeEntry is one regular file visible in the watched tree.
type TreeEntry struct {
	Path  string // normalized share path
	Size  int64
	MTime time.Time
}

// TreeSource provides read access to the watched file tree. Implementations
// exist for an OS-mounted share and for S3-hosted archives. All operations
// may block on slow network I/O and must honor ctx cancellation.
type TreeSource interface {
	// List returns every watched file currently visible in the tree.
	List(ctx context.Context) ([]TreeEntry, error)

	// ReadPrefix reads at most n leading bytes of the file at path.
	ReadPrefix(ctx context.Context, path string, n int64) ([]byte, error)

	// Stat returns the current entry for a single path.
	Stat(ctx context.Context, path string) (*TreeEntry, error)
}

// Observer produces raw observations. The polling Scanner is the default
// implementation; a push-based notify observer can replace it when the
// share offers trustworthy change notification.
type Observer interface {
	Run(ctx context.Context, emit func(Observation)) error
}
