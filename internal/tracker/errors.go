package tracker

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrTimeout indicates the share did not respond in time during a listing
// or a file read. Timeouts are transient: the affected cycle is skipped and
// the previous state is retained, never treated as evidence of deletion.
var ErrTimeout = errors.New("share unresponsive")

// ErrUnreadable indicates a file could not be read (permissions, lock, or
// the path vanished mid-read).
var ErrUnreadable = errors.New("file unreadable")

// StorageError wraps a catalog write failure. Fatal errors (exhausted disk,
// corrupt database) must stop the tracker; non-fatal ones cause the
// triggering event to be re-queued for the next cycle.
type StorageError struct {
	Op    string
	Err   error
	Fatal bool
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsFatalStorage reports whether err is a storage failure the tracker
// cannot recover from by retrying.
func IsFatalStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Fatal
}

// classifyIOError maps a raw source error onto the tracker error taxonomy.
func classifyIOError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreadable, err)
}
