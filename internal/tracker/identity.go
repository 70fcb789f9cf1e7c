package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultHashPrefixBytes bounds how much of a file is read for hashing.
// Production files routinely exceed tens of gigabytes and the share is
// slow, so only a bounded prefix is ever hashed.
const DefaultHashPrefixBytes = 512 * 1024

const identityCacheSize = 4096

// FileIdentity is a cheap, stable fingerprint for a file: size, name, a
// bounded-prefix content hash, and mtime. It is computed per observation
// and never persisted on its own.
type FileIdentity struct {
	Size        int64
	Filename    string
	ContentHash string
	MTime       time.Time
}

// Matches reports whether two identities refer to the same content.
// size+filename+hash is the practical matching key; the hash alone is not
// guaranteed globally unique.
func (i *FileIdentity) Matches(other *FileIdentity) bool {
	return i.ContentHash == other.ContentHash && i.Size == other.Size
}

// IdentityComputer derives file identities from a TreeSource. Reads are
// retried with bounded exponential backoff; results are cached per path and
// invalidated whenever size or mtime moves.
type IdentityComputer struct {
	source      TreeSource
	prefixBytes int64
	attempts    int
	cache       *lru.Cache[string, FileIdentity]
	logger      Logger
}

// NewIdentityComputer creates an IdentityComputer. prefixBytes <= 0 and
// attempts <= 0 fall back to the defaults (512 KiB, 3 attempts).
func NewIdentityComputer(source TreeSource, prefixBytes int64, attempts int, logger Logger) *IdentityComputer {
	if prefixBytes <= 0 {
		prefixBytes = DefaultHashPrefixBytes
	}
	if attempts <= 0 {
		attempts = 3
	}
	cache, _ := lru.New[string, FileIdentity](identityCacheSize)
	return &IdentityComputer{
		source:      source,
		prefixBytes: prefixBytes,
		attempts:    attempts,
		cache:       cache,
		logger:      logger,
	}
}

// Compute derives the identity for path. It stats the file first; if the
// cached identity still matches the observed size and mtime the prefix read
// is skipped entirely.
func (c *IdentityComputer) Compute(ctx context.Context, path string) (*FileIdentity, error) {
	var entry *TreeEntry
	err := c.retry(ctx, func() error {
		var statErr error
		entry, statErr = c.source.Stat(ctx, path)
		return statErr
	})
	if err != nil {
		return nil, classifyIOError(fmt.Errorf("stat %s: %w", path, err))
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s vanished before identity capture", ErrUnreadable, path)
	}

	if cached, ok := c.cache.Get(path); ok {
		if cached.Size == entry.Size && cached.MTime.Equal(entry.MTime) {
			id := cached
			return &id, nil
		}
	}

	var prefix []byte
	err = c.retry(ctx, func() error {
		var readErr error
		prefix, readErr = c.source.ReadPrefix(ctx, path, c.prefixBytes)
		return readErr
	})
	if err != nil {
		return nil, classifyIOError(fmt.Errorf("read prefix %s: %w", path, err))
	}

	id := FileIdentity{
		Size:        entry.Size,
		Filename:    Basename(path),
		ContentHash: fmt.Sprintf("%016x", xxhash.Sum64(prefix)),
		MTime:       entry.MTime,
	}
	c.cache.Add(path, id)
	return &id, nil
}

// retry runs op with bounded exponential backoff. Context cancellation and
// vanished paths are permanent and abort immediately.
func (c *IdentityComputer) retry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	wrapped := func() error {
		err := op()
		if err != nil && errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.attempts-1)), ctx))
}
