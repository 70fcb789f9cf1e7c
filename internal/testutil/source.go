package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garimto81/archive-analyzer/internal/tracker"
)

// MockFile represents a file in the mock tree.
type MockFile struct {
	Content []byte
	ModTime time.Time
}

// MockTreeSource is an in-memory tree for testing. Safe for concurrent use.
// Errors can be injected per operation to simulate an unresponsive share.
type MockTreeSource struct {
	mu    sync.Mutex
	files map[string]*MockFile

	ListErr       error
	ReadPrefixErr error
	StatErr       error

	ListCalls       int
	ReadPrefixCalls int
}

// NewMockTreeSource creates an empty mock tree.
func NewMockTreeSource() *MockTreeSource {
	return &MockTreeSource{files: make(map[string]*MockFile)}
}

// AddFile adds or replaces a file with the given content and mtime.
func (m *MockTreeSource) AddFile(path string, content []byte, mtime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[tracker.NormalizePath(path)] = &MockFile{Content: content, ModTime: mtime}
}

// RemoveFile removes a file.
func (m *MockTreeSource) RemoveFile(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, tracker.NormalizePath(path))
}

// MoveFile moves a file to a new path, keeping content and mtime.
func (m *MockTreeSource) MoveFile(oldPath, newPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := tracker.NormalizePath(oldPath)
	if f, ok := m.files[old]; ok {
		delete(m.files, old)
		m.files[tracker.NormalizePath(newPath)] = f
	}
}

func (m *MockTreeSource) List(ctx context.Context) ([]tracker.TreeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ListCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	var entries []tracker.TreeEntry
	for path, f := range m.files {
		entries = append(entries, tracker.TreeEntry{
			Path:  path,
			Size:  int64(len(f.Content)),
			MTime: f.ModTime,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (m *MockTreeSource) ReadPrefix(ctx context.Context, path string, n int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReadPrefixCalls++
	if m.ReadPrefixErr != nil {
		return nil, m.ReadPrefixErr
	}

	f, ok := m.files[tracker.NormalizePath(path)]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	if int64(len(f.Content)) < n {
		n = int64(len(f.Content))
	}
	buf := make([]byte, n)
	copy(buf, f.Content)
	return buf, nil
}

func (m *MockTreeSource) Stat(ctx context.Context, path string) (*tracker.TreeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.StatErr != nil {
		return nil, m.StatErr
	}

	f, ok := m.files[tracker.NormalizePath(path)]
	if !ok {
		return nil, nil
	}
	return &tracker.TreeEntry{
		Path:  tracker.NormalizePath(path),
		Size:  int64(len(f.Content)),
		MTime: f.ModTime,
	}, nil
}

// Compile-time check that MockTreeSource implements the tracker.TreeSource interface
var _ tracker.TreeSource = (*MockTreeSource)(nil)
