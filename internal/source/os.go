package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/garimto81/archive-analyzer/internal/tracker"
)

// DefaultExtensions is the media file set tracked when the config does not
// name its own.
var DefaultExtensions = []string{".mp4", ".mkv", ".mov", ".avi", ".mxf", ".ts", ".m2ts"}

// OSTreeSource reads the tracked tree from a locally mounted filesystem,
// typically an SMB or NFS mount of the NAS share.
type OSTreeSource struct {
	root       string
	extensions map[string]bool
}

// NewOSTreeSource creates a tree source rooted at root. extensions is the
// set of file extensions to track (lowercase, with leading dot); empty
// means DefaultExtensions.
func NewOSTreeSource(root string, extensions []string) *OSTreeSource {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	set := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		set[strings.ToLower(ext)] = true
	}
	return &OSTreeSource{root: root, extensions: set}
}

// List walks the tree and returns every tracked file. Paths are normalized
// to forward slashes. Unreadable subdirectories are skipped rather than
// failing the whole listing; an unreadable root fails it.
func (s *OSTreeSource) List(ctx context.Context) ([]tracker.TreeEntry, error) {
	var entries []tracker.TreeEntry

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == s.root {
				return err
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !s.extensions[tracker.Ext(p)] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// The file vanished between readdir and stat.
			return nil
		}
		entries = append(entries, tracker.TreeEntry{
			Path:  tracker.NormalizePath(p),
			Size:  info.Size(),
			MTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", s.root, err)
	}

	return entries, nil
}

// ReadPrefix reads up to n bytes from the start of the file at path.
func (s *OSTreeSource) ReadPrefix(ctx context.Context, path string, n int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.FromSlash(path))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return buf[:read], nil
}

// Stat returns the current entry for path, or nil if it no longer exists.
func (s *OSTreeSource) Stat(ctx context.Context, path string) (*tracker.TreeEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(filepath.FromSlash(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory: %s", path)
	}

	return &tracker.TreeEntry{
		Path:  tracker.NormalizePath(path),
		Size:  info.Size(),
		MTime: info.ModTime(),
	}, nil
}

// Compile-time check that OSTreeSource implements the tracker.TreeSource interface
var _ tracker.TreeSource = (*OSTreeSource)(nil)
