package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/garimto81/archive-analyzer/internal/tracker"
)

// NotifyObserver replaces the polling scanner with push-based change
// notification for shares where inotify works reliably. Local mounts
// mostly; SMB and NFS mounts usually do not propagate remote changes, which
// is why polling stays the default.
type NotifyObserver struct {
	root       string
	extensions map[string]bool
	logger     tracker.Logger
}

// NewNotifyObserver creates an observer rooted at root, filtering to the
// given extensions (empty means DefaultExtensions).
func NewNotifyObserver(root string, extensions []string, logger tracker.Logger) *NotifyObserver {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	set := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		set[strings.ToLower(ext)] = true
	}
	return &NotifyObserver{root: root, extensions: set, logger: logger}
}

// Run watches the tree until ctx is cancelled. Every directory in the tree
// is watched; directories created later are added as they appear.
func (o *NotifyObserver) Run(ctx context.Context, emit func(tracker.Observation)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := o.watchTree(watcher, o.root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			o.handle(watcher, event, emit)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			o.logger.Warn("watcher error", "error", err)
		}
	}
}

func (o *NotifyObserver) handle(watcher *fsnotify.Watcher, event fsnotify.Event, emit func(tracker.Observation)) {
	path := tracker.NormalizePath(event.Name)

	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if err := o.watchTree(watcher, event.Name); err != nil {
				o.logger.Warn("failed to watch new directory", "path", path, "error", err)
			}
			return
		}
		if !o.extensions[tracker.Ext(path)] {
			return
		}
		emit(tracker.Observation{Kind: tracker.ObsAppeared, Path: path, Size: info.Size(), MTime: info.ModTime()})

	case event.Has(fsnotify.Write):
		if !o.extensions[tracker.Ext(path)] {
			return
		}
		info, err := os.Stat(event.Name)
		if err != nil || info.IsDir() {
			return
		}
		emit(tracker.Observation{Kind: tracker.ObsModified, Path: path, Size: info.Size(), MTime: info.ModTime()})

	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		// A rename-away looks like a disappearance here; the matching
		// appearance at the new path reconnects the record downstream.
		if !o.extensions[tracker.Ext(path)] {
			return
		}
		emit(tracker.Observation{Kind: tracker.ObsDisappeared, Path: path})
	}
}

// watchTree adds a watch for dir and every subdirectory under it.
func (o *NotifyObserver) watchTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}

// Compile-time check that NotifyObserver implements the tracker.Observer interface
var _ tracker.Observer = (*NotifyObserver)(nil)
