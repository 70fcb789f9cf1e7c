package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/garimto81/archive-analyzer/internal/catalog"
	"github.com/garimto81/archive-analyzer/internal/config"
	"github.com/garimto81/archive-analyzer/internal/source"
	"github.com/garimto81/archive-analyzer/internal/tracker"
)

// TrackerApp is the application layer between the CLI and the Tracker.
// It constructs all dependencies from config and manages the catalog
// lifecycle on Close.
type TrackerApp struct {
	cfg     *config.Config
	catalog tracker.Catalog
	tracker *tracker.Tracker
	logger  tracker.Logger
	logFile *os.File
}

// NewTrackerApp creates a fully wired TrackerApp from the given config.
// operation identifies the CLI command being run (e.g. "Run", "RunOnce").
// The caller must call Close when done.
func NewTrackerApp(ctx context.Context, cfg *config.Config, operation string) (*TrackerApp, error) {
	cat, err := catalog.NewCatalogFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating catalog: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger.With("op", operation)}

	src, err := source.NewSourceFromConfig(ctx, cfg)
	if err != nil {
		cat.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating source: %w", err)
	}

	obs, err := source.NewObserverFromConfig(cfg, logger)
	if err != nil {
		cat.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating observer: %w", err)
	}

	trk := tracker.New(cat, src, obs, trackerConfig(cfg.Watch), logger, tracker.RealClock{}, tracker.UUIDGenerator{})

	return &TrackerApp{
		cfg:     cfg,
		catalog: cat,
		tracker: trk,
		logger:  logger,
		logFile: logFile,
	}, nil
}

// trackerConfig maps the TOML watch section onto the tracker's Config.
func trackerConfig(w config.WatchConfig) tracker.Config {
	return tracker.Config{
		PollInterval:            time.Duration(w.PollIntervalSeconds) * time.Second,
		DebounceWindow:          time.Duration(w.DebounceSeconds) * time.Second,
		SweepInterval:           time.Duration(w.SweepIntervalSeconds) * time.Second,
		HashPrefixBytes:         w.HashPrefixBytes,
		OutageMissingFraction:   w.OutageMissingFraction,
		DeleteConfirmationPolls: w.DeleteConfirmationPolls,
		RetryAttempts:           w.RetryAttempts,
	}
}

// Run starts the tracking daemon and blocks until ctx is cancelled or a
// fatal error occurs. Notifications and outage signals are consumed here
// and logged.
func (a *TrackerApp) Run(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-a.tracker.Notifications():
				a.logger.Info("file event", "file_id", n.FileID, "event", n.EventType)
			case at := <-a.tracker.Outages():
				a.logger.Warn("suspected share outage, deletions suppressed", "at", at.Format(time.RFC3339))
			}
		}
	}()

	return a.tracker.Run(ctx)
}

// RunOnce performs a single poll-and-classify cycle.
func (a *TrackerApp) RunOnce(ctx context.Context) (tracker.Summary, error) {
	return a.tracker.RunOnce(ctx)
}

// RunSweep performs a single full reconciliation sweep.
func (a *TrackerApp) RunSweep(ctx context.Context) (tracker.Summary, error) {
	return a.tracker.RunSweep(ctx)
}

// Status returns the number of active and deleted records in the catalog.
func (a *TrackerApp) Status() (active int, deleted int, err error) {
	return a.catalog.CountByStatus()
}

// FileHistory returns the record at path (active preferred, else the most
// recently deleted) and its full event ledger, oldest first.
func (a *TrackerApp) FileHistory(rawPath string) (*tracker.FileRecord, []*tracker.HistoryEntry, error) {
	path := tracker.NormalizePath(rawPath)
	rec, err := a.catalog.FindByPath(path)
	if err != nil {
		return nil, nil, fmt.Errorf("looking up %s: %w", path, err)
	}
	if rec == nil {
		return nil, nil, nil
	}
	entries, err := a.catalog.HistoryForFile(rec.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading history for %s: %w", path, err)
	}
	return rec, entries, nil
}

// RecentHistory returns the newest ledger entries across all records.
func (a *TrackerApp) RecentHistory(limit int) ([]*tracker.HistoryEntry, error) {
	return a.catalog.RecentHistory(limit)
}

// BackupCatalog writes a consistent copy of the catalog database to destPath.
func (a *TrackerApp) BackupCatalog(destPath string) error {
	c, ok := a.catalog.(*catalog.SQLiteCatalog)
	if !ok {
		return fmt.Errorf("catalog type does not support backups")
	}
	return c.BackupTo(destPath)
}

// Close closes the catalog and the log file.
func (a *TrackerApp) Close() error {
	var firstErr error
	if err := a.catalog.Close(); err != nil {
		firstErr = fmt.Errorf("closing catalog: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
