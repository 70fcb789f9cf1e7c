package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/garimto81/archive-analyzer/internal/catalog/migrations"
	"github.com/garimto81/archive-analyzer/internal/tracker"
)

// SQLiteCatalog implements the tracker.Catalog interface using SQLite.
type SQLiteCatalog struct {
	db   *sql.DB
	path string
}

// NewSQLiteCatalog opens (or creates) a catalog at path and runs any
// pending migrations. path can be a file path or ":memory:".
func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating catalog: %w", err)
	}

	return &SQLiteCatalog{db: db, path: path}, nil
}

// NewSQLiteCatalogFromDB wraps an existing database connection. The caller
// is responsible for ensuring the connection is properly configured and the
// schema is in place.
func NewSQLiteCatalogFromDB(db *sql.DB) *SQLiteCatalog {
	return &SQLiteCatalog{db: db, path: ""}
}

// OpenConnection opens and configures a SQLite connection with appropriate
// PRAGMAs. Exported for use in tools and tests that need a properly
// configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Foreign keys are OFF by default in SQLite for backward compatibility.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// The tracker serializes mutations through one consumer, but reads from
	// CLI commands can overlap with writes.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

const fileColumns = "id, nas_path, filename, size, content_hash, mtime, status, deleted_at, last_verified_at"

func (c *SQLiteCatalog) FindActiveByPath(path string) (*tracker.FileRecord, error) {
	row := c.db.QueryRow(
		"SELECT "+fileColumns+" FROM files WHERE nas_path = ? AND status = 'active'", path)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("find active by path", err)
	}
	return rec, nil
}

func (c *SQLiteCatalog) FindByPath(path string) (*tracker.FileRecord, error) {
	row := c.db.QueryRow(
		`SELECT `+fileColumns+` FROM files WHERE nas_path = ?
		 ORDER BY CASE status WHEN 'active' THEN 0 ELSE 1 END, deleted_at DESC LIMIT 1`, path)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("find by path", err)
	}
	return rec, nil
}

func (c *SQLiteCatalog) FindActiveByHashSize(hash string, size int64) ([]*tracker.FileRecord, error) {
	rows, err := c.db.Query(
		"SELECT "+fileColumns+" FROM files WHERE content_hash = ? AND size = ? AND status = 'active' ORDER BY nas_path",
		hash, size)
	if err != nil {
		return nil, wrapErr("find active by hash", err)
	}
	return collectRecords(rows, "find active by hash")
}

func (c *SQLiteCatalog) FindDeletedByHashSize(hash string, size int64) ([]*tracker.FileRecord, error) {
	rows, err := c.db.Query(
		"SELECT "+fileColumns+" FROM files WHERE content_hash = ? AND size = ? AND status = 'deleted' ORDER BY deleted_at DESC",
		hash, size)
	if err != nil {
		return nil, wrapErr("find deleted by hash", err)
	}
	return collectRecords(rows, "find deleted by hash")
}

func (c *SQLiteCatalog) ListActive() ([]*tracker.FileRecord, error) {
	rows, err := c.db.Query(
		"SELECT " + fileColumns + " FROM files WHERE status = 'active' ORDER BY nas_path")
	if err != nil {
		return nil, wrapErr("list active", err)
	}
	return collectRecords(rows, "list active")
}

// InsertRecord inserts a new record and appends its history entry in one
// transaction. The entry's FileID is taken from the record.
func (c *SQLiteCatalog) InsertRecord(rec *tracker.FileRecord, entry *tracker.HistoryEntry) error {
	tx, err := c.db.Begin()
	if err != nil {
		return wrapErr("insert record", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO files ("+fileColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.NASPath, rec.Filename, rec.Size, rec.ContentHash, rec.MTime,
		string(rec.Status), nullTime(rec.DeletedAt), rec.LastVerifiedAt)
	if err != nil {
		return wrapErr("insert record", err)
	}

	if err := appendHistory(tx, rec.ID, entry); err != nil {
		return wrapErr("insert record history", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("insert record commit", err)
	}
	return nil
}

// UpdateRecord updates an existing record and appends its history entry in
// one transaction.
func (c *SQLiteCatalog) UpdateRecord(rec *tracker.FileRecord, entry *tracker.HistoryEntry) error {
	tx, err := c.db.Begin()
	if err != nil {
		return wrapErr("update record", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE files SET nas_path = ?, filename = ?, size = ?, content_hash = ?,
		 mtime = ?, status = ?, deleted_at = ?, last_verified_at = ? WHERE id = ?`,
		rec.NASPath, rec.Filename, rec.Size, rec.ContentHash, rec.MTime,
		string(rec.Status), nullTime(rec.DeletedAt), rec.LastVerifiedAt, rec.ID)
	if err != nil {
		return wrapErr("update record", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return wrapErr("update record", fmt.Errorf("no record with id %s", rec.ID))
	}

	if err := appendHistory(tx, rec.ID, entry); err != nil {
		return wrapErr("update record history", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("update record commit", err)
	}
	return nil
}

func (c *SQLiteCatalog) TouchVerified(id string, at time.Time) error {
	_, err := c.db.Exec("UPDATE files SET last_verified_at = ? WHERE id = ?", at, id)
	if err != nil {
		return wrapErr("touch verified", err)
	}
	return nil
}

const historyColumns = "id, file_id, event_type, old_path, new_path, old_hash, new_hash, detected_at, synced_at, metadata"

func (c *SQLiteCatalog) HistoryForFile(fileID string) ([]*tracker.HistoryEntry, error) {
	rows, err := c.db.Query(
		"SELECT "+historyColumns+" FROM file_history WHERE file_id = ? ORDER BY id", fileID)
	if err != nil {
		return nil, wrapErr("history for file", err)
	}
	return collectHistory(rows, "history for file")
}

func (c *SQLiteCatalog) RecentHistory(limit int) ([]*tracker.HistoryEntry, error) {
	rows, err := c.db.Query(
		"SELECT "+historyColumns+" FROM file_history ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, wrapErr("recent history", err)
	}
	return collectHistory(rows, "recent history")
}

func (c *SQLiteCatalog) CountByStatus() (active int, deleted int, err error) {
	rows, err := c.db.Query("SELECT status, COUNT(*) FROM files GROUP BY status")
	if err != nil {
		return 0, 0, wrapErr("count by status", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return 0, 0, wrapErr("count by status", err)
		}
		switch tracker.FileStatus(status) {
		case tracker.StatusActive:
			active = n
		case tracker.StatusDeleted:
			deleted = n
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, wrapErr("count by status", err)
	}
	return active, deleted, nil
}

// Path returns the catalog file path (or ":memory:").
func (c *SQLiteCatalog) Path() string {
	return c.path
}

// CheckMigrations verifies the catalog schema is up-to-date.
func (c *SQLiteCatalog) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(c.db)
}

// BackupTo creates a complete copy of the catalog at destPath using VACUUM INTO.
func (c *SQLiteCatalog) BackupTo(destPath string) error {
	if _, err := c.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up catalog: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func appendHistory(tx *sql.Tx, fileID string, entry *tracker.HistoryEntry) error {
	if entry == nil {
		return fmt.Errorf("history entry required")
	}
	_, err := tx.Exec(
		`INSERT INTO file_history (file_id, event_type, old_path, new_path, old_hash, new_hash, detected_at, synced_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fileID, entry.EventType, entry.OldPath, entry.NewPath, entry.OldHash,
		entry.NewHash, entry.DetectedAt, nullTime(entry.SyncedAt), entry.Metadata)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*tracker.FileRecord, error) {
	var rec tracker.FileRecord
	var status string
	var deletedAt sql.NullTime
	err := s.Scan(&rec.ID, &rec.NASPath, &rec.Filename, &rec.Size, &rec.ContentHash,
		&rec.MTime, &status, &deletedAt, &rec.LastVerifiedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = tracker.FileStatus(status)
	if deletedAt.Valid {
		t := deletedAt.Time
		rec.DeletedAt = &t
	}
	return &rec, nil
}

func collectRecords(rows *sql.Rows, op string) ([]*tracker.FileRecord, error) {
	defer rows.Close()

	var result []*tracker.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return result, nil
}

func collectHistory(rows *sql.Rows, op string) ([]*tracker.HistoryEntry, error) {
	defer rows.Close()

	var result []*tracker.HistoryEntry
	for rows.Next() {
		var e tracker.HistoryEntry
		var syncedAt sql.NullTime
		err := rows.Scan(&e.ID, &e.FileID, &e.EventType, &e.OldPath, &e.NewPath,
			&e.OldHash, &e.NewHash, &e.DetectedAt, &syncedAt, &e.Metadata)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		if syncedAt.Valid {
			t := syncedAt.Time
			e.SyncedAt = &t
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return result, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// wrapErr wraps a catalog failure, flagging the classes of SQLite error the
// tracker cannot recover from by retrying.
func wrapErr(op string, err error) error {
	return &tracker.StorageError{Op: op, Err: err, Fatal: isFatal(err)}
}

func isFatal(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case sqlite3.ErrFull, sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
		return true
	}
	return false
}

// Compile-time check that SQLiteCatalog implements the tracker.Catalog interface
var _ tracker.Catalog = (*SQLiteCatalog)(nil)
