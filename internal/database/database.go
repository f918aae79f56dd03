package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/scan"
)

// Actions recorded for each candidate
const (
	ActionDelete           = "DELETE"
	ActionDryRun           = "DRY_RUN"
	ActionSkipNotFound     = "SKIP_NOT_FOUND"
	ActionPermissionDenied = "PERMISSION_DENIED"
	ActionError            = "ERROR"
)

// Run statuses
const (
	RunStatusRunning   = "RUNNING"
	RunStatusSuccess   = "SUCCESS"
	RunStatusCancelled = "CANCELLED"
	RunStatusFailed    = "FAILED"
)

// DeletionDB manages the SQLite database for deletion history
type DeletionDB struct {
	db  *sql.DB
	now func() time.Time
}

// DeletionRecord represents a single per-file decision
type DeletionRecord struct {
	ID            int64
	RunID         string
	Timestamp     time.Time
	Action        string
	Path          string
	FileName      string
	Size          int64
	ModTime       time.Time
	AgeDays       int
	RetentionDays int
	ErrorMessage  string
}

// RunRecord represents one invocation of the cleaner
type RunRecord struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    *time.Time
	BasePath      string
	RetentionDays int
	Recursive     bool
	DryRun        bool
	Candidates    int
	Deleted       int
	BytesFreed    int64
	Status        string
	ErrorMessage  string
}

// RunResult is what FinishRun stores about a completed run
type RunResult struct {
	Candidates int
	Deleted    int
	BytesFreed int64
	Status     string
	Err        error
}

// NewDeletionDB creates a new database connection and initializes schema
func NewDeletionDB(dbPath string) (*DeletionDB, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// _loc=auto enables automatic DATETIME parsing
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_loc=auto")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	// Exec instead of Ping so the file is created right away
	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize database (check permissions on %s): %w", dbPath, err)
	}

	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err = db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	ddb := &DeletionDB{db: db, now: time.Now}
	if err = ddb.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return ddb, nil
}

// initSchema creates tables and indexes if they don't exist
func (d *DeletionDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		base_path TEXT NOT NULL,
		retention_days INTEGER NOT NULL,
		recursive INTEGER NOT NULL,
		dry_run INTEGER NOT NULL,
		candidates INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		bytes_freed INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error_message TEXT
	);

	CREATE TABLE IF NOT EXISTS deletions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		timestamp DATETIME NOT NULL,
		action TEXT NOT NULL,
		path TEXT NOT NULL,
		file_name TEXT,
		size INTEGER NOT NULL,
		mtime DATETIME NOT NULL,
		age_days INTEGER NOT NULL,
		retention_days INTEGER NOT NULL,
		error_message TEXT,

		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_timestamp ON deletions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_action ON deletions(action);
	CREATE INDEX IF NOT EXISTS idx_path ON deletions(path);
	CREATE INDEX IF NOT EXISTS idx_run_id ON deletions(run_id);
	CREATE INDEX IF NOT EXISTS idx_size ON deletions(size);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	-- Metadata table for schema versioning
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := d.db.Exec(schema)
	return err
}

// BeginRun inserts a RUNNING row for a new invocation and returns its ID
func (d *DeletionDB) BeginRun(basePath string, retentionDays int, recursive, dryRun bool) (string, error) {
	id := uuid.NewString()
	_, err := d.db.Exec(`
	INSERT INTO runs (id, started_at, base_path, retention_days, recursive, dry_run, status)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, d.now().UTC(), basePath, retentionDays, recursive, dryRun, RunStatusRunning)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun stores the totals and final status of a run
func (d *DeletionDB) FinishRun(runID string, res RunResult) error {
	var errMsg sql.NullString
	if res.Err != nil {
		errMsg = sql.NullString{String: res.Err.Error(), Valid: true}
	}

	result, err := d.db.Exec(`
	UPDATE runs
	SET finished_at = ?, candidates = ?, deleted = ?, bytes_freed = ?, status = ?, error_message = ?
	WHERE id = ?
	`, d.now().UTC(), res.Candidates, res.Deleted, res.BytesFreed, res.Status, errMsg, runID)
	if err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update run %s: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// RecordDeletion inserts a per-file decision into the database
func (d *DeletionDB) RecordDeletion(
	runID string,
	action string,
	candidate scan.Candidate,
	retentionDays int,
	errorMsg string,
) error {
	now := d.now().UTC()

	var errMsg sql.NullString
	if errorMsg != "" {
		errMsg = sql.NullString{String: errorMsg, Valid: true}
	}

	query := `
	INSERT INTO deletions (
		run_id, timestamp, action, path, file_name, size,
		mtime, age_days, retention_days, error_message
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := d.db.Exec(
		query,
		runID,
		now,
		action,
		candidate.Path,
		filepath.Base(candidate.Path),
		candidate.Size,
		candidate.ModTime.UTC(),
		candidate.AgeDays(now),
		retentionDays,
		errMsg,
	)

	return err
}

// Close closes the database connection
func (d *DeletionDB) Close() error {
	return d.db.Close()
}

// Vacuum optimizes the database (run periodically)
func (d *DeletionDB) Vacuum() error {
	_, err := d.db.Exec("VACUUM")
	return err
}
