package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Run statuses
const (
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusCancelled = "CANCELLED"
	StatusFailed    = "FAILED"
)

// HistoryDB manages the SQLite database of runs and per-file results
type HistoryDB struct {
	db *sql.DB
}

// RunInfo describes a run when it starts.
type RunInfo struct {
	Roots      []string
	TargetCall string
	DryRun     bool
}

// RunTotals are the counters stored when a run finishes.
type RunTotals struct {
	Scanned   int
	Succeeded int
	Failed    int
	Modified  int
	Removed   int
}

// RunRecord represents one stored run
type RunRecord struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	Roots      []string
	TargetCall string
	DryRun     bool
	Status     string
	RunTotals
}

// FileRecord represents the outcome for one file within a run
type FileRecord struct {
	ID           int64
	RunID        int64
	Timestamp    time.Time
	Action       string
	Root         string
	Path         string
	Removed      int
	LinesRemoved int
	BytesBefore  int64
	BytesAfter   int64
	ErrorMessage string
}

// NewHistoryDB creates a new database connection and initializes schema
func NewHistoryDB(dbPath string) (*HistoryDB, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
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

	// a query instead of Ping() so the file is created right away
	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize database (check permissions on %s): %w", dbPath, err)
	}

	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err = db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	hdb := &HistoryDB{db: db}
	if err = hdb.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return hdb, nil
}

// initSchema creates tables and indexes if they don't exist
func (d *HistoryDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		roots TEXT NOT NULL,
		target_call TEXT NOT NULL,
		dry_run INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,

		scanned INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		modified INTEGER NOT NULL DEFAULT 0,
		removed INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS file_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id),
		timestamp DATETIME NOT NULL,
		action TEXT NOT NULL,
		root TEXT NOT NULL,
		path TEXT NOT NULL,
		removed INTEGER NOT NULL DEFAULT 0,
		lines_removed INTEGER NOT NULL DEFAULT 0,
		bytes_before INTEGER NOT NULL DEFAULT 0,
		bytes_after INTEGER NOT NULL DEFAULT 0,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_files_run_id ON file_results(run_id);
	CREATE INDEX IF NOT EXISTS idx_files_path ON file_results(path);
	CREATE INDEX IF NOT EXISTS idx_files_action ON file_results(action);

	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := d.db.Exec(schema)
	return err
}

// StartRun inserts a RUNNING run and returns its id
func (d *HistoryDB) StartRun(info RunInfo) (int64, error) {
	res, err := d.db.Exec(
		`INSERT INTO runs (started_at, roots, target_call, dry_run, status) VALUES (?, ?, ?, ?, ?)`,
		time.Now().UTC(),
		strings.Join(info.Roots, "\n"),
		info.TargetCall,
		info.DryRun,
		StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

// RecordFile inserts the outcome for one file
func (d *HistoryDB) RecordFile(runID int64, rec FileRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var errMsg sql.NullString
	if rec.ErrorMessage != "" {
		errMsg = sql.NullString{String: rec.ErrorMessage, Valid: true}
	}

	_, err := d.db.Exec(`
	INSERT INTO file_results (
		run_id, timestamp, action, root, path,
		removed, lines_removed, bytes_before, bytes_after, error_message
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		ts,
		rec.Action,
		rec.Root,
		rec.Path,
		rec.Removed,
		rec.LinesRemoved,
		rec.BytesBefore,
		rec.BytesAfter,
		errMsg,
	)
	return err
}

// FinishRun stores the run totals and final status
func (d *HistoryDB) FinishRun(runID int64, totals RunTotals, status string) error {
	res, err := d.db.Exec(`
	UPDATE runs
	SET finished_at = ?, status = ?,
	    scanned = ?, succeeded = ?, failed = ?, modified = ?, removed = ?
	WHERE id = ?
	`,
		time.Now().UTC(),
		status,
		totals.Scanned,
		totals.Succeeded,
		totals.Failed,
		totals.Modified,
		totals.Removed,
		runID,
	)
	if err != nil {
		return fmt.Errorf("update run %d: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update run %d: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// Close closes the database connection
func (d *HistoryDB) Close() error {
	return d.db.Close()
}

// Vacuum checkpoints the WAL into the main file and rebuilds it to reclaim
// free pages.
func (d *HistoryDB) Vacuum() error {
	if _, err := d.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if _, err := d.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}
