package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const runColumns = `
	id, started_at, finished_at, roots, target_call, dry_run, status,
	scanned, succeeded, failed, modified, removed`

const fileColumns = `
	id, run_id, timestamp, action, root, path,
	removed, lines_removed, bytes_before, bytes_after, error_message`

// RecentRuns returns the N most recent runs
func (d *HistoryDB) RecentRuns(limit int) ([]RunRecord, error) {
	query := `SELECT ` + runColumns + `
	FROM runs
	ORDER BY started_at DESC, id DESC
	LIMIT ?
	`
	return d.queryRuns(query, limit)
}

// GetRun returns a single run by id
func (d *HistoryDB) GetRun(id int64) (*RunRecord, error) {
	runs, err := d.queryRuns(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("run %d: %w", id, sql.ErrNoRows)
	}
	return &runs[0], nil
}

// RunFiles returns the per-file results of a run in processing order
func (d *HistoryDB) RunFiles(runID int64) ([]FileRecord, error) {
	query := `SELECT ` + fileColumns + `
	FROM file_results
	WHERE run_id = ?
	ORDER BY id
	`
	return d.queryFiles(query, runID)
}

// FilesByPath returns file results matching a path pattern (SQL LIKE syntax)
func (d *HistoryDB) FilesByPath(pathPattern string) ([]FileRecord, error) {
	query := `SELECT ` + fileColumns + `
	FROM file_results
	WHERE path LIKE ?
	ORDER BY timestamp DESC, id DESC
	`
	return d.queryFiles(query, pathPattern)
}

// HistoryStats holds aggregated statistics
type HistoryStats struct {
	Runs              int
	CancelledRuns     int
	FilesProcessed    int
	FilesModified     int
	FilesFailed       int
	StatementsRemoved int
	ByAction          map[string]int
	DatabaseSizeBytes int64
	StartDate         time.Time
	EndDate           time.Time
}

// Stats returns statistics for runs started in the last days
func (d *HistoryDB) Stats(days int) (*HistoryStats, error) {
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -days)

	stats := &HistoryStats{
		StartDate: since,
		EndDate:   now,
		ByAction:  make(map[string]int),
	}

	err := d.db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN status = ? THEN 1 END)
		FROM runs
		WHERE started_at >= ?
	`, StatusCancelled, since).Scan(&stats.Runs, &stats.CancelledRuns)
	if err != nil {
		return nil, err
	}

	rows, err := d.db.Query(`
		SELECT f.action, COUNT(*), COALESCE(SUM(f.removed), 0)
		FROM file_results f
		JOIN runs r ON r.id = f.run_id
		WHERE r.started_at >= ?
		GROUP BY f.action
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var action string
		var count, removed int
		if err := rows.Scan(&action, &count, &removed); err != nil {
			return nil, err
		}
		stats.ByAction[action] = count
		stats.FilesProcessed += count
		stats.StatementsRemoved += removed
		switch action {
		case "MODIFIED":
			stats.FilesModified += count
		case "ERROR", "SKIP":
			stats.FilesFailed += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var pageCount, pageSize int64
	if err := d.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, err
	}
	stats.DatabaseSizeBytes = pageCount * pageSize

	return stats, nil
}

func (d *HistoryDB) queryRuns(query string, args ...interface{}) ([]RunRecord, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var finished sql.NullTime
		var roots string
		if err := rows.Scan(
			&r.ID, &r.StartedAt, &finished, &roots, &r.TargetCall, &r.DryRun, &r.Status,
			&r.Scanned, &r.Succeeded, &r.Failed, &r.Modified, &r.Removed,
		); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		if roots != "" {
			r.Roots = strings.Split(roots, "\n")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (d *HistoryDB) queryFiles(query string, args ...interface{}) ([]FileRecord, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		var f FileRecord
		var errMsg sql.NullString
		if err := rows.Scan(
			&f.ID, &f.RunID, &f.Timestamp, &f.Action, &f.Root, &f.Path,
			&f.Removed, &f.LinesRemoved, &f.BytesBefore, &f.BytesAfter, &errMsg,
		); err != nil {
			return nil, err
		}
		f.ErrorMessage = errMsg.String
		files = append(files, f)
	}
	return files, rows.Err()
}
