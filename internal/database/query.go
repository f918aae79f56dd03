package database

import (
	"database/sql"
	"time"
)

const deletionColumns = `id, run_id, timestamp, action, path, file_name, size,
	       mtime, age_days, retention_days, error_message`

// GetRecentDeletions returns the N most recent per-file decisions
func (d *DeletionDB) GetRecentDeletions(limit int) ([]DeletionRecord, error) {
	query := `
	SELECT ` + deletionColumns + `
	FROM deletions
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`

	return d.queryDeletions(query, limit)
}

// GetDeletionsByRun returns every decision made by one run, in order
func (d *DeletionDB) GetDeletionsByRun(runID string) ([]DeletionRecord, error) {
	query := `
	SELECT ` + deletionColumns + `
	FROM deletions
	WHERE run_id = ?
	ORDER BY id ASC
	`

	return d.queryDeletions(query, runID)
}

// GetDeletionsByDateRange returns decisions within a time range
func (d *DeletionDB) GetDeletionsByDateRange(start, end time.Time) ([]DeletionRecord, error) {
	query := `
	SELECT ` + deletionColumns + `
	FROM deletions
	WHERE timestamp BETWEEN ? AND ?
	ORDER BY timestamp DESC, id DESC
	`

	return d.queryDeletions(query, start.UTC(), end.UTC())
}

// GetDeletionsByPath returns decisions matching a path pattern (SQL LIKE)
func (d *DeletionDB) GetDeletionsByPath(pathPattern string) ([]DeletionRecord, error) {
	query := `
	SELECT ` + deletionColumns + `
	FROM deletions
	WHERE path LIKE ?
	ORDER BY timestamp DESC, id DESC
	`

	return d.queryDeletions(query, pathPattern)
}

// GetDeletionsByAction returns decisions filtered by action type
func (d *DeletionDB) GetDeletionsByAction(action string) ([]DeletionRecord, error) {
	query := `
	SELECT ` + deletionColumns + `
	FROM deletions
	WHERE action = ?
	ORDER BY timestamp DESC, id DESC
	`

	return d.queryDeletions(query, action)
}

// GetLargestDeletions returns the N largest deleted files
func (d *DeletionDB) GetLargestDeletions(limit int) ([]DeletionRecord, error) {
	query := `
	SELECT ` + deletionColumns + `
	FROM deletions
	WHERE action = 'DELETE'
	ORDER BY size DESC
	LIMIT ?
	`

	return d.queryDeletions(query, limit)
}

// GetTotalSpaceFreed returns total bytes freed in a time range
func (d *DeletionDB) GetTotalSpaceFreed(start, end time.Time) (int64, error) {
	query := `
	SELECT COALESCE(SUM(size), 0)
	FROM deletions
	WHERE action = 'DELETE' AND timestamp BETWEEN ? AND ?
	`

	var total int64
	err := d.db.QueryRow(query, start.UTC(), end.UTC()).Scan(&total)
	return total, err
}

// GetDeletionCountByAction returns count of decisions grouped by action since a time
func (d *DeletionDB) GetDeletionCountByAction(since time.Time) (map[string]int, error) {
	query := `
	SELECT action, COUNT(*)
	FROM deletions
	WHERE timestamp >= ?
	GROUP BY action
	`

	rows, err := d.db.Query(query, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		counts[action] = count
	}

	return counts, rows.Err()
}

// DeletionStats holds aggregated statistics
type DeletionStats struct {
	Runs                  int
	TotalDeletions        int
	TotalDryRun           int
	TotalSkippedNotFound  int
	TotalPermissionDenied int
	TotalErrors           int
	TotalSpaceFreed       int64
	ByAction              map[string]int
	StartDate             time.Time
	EndDate               time.Time
}

// GetDeletionStats returns comprehensive statistics for the last N days
func (d *DeletionDB) GetDeletionStats(days int) (*DeletionStats, error) {
	now := d.now()
	since := now.AddDate(0, 0, -days)

	stats := &DeletionStats{
		StartDate: since,
		EndDate:   now,
	}

	err := d.db.QueryRow(`SELECT COUNT(*) FROM runs WHERE started_at >= ?`, since.UTC()).Scan(&stats.Runs)
	if err != nil {
		return nil, err
	}

	stats.ByAction, err = d.GetDeletionCountByAction(since)
	if err != nil {
		return nil, err
	}
	stats.TotalDeletions = stats.ByAction[ActionDelete]
	stats.TotalDryRun = stats.ByAction[ActionDryRun]
	stats.TotalSkippedNotFound = stats.ByAction[ActionSkipNotFound]
	stats.TotalPermissionDenied = stats.ByAction[ActionPermissionDenied]
	stats.TotalErrors = stats.ByAction[ActionError]

	stats.TotalSpaceFreed, err = d.GetTotalSpaceFreed(since, now)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// GetRecentRuns returns the N most recent runs
func (d *DeletionDB) GetRecentRuns(limit int) ([]RunRecord, error) {
	rows, err := d.db.Query(`
	SELECT id, started_at, finished_at, base_path, retention_days, recursive, dry_run,
	       candidates, deleted, bytes_freed, status, error_message
	FROM runs
	ORDER BY started_at DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var finished sql.NullTime
		var errMsg sql.NullString

		err := rows.Scan(
			&r.ID, &r.StartedAt, &finished, &r.BasePath, &r.RetentionDays,
			&r.Recursive, &r.DryRun, &r.Candidates, &r.Deleted, &r.BytesFreed,
			&r.Status, &errMsg,
		)
		if err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		if errMsg.Valid {
			r.ErrorMessage = errMsg.String
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// DeleteOldRecords removes records older than specified days
func (d *DeletionDB) DeleteOldRecords(olderThanDays int) (int64, error) {
	cutoff := d.now().AddDate(0, 0, -olderThanDays).UTC()

	result, err := d.db.Exec(`
		DELETE FROM deletions WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	_, err = d.db.Exec(`
		DELETE FROM runs
		WHERE started_at < ? AND id NOT IN (SELECT DISTINCT run_id FROM deletions)
	`, cutoff)
	return removed, err
}

// queryDeletions is a helper function to execute queries and scan results
func (d *DeletionDB) queryDeletions(query string, args ...interface{}) ([]DeletionRecord, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []DeletionRecord
	for rows.Next() {
		var r DeletionRecord
		var fileName, errMsg sql.NullString

		err := rows.Scan(
			&r.ID, &r.RunID, &r.Timestamp, &r.Action, &r.Path, &fileName,
			&r.Size, &r.ModTime, &r.AgeDays, &r.RetentionDays, &errMsg,
		)
		if err != nil {
			return nil, err
		}

		if fileName.Valid {
			r.FileName = fileName.String
		}
		if errMsg.Valid {
			r.ErrorMessage = errMsg.String
		}

		records = append(records, r)
	}

	return records, rows.Err()
}
