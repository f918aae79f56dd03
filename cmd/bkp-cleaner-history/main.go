package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/database"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/exitcodes"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/sizefmt"
)

var (
	errNoMode  = errors.New("no query mode selected")
	errBadFlag = errors.New("invalid flag value")
)

// dateLayouts accepted by --since and --until
var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	logger := log.New(stderr, "", 0)

	fs := flag.NewFlagSet("bkp-cleaner-history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "/var/lib/bkp-cleaner/history.db", "Path to the deletion history database")
	recent := fs.Int("recent", 0, "Show N most recent decisions")
	stats := fs.Bool("stats", false, "Show deletion statistics")
	action := fs.String("action", "", "Filter by action (DELETE, DRY_RUN, SKIP_NOT_FOUND, PERMISSION_DENIED, ERROR)")
	pathPattern := fs.String("path", "", "Filter by path pattern (SQL LIKE syntax)")
	largest := fs.Int("largest", 0, "Show N largest deletions")
	runID := fs.String("run", "", "Show the decisions of one run")
	runs := fs.Int("runs", 0, "Show N most recent runs")
	days := fs.Int("days", 30, "Number of days for statistics")
	since := fs.String("since", "", "Show decisions recorded at or after this date (YYYY-MM-DD or RFC3339)")
	until := fs.String("until", "", "Show decisions recorded up to this date, inclusive (YYYY-MM-DD or RFC3339)")
	pruneDays := fs.Int("prune-days", -1, "Remove records older than N days and compact the database")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")
	if err := fs.Parse(args); err != nil {
		return exitcodes.Usage
	}

	db, err := database.NewDeletionDB(*dbPath)
	if err != nil {
		logger.Printf("ERROR: Failed to open database %s: %v", *dbPath, err)
		return exitcodes.InvalidConfig
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Printf("ERROR: Failed to close database: %v", err)
		}
	}()

	q := query{db: db, out: stdout, json: *jsonOutput}

	switch {
	case *pruneDays >= 0:
		err = q.prune(*pruneDays)
	case *since != "" || *until != "":
		err = q.dateRange(*since, *until)
	case *stats:
		err = q.stats(*days)
	case *recent > 0:
		err = q.recent(*recent)
	case *runs > 0:
		err = q.runs(*runs)
	case *runID != "":
		err = q.byRun(*runID)
	case *action != "":
		err = q.byAction(*action)
	case *pathPattern != "":
		err = q.byPath(*pathPattern)
	case *largest > 0:
		err = q.largest(*largest)
	default:
		err = errNoMode
	}

	if errors.Is(err, errNoMode) {
		fs.Usage()
		fmt.Fprintln(stderr, "\nExamples:")
		fmt.Fprintln(stderr, "  bkp-cleaner-history --recent 10              # Show 10 most recent decisions")
		fmt.Fprintln(stderr, "  bkp-cleaner-history --stats --days 7         # Show statistics for the last week")
		fmt.Fprintln(stderr, "  bkp-cleaner-history --runs 5                 # Show the last 5 runs")
		fmt.Fprintln(stderr, "  bkp-cleaner-history --action DELETE          # Show only deletions")
		fmt.Fprintln(stderr, "  bkp-cleaner-history --path '/srv/backups/%'  # Show decisions under /srv/backups")
		fmt.Fprintln(stderr, "  bkp-cleaner-history --largest 10             # Show 10 largest deletions")
		fmt.Fprintln(stderr, "  bkp-cleaner-history --since 2024-01-01       # Show decisions since a date")
		fmt.Fprintln(stderr, "  bkp-cleaner-history --prune-days 365         # Drop records older than a year")
		return exitcodes.Usage
	}
	if errors.Is(err, errBadFlag) {
		logger.Printf("ERROR: %v", err)
		return exitcodes.Usage
	}
	if err != nil {
		logger.Printf("ERROR: %v", err)
		return exitcodes.RuntimeError
	}
	return exitcodes.Success
}

type query struct {
	db   *database.DeletionDB
	out  io.Writer
	json bool
}

func (q query) emitJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = fmt.Fprintln(q.out, string(data))
	return err
}

func (q query) stats(days int) error {
	stats, err := q.db.GetDeletionStats(days)
	if err != nil {
		return fmt.Errorf("failed to get statistics: %w", err)
	}
	if q.json {
		return q.emitJSON(stats)
	}

	fmt.Fprintf(q.out, "Deletion Statistics (Last %d days)\n", days)
	fmt.Fprintf(q.out, "Period: %s to %s\n\n", stats.StartDate.Format("2006-01-02"), stats.EndDate.Format("2006-01-02"))
	fmt.Fprintf(q.out, "Runs:               %d\n", stats.Runs)
	fmt.Fprintf(q.out, "Total Deletions:    %d\n", stats.TotalDeletions)
	fmt.Fprintf(q.out, "Dry-run Reports:    %d\n", stats.TotalDryRun)
	fmt.Fprintf(q.out, "Skipped (Missing):  %d\n", stats.TotalSkippedNotFound)
	fmt.Fprintf(q.out, "Permission Denied:  %d\n", stats.TotalPermissionDenied)
	fmt.Fprintf(q.out, "Errors:             %d\n", stats.TotalErrors)
	fmt.Fprintf(q.out, "Space Freed:        %s\n", sizefmt.Format(stats.TotalSpaceFreed))

	if len(stats.ByAction) > 0 {
		actions := make([]string, 0, len(stats.ByAction))
		for a := range stats.ByAction {
			actions = append(actions, a)
		}
		sort.Strings(actions)

		fmt.Fprintln(q.out, "\nBy Action:")
		for _, a := range actions {
			fmt.Fprintf(q.out, "  %-18s %d\n", a, stats.ByAction[a])
		}
	}
	return nil
}

func (q query) prune(days int) error {
	removed, err := q.db.DeleteOldRecords(days)
	if err != nil {
		return fmt.Errorf("failed to prune records: %w", err)
	}
	if err := q.db.Vacuum(); err != nil {
		return fmt.Errorf("failed to compact database: %w", err)
	}
	if q.json {
		return q.emitJSON(map[string]any{"removed": removed, "older_than_days": days})
	}
	fmt.Fprintf(q.out, "Removed %d record(s) older than %d days\n", removed, days)
	return nil
}

func (q query) dateRange(since, until string) error {
	start := time.Time{}
	end := time.Now()
	var err error
	if since != "" {
		if start, _, err = parseDate(since); err != nil {
			return fmt.Errorf("%w: --since: %w", errBadFlag, err)
		}
	}
	if until != "" {
		var dateOnly bool
		if end, dateOnly, err = parseDate(until); err != nil {
			return fmt.Errorf("%w: --until: %w", errBadFlag, err)
		}
		if dateOnly {
			end = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
	}
	if end.Before(start) {
		return fmt.Errorf("%w: --until is before --since", errBadFlag)
	}

	records, err := q.db.GetDeletionsByDateRange(start, end)
	if err != nil {
		return fmt.Errorf("failed to query by date range: %w", err)
	}
	return q.records(fmt.Sprintf("Records from %s to %s",
		start.Format("2006-01-02 15:04:05"), end.Format("2006-01-02 15:04:05")), records)
}

// parseDate reads a local date or timestamp and reports whether it had no
// time of day.
func parseDate(s string) (time.Time, bool, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, layout == "2006-01-02", nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unrecognized date %q", s)
}

func (q query) recent(limit int) error {
	records, err := q.db.GetRecentDeletions(limit)
	if err != nil {
		return fmt.Errorf("failed to get recent decisions: %w", err)
	}
	return q.records("", records)
}

func (q query) byRun(runID string) error {
	records, err := q.db.GetDeletionsByRun(runID)
	if err != nil {
		return fmt.Errorf("failed to query run %s: %w", runID, err)
	}
	return q.records(fmt.Sprintf("Decisions of run %s", runID), records)
}

func (q query) byAction(action string) error {
	records, err := q.db.GetDeletionsByAction(action)
	if err != nil {
		return fmt.Errorf("failed to query by action: %w", err)
	}
	return q.records(fmt.Sprintf("Records with action: %s", action), records)
}

func (q query) byPath(pattern string) error {
	records, err := q.db.GetDeletionsByPath(pattern)
	if err != nil {
		return fmt.Errorf("failed to query by path: %w", err)
	}
	return q.records(fmt.Sprintf("Records matching path pattern: %s", pattern), records)
}

func (q query) largest(limit int) error {
	records, err := q.db.GetLargestDeletions(limit)
	if err != nil {
		return fmt.Errorf("failed to get largest deletions: %w", err)
	}
	return q.records(fmt.Sprintf("Largest %d deletions", limit), records)
}

func (q query) records(title string, records []database.DeletionRecord) error {
	if q.json {
		return q.emitJSON(records)
	}
	if title != "" {
		fmt.Fprintf(q.out, "%s\n\n", title)
	}
	if len(records) == 0 {
		fmt.Fprintln(q.out, "No records found")
		return nil
	}

	w := tabwriter.NewWriter(q.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTimestamp\tAction\tAge\tSize\tPath")
	_, _ = fmt.Fprintln(w, "--\t---------\t------\t---\t----\t----")
	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%dd\t%s\t%s\n",
			r.ID, r.Timestamp.Format("2006-01-02 15:04:05"), r.Action, r.AgeDays, sizefmt.Format(r.Size), r.Path)
	}
	return w.Flush()
}

func (q query) runs(limit int) error {
	runs, err := q.db.GetRecentRuns(limit)
	if err != nil {
		return fmt.Errorf("failed to get recent runs: %w", err)
	}
	if q.json {
		return q.emitJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(q.out, "No runs found")
		return nil
	}

	w := tabwriter.NewWriter(q.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "Run\tStarted\tStatus\tDays\tDry-run\tCandidates\tDeleted\tFreed\tPath")
	_, _ = fmt.Fprintln(w, "---\t-------\t------\t----\t-------\t----------\t-------\t-----\t----")
	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\t%d\t%d\t%s\t%s\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Status, r.RetentionDays, r.DryRun,
			r.Candidates, r.Deleted, sizefmt.Format(r.BytesFreed), r.BasePath)
	}
	return w.Flush()
}
