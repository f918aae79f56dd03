package cleanup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/database"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/fsops"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/metrics"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/safety"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/scan"
)

// recordingLogger keeps every line with its level
type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) Info(format string, args ...any) {
	l.lines = append(l.lines, "INFO "+fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Warn(format string, args ...any) {
	l.lines = append(l.lines, "WARNING "+fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Error(format string, args ...any) {
	l.lines = append(l.lines, "ERROR "+fmt.Sprintf(format, args...))
}

func (l *recordingLogger) contains(s string) bool {
	for _, line := range l.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func makeCandidates(t *testing.T, dir string, sizes ...int) []scan.Candidate {
	t.Helper()
	var out []scan.Candidate
	for i, size := range sizes {
		p := filepath.Join(dir, fmt.Sprintf("backup-%02d.tar.gz", i))
		if err := os.WriteFile(p, make([]byte, size), 0o644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}
		out = append(out, scan.Candidate{
			Path:    p,
			Size:    int64(size),
			ModTime: time.Now().AddDate(0, 0, -40-i),
		})
	}
	return out
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, Deleted},
		{"not exist", fs.ErrNotExist, SkippedNotFound},
		{"path error ENOENT", &fs.PathError{Op: "remove", Path: "/x", Err: syscall.ENOENT}, SkippedNotFound},
		{"permission", fs.ErrPermission, PermissionDenied},
		{"path error EACCES", &fs.PathError{Op: "remove", Path: "/x", Err: syscall.EACCES}, PermissionDenied},
		{"path error EPERM", &fs.PathError{Op: "remove", Path: "/x", Err: syscall.EPERM}, PermissionDenied},
		{"io error", &fs.PathError{Op: "remove", Path: "/x", Err: syscall.EIO}, Failed},
		{"not empty", &fs.PathError{Op: "remove", Path: "/x", Err: syscall.ENOTEMPTY}, Failed},
		{"other", errors.New("disk on fire"), Failed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, expected %s", tt.err, got, tt.want)
			}
		})
	}
}

// TestDeleteRemovesFiles verifies real deletions and the DELETE log line
func TestDeleteRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	candidates := makeCandidates(t, dir, 1536, 10)
	log := &recordingLogger{}
	rec := metrics.New()

	cleaner := NewCleaner(log)
	cleaner.SetMetrics(rec)

	res, err := cleaner.Delete(candidates)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if res.Deleted != 2 || res.BytesFreed != 1546 {
		t.Errorf("Unexpected result: %+v", res)
	}
	for _, c := range candidates {
		if _, err := os.Stat(c.Path); !os.IsNotExist(err) {
			t.Errorf("%s still exists", c.Path)
		}
	}
	if !log.contains("INFO DELETE: " + candidates[0].Path + " (1.50 KB)") {
		t.Errorf("DELETE line missing: %v", log.lines)
	}
	if got := testutil.ToFloat64(rec.FilesDeletedTotal); got != 2 {
		t.Errorf("Expected 2 deleted in metrics, got %v", got)
	}
}

// TestDeleteSkipsVanishedFile verifies a lost race is a warning, not an error
func TestDeleteSkipsVanishedFile(t *testing.T) {
	dir := t.TempDir()
	candidates := makeCandidates(t, dir, 10, 20, 30)
	if err := os.Remove(candidates[1].Path); err != nil {
		t.Fatal(err)
	}
	log := &recordingLogger{}

	res, err := NewCleaner(log).Delete(candidates)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if res.Deleted != 2 || res.SkippedNotFound != 1 || res.BytesFreed != 40 {
		t.Errorf("Unexpected result: %+v", res)
	}
	if !log.contains("WARNING SKIP (NOT FOUND): " + candidates[1].Path) {
		t.Errorf("SKIP line missing: %v", log.lines)
	}
}

// TestDeletePermissionDeniedContinues verifies permission errors do not stop the run
func TestDeletePermissionDeniedContinues(t *testing.T) {
	dir := t.TempDir()
	candidates := makeCandidates(t, dir, 1, 2, 3)
	fake := &fsops.FakeDeleter{Errors: map[string]error{
		candidates[0].Path: &fs.PathError{Op: "remove", Path: candidates[0].Path, Err: syscall.EACCES},
	}}
	log := &recordingLogger{}

	cleaner := NewCleaner(log)
	cleaner.SetDeleter(fake)

	res, err := cleaner.Delete(candidates)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if len(fake.Calls) != 3 {
		t.Errorf("Expected 3 delete calls, got %d", len(fake.Calls))
	}
	if res.Deleted != 2 || res.PermissionDenied != 1 {
		t.Errorf("Unexpected result: %+v", res)
	}
	if !log.contains("ERROR PERMISSION DENIED: " + candidates[0].Path) {
		t.Errorf("PERMISSION DENIED line missing: %v", log.lines)
	}
}

// TestDeleteReadOnlyDirectory exercises a real EACCES from the filesystem
func TestDeleteReadOnlyDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	dir := t.TempDir()
	candidates := makeCandidates(t, dir, 5)
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	res, err := NewCleaner(&recordingLogger{}).Delete(candidates)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if res.PermissionDenied != 1 || res.Deleted != 0 {
		t.Errorf("Unexpected result: %+v", res)
	}
	if _, err := os.Stat(candidates[0].Path); err != nil {
		t.Errorf("file should still exist: %v", err)
	}
}

// TestDeleteStopsOnUnexpectedError verifies fail-fast on unknown errors
func TestDeleteStopsOnUnexpectedError(t *testing.T) {
	dir := t.TempDir()
	candidates := makeCandidates(t, dir, 1, 2, 3)
	ioErr := &fs.PathError{Op: "remove", Path: candidates[1].Path, Err: syscall.EIO}
	fake := &fsops.FakeDeleter{Errors: map[string]error{candidates[1].Path: ioErr}}
	rec := metrics.New()

	cleaner := NewCleaner(&recordingLogger{})
	cleaner.SetDeleter(fake)
	cleaner.SetMetrics(rec)

	res, err := cleaner.Delete(candidates)
	if !errors.Is(err, ErrUnexpectedDeletion) {
		t.Fatalf("Expected ErrUnexpectedDeletion, got %v", err)
	}
	if !errors.Is(err, syscall.EIO) {
		t.Errorf("Expected the cause to be preserved, got %v", err)
	}

	if len(fake.Calls) != 2 {
		t.Errorf("Expected deletion to stop after 2 calls, got %v", fake.Calls)
	}
	if res.Deleted != 1 {
		t.Errorf("Expected 1 deletion before the failure, got %d", res.Deleted)
	}
	if got := testutil.ToFloat64(rec.OutcomesTotal.WithLabelValues(metrics.OutcomeFailed)); got != 1 {
		t.Errorf("Expected 1 failed outcome, got %v", got)
	}
}

// TestDryRunNeverDeletes proves the dry-run contract:
// Report must never call the deleter nor log a DELETE line
func TestDryRunNeverDeletes(t *testing.T) {
	dir := t.TempDir()
	candidates := makeCandidates(t, dir, 100, 200)
	fake := &fsops.FakeDeleter{}
	log := &recordingLogger{}

	cleaner := NewCleaner(log)
	cleaner.SetDeleter(fake)

	res := cleaner.Report(candidates)

	if len(fake.Calls) != 0 {
		t.Errorf("DRY-RUN VIOLATION: Expected 0 delete calls, got %d: %v", len(fake.Calls), fake.Calls)
	}
	if res.Deleted != 0 || res.BytesFreed != 0 {
		t.Errorf("Expected nothing deleted, got %+v", res)
	}
	if res.Candidates != 2 || res.CandidateBytes != 300 {
		t.Errorf("Unexpected candidate totals: %+v", res)
	}
	if log.contains("DELETE:") {
		t.Errorf("DRY-RUN VIOLATION: DELETE line logged: %v", log.lines)
	}
	if !log.contains("INFO DRY-RUN: " + candidates[0].Path) {
		t.Errorf("DRY-RUN line missing: %v", log.lines)
	}
}

// TestHistoryRecordsOutcomes verifies every decision lands in the database
func TestHistoryRecordsOutcomes(t *testing.T) {
	dir := t.TempDir()
	candidates := makeCandidates(t, dir, 10, 20, 30)
	if err := os.Remove(candidates[2].Path); err != nil {
		t.Fatal(err)
	}

	db, err := database.NewDeletionDB(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	runID, err := db.BeginRun(dir, 30, false, false)
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	cleaner := NewCleaner(&recordingLogger{})
	cleaner.SetHistory(db, runID, 30)

	if _, err := cleaner.Delete(candidates); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	records, err := db.GetDeletionsByRun(runID)
	if err != nil {
		t.Fatalf("GetDeletionsByRun failed: %v", err)
	}
	want := []string{database.ActionDelete, database.ActionDelete, database.ActionSkipNotFound}
	if len(records) != len(want) {
		t.Fatalf("Expected %d records, got %d", len(want), len(records))
	}
	for i, action := range want {
		if records[i].Action != action {
			t.Errorf("record %d: expected %s, got %s", i, action, records[i].Action)
		}
		if records[i].RetentionDays != 30 {
			t.Errorf("record %d: expected retention 30, got %d", i, records[i].RetentionDays)
		}
	}
	if records[2].ErrorMessage == "" {
		t.Error("Expected error message on the skipped record")
	}
}

// TestHistoryFailureIsNotFatal verifies a closed database only logs
func TestHistoryFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	candidates := makeCandidates(t, dir, 10)

	db, err := database.NewDeletionDB(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	db.Close()

	log := &recordingLogger{}
	cleaner := NewCleaner(log)
	cleaner.SetHistory(db, "run", 30)

	res, err := cleaner.Delete(candidates)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if res.Deleted != 1 {
		t.Errorf("Expected 1 deletion, got %d", res.Deleted)
	}
	if !log.contains("histórico") {
		t.Errorf("Expected history failure to be logged: %v", log.lines)
	}
}

// TestDeleteRefusesTargetOutsideBase verifies the per-file safety gate:
// a forged candidate outside the scanned directory is never removed
func TestDeleteRefusesTargetOutsideBase(t *testing.T) {
	base := t.TempDir()
	inside := makeCandidates(t, base, 10)
	forged := makeCandidates(t, t.TempDir(), 20)
	candidates := append(inside, forged[0], inside[0])

	fake := &fsops.FakeDeleter{}
	rec := metrics.New()
	log := &recordingLogger{}

	cleaner := NewCleaner(log)
	cleaner.SetDeleter(fake)
	cleaner.SetMetrics(rec)
	cleaner.SetScope(base, safety.NewGuard(nil))

	res, err := cleaner.Delete(candidates)
	if !errors.Is(err, ErrTargetRefused) || !errors.Is(err, safety.ErrOutsideBase) {
		t.Fatalf("Expected refusal with ErrOutsideBase, got %v", err)
	}

	want := []string{"rm:" + inside[0].Path}
	if len(fake.Calls) != 1 || fake.Calls[0] != want[0] {
		t.Errorf("SAFETY VIOLATION: expected calls %v, got %v", want, fake.Calls)
	}
	if res.Deleted != 1 {
		t.Errorf("Expected 1 deletion before the refusal, got %d", res.Deleted)
	}
	if got := testutil.ToFloat64(rec.OutcomesTotal.WithLabelValues(metrics.OutcomeFailed)); got != 1 {
		t.Errorf("Expected 1 failed outcome, got %v", got)
	}
	if !log.contains("ERROR ALVO RECUSADO, abortando: " + forged[0].Path) {
		t.Errorf("Refusal line missing: %v", log.lines)
	}
}

// TestDeleteRefusesProtectedTarget verifies a protected file below base is kept
func TestDeleteRefusesProtectedTarget(t *testing.T) {
	base := t.TempDir()
	candidates := makeCandidates(t, base, 10)
	fake := &fsops.FakeDeleter{}

	cleaner := NewCleaner(&recordingLogger{})
	cleaner.SetDeleter(fake)
	cleaner.SetScope(base, safety.NewGuard([]string{candidates[0].Path}))

	_, err := cleaner.Delete(candidates)
	if !errors.Is(err, safety.ErrDangerousPath) {
		t.Fatalf("Expected ErrDangerousPath, got %v", err)
	}
	if len(fake.Calls) != 0 {
		t.Errorf("SAFETY VIOLATION: protected file removed: %v", fake.Calls)
	}
}

// TestDeleteWithinScope verifies legitimate candidates pass the gate
func TestDeleteWithinScope(t *testing.T) {
	base := t.TempDir()
	candidates := makeCandidates(t, base, 10, 20)

	cleaner := NewCleaner(&recordingLogger{})
	cleaner.SetScope(base, safety.NewGuard(nil))

	res, err := cleaner.Delete(candidates)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if res.Deleted != 2 {
		t.Errorf("Expected 2 deletions, got %d", res.Deleted)
	}
}
