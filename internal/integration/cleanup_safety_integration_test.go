package integration

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/logging"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/runner"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/safety"
)

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte("backup content"), 0o644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	mtime := time.Now().Add(-age)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("Failed to set mtime: %v", err)
	}
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// TestCleanupSafetyIntegration verifies the complete safety contract with a real filesystem
func TestCleanupSafetyIntegration(t *testing.T) {
	day := 24 * time.Hour

	// 1. Create temporary filesystem structure
	tmpRoot := t.TempDir()
	backups := filepath.Join(tmpRoot, "backups")
	outside := filepath.Join(tmpRoot, "outside")

	oldTop := filepath.Join(backups, "full-2024-01.tar.gz")
	newTop := filepath.Join(backups, "full-today.tar.gz")
	oldNested := filepath.Join(backups, "incremental", "inc-2024-01.tar.gz")
	protectedFile := filepath.Join(outside, "keep.txt")
	link := filepath.Join(backups, "link_to_outside")

	setup := func(t *testing.T) {
		writeAged(t, oldTop, 90*day)
		writeAged(t, newTop, time.Hour)
		writeAged(t, oldNested, 90*day)
		writeAged(t, protectedFile, 90*day)
		_ = os.Remove(link)
		if err := os.Symlink(protectedFile, link); err != nil {
			t.Fatalf("Failed to create symlink: %v", err)
		}
		mtime := time.Now().Add(-90 * day)
		_ = os.Chtimes(link, mtime, mtime)
	}

	newRunner := func(buf *bytes.Buffer, protected ...string) *runner.Runner {
		r := runner.New(logging.NewWriter(buf), safety.NewGuard(protected))
		r.SetConfirmer(runner.ConfirmFunc(func(int, int64) bool {
			t.Error("confirmation must not be requested")
			return false
		}))
		return r
	}

	// 2a. DRY-RUN: Assert no deletions occur
	t.Run("DryRun_NoFilesystemChanges", func(t *testing.T) {
		setup(t)
		var buf bytes.Buffer

		sum, err := newRunner(&buf).Run(runner.Options{Path: backups, Days: 30, DryRun: true, Recursive: true})
		if err != nil {
			t.Fatalf("DryRun failed: %v", err)
		}
		if sum.Candidates != 3 {
			t.Errorf("Expected 3 candidates, got %d:\n%s", sum.Candidates, buf.String())
		}
		for _, p := range []string{oldTop, newTop, oldNested, protectedFile, link} {
			if !exists(p) {
				t.Errorf("DRY-RUN VIOLATION: %s was deleted", p)
			}
		}
	})

	// 2b. Non-recursive: only top-level files are considered
	t.Run("NonRecursive_SkipsSubdirectories", func(t *testing.T) {
		setup(t)
		var buf bytes.Buffer

		sum, err := newRunner(&buf).Run(runner.Options{Path: backups, Days: 30, Force: true})
		if err != nil {
			t.Fatalf("Cleanup failed: %v", err)
		}
		if sum.Deleted != 2 {
			t.Errorf("Expected 2 deletions, got %d:\n%s", sum.Deleted, buf.String())
		}
		if exists(oldTop) {
			t.Error("expired top-level file should have been deleted")
		}
		if !exists(oldNested) {
			t.Error("nested file must be kept without --recursive")
		}
		if !exists(newTop) {
			t.Error("recent file must be kept")
		}
	})

	// 2c. Recursive: nested files go, directories and link targets stay
	t.Run("Recursive_KeepsDirectoriesAndLinkTargets", func(t *testing.T) {
		setup(t)
		var buf bytes.Buffer

		sum, err := newRunner(&buf).Run(runner.Options{Path: backups, Days: 30, Force: true, Recursive: true})
		if err != nil {
			t.Fatalf("Cleanup failed: %v", err)
		}
		if sum.Deleted != 3 {
			t.Errorf("Expected 3 deletions, got %d:\n%s", sum.Deleted, buf.String())
		}
		if exists(oldNested) {
			t.Error("expired nested file should have been deleted")
		}
		if !exists(filepath.Dir(oldNested)) {
			t.Error("directories are never removed")
		}
		if exists(link) {
			t.Error("expired symlink should have been removed")
		}
		if !exists(protectedFile) {
			t.Error("CRITICAL SAFETY VIOLATION: symlink target outside the backup dir was deleted")
		}
	})

	// 3. PROTECTED PATHS: the guard stops the run before any scan
	t.Run("ProtectedPaths_Blocked", func(t *testing.T) {
		setup(t)
		var buf bytes.Buffer

		_, err := newRunner(&buf, backups).Run(runner.Options{Path: backups + "/", Days: 0, Force: true, Recursive: true})
		if !errors.Is(err, safety.ErrDangerousPath) {
			t.Fatalf("Expected ErrDangerousPath, got %v", err)
		}
		if !exists(oldTop) || !exists(newTop) {
			t.Error("SAFETY VIOLATION: files deleted under a protected path")
		}
		if strings.Contains(buf.String(), "DELETE:") {
			t.Errorf("SAFETY VIOLATION: DELETE logged:\n%s", buf.String())
		}

		guard := safety.NewGuard(nil)
		for _, p := range []string{"/", "/etc", "/home", "/root", "/var", "/srv"} {
			if !guard.IsDangerous(p) {
				t.Errorf("SAFETY VIOLATION: %s not flagged", p)
			}
		}
	})
}

// TestCleanupMetrics verifies metrics are recorded correctly
func TestCleanupMetrics(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "backups")
	testFile := filepath.Join(tmpDir, "metric_test.tar.gz")
	writeAged(t, testFile, 10*24*time.Hour)

	var buf bytes.Buffer
	r := runner.New(logging.NewWriter(&buf), safety.NewGuard(nil))

	sum, err := r.Run(runner.Options{Path: tmpDir, Days: 1, Force: true})
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	size := int64(len("backup content"))
	if sum.Deleted != 1 || sum.BytesFreed != size {
		t.Errorf("Unexpected summary: %+v", sum)
	}

	m := r.Metrics()
	if got := testutil.ToFloat64(m.FilesDeletedTotal); got != 1 {
		t.Errorf("Expected 1 deleted file in metrics, got %v", got)
	}
	if got := testutil.ToFloat64(m.BytesFreedTotal); got != float64(size) {
		t.Errorf("Expected %d bytes freed in metrics, got %v", size, got)
	}
	if got := testutil.ToFloat64(m.LastRunSuccess); got != 1 {
		t.Errorf("Expected last run success, got %v", got)
	}
}
