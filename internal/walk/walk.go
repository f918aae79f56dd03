// Package walk enumerates the regular files below a backup directory.
//
// Traversal is lazy: files are produced one at a time through a range-over-func
// iterator, so memory is bounded by what the caller keeps, not by the tree.
package walk

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// Logger receives non-fatal traversal problems.
type Logger interface {
	Warn(format string, args ...any)
}

const defaultBatchSize = 256

var errStop = errors.New("walk stopped by consumer")

// Walker produces file sequences. The zero value is not usable; call New.
type Walker struct {
	logger    Logger
	batchSize int
}

// New creates a Walker that reports skipped subdirectories to logger.
func New(logger Logger) *Walker {
	return &Walker{logger: logger, batchSize: defaultBatchSize}
}

// Files returns the regular files under base. Without recursive only the
// direct children of base are produced. Each call starts a fresh traversal.
//
// Unreadable or vanished subdirectories are skipped with a warning. A failure
// to read base itself is yielded as the final element with a non-nil error.
func (w *Walker) Files(base string, recursive bool) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if recursive {
			w.walkTree(base, yield)
			return
		}
		w.walkDir(base, yield)
	}
}

func (w *Walker) walkDir(base string, yield func(string, error) bool) {
	dir, err := os.Open(base)
	if err != nil {
		yield("", fmt.Errorf("open %s: %w", base, err))
		return
	}
	defer dir.Close()

	for {
		entries, err := dir.ReadDir(w.batchSize)
		for _, entry := range entries {
			path := filepath.Join(base, entry.Name())
			if !isRegular(path, entry) {
				continue
			}
			if !yield(path, nil) {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				yield("", fmt.Errorf("read %s: %w", base, err))
			}
			return
		}
	}
}

func (w *Walker) walkTree(base string, yield func(string, error) bool) {
	// A trailing separator makes WalkDir follow a symlinked base.
	root := base
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Only a file that vanished is skipped silently.
			if d == nil || d.IsDir() || !errors.Is(err, fs.ErrNotExist) {
				w.logger.Warn("Ignorando %s: %v", path, err)
			}
			return nil
		}
		if d.IsDir() || !isRegular(path, d) {
			return nil
		}
		if !yield(path, nil) {
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		yield("", fmt.Errorf("walk %s: %w", base, err))
	}
}

// isRegular accepts regular files and symlinks that resolve to one.
func isRegular(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
