package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"sort"
	"time"
)

// Logger interface for scan progress and skipped entries
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
}

// FileSource produces the files to evaluate under a base directory.
type FileSource interface {
	Files(base string, recursive bool) iter.Seq2[string, error]
}

// Candidate is a file older than the retention cutoff.
type Candidate struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// AgeDays returns the whole days elapsed between the file's mtime and now.
func (c Candidate) AgeDays(now time.Time) int {
	return int(now.Sub(c.ModTime).Hours() / 24)
}

var ErrNegativeDays = errors.New("days cannot be negative")

// Collector selects deletion candidates from a FileSource.
type Collector struct {
	source FileSource
	logger Logger
	now    func() time.Time
}

// NewCollector creates a Collector reading files from source.
func NewCollector(source FileSource, logger Logger) *Collector {
	return &Collector{
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source used to compute the cutoff.
func (c *Collector) SetClock(now func() time.Time) {
	c.now = now
}

// Cutoff returns now minus days, in UTC.
func (c *Collector) Cutoff(days int) time.Time {
	return c.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
}

// Collect returns every file under base whose mtime is strictly before the
// cutoff, oldest first. The cutoff is computed once, before traversal.
//
// Files that vanish between listing and stat are skipped. Only a failure to
// read base itself, or an unclassified stat error, is returned.
func (c *Collector) Collect(base string, days int, recursive bool) ([]Candidate, error) {
	if days < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeDays, days)
	}

	cutoff := c.Cutoff(days)
	c.logger.Info("Buscando arquivos em %s (recursivo=%t) com modificação anterior a %s",
		base, recursive, cutoff.Format(time.RFC3339))

	candidates := make([]Candidate, 0)
	examined := 0

	for path, err := range c.source.Files(base, recursive) {
		if err != nil {
			return nil, fmt.Errorf("failed to scan path %s: %w", base, err)
		}
		examined++

		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if errors.Is(err, fs.ErrPermission) {
				c.logger.Warn("Sem permissão para ler %s", path)
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}

		mtime := info.ModTime().UTC()
		if !mtime.Before(cutoff) {
			continue
		}

		candidates = append(candidates, Candidate{
			Path:    path,
			Size:    info.Size(),
			ModTime: mtime,
		})
	}

	// Oldest first, ties broken by path.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ModTime.Equal(candidates[j].ModTime) {
			return candidates[i].Path < candidates[j].Path
		}
		return candidates[i].ModTime.Before(candidates[j].ModTime)
	})

	c.logger.Info("Varredura concluída: %d arquivo(s) examinado(s), %d candidato(s)", examined, len(candidates))

	return candidates, nil
}
