package cleanup

import (
	"errors"
	"fmt"

	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/database"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/fsops"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/limiter"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/metrics"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/safety"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/scan"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/sizefmt"
)

// ErrUnexpectedDeletion wraps any removal error that is neither a missing
// file nor a permission problem.
var ErrUnexpectedDeletion = errors.New("unexpected deletion failure")

// ErrTargetRefused wraps a safety refusal of a single candidate.
var ErrTargetRefused = errors.New("deletion target refused")

// CleanupLogger interface for leveled logging in cleanup
type CleanupLogger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Result aggregates the outcomes of a cleanup pass
type Result struct {
	Candidates       int
	CandidateBytes   int64
	Deleted          int
	BytesFreed       int64
	SkippedNotFound  int
	PermissionDenied int
}

// Cleaner removes candidates one at a time, oldest first
type Cleaner struct {
	logger   CleanupLogger
	deleter  fsops.Deleter
	metrics  *metrics.Recorder
	throttle *limiter.Throttle

	base  string
	guard *safety.Guard

	db            *database.DeletionDB
	runID         string
	retentionDays int
}

// NewCleaner creates a Cleaner that removes files from the local filesystem
func NewCleaner(logger CleanupLogger) *Cleaner {
	return &Cleaner{
		logger:  logger,
		deleter: fsops.OSDeleter{},
	}
}

// SetDeleter replaces the filesystem deleter
func (c *Cleaner) SetDeleter(d fsops.Deleter) {
	c.deleter = d
}

// SetMetrics attaches a metrics recorder
func (c *Cleaner) SetMetrics(m *metrics.Recorder) {
	c.metrics = m
}

// SetThrottle limits the removal rate
func (c *Cleaner) SetThrottle(t *limiter.Throttle) {
	c.throttle = t
}

// SetScope makes every removal re-check that its target lies below base and
// is not protected by guard
func (c *Cleaner) SetScope(base string, guard *safety.Guard) {
	c.base = base
	c.guard = guard
}

// SetHistory records every decision under runID in db
func (c *Cleaner) SetHistory(db *database.DeletionDB, runID string, retentionDays int) {
	c.db = db
	c.runID = runID
	c.retentionDays = retentionDays
}

// Delete removes candidates in order. Missing files and permission errors are
// logged and skipped; any other error stops the pass and is returned with the
// partial Result. With a scope set, a candidate refused by the guard stops the
// pass before it is touched.
func (c *Cleaner) Delete(candidates []scan.Candidate) (Result, error) {
	res := newResult(candidates)

	for _, cand := range candidates {
		if err := c.authorize(cand.Path); err != nil {
			c.logger.Error("ALVO RECUSADO, abortando: %s (%v)", cand.Path, err)
			c.record(database.ActionError, metrics.OutcomeFailed, cand, err)
			return res, fmt.Errorf("%w: %w", ErrTargetRefused, err)
		}

		c.throttle.Wait()

		err := c.deleter.Remove(cand.Path)
		outcome := Classify(err)

		switch outcome {
		case Deleted:
			res.Deleted++
			res.BytesFreed += cand.Size
			c.logger.Info("DELETE: %s (%s)", cand.Path, sizefmt.Format(cand.Size))
		case SkippedNotFound:
			res.SkippedNotFound++
			c.logger.Warn("SKIP (NOT FOUND): %s", cand.Path)
		case PermissionDenied:
			res.PermissionDenied++
			c.logger.Error("PERMISSION DENIED: %s", cand.Path)
		default:
			c.logger.Error("ERRO INESPERADO ao remover %s: %v", cand.Path, err)
		}

		c.record(outcome.action(), outcome.metricLabel(), cand, err)

		if outcome == Failed {
			return res, fmt.Errorf("%w: %s: %w", ErrUnexpectedDeletion, cand.Path, err)
		}
	}

	return res, nil
}

// Report logs what Delete would remove without touching the filesystem
func (c *Cleaner) Report(candidates []scan.Candidate) Result {
	res := newResult(candidates)

	for _, cand := range candidates {
		c.logger.Info("DRY-RUN: %s (%s)", cand.Path, sizefmt.Format(cand.Size))
		c.record(database.ActionDryRun, metrics.OutcomeDryRun, cand, nil)
	}

	return res
}

func (c *Cleaner) authorize(path string) error {
	if c.guard == nil {
		return nil
	}
	return c.guard.CheckTarget(c.base, path)
}

func newResult(candidates []scan.Candidate) Result {
	res := Result{Candidates: len(candidates)}
	for _, cand := range candidates {
		res.CandidateBytes += cand.Size
	}
	return res
}

func (c *Cleaner) record(action, label string, cand scan.Candidate, cause error) {
	if c.metrics != nil {
		c.metrics.RecordOutcome(label, cand.Size)
	}

	if c.db == nil {
		return
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	// History is best effort; a failing database never stops a cleanup.
	if err := c.db.RecordDeletion(c.runID, action, cand, c.retentionDays, msg); err != nil {
		c.logger.Error("Falha ao registrar %s no histórico: %v", cand.Path, err)
	}
}
