// Package runner drives a single cleaner invocation: validate the target,
// collect candidates, then report, confirm or delete.
package runner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/cleanup"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/database"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/disk"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/exitcodes"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/fsops"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/limiter"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/metrics"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/safety"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/scan"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/sizefmt"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/walk"
)

var (
	ErrUsage       = errors.New("usage error")
	ErrInvalidPath = errors.New("path does not exist or is not a directory")
)

// Logger is the leveled logger shared by every stage of a run
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Options are the per-invocation settings
type Options struct {
	Path      string
	Days      int
	DryRun    bool
	Force     bool
	Recursive bool
}

// Summary describes what a run found and did
type Summary struct {
	Candidates       int
	CandidateBytes   int64
	Deleted          int
	BytesFreed       int64
	SkippedNotFound  int
	PermissionDenied int
	DryRun           bool
	Declined         bool
	// Disk is the target filesystem after the run, nil when unavailable
	Disk *disk.Usage
}

type Runner struct {
	logger    Logger
	guard     *safety.Guard
	collector *scan.Collector
	cleaner   *cleanup.Cleaner
	confirmer Confirmer
	metrics   *metrics.Recorder

	db          *database.DeletionDB
	metricsFile string
}

// New wires a Runner over the local filesystem. Confirmation prompts go to
// stdout and read stdin.
func New(logger Logger, guard *safety.Guard) *Runner {
	rec := metrics.New()
	cleaner := cleanup.NewCleaner(logger)
	cleaner.SetMetrics(rec)

	return &Runner{
		logger:    logger,
		guard:     guard,
		collector: scan.NewCollector(walk.New(logger), logger),
		cleaner:   cleaner,
		confirmer: NewTerminalConfirmer(os.Stdin, os.Stdout),
		metrics:   rec,
	}
}

func (r *Runner) SetConfirmer(c Confirmer) {
	r.confirmer = c
}

// SetHistory records runs and per-file decisions in db
func (r *Runner) SetHistory(db *database.DeletionDB) {
	r.db = db
}

// SetMetricsFile writes the run metrics to path when the run ends
func (r *Runner) SetMetricsFile(path string) {
	r.metricsFile = path
}

func (r *Runner) SetThrottle(t *limiter.Throttle) {
	r.cleaner.SetThrottle(t)
}

func (r *Runner) SetDeleter(d fsops.Deleter) {
	r.cleaner.SetDeleter(d)
}

func (r *Runner) SetClock(now func() time.Time) {
	r.collector.SetClock(now)
}

// Metrics exposes the run metrics
func (r *Runner) Metrics() *metrics.Recorder {
	return r.metrics
}

// Run executes one cleanup. Validation failures return before any scan.
// A declined confirmation is not an error.
func (r *Runner) Run(opts Options) (sum Summary, err error) {
	start := time.Now()
	sum.DryRun = opts.DryRun

	base, err := r.validate(opts)
	if err != nil {
		r.finish(start, "", "", opts, &sum, err)
		return sum, err
	}

	r.cleaner.SetScope(base, r.guard)
	runID := r.beginHistory(base, opts)
	defer func() {
		r.finish(start, base, runID, opts, &sum, err)
	}()

	candidates, err := r.collector.Collect(base, opts.Days, opts.Recursive)
	if err != nil {
		r.logger.Error("Falha ao varrer %s: %v", base, err)
		return sum, err
	}

	sum.Candidates = len(candidates)
	for _, c := range candidates {
		sum.CandidateBytes += c.Size
	}
	r.metrics.RecordCandidates(sum.Candidates, sum.CandidateBytes)
	r.logger.Info("%d arquivo(s) elegível(is) para remoção (%s)", sum.Candidates, sizefmt.Format(sum.CandidateBytes))

	if len(candidates) == 0 {
		r.logger.Info("Nada a remover em %s", base)
		r.logger.Info("Resumo: 0 arquivo(s) removido(s), %s liberado(s)", sizefmt.Format(0))
		return sum, nil
	}

	if opts.DryRun {
		r.cleaner.Report(candidates)
		r.logger.Info("Resumo (DRY-RUN): %d arquivo(s) seriam removido(s), %s seriam liberado(s)",
			sum.Candidates, sizefmt.Format(sum.CandidateBytes))
		return sum, nil
	}

	if !opts.Force && !r.confirmer.Confirm(sum.Candidates, sum.CandidateBytes) {
		r.logger.Info("Operação cancelada pelo usuário")
		sum.Declined = true
		return sum, nil
	}

	res, err := r.cleaner.Delete(candidates)
	sum.Deleted = res.Deleted
	sum.BytesFreed = res.BytesFreed
	sum.SkippedNotFound = res.SkippedNotFound
	sum.PermissionDenied = res.PermissionDenied

	r.logger.Info("Resumo: %d arquivo(s) removido(s), %s liberado(s)", sum.Deleted, sizefmt.Format(sum.BytesFreed))
	if sum.SkippedNotFound > 0 || sum.PermissionDenied > 0 {
		r.logger.Warn("%d arquivo(s) não encontrado(s), %d sem permissão", sum.SkippedNotFound, sum.PermissionDenied)
	}
	return sum, err
}

func (r *Runner) validate(opts Options) (string, error) {
	if opts.Path == "" {
		return "", fmt.Errorf("%w: --path is required", ErrUsage)
	}
	if opts.Days < 0 {
		return "", fmt.Errorf("%w: --days must be >= 0, got %d", ErrUsage, opts.Days)
	}

	base := filepath.Clean(opts.Path)
	info, err := os.Stat(base)
	if err != nil || !info.IsDir() {
		r.logger.Error("Path inválido (não existe ou não é diretório): %s", opts.Path)
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, opts.Path)
	}

	if err := r.guard.Check(base); err != nil {
		r.logger.Error("Path perigoso, abortando: %s", base)
		return "", err
	}

	r.logger.Info("Iniciando limpeza de %s: retenção=%d dia(s), recursivo=%t, dry-run=%t",
		base, opts.Days, opts.Recursive, opts.DryRun)
	return base, nil
}

func (r *Runner) beginHistory(base string, opts Options) string {
	if r.db == nil {
		return ""
	}
	runID, err := r.db.BeginRun(base, opts.Days, opts.Recursive, opts.DryRun)
	if err != nil {
		r.logger.Error("Falha ao registrar execução no histórico: %v", err)
		return ""
	}
	r.cleaner.SetHistory(r.db, runID, opts.Days)
	return runID
}

// finish records disk usage, history and metrics. None of it changes the
// outcome of the run.
func (r *Runner) finish(start time.Time, base, runID string, opts Options, sum *Summary, runErr error) {
	if base != "" {
		if usage, err := disk.GetUsage(base); err == nil {
			sum.Disk = &usage
			r.metrics.RecordDisk(usage.FreeBytes, usage.TotalBytes)
			r.logger.Info("Espaço livre em %s: %s de %s (%.1f%%)", base,
				sizefmt.Format(usage.FreeBytes), sizefmt.Format(usage.TotalBytes), usage.FreePercent())
		} else {
			r.logger.Warn("Não foi possível obter o espaço livre de %s: %v", base, err)
		}
	}

	if runID != "" {
		status := database.RunStatusSuccess
		switch {
		case runErr != nil:
			status = database.RunStatusFailed
		case sum.Declined:
			status = database.RunStatusCancelled
		}
		err := r.db.FinishRun(runID, database.RunResult{
			Candidates: sum.Candidates,
			Deleted:    sum.Deleted,
			BytesFreed: sum.BytesFreed,
			Status:     status,
			Err:        runErr,
		})
		if err != nil {
			r.logger.Error("Falha ao finalizar execução no histórico: %v", err)
		}
	}

	r.metrics.RecordRun(start, opts.DryRun, runErr == nil)
	if r.metricsFile != "" {
		if err := r.metrics.WriteTextfile(r.metricsFile); err != nil {
			r.logger.Error("Falha ao gravar métricas: %v", err)
		}
	}
}

// ExitCode maps the error returned by Run to a process exit code
func ExitCode(err error) int {
	switch {
	case err == nil:
		return exitcodes.Success
	case errors.Is(err, ErrUsage), errors.Is(err, scan.ErrNegativeDays):
		return exitcodes.Usage
	case errors.Is(err, ErrInvalidPath):
		return exitcodes.InvalidPath
	case errors.Is(err, safety.ErrDangerousPath), errors.Is(err, safety.ErrOutsideBase):
		return exitcodes.SafetyViolation
	default:
		return exitcodes.RuntimeError
	}
}
