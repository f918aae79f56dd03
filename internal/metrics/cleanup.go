package metrics

// Outcome label values
const (
	OutcomeDeleted          = "deleted"
	OutcomeSkippedNotFound  = "skipped_not_found"
	OutcomePermissionDenied = "permission_denied"
	OutcomeFailed           = "failed"
	OutcomeDryRun           = "dry_run"
)

// initCleanupMetrics initializes and registers the per-file metrics
func (r *Recorder) initCleanupMetrics() {
	r.FilesDeletedTotal = NewCounter(
		"files_deleted_total",
		"Total number of files deleted.",
	)
	r.BytesFreedTotal = NewCounter(
		"bytes_freed_total",
		"Total bytes freed by deleted files.",
	)
	r.OutcomesTotal = NewCounterVec(
		"outcomes_total",
		"Per-file outcomes, by outcome.",
		[]string{"outcome"},
	)
	r.DeletedFileSize = NewBytesHistogram(
		"deleted_file_size_bytes",
		"Size distribution of deleted files.",
	)
	r.Candidates = NewGauge(
		"candidates",
		"Number of files older than the retention cutoff found by the scan.",
	)
	r.CandidateBytes = NewGauge(
		"candidate_bytes",
		"Total size of the candidates found by the scan.",
	)

	r.registry.MustRegister(
		r.FilesDeletedTotal,
		r.BytesFreedTotal,
		r.OutcomesTotal,
		r.DeletedFileSize,
		r.Candidates,
		r.CandidateBytes,
	)
}

// RecordCandidates stores the result of the scan.
func (r *Recorder) RecordCandidates(count int, bytes int64) {
	r.Candidates.Set(float64(count))
	r.CandidateBytes.Set(float64(bytes))
}

// RecordOutcome counts one per-file decision. Only deletions add to the
// deleted and freed totals.
func (r *Recorder) RecordOutcome(outcome string, size int64) {
	r.OutcomesTotal.WithLabelValues(outcome).Inc()
	if outcome != OutcomeDeleted {
		return
	}
	r.FilesDeletedTotal.Inc()
	r.BytesFreedTotal.Add(float64(size))
	r.DeletedFileSize.Observe(float64(size))
}
