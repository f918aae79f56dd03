// Package metrics holds the Prometheus metrics of a single cleaner run.
//
// The cleaner is a batch job, so metrics are collected in a private registry
// and written once to a node_exporter textfile instead of being served.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bkpcleaner"

// Recorder owns the registry and every metric of one run.
type Recorder struct {
	registry *prometheus.Registry

	// Cleanup metrics
	FilesDeletedTotal prometheus.Counter
	BytesFreedTotal   prometheus.Counter
	OutcomesTotal     *prometheus.CounterVec
	DeletedFileSize   prometheus.Histogram

	// Scan metrics
	Candidates     prometheus.Gauge
	CandidateBytes prometheus.Gauge

	// Run metrics
	RunDuration      prometheus.Histogram
	LastRunTimestamp prometheus.Gauge
	LastRunSuccess   prometheus.Gauge
	DryRun           prometheus.Gauge

	// Target filesystem
	FreeBytes  prometheus.Gauge
	TotalBytes prometheus.Gauge
}

// New creates a Recorder with all metrics registered in a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
	}
	r.initCleanupMetrics()

	r.RunDuration = NewDurationHistogram(
		"run_duration_seconds",
		"Duration of the cleaner run in seconds.",
	)
	r.LastRunTimestamp = NewGauge(
		"last_run_timestamp_seconds",
		"Unix timestamp of the end of the last run.",
	)
	r.LastRunSuccess = NewGauge(
		"last_run_success",
		"1 if the last run finished without error, 0 otherwise.",
	)
	r.DryRun = NewGauge(
		"dry_run",
		"1 if the last run was a dry run.",
	)
	r.FreeBytes = NewGauge(
		"filesystem_free_bytes",
		"Free bytes on the filesystem holding the target directory after the run.",
	)
	r.TotalBytes = NewGauge(
		"filesystem_total_bytes",
		"Capacity of the filesystem holding the target directory.",
	)

	r.registry.MustRegister(
		r.RunDuration,
		r.LastRunTimestamp,
		r.LastRunSuccess,
		r.DryRun,
		r.FreeBytes,
		r.TotalBytes,
	)
	return r
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RecordRun stores the duration and result of the run ending now.
func (r *Recorder) RecordRun(start time.Time, dryRun bool, success bool) {
	r.RunDuration.Observe(time.Since(start).Seconds())
	r.LastRunTimestamp.Set(float64(time.Now().Unix()))
	r.DryRun.Set(boolToFloat(dryRun))
	r.LastRunSuccess.Set(boolToFloat(success))
}

// RecordDisk stores the capacity figures of the target filesystem.
func (r *Recorder) RecordDisk(freeBytes, totalBytes int64) {
	r.FreeBytes.Set(float64(freeBytes))
	r.TotalBytes.Set(float64(totalBytes))
}

// WriteTextfile writes the registry to path atomically, in the format read by
// node_exporter's textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
