package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sweep run metrics
var (
	// FilesScannedTotal tracks files selected by the scanner
	FilesScannedTotal prometheus.Counter

	// FilesProcessedTotal tracks processed files by outcome action
	// (MODIFIED, UNCHANGED, DRY_RUN, SKIP, ERROR)
	FilesProcessedTotal *prometheus.CounterVec

	// StatementsRemovedTotal tracks removed call statements
	StatementsRemovedTotal prometheus.Counter

	// BytesRemovedTotal tracks how much smaller rewritten files became
	BytesRemovedTotal prometheus.Counter

	// RunDuration tracks how long complete runs take
	RunDuration prometheus.Histogram

	// LastRunTimestamp records Unix timestamp of the last finished run
	LastRunTimestamp prometheus.Gauge

	// RootFiles tracks candidate files per configured root in the last run
	RootFiles *prometheus.GaugeVec
)

func initSweepMetrics() {
	FilesScannedTotal = newCounter("files_scanned_total",
		"Total number of script files selected for processing.")
	FilesProcessedTotal = newCounterVec("files_processed_total",
		"Total number of processed files by outcome.", "action")
	StatementsRemovedTotal = newCounter("statements_removed_total",
		"Total number of call statements removed.")
	BytesRemovedTotal = newCounter("bytes_removed_total",
		"Total bytes removed from rewritten files.")
	RunDuration = newHistogram("run_duration_seconds",
		"Duration of complete runs in seconds.")
	LastRunTimestamp = newGauge("last_run_timestamp",
		"Timestamp of the last finished run (Unix epoch seconds).")
	RootFiles = newGaugeVec("root_files",
		"Candidate files found under each root in the last run.", "root")
}

func registerSweepMetrics() {
	Registry.MustRegister(FilesScannedTotal)
	Registry.MustRegister(FilesProcessedTotal)
	Registry.MustRegister(StatementsRemovedTotal)
	Registry.MustRegister(BytesRemovedTotal)
	Registry.MustRegister(RunDuration)
	Registry.MustRegister(LastRunTimestamp)
	Registry.MustRegister(RootFiles)
}

// RecordOutcome counts one processed file.
func RecordOutcome(action string, removed int, bytesRemoved int64) {
	Init()
	FilesProcessedTotal.WithLabelValues(action).Inc()
	StatementsRemovedTotal.Add(float64(removed))
	if bytesRemoved > 0 {
		BytesRemovedTotal.Add(float64(bytesRemoved))
	}
}

// RecordRootFiles sets the candidate count for a root.
func RecordRootFiles(root string, count int) {
	Init()
	RootFiles.WithLabelValues(root).Set(float64(count))
	FilesScannedTotal.Add(float64(count))
}

// RecordRun observes a finished run.
func RecordRun(elapsed time.Duration) {
	Init()
	RunDuration.Observe(elapsed.Seconds())
	LastRunTimestamp.Set(float64(time.Now().Unix()))
}
