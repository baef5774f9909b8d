// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package orchestrator

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsOrchestrator holds Prometheus metrics for the pipeline orchestrator.
type metricsOrchestrator struct {
	once sync.Once

	documentsParsed      prometheus.Counter
	documentsFailed      prometheus.Counter
	documentsQuarantined prometheus.Counter
	archivesProcessed    prometheus.Counter
	archivesSkipped      prometheus.Counter
	stagingRows          prometheus.Counter

	parseDuration prometheus.Histogram
	mergeDuration prometheus.Histogram
	runDuration   prometheus.Histogram
}

var orchMetrics metricsOrchestrator

func (m *metricsOrchestrator) init() {
	m.once.Do(func() {
		m.documentsParsed = prometheus.NewCounter(prometheus.CounterOpts{Name: "spletl_orch_documents_parsed_total", Help: "SPL documents successfully parsed and transformed"})
		m.documentsFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "spletl_orch_documents_failed_total", Help: "SPL documents that failed parsing"})
		m.documentsQuarantined = prometheus.NewCounter(prometheus.CounterOpts{Name: "spletl_orch_documents_quarantined_total", Help: "Malformed documents moved to quarantine"})
		m.archivesProcessed = prometheus.NewCounter(prometheus.CounterOpts{Name: "spletl_orch_archives_processed_total", Help: "Archives merged into production this process lifetime"})
		m.archivesSkipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "spletl_orch_archives_skipped_total", Help: "Archives skipped because already present in the ledger"})
		m.stagingRows = prometheus.NewCounter(prometheus.CounterOpts{Name: "spletl_orch_staging_rows_total", Help: "Rows bulk-loaded into staging tables"})

		buckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
		m.parseDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "spletl_orch_parse_seconds", Help: "Duration of parse+transform+write per document", Buckets: buckets})
		m.mergeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "spletl_orch_merge_seconds", Help: "Duration of a staging+merge cycle", Buckets: buckets})
		m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "spletl_orch_run_seconds", Help: "Duration of a full orchestrator run", Buckets: buckets})

		prometheus.MustRegister(
			m.documentsParsed, m.documentsFailed, m.documentsQuarantined,
			m.archivesProcessed, m.archivesSkipped, m.stagingRows,
			m.parseDuration, m.mergeDuration, m.runDuration,
		)
	})
}
