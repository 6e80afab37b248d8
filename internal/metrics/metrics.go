// Package metrics exposes pipeline counters and latencies to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docxingest_http_requests_total",
	Help: "Total number of API requests labelled by route and status",
}, []string{"route", "status"})

var payloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docxingest_payloads_total",
	Help: "Payloads that reached a terminal outcome, labelled by outcome",
}, []string{"outcome"})

var batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "docxingest_batches_total",
	Help: "Batch runs labelled by result",
}, []string{"result"})

var activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "docxingest_active_workers",
	Help: "Payloads currently being processed",
})

var ledgerEntries = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "docxingest_ledger_entries",
	Help: "Committed content hashes in the ledger",
})

var stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "docxingest_stage_duration_seconds",
	Help:    "Time spent per pipeline stage.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30, 60},
}, []string{"stage"})

var batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "docxingest_batch_duration_seconds",
	Help:    "Wall time of a batch run.",
	Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
})

// RecordPayload counts one terminal payload outcome.
func RecordPayload(outcome string) {
	payloadsTotal.WithLabelValues(outcome).Inc()
}

// RecordBatch counts one finished batch and its duration.
func RecordBatch(result string, elapsed time.Duration) {
	batchesTotal.WithLabelValues(result).Inc()
	batchDuration.Observe(elapsed.Seconds())
}

// CaptureStage observes how long a stage took.
func CaptureStage(stage string, elapsed time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func IncrementActiveWorkers() { activeWorkers.Inc() }

func DecrementActiveWorkers() { activeWorkers.Dec() }

// SetLedgerEntries publishes the current ledger size.
func SetLedgerEntries(n int64) {
	ledgerEntries.Set(float64(n))
}
