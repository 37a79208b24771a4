package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dspacekit"

var (
	Registry = prometheus.NewRegistry()

	// HarvestedRecords counts OAI records by what happened to them:
	// created, updated, deleted, skipped or failed.
	HarvestedRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "records_total",
			Help:      "OAI-PMH records processed, by outcome.",
		},
		[]string{"outcome"},
	)

	// InvalidRecords counts records stored as workspace items because they
	// failed validation.
	InvalidRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "invalid_records_total",
			Help:      "Harvested records that failed validation.",
		},
	)

	HarvestRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "runs_total",
			Help:      "Collection harvests, by final status.",
		},
		[]string{"status"},
	)

	HarvestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "duration_seconds",
			Help:      "Wall time of a collection harvest.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	DOIOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "doi",
			Name:      "operations_total",
			Help:      "DOI agency operations, by action and outcome.",
		},
		[]string{"action", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		HarvestedRecords,
		InvalidRecords,
		HarvestRuns,
		HarvestDuration,
		DOIOperations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// Outcome renders an error as a metric label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
