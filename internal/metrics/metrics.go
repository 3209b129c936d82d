package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the ingestion protocol and ledger.
type Metrics struct {
	Reservations         *prometheus.CounterVec // albumshare_reservations_total{media_type,result}
	Completions          *prometheus.CounterVec // albumshare_completions_total{result}
	Retirements          *prometheus.CounterVec // albumshare_retirements_total{result}
	ObjectDeleteFailures prometheus.Counter     // albumshare_object_delete_failures_total

	BytesCharged  prometheus.Counter // albumshare_ledger_bytes_charged_total
	BytesReleased prometheus.Counter // albumshare_ledger_bytes_released_total

	ReconcileRuns  *prometheus.CounterVec // albumshare_reconcile_runs_total{result}
	ReconcileDrift prometheus.Histogram   // albumshare_reconcile_drift_bytes
}

// New registers all collectors on registry. A nil registry means the
// default registerer.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	f := promauto.With(registry)

	return &Metrics{
		Reservations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "albumshare_reservations_total",
			Help: "Upload reservations by media type and result",
		}, []string{"media_type", "result"}),

		Completions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "albumshare_completions_total",
			Help: "Upload completions by result",
		}, []string{"result"}),

		Retirements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "albumshare_retirements_total",
			Help: "Media deletions by result",
		}, []string{"result"}),

		ObjectDeleteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "albumshare_object_delete_failures_total",
			Help: "Object store deletions that failed and left an orphan object",
		}),

		BytesCharged: f.NewCounter(prometheus.CounterOpts{
			Name: "albumshare_ledger_bytes_charged_total",
			Help: "Bytes added to user ledgers on completion",
		}),

		BytesReleased: f.NewCounter(prometheus.CounterOpts{
			Name: "albumshare_ledger_bytes_released_total",
			Help: "Bytes removed from user ledgers on deletion",
		}),

		ReconcileRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "albumshare_reconcile_runs_total",
			Help: "Per-user ledger reconciliations by result",
		}, []string{"result"}),

		ReconcileDrift: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "albumshare_reconcile_drift_bytes",
			Help:    "Absolute ledger drift corrected by reconciliation",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}),
	}
}

func (m *Metrics) RecordReservation(mediaType, result string) {
	m.Reservations.WithLabelValues(mediaType, result).Inc()
}

func (m *Metrics) RecordCompletion(result string, bytes int64) {
	m.Completions.WithLabelValues(result).Inc()
	if bytes > 0 {
		m.BytesCharged.Add(float64(bytes))
	}
}

func (m *Metrics) RecordRetirement(result string, bytes int64) {
	m.Retirements.WithLabelValues(result).Inc()
	if bytes > 0 {
		m.BytesReleased.Add(float64(bytes))
	}
}

// RecordReconcile observes the signed drift as an absolute value.
func (m *Metrics) RecordReconcile(result string, drift int64) {
	m.ReconcileRuns.WithLabelValues(result).Inc()
	if result != "ok" {
		return
	}
	if drift < 0 {
		drift = -drift
	}
	m.ReconcileDrift.Observe(float64(drift))
}

// Handler exposes gatherer over HTTP.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
