// Package metrics exposes Prometheus instrumentation for import runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/rpattn/bulkimport/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bulkimport"

// Recorder collects import metrics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	rowsTotal    *prometheus.CounterVec
	jobsTotal    *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	jobsRunning  prometheus.Gauge
	stalledTotal prometheus.Counter
}

// New registers the import collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		rowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows processed by import jobs, by outcome.",
		}, []string{"importer", "outcome"}),
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Import jobs that reached a terminal status.",
		}, []string{"importer", "status"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of import jobs from start to completion.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"importer"}),
		jobsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Import jobs currently being processed by this instance.",
		}),
		stalledTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stalled_jobs_total",
			Help:      "Jobs marked as failed by the stall detector.",
		}),
	}
}

func (r *Recorder) RowProcessed(importer string, kind domain.OutcomeKind) {
	if r == nil {
		return
	}
	r.rowsTotal.WithLabelValues(importer, kind.String()).Inc()
}

func (r *Recorder) JobStarted() {
	if r == nil {
		return
	}
	r.jobsRunning.Inc()
}

// JobFinished must be paired with a prior JobStarted.
func (r *Recorder) JobFinished(importer string, status domain.ImportJobStatus, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.jobsRunning.Dec()
	r.jobsTotal.WithLabelValues(importer, string(status)).Inc()
	r.jobDuration.WithLabelValues(importer).Observe(elapsed.Seconds())
}

func (r *Recorder) StalledMarked(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.stalledTotal.Add(float64(count))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
