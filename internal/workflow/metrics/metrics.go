package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the workflow module.
// Tracks per-run durations and per-artifact outcome counts.
type Metrics struct {
	RunDuration      prometheus.Histogram
	ArtifactOutcomes *prometheus.CounterVec
	RegistryRetries  prometheus.Counter
	BatchPatients    prometheus.Counter
}

// New creates a Metrics instance with all workflow metrics registered.
func New() *Metrics {
	return &Metrics{
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartforge_run_duration_seconds",
			Help:    "Duration of full patient generation runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		ArtifactOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chartforge_artifact_outcomes_total",
			Help: "Artifact results by kind and outcome",
		}, []string{"kind", "outcome"}),
		RegistryRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chartforge_registry_conflict_retries_total",
			Help: "Persona registrations retried after a display-name conflict",
		}),
		BatchPatients: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chartforge_batch_patients_total",
			Help: "Patients processed through batch runs",
		}),
	}
}

// ObserveRun records the duration of one run.
// Call with time.Now() captured at the start of the run.
func (m *Metrics) ObserveRun(start time.Time) {
	m.RunDuration.Observe(time.Since(start).Seconds())
}

// IncArtifact records one artifact outcome.
func (m *Metrics) IncArtifact(kind, outcome string) {
	m.ArtifactOutcomes.WithLabelValues(kind, outcome).Inc()
}

// IncRegistryRetry records a conflict-triggered persona retry.
func (m *Metrics) IncRegistryRetry() {
	m.RegistryRetries.Inc()
}

// IncBatchPatient records one patient handled by a batch run.
func (m *Metrics) IncBatchPatient() {
	m.BatchPatients.Inc()
}
