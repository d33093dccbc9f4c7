package metrics

import (
	"time"

	"github.com/compose-network/rollup-job-handler/internal/rollup"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rollup_job_handler"

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics collects job, driver and registry metrics.
type Metrics struct {
	jobsTotal     *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobsInFlight  prometheus.Gauge
	driverRetries *prometheus.CounterVec
	rollups       *prometheus.GaugeVec
}

// New registers every metric into reg.
func New(reg prometheus.Registerer) *Metrics {
	jobs := NewComponentRegistry(reg, namespace, "jobs")
	drv := NewComponentRegistry(reg, namespace, "driver")
	registry := NewComponentRegistry(reg, namespace, "registry")

	return &Metrics{
		jobsTotal: jobs.NewCounterVec(prometheus.CounterOpts{
			Name: "total",
			Help: "Job calls handled by kind and outcome",
		}, []string{"kind", "outcome"}),
		jobDuration: jobs.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "duration_seconds",
			Help:    "Time spent handling a job call",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"kind"}),
		jobsInFlight: jobs.NewGauge(prometheus.GaugeOpts{
			Name: "in_flight",
			Help: "Job calls currently being handled",
		}),
		driverRetries: drv.NewCounterVec(prometheus.CounterOpts{
			Name: "retries_total",
			Help: "Container operation retries after transient failures",
		}, []string{"op"}),
		rollups: registry.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rollups",
			Help: "Registered rollups by lifecycle status",
		}, []string{"status"}),
	}
}

func (m *Metrics) JobStarted() {
	m.jobsInFlight.Inc()
}

func (m *Metrics) JobFinished(kind string, success bool, took time.Duration) {
	outcome := OutcomeFailure
	if success {
		outcome = OutcomeSuccess
	}

	m.jobsInFlight.Dec()
	m.jobsTotal.WithLabelValues(kind, outcome).Inc()
	m.jobDuration.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *Metrics) ObserveRetry(op string) {
	m.driverRetries.WithLabelValues(op).Inc()
}

// RecordRollups publishes how many rollups sit in each status.
func (m *Metrics) RecordRollups(records []rollup.Record) {
	counts := map[rollup.Status]int{
		rollup.StatusCreated:  0,
		rollup.StatusStarting: 0,
		rollup.StatusActive:   0,
		rollup.StatusStopping: 0,
		rollup.StatusInactive: 0,
		rollup.StatusFailed:   0,
	}
	for _, r := range records {
		counts[r.State.Status]++
	}
	for status, n := range counts {
		m.rollups.WithLabelValues(string(status)).Set(float64(n))
	}
}
