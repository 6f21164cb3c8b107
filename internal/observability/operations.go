package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Tracker counts and times named operations: period closes and background jobs.
// A nil Tracker is valid and records nothing.
type Tracker struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewTracker registers the operation collectors on registerer.
func NewTracker(registerer prometheus.Registerer) *Tracker {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_operations_total",
		Help: "Operation executions by name and outcome.",
	}, []string{"operation", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_operation_failures_total",
		Help: "Failed operation executions by name.",
	}, []string{"operation"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockledger_operation_duration_seconds",
		Help:    "Operation duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	registerer.MustRegister(runs, failures, duration)
	return &Tracker{runs: runs, failures: failures, duration: duration}
}

// Run is one in-flight operation.
type Run struct {
	tracker *Tracker
	name    string
	start   time.Time
}

// Track starts timing name.
func (t *Tracker) Track(name string) *Run {
	return &Run{tracker: t, name: name, start: time.Now()}
}

// End records the outcome and returns err untouched.
func (r *Run) End(err error) error {
	if r == nil || r.tracker == nil || r.name == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		r.tracker.failures.WithLabelValues(r.name).Inc()
	}
	r.tracker.runs.WithLabelValues(r.name, status).Inc()
	r.tracker.duration.WithLabelValues(r.name).Observe(time.Since(r.start).Seconds())
	return err
}
