// Package observability provides observability utilities
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// EventsTotal tracks trigger events received by the coordinator
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridci_events_total",
			Help: "Total number of trigger events received",
		},
		[]string{"type", "matched"}, // matched: true, false
	)

	// RunsTotal tracks the total number of job runs by outcome
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridci_runs_total",
			Help: "Total number of job runs",
		},
		[]string{"workflow", "job", "status"}, // status: succeeded, failed, canceled, skipped
	)

	// RunDuration measures job run duration in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridci_run_duration_seconds",
			Help:    "Job run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
		},
		[]string{"workflow", "job", "status"},
	)

	// RunsActive tracks the number of currently executing runs
	RunsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridci_runs_active",
			Help: "Number of currently executing job runs",
		},
		[]string{"workflow", "worker"},
	)

	// StepsTotal counts executed steps by outcome
	StepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridci_steps_total",
			Help: "Total number of executed steps",
		},
		[]string{"workflow", "job", "status"},
	)

	// ServiceStartupDuration measures service container startup-to-ready time
	ServiceStartupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridci_service_startup_seconds",
			Help:    "Service container startup-to-ready time",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
		},
		[]string{"service"},
	)

	// ScheduledTicksTotal counts cron schedule firings
	ScheduledTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridci_scheduled_ticks_total",
			Help: "Total number of cron schedule firings",
		},
		[]string{"workflow"},
	)

	// ErrorsTotal counts internal errors by component
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridci_errors_total",
			Help: "Total number of internal errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordEvent records a received trigger event
func RecordEvent(eventType string, matched bool) {
	m := "false"
	if matched {
		m = "true"
	}
	EventsTotal.WithLabelValues(eventType, m).Inc()
}

// RecordRunComplete records a finished run with its duration
func RecordRunComplete(workflowName, job, status string, seconds float64) {
	RunsTotal.WithLabelValues(workflowName, job, status).Inc()
	RunDuration.WithLabelValues(workflowName, job, status).Observe(seconds)
}

// RecordRunStart marks a run as active
func RecordRunStart(workflowName, worker string) {
	RunsActive.WithLabelValues(workflowName, worker).Inc()
}

// RecordRunEnd marks a run as no longer active
func RecordRunEnd(workflowName, worker string) {
	RunsActive.WithLabelValues(workflowName, worker).Dec()
}

// RecordStep records one executed step
func RecordStep(workflowName, job, status string) {
	StepsTotal.WithLabelValues(workflowName, job, status).Inc()
}

// RecordServiceStartup records service container startup-to-ready time
func RecordServiceStartup(service string, seconds float64) {
	ServiceStartupDuration.WithLabelValues(service).Observe(seconds)
}

// RecordScheduledTick records a cron firing for a workflow
func RecordScheduledTick(workflowName string) {
	ScheduledTicksTotal.WithLabelValues(workflowName).Inc()
}

// RecordError records an internal error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
