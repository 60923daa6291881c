// Package metrics provides Prometheus metrics for the dose safety engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	WatchdogRuns          prometheus.Counter
	WatchdogRunDuration   prometheus.Histogram
	WatchdogCandidates    prometheus.Counter
	WatchdogSkipped       *prometheus.CounterVec
	AlertsDispatched      prometheus.Counter
	AlertsFailed          prometheus.Counter
	AlertLogWriteFailures prometheus.Counter
	AlertsPublished       prometheus.Counter
	RemindersSent         prometheus.Counter
	RemindersFailed       prometheus.Counter
	RemindersSpoken       prometheus.Counter
	InteractionChecks     prometheus.Counter
	InteractionFindings   *prometheus.CounterVec
	HTTPRequests          *prometheus.CounterVec
	HTTPDuration          *prometheus.HistogramVec
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates all metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		WatchdogRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchdog_runs_total",
			Help: "Total missed-dose watchdog passes",
		}),
		WatchdogRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "watchdog_run_duration_seconds",
			Help:    "Missed-dose watchdog pass duration",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		WatchdogCandidates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchdog_candidates_total",
			Help: "Late doses considered for a caregiver alert",
		}),
		WatchdogSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchdog_candidates_skipped_total",
			Help: "Late doses skipped by the watchdog",
		}, []string{"reason"}),
		AlertsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "caregiver_alerts_dispatched_total",
			Help: "Caregiver alerts delivered",
		}),
		AlertsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "caregiver_alerts_failed_total",
			Help: "Caregiver alerts that could not be delivered",
		}),
		AlertLogWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alert_log_write_failures_total",
			Help: "Alert log writes that failed after a successful dispatch",
		}),
		AlertsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_alerts_produced_total",
			Help: "Caregiver alert messages produced to Kafka",
		}),
		RemindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminders_sent_total",
			Help: "Local dose reminders delivered",
		}),
		RemindersFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminders_failed_total",
			Help: "Local dose reminders that failed to deliver",
		}),
		RemindersSpoken: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminders_spoken_total",
			Help: "Dose reminders read aloud",
		}),
		InteractionChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "interaction_checks_total",
			Help: "Drug interaction checks performed",
		}),
		InteractionFindings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interaction_findings_total",
			Help: "Drug interaction findings by severity",
		}, []string{"severity"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method", "route"}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.WatchdogRuns,
		m.WatchdogRunDuration,
		m.WatchdogCandidates,
		m.WatchdogSkipped,
		m.AlertsDispatched,
		m.AlertsFailed,
		m.AlertLogWriteFailures,
		m.AlertsPublished,
		m.RemindersSent,
		m.RemindersFailed,
		m.RemindersSpoken,
		m.InteractionChecks,
		m.InteractionFindings,
		m.HTTPRequests,
		m.HTTPDuration,
		m.CircuitBreakerState,
	)

	return m
}

// HandlerFor serves the metrics gathered by g
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
