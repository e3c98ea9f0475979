// Package metrics provides Prometheus metrics for the SMART app.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	AuthorizationsStarted   prometheus.Counter
	AuthorizationsCompleted prometheus.Counter
	AuthorizationsFailed    prometheus.Counter
	FHIRRequests            *prometheus.CounterVec
	FHIRRequestDuration     prometheus.Histogram
	MedicationResolutions   *prometheus.CounterVec
	ActiveSessions          prometheus.Gauge
	CircuitBreakerState     *prometheus.GaugeVec
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		AuthorizationsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smart_authorizations_started_total",
			Help: "Total OAuth authorization flows started",
		}),
		AuthorizationsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smart_authorizations_completed_total",
			Help: "Total OAuth authorization flows completed",
		}),
		AuthorizationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smart_authorizations_failed_total",
			Help: "Total OAuth callbacks rejected or failed",
		}),
		FHIRRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fhir_requests_total",
			Help: "Total FHIR server requests by resource and outcome",
		}, []string{"resource", "outcome"}),
		FHIRRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fhir_request_duration_seconds",
			Help:    "FHIR server request duration",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		MedicationResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medication_resolutions_total",
			Help: "Medication name resolutions by outcome",
		}, []string{"outcome"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Currently active browser sessions",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	prometheus.MustRegister(
		m.AuthorizationsStarted,
		m.AuthorizationsCompleted,
		m.AuthorizationsFailed,
		m.FHIRRequests,
		m.FHIRRequestDuration,
		m.MedicationResolutions,
		m.ActiveSessions,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
