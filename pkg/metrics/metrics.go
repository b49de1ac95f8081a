// Package metrics holds the Prometheus collectors for the engine and the
// API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nexushome"

var (
	// RunsTotal counts scheduled runs by kind and result
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of scheduled runs",
		},
		[]string{"kind", "result"},
	)

	// RunDuration measures scheduled run latency
	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Scheduled run duration in seconds",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"kind"},
	)

	// PredictionsTotal counts maintenance predictions by outcome
	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Total number of maintenance predictions",
		},
		[]string{"device_type", "outcome"},
	)

	// FailureProbability is the latest failure probability per device
	FailureProbability = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "failure_probability",
			Help:      "Latest predicted failure probability per device",
		},
		[]string{"device_id"},
	)

	// AnomaliesTotal counts detected anomalies
	AnomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_detected_total",
			Help:      "Total number of detected anomalies",
		},
		[]string{"device_id"},
	)

	// StrategiesTotal counts generated strategies by type
	StrategiesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategies_generated_total",
			Help:      "Total number of optimization strategies generated",
		},
		[]string{"type"},
	)

	// PotentialSavings is the total potential savings of the latest optimization
	PotentialSavings = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "potential_savings_dollars",
			Help:      "Total potential savings of the latest optimization run",
		},
	)

	// PlanActionsTotal counts executed plan actions by status
	PlanActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_actions_total",
			Help:      "Total number of plan actions by final status",
		},
		[]string{"status"},
	)

	// DemandResponseEventsTotal counts handled demand response events
	DemandResponseEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "demand_response_events_total",
			Help:      "Total number of demand response events handled",
		},
		[]string{"type", "achieved"},
	)

	// DemandResponseReduction measures the reduction reached per event
	DemandResponseReduction = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "demand_response_reduction_watts",
			Help:      "Power reduction per demand response event in watts",
			Buckets:   prometheus.ExponentialBuckets(100, 2, 10),
		},
	)

	// RequestsTotal counts HTTP requests
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration measures request latency
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)

func init() {
	prometheus.MustRegister(
		RunsTotal,
		RunDuration,
		PredictionsTotal,
		FailureProbability,
		AnomaliesTotal,
		StrategiesTotal,
		PotentialSavings,
		PlanActionsTotal,
		DemandResponseEventsTotal,
		DemandResponseReduction,
		RequestsTotal,
		RequestDuration,
	)
}

// ObserveRun records a finished run.
func ObserveRun(kind string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	RunsTotal.WithLabelValues(kind, result).Inc()
	RunDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// RecordDemandResponse records a handled event.
func RecordDemandResponse(eventType string, achieved bool, reductionW float64) {
	DemandResponseEventsTotal.WithLabelValues(eventType, strconv.FormatBool(achieved)).Inc()
	DemandResponseReduction.Observe(reductionW)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records metrics for each request, labelled by the route
// pattern the mux matched.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip metrics endpoint itself
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		RequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(wrapped.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}
