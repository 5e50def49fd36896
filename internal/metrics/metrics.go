// Package metrics defines the Prometheus metrics of the predictor and
// optimizer services.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cement_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"service", "route", "method", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cement_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "route"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cement_http_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"service"},
	)

	// Prediction metrics
	Predictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cement_predictions_total",
			Help: "Total number of prediction requests by outcome",
		},
		[]string{"outcome"}, // ok, not_loaded, no_input, invalid_input, error
	)

	PredictionsClamped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cement_predictions_clamped_total",
			Help: "Total number of predictions clamped into [0, 100]",
		},
	)

	PredictionValue = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cement_prediction_efficiency_percent",
			Help:    "Distribution of predicted efficiency percentages",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	PredictionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cement_prediction_duration_seconds",
			Help:    "Time spent scaling and evaluating the model",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cement_prediction_cache_lookups_total",
			Help: "Prediction cache lookups by result",
		},
		[]string{"result"}, // hit, miss, error
	)

	ModelLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cement_model_loaded",
			Help: "1 when both the model and the scaler are loaded",
		},
	)

	ArtifactReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cement_artifact_reloads_total",
			Help: "Model and scaler reloads by result",
		},
		[]string{"result"},
	)

	// Optimizer metrics
	SolutionLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cement_solution_loads_total",
			Help: "Optimal solution lookups by result",
		},
		[]string{"result"}, // parsed, cached, not_found, invalid
	)
)

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(service, route, method string, status int, elapsed time.Duration) {
	HTTPRequests.WithLabelValues(service, route, method, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(service, route).Observe(elapsed.Seconds())
}

// RecordPrediction records a successful prediction.
func RecordPrediction(value float64, clamped bool, elapsed time.Duration) {
	Predictions.WithLabelValues("ok").Inc()
	PredictionValue.Observe(value)
	PredictionDuration.Observe(elapsed.Seconds())
	if clamped {
		PredictionsClamped.Inc()
	}
}

// SetModelLoaded updates the model availability gauge.
func SetModelLoaded(loaded bool) {
	if loaded {
		ModelLoaded.Set(1)
		return
	}
	ModelLoaded.Set(0)
}
