// Package metrics exposes Prometheus instrumentation for risk evaluations,
// the HTTP API and maintenance jobs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "riskguard"

// Registry holds all Prometheus metrics for the service
type Registry struct {
	reg *prometheus.Registry

	Evaluations        *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	FinalMultiplier    prometheus.Histogram
	Breaches           *prometheus.CounterVec
	BreachMultiplier   *prometheus.HistogramVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	JobRuns *prometheus.CounterVec
}

// NewRegistry creates a registry with every metric registered.
// Each call returns an independent registry.
func NewRegistry() *Registry {
	multiplierBuckets := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99, 1}

	r := &Registry{
		reg: prometheus.NewRegistry(),

		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Risk evaluations by binding category (empty when nothing binds)",
			},
			[]string{"binding"},
		),

		EvaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Time spent evaluating all risk checks for one date",
				Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
		),

		FinalMultiplier: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "final_multiplier",
				Help:      "Multiplier applied to positions after all checks",
				Buckets:   multiplierBuckets,
			},
		),

		Breaches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaches_total",
				Help:      "Risk ceiling breaches by category",
			},
			[]string{"category"},
		),

		BreachMultiplier: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "breach_multiplier",
				Help:      "Multiplier produced by each breached check",
				Buckets:   multiplierBuckets,
			},
			[]string{"category"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Scheduled job runs by job and result",
			},
			[]string{"job", "result"},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.Evaluations,
		r.EvaluationDuration,
		r.FinalMultiplier,
		r.Breaches,
		r.BreachMultiplier,
		r.HTTPRequests,
		r.HTTPDuration,
		r.JobRuns,
	)

	return r
}

// Gatherer returns the underlying registry for scraping or inspection
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveEvaluation records one completed risk evaluation
func (r *Registry) ObserveEvaluation(binding string, multiplier float64, elapsed time.Duration) {
	r.Evaluations.WithLabelValues(binding).Inc()
	r.EvaluationDuration.Observe(elapsed.Seconds())
	r.FinalMultiplier.Observe(multiplier)
}

// ObserveBreach records one breached risk check
func (r *Registry) ObserveBreach(category string, multiplier float64) {
	r.Breaches.WithLabelValues(category).Inc()
	r.BreachMultiplier.WithLabelValues(category).Observe(multiplier)
}

// ObserveHTTPRequest records a served HTTP request
func (r *Registry) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	r.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveJobRun records the outcome of a scheduled job
func (r *Registry) ObserveJobRun(job string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	r.JobRuns.WithLabelValues(job, result).Inc()
}
