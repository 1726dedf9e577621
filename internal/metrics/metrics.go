// Package metrics exposes Prometheus collectors for the validation service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	validatorInvocationsTotal      *prometheus.CounterVec
	validatorFindingsTotal         *prometheus.CounterVec
	validatorRecordsSampledTotal   *prometheus.CounterVec
	validatorFollowUpsTotal        *prometheus.CounterVec
	validatorPlatformRequestsTotal *prometheus.CounterVec
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec
	validatorActiveWorkers         prometheus.Gauge
	validatorQueueDepth            prometheus.Gauge
	validatorRateLimitDelaySeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		validatorInvocationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validator_invocations_total",
				Help: "Total number of validation invocations, labeled by target kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		validatorFindingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validator_findings_total",
				Help: "Total number of validation findings, labeled by target kind.",
			},
			[]string{"kind"},
		)

		validatorRecordsSampledTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validator_records_sampled_total",
				Help: "Total number of result records pulled for validation, labeled by target kind.",
			},
			[]string{"kind"},
		)

		validatorFollowUpsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validator_follow_ups_total",
				Help: "Total number of follow-up jobs and notifications dispatched, labeled by action.",
			},
			[]string{"action"},
		)

		validatorPlatformRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validator_platform_requests_total",
				Help: "Total number of platform API requests, labeled by operation and code.",
			},
			[]string{"operation", "code"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		validatorRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "validator_platform_rate_limit_delay_seconds",
				Help:    "Time spent waiting for the platform request rate limiter, labeled by host.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"host"},
		)

		validatorActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "validator_active_workers",
				Help: "Number of workers currently processing an invocation.",
			},
		)

		validatorQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "validator_queue_depth",
				Help: "Number of invocations waiting in the queue.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveInvocation records a finished invocation and its findings.
// outcome is one of "passed", "failed" or "error".
func ObserveInvocation(kind, outcome string, findings, sampled int) {
	Init()
	validatorInvocationsTotal.WithLabelValues(kind, outcome).Inc()
	if findings > 0 {
		validatorFindingsTotal.WithLabelValues(kind).Add(float64(findings))
	}
	if sampled > 0 {
		validatorRecordsSampledTotal.WithLabelValues(kind).Add(float64(sampled))
	}
}

// ObserveFollowUp counts a dispatched notification or follow-up job.
func ObserveFollowUp(action string) {
	Init()
	validatorFollowUpsTotal.WithLabelValues(action).Inc()
}

// ObservePlatformRequest counts a platform API call by operation and status code.
func ObservePlatformRequest(operation string, code int) {
	Init()
	validatorPlatformRequestsTotal.WithLabelValues(operation, strconv.Itoa(code)).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	validatorActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	validatorActiveWorkers.Dec()
}

// SetQueueDepth records the current number of queued invocations.
func SetQueueDepth(n int) {
	Init()
	validatorQueueDepth.Set(float64(n))
}

// ObserveRateLimitDelay records time spent waiting on the platform throttle.
func ObserveRateLimitDelay(host string, delay time.Duration) {
	Init()
	validatorRateLimitDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
}
