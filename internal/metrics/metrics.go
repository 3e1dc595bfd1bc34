// Package metrics exposes Prometheus metrics for classification, resolution,
// transfer flows and the HTTP API.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Veraticus/banktalk/internal/common"
	"github.com/Veraticus/banktalk/internal/model"
	"github.com/Veraticus/banktalk/internal/resolver"
	"github.com/Veraticus/banktalk/internal/transfer"
)

const namespace = "banktalk"

// Metrics holds every collector the application records to. Each instance
// owns a private registry so tests and multiple servers never collide.
type Metrics struct {
	registry *prometheus.Registry

	classifications        *prometheus.CounterVec
	classificationDuration *prometheus.HistogramVec
	classificationCache    prometheus.Counter
	resolutions            *prometheus.CounterVec
	transitions            *prometheus.CounterVec
	submissions            *prometheus.CounterVec
	httpRequests           *prometheus.CounterVec
	httpDuration           *prometheus.HistogramVec
}

var (
	_ resolver.Recorder = (*Metrics)(nil)
	_ transfer.Recorder = (*Metrics)(nil)
)

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nlp",
			Name:      "classifications_total",
			Help:      "Classification calls by endpoint and result",
		}, []string{"endpoint", "result"}),

		classificationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "nlp",
			Name:      "classification_duration_seconds",
			Help:      "Latency of classification calls",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),

		classificationCache: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nlp",
			Name:      "cache_hits_total",
			Help:      "Classifications served from the response cache",
		}),

		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Component resolutions by module, strategy and outcome",
		}, []string{"module", "strategy", "outcome"}),

		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "transitions_total",
			Help:      "Transfer flow step transitions",
		}, []string{"from", "to"}),

		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "submissions_total",
			Help:      "Transfer submissions by kind and result",
		}, []string{"kind", "result"}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP API requests by route and status code",
		}, []string{"method", "route", "code"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP API request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.classifications,
		m.classificationDuration,
		m.classificationCache,
		m.resolutions,
		m.transitions,
		m.submissions,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RegisterGauge exposes a value read at scrape time, such as the number of
// open conversations.
func (m *Metrics) RegisterGauge(subsystem, name, help string, value func() float64) error {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, value)
	if err := m.registry.Register(g); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil
		}
		return err
	}
	return nil
}

// RecordClassification counts a classification call and its latency.
func (m *Metrics) RecordClassification(endpoint string, elapsed time.Duration, err error) {
	m.classifications.WithLabelValues(endpoint, classificationResult(err)).Inc()
	m.classificationDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func classificationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, common.ErrClassificationFailed):
		return "invalid_response"
	case common.IsRetryable(err):
		return "unavailable"
	default:
		return "error"
	}
}

// RecordCacheHit counts a classification answered from cache.
func (m *Metrics) RecordCacheHit() {
	m.classificationCache.Inc()
}

// RecordResolution counts a component resolution.
func (m *Metrics) RecordResolution(module model.ModuleCode, _ string, strategy string, outcome resolver.Outcome) {
	if module == "" {
		module = "unknown"
	}
	if strategy == "" {
		strategy = "none"
	}
	m.resolutions.WithLabelValues(string(module), strategy, string(outcome)).Inc()
}

// RecordTransition counts a transfer step change.
func (m *Metrics) RecordTransition(from, to transfer.Step) {
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordSubmission counts a transfer submission.
func (m *Metrics) RecordSubmission(kind model.TransferKind, ok bool) {
	result := "failed"
	if ok {
		result = "accepted"
	}
	m.submissions.WithLabelValues(string(kind), result).Inc()
}

// ObserveHTTP records one API request. route is the matched pattern, not the
// raw path, so ids never become label values.
func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
