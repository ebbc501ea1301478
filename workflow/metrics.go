package workflow

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics provides Prometheus-compatible metrics collection for
// workflow execution monitoring in production environments.
//
// Metrics exposed (all namespaced with "flowmaestro_"):
//
//  1. inflight_nodes (gauge): current number of nodes executing concurrently.
//  2. ready_nodes (gauge): number of ready nodes awaiting dispatch.
//  3. node_latency_ms (histogram): node execution duration in milliseconds,
//     labeled by node_type and status. Buckets span 1ms to 10s.
//  4. nodes_total (counter): node executions by terminal status.
//  5. executions_total (counter): workflow executions by outcome
//     (completed, failed, paused, cancelled).
//  6. credits_accrued_total (counter): credits accrued across executions.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := workflow.NewPrometheusMetrics(registry)
//	engine := workflow.NewEngine(executor, workflow.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// Thread-safe: all methods delegate to Prometheus primitives.
type PrometheusMetrics struct {
	inflightNodes prometheus.Gauge
	readyNodes    prometheus.Gauge

	nodeLatency *prometheus.HistogramVec

	nodesTotal      *prometheus.CounterVec
	executionsTotal *prometheus.CounterVec
	creditsAccrued  prometheus.Counter

	registry prometheus.Registerer

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers all engine metrics with the
// provided registry. Pass nil for the default global registerer; a dedicated
// registry is recommended for isolation.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry: registry,
		enabled:  true,
	}

	pm.inflightNodes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "flowmaestro",
		Name:      "inflight_nodes",
		Help:      "Current number of nodes executing concurrently",
	})

	pm.readyNodes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "flowmaestro",
		Name:      "ready_nodes",
		Help:      "Number of ready nodes awaiting dispatch",
	})

	pm.nodeLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flowmaestro",
		Name:      "node_latency_ms",
		Help:      "Node execution duration in milliseconds from dispatch to completion",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"node_type", "status"}) // status: success, error

	pm.nodesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowmaestro",
		Name:      "nodes_total",
		Help:      "Node executions by terminal status",
	}, []string{"status"}) // completed, failed, skipped, unreachable

	pm.executionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowmaestro",
		Name:      "executions_total",
		Help:      "Workflow executions by outcome",
	}, []string{"outcome"}) // completed, failed, paused, cancelled

	pm.creditsAccrued = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "flowmaestro",
		Name:      "credits_accrued_total",
		Help:      "Credits accrued across all executions",
	})

	return pm
}

// RecordNodeLatency records the execution duration of one node.
func (pm *PrometheusMetrics) RecordNodeLatency(nodeType NodeType, latency time.Duration, status string) {
	if !pm.recording() {
		return
	}
	pm.nodeLatency.WithLabelValues(string(nodeType), status).Observe(float64(latency.Milliseconds()))
}

// UpdateInflightNodes sets the current concurrent node count.
func (pm *PrometheusMetrics) UpdateInflightNodes(count int) {
	if !pm.recording() {
		return
	}
	pm.inflightNodes.Set(float64(count))
}

// UpdateReadyNodes sets the current ready-set size.
func (pm *PrometheusMetrics) UpdateReadyNodes(count int) {
	if !pm.recording() {
		return
	}
	pm.readyNodes.Set(float64(count))
}

// IncrementNodes counts one node reaching the given terminal status.
func (pm *PrometheusMetrics) IncrementNodes(status Status) {
	if !pm.recording() {
		return
	}
	pm.nodesTotal.WithLabelValues(string(status)).Inc()
}

// IncrementExecutions counts one execution reaching the given outcome.
func (pm *PrometheusMetrics) IncrementExecutions(outcome string) {
	if !pm.recording() {
		return
	}
	pm.executionsTotal.WithLabelValues(outcome).Inc()
}

// AddCreditsAccrued adds to the cumulative accrued-credit counter.
func (pm *PrometheusMetrics) AddCreditsAccrued(amount int64) {
	if !pm.recording() || amount <= 0 {
		return
	}
	pm.creditsAccrued.Add(float64(amount))
}

// Disable temporarily disables metric recording (useful for testing).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

func (pm *PrometheusMetrics) recording() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}
