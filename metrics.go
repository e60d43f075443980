// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dispatcher

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// metrics tracks a dispatcher's Prometheus collectors -- completion
// counts, pending-queue depth, per-worker inflight task counts, and
// dispatch latency -- plus a rate limiter guarding the worker log
// forwarder against a noisy child process.
type metrics struct {
	completions     *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	taskCount       *prometheus.GaugeVec
	dispatchLatency *prometheus.HistogramVec
	logLinesDropped *prometheus.CounterVec
	logLimiter      *rate.Limiter
}

func newMetrics() *metrics {
	return &metrics{
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatcher",
			Name:      "dispatch_completions_total",
			Help:      "Total number of completed dispatch calls, by outcome.",
		}, []string{"outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dispatcher",
			Name:      "pending_queue_depth",
			Help:      "Current number of requests waiting in the pending queue.",
		}),
		taskCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dispatcher",
			Name:      "worker_task_count",
			Help:      "Number of inflight requests currently reserved on a worker, by process.",
		}, []string{"process"}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dispatcher",
			Name:      "dispatch_latency_seconds",
			Help:      "Time from Dispatch being called to its result or error arriving, by service and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "method"}),
		logLinesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatcher",
			Name:      "log_lines_dropped_total",
			Help:      "Total number of forwarded worker log lines dropped because a Tail subscriber fell behind, by process.",
		}, []string{"process"}),
		// 200 log lines/sec sustained, bursts to 400: generous enough
		// for real diagnostic output, low enough to protect the parent
		// from a worker stuck in a hot logging loop.
		logLimiter: rate.NewLimiter(rate.Limit(200), 400),
	}
}

func (m *metrics) observeCompletion(success bool) {
	if success {
		m.completions.WithLabelValues("success").Inc()
	} else {
		m.completions.WithLabelValues("error").Inc()
	}
}

func (m *metrics) setQueueDepth(n int) { m.queueDepth.Set(float64(n)) }

func (m *metrics) setTaskCount(processID int, n int32) {
	m.taskCount.WithLabelValues(strconv.Itoa(processID)).Set(float64(n))
}

func (m *metrics) observeDispatchLatency(service, method string, d time.Duration) {
	m.dispatchLatency.WithLabelValues(service, method).Observe(d.Seconds())
}

func (m *metrics) incLogLinesDropped(processID int) {
	m.logLinesDropped.WithLabelValues(strconv.Itoa(processID)).Inc()
}

func (m *metrics) allowLog() bool { return m.logLimiter.Allow() }

// Collectors returns this dispatcher's Prometheus collectors, for a
// caller that wants to register them on its own registry instead of
// using the bundled /debug/dispatcher/metrics handler.
func (d *Dispatcher) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		d.metrics.completions,
		d.metrics.queueDepth,
		d.metrics.taskCount,
		d.metrics.dispatchLatency,
		d.metrics.logLinesDropped,
	}
}

// promRegistry builds a private registry scoped to d, so that mounting
// DebugRouter never panics on a duplicate registration when more than
// one Dispatcher runs in the same process.
func promRegistry(d *Dispatcher) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, c := range d.Collectors() {
		reg.MustRegister(c)
	}
	return reg
}
