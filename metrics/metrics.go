// Package metrics exposes Prometheus collectors for background work.
//
// A Collector owns one set of work metrics registered against a caller
// supplied registry, so several services (or tests) can coexist in one
// process. A nil *Collector is valid and records nothing.
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewCollector(reg)
//	http.Handle("/metrics", metrics.Handler(reg))
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "workkit"

// Failure reasons used as the "reason" label of the failed counter.
const (
	ReasonError = "error"
	ReasonPanic = "panic"
)

// Collector records the lifecycle of work items.
type Collector struct {
	submitted     prometheus.Counter
	admitted      prometheus.Counter
	rejected      prometheus.Counter
	completed     prometheus.Counter
	failed        *prometheus.CounterVec
	drainTimeouts prometheus.Counter
	queueDepth    prometheus.Gauge
	inflight      prometheus.Gauge
	duration      prometheus.Histogram
	queueWait     prometheus.Histogram
}

// NewCollector creates the work collectors and registers them with reg.
// It panics if registration fails, like prometheus.MustRegister.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "work",
			Name:      "submitted_total",
			Help:      "Count of work items accepted by Submit.",
		}),
		admitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "work",
			Name:      "admitted_total",
			Help:      "Count of work items admitted for execution.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "work",
			Name:      "rejected_total",
			Help:      "Count of work items dropped because admission was closed.",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "work",
			Name:      "completed_total",
			Help:      "Count of work items that finished, successfully or not.",
		}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "work",
			Name:      "failed_total",
			Help:      "Count of work items that returned an error or panicked.",
		}, []string{"reason"}),
		drainTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "drain",
			Name:      "timeouts_total",
			Help:      "Count of drains that abandoned in-flight work.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of work items waiting in the queue.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "work",
			Name:      "inflight",
			Help:      "Number of work items currently executing.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "work",
			Name:      "duration_seconds",
			Help:      "Execution time of work items.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 10, 30, 60, 120},
		}),
		queueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "queue",
			Name:      "wait_seconds",
			Help:      "Time work items spent queued before admission.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.submitted,
		c.admitted,
		c.rejected,
		c.completed,
		c.failed,
		c.drainTimeouts,
		c.queueDepth,
		c.inflight,
		c.duration,
		c.queueWait,
	)
	return c
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Submitted records an accepted submission.
func (c *Collector) Submitted() {
	if c == nil {
		return
	}
	c.submitted.Inc()
}

// Admitted records an admitted item and the time it waited in the queue.
func (c *Collector) Admitted(waited time.Duration) {
	if c == nil {
		return
	}
	c.admitted.Inc()
	c.inflight.Inc()
	c.queueWait.Observe(waited.Seconds())
}

// Rejected records an item dropped at admission.
func (c *Collector) Rejected() {
	if c == nil {
		return
	}
	c.rejected.Inc()
}

// Finished records the end of an admitted item. reason is empty on success.
func (c *Collector) Finished(d time.Duration, reason string) {
	if c == nil {
		return
	}
	c.inflight.Dec()
	c.completed.Inc()
	c.duration.Observe(d.Seconds())
	if reason != "" {
		c.failed.WithLabelValues(reason).Inc()
	}
}

// DrainTimedOut records a drain that gave up on in-flight work.
func (c *Collector) DrainTimedOut() {
	if c == nil {
		return
	}
	c.drainTimeouts.Inc()
}

// SetQueueDepth sets the current number of pending items.
func (c *Collector) SetQueueDepth(n int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(n))
}
