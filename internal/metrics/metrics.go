// Package metrics exposes Prometheus metrics for exports, scheduled jobs and
// HTTP requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "reports"

// Collector owns the registry and every metric. A nil *Collector is valid
// and records nothing.
type Collector struct {
	registry *prometheus.Registry

	exportsTotal   *prometheus.CounterVec
	exportRows     prometheus.Histogram
	exportBytes    prometheus.Counter
	exportDuration prometheus.Histogram

	jobRunsTotal *prometheus.CounterVec
	jobLastRun   *prometheus.GaugeVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector registers all metrics under namespace in a new registry,
// along with the Go runtime and process collectors.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		exportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "total",
			Help:      "CSV exports by outcome (success, empty, failed).",
		}, []string{"outcome"}),
		exportRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "rows",
			Help:      "Rows per CSV export.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		exportBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "bytes_total",
			Help:      "Bytes of CSV delivered.",
		}),
		exportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "duration_seconds",
			Help:      "Time to serialize and deliver a CSV export.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		jobRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Scheduled export runs by job and result.",
		}, []string{"job", "result"}),
		jobLastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last run of each scheduled export.",
		}, []string{"job"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	registry.MustRegister(
		c.exportsTotal, c.exportRows, c.exportBytes, c.exportDuration,
		c.jobRunsTotal, c.jobLastRun,
		c.httpRequests, c.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// RecordExport implements csvexport.Recorder.
func (c *Collector) RecordExport(outcome string, rows, bytes int, duration time.Duration) {
	if c == nil {
		return
	}
	c.exportsTotal.WithLabelValues(outcome).Inc()
	c.exportDuration.Observe(duration.Seconds())
	if rows > 0 {
		c.exportRows.Observe(float64(rows))
	}
	if bytes > 0 {
		c.exportBytes.Add(float64(bytes))
	}
}

// RecordJobRun records one scheduled export run.
func (c *Collector) RecordJobRun(job string, err error, at time.Time) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.jobRunsTotal.WithLabelValues(job, result).Inc()
	c.jobLastRun.WithLabelValues(job).Set(float64(at.Unix()))
}

// RecordRequest records one HTTP request. route should be the router
// pattern, not the raw path, to bound cardinality.
func (c *Collector) RecordRequest(route, method string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
