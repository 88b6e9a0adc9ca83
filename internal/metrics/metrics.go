// Package metrics 汇总 jusox 的 Prometheus 指标（私有 registry）。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jusox"

// Metrics 同时实现 schedule.Metrics 与 resolve.Metrics。
type Metrics struct {
	reg *prometheus.Registry

	Lookups       *prometheus.CounterVec
	LookupLatency *prometheus.HistogramVec
	Resolutions   *prometheus.CounterVec
	ResolveTime   prometheus.Histogram
	CacheResults  *prometheus.CounterVec
	QueueDepth    prometheus.Gauge
	Running       prometheus.Gauge
	DispatchWait  prometheus.Histogram
	HTTPRequests  *prometheus.CounterVec
}

// New 创建并注册全部指标。withRuntime=true 时额外注册 Go runtime / process 采集器（serve 模式）。
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Registry lookups by stage and result (ok or error code).",
		}, []string{"op", "result"}),
		LookupLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_duration_seconds",
			Help:      "Registry lookup latency including scheduler wait.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Resolved queries by outcome.",
		}, []string{"outcome"}),
		ResolveTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_duration_seconds",
			Help:      "End-to-end resolution latency per query.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		CacheResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Lookup cache requests by op and result (hit or miss).",
		}, []string{"op", "result"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_queued",
			Help:      "Tasks waiting in the scheduler queue.",
		}),
		Running: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      "Tasks holding a scheduler slot.",
		}),
		DispatchWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_dispatch_wait_seconds",
			Help:      "Enforced spacing wait before a task starts.",
			Buckets:   []float64{0, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route and status class.",
		}, []string{"route", "code"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler 暴露 /metrics。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) SchedulerState(queued, running int) {
	m.QueueDepth.Set(float64(queued))
	m.Running.Set(float64(running))
}

func (m *Metrics) ObserveDispatchWait(d time.Duration) {
	m.DispatchWait.Observe(d.Seconds())
}

func (m *Metrics) CacheHit(op string)  { m.CacheResults.WithLabelValues(op, "hit").Inc() }
func (m *Metrics) CacheMiss(op string) { m.CacheResults.WithLabelValues(op, "miss").Inc() }

func (m *Metrics) ObserveLookup(op, result string, d time.Duration) {
	m.Lookups.WithLabelValues(op, result).Inc()
	m.LookupLatency.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) ObserveResolution(outcome string, d time.Duration) {
	m.Resolutions.WithLabelValues(outcome).Inc()
	m.ResolveTime.Observe(d.Seconds())
}

// ObserveHTTP 按状态码段（2xx/4xx/5xx）计数。
func (m *Metrics) ObserveHTTP(route string, status int) {
	m.HTTPRequests.WithLabelValues(route, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
