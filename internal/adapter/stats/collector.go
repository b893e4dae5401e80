package stats

/*
	Collector backs every proxy metric with a Prometheus collector on its own registry,
	served from a separate listener so the proxied surface stays untouched. Running totals
	are also kept as plain atomics for the shutdown summary.
*/

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thushan/llamatap/internal/core/ports"
	"github.com/thushan/llamatap/internal/util"
)

const Namespace = "llamatap"

// Label values for the cache eviction counter
const (
	CacheEncoder    = "encoder"
	CacheExtraction = "extraction"
	EvictCapacity   = "capacity"
)

var (
	// upstream chat completions range from sub-second to minutes when streaming
	latencyBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}
)

type Collector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	upstreamLatency *prometheus.HistogramVec
	bytes           *prometheus.CounterVec
	tokens          *prometheus.CounterVec
	failures        *prometheus.CounterVec
	evictions       *prometheus.CounterVec
	inFlight        prometheus.Gauge

	totalRequests      atomic.Int64
	successfulRequests atomic.Int64
	failedRequests     atomic.Int64
	totalBytes         atomic.Int64
	totalTokens        atomic.Int64
}

type Snapshot struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	TotalBytes         int64
	TotalTokens        int64
}

var _ ports.StatsCollector = (*Collector)(nil)

// NewCollector registers everything on registry, or on a fresh one when nil
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Chat completion requests by provider, model and response status",
		}, []string{"provider", "model", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "request_duration_seconds",
			Help:      "End to end request duration including the streamed response",
			Buckets:   latencyBuckets,
		}, []string{"provider", "model"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "upstream_latency_seconds",
			Help:      "Time until the upstream returned response headers",
			Buckets:   latencyBuckets,
		}, []string{"provider"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "response_bytes_total",
			Help:      "Decompressed response bytes relayed to clients",
		}, []string{"provider"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tokens_total",
			Help:      "Tokens counted by kind and model",
		}, []string{"kind", "model"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "failures_total",
			Help:      "Proxy failures by kind",
		}, []string{"kind"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_evictions_total",
			Help:      "Cache evictions by cache and reason",
		}, []string{"cache", "reason"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "requests_in_flight",
			Help:      "Requests currently being proxied",
		}),
	}

	registry.MustRegister(
		c.requests,
		c.requestDuration,
		c.upstreamLatency,
		c.bytes,
		c.tokens,
		c.failures,
		c.evictions,
		c.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) RecordRequest(provider, model string, status int, latency time.Duration) {
	c.totalRequests.Add(1)
	if util.IsSuccessStatus(status) {
		c.successfulRequests.Add(1)
	} else {
		c.failedRequests.Add(1)
	}

	c.requests.WithLabelValues(provider, model, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(provider, model).Observe(latency.Seconds())
}

func (c *Collector) RecordUpstreamLatency(provider string, latency time.Duration) {
	c.upstreamLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

func (c *Collector) RecordBytes(provider string, bytes int64) {
	if bytes <= 0 {
		return
	}
	c.totalBytes.Add(bytes)
	c.bytes.WithLabelValues(provider).Add(float64(bytes))
}

func (c *Collector) RecordTokens(kind ports.TokenKind, model string, count int) {
	if count <= 0 {
		return
	}
	c.totalTokens.Add(int64(count))
	c.tokens.WithLabelValues(string(kind), model).Add(float64(count))
}

func (c *Collector) RecordInFlight(delta int) {
	c.inFlight.Add(float64(delta))
}

func (c *Collector) RecordFailure(kind string) {
	c.failures.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordEviction(cache, reason string) {
	c.evictions.WithLabelValues(cache, reason).Inc()
}

func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		TotalRequests:      c.totalRequests.Load(),
		SuccessfulRequests: c.successfulRequests.Load(),
		FailedRequests:     c.failedRequests.Load(),
		TotalBytes:         c.totalBytes.Load(),
		TotalTokens:        c.totalTokens.Load(),
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
