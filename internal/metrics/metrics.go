// Package metrics exposes Prometheus counters and gauges for the image cache.
// Every Collector method tolerates a nil receiver so the store and handlers can
// run without metrics in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "pixcache"

// Put/Get 结果标签。
const (
	PutStored       = "stored"
	PutDeduplicated = "deduplicated"
	PutFailed       = "failed"

	GetHit    = "hit"
	GetMiss   = "miss"
	GetHealed = "healed"
	GetFailed = "failed"

	EvictionExpired = "expired"
	EvictionTemp    = "temp"
)

// Collector is a prometheus.Collector that collects metrics about the image
// cache store.
type Collector struct {
	puts            *prometheus.CounterVec
	gets            *prometheus.CounterVec
	deletes         prometheus.Counter
	evictions       *prometheus.CounterVec
	cleanupFailures prometheus.Counter
	entries         prometheus.Gauge
	bytes           prometheus.Gauge
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		puts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "puts_total",
				Help:      "The number of image ingestions by result.",
			}, []string{"result"},
		),
		gets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "gets_total",
				Help:      "The number of image lookups by result.",
			}, []string{"result"},
		),
		deletes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "deletes_total",
				Help:      "The number of entries removed from the index.",
			},
		),
		evictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "evictions_total",
				Help:      "The number of files removed by cleanup, by kind.",
			}, []string{"kind"},
		),
		cleanupFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "cleanup_failures_total",
				Help:      "The number of per-entry failures during cleanup.",
			},
		),
		entries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "entries",
				Help:      "The number of entries in the index.",
			},
		),
		bytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "bytes",
				Help:      "The total size of committed files tracked by the index.",
			},
		),
	}
}

// NewRegistry 返回注册了 collector 的独立 Registry，避免污染全局 DefaultRegisterer。
func NewRegistry(c *Collector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if c == nil {
		return reg, nil
	}
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return reg, nil
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.puts.Describe(ch)
	c.gets.Describe(ch)
	c.deletes.Describe(ch)
	c.evictions.Describe(ch)
	c.cleanupFailures.Describe(ch)
	c.entries.Describe(ch)
	c.bytes.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.puts.Collect(ch)
	c.gets.Collect(ch)
	c.deletes.Collect(ch)
	c.evictions.Collect(ch)
	c.cleanupFailures.Collect(ch)
	c.entries.Collect(ch)
	c.bytes.Collect(ch)
}

func (c *Collector) ObservePut(result string) {
	if c == nil {
		return
	}
	c.puts.WithLabelValues(result).Inc()
}

func (c *Collector) ObserveGet(result string) {
	if c == nil {
		return
	}
	c.gets.WithLabelValues(result).Inc()
}

func (c *Collector) ObserveDelete() {
	if c == nil {
		return
	}
	c.deletes.Inc()
}

func (c *Collector) ObserveEviction(kind string) {
	if c == nil {
		return
	}
	c.evictions.WithLabelValues(kind).Inc()
}

func (c *Collector) ObserveCleanupFailure() {
	if c == nil {
		return
	}
	c.cleanupFailures.Inc()
}

// EntryAdded/EntryRemoved 维护 entries/bytes 两个 gauge。
func (c *Collector) EntryAdded(size int64) {
	if c == nil {
		return
	}
	c.entries.Inc()
	c.bytes.Add(float64(size))
}

func (c *Collector) EntryRemoved(size int64) {
	if c == nil {
		return
	}
	c.entries.Dec()
	c.bytes.Sub(float64(size))
}
