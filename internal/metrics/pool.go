package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStats is a snapshot of database connection pool usage
type PoolStats struct {
	Acquired int32
	Idle     int32
	Total    int32
	Max      int32
}

// poolCollector reads pool usage at scrape time
type poolCollector struct {
	stats    func() PoolStats
	acquired *prometheus.Desc
	idle     *prometheus.Desc
	total    *prometheus.Desc
	max      *prometheus.Desc
}

// NewPoolCollector returns a collector exposing the pool gauges for store
func NewPoolCollector(store string, stats func() PoolStats) prometheus.Collector {
	labels := prometheus.Labels{"store": store}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "db_pool", name), help, nil, labels)
	}
	return &poolCollector{
		stats:    stats,
		acquired: desc("acquired_connections", "Connections currently in use"),
		idle:     desc("idle_connections", "Idle connections in the pool"),
		total:    desc("total_connections", "Open connections in the pool"),
		max:      desc("max_connections", "Configured pool size"),
	}
}

// RegisterPool registers a pool collector with the default registry
func RegisterPool(store string, stats func() PoolStats) error {
	return prometheus.Register(NewPoolCollector(store, stats))
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquired
	ch <- c.idle
	ch <- c.total
	ch <- c.max
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.Acquired))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.Total))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.Max))
}
