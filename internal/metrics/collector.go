package metrics

import (
	"context"
	"time"
)

// CacheGauges is the point-in-time occupancy of one cache.
type CacheGauges struct {
	Entries   int64
	SizeBytes int64
	HitRate   float64
}

// GaugeSource reports the current occupancy of a cache.
type GaugeSource func() CacheGauges

// Collector periodically copies cache occupancy into Prometheus gauges.
type Collector struct {
	sources  map[string]GaugeSource
	interval time.Duration
	stop     chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(interval time.Duration) *Collector {
	return &Collector{
		sources:  make(map[string]GaugeSource),
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Register adds a cache to collect from. Must be called before Start.
func (c *Collector) Register(cache string, src GaugeSource) {
	c.sources[cache] = src
}

// Start begins the metrics collection loop
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Collect initial metrics
	c.collect()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the metrics collector
func (c *Collector) Stop() {
	close(c.stop)
}

func (c *Collector) collect() {
	for name, src := range c.sources {
		g := src()
		CacheEntries.WithLabelValues(name).Set(float64(g.Entries))
		CacheSizeBytes.WithLabelValues(name).Set(float64(g.SizeBytes))
		CacheHitRate.WithLabelValues(name).Set(g.HitRate)
	}
}
