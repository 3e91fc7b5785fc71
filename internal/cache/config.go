package cache

import "time"

// Config controls a Manager. It is copied at construction and never changes afterwards.
type Config struct {
	Name                 string        // label for logs and metrics
	Namespace            string        // durable key prefix
	DefaultTTL           time.Duration // used when Set is given ttl <= 0
	MaxTotalSize         int64         // bound on the sum of entry sizes, in bytes
	EnablePersistence    bool
	CompressionThreshold int64 // payloads strictly larger than this are compressed; <= 0 disables
	CleanupInterval      time.Duration
	PersistTimeout       time.Duration // bound on each durable backend call
	PreloadConcurrency   int
	PreloadRPS           float64 // 0 means unthrottled
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Name:                 "default",
		Namespace:            "blog_cache_",
		DefaultTTL:           5 * time.Minute,
		MaxTotalSize:         50 * 1024 * 1024,
		EnablePersistence:    true,
		CompressionThreshold: 1024,
		CleanupInterval:      time.Minute,
		PersistTimeout:       2 * time.Second,
		PreloadConcurrency:   4,
	}
}

// withDefaults fills zero fields from DefaultConfig. EnablePersistence and
// CompressionThreshold are taken as given.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.Namespace == "" {
		c.Namespace = d.Namespace
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = d.DefaultTTL
	}
	if c.MaxTotalSize <= 0 {
		c.MaxTotalSize = d.MaxTotalSize
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = d.PersistTimeout
	}
	if c.PreloadConcurrency < 1 {
		c.PreloadConcurrency = d.PreloadConcurrency
	}
	if c.PreloadRPS < 0 {
		c.PreloadRPS = 0
	}
	return c
}
