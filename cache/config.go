package cache

import "time"

// Config represents cache configuration.
type Config struct {
	// MaxEntries is the maximum number of entries across all namespaces.
	// When exceeded, the oldest ~10% of entries by creation time are
	// evicted regardless of namespace.
	MaxEntries int `yaml:"maxEntries,omitempty" json:"maxEntries,omitempty"`

	// DefaultTTL is applied when Set is called with a zero TTL.
	DefaultTTL time.Duration `yaml:"defaultTTL,omitempty" json:"defaultTTL,omitempty"`

	// SweepInterval controls how often the background sweep removes
	// expired entries. The sweep is a memory-bounding optimization only;
	// lazy expiry on read is authoritative.
	SweepInterval time.Duration `yaml:"sweepInterval,omitempty" json:"sweepInterval,omitempty"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		MaxEntries:    10000,
		DefaultTTL:    5 * time.Minute,
		SweepInterval: time.Minute,
	}
}
