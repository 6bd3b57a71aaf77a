package pipeline

import (
	"time"

	"github.com/dagwatch/dagwatch/src/metrics"
	"github.com/dagwatch/dagwatch/src/retention"
)

// Default configuration values.
const (
	DefaultSweepInterval       = 10 * time.Second
	DefaultInitialSweepDelay   = 5 * time.Second
	DefaultMetricsInterval     = 1 * time.Second
	DefaultInitialFlagDuration = 500 * time.Millisecond
)

// Config contains the timing and retention settings of a Pipeline.
type Config struct {
	// MaxSlotsRetained is the width of the retention window, in slots.
	MaxSlotsRetained uint32

	// SweepInterval is the period of the retention sweep.
	SweepInterval time.Duration

	// InitialSweepDelay is the delay, after each connection, before vertices
	// without edges are cleared.
	InitialSweepDelay time.Duration

	// MetricsInterval is the period at which TPS is recomputed.
	MetricsInterval time.Duration

	// TPSWindow is the width of the TPS window.
	TPSWindow time.Duration

	// InitialFlagDuration is how long a new vertex is reported as initial.
	InitialFlagDuration time.Duration
}

// DefaultConfig ...
func DefaultConfig() *Config {
	return &Config{
		MaxSlotsRetained:    retention.DefaultMaxSlotsRetained,
		SweepInterval:       DefaultSweepInterval,
		InitialSweepDelay:   DefaultInitialSweepDelay,
		MetricsInterval:     DefaultMetricsInterval,
		TPSWindow:           metrics.DefaultWindow,
		InitialFlagDuration: DefaultInitialFlagDuration,
	}
}
