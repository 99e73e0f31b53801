package scanner

import (
	"log/slog"
	"time"

	"hostscan/logging"
)

// DefaultReapInterval is the sweep period used when none is configured.
const DefaultReapInterval = 3 * time.Second

// Reaper periodically reclaims registry records no worker references.
type Reaper struct {
	registry *Registry
	interval time.Duration
	logger   *slog.Logger
}

// NewReaper constructs a Reaper sweeping registry every interval.
func NewReaper(registry *Registry, interval time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	return &Reaper{
		registry: registry,
		interval: interval,
		logger:   logging.For(logger, "reaper"),
	}
}

// Interval returns the sweep period.
func (r *Reaper) Interval() time.Duration { return r.interval }

// Tick performs one sweep and returns the number of records reclaimed.
func (r *Reaper) Tick() int {
	swept := r.registry.Sweep()
	if swept > 0 {
		r.logger.Debug("reclaimed scan records", "swept", swept, "remaining", r.registry.Len())
	}
	return swept
}
