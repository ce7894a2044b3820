package capture

import (
	"time"

	"github.com/okian/kaushal/pkg/logger"
)

// Option configures a Controller.
type Option func(*Controller)

// WithCountdown sets the number of ticks before recording starts.
func WithCountdown(n int) Option {
	return func(c *Controller) {
		if n >= 0 {
			c.countdown = n
		}
	}
}

// WithMaxDuration sets the hard recording limit.
func WithMaxDuration(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.maxDuration = d
		}
	}
}

// WithTick sets the countdown and elapsed tick period.
func WithTick(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.tick = d
		}
	}
}

// WithClock overrides the time source used for clip names.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}
