package orchestrator

import (
	"time"

	"github.com/okian/kaushal/pkg/logger"
)

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithTimeout bounds one run from load to the last collaborator call.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithNotifier publishes terminal transitions.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithMaxClipBytes bounds how much of a clip is read into memory.
func WithMaxClipBytes(n int64) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxClip = n
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}
