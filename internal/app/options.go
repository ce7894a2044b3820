package service

import (
	"time"

	"github.com/okian/kaushal/internal/adapters/notify"
	"github.com/okian/kaushal/internal/domain/model"
	"github.com/okian/kaushal/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of analysis workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithMaxInflightUploads bounds concurrent uploads across assessments.
func WithMaxInflightUploads(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxInflight = n
		}
	}
}

// WithMaxUploadBytes sets the ingestion size ceiling.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithAnalysisTimeout bounds one orchestration run.
func WithAnalysisTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.analysisTimeout = d
		}
	}
}

// WithWatchdog sets how often stale processing assessments are swept and
// the age that makes them stale. A zero interval disables the sweep.
func WithWatchdog(interval, staleAfter time.Duration) Option {
	return func(s *Service) {
		if interval >= 0 {
			s.watchdogInterval = interval
		}
		if staleAfter > 0 {
			s.staleAfter = staleAfter
		}
	}
}

// WithNotifier publishes status transitions.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithTestTypes replaces the embedded catalog seeded on Start.
func WithTestTypes(tts []model.TestType) Option {
	return func(s *Service) {
		s.seed = tts
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
