package repository

import (
	"time"

	"github.com/okian/kaushal/pkg/logger"
)

// Option applies a configuration option to the SQLStore.
type Option func(*SQLStore)

// WithClock overrides the time source used for created/updated stamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *SQLStore) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxOpenConns bounds the connection pool. SQLite always uses one.
func WithMaxOpenConns(n int) Option {
	return func(s *SQLStore) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithoutMigrations skips schema migrations on Open.
func WithoutMigrations() Option {
	return func(s *SQLStore) {
		s.skipMigrations = true
	}
}
