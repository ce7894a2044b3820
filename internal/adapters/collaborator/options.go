package collaborator

import "time"

// Settings configure a provider.
type Settings struct {
	APIKey             string
	BaseURL            string
	Model              string
	MaxTokens          int
	IntegrityMaxTokens int

	// Simulated provider only.
	MinLatency time.Duration
	MaxLatency time.Duration
	Seed       int64
}

// Option mutates Settings.
type Option func(*Settings)

func WithAPIKey(key string) Option { return func(s *Settings) { s.APIKey = key } }

func WithBaseURL(url string) Option { return func(s *Settings) { s.BaseURL = url } }

func WithModel(model string) Option {
	return func(s *Settings) {
		if model != "" {
			s.Model = model
		}
	}
}

// WithTokenLimits sets max tokens for the analysis and integrity calls.
func WithTokenLimits(analysis, integrity int) Option {
	return func(s *Settings) {
		if analysis > 0 {
			s.MaxTokens = analysis
		}
		if integrity > 0 {
			s.IntegrityMaxTokens = integrity
		}
	}
}

// WithLatencyRange sets the simulated latency range.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(s *Settings) {
		if minLatency >= 0 && maxLatency >= minLatency {
			s.MinLatency = minLatency
			s.MaxLatency = maxLatency
		}
	}
}

// WithSeed seeds the simulated latency generator.
func WithSeed(seed int64) Option { return func(s *Settings) { s.Seed = seed } }
