// Package metrics provides Prometheus metrics for the assessment pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Manager.
//
// Naming options (namespace, subsystem, prefix, labels, buckets, registry)
// only take effect in NewManager, before registration. WithMetricsEnabled and
// WithRefreshInterval may also be applied later through SetEnabled and
// SetRefreshInterval.
type Option func(*Manager)

// WithNamespace overrides the "kaushal" namespace.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem overrides the "assessments" subsystem.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithMetricPrefix prefixes every metric name, after namespace and subsystem.
func WithMetricPrefix(prefix string) Option {
	return func(m *Manager) {
		if prefix != "" {
			m.metricPrefix = prefix
		}
	}
}

// WithCustomLabels attaches constant labels, e.g. deployment or region.
func WithCustomLabels(labels map[string]string) Option {
	return func(m *Manager) {
		if labels != nil {
			m.customLabels = labels
		}
	}
}

// WithHistogramBuckets replaces the persist latency buckets.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithPrometheusRegistry registers the metrics on registry instead of the default.
func WithPrometheusRegistry(registry prometheus.Registerer) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// WithMetricsEnabled turns the recorders on or off.
func WithMetricsEnabled(enabled bool) Option {
	return func(m *Manager) {
		m.enabled.Store(enabled)
	}
}

// WithRefreshInterval sets how often the serve command refreshes gauges.
func WithRefreshInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.refreshInterval.Store(int64(interval))
		}
	}
}
