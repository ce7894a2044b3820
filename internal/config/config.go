// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) initializer to build a Config with defaults.
// - Keys are flat and snake_case so env vars map one to one (KAUSHAL_QUEUE_SIZE -> queue_size).
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Supported backends and providers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	StorageDisk  = "disk"
	StorageMinio = "minio"

	ProviderSimulated = "simulated"
	ProviderOpenAI    = "openai"
	ProviderArk       = "ark"

	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory analysis job queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of analysis workers.
	WorkerCount int `koanf:"worker_count"`

	// MaxUploadBytes is the ingestion size ceiling.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`
	// MaxRecordingSeconds caps client-side capture.
	MaxRecordingSeconds int `koanf:"max_recording_seconds"`
	// AnalysisTimeoutMS bounds one orchestration run.
	AnalysisTimeoutMS int `koanf:"analysis_timeout_ms"`
	// StaleProcessingMS is the age after which the watchdog fails a processing assessment.
	StaleProcessingMS int `koanf:"stale_processing_ms"`
	// WatchdogIntervalMS is the sweep period; 0 disables the watchdog.
	WatchdogIntervalMS int `koanf:"watchdog_interval_ms"`
	// MaxInflightUploads bounds concurrent uploads across all assessments.
	MaxInflightUploads int `koanf:"max_inflight_uploads"`

	DBDriver string `koanf:"db_driver"`
	DBDSN    string `koanf:"db_dsn"`

	StorageBackend string `koanf:"storage_backend"`
	StorageRoot    string `koanf:"storage_root"`
	MinioEndpoint  string `koanf:"minio_endpoint"`
	MinioAccessKey string `koanf:"minio_access_key"`
	MinioSecretKey string `koanf:"minio_secret_key"`
	MinioBucket    string `koanf:"minio_bucket"`
	MinioUseSSL    bool   `koanf:"minio_use_ssl"`

	AIProvider            string `koanf:"ai_provider"`
	AIAPIKey              string `koanf:"ai_api_key"`
	AIBaseURL             string `koanf:"ai_base_url"`
	AIModel               string `koanf:"ai_model"`
	AIMaxTokens           int    `koanf:"ai_max_tokens"`
	IntegrityMaxTokens    int    `koanf:"integrity_max_tokens"`
	SimulatedLatencyMinMS int    `koanf:"simulated_latency_min_ms"`
	SimulatedLatencyMaxMS int    `koanf:"simulated_latency_max_ms"`

	// MQTTBroker enables status push when non-empty, e.g. "localhost:1883".
	MQTTBroker      string `koanf:"mqtt_broker"`
	MQTTTopicPrefix string `koanf:"mqtt_topic_prefix"`
	MQTTClientID    string `koanf:"mqtt_client_id"`
	MQTTCodec       string `koanf:"mqtt_codec"`

	// RequireIdentity rejects mutating requests without X-User-ID.
	RequireIdentity bool `koanf:"require_identity"`

	// PollIntervalMS is the client polling period.
	PollIntervalMS int `koanf:"poll_interval_ms"`

	// MetricsEnabled switches the Prometheus recorders.
	MetricsEnabled bool `koanf:"metrics_enabled"`
	// MetricsRefreshMS is the gauge refresh period of the server.
	MetricsRefreshMS int `koanf:"metrics_refresh_ms"`
}

// New creates a Config populated with defaults. Context is accepted first to
// follow the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		QueueSize:             1024,
		WorkerCount:           runtime.NumCPU() * 2,
		MaxUploadBytes:        50 * 1024 * 1024,
		MaxRecordingSeconds:   30,
		AnalysisTimeoutMS:     90_000,
		StaleProcessingMS:     300_000,
		WatchdogIntervalMS:    30_000,
		MaxInflightUploads:    256,
		DBDriver:              DriverSQLite,
		DBDSN:                 "kaushal.db",
		StorageBackend:        StorageDisk,
		StorageRoot:           "./uploads",
		MinioBucket:           "assessments",
		AIProvider:            ProviderSimulated,
		AIModel:               "gpt-4o",
		AIMaxTokens:           1500,
		IntegrityMaxTokens:    500,
		SimulatedLatencyMinMS: 200,
		SimulatedLatencyMaxMS: 800,
		MQTTTopicPrefix:       "kaushal",
		MQTTClientID:          "kaushal-server",
		MQTTCodec:             CodecJSON,
		PollIntervalMS:        2000,
		MetricsEnabled:        true,
		MetricsRefreshMS:      10_000,
	}
}

// AnalysisTimeout returns AnalysisTimeoutMS as a duration.
func (c *Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.AnalysisTimeoutMS) * time.Millisecond
}

// StaleProcessing returns StaleProcessingMS as a duration.
func (c *Config) StaleProcessing() time.Duration {
	return time.Duration(c.StaleProcessingMS) * time.Millisecond
}

// WatchdogInterval returns WatchdogIntervalMS as a duration.
func (c *Config) WatchdogInterval() time.Duration {
	return time.Duration(c.WatchdogIntervalMS) * time.Millisecond
}

// PollInterval returns PollIntervalMS as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// MetricsRefresh returns MetricsRefreshMS as a duration.
func (c *Config) MetricsRefresh() time.Duration {
	return time.Duration(c.MetricsRefreshMS) * time.Millisecond
}

// MaxRecording returns MaxRecordingSeconds as a duration.
func (c *Config) MaxRecording() time.Duration {
	return time.Duration(c.MaxRecordingSeconds) * time.Second
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.MaxUploadBytes <= 0:
		return fmt.Errorf("%w: max_upload_bytes must be positive", ErrInvalidConfig)
	case c.MaxRecordingSeconds <= 0:
		return fmt.Errorf("%w: max_recording_seconds must be positive", ErrInvalidConfig)
	case c.AnalysisTimeoutMS <= 0:
		return fmt.Errorf("%w: analysis_timeout_ms must be positive", ErrInvalidConfig)
	case c.StaleProcessingMS < c.AnalysisTimeoutMS:
		return fmt.Errorf("%w: stale_processing_ms must not be below analysis_timeout_ms", ErrInvalidConfig)
	case c.WatchdogIntervalMS < 0:
		return fmt.Errorf("%w: watchdog_interval_ms must not be negative", ErrInvalidConfig)
	case c.MaxInflightUploads <= 0:
		return fmt.Errorf("%w: max_inflight_uploads must be positive", ErrInvalidConfig)
	case c.PollIntervalMS <= 0:
		return fmt.Errorf("%w: poll_interval_ms must be positive", ErrInvalidConfig)
	case c.MetricsRefreshMS <= 0:
		return fmt.Errorf("%w: metrics_refresh_ms must be positive", ErrInvalidConfig)
	}

	if c.DBDriver != DriverSQLite && c.DBDriver != DriverPostgres {
		return fmt.Errorf("%w: unknown db_driver %q", ErrInvalidConfig, c.DBDriver)
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		return fmt.Errorf("%w: db_dsn must not be empty", ErrInvalidConfig)
	}

	switch c.StorageBackend {
	case StorageDisk:
		if strings.TrimSpace(c.StorageRoot) == "" {
			return fmt.Errorf("%w: storage_root must not be empty", ErrInvalidConfig)
		}
	case StorageMinio:
		if c.MinioEndpoint == "" || c.MinioBucket == "" {
			return fmt.Errorf("%w: minio_endpoint and minio_bucket are required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage_backend %q", ErrInvalidConfig, c.StorageBackend)
	}

	switch c.AIProvider {
	case ProviderSimulated:
		if c.SimulatedLatencyMinMS < 0 || c.SimulatedLatencyMaxMS < c.SimulatedLatencyMinMS {
			return fmt.Errorf("%w: simulated latency range is invalid", ErrInvalidConfig)
		}
	case ProviderOpenAI, ProviderArk:
		if c.AIAPIKey == "" {
			return fmt.Errorf("%w: ai_api_key is required for provider %s", ErrInvalidConfig, c.AIProvider)
		}
		if c.AIMaxTokens <= 0 || c.IntegrityMaxTokens <= 0 {
			return fmt.Errorf("%w: token limits must be positive", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown ai_provider %q", ErrInvalidConfig, c.AIProvider)
	}

	if c.MQTTCodec != CodecJSON && c.MQTTCodec != CodecMsgpack {
		return fmt.Errorf("%w: unknown mqtt_codec %q", ErrInvalidConfig, c.MQTTCodec)
	}
	return nil
}
