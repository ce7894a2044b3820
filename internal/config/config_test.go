package config_test

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/kaushal/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.MaxUploadBytes, convey.ShouldEqual, 52428800)
			convey.So(cfg.MaxRecording(), convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.AnalysisTimeout(), convey.ShouldEqual, 90*time.Second)
			convey.So(cfg.PollInterval(), convey.ShouldEqual, 2*time.Second)
			convey.So(cfg.DBDriver, convey.ShouldEqual, config.DriverSQLite)
			convey.So(cfg.StorageBackend, convey.ShouldEqual, config.StorageDisk)
			convey.So(cfg.AIProvider, convey.ShouldEqual, config.ProviderSimulated)
			convey.So(cfg.MetricsEnabled, convey.ShouldBeTrue)
			convey.So(cfg.MetricsRefresh(), convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New(context.Background())

		cases := []struct {
			name   string
			mutate func(c *config.Config)
			want   string
		}{
			{"empty addr", func(c *config.Config) { c.Addr = " " }, "addr must not be empty"},
			{"zero queue", func(c *config.Config) { c.QueueSize = 0 }, "queue_size"},
			{"zero upload ceiling", func(c *config.Config) { c.MaxUploadBytes = 0 }, "max_upload_bytes"},
			{"stale below timeout", func(c *config.Config) { c.StaleProcessingMS = 10 }, "stale_processing_ms"},
			{"unknown driver", func(c *config.Config) { c.DBDriver = "mysql" }, "db_driver"},
			{"unknown storage", func(c *config.Config) { c.StorageBackend = "s3" }, "storage_backend"},
			{"minio without endpoint", func(c *config.Config) { c.StorageBackend = config.StorageMinio }, "minio_endpoint"},
			{"openai without key", func(c *config.Config) { c.AIProvider = config.ProviderOpenAI }, "ai_api_key"},
			{"unknown provider", func(c *config.Config) { c.AIProvider = "oracle" }, "ai_provider"},
			{"inverted latency", func(c *config.Config) { c.SimulatedLatencyMaxMS = 1 }, "latency"},
			{"unknown codec", func(c *config.Config) { c.MQTTCodec = "xml" }, "mqtt_codec"},
			{"zero metrics refresh", func(c *config.Config) { c.MetricsRefreshMS = 0 }, "metrics_refresh_ms"},
		}

		for _, tc := range cases {
			tc := tc
			convey.Convey("When "+tc.name, func() {
				tc.mutate(cfg)
				err := cfg.Validate()

				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, tc.want)
			})
		}
	})
}
