package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/okian/kaushal/internal/adapters/collaborator"
	"github.com/okian/kaushal/internal/adapters/http/api"
	"github.com/okian/kaushal/internal/adapters/http/swagger"
	"github.com/okian/kaushal/internal/adapters/notify"
	"github.com/okian/kaushal/internal/adapters/repository"
	"github.com/okian/kaushal/internal/adapters/storage"
	service "github.com/okian/kaushal/internal/app"
	"github.com/okian/kaushal/internal/config"
	"github.com/okian/kaushal/pkg/logger"
	"github.com/okian/kaushal/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 2 * time.Minute
	writeTimeoutSlack         = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion and analysis server",
	Long: `Run the HTTP server: reference data, assessment creation, video ingestion,
background analysis and the polling endpoints. Configuration comes from
defaults, an optional YAML file and KAUSHAL_* environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

// components are the long-lived dependencies of the server.
type components struct {
	store    *repository.SQLStore
	clips    storage.ClipStore
	notifier notify.Notifier
	svc      *service.Service
}

func (c *components) close() {
	if c.notifier != nil {
		_ = c.notifier.Close()
	}
	if c.store != nil {
		_ = c.store.Close()
	}
}

// loadConfig loads configuration and initializes logging from it.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}

// build wires the store, clip storage, collaborator, notifier and service.
func build(ctx context.Context, cfg *config.Config) (*components, error) {
	c := &components{}
	ok := false
	defer func() {
		if !ok {
			c.close()
		}
	}()

	store, err := repository.Open(ctx, cfg.DBDriver, cfg.DBDSN, repository.WithLogger(logger.Named("repository")))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	c.store = store

	switch cfg.StorageBackend {
	case config.StorageMinio:
		c.clips, err = storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	default:
		c.clips, err = storage.NewDiskStore(cfg.StorageRoot)
	}
	if err != nil {
		return nil, fmt.Errorf("open clip storage: %w", err)
	}

	collab, err := collaborator.New(cfg.AIProvider,
		collaborator.WithAPIKey(cfg.AIAPIKey),
		collaborator.WithBaseURL(cfg.AIBaseURL),
		collaborator.WithModel(cfg.AIModel),
		collaborator.WithTokenLimits(cfg.AIMaxTokens, cfg.IntegrityMaxTokens),
		collaborator.WithLatencyRange(
			time.Duration(cfg.SimulatedLatencyMinMS)*time.Millisecond,
			time.Duration(cfg.SimulatedLatencyMaxMS)*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("collaborator: %w", err)
	}

	c.notifier = notify.Nop{}
	if cfg.MQTTBroker != "" {
		mq, err := notify.NewMQTT(ctx, notify.MQTTConfig{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Codec:       cfg.MQTTCodec,
		})
		if err != nil {
			return nil, fmt.Errorf("mqtt: %w", err)
		}
		c.notifier = mq
	}

	c.svc = service.New(c.store, c.clips, collab,
		service.WithLogger(logger.Named("service")),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithMaxInflightUploads(cfg.MaxInflightUploads),
		service.WithMaxUploadBytes(cfg.MaxUploadBytes),
		service.WithAnalysisTimeout(cfg.AnalysisTimeout()),
		service.WithWatchdog(cfg.WatchdogInterval(), cfg.StaleProcessing()),
		service.WithNotifier(c.notifier),
	)
	ok = true
	return c, nil
}

// newMux registers the docs and the API.
func newMux(ctx context.Context, cfg *config.Config, svc *service.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithRequireIdentity(cfg.RequireIdentity),
		api.WithMaxUploadBytes(cfg.MaxUploadBytes),
	).Register(ctx, mux)
	return mux
}

func serve(ctx context.Context) error {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	applyMetricsConfig(cfg)
	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintln(os.Stderr, "failed to sync logger:", err)
		}
	}()
	log := logger.Get()

	comps, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.close()

	if err := comps.svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer comps.svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, comps.svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, comps.svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      cfg.AnalysisTimeout() + writeTimeoutSlack,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr),
			logger.String("db_driver", cfg.DBDriver), logger.String("storage", cfg.StorageBackend),
			logger.String("ai_provider", cfg.AIProvider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// applyMetricsConfig switches the recorders and sets the gauge refresh period.
func applyMetricsConfig(cfg *config.Config) {
	metrics.SetEnabled(cfg.MetricsEnabled)
	metrics.SetRefreshInterval(cfg.MetricsRefresh())
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes gauges from the service stats. GetStats
// also refreshes the per-status assessment gauge.
func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
}
