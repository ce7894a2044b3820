package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/kaushal/internal/client"
	"github.com/okian/kaushal/internal/client/poll"
	"github.com/okian/kaushal/internal/client/upload"
	"github.com/okian/kaushal/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	reportPermission    = 0600
)

// ErrPropertiesFailed is returned when the run completed but at least one
// property did not hold.
var ErrPropertiesFailed = errors.New("e2e: properties failed")

// Run executes the complete end-to-end check and returns the report.
func Run(ctx context.Context, config *Config) (*Report, error) {
	if config.Assessments <= 0 || config.Workers <= 0 || config.Racers <= 1 || config.ClipBytes <= 0 {
		return nil, fmt.Errorf("e2e: assessments, workers and clip size must be positive and racers above 1")
	}
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting end-to-end run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("assessments", config.Assessments),
		logger.Int("workers", config.Workers),
		logger.Int("racers", config.Racers),
		logger.Duration("timeout", config.Timeout),
		logger.String("report", config.ReportFile))

	api := client.New(config.BaseURL, client.WithTimeout(config.Timeout), client.WithIdentity(config.UserID, "coach"))
	up := upload.NewCoordinator(api, upload.WithAsync(true))
	poller := poll.New(api, poll.WithInterval(config.PollInterval))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, api); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Create athletes and assessments
	cases, err := generateCases(ctx, config, api, stats)
	if err != nil {
		return nil, fmt.Errorf("case generation failed: %w", err)
	}
	probeConfig := *config
	probeConfig.Assessments = 3
	probeConfig.Workers = 1
	probes, err := generateCases(ctx, &probeConfig, api, &Stats{})
	if err != nil {
		return nil, fmt.Errorf("probe generation failed: %w", err)
	}
	stats.AssessmentsCreated += len(probes)

	// Step 3: Upload and poll concurrently
	outcomes := submitCases(ctx, config, up, poller, cases, stats)

	// Step 4: Verify results
	props := verifyOutcomes(ctx, outcomes)
	props = append(props,
		verifySingleIngestion(ctx, config, api, poller, probes[0]),
		verifyRejections(ctx, config, api, probes[1], probes[2]),
	)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	report := &Report{BaseURL: config.BaseURL, Passed: true, Stats: *stats, Properties: props, Outcomes: outcomes}
	for _, p := range props {
		if !p.Passed {
			report.Passed = false
		}
		logger.Get().Info(ctx, "property", logger.String("name", p.Name), logger.Bool("passed", p.Passed),
			logger.Int("checked", p.Checked), logger.Int("violations", len(p.Details)))
	}

	// Step 5: Save report to file
	if err := saveReport(ctx, config, report); err != nil {
		logger.Get().Warn(ctx, "failed to save report", logger.Error(err))
	}

	displayScoreSummary(ctx, outcomes, config.Verbose)
	displayFinalStats(stats)

	if !report.Passed {
		return report, ErrPropertiesFailed
	}
	logger.Get().Info(ctx, "end-to-end run passed")
	return report, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, api *client.Client) error {
	logger.Get().Info(ctx, "checking service health")
	if err := api.Health(ctx); err != nil {
		return err
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// saveReport writes the report as indented JSON.
func saveReport(ctx context.Context, config *Config, report *Report) error {
	filename := config.ReportFile
	if filename == "" {
		filename = "e2e_report_" + time.Now().Format("20060102_150405") + ".json"
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filename, data, reportPermission); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	logger.Get().Info(ctx, "report saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(stats *Stats) {
	var acceptRate, uploadsPerSecond float64
	if stats.UploadsSubmitted > 0 {
		acceptRate = float64(stats.UploadsAccepted) / float64(stats.UploadsSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		uploadsPerSecond = float64(stats.UploadsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("athletesCreated", stats.AthletesCreated),
		logger.Int("assessmentsCreated", stats.AssessmentsCreated),
		logger.Int("uploadsSubmitted", stats.UploadsSubmitted),
		logger.Int("uploadsAccepted", stats.UploadsAccepted),
		logger.Int("uploadsRejected", stats.UploadsRejected),
		logger.Int("uploadsFailed", stats.UploadsFailed),
		logger.Int("completed", stats.Completed),
		logger.Int("failed", stats.Failed),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("uploadsPerSecond", uploadsPerSecond))
}
