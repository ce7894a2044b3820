package cli

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/kaushal/internal/e2e"
	"github.com/okian/kaushal/pkg/logger"
)

// Default end-to-end constants.
const (
	defaultE2EWorkers = 2 // multiplier for runtime.NumCPU()
	defaultE2ETimeout = 2 * time.Minute
	defaultE2ERunTime = 10 * time.Minute
)

var e2eConfig e2e.Config

var e2eCmd = &cobra.Command{
	Use:   "e2e",
	Short: "Verify a running server end to end",
	Long: `Create athletes and assessments on a running server, upload synthetic
clips that steer the simulated collaborator, poll every assessment to a
terminal status and check the lifecycle properties:

  monotonic_status         observed statuses never move backwards
  score_bounds             completed scores lie in [0, 100]
  expected_outcome         each scenario ends in its expected status
  single_ingestion         concurrent uploads to one assessment admit one
  rejection_leaves_status  rejected uploads leave the assessment pending

The server must run with ai_provider=simulated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runE2E(cmd.Context())
	},
}

func init() {
	c := &e2eConfig
	fl := e2eCmd.Flags()
	fl.StringVar(&c.BaseURL, "url", defaultServerURL, "Base URL of the service")
	fl.IntVar(&c.Assessments, "assessments", e2e.DefaultAssessments, "Number of assessments to upload")
	fl.IntVar(&c.Workers, "workers", runtime.NumCPU()*defaultE2EWorkers, "Number of concurrent uploaders")
	fl.IntVar(&c.Racers, "racers", e2e.DefaultRacers, "Concurrent uploads aimed at one assessment")
	fl.IntVar(&c.ClipBytes, "clip-bytes", e2e.DefaultClipBytes, "Size of each synthetic clip")
	fl.Int64Var(&c.MaxUploadBytes, "max-upload-bytes", e2e.DefaultMaxUploadBytes, "Server upload limit, for the oversize probe")
	fl.DurationVar(&c.Timeout, "timeout", defaultE2ETimeout, "HTTP request timeout")
	fl.DurationVar(&c.PollInterval, "interval", e2e.DefaultPollInterval, "Delay between status reads")
	fl.StringVar(&c.ReportFile, "output", "", "Output file for the JSON report (default: e2e_report_TIMESTAMP.json)")
	fl.StringVar(&c.LogFile, "log", "", "Log file for run output (default: e2e_log_TIMESTAMP.log)")
	fl.StringVar(&c.UserID, "user", "e2e", "User id sent as X-User-ID")
	fl.BoolVar(&c.Verbose, "verbose", false, "Enable verbose logging")
}

func runE2E(ctx context.Context) error {
	closer, err := e2e.SetupLogging(e2eConfig.LogFile, e2eConfig.Verbose)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(ctx, defaultE2ERunTime)
	defer cancel()

	report, err := e2e.Run(ctx, &e2eConfig)
	if errors.Is(err, e2e.ErrPropertiesFailed) {
		for _, p := range report.Properties {
			if !p.Passed {
				logger.Get().Error(ctx, "property failed", logger.String("name", p.Name),
					logger.Any("details", p.Details))
			}
		}
	}
	if err != nil {
		return fmt.Errorf("e2e: %w", err)
	}
	return nil
}
