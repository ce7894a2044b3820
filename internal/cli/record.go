package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/kaushal/internal/client"
	"github.com/okian/kaushal/internal/client/capture"
	"github.com/okian/kaushal/internal/client/poll"
	"github.com/okian/kaushal/internal/client/tui"
	"github.com/okian/kaushal/internal/client/upload"
	"github.com/okian/kaushal/internal/domain/types"
	"github.com/okian/kaushal/pkg/logger"
)

const defaultMaxRecording = 30 * time.Second

var recordFlags struct {
	clientFlags
	athlete   string
	testType  string
	video     string
	audio     string
	countdown int
	max       time.Duration
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a clip from the camera, upload it and wait for the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		return record(cmd.Context())
	},
}

func init() {
	f := &recordFlags
	f.bind(recordCmd)
	recordCmd.Flags().StringVar(&f.athlete, "athlete", "", "Athlete id (registers one for --user when empty)")
	recordCmd.Flags().StringVar(&f.testType, "test", "", "Test type id or slug (prompted when empty)")
	recordCmd.Flags().StringVar(&f.video, "device", "/dev/video0", "Video capture device")
	recordCmd.Flags().StringVar(&f.audio, "audio", "default", "ALSA audio device")
	recordCmd.Flags().IntVar(&f.countdown, "countdown", 3, "Countdown before recording starts")
	recordCmd.Flags().DurationVar(&f.max, "max", defaultMaxRecording, "Maximum recording length")
}

func record(ctx context.Context) error {
	f := &recordFlags
	// Keep log output off the alternate screen.
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		return err
	}

	api := f.client()
	if err := api.Health(ctx); err != nil {
		return fmt.Errorf("server not reachable: %w", err)
	}
	athleteID, err := resolveAthlete(ctx, api, f.athlete, f.userID)
	if err != nil {
		return err
	}
	tts, err := api.ListTestTypes(ctx)
	if err != nil {
		return fmt.Errorf("list test types: %w", err)
	}
	ref := f.testType
	if ref == "" {
		if ref, err = tui.PickTestType(tts); err != nil {
			return err
		}
	}
	tt, ok := testTypeName(tts, ref)
	if !ok {
		return fmt.Errorf("unknown test type %q", ref)
	}

	dev := capture.NewFFmpegDevice()
	dev.Video = f.video
	dev.Audio = f.audio
	ctrl := capture.NewController(dev, capture.WithCountdown(f.countdown), capture.WithMaxDuration(f.max))
	defer ctrl.Close()

	return tui.Run(ctx, tui.Deps{
		Controller: ctrl,
		Uploader:   recordUploader(api),
		Poller:     poll.New(api, poll.WithInterval(f.interval)),
		NewAssessment: func(ctx context.Context) (types.Assessment, error) {
			return api.CreateAssessment(ctx, types.CreateAssessmentRequest{AthleteID: athleteID, TestTypeID: tt.ID})
		},
		TestName:    tt.Name,
		MaxDuration: f.max,
	})
}

// recordUploader posts clips asynchronously so the TUI can show the
// analyzing phase and follow the result by polling.
func recordUploader(api *client.Client) *upload.Coordinator {
	return upload.NewCoordinator(api, upload.WithAsync(true))
}
