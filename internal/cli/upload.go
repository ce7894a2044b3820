package cli

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/okian/kaushal/internal/client/poll"
	"github.com/okian/kaushal/internal/client/upload"
	"github.com/okian/kaushal/internal/domain/types"
	"github.com/okian/kaushal/pkg/logger"
)

var uploadFlags struct {
	clientFlags
	athlete    string
	testType   string
	assessment string
	duration   int
	async      bool
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload an existing clip file and wait for the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return uploadFile(cmd, args[0])
	},
}

func init() {
	f := &uploadFlags
	f.bind(uploadCmd)
	uploadCmd.Flags().StringVar(&f.athlete, "athlete", "", "Athlete id (registers one for --user when empty)")
	uploadCmd.Flags().StringVar(&f.testType, "test", "", "Test type id or slug")
	uploadCmd.Flags().StringVar(&f.assessment, "assessment", "", "Upload into an existing pending assessment")
	uploadCmd.Flags().IntVar(&f.duration, "duration", 0, "Clip length in seconds")
	uploadCmd.Flags().BoolVar(&f.async, "async", false, "Return once accepted and poll for the result")
}

func uploadFile(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	f := &uploadFlags
	api := f.client()

	id := f.assessment
	if id == "" {
		created, err := createFor(ctx, f.athlete, f.testType)
		if err != nil {
			return err
		}
		id = created.ID
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return err
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "video/webm"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "uploading %s to assessment %s\n", filepath.Base(path), id)
	t := upload.NewCoordinator(api, upload.WithAsync(f.async), upload.WithLogger(logger.Named("upload"))).
		Upload(ctx, id, upload.Clip{
			Name:            filepath.Base(path),
			ContentType:     contentType,
			Body:            file,
			Size:            info.Size(),
			DurationSeconds: f.duration,
		})
	last := -1
	for pct := range t.Progress {
		if pct/10 != last/10 || pct == 100 {
			fmt.Fprintf(out, "  %3d%%\n", pct)
		}
		last = pct
	}

	res := t.Wait()
	switch res.Kind {
	case upload.KindSuccess:
	case upload.KindServerError:
		if res.Assessment.ID != "" {
			printResult(cmd, res.Assessment)
		}
		return fmt.Errorf("upload rejected: %d %s: %s", res.StatusCode, res.Code, res.Message)
	default:
		return fmt.Errorf("upload %s: %w", res.Kind, res.Err)
	}

	if res.Assessment.Status.IsTerminal() {
		printResult(cmd, res.Assessment)
		return nil
	}
	final, err := poll.New(api, poll.WithInterval(f.interval)).Watch(ctx, id, func(a types.Assessment) {
		fmt.Fprintf(out, "  status: %s\n", a.Status)
	})
	if err != nil {
		return err
	}
	printResult(cmd, final)
	return nil
}

// createFor registers a pending assessment for the upload command.
func createFor(ctx context.Context, athleteRef, testRef string) (types.Assessment, error) {
	f := &uploadFlags
	api := f.client()
	if testRef == "" {
		return types.Assessment{}, fmt.Errorf("--test is required without --assessment")
	}
	athleteID, err := resolveAthlete(ctx, api, athleteRef, f.userID)
	if err != nil {
		return types.Assessment{}, err
	}
	tts, err := api.ListTestTypes(ctx)
	if err != nil {
		return types.Assessment{}, fmt.Errorf("list test types: %w", err)
	}
	tt, ok := testTypeName(tts, testRef)
	if !ok {
		return types.Assessment{}, fmt.Errorf("unknown test type %q", testRef)
	}
	return api.CreateAssessment(ctx, types.CreateAssessmentRequest{AthleteID: athleteID, TestTypeID: tt.ID})
}
