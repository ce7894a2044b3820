package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/kaushal/internal/client"
	"github.com/okian/kaushal/internal/domain/types"
)

// Defaults shared by the client commands.
const (
	defaultServerURL    = "http://localhost:9080"
	defaultClientTimeout = 2 * time.Minute
	defaultPollInterval = 2 * time.Second
	defaultRole         = "athlete"
)

// clientFlags are the connection settings of record, upload and watch.
type clientFlags struct {
	url      string
	userID   string
	role     string
	timeout  time.Duration
	interval time.Duration
}

func (f *clientFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", defaultServerURL, "Base URL of the server")
	cmd.Flags().StringVar(&f.userID, "user", "", "User id sent as X-User-ID")
	cmd.Flags().StringVar(&f.role, "role", defaultRole, "Role sent as X-User-Role")
	cmd.Flags().DurationVar(&f.timeout, "timeout", defaultClientTimeout, "HTTP request timeout")
	cmd.Flags().DurationVar(&f.interval, "interval", defaultPollInterval, "Delay between status reads")
}

func (f *clientFlags) client() *client.Client {
	return client.New(f.url, client.WithTimeout(f.timeout), client.WithIdentity(f.userID, f.role))
}

// resolveAthlete returns athleteID, or registers an athlete for the user
// when it is empty.
func resolveAthlete(ctx context.Context, api *client.Client, athleteID, userID string) (string, error) {
	if athleteID != "" {
		if _, err := api.GetAthlete(ctx, athleteID); err != nil {
			return "", fmt.Errorf("athlete %s: %w", athleteID, err)
		}
		return athleteID, nil
	}
	if userID == "" {
		return "", fmt.Errorf("either --athlete or --user is required")
	}
	a, err := api.CreateAthlete(ctx, types.CreateAthleteRequest{UserID: userID})
	if err != nil {
		return "", fmt.Errorf("register athlete: %w", err)
	}
	return a.ID, nil
}

// testTypeName finds the display name of a test type by id or slug.
func testTypeName(tts []types.TestType, ref string) (types.TestType, bool) {
	for _, tt := range tts {
		if tt.ID == ref || tt.Slug == ref {
			return tt, true
		}
	}
	return types.TestType{}, false
}

// printResult writes the terminal outcome of an assessment.
func printResult(cmd *cobra.Command, a types.Assessment) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "assessment %s: %s\n", a.ID, a.Status)
	if a.FailureReason != "" {
		fmt.Fprintf(out, "  reason: %s\n", a.FailureReason)
	}
	if a.PerformanceScore != nil {
		fmt.Fprintf(out, "  score:  %.1f\n", *a.PerformanceScore)
	}
	for _, m := range a.Metrics {
		fmt.Fprintf(out, "  %-24s %8.2f %s\n", m.Name, m.Value, m.Unit)
	}
	if a.Feedback != "" {
		fmt.Fprintf(out, "  feedback: %s\n", a.Feedback)
	}
}
