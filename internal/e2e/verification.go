package e2e

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"

	"github.com/okian/kaushal/internal/client"
	"github.com/okian/kaushal/internal/client/poll"
	"github.com/okian/kaushal/internal/client/upload"
	"github.com/okian/kaushal/internal/domain/model"
	"github.com/okian/kaushal/internal/domain/types"
	"github.com/okian/kaushal/pkg/logger"
)

// Property names in the report.
const (
	PropMonotonicStatus  = "monotonic_status"
	PropScoreBounds      = "score_bounds"
	PropExpectedOutcome  = "expected_outcome"
	PropSingleIngestion  = "single_ingestion"
	PropRejectionNoWrite = "rejection_leaves_status"
)

// verifyOutcomes checks every uploaded case.
func verifyOutcomes(ctx context.Context, outcomes []Outcome) []Property {
	logger.Get().Info(ctx, "verifying outcomes", logger.Int("count", len(outcomes)))

	monotonic := Property{Name: PropMonotonicStatus, Passed: true}
	bounds := Property{Name: PropScoreBounds, Passed: true}
	expected := Property{Name: PropExpectedOutcome, Passed: true}

	for i := range outcomes {
		o := &outcomes[i]

		monotonic.Checked++
		if err := checkMonotonic(o.Observed); err != nil {
			monotonic.fail(o.AssessmentID, err.Error())
			o.Violations = append(o.Violations, err.Error())
		}

		if o.Final.Status == model.StatusCompleted {
			bounds.Checked++
			for _, v := range checkBounds(o.Final) {
				bounds.fail(o.AssessmentID, v)
				o.Violations = append(o.Violations, v)
			}
		}

		expected.Checked++
		if v := checkExpected(*o); v != "" {
			expected.fail(o.AssessmentID, v)
			o.Violations = append(o.Violations, v)
		}
	}
	return []Property{monotonic, bounds, expected}
}

func (p *Property) fail(id, detail string) {
	p.Passed = false
	p.Details = append(p.Details, id+": "+detail)
}

func checkMonotonic(observed []model.Status) error {
	for i := 1; i < len(observed); i++ {
		if observed[i].Rank() < observed[i-1].Rank() {
			return fmt.Errorf("status went from %s to %s", observed[i-1], observed[i])
		}
	}
	return nil
}

func checkBounds(a types.Assessment) []string {
	var out []string
	if a.PerformanceScore == nil {
		out = append(out, "completed without a performance score")
	} else if s := *a.PerformanceScore; s < 0 || s > 100 {
		out = append(out, fmt.Sprintf("performance score %.2f outside [0,100]", s))
	}
	for _, m := range a.Metrics {
		if m.Confidence < 0 || m.Confidence > 1 {
			out = append(out, fmt.Sprintf("metric %s confidence %.2f outside [0,1]", m.Name, m.Confidence))
		}
	}
	return out
}

func checkExpected(o Outcome) string {
	if o.Final.Status != o.Expect {
		return fmt.Sprintf("%s ended %s, want %s", o.Scenario, o.Final.Status, o.Expect)
	}
	if o.ExpectReason != "" && o.Final.FailureReason != o.ExpectReason {
		return fmt.Sprintf("%s failed with %q, want %q", o.Scenario, o.Final.FailureReason, o.ExpectReason)
	}
	if o.Final.Status == model.StatusFailed && o.Final.PerformanceScore != nil {
		return "failed assessment carries a performance score"
	}
	if o.Scenario == ScenarioOutOfRange && (o.Final.PerformanceScore == nil || *o.Final.PerformanceScore != 100) {
		return "out-of-range score was not clamped to 100"
	}
	return ""
}

// verifySingleIngestion races concurrent uploads of one clip at one
// assessment. Exactly one may be accepted and the result must carry no
// duplicate metric rows.
func verifySingleIngestion(ctx context.Context, config *Config, api *client.Client, poller *poll.Poller, c Case) Property {
	prop := Property{Name: PropSingleIngestion, Passed: true, Checked: config.Racers}
	logger.Get().Info(ctx, "racing uploads at one assessment",
		logger.String("assessment_id", c.AssessmentID), logger.Int("racers", config.Racers))

	statuses := make([]int, config.Racers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < config.Racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// One coordinator per racer: a coordinator would cancel its own prior transfer.
			up := upload.NewCoordinator(api, upload.WithAsync(true))
			<-start
			res := up.Upload(ctx, c.AssessmentID, upload.Clip{
				Name: "race.webm", ContentType: "video/webm",
				Body: bytes.NewReader(c.Clip), Size: int64(len(c.Clip)),
			}).Wait()
			statuses[i] = res.StatusCode
		}(i)
	}
	close(start)
	wg.Wait()

	accepted := 0
	for _, s := range statuses {
		switch {
		case s >= 200 && s < 300:
			accepted++
		case s == http.StatusConflict, s == http.StatusTooManyRequests:
		default:
			prop.fail(c.AssessmentID, fmt.Sprintf("unexpected upload status %d", s))
		}
	}
	if accepted != 1 {
		prop.fail(c.AssessmentID, fmt.Sprintf("%d uploads accepted, want 1", accepted))
	}

	final, err := poller.Watch(ctx, c.AssessmentID, nil)
	if err != nil {
		prop.fail(c.AssessmentID, "poll: "+err.Error())
		return prop
	}
	seen := make(map[string]bool, len(final.Metrics))
	for _, m := range final.Metrics {
		if seen[m.Name] {
			prop.fail(c.AssessmentID, "duplicate metric "+m.Name)
		}
		seen[m.Name] = true
	}
	return prop
}

// zeroReader yields zero bytes forever.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

// verifyRejections sends a non-video part and an oversize clip to pending
// assessments and checks that both stay pending.
func verifyRejections(ctx context.Context, config *Config, api *client.Client, badMIME, oversize Case) Property {
	prop := Property{Name: PropRejectionNoWrite, Passed: true, Checked: 2}
	up := upload.NewCoordinator(api)

	res := up.Upload(ctx, badMIME.AssessmentID, upload.Clip{
		Name: "notes.txt", ContentType: "text/plain",
		Body: bytes.NewReader([]byte("not a video")), Size: 11,
	}).Wait()
	if res.StatusCode != http.StatusBadRequest {
		prop.fail(badMIME.AssessmentID, fmt.Sprintf("text/plain upload got %d (%s), want 400", res.StatusCode, res.Kind))
	}
	checkPending(ctx, api, badMIME.AssessmentID, &prop)

	size := config.MaxUploadBytes + 1
	res = up.Upload(ctx, oversize.AssessmentID, upload.Clip{
		Name: "huge.webm", ContentType: "video/webm",
		Body: io.LimitReader(zeroReader{}, size), Size: size,
	}).Wait()
	// The server may close the connection before the client finishes
	// writing, which surfaces as a network error instead of 413.
	if res.Kind == upload.KindSuccess || (res.Kind == upload.KindServerError && res.StatusCode != http.StatusRequestEntityTooLarge) {
		prop.fail(oversize.AssessmentID, fmt.Sprintf("oversize upload got %d (%s), want 413", res.StatusCode, res.Kind))
	}
	checkPending(ctx, api, oversize.AssessmentID, &prop)
	return prop
}

func checkPending(ctx context.Context, api *client.Client, id string, prop *Property) {
	a, err := api.GetAssessment(ctx, id)
	if err != nil {
		prop.fail(id, "read back: "+err.Error())
		return
	}
	if a.Status != model.StatusPending {
		prop.fail(id, fmt.Sprintf("status %s after rejected upload, want pending", a.Status))
	}
}

// displayScoreSummary logs the best completed scores.
func displayScoreSummary(ctx context.Context, outcomes []Outcome, verbose bool) {
	var completed []Outcome
	for _, o := range outcomes {
		if o.Final.Status == model.StatusCompleted && o.Final.PerformanceScore != nil {
			completed = append(completed, o)
		}
	}
	if len(completed) == 0 {
		return
	}
	sort.Slice(completed, func(i, j int) bool {
		return *completed[i].Final.PerformanceScore > *completed[j].Final.PerformanceScore
	})

	topN := minInt(5, len(completed))
	for i := 0; i < topN; i++ {
		o := completed[i]
		logger.Get().Info(ctx, "top score",
			logger.Int("rank", i+1),
			logger.String("assessment_id", o.AssessmentID),
			logger.String("test", o.TestSlug),
			logger.Float64("score", *o.Final.PerformanceScore))
	}

	if verbose {
		sum := 0.0
		for _, o := range completed {
			sum += *o.Final.PerformanceScore
		}
		logger.Get().Info(ctx, "score statistics",
			logger.Float64("average", sum/float64(len(completed))),
			logger.Float64("maximum", *completed[0].Final.PerformanceScore),
			logger.Float64("minimum", *completed[len(completed)-1].Final.PerformanceScore))
	}
}
