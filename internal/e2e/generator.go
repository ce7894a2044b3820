package e2e

import (
	"context"
	"crypto/rand"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/okian/kaushal/internal/adapters/collaborator"
	"github.com/okian/kaushal/internal/client"
	"github.com/okian/kaushal/internal/domain/model"
	"github.com/okian/kaushal/internal/domain/types"
	"github.com/okian/kaushal/pkg/logger"
)

// assessmentsPerAthlete groups cases under shared athletes.
const assessmentsPerAthlete = 5

// scenarioFor spreads scenarios over case indexes: six in ten clean, one of
// each failure path and one out-of-range score.
func scenarioFor(i int) Scenario {
	switch i % 10 {
	case 6:
		return ScenarioIntegrityFail
	case 7:
		return ScenarioMalformed
	case 8:
		return ScenarioError
	case 9:
		return ScenarioOutOfRange
	default:
		return ScenarioClean
	}
}

// expectation is the terminal state a scenario must reach.
func expectation(s Scenario) (model.Status, string) {
	switch s {
	case ScenarioIntegrityFail:
		return model.StatusFailed, string(model.ReasonIntegrityFailed)
	case ScenarioMalformed:
		return model.StatusFailed, string(model.ReasonMalformedResponse)
	case ScenarioError:
		return model.StatusFailed, string(model.ReasonAnalysisError)
	default:
		return model.StatusCompleted, ""
	}
}

func marker(s Scenario) []byte {
	switch s {
	case ScenarioIntegrityFail:
		return collaborator.MarkerIntegrityFail
	case ScenarioMalformed:
		return collaborator.MarkerMalformed
	case ScenarioError:
		return collaborator.MarkerError
	case ScenarioOutOfRange:
		return collaborator.MarkerOutOfRange
	}
	return nil
}

// syntheticClip is random bytes with the scenario marker in the middle.
func syntheticClip(size int, s Scenario) []byte {
	clip := make([]byte, size)
	_, _ = rand.Read(clip)
	if m := marker(s); m != nil && len(m) < size {
		copy(clip[size/2:], m)
	}
	return clip
}

// generateCases creates athletes and pending assessments concurrently.
func generateCases(ctx context.Context, config *Config, api *client.Client, stats *Stats) ([]Case, error) {
	logger.Get().Info(ctx, "creating athletes and assessments", logger.Int("assessments", config.Assessments))

	tts, err := api.ListTestTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list test types: %w", err)
	}
	if len(tts) == 0 {
		return nil, fmt.Errorf("server has no test types")
	}

	athletes := (config.Assessments + assessmentsPerAthlete - 1) / assessmentsPerAthlete
	athleteIDs := make([]string, athletes)
	for i := range athleteIDs {
		age := 16 + i%10
		ath, err := api.CreateAthlete(ctx, types.CreateAthleteRequest{
			UserID:       "e2e-" + uuid.NewString(),
			Age:          &age,
			PrimarySport: "football",
		})
		if err != nil {
			return nil, fmt.Errorf("create athlete %d: %w", i, err)
		}
		athleteIDs[i] = ath.ID
	}
	stats.AthletesCreated = athletes

	type caseResult struct {
		index int
		c     Case
		err   error
	}
	resultChan := make(chan caseResult, config.Assessments)

	workerCount := minInt(config.Workers, config.Assessments)
	perWorker := config.Assessments / workerCount
	for worker := 0; worker < workerCount; worker++ {
		start := worker * perWorker
		end := start + perWorker
		if worker == workerCount-1 {
			end = config.Assessments
		}

		go func(start, end int) {
			for i := start; i < end; i++ {
				if ctx.Err() != nil {
					resultChan <- caseResult{index: i, err: ctx.Err()}
					continue
				}
				c, err := generateSingleCase(ctx, config, api, i, athleteIDs[i/assessmentsPerAthlete], tts[i%len(tts)])
				resultChan <- caseResult{index: i, c: c, err: err}
			}
		}(start, end)
	}

	cases := make([]Case, config.Assessments)
	for i := 0; i < config.Assessments; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during case generation: %w", ctx.Err())
		case result := <-resultChan:
			if result.err != nil {
				return nil, fmt.Errorf("failed to create assessment %d: %w", result.index, result.err)
			}
			cases[result.index] = result.c
		}
	}

	stats.AssessmentsCreated = len(cases)
	logger.Get().Info(ctx, "created assessments", logger.Int("count", len(cases)), logger.Int("athletes", athletes))
	return cases, nil
}

func generateSingleCase(ctx context.Context, config *Config, api *client.Client, index int, athleteID string, tt types.TestType) (Case, error) {
	a, err := api.CreateAssessment(ctx, types.CreateAssessmentRequest{
		AthleteID:  athleteID,
		TestTypeID: tt.ID,
		Metadata:   map[string]any{"source": "e2e", "index": strconv.Itoa(index)},
	})
	if err != nil {
		return Case{}, err
	}
	s := scenarioFor(index)
	expect, reason := expectation(s)
	return Case{
		Scenario:     s,
		AthleteID:    athleteID,
		AssessmentID: a.ID,
		TestSlug:     tt.Slug,
		Expect:       expect,
		ExpectReason: reason,
		Clip:         syntheticClip(config.ClipBytes, s),
	}, nil
}

// minInt returns the minimum of two integers.
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
