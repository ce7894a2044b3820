package orchestrator

import (
	"context"
	"encoding/json"
	"io"

	"github.com/okian/kaushal/internal/domain/analysis"
	"github.com/okian/kaushal/internal/domain/model"
)

// Store is the persistence the orchestrator reads and finalizes through.
// Complete and Fail report model.ErrAlreadyFinalized when the assessment is
// no longer processing.
type Store interface {
	GetAssessment(ctx context.Context, id string) (model.Assessment, error)
	GetAthlete(ctx context.Context, id string) (model.Athlete, error)
	GetTestType(ctx context.Context, id string) (model.TestType, error)
	Complete(ctx context.Context, id string, score float64, feedback string, results json.RawMessage, metrics []model.PerformanceMetric) error
	Fail(ctx context.Context, id string, reason model.FailureReason, results json.RawMessage) error
}

// Clips opens stored clips.
type Clips interface {
	Open(ctx context.Context, key string) (io.ReadCloser, model.ClipInfo, error)
}

// Collaborator is the external analysis service. An answer without content
// is reported as analysis.ErrEmptyResponse.
type Collaborator interface {
	CheckIntegrity(ctx context.Context, clip analysis.Clip) ([]byte, error)
	Analyze(ctx context.Context, req analysis.Request) ([]byte, error)
}

// Notifier receives terminal transitions.
type Notifier interface {
	Notify(ctx context.Context, ev model.StatusEvent) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.StatusEvent) error { return nil }
