// Package repository persists athletes, test types, assessments and metrics.
package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/okian/kaushal/internal/domain/model"
)

// Store provides read/write access to assessment state.
//
// Status only moves forward. MarkProcessing, Complete and Fail are conditional
// on the current status and report ErrConflict or ErrAlreadyFinalized instead
// of overwriting.
type Store interface {
	CreateAthlete(ctx context.Context, a *model.Athlete) error
	GetAthlete(ctx context.Context, id string) (model.Athlete, error)

	// UpsertTestType inserts or updates by slug and fills in the stored id.
	UpsertTestType(ctx context.Context, t *model.TestType) error
	GetTestType(ctx context.Context, id string) (model.TestType, error)
	GetTestTypeBySlug(ctx context.Context, slug string) (model.TestType, error)
	ListTestTypes(ctx context.Context, activeOnly bool) ([]model.TestType, error)

	// CreateAssessment stores a in pending.
	CreateAssessment(ctx context.Context, a *model.Assessment) error
	GetAssessment(ctx context.Context, id string) (model.Assessment, error)
	ListMetrics(ctx context.Context, assessmentID string) ([]model.PerformanceMetric, error)

	// MarkProcessing moves a pending assessment to processing and records the clip.
	MarkProcessing(ctx context.Context, id, videoKey string, duration *int) error
	// Complete writes the result and metrics of a processing assessment atomically.
	Complete(ctx context.Context, id string, score float64, feedback string, results json.RawMessage, metrics []model.PerformanceMetric) error
	// Fail moves a processing assessment to failed.
	Fail(ctx context.Context, id string, reason model.FailureReason, results json.RawMessage) error

	// ListStaleProcessing returns ids of processing assessments last updated before cutoff.
	ListStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	CountByStatus(ctx context.Context) (map[model.Status]int, error)

	Close() error
}
