// Package types contains the wire shapes shared by the HTTP API and its clients.
package types

import (
	"encoding/json"
	"time"

	"github.com/okian/kaushal/internal/domain/model"
)

// Metric is one performance metric as returned by the API.
type Metric struct {
	Name       string  `json:"name"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Confidence float64 `json:"confidence"`
}

// Assessment is the read shape of GET /assessments/{id}.
type Assessment struct {
	ID                string          `json:"id"`
	AthleteID         string          `json:"athleteId"`
	TestTypeID        string          `json:"testTypeId"`
	Status            model.Status    `json:"status"`
	VideoURL          string          `json:"videoUrl,omitempty"`
	Duration          *int            `json:"duration,omitempty"`
	PerformanceScore  *float64        `json:"performanceScore,omitempty"`
	Feedback          string          `json:"feedback,omitempty"`
	AIAnalysisResults json.RawMessage `json:"aiAnalysisResults,omitempty"`
	FailureReason     string          `json:"failureReason,omitempty"`
	Metrics           []Metric        `json:"metrics"`
	Metadata          map[string]any  `json:"metadata,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Athlete is the read shape of an athlete.
type Athlete struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Age          *int      `json:"age,omitempty"`
	HeightCm     *float64  `json:"height,omitempty"`
	WeightKg     *float64  `json:"weight,omitempty"`
	PrimarySport string    `json:"primarySport,omitempty"`
	Location     string    `json:"location,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TestType is the read shape of a test type.
type TestType struct {
	ID                   string `json:"id"`
	Slug                 string `json:"slug"`
	Name                 string `json:"name"`
	Category             string `json:"category"`
	Description          string `json:"description,omitempty"`
	Instructions         string `json:"instructions,omitempty"`
	EstimatedDurationMin int    `json:"estimatedDuration,omitempty"`
	Difficulty           string `json:"difficultyLevel,omitempty"`
	Active               bool   `json:"isActive"`
}

// UploadResponse is returned by a synchronous successful upload.
type UploadResponse struct {
	Message        string          `json:"message"`
	Assessment     Assessment      `json:"assessment"`
	AnalysisResult json.RawMessage `json:"analysisResult,omitempty"`
}

// ErrorResponse is the error body of every endpoint. Error and Reason are set
// only for analysis failures, Issues only for integrity failures.
type ErrorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Error   string   `json:"error,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	Issues  []string `json:"issues,omitempty"`
}

// CreateAthleteRequest is the body of POST /athletes.
type CreateAthleteRequest struct {
	UserID       string   `json:"userId"`
	Age          *int     `json:"age,omitempty"`
	HeightCm     *float64 `json:"height,omitempty"`
	WeightKg     *float64 `json:"weight,omitempty"`
	PrimarySport string   `json:"primarySport,omitempty"`
	Location     string   `json:"location,omitempty"`
}

// CreateTestTypeRequest is the body of POST /test-types.
type CreateTestTypeRequest struct {
	Slug                 string `json:"slug"`
	Name                 string `json:"name"`
	Category             string `json:"category"`
	Description          string `json:"description,omitempty"`
	Instructions         string `json:"instructions,omitempty"`
	PromptHint           string `json:"promptHint,omitempty"`
	EstimatedDurationMin int    `json:"estimatedDuration,omitempty"`
	Difficulty           string `json:"difficultyLevel,omitempty"`
}

// CreateAssessmentRequest is the body of POST /assessments. TestType is a
// free-form name resolved against the catalog when TestTypeID is empty.
type CreateAssessmentRequest struct {
	AthleteID  string         `json:"athleteId"`
	TestTypeID string         `json:"testTypeId,omitempty"`
	TestType   string         `json:"testType,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// FromAssessment builds the read shape from the model and its metrics.
func FromAssessment(a *model.Assessment, metrics []model.PerformanceMetric) Assessment {
	out := Assessment{
		ID:                a.ID,
		AthleteID:         a.AthleteID,
		TestTypeID:        a.TestTypeID,
		Status:            a.Status,
		Duration:          a.DurationSeconds,
		PerformanceScore:  a.PerformanceScore,
		Feedback:          a.Feedback,
		AIAnalysisResults: a.AIAnalysisResults,
		FailureReason:     string(a.FailureReason),
		Metrics:           make([]Metric, 0, len(metrics)),
		Metadata:          a.Metadata,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
	if a.VideoKey != "" {
		out.VideoURL = "/assessments/" + a.ID + "/video"
	}
	for _, m := range metrics {
		out.Metrics = append(out.Metrics, Metric{Name: m.Name, Value: m.Value, Unit: m.Unit, Confidence: m.Confidence})
	}
	return out
}

// FromAthlete builds the read shape of an athlete.
func FromAthlete(a *model.Athlete) Athlete {
	return Athlete{
		ID:           a.ID,
		UserID:       a.UserID,
		Age:          a.Age,
		HeightCm:     a.HeightCm,
		WeightKg:     a.WeightKg,
		PrimarySport: a.PrimarySport,
		Location:     a.Location,
		CreatedAt:    a.CreatedAt,
	}
}

// FromTestType builds the read shape of a test type.
func FromTestType(t *model.TestType) TestType {
	return TestType{
		ID:                   t.ID,
		Slug:                 t.Slug,
		Name:                 t.Name,
		Category:             t.Category,
		Description:          t.Description,
		Instructions:         t.Instructions,
		EstimatedDurationMin: t.EstimatedDurationMin,
		Difficulty:           t.Difficulty,
		Active:               t.Active,
	}
}
