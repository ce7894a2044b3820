// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of an assessment.
type Status string

// Assessment statuses. Transitions only move forward:
// pending -> processing -> completed | failed.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can happen.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Rank orders statuses along the lifecycle. Both terminal states share a rank.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// FailureReason is the machine-readable cause of a failed assessment.
type FailureReason string

// Failure reasons.
const (
	ReasonIntegrityFailed   FailureReason = "integrity_failed"
	ReasonAnalysisError     FailureReason = "analysis_error"
	ReasonMalformedResponse FailureReason = "malformed_response"
	ReasonTimeout           FailureReason = "timeout"
	ReasonQueueFull         FailureReason = "queue_full"
	ReasonStaleProcessing   FailureReason = "stale_processing"
)

// Athlete is the subject of assessments.
type Athlete struct {
	ID           string
	UserID       string
	Age          *int
	HeightCm     *float64
	WeightKg     *float64
	PrimarySport string
	Location     string
	CreatedAt    time.Time
}

// TestType describes one performance test an athlete can record.
type TestType struct {
	ID                   string
	Slug                 string
	Name                 string
	Category             string
	Description          string
	Instructions         string
	PromptHint           string
	EstimatedDurationMin int
	Difficulty           string
	Active               bool
	CreatedAt            time.Time
}

// Assessment is one athlete's attempt at one test type.
type Assessment struct {
	ID         string
	AthleteID  string
	TestTypeID string
	Status     Status

	// VideoKey locates the stored clip; empty until ingestion.
	VideoKey string
	// DurationSeconds is the client-reported clip length.
	DurationSeconds *int

	// Written only by the terminal transition.
	PerformanceScore  *float64
	Feedback          string
	AIAnalysisResults json.RawMessage
	FailureReason     FailureReason

	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PerformanceMetric is one named measurement of a completed assessment.
type PerformanceMetric struct {
	ID           string
	AssessmentID string
	Name         string
	Value        float64
	Unit         string
	Confidence   float64
	CreatedAt    time.Time
}
