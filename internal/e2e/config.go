package e2e

import (
	"time"

	"github.com/okian/kaushal/internal/domain/model"
	"github.com/okian/kaushal/internal/domain/types"
)

// Config holds configuration for an end-to-end run.
type Config struct {
	BaseURL        string        // Base URL of the service
	Assessments    int           // Number of assessments to upload
	Workers        int           // Number of concurrent uploaders
	Racers         int           // Concurrent uploads aimed at one assessment
	ClipBytes      int           // Size of each synthetic clip
	MaxUploadBytes int64         // Server ingestion ceiling, used by the oversize probe
	Timeout        time.Duration // HTTP request timeout
	PollInterval   time.Duration // Delay between status reads
	ReportFile     string        // Output file for the JSON report
	LogFile        string        // Log file for run output
	UserID         string        // Sent as X-User-ID
	Verbose        bool          // Enable verbose logging
}

// Scenario steers the simulated collaborator through a marker in the clip.
type Scenario string

const (
	ScenarioClean         Scenario = "clean"
	ScenarioIntegrityFail Scenario = "integrity_fail"
	ScenarioMalformed     Scenario = "malformed"
	ScenarioError         Scenario = "error"
	ScenarioOutOfRange    Scenario = "out_of_range"
)

// Case is one assessment and the outcome it must reach.
type Case struct {
	Scenario     Scenario     `json:"scenario"`
	AthleteID    string       `json:"athleteId"`
	AssessmentID string       `json:"assessmentId"`
	TestSlug     string       `json:"testSlug"`
	Expect       model.Status `json:"expect"`
	ExpectReason string       `json:"expectReason,omitempty"`
	Clip         []byte       `json:"-"`
}

// Outcome records what happened to a case.
type Outcome struct {
	Case
	UploadStatus int              `json:"uploadStatus"`
	Observed     []model.Status   `json:"observed"`
	Final        types.Assessment `json:"final"`
	Violations   []string         `json:"violations,omitempty"`
	Took         time.Duration    `json:"took"`
}

// Property is the verdict on one checked property.
type Property struct {
	Name    string   `json:"name"`
	Passed  bool     `json:"passed"`
	Checked int      `json:"checked"`
	Details []string `json:"details,omitempty"`
}

// Stats holds run statistics.
type Stats struct {
	AthletesCreated    int           `json:"athletesCreated"`
	AssessmentsCreated int           `json:"assessmentsCreated"`
	UploadsSubmitted   int           `json:"uploadsSubmitted"`
	UploadsAccepted    int           `json:"uploadsAccepted"`
	UploadsRejected    int           `json:"uploadsRejected"`
	UploadsFailed      int           `json:"uploadsFailed"`
	Completed          int           `json:"completed"`
	Failed             int           `json:"failed"`
	StartTime          time.Time     `json:"startTime"`
	EndTime            time.Time     `json:"endTime"`
	Duration           time.Duration `json:"duration"`
}

// Report is written to Config.ReportFile.
type Report struct {
	BaseURL    string     `json:"baseUrl"`
	Passed     bool       `json:"passed"`
	Stats      Stats      `json:"stats"`
	Properties []Property `json:"properties"`
	Outcomes   []Outcome  `json:"outcomes"`
}
