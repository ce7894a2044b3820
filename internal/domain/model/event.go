package model

import "time"

// StatusEvent is one status transition as pushed to subscribers.
type StatusEvent struct {
	AssessmentID     string    `json:"assessmentId" msgpack:"assessmentId"`
	Status           string    `json:"status" msgpack:"status"`
	Reason           string    `json:"reason,omitempty" msgpack:"reason,omitempty"`
	PerformanceScore *float64  `json:"performanceScore,omitempty" msgpack:"performanceScore,omitempty"`
	At               time.Time `json:"at" msgpack:"at"`
}

// ClipInfo describes a stored clip.
type ClipInfo struct {
	Size        int64
	ContentType string
}
