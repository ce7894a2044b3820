package e2e

import "time"

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	DefaultAssessments    = 50
	DefaultRacers         = 8
	DefaultClipBytes      = 64 * 1024
	DefaultMaxUploadBytes = 50 * 1024 * 1024
	DefaultPollInterval   = 500 * time.Millisecond
	PercentageMultiplier  = 100
	progressInterval      = time.Second
)
