package orchestrator

import "errors"

var (
	// ErrNotProcessing means the assessment was not in processing when the run started
	// or was finalized by another writer before this run finished.
	ErrNotProcessing = errors.New("assessment not processing")
	// ErrIntegrity means the integrity pre-check rejected the clip.
	ErrIntegrity = errors.New("video integrity check failed")
	// ErrPersist means the terminal state could not be written.
	ErrPersist = errors.New("persist terminal state")
)
