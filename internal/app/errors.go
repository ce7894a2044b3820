package service

import (
	"errors"

	"github.com/okian/kaushal/internal/adapters/repository"
	"github.com/okian/kaushal/internal/domain/analysis"
	"github.com/okian/kaushal/internal/domain/claim"
)

// Sentinel kinds returned by the service. Handlers map them to status codes.
var (
	ErrNotStarted       = errors.New("service not started")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = repository.ErrNotFound
	ErrUnknownTestType  = analysis.ErrUnknownTestType
	ErrNotPending       = errors.New("assessment is not awaiting a video")
	ErrUnsupportedMedia = errors.New("only video files are allowed")
	ErrTooLarge         = errors.New("video exceeds the upload size limit")
	ErrUploadInFlight   = claim.ErrAlreadyClaimed
	ErrOverloaded       = claim.ErrCapacity
	ErrQueueFull        = errors.New("analysis queue is full")
)
