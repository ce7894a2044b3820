package collaborator

import (
	"errors"

	"github.com/okian/kaushal/internal/domain/analysis"
)

var (
	// ErrCall wraps any failure to obtain a response.
	ErrCall = errors.New("collaborator call failed")
	// ErrEmptyResponse means the provider answered without content.
	ErrEmptyResponse = analysis.ErrEmptyResponse
	// ErrUnknownProvider is returned by New for unsupported names.
	ErrUnknownProvider = errors.New("unknown collaborator provider")
)
