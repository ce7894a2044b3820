package analysis

import "errors"

// Sentinel kinds for analysis errors.
var (
	ErrMalformed       = errors.New("malformed collaborator response")
	ErrUnknownTestType = errors.New("unknown test type")
	ErrCatalog         = errors.New("invalid test type catalog")
	// ErrEmptyResponse means the collaborator answered without content.
	ErrEmptyResponse = errors.New("collaborator returned no content")
)
