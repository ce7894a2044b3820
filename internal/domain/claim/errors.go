package claim

import "errors"

var (
	// ErrAlreadyClaimed means another upload for the same assessment is in flight.
	ErrAlreadyClaimed = errors.New("assessment upload already in flight")
	// ErrCapacity means the global in-flight limit is reached.
	ErrCapacity = errors.New("too many uploads in flight")
)
