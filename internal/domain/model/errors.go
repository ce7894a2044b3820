package model

import "errors"

// ErrAlreadyFinalized is reported by stores when a terminal write targets an
// assessment that is already completed or failed.
var ErrAlreadyFinalized = errors.New("assessment already finalized")
