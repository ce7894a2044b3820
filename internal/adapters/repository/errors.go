package repository

import (
	"errors"
	"fmt"

	"github.com/okian/kaushal/internal/domain/model"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("status conflict")
	ErrAlreadyFinalized = model.ErrAlreadyFinalized
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnknownDriver    = errors.New("unknown database driver")
)

// KindError carries the failing operation, a sentinel kind and the cause.
type KindError struct {
	Op   string
	Kind error
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Is matches the kind so callers can use errors.Is(err, ErrNotFound).
func (e *KindError) Is(target error) bool { return target == e.Kind }

func (e *KindError) Unwrap() error { return e.Err }

// WrapKind annotates err with op and kind.
func WrapKind(op string, kind, err error) error {
	return &KindError{Op: op, Kind: kind, Err: err}
}

// NewKind returns an error of kind for op with no underlying cause.
func NewKind(op string, kind error) error {
	return &KindError{Op: op, Kind: kind}
}
