package api

import (
	"errors"
	"fmt"
	"net/http"

	service "github.com/okian/kaushal/internal/app"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrNoFile       = errors.New("no video file provided")
	ErrUnauthorized = errors.New("missing caller identity")
)

// KindError tags an error with a sentinel kind while keeping its cause.
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

func (e *KindError) Is(target error) bool { return target == e.Kind }

func (e *KindError) Unwrap() error { return e.Err }

// WrapKind tags err with kind.
func WrapKind(op string, kind, err error) error {
	return &KindError{Op: op, Kind: kind, Err: err}
}

// NewKind builds a bare kind error.
func NewKind(op string, kind error) error {
	return &KindError{Op: op, Kind: kind}
}

// classify maps an error to an HTTP status and a machine-readable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrNoFile), errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, service.ErrUnsupportedMedia):
		return http.StatusBadRequest, "unsupported_media_type"
	case errors.Is(err, service.ErrUnknownTestType):
		return http.StatusBadRequest, "unknown_test_type"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrNotPending):
		return http.StatusConflict, "not_pending"
	case errors.Is(err, service.ErrUploadInFlight):
		return http.StatusConflict, "upload_in_flight"
	case errors.Is(err, service.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, service.ErrOverloaded):
		return http.StatusTooManyRequests, "overloaded"
	case errors.Is(err, service.ErrQueueFull):
		return http.StatusServiceUnavailable, "queue_full"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge, "too_large"
	}
	return http.StatusInternalServerError, "internal"
}
