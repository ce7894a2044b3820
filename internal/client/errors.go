package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/kaushal/internal/domain/types"
)

// ErrTransport wraps failures below HTTP: dial, reset, timeout.
var ErrTransport = errors.New("transport failure")

// APIError is a non-2xx response decoded from the API error body.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Detail     string
	Reason     string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("api: %d %s", e.StatusCode, e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// DecodeError turns a non-2xx response into an APIError. The body is consumed
// but not closed.
func DecodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	out := &APIError{StatusCode: resp.StatusCode}
	var er types.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Code != "" {
		out.Code = er.Code
		out.Message = er.Message
		out.Detail = er.Error
		out.Reason = er.Reason
		return out
	}
	out.Code = http.StatusText(resp.StatusCode)
	out.Message = string(body)
	return out
}
