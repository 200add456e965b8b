package errors

import (
	stdErrors "errors"
	"fmt"
)

// UpstreamError represents a failed call to a remote service: a non-2xx
// response, a timeout or a transport error.
type UpstreamError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: unexpected status %d: %v", e.Service, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: unexpected status %d", e.Service, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.Service, e.Err)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError creates an UpstreamError for a transport level failure.
func NewUpstreamError(service string, err error) *UpstreamError {
	return &UpstreamError{Service: service, Err: err}
}

// NewUpstreamStatusError creates an UpstreamError for an unexpected HTTP status.
func NewUpstreamStatusError(service string, statusCode int, body string) *UpstreamError {
	var err error
	if body != "" {
		err = stdErrors.New(body)
	}
	return &UpstreamError{Service: service, StatusCode: statusCode, Err: err}
}

// IsUpstreamError reports whether err is an UpstreamError (even when wrapped).
func IsUpstreamError(err error) bool {
	var upErr *UpstreamError
	return stdErrors.As(err, &upErr)
}
