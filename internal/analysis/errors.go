package analysis

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRemoteCall marks a network or service-level failure. It aborts the
	// current pipeline attempt.
	ErrRemoteCall = errors.New("remote call failed")

	// ErrResponseParse marks model output that could not be decoded.
	// Stages recover from it with defaults.
	ErrResponseParse = errors.New("response parse failed")

	// ErrFatalAPI marks remote failures that retrying cannot fix
	// (billing, quota, invalid credentials).
	ErrFatalAPI = errors.New("fatal API error")
)

// RemoteError describes a failed call to an analysis service.
type RemoteError struct {
	// Op is the remote operation (e.g. "upload", "generate").
	Op string
	// Status is the HTTP status code, or 0 when the request never got a response.
	Status int
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Is matches ErrRemoteCall always, and ErrFatalAPI for auth/billing failures.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrRemoteCall:
		return true
	case ErrFatalAPI:
		return e.Status == 401 || e.Status == 403 || isFatalAPIError(e.Err)
	}
	return false
}

func remoteErr(op string, status int, err error) error {
	return &RemoteError{Op: op, Status: status, Err: err}
}

// ParseError carries the raw model output that failed to decode.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %v", ErrResponseParse, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrResponseParse, e.Err}
}

// fatalPatterns are message fragments that indicate a non-retryable API failure.
var fatalPatterns = []string{
	"credit balance",
	"rate limit",
	"quota exceeded",
	"resource_exhausted",
	"billing",
	"invalid api key",
	"api key not valid",
	"authentication failed",
	"unauthorized",
	"permission_denied",
	"401",
	"403",
}

// isFatalAPIError reports whether err looks like a billing, quota, or auth failure.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range fatalPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// wrapFatalError tags fatal API errors with ErrFatalAPI and returns others unchanged.
func wrapFatalError(err error) error {
	if isFatalAPIError(err) {
		return fmt.Errorf("%w: %w", ErrFatalAPI, err)
	}
	return err
}
