package analysis

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFatalAPIError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil error", nil, false},
		{"generic error", errors.New("connection reset"), false},
		{"credit balance", errors.New("insufficient credit balance"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"quota exceeded", errors.New("quota exceeded for model"), true},
		{"resource exhausted", errors.New("RESOURCE_EXHAUSTED: try later"), true},
		{"billing issue", errors.New("billing account inactive"), true},
		{"invalid api key", errors.New("invalid api key"), true},
		{"gemini bad key", errors.New("API key not valid. Please pass a valid API key."), true},
		{"unauthorized", errors.New("unauthorized request"), true},
		{"401 status", errors.New("HTTP 401: not allowed"), true},
		{"403 status", errors.New("HTTP 403: forbidden"), true},
		{"wrapped error", fmt.Errorf("generate: %w", errors.New("credit balance too low")), true},
		{"404 not fatal", errors.New("HTTP 404: not found"), false},
		{"timeout not fatal", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, isFatalAPIError(tt.err))
		})
	}
}

func TestWrapFatalError(t *testing.T) {
	t.Run("wraps fatal error", func(t *testing.T) {
		err := errors.New("invalid api key provided")
		assert.ErrorIs(t, wrapFatalError(err), ErrFatalAPI)
		assert.ErrorIs(t, wrapFatalError(err), err)
	})

	t.Run("passes through non-fatal error", func(t *testing.T) {
		err := errors.New("network timeout")
		result := wrapFatalError(err)
		assert.NotErrorIs(t, result, ErrFatalAPI)
		assert.Same(t, err, result)
	})
}

func TestRemoteError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"server error", remoteErr("generate", 500, errors.New("internal")), false},
		{"forbidden", remoteErr("upload", 403, errors.New("denied")), true},
		{"transport", remoteErr("status", 0, errors.New("dial tcp: connection refused")), false},
		{"quota message", remoteErr("generate", 429, errors.New("Quota exceeded for metric")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, ErrRemoteCall)
			assert.Equal(t, tt.fatal, errors.Is(tt.err, ErrFatalAPI))
			assert.NotErrorIs(t, tt.err, ErrResponseParse)
		})
	}

	wrapped := fmt.Errorf("menu pass 1: %w", remoteErr("generate", 503, errors.New("unavailable")))
	var re *RemoteError
	assert.ErrorAs(t, wrapped, &re)
	assert.Equal(t, 503, re.Status)
}
