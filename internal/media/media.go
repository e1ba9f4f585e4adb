// Package media registers local videos with a remote analysis service and
// waits for them to become usable.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/reelfacts/internal/metrics"
)

// Remote processing states.
const (
	StateProcessing = "PROCESSING"
	StateActive     = "ACTIVE"
	StateFailed     = "FAILED"
)

var (
	// ErrMediaRejected means the remote service permanently failed to process the upload.
	ErrMediaRejected = errors.New("media rejected")

	// ErrPollLimit means the media was still processing after the configured number of polls.
	ErrPollLimit = errors.New("media processing poll limit reached")
)

// Handle identifies uploaded, immutable media on the remote service.
type Handle struct {
	Name      string `json:"name"`
	URI       string `json:"uri"`
	MimeType  string `json:"mime_type"`
	State     string `json:"state"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// Ready reports whether the remote service finished processing the media.
func (h Handle) Ready() bool {
	return h.State == StateActive
}

// Remote is the upload/poll/delete surface of an analysis service.
type Remote interface {
	Upload(ctx context.Context, path string) (Handle, error)
	Status(ctx context.Context, h Handle) (Handle, error)
	Delete(ctx context.Context, h Handle) error
}

// Options configures Register.
type Options struct {
	PollInterval time.Duration
	// MaxPolls bounds the wait. Zero means DefaultMaxPolls.
	MaxPolls int
	Logger   *slog.Logger
	Metrics  *metrics.Collector
}

// Defaults for Options.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxPolls     = 150
)

// Register uploads path and blocks until the remote state leaves PROCESSING.
// It returns the ready handle and the number of status polls performed.
// On rejection or poll exhaustion the uploaded media is deleted before returning.
func Register(ctx context.Context, remote Remote, path string, opts Options) (Handle, int, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxPolls := opts.MaxPolls
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}

	start := time.Now()
	h, err := remote.Upload(ctx, path)
	if err != nil {
		opts.Metrics.RecordError(metrics.OpUpload, time.Since(start))
		return Handle{}, 0, fmt.Errorf("upload %s: %w", path, err)
	}
	opts.Metrics.RecordTiming(metrics.OpUpload, time.Since(start))
	logger.Debug("media uploaded", "name", h.Name, "state", h.State, "duration_ms", time.Since(start).Milliseconds())

	polls := 0
	pollStart := time.Now()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for h.State == StateProcessing {
		if polls >= maxPolls {
			Release(context.WithoutCancel(ctx), remote, h, logger)
			return Handle{}, polls, fmt.Errorf("%s after %d polls: %w", h.Name, polls, ErrPollLimit)
		}

		select {
		case <-ctx.Done():
			Release(context.WithoutCancel(ctx), remote, h, logger)
			return Handle{}, polls, ctx.Err()
		case <-timer.C:
		}

		polls++
		next, err := remote.Status(ctx, h)
		if err != nil {
			Release(context.WithoutCancel(ctx), remote, h, logger)
			return Handle{}, polls, fmt.Errorf("poll %s: %w", h.Name, err)
		}
		h = next
		logger.Debug("media poll", "name", h.Name, "state", h.State, "poll", polls)
		timer.Reset(interval)
	}
	opts.Metrics.RecordTiming(metrics.OpPoll, time.Since(pollStart))

	if h.State == StateFailed {
		Release(context.WithoutCancel(ctx), remote, h, logger)
		return Handle{}, polls, fmt.Errorf("%s: %w", h.Name, ErrMediaRejected)
	}

	logger.Info("media ready", "name", h.Name, "polls", polls, "duration_ms", time.Since(start).Milliseconds())
	return h, polls, nil
}

// Release deletes the remote media. Failures are logged, never returned:
// a leaked remote file must not fail the pipeline.
func Release(ctx context.Context, remote Remote, h Handle, logger *slog.Logger) {
	if h.Name == "" {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := remote.Delete(ctx, h); err != nil {
		logger.Warn("failed to release remote media", "name", h.Name, "error", err)
		return
	}
	logger.Debug("remote media released", "name", h.Name)
}
