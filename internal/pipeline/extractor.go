// Package pipeline orchestrates a video extraction run: upload, concurrent
// analysis stages, frame materialization, scoring, and the image-based
// fallback when the primary path fails.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/reelfacts/internal/analysis"
	"github.com/raphaelgruber/reelfacts/internal/frames"
	"github.com/raphaelgruber/reelfacts/internal/ledger"
	"github.com/raphaelgruber/reelfacts/internal/media"
	"github.com/raphaelgruber/reelfacts/internal/metrics"
	"github.com/raphaelgruber/reelfacts/internal/models"
	"github.com/raphaelgruber/reelfacts/internal/scoring"
)

// Step names recorded in the ledger.
const (
	StepProbe          = "probe"
	StepUpload         = "upload"
	StepSelectFrames   = "select_frames"
	StepMenuEnumerate  = "menu_enumerate"
	StepMenuVerify     = "menu_verify"
	StepRestaurantInfo = "restaurant_info"
	StepStyle          = "style"
	StepMaterialize    = "materialize_frames"
	StepScore          = "score"
	StepSampleFrames   = "sample_frames"
	StepAnalyzeImages  = "analyze_images"
)

const (
	// FallbackFrameCount is the number of evenly spaced frames used when
	// frame selection cannot be parsed.
	FallbackFrameCount = 10

	// DefaultFallbackFrames is the number of stills sent to the image model.
	DefaultFallbackFrames = 8

	// DefaultFrameWorkers bounds concurrent ffmpeg invocations.
	DefaultFrameWorkers = 4
)

// ErrNoFrames is returned by the fallback pipeline when no still could be extracted.
var ErrNoFrames = errors.New("no frames could be extracted")

// FrameSource reads metadata and stills from a local video.
type FrameSource interface {
	Probe(ctx context.Context, videoPath string) (frames.VideoInfo, error)
	ExtractFrameAt(ctx context.Context, videoPath string, ts float64) (string, error)
}

// Config wires an Extractor. Analyzer, Remote, Frames and Ledger are required.
// Images enables the fallback pipeline; nil disables it.
type Config struct {
	Analyzer analysis.Analyzer
	Remote   media.Remote
	Images   analysis.ImageAnalyzer
	Frames   FrameSource
	Ledger   *ledger.Ledger
	Policy   scoring.Policy

	PollInterval   time.Duration
	MaxPolls       int
	FrameWorkers   int
	FallbackFrames int

	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// ExtractOptions are per-call inputs.
type ExtractOptions struct {
	// DurationSeconds is used when ffprobe cannot read the video.
	DurationSeconds float64

	// OnRun is called each time a run starts: once for the primary attempt
	// and again if the fallback takes over.
	OnRun func(*ledger.Recorder)
}

// Extractor runs extractions. An Extractor is safe for concurrent use, but
// RunID reports the most recently started run.
type Extractor struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	current *ledger.Recorder
}

// New validates cfg and returns an Extractor.
func New(cfg Config) (*Extractor, error) {
	switch {
	case cfg.Analyzer == nil:
		return nil, errors.New("pipeline: analyzer is required")
	case cfg.Remote == nil:
		return nil, errors.New("pipeline: media remote is required")
	case cfg.Frames == nil:
		return nil, errors.New("pipeline: frame source is required")
	case cfg.Ledger == nil:
		return nil, errors.New("pipeline: ledger is required")
	}
	if cfg.Policy == (scoring.Policy{}) {
		cfg.Policy = scoring.DefaultPolicy()
	}
	if cfg.FrameWorkers <= 0 {
		cfg.FrameWorkers = DefaultFrameWorkers
	}
	if cfg.FallbackFrames <= 0 {
		cfg.FallbackFrames = DefaultFallbackFrames
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{cfg: cfg, logger: logger}, nil
}

// RunID returns the ID of the most recently started run, or "" before the
// first. Concurrent callers track their own run through ExtractOptions.OnRun.
func (e *Extractor) RunID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return ""
	}
	return e.current.ID()
}

func (e *Extractor) begin(meta map[string]any, opts ExtractOptions) *ledger.Recorder {
	rec := e.cfg.Ledger.Begin(meta)
	e.mu.Lock()
	e.current = rec
	e.mu.Unlock()
	if opts.OnRun != nil {
		opts.OnRun(rec)
	}
	return rec
}

// Extract runs the primary pipeline for videoPath and, if it fails, the
// image-based fallback. Each attempt is persisted as its own run.
func (e *Extractor) Extract(ctx context.Context, videoPath string, opts ExtractOptions) (*models.ExtractionResult, error) {
	rec := e.begin(map[string]any{
		models.MetaVideoPath:    videoPath,
		models.MetaPreciseModel: e.cfg.Analyzer.ModelFor(analysis.TierPrecise),
		models.MetaFastModel:    e.cfg.Analyzer.ModelFor(analysis.TierFast),
		models.MetaUsedFallback: false,
	}, opts)

	result, err := e.runPrimary(ctx, rec, videoPath, opts)
	if err == nil {
		return result, e.finish(ctx, rec, result)
	}

	_ = rec.Fail(err)
	e.persist(ctx, rec)

	if ctx.Err() != nil {
		return nil, fmt.Errorf("extract %s: %w", videoPath, err)
	}
	if e.cfg.Images == nil {
		return nil, fmt.Errorf("extract %s: %w", videoPath, err)
	}

	rec.Logger().Warn("primary pipeline failed, switching to image fallback", "error", err)
	fb := e.begin(map[string]any{
		models.MetaVideoPath:    videoPath,
		models.MetaImageModel:   e.cfg.Images.ImageModel(),
		models.MetaUsedFallback: true,
		models.MetaPrimaryRunID: rec.ID(),
	}, opts)

	result, ferr := e.runFallback(ctx, fb, videoPath, opts)
	if ferr != nil {
		_ = fb.Fail(ferr)
		e.persist(ctx, fb)
		return nil, fmt.Errorf("extract %s: primary: %w; fallback: %w", videoPath, err, ferr)
	}
	return result, e.finish(ctx, fb, result)
}

// finish scores the result, completes the run and persists it.
func (e *Extractor) finish(ctx context.Context, rec *ledger.Recorder, result *models.ExtractionResult) error {
	step := rec.StartStep(ledger.StepSpec{Name: StepScore})
	report := scoring.Score(result, e.cfg.Policy)
	_ = step.Complete(report)

	if err := rec.Complete(result, &report); err != nil {
		// The run must still reach the ledger in a terminal state.
		_ = rec.Fail(err)
		e.persist(ctx, rec)
		return err
	}
	e.persist(ctx, rec)
	return nil
}

// persist writes the finished run. Ledger failures are logged; the
// extraction outcome stands on its own.
func (e *Extractor) persist(ctx context.Context, rec *ledger.Recorder) {
	if err := e.cfg.Ledger.Finalize(context.WithoutCancel(ctx), rec); err != nil {
		rec.Logger().Error("failed to persist run", "error", err)
	}
}

// probe reads the video's metadata. A failed probe is a warning: the
// caller-provided duration is used instead.
func (e *Extractor) probe(ctx context.Context, rec *ledger.Recorder, videoPath string, opts ExtractOptions) float64 {
	step := rec.StartStep(ledger.StepSpec{Name: StepProbe, Input: map[string]any{"path": videoPath}})

	info, err := e.cfg.Frames.Probe(ctx, videoPath)
	if err != nil || info.DurationSeconds <= 0 {
		reason := "probe reported no duration"
		if err != nil {
			reason = "probe failed: " + err.Error()
		}
		_ = step.CompleteWithFallback(map[string]any{"duration_seconds": opts.DurationSeconds}, reason)
		rec.SetMeta(models.MetaDuration, opts.DurationSeconds)
		return opts.DurationSeconds
	}

	_ = step.Complete(info)
	rec.SetMeta(models.MetaDuration, info.DurationSeconds)
	rec.SetMeta(models.MetaSizeBytes, info.SizeBytes)
	return info.DurationSeconds
}

// upload registers the video with the remote and waits until it is ready.
func (e *Extractor) upload(ctx context.Context, rec *ledger.Recorder, videoPath string) (media.Handle, error) {
	step := rec.StartStep(ledger.StepSpec{Name: StepUpload, Input: map[string]any{"path": videoPath}})

	h, polls, err := media.Register(ctx, e.cfg.Remote, videoPath, media.Options{
		PollInterval: e.cfg.PollInterval,
		MaxPolls:     e.cfg.MaxPolls,
		Logger:       rec.Logger(),
		Metrics:      e.cfg.Metrics,
	})
	rec.SetMeta(models.MetaPollCount, polls)
	if err != nil {
		_ = step.Fail(err)
		return media.Handle{}, err
	}
	_ = step.Complete(h)
	return h, nil
}
