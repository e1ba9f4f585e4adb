package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/reelfacts/internal/metrics"
	"github.com/raphaelgruber/reelfacts/internal/models"
)

var (
	// ErrRunFinished is returned when a finished run or step is mutated.
	ErrRunFinished = errors.New("run already finished")

	// ErrStepFinished is returned when a step transitions twice.
	ErrStepFinished = errors.New("step already finished")
)

// StepSpec describes a step as it starts.
type StepSpec struct {
	Name   string
	Prompt string
	Tier   string
	Input  map[string]any
}

// Recorder owns one Run while it executes. It is safe for concurrent use by
// the stages of a single pipeline attempt.
type Recorder struct {
	mu      sync.RWMutex
	run     models.Run
	metrics *metrics.Collector
	logger  *slog.Logger
}

func newRecorder(meta map[string]any, m *metrics.Collector, logger *slog.Logger) *Recorder {
	if meta == nil {
		meta = map[string]any{}
	}
	id := uuid.New().String()
	return &Recorder{
		run: models.Run{
			ID:        id,
			Status:    models.StatusRunning,
			StartedAt: time.Now().UTC(),
			Metadata:  maps.Clone(meta),
			Steps:     []models.Step{},
		},
		metrics: m,
		logger:  logger.With("run_id", id),
	}
}

// ID returns the run identifier.
func (r *Recorder) ID() string {
	return r.run.ID
}

// Logger returns a logger tagged with the run ID.
func (r *Recorder) Logger() *slog.Logger {
	return r.logger
}

// SetMeta records a metadata value. It is a no-op once the run is finished.
func (r *Recorder) SetMeta(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run.Status.Terminal() {
		return
	}
	r.run.Metadata[key] = value
}

// StartStep appends a running step and returns its recorder.
func (r *Recorder) StartStep(spec StepSpec) *StepRecorder {
	r.mu.Lock()
	defer r.mu.Unlock()

	step := models.Step{
		ID:        uuid.New().String()[:8],
		Name:      spec.Name,
		Status:    models.StatusRunning,
		StartedAt: time.Now().UTC(),
		Prompt:    spec.Prompt,
		Tier:      spec.Tier,
		Input:     spec.Input,
	}
	r.run.Steps = append(r.run.Steps, step)
	r.logger.Debug("step started", "step", spec.Name)

	return &StepRecorder{rec: r, idx: len(r.run.Steps) - 1, name: spec.Name}
}

// Complete marks the run completed. Result and report are required.
func (r *Recorder) Complete(result *models.ExtractionResult, report *models.QualityReport) error {
	if result == nil || report == nil {
		return fmt.Errorf("complete run %s: result and quality report are required", r.run.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run.Status.Terminal() {
		return fmt.Errorf("complete run %s: %w", r.run.ID, ErrRunFinished)
	}

	now := time.Now().UTC()
	r.run.Status = models.StatusCompleted
	r.run.EndedAt = &now
	r.run.Result = result
	r.run.Quality = report

	r.logger.Info("run completed",
		"duration_ms", now.Sub(r.run.StartedAt).Milliseconds(),
		"rating", report.Rating,
		"overall", fmt.Sprintf("%.3f", report.Overall),
	)
	return nil
}

// Fail marks the run failed with err.
func (r *Recorder) Fail(err error) error {
	if err == nil {
		err = errors.New("unknown error")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run.Status.Terminal() {
		return fmt.Errorf("fail run %s: %w", r.run.ID, ErrRunFinished)
	}

	now := time.Now().UTC()
	msg := err.Error()
	r.run.Status = models.StatusFailed
	r.run.EndedAt = &now
	r.run.Error = &msg

	// Steps abandoned mid-flight are closed so every persisted step is terminal.
	for i := range r.run.Steps {
		step := &r.run.Steps[i]
		if step.Status == models.StatusRunning {
			aborted := "run aborted: " + msg
			step.Status = models.StatusFailed
			step.EndedAt = &now
			step.DurationMs = now.Sub(step.StartedAt).Milliseconds()
			step.Error = &aborted
		}
	}

	r.logger.Error("run failed", "duration_ms", now.Sub(r.run.StartedAt).Milliseconds(), "error", err)
	return nil
}

// Status returns the current run status.
func (r *Recorder) Status() models.RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.run.Status
}

// Snapshot returns a copy of the run safe to read while stages keep recording.
func (r *Recorder) Snapshot() models.Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run := r.run
	run.Metadata = maps.Clone(r.run.Metadata)
	run.Steps = make([]models.Step, len(r.run.Steps))
	for i, s := range r.run.Steps {
		s.Warnings = slices.Clone(s.Warnings)
		run.Steps[i] = s
	}
	return run
}

// StepRecorder records the outcome of one step.
type StepRecorder struct {
	rec  *Recorder
	idx  int
	name string
}

// Name returns the step name.
func (s *StepRecorder) Name() string {
	return s.name
}

// Warn appends a warning to the step.
func (s *StepRecorder) Warn(msg string) {
	s.rec.mu.Lock()
	defer s.rec.mu.Unlock()
	step := &s.rec.run.Steps[s.idx]
	step.Warnings = append(step.Warnings, msg)
	s.rec.logger.Warn("step warning", "step", s.name, "warning", msg)
}

// Complete marks the step completed with output.
func (s *StepRecorder) Complete(output any) error {
	return s.finish(models.StatusCompleted, output, false, nil)
}

// CompleteWithFallback marks the step completed with a substituted default
// and records why.
func (s *StepRecorder) CompleteWithFallback(output any, reason string) error {
	s.Warn(reason)
	return s.finish(models.StatusCompleted, output, true, nil)
}

// Fail marks the step failed. Failed steps never carry output.
func (s *StepRecorder) Fail(err error) error {
	if err == nil {
		err = errors.New("unknown error")
	}
	return s.finish(models.StatusFailed, nil, false, err)
}

func (s *StepRecorder) finish(status models.RunStatus, output any, fallback bool, stepErr error) error {
	s.rec.mu.Lock()
	defer s.rec.mu.Unlock()

	step := &s.rec.run.Steps[s.idx]
	if step.Status.Terminal() {
		return fmt.Errorf("step %s: %w", s.name, ErrStepFinished)
	}

	now := time.Now().UTC()
	duration := now.Sub(step.StartedAt)
	step.Status = status
	step.EndedAt = &now
	step.DurationMs = duration.Milliseconds()
	step.Fallback = fallback

	if stepErr != nil {
		msg := stepErr.Error()
		step.Error = &msg
		s.rec.metrics.RecordError(metrics.StepOp(s.name), duration)
		s.rec.logger.Warn("step failed", "step", s.name, "duration_ms", step.DurationMs, "error", stepErr)
		return nil
	}

	step.Output = output
	s.rec.metrics.RecordTiming(metrics.StepOp(s.name), duration)
	s.rec.logger.Debug("step completed", "step", s.name, "duration_ms", step.DurationMs, "fallback", fallback)
	return nil
}
