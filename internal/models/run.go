// Package models defines the data structures shared by the extraction pipeline and the run ledger.
package models

import "time"

// RunStatus represents the lifecycle state of a run or step.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is completed or failed.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Well-known run metadata keys.
const (
	MetaVideoPath    = "video_path"
	MetaPreciseModel = "precise_model"
	MetaFastModel    = "fast_model"
	MetaImageModel   = "image_model"
	MetaDuration     = "duration_seconds"
	MetaSizeBytes    = "size_bytes"
	MetaUsedFallback = "used_fallback"
	MetaPrimaryRunID = "primary_run_id"
	MetaPollCount    = "poll_count"
)

// Run is one invocation of the extraction pipeline for one video.
// Status moves from running to completed or failed exactly once.
type Run struct {
	ID        string            `json:"id"`
	Status    RunStatus         `json:"status"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   *time.Time        `json:"ended_at,omitempty"`
	Metadata  map[string]any    `json:"metadata"`
	Steps     []Step            `json:"steps"`
	Result    *ExtractionResult `json:"result,omitempty"`
	Quality   *QualityReport    `json:"quality,omitempty"`
	Error     *string           `json:"error,omitempty"`
}

// UsedFallback reports whether the run was produced by the fallback pipeline.
func (r *Run) UsedFallback() bool {
	v, _ := r.Metadata[MetaUsedFallback].(bool)
	return v
}

// Summary builds the index entry for this run.
func (r *Run) Summary() RunSummary {
	s := RunSummary{
		ID:           r.ID,
		Status:       r.Status,
		StartedAt:    r.StartedAt,
		EndedAt:      r.EndedAt,
		UsedFallback: r.UsedFallback(),
		StepCount:    len(r.Steps),
		Error:        r.Error,
	}
	if path, ok := r.Metadata[MetaVideoPath].(string); ok {
		s.VideoPath = path
	}
	if r.Quality != nil {
		s.Rating = r.Quality.Rating
		s.Overall = r.Quality.Overall
	}
	return s
}

// Step is one logged unit of work within a run.
// Output is set only on completion; failed steps carry Error and no Output.
type Step struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Status     RunStatus      `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    *time.Time     `json:"ended_at,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Prompt     string         `json:"prompt,omitempty"`
	Tier       string         `json:"tier,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
	Output     any            `json:"output,omitempty"`
	Fallback   bool           `json:"fallback,omitempty"` // completed with a substituted default
	Warnings   []string       `json:"warnings,omitempty"`
	Error      *string        `json:"error,omitempty"`
}

// RunSummary is one entry of the recent-runs index.
type RunSummary struct {
	ID           string     `json:"id"`
	Status       RunStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	VideoPath    string     `json:"video_path,omitempty"`
	UsedFallback bool       `json:"used_fallback"`
	StepCount    int        `json:"step_count"`
	Rating       Rating     `json:"rating,omitempty"`
	Overall      float64    `json:"overall,omitempty"`
	Error        *string    `json:"error,omitempty"`
}
