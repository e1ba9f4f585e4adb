// Package tools provides MCP tool handlers and registration.
package tools

import (
	"context"
	"log/slog"

	"github.com/raphaelgruber/reelfacts/internal/models"
	"github.com/raphaelgruber/reelfacts/internal/pipeline"
)

// RunReader reads persisted runs.
type RunReader interface {
	LoadRun(ctx context.Context, id string) (*models.Run, error)
	ListRecentRuns(ctx context.Context) ([]models.RunSummary, error)
}

// VideoExtractor runs the extraction pipeline. Implementations report each
// run they start through opts.OnRun.
type VideoExtractor interface {
	Extract(ctx context.Context, videoPath string, opts pipeline.ExtractOptions) (*models.ExtractionResult, error)
}

// Dependencies holds shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	Runs      RunReader
	Extractor VideoExtractor // nil disables extract_video
	Logger    *slog.Logger
}
