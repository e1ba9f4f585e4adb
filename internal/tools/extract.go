package tools

import (
	"context"
	"errors"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/reelfacts/internal/ledger"
	"github.com/raphaelgruber/reelfacts/internal/models"
	"github.com/raphaelgruber/reelfacts/internal/pipeline"
)

// ExtractInput defines the input schema for the extract_video tool.
type ExtractInput struct {
	Path            string  `json:"path" jsonschema:"required,Absolute path of a local video file"`
	DurationSeconds float64 `json:"duration_seconds,omitempty" jsonschema:"Video length in seconds, used when ffprobe cannot read the file"`
}

// ExtractOutput is the text payload returned by extract_video.
type ExtractOutput struct {
	RunID   string                   `json:"run_id"`
	Result  *models.ExtractionResult `json:"result"`
	Quality *models.QualityReport    `json:"quality,omitempty"`
}

// NewExtractHandler runs the full pipeline for a local video. The call blocks
// until the run finishes.
func NewExtractHandler(deps *Dependencies) mcp.ToolHandlerFor[ExtractInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ExtractInput) (*mcp.CallToolResult, any, error) {
		if input.Path == "" {
			return ErrorResult("Path cannot be empty", "Provide the path of a local video file"), nil, nil
		}
		info, err := os.Stat(input.Path)
		if err != nil || info.IsDir() {
			return ErrorResult("Video not found: "+input.Path, "Provide the path of a readable video file"), nil, nil
		}

		// The extractor is shared between sessions; the run is identified
		// through this call's own recorder. A fallback attempt replaces the
		// primary one.
		var rec *ledger.Recorder
		opts := pipeline.ExtractOptions{
			DurationSeconds: input.DurationSeconds,
			OnRun:           func(r *ledger.Recorder) { rec = r },
		}
		result, err := deps.Extractor.Extract(ctx, input.Path, opts)
		runID := ""
		if rec != nil {
			runID = rec.ID()
		}
		if err != nil {
			deps.Logger.Error("extraction failed", "path", input.Path, "run_id", runID, "error", err)
			if errors.Is(err, context.Canceled) {
				return ErrorResult("Extraction canceled", ""), nil, nil
			}
			hint := ""
			if runID != "" {
				hint = "Inspect the run with get_run id=" + runID
			}
			return ErrorResult("Extraction failed: "+err.Error(), hint), nil, nil
		}

		out := ExtractOutput{RunID: runID, Result: result}
		if rec != nil {
			out.Quality = rec.Snapshot().Quality
		}

		deps.Logger.Info("extract_video completed", "run_id", runID, "frames", len(result.Frames), "menu_items", len(result.Menu.Items))
		return JSONResult(out), nil, nil
	}
}
