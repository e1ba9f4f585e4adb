package tools

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/reelfacts/internal/ledger"
	"github.com/raphaelgruber/reelfacts/internal/models"
)

// ListRunsInput defines the input schema for the list_runs tool.
type ListRunsInput struct {
	Limit  int    `json:"limit,omitempty" jsonschema:"Max runs 1-100, default 20"`
	Status string `json:"status,omitempty" jsonschema:"Optional status filter: running, completed or failed"`
}

// NewListRunsHandler lists recent runs, most recent first.
func NewListRunsHandler(deps *Dependencies) mcp.ToolHandlerFor[ListRunsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListRunsInput) (*mcp.CallToolResult, any, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 20
		}
		if limit > ledger.MaxRecentRuns {
			return ErrorResult("Limit must be 1-100", "Reduce limit value"), nil, nil
		}
		switch models.RunStatus(input.Status) {
		case "", models.StatusRunning, models.StatusCompleted, models.StatusFailed:
		default:
			return ErrorResult("Unknown status "+input.Status, "Use running, completed or failed"), nil, nil
		}

		runs, err := deps.Runs.ListRecentRuns(ctx)
		if err != nil {
			deps.Logger.Error("list runs failed", "error", err)
			return ErrorResult("Failed to list runs", "The run ledger may be unavailable"), nil, nil
		}

		out := make([]models.RunSummary, 0, min(limit, len(runs)))
		for _, r := range runs {
			if input.Status != "" && string(r.Status) != input.Status {
				continue
			}
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}

		deps.Logger.Debug("list_runs completed", "results", len(out))
		return JSONResult(out), nil, nil
	}
}

// GetRunInput defines the input schema for the get_run tool.
type GetRunInput struct {
	ID    string `json:"id" jsonschema:"required,The run ID"`
	Steps bool   `json:"steps,omitempty" jsonschema:"Include the step timeline with prompts and raw responses"`
}

// NewGetRunHandler returns one run's result, quality report and optionally its steps.
func NewGetRunHandler(deps *Dependencies) mcp.ToolHandlerFor[GetRunInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetRunInput) (*mcp.CallToolResult, any, error) {
		if input.ID == "" {
			return ErrorResult("ID cannot be empty", "Use list_runs to find run IDs"), nil, nil
		}

		run, err := deps.Runs.LoadRun(ctx, input.ID)
		if errors.Is(err, ledger.ErrRunNotFound) {
			return ErrorResult("Run not found: "+input.ID, "Use list_runs to find run IDs"), nil, nil
		}
		if err != nil {
			deps.Logger.Error("load run failed", "id", input.ID, "error", err)
			return ErrorResult("Failed to load run", "The run ledger may be unavailable"), nil, nil
		}

		if !input.Steps {
			run.Steps = nil
		}
		return JSONResult(run), nil, nil
	}
}
