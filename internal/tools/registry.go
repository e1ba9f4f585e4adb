package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll registers all tools with the MCP server.
// This is called from main after server creation but before Run().
func RegisterAll(server *mcp.Server, deps *Dependencies) int {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_runs",
		Description: "List recent extraction runs, most recent first",
	}, NewListRunsHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_run",
		Description: "Retrieve an extraction run by ID with its result and quality report",
	}, NewGetRunHandler(deps))

	if deps.Extractor == nil {
		return 2
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "extract_video",
		Description: "Extract menu, restaurant details, brand style and key frames from a local restaurant video",
	}, NewExtractHandler(deps))
	return 3
}
