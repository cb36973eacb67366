// Package mcp exposes polytest over the Model Context Protocol so
// agents can validate and run suites without shelling out.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server with polytest tools registered.
func NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(
		"polytest",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("polytest/validate",
			mcp.WithDescription("Validate a polytest suite YAML file"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the suite YAML file")),
		),
		HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("polytest/run",
			mcp.WithDescription("Run a polytest suite: every scenario against every environment"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the suite YAML file")),
			mcp.WithString("scenario", mcp.Description("Run only the named scenario (optional)")),
			mcp.WithString("environment", mcp.Description("Run only against the named environment (optional)")),
			mcp.WithNumber("concurrency", mcp.Description("Maximum concurrent runs (optional)")),
		),
		HandleRun,
	)

	s.AddTool(
		mcp.NewTool("polytest/schema",
			mcp.WithDescription("Export the polytest suite JSON Schema"),
		),
		HandleSchema,
	)

	return s
}
