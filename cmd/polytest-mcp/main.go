// Package main provides the polytest-mcp binary, an MCP server exposing
// suite validation and execution to AI agents.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	pmcp "github.com/ormasoftchile/polytest/pkg/ecosystem/mcp"
)

var version = "dev"

func main() {
	s := pmcp.NewServer(version)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
