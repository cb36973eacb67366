package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

const validSuite = `
type: test/suite
schema_version: 1
suite:
  name: mcp-demo
  environments:
  - name: local
    vars: {invocation: "true"}
  scenarios:
  - name: noop
    steps:
    - run: "{{.invocation}}"
`

func writeSuite(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestHandleValidate_MissingPath(t *testing.T) {
	result, err := HandleValidate(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected error for missing path")
	}
}

func TestHandleValidate_ValidSuite(t *testing.T) {
	path := writeSuite(t, validSuite)

	result, err := HandleValidate(context.Background(), callRequest(map[string]any{"path": path}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Errorf("expected success: %+v", result.Content)
	}
}

func TestHandleValidate_InvalidSuite(t *testing.T) {
	path := writeSuite(t, strings.Replace(validSuite, "run:", "rnu:", 1))

	result, err := HandleValidate(context.Background(), callRequest(map[string]any{"path": path}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected error for unknown field")
	}
}

func TestHandleSchema(t *testing.T) {
	result, err := HandleSchema(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Error("expected success")
	}
	if len(result.Content) == 0 {
		t.Error("expected schema content")
	}
}

func TestHandleRun_MissingPath(t *testing.T) {
	result, err := HandleRun(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected error for missing path")
	}
}
