package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/polytest/pkg/manifest"
	"github.com/ormasoftchile/polytest/pkg/result"
	"github.com/ormasoftchile/polytest/pkg/runtime"
	"github.com/ormasoftchile/polytest/pkg/schema"
)

// HandleValidate implements the polytest/validate MCP tool.
func HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	doc, errs := schema.ValidateFile(path)
	if schema.HasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}
	return textResult(fmt.Sprintf("✓ %s is valid (%d scenarios, %d environments)",
		doc.Suite.Name, len(doc.Suite.Scenarios), len(doc.Suite.Environments))), nil
}

// HandleSchema implements the polytest/schema MCP tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandleRun implements the polytest/run MCP tool.
func HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	doc, err := manifest.LoadSuite(path)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	opts := runtime.Options{}
	if scenario, _ := args["scenario"].(string); scenario != "" {
		opts.Scenarios = []string{scenario}
	}
	if environment, _ := args["environment"].(string); environment != "" {
		opts.Environments = []string{environment}
	}
	if concurrency, ok := args["concurrency"].(float64); ok && concurrency > 0 {
		opts.Concurrency = int(concurrency)
	}

	sr, err := runtime.RunSuite(ctx, doc, opts)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	response := map[string]any{
		"suite":   sr.Suite,
		"summary": sr.Summary,
		"elapsed": sr.Elapsed.String(),
		"runs":    runDigest(sr),
	}
	data, _ := json.MarshalIndent(response, "", "  ")

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: !sr.Summary.OK(),
	}, nil
}

// runDigest condenses per-run outcomes for the tool response; full step
// output stays out of the protocol payload.
func runDigest(sr *result.SuiteResult) []map[string]any {
	digest := make([]map[string]any, 0, len(sr.Runs))
	for _, run := range sr.Runs {
		entry := map[string]any{
			"scenario":    run.Scenario,
			"environment": run.Environment,
			"status":      run.Status,
		}
		var problems []string
		for _, st := range append(append(append([]result.StepResult{}, run.Setup...), run.Steps...), run.Teardown...) {
			if st.Status == result.StatusPassed || st.Status == result.StatusSkipped {
				continue
			}
			detail := st.Error
			if detail == "" && len(st.Failures) > 0 {
				detail = st.Failures[0].String()
			}
			problems = append(problems, fmt.Sprintf("%s: %s", st.Name, detail))
		}
		if len(problems) > 0 {
			entry["problems"] = problems
		}
		digest = append(digest, entry)
	}
	return digest
}

func formatErrors(errs []*schema.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "error" {
			msgs = append(msgs, fmt.Sprintf("[%s] %s", e.Phase, e.Message))
		}
	}
	return strings.Join(msgs, "; ")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
