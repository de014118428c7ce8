package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/code2api/code2api/internal/domain/workflow"
)

// TestTool derives a test manifest from the endpoint designs: a positive,
// a negative, and (for authenticated endpoints) an auth case each. Pure
// and deterministic; no external call. Non-critical.
type TestTool struct {
	log *slog.Logger
}

// NewTestTool creates a TestTool.
func NewTestTool(log *slog.Logger) *TestTool {
	return &TestTool{log: log}
}

// Phase implements PhaseTool.
func (t *TestTool) Phase() workflow.Phase { return workflow.PhaseTest }

// Execute implements PhaseTool.
func (t *TestTool) Execute(_ context.Context, in ToolInput) workflow.PhaseResult {
	res := workflow.PhaseResult{Phase: workflow.PhaseTest}
	if in.Acc.Design == nil {
		res.Warnings = append(res.Warnings, "no endpoint design to derive tests from")
		return res
	}

	manifest := workflow.TestManifest{Cases: []workflow.TestCase{}}
	for _, ep := range in.Acc.Design.Endpoints {
		name := strings.Trim(ep.Path, "/")
		manifest.Cases = append(manifest.Cases, workflow.TestCase{
			Name:         name + "_ok",
			Kind:         "positive",
			Method:       ep.Method,
			Path:         ep.Path,
			ExpectStatus: 200,
		})
		if len(ep.Params) > 0 {
			manifest.Cases = append(manifest.Cases, workflow.TestCase{
				Name:         name + "_invalid_input",
				Kind:         "negative",
				Method:       ep.Method,
				Path:         ep.Path,
				ExpectStatus: 422,
			})
		}
		if ep.NeedsAuth {
			manifest.Cases = append(manifest.Cases, workflow.TestCase{
				Name:         name + "_unauthenticated",
				Kind:         "auth",
				Method:       ep.Method,
				Path:         ep.Path,
				ExpectStatus: 401,
			})
		}
	}

	t.log.Info("test manifest derived", "cases", len(manifest.Cases))
	res.Success = true
	res.Test = &workflow.TestPayload{Manifest: manifest}
	return res
}

// DocumentTool renders markdown documentation for the designed endpoints.
// Pure and deterministic; no external call. Non-critical.
type DocumentTool struct {
	log *slog.Logger
}

// NewDocumentTool creates a DocumentTool.
func NewDocumentTool(log *slog.Logger) *DocumentTool {
	return &DocumentTool{log: log}
}

// Phase implements PhaseTool.
func (t *DocumentTool) Phase() workflow.Phase { return workflow.PhaseDocument }

// Execute implements PhaseTool.
func (t *DocumentTool) Execute(_ context.Context, in ToolInput) workflow.PhaseResult {
	res := workflow.PhaseResult{Phase: workflow.PhaseDocument}
	if in.Acc.Design == nil {
		res.Warnings = append(res.Warnings, "no endpoint design to document")
		return res
	}

	var purpose string
	if in.Acc.Analyze != nil {
		purpose = string(in.Acc.Analyze.Purpose.Purpose)
	}

	manifest := workflow.DocManifest{Files: []workflow.DocFile{{
		Path:    "README.md",
		Content: renderAPIDoc(purpose, in.Acc.Design.Endpoints),
	}}}
	for _, ep := range in.Acc.Design.Endpoints {
		manifest.Files = append(manifest.Files, workflow.DocFile{
			Path:    "docs/" + strings.Trim(ep.Path, "/") + ".md",
			Content: renderEndpointDoc(ep),
		})
	}

	t.log.Info("documentation rendered", "files", len(manifest.Files))
	res.Success = true
	res.Document = &workflow.DocumentPayload{Manifest: manifest}
	return res
}

func renderAPIDoc(purpose string, endpoints []workflow.EndpointDesign) string {
	var b strings.Builder
	b.WriteString("# Generated API\n\n")
	if purpose != "" {
		fmt.Fprintf(&b, "Repository purpose: %s\n\n", purpose)
	}
	b.WriteString("| Method | Path | Function |\n|---|---|---|\n")
	for _, ep := range endpoints {
		fmt.Fprintf(&b, "| %s | %s | %s |\n", ep.Method, ep.Path, ep.FunctionName)
	}
	return b.String()
}

func renderEndpointDoc(ep workflow.EndpointDesign) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s %s\n\n", ep.Method, ep.Path)
	if ep.Description != "" {
		b.WriteString(ep.Description + "\n\n")
	}
	if len(ep.Params) > 0 {
		b.WriteString("## Parameters\n\n")
		for _, p := range ep.Params {
			line := "- `" + p.Name + "`"
			if p.Type != "" {
				line += " (" + p.Type + ")"
			}
			if p.Default != "" {
				line += ", default " + p.Default
			}
			b.WriteString(line + "\n")
		}
	}
	if ep.NeedsAuth {
		b.WriteString("\nRequires authentication.\n")
	}
	return b.String()
}
