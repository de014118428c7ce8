package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/code2api/code2api/internal/domain/workflow"
	"github.com/code2api/code2api/internal/invoker"
)

const generateCallSite = "generate.files"

// GenerateTool produces the generated-file manifest for the designed
// endpoints: handlers, models, and an application scaffold. A templated
// manifest substitutes when the model call cannot be completed.
type GenerateTool struct {
	invoker *invoker.Invoker
	log     *slog.Logger
}

// NewGenerateTool creates a GenerateTool.
func NewGenerateTool(inv *invoker.Invoker, log *slog.Logger) *GenerateTool {
	return &GenerateTool{invoker: inv, log: log}
}

// Phase implements PhaseTool.
func (t *GenerateTool) Phase() workflow.Phase { return workflow.PhaseGenerate }

// Execute implements PhaseTool.
func (t *GenerateTool) Execute(ctx context.Context, in ToolInput) workflow.PhaseResult {
	res := workflow.PhaseResult{Phase: workflow.PhaseGenerate}
	if in.Acc.Design == nil {
		res.Warnings = append(res.Warnings, "no endpoint design to generate from")
		return res
	}

	endpoints := in.Acc.Design.Endpoints
	files, warnings := t.generate(ctx, endpoints)
	res.Warnings = append(res.Warnings, warnings...)
	res.Success = true
	res.Generate = &workflow.GeneratePayload{Files: files}

	t.log.Info("files generated", "endpoints", len(endpoints), "files", len(files))
	return res
}

func (t *GenerateTool) generate(ctx context.Context, endpoints []workflow.EndpointDesign) ([]workflow.GeneratedFile, []string) {
	if len(endpoints) == 0 {
		return []workflow.GeneratedFile{}, nil
	}

	resp, err := t.invoker.Invoke(ctx, invoker.Request{
		CallSite: generateCallSite,
		System:   "You generate API server code. Answer with a single JSON object.",
		Prompt:   generatePrompt(endpoints),
		Args:     map[string]any{"endpoints": endpoints},
		Schema:   []string{"files"},
	})
	if err != nil {
		t.log.Warn("code generation call failed, using templates", "error", err)
		return TemplateFiles(endpoints),
			[]string{fmt.Sprintf("code generation failed, templated files used: %v", err)}
	}

	var out struct {
		Files []workflow.GeneratedFile `json:"files"`
	}
	if err := json.Unmarshal(resp.JSON, &out); err != nil || len(out.Files) == 0 {
		return TemplateFiles(endpoints),
			[]string{"code generation response unreadable, templated files used"}
	}
	return out.Files, nil
}

// TemplateFiles builds the degraded manifest: one handler per endpoint
// plus the application scaffold. Also used by the orchestrator's
// reconciliation pass.
func TemplateFiles(endpoints []workflow.EndpointDesign) []workflow.GeneratedFile {
	files := make([]workflow.GeneratedFile, 0, len(endpoints)+2)
	for _, ep := range endpoints {
		name := strings.ReplaceAll(strings.Trim(ep.Path, "/"), "-", "_")
		files = append(files, workflow.GeneratedFile{
			Path:    "handlers/" + name + ".py",
			Kind:    "handler",
			Content: handlerTemplate(ep),
		})
	}
	files = append(files,
		workflow.GeneratedFile{Path: "models.py", Kind: "model", Content: modelsTemplate(endpoints)},
		workflow.GeneratedFile{Path: "main.py", Kind: "app", Content: appTemplate(endpoints)},
	)
	return files
}

func handlerTemplate(ep workflow.EndpointDesign) string {
	var b strings.Builder
	fmt.Fprintf(&b, "async def %s_handler(payload: dict) -> dict:\n", ep.FunctionName)
	if ep.Description != "" {
		fmt.Fprintf(&b, "    \"\"\"%s\"\"\"\n", ep.Description)
	}
	fmt.Fprintf(&b, "    return %s(**payload)\n", ep.FunctionName)
	return b.String()
}

func modelsTemplate(endpoints []workflow.EndpointDesign) string {
	var b strings.Builder
	b.WriteString("from pydantic import BaseModel\n")
	for _, ep := range endpoints {
		fmt.Fprintf(&b, "\n\nclass %sRequest(BaseModel):\n", exportName(ep.FunctionName))
		if len(ep.Params) == 0 {
			b.WriteString("    pass\n")
			continue
		}
		for _, p := range ep.Params {
			typ := p.Type
			if typ == "" {
				typ = "str"
			}
			fmt.Fprintf(&b, "    %s: %s\n", p.Name, typ)
		}
	}
	return b.String()
}

func appTemplate(endpoints []workflow.EndpointDesign) string {
	var b strings.Builder
	b.WriteString("from fastapi import FastAPI\n\napp = FastAPI()\n")
	for _, ep := range endpoints {
		fmt.Fprintf(&b, "\n\n@app.%s(\"%s\")\nasync def %s(payload: dict):\n    ...\n",
			strings.ToLower(ep.Method), ep.Path, ep.FunctionName)
	}
	return b.String()
}

// exportName converts snake_case to PascalCase for generated model names.
func exportName(name string) string {
	parts := strings.Split(name, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	return b.String()
}

func generatePrompt(endpoints []workflow.EndpointDesign) string {
	var b strings.Builder
	b.WriteString("Generate FastAPI server files for these endpoints:\n")
	for _, ep := range endpoints {
		fmt.Fprintf(&b, "- %s %s (%s)\n", ep.Method, ep.Path, ep.FunctionName)
	}
	b.WriteString("\nRespond with JSON: {\"files\": [{\"path\", \"kind\", \"content\"}]}; kind is handler, model, app, or config.")
	return b.String()
}
