package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/code2api/code2api/internal/analyzer"
	"github.com/code2api/code2api/internal/domain/source"
	"github.com/code2api/code2api/internal/domain/workflow"
)

// FetchTool normalizes the repository contents supplied with the request
// into source units and detects the dominant language. Critical: a run
// cannot proceed without units.
type FetchTool struct {
	log *slog.Logger
}

// NewFetchTool creates a FetchTool.
func NewFetchTool(log *slog.Logger) *FetchTool {
	return &FetchTool{log: log}
}

// Phase implements PhaseTool.
func (t *FetchTool) Phase() workflow.Phase { return workflow.PhaseFetch }

// Execute implements PhaseTool.
func (t *FetchTool) Execute(_ context.Context, in ToolInput) workflow.PhaseResult {
	res := workflow.PhaseResult{Phase: workflow.PhaseFetch}

	if len(in.Request.Files) == 0 {
		res.Warnings = append(res.Warnings, "request carries no files")
		return res
	}

	payload := &workflow.FetchPayload{
		Repo:   in.Request.Repo,
		Branch: in.Request.Branch,
	}

	langCounts := map[string]int{}
	for _, f := range in.Request.Files {
		lang := f.Language
		if lang == "" {
			lang = analyzer.DetectLanguage(f.Path)
		}
		if lang == "" {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("%s: could not detect language", f.Path))
		} else {
			langCounts[lang]++
		}
		payload.Units = append(payload.Units, source.SourceUnit{
			Path:     f.Path,
			Language: lang,
			Text:     f.Text,
		})
	}

	for lang, n := range langCounts {
		best := langCounts[payload.Language]
		if n > best || (n == best && (payload.Language == "" || lang < payload.Language)) {
			payload.Language = lang
		}
	}

	t.log.Info("repository normalized",
		"repo", payload.Repo, "branch", payload.Branch,
		"files", len(payload.Units), "language", payload.Language)

	res.Success = true
	res.Fetch = payload
	return res
}
