package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/code2api/code2api/internal/analyzer"
	"github.com/code2api/code2api/internal/domain/source"
	"github.com/code2api/code2api/internal/domain/workflow"
	"github.com/code2api/code2api/internal/invoker"
)

const purposeCallSite = "analyze.purpose"

// AnalyzeTool runs the static analyzer over the fetched units and
// classifies the repository purpose with one model call. The purpose falls
// back to generic with a warning when the call cannot be completed.
// Critical: a run with nothing analyzable fails.
type AnalyzeTool struct {
	analyzer *analyzer.Analyzer
	invoker  *invoker.Invoker
	log      *slog.Logger
}

// NewAnalyzeTool creates an AnalyzeTool.
func NewAnalyzeTool(a *analyzer.Analyzer, inv *invoker.Invoker, log *slog.Logger) *AnalyzeTool {
	return &AnalyzeTool{analyzer: a, invoker: inv, log: log}
}

// Phase implements PhaseTool.
func (t *AnalyzeTool) Phase() workflow.Phase { return workflow.PhaseAnalyze }

// Execute implements PhaseTool.
func (t *AnalyzeTool) Execute(ctx context.Context, in ToolInput) workflow.PhaseResult {
	res := workflow.PhaseResult{Phase: workflow.PhaseAnalyze}
	if in.Acc.Fetch == nil {
		res.Warnings = append(res.Warnings, "no fetched repository to analyze")
		return res
	}

	parsed := t.analyzer.Parse(in.Acc.Fetch.Units)
	payload := &workflow.AnalyzePayload{
		Candidates: parsed.Candidates,
		FileErrors: parsed.FileErrors,
		Functions:  parsed.Functions,
		Classes:    parsed.Classes,
	}
	if payload.Candidates == nil {
		payload.Candidates = []source.CandidateFunction{}
	}
	for _, fe := range parsed.FileErrors {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %s", fe.Path, fe.Err))
	}

	if len(parsed.FileErrors) == len(in.Acc.Fetch.Units) && len(in.Acc.Fetch.Units) > 0 {
		res.Warnings = append(res.Warnings, "no file could be analyzed")
		res.Analyze = payload
		return res
	}

	purpose, warning := t.classify(ctx, in.Acc.Fetch, parsed)
	if warning != "" {
		res.Warnings = append(res.Warnings, warning)
	}
	payload.Purpose = purpose

	t.log.Info("repository analyzed",
		"repo", in.Acc.Fetch.Repo,
		"candidates", len(payload.Candidates),
		"purpose", purpose.Purpose,
		"file_errors", len(payload.FileErrors))

	res.Success = true
	res.Analyze = payload
	return res
}

// classify asks the model for a repository purpose, falling back to
// generic when the call exhausts retries or returns something outside the
// enumeration.
func (t *AnalyzeTool) classify(ctx context.Context, fetch *workflow.FetchPayload, parsed analyzer.Result) (source.RepositoryPurpose, string) {
	resp, err := t.invoker.Invoke(ctx, invoker.Request{
		CallSite: purposeCallSite,
		System:   "You classify software repositories. Answer with a single JSON object.",
		Prompt:   purposePrompt(fetch, parsed),
		Args: map[string]any{
			"repo":     fetch.Repo,
			"branch":   fetch.Branch,
			"manifest": manifestPaths(fetch),
		},
		Schema:      []string{"purpose", "confidence"},
		Temperature: 0.1,
	})
	if err != nil {
		t.log.Warn("purpose classification failed, using generic", "error", err)
		return source.RepositoryPurpose{
			Purpose:    source.PurposeGeneric,
			Confidence: 0,
		}, fmt.Sprintf("purpose classification failed: %v", err)
	}

	var out struct {
		Purpose    string   `json:"purpose"`
		Confidence float64  `json:"confidence"`
		Evidence   []string `json:"evidence"`
	}
	if err := json.Unmarshal(resp.JSON, &out); err != nil {
		return source.RepositoryPurpose{Purpose: source.PurposeGeneric},
			fmt.Sprintf("purpose response unreadable: %v", err)
	}

	purpose := source.Purpose(out.Purpose)
	if !purpose.Valid() {
		return source.RepositoryPurpose{
				Purpose:    source.PurposeGeneric,
				Confidence: out.Confidence,
				Evidence:   out.Evidence,
			},
			fmt.Sprintf("purpose %q outside the enumeration, using generic", out.Purpose)
	}
	return source.RepositoryPurpose{
		Purpose:    purpose,
		Confidence: out.Confidence,
		Evidence:   out.Evidence,
	}, ""
}

func purposePrompt(fetch *workflow.FetchPayload, parsed analyzer.Result) string {
	var b strings.Builder
	b.WriteString("Classify the purpose of this repository as one of: ")
	b.WriteString("data_analysis, machine_learning, file_processing, web_scraping, database, ")
	b.WriteString("automation, security, social_media, crypto, game, cli_tool, generic.\n\n")
	b.WriteString("Files:\n")
	for _, p := range manifestPaths(fetch) {
		b.WriteString("- " + p + "\n")
	}
	if readme := readmeExcerpt(fetch); readme != "" {
		b.WriteString("\nREADME excerpt:\n" + readme + "\n")
	}
	if len(parsed.Candidates) > 0 {
		b.WriteString("\nFunctions:\n")
		for i, c := range parsed.Candidates {
			if i == 20 {
				break
			}
			b.WriteString("- " + c.Name + "\n")
		}
	}
	b.WriteString("\nRespond with JSON: {\"purpose\": ..., \"confidence\": 0..1, \"evidence\": [...]}")
	return b.String()
}

func manifestPaths(fetch *workflow.FetchPayload) []string {
	paths := make([]string, 0, len(fetch.Units))
	for _, u := range fetch.Units {
		paths = append(paths, u.Path)
	}
	sort.Strings(paths)
	return paths
}

func readmeExcerpt(fetch *workflow.FetchPayload) string {
	for _, u := range fetch.Units {
		base := strings.ToLower(u.Path)
		if strings.HasPrefix(base, "readme") || strings.HasSuffix(base, "/readme.md") || base == "readme.md" {
			if len(u.Text) > 1000 {
				return u.Text[:1000]
			}
			return u.Text
		}
	}
	return ""
}
