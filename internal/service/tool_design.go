package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/code2api/code2api/internal/domain/source"
	"github.com/code2api/code2api/internal/domain/workflow"
	"github.com/code2api/code2api/internal/invoker"
)

const designCallSite = "design.endpoints"

// DesignTool asks the model for an endpoint design per API candidate,
// substituting a heuristic design for any candidate the model's answer
// does not cover. The whole batch falls back to heuristics when the call
// cannot be completed.
type DesignTool struct {
	invoker *invoker.Invoker
	log     *slog.Logger
}

// NewDesignTool creates a DesignTool.
func NewDesignTool(inv *invoker.Invoker, log *slog.Logger) *DesignTool {
	return &DesignTool{invoker: inv, log: log}
}

// Phase implements PhaseTool.
func (t *DesignTool) Phase() workflow.Phase { return workflow.PhaseDesign }

// Execute implements PhaseTool.
func (t *DesignTool) Execute(ctx context.Context, in ToolInput) workflow.PhaseResult {
	res := workflow.PhaseResult{Phase: workflow.PhaseDesign}
	if in.Acc.Analyze == nil {
		res.Warnings = append(res.Warnings, "no analysis to design from")
		return res
	}

	candidates := apiCandidates(in.Acc.Analyze.Candidates)
	if len(candidates) == 0 {
		res.Success = true
		res.Design = &workflow.DesignPayload{Endpoints: []workflow.EndpointDesign{}}
		res.Warnings = append(res.Warnings, "no API candidates to design endpoints for")
		return res
	}

	endpoints, warnings := t.design(ctx, in.Acc.Analyze.Purpose, candidates)
	res.Warnings = append(res.Warnings, warnings...)
	res.Success = true
	res.Design = &workflow.DesignPayload{Endpoints: endpoints}

	t.log.Info("endpoints designed",
		"candidates", len(candidates), "endpoints", len(endpoints))
	return res
}

func (t *DesignTool) design(ctx context.Context, purpose source.RepositoryPurpose, candidates []source.CandidateFunction) ([]workflow.EndpointDesign, []string) {
	resp, err := t.invoker.Invoke(ctx, invoker.Request{
		CallSite: designCallSite,
		System:   "You design REST APIs. Answer with a single JSON object.",
		Prompt:   designPrompt(purpose, candidates),
		Args: map[string]any{
			"purpose":    purpose.Purpose,
			"candidates": candidateKeys(candidates),
		},
		Schema:      []string{"endpoints"},
		Temperature: 0.2,
	})
	if err != nil {
		t.log.Warn("endpoint design call failed, using heuristics", "error", err)
		return FallbackEndpoints(candidates),
			[]string{fmt.Sprintf("endpoint design failed, heuristic design used: %v", err)}
	}

	var out struct {
		Endpoints []workflow.EndpointDesign `json:"endpoints"`
	}
	if err := json.Unmarshal(resp.JSON, &out); err != nil {
		return FallbackEndpoints(candidates),
			[]string{fmt.Sprintf("endpoint design unreadable, heuristic design used: %v", err)}
	}

	// Index the model's answer by function name; candidates it missed or
	// answered incompletely get the heuristic design.
	byName := make(map[string]workflow.EndpointDesign, len(out.Endpoints))
	for _, ep := range out.Endpoints {
		if ep.FunctionName != "" && ep.Path != "" && ep.Method != "" {
			byName[ep.FunctionName] = ep
		}
	}

	var warnings []string
	endpoints := make([]workflow.EndpointDesign, 0, len(candidates))
	for _, c := range candidates {
		if ep, ok := byName[c.Name]; ok {
			ep.Method = strings.ToUpper(ep.Method)
			if ep.Params == nil {
				ep.Params = c.Params
			}
			endpoints = append(endpoints, ep)
			continue
		}
		warnings = append(warnings,
			fmt.Sprintf("no design returned for %s, heuristic design used", c.Name))
		endpoints = append(endpoints, fallbackEndpoint(c))
	}
	return endpoints, warnings
}

// FallbackEndpoints derives a heuristic design per candidate: the method
// inferred from the name prefix, the path from the name. Also used by the
// orchestrator's reconciliation pass.
func FallbackEndpoints(candidates []source.CandidateFunction) []workflow.EndpointDesign {
	out := make([]workflow.EndpointDesign, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, fallbackEndpoint(c))
	}
	return out
}

func fallbackEndpoint(c source.CandidateFunction) workflow.EndpointDesign {
	return workflow.EndpointDesign{
		Path:         endpointPath(c.Name),
		Method:       inferMethod(c.Name),
		FunctionName: c.Name,
		Description:  c.Docstring,
		Params:       c.Params,
		Fallback:     true,
	}
}

func apiCandidates(all []source.CandidateFunction) []source.CandidateFunction {
	var out []source.CandidateFunction
	for _, c := range all {
		if c.IsAPICandidate {
			out = append(out, c)
		}
	}
	return out
}

// candidateKeys is the cache key material for the design call: names and
// signatures only, so formatting changes in prompts do not bust the cache.
func candidateKeys(candidates []source.CandidateFunction) []map[string]any {
	out := make([]map[string]any, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, map[string]any{
			"name":   c.Name,
			"class":  c.Class,
			"params": c.Params,
			"return": c.ReturnType,
		})
	}
	return out
}

func designPrompt(purpose source.RepositoryPurpose, candidates []source.CandidateFunction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Design one REST endpoint per function for a %s service.\n\nFunctions:\n", purpose.Purpose)
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s(", c.Name)
		for i, p := range c.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.Name)
			if p.Type != "" {
				b.WriteString(": " + p.Type)
			}
		}
		b.WriteString(")")
		if c.Docstring != "" {
			b.WriteString(": " + c.Docstring)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nRespond with JSON: {\"endpoints\": [{\"path\", \"method\", \"function_name\", \"description\", \"needs_auth\"}]}")
	return b.String()
}
