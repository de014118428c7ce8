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

const secureCallSite = "secure.review"

// dangerousCalls flags candidate summaries whose external calls can reach
// the host system or deserialize untrusted input.
var dangerousCalls = map[string]string{
	"os":         "shell or filesystem access",
	"subprocess": "process execution",
	"eval":       "dynamic code evaluation",
	"exec":       "dynamic code execution",
	"pickle":     "unsafe deserialization",
	"marshal":    "unsafe deserialization",
}

// SecureTool reviews the designed endpoints for security concerns, one
// model call for the batch with keyword heuristics as fallback.
// Non-critical: a failure degrades to warnings.
type SecureTool struct {
	invoker *invoker.Invoker
	log     *slog.Logger
}

// NewSecureTool creates a SecureTool.
func NewSecureTool(inv *invoker.Invoker, log *slog.Logger) *SecureTool {
	return &SecureTool{invoker: inv, log: log}
}

// Phase implements PhaseTool.
func (t *SecureTool) Phase() workflow.Phase { return workflow.PhaseSecure }

// Execute implements PhaseTool.
func (t *SecureTool) Execute(ctx context.Context, in ToolInput) workflow.PhaseResult {
	res := workflow.PhaseResult{Phase: workflow.PhaseSecure}
	if in.Acc.Design == nil || in.Acc.Generate == nil {
		res.Warnings = append(res.Warnings, "no generated API to review")
		return res
	}

	var candidates []source.CandidateFunction
	if in.Acc.Analyze != nil {
		candidates = in.Acc.Analyze.Candidates
	}

	notes, warnings := t.review(ctx, in.Acc.Design.Endpoints, candidates)
	res.Warnings = append(res.Warnings, warnings...)
	res.Success = true
	res.Secure = &workflow.SecurePayload{Notes: notes}

	t.log.Info("security review complete", "notes", len(notes))
	return res
}

func (t *SecureTool) review(ctx context.Context, endpoints []workflow.EndpointDesign, candidates []source.CandidateFunction) ([]workflow.SecurityNote, []string) {
	if len(endpoints) == 0 {
		return []workflow.SecurityNote{}, nil
	}

	resp, err := t.invoker.Invoke(ctx, invoker.Request{
		CallSite: secureCallSite,
		System:   "You review API designs for security issues. Answer with a single JSON object.",
		Prompt:   securePrompt(endpoints),
		Args:     map[string]any{"endpoints": endpoints},
		Schema:   []string{"notes"},
	})
	if err != nil {
		t.log.Warn("security review call failed, using heuristics", "error", err)
		return heuristicNotes(endpoints, candidates),
			[]string{fmt.Sprintf("security review failed, heuristic notes used: %v", err)}
	}

	var out struct {
		Notes []workflow.SecurityNote `json:"notes"`
	}
	if err := json.Unmarshal(resp.JSON, &out); err != nil {
		return heuristicNotes(endpoints, candidates),
			[]string{"security review response unreadable, heuristic notes used"}
	}
	if out.Notes == nil {
		out.Notes = []workflow.SecurityNote{}
	}
	return out.Notes, nil
}

// heuristicNotes is the degraded review: auth and validation notes per
// endpoint, plus a high-severity note when the backing function's summary
// shows dangerous calls.
func heuristicNotes(endpoints []workflow.EndpointDesign, candidates []source.CandidateFunction) []workflow.SecurityNote {
	byName := make(map[string]source.CandidateFunction, len(candidates))
	for _, c := range candidates {
		byName[c.Name] = c
	}

	var notes []workflow.SecurityNote
	for _, ep := range endpoints {
		if ep.NeedsAuth {
			notes = append(notes, workflow.SecurityNote{
				Endpoint: ep.Path,
				Severity: "medium",
				Category: "authentication",
				Note:     "endpoint requires an authentication check",
			})
		}
		if len(ep.Params) > 0 {
			notes = append(notes, workflow.SecurityNote{
				Endpoint: ep.Path,
				Severity: "low",
				Category: "input_validation",
				Note:     "validate request parameters against the declared types",
			})
		}
		if c, ok := byName[ep.FunctionName]; ok {
			for _, call := range c.Summary.ExternalCalls {
				if reason, bad := dangerousCalls[strings.ToLower(call)]; bad {
					notes = append(notes, workflow.SecurityNote{
						Endpoint: ep.Path,
						Severity: "high",
						Category: "dangerous_call",
						Note:     fmt.Sprintf("%s uses %s (%s)", ep.FunctionName, call, reason),
					})
				}
			}
		}
	}
	if notes == nil {
		notes = []workflow.SecurityNote{}
	}
	return notes
}

func securePrompt(endpoints []workflow.EndpointDesign) string {
	var b strings.Builder
	b.WriteString("Review these REST endpoints for security issues:\n")
	for _, ep := range endpoints {
		fmt.Fprintf(&b, "- %s %s auth=%v params=%d\n", ep.Method, ep.Path, ep.NeedsAuth, len(ep.Params))
	}
	b.WriteString("\nRespond with JSON: {\"notes\": [{\"endpoint\", \"severity\", \"category\", \"note\"}]}")
	return b.String()
}
