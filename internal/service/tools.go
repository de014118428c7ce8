// Package service implements the generation pipeline: seven phase tools
// and the orchestrator that sequences them.
package service

import (
	"context"
	"strings"

	"github.com/code2api/code2api/internal/domain/workflow"
)

// ToolInput is everything a phase tool may consume: the original request
// plus all payloads accumulated so far. Tools are stateless and never call
// each other; sequencing belongs to the orchestrator alone.
type ToolInput struct {
	Request workflow.Request
	Acc     *workflow.Accumulated
}

// PhaseTool executes one pipeline phase. A tool that cannot produce a
// valid output returns Success=false with a best-effort partial payload
// and warnings; it never panics and never returns a bare error.
type PhaseTool interface {
	Phase() workflow.Phase
	Execute(ctx context.Context, in ToolInput) workflow.PhaseResult
}

// inferMethod guesses an HTTP method from a function name prefix. Used by
// the heuristic endpoint fallback when the design call cannot be made.
func inferMethod(name string) string {
	lower := strings.ToLower(name)
	switch {
	case hasAnyPrefix(lower, "get", "list", "fetch", "find", "read", "query", "show"):
		return "GET"
	case hasAnyPrefix(lower, "delete", "remove", "drop"):
		return "DELETE"
	case hasAnyPrefix(lower, "update", "set", "edit", "modify", "patch"):
		return "PUT"
	default:
		return "POST"
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// endpointPath derives a URL path from a candidate name: lower snake case
// with underscores flattened to hyphens.
func endpointPath(name string) string {
	return "/" + strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(name, "_")), "_", "-")
}
