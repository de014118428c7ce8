// Package workflow defines the generation pipeline's state machine
// vocabulary: phases, run states, per-phase payloads, and the inter-phase
// data contracts the orchestrator validates.
package workflow

import (
	"time"

	"github.com/code2api/code2api/internal/domain/source"
)

// State is the lifecycle state of a workflow run.
type State string

const (
	StatePending     State = "pending"
	StateFetching    State = "fetching"
	StateAnalyzing   State = "analyzing"
	StateDesigning   State = "designing"
	StateGenerating  State = "generating"
	StateSecuring    State = "securing"
	StateTesting     State = "testing"
	StateDocumenting State = "documenting"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Phase is one stage of the generation pipeline.
type Phase string

const (
	PhaseFetch    Phase = "fetch"
	PhaseAnalyze  Phase = "analyze"
	PhaseDesign   Phase = "design"
	PhaseGenerate Phase = "generate"
	PhaseSecure   Phase = "secure"
	PhaseTest     Phase = "test"
	PhaseDocument Phase = "document"
)

// Phases returns the pipeline phases in execution order.
func Phases() []Phase {
	return []Phase{
		PhaseFetch, PhaseAnalyze, PhaseDesign, PhaseGenerate,
		PhaseSecure, PhaseTest, PhaseDocument,
	}
}

// Critical reports whether a failure of this phase is fatal to the run.
// Non-critical phase failures degrade to warnings and the pipeline
// continues with a templated payload.
func (p Phase) Critical() bool {
	switch p {
	case PhaseFetch, PhaseAnalyze, PhaseDesign, PhaseGenerate:
		return true
	case PhaseSecure, PhaseTest, PhaseDocument:
		return false
	}
	return true
}

// RunningState maps a phase to the state the run is in while executing it.
func (p Phase) RunningState() State {
	switch p {
	case PhaseFetch:
		return StateFetching
	case PhaseAnalyze:
		return StateAnalyzing
	case PhaseDesign:
		return StateDesigning
	case PhaseGenerate:
		return StateGenerating
	case PhaseSecure:
		return StateSecuring
	case PhaseTest:
		return StateTesting
	case PhaseDocument:
		return StateDocumenting
	}
	return StatePending
}

// FileInput is one repository file as supplied by the fetch collaborator.
type FileInput struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Text     string `json:"text"`
}

// Request starts a workflow run. Files carry the repository contents;
// fetching/cloning itself belongs to an upstream collaborator.
type Request struct {
	Repo   string      `json:"repo"`
	Branch string      `json:"branch"`
	Files  []FileInput `json:"files"`
}

// Key identifies a run for idempotency: concurrent requests for the same
// (repo, branch) pair join a single in-flight run.
func (r Request) Key() string {
	return r.Repo + "@" + r.Branch
}

// Run is the registry record for one workflow execution.
type Run struct {
	ID          string     `json:"id"`
	Repo        string     `json:"repo"`
	Branch      string     `json:"branch"`
	State       State      `json:"state"`
	Warnings    []string   `json:"warnings,omitempty"`
	Diagnostic  string     `json:"diagnostic,omitempty"`
	Result      *Result    `json:"result,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Result is the union of all phase payloads produced by a completed (or
// degraded) run, consumed by the packaging collaborator.
type Result struct {
	Purpose            source.RepositoryPurpose   `json:"purpose"`
	CandidateEndpoints []EndpointDesign           `json:"candidate_endpoints"`
	Candidates         []source.CandidateFunction `json:"candidates,omitempty"`
	GeneratedFiles     []GeneratedFile            `json:"generated_files"`
	SecurityNotes      []SecurityNote             `json:"security_notes"`
	TestManifest       TestManifest               `json:"test_manifest"`
	DocManifest        DocManifest                `json:"doc_manifest"`
	Warnings           []string                   `json:"warnings,omitempty"`
}
