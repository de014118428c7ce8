package workflow

import "github.com/code2api/code2api/internal/domain/source"

// PhaseResult is the tagged union over phase payloads. Exactly one payload
// pointer is set, matching Phase. Results chain by PrevID for audit; a
// result never mutates its predecessor.
type PhaseResult struct {
	ID       string   `json:"id"`
	Phase    Phase    `json:"phase"`
	PrevID   string   `json:"prev_id,omitempty"`
	Success  bool     `json:"success"`
	Warnings []string `json:"warnings,omitempty"`

	Fetch    *FetchPayload    `json:"fetch,omitempty"`
	Analyze  *AnalyzePayload  `json:"analyze,omitempty"`
	Design   *DesignPayload   `json:"design,omitempty"`
	Generate *GeneratePayload `json:"generate,omitempty"`
	Secure   *SecurePayload   `json:"secure,omitempty"`
	Test     *TestPayload     `json:"test,omitempty"`
	Document *DocumentPayload `json:"document,omitempty"`
}

// FetchPayload is the normalized repository snapshot.
type FetchPayload struct {
	Repo     string              `json:"repo"`
	Branch   string              `json:"branch"`
	Language string              `json:"language"`
	Units    []source.SourceUnit `json:"units"`
}

// FileErrorKind classifies a per-file analysis failure.
type FileErrorKind string

const (
	FileErrorUnsupportedLanguage FileErrorKind = "unsupported_language"
	FileErrorParse               FileErrorKind = "parse_error"
)

// FileError records a per-file analysis failure. File errors are warnings;
// they never abort the batch.
type FileError struct {
	Path string        `json:"path"`
	Kind FileErrorKind `json:"kind"`
	Err  string        `json:"error"`
}

// AnalyzePayload carries the extracted candidates and classified purpose.
type AnalyzePayload struct {
	Purpose    source.RepositoryPurpose   `json:"purpose"`
	Candidates []source.CandidateFunction `json:"candidates"`
	FileErrors []FileError                `json:"file_errors,omitempty"`
	Functions  int                        `json:"functions_analyzed"`
	Classes    int                        `json:"classes_analyzed"`
}

// EndpointDesign is one designed REST endpoint for a candidate function.
type EndpointDesign struct {
	Path         string         `json:"path"`
	Method       string         `json:"method"`
	FunctionName string         `json:"function_name"`
	Description  string         `json:"description,omitempty"`
	Params       []source.Param `json:"params,omitempty"`
	NeedsAuth    bool           `json:"needs_auth"`
	Fallback     bool           `json:"fallback,omitempty"`
}

// DesignPayload is the set of endpoint designs.
type DesignPayload struct {
	Endpoints []EndpointDesign `json:"endpoints"`
}

// GeneratedFile is one file of the generated API, by relative path.
type GeneratedFile struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"` // handler, model, app, config
	Content string `json:"content,omitempty"`
}

// GeneratePayload is the generated-file manifest.
type GeneratePayload struct {
	Files []GeneratedFile `json:"files"`
}

// SecurityNote is one finding or hardening recommendation for an endpoint.
type SecurityNote struct {
	Endpoint string `json:"endpoint"`
	Severity string `json:"severity"` // high, medium, low
	Category string `json:"category"`
	Note     string `json:"note"`
}

// SecurePayload is the security review output.
type SecurePayload struct {
	Notes []SecurityNote `json:"notes"`
}

// TestCase is one generated test case for an endpoint.
type TestCase struct {
	Name         string `json:"name"`
	Kind         string `json:"kind"` // positive, negative, auth
	Method       string `json:"method"`
	Path         string `json:"path"`
	ExpectStatus int    `json:"expect_status"`
}

// TestManifest lists the generated test cases.
type TestManifest struct {
	Cases []TestCase `json:"cases"`
}

// TestPayload wraps the test manifest.
type TestPayload struct {
	Manifest TestManifest `json:"manifest"`
}

// DocFile is one generated documentation file.
type DocFile struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
}

// DocManifest lists the generated documentation files.
type DocManifest struct {
	Files []DocFile `json:"files"`
}

// DocumentPayload wraps the documentation manifest.
type DocumentPayload struct {
	Manifest DocManifest `json:"manifest"`
}
