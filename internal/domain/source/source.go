// Package source defines the parsed-source data model: source units,
// extracted symbols, API candidate functions, and repository purpose.
package source

// SourceUnit is one file handed to the analyzer: raw text plus a language
// tag. Symbols is populated during extraction; a unit is immutable once
// parsed and is handed read-only to the pipeline phases.
type SourceUnit struct {
	Path     string   `json:"path"`
	Language string   `json:"language"`
	Text     string   `json:"text"`
	Symbols  []Symbol `json:"symbols,omitempty"`
}

// SymbolKind classifies an extracted symbol.
type SymbolKind string

const (
	SymbolFunction SymbolKind = "function"
	SymbolMethod   SymbolKind = "method"
	SymbolClass    SymbolKind = "class"
)

// Symbol is a named definition found in a source unit.
type Symbol struct {
	Name string     `json:"name"`
	Kind SymbolKind `json:"kind"`
	Line int        `json:"line"`
}

// Param is one parameter of a candidate function.
type Param struct {
	Name    string `json:"name"`
	Type    string `json:"type,omitempty"`
	Default string `json:"default,omitempty"`
}

// Summary is the best-effort business-logic summary of a candidate:
// its docstring, the external symbols its body calls, and literal
// constants that look like business rules.
type Summary struct {
	Text          string   `json:"text,omitempty"`
	ExternalCalls []string `json:"external_calls,omitempty"`
	Constants     []string `json:"constants,omitempty"`
}

// CandidateFunction is a parsed function or method eligible to become an
// API endpoint. SourcePath always names the SourceUnit the candidate was
// extracted from; candidates never alias symbols across files.
type CandidateFunction struct {
	Name           string  `json:"name"`
	Params         []Param `json:"params,omitempty"`
	ReturnType     string  `json:"return_type,omitempty"`
	Docstring      string  `json:"docstring,omitempty"`
	Class          string  `json:"class,omitempty"`
	IsAPICandidate bool    `json:"is_api_candidate"`
	Summary        Summary `json:"summary"`
	SourcePath     string  `json:"source_path"`
	Line           int     `json:"line"`
}

// Purpose is the closed enumeration of repository purposes.
type Purpose string

const (
	PurposeDataAnalysis    Purpose = "data_analysis"
	PurposeMachineLearning Purpose = "machine_learning"
	PurposeFileProcessing  Purpose = "file_processing"
	PurposeWebScraping     Purpose = "web_scraping"
	PurposeDatabase        Purpose = "database"
	PurposeAutomation      Purpose = "automation"
	PurposeSecurity        Purpose = "security"
	PurposeSocialMedia     Purpose = "social_media"
	PurposeCrypto          Purpose = "crypto"
	PurposeGame            Purpose = "game"
	PurposeCLITool         Purpose = "cli_tool"
	PurposeGeneric         Purpose = "generic"
)

// Valid reports whether p is a member of the closed enumeration.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeDataAnalysis, PurposeMachineLearning, PurposeFileProcessing,
		PurposeWebScraping, PurposeDatabase, PurposeAutomation,
		PurposeSecurity, PurposeSocialMedia, PurposeCrypto, PurposeGame,
		PurposeCLITool, PurposeGeneric:
		return true
	}
	return false
}

// ParsePurpose maps a free-form classification string onto the enumeration,
// falling back to generic for anything outside it.
func ParsePurpose(s string) Purpose {
	p := Purpose(s)
	if p.Valid() {
		return p
	}
	return PurposeGeneric
}

// RepositoryPurpose is the classified purpose of a repository with the
// model's confidence and supporting evidence. Produced once per workflow
// run; immutable thereafter.
type RepositoryPurpose struct {
	Purpose    Purpose  `json:"purpose"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence,omitempty"`
}
