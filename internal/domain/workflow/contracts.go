package workflow

// Accumulated collects the payloads of all phases executed so far. The
// orchestrator validates the next phase's input against it (field presence,
// not deep semantic checks) and uses it for the reconciliation pass.
type Accumulated struct {
	Fetch    *FetchPayload
	Analyze  *AnalyzePayload
	Design   *DesignPayload
	Generate *GeneratePayload
	Secure   *SecurePayload
	Test     *TestPayload
	Document *DocumentPayload
}

// Absorb records the payload of res. Earlier payloads are never overwritten
// with nil; a degraded phase contributes whatever partial payload it has.
func (a *Accumulated) Absorb(res PhaseResult) {
	switch res.Phase {
	case PhaseFetch:
		if res.Fetch != nil {
			a.Fetch = res.Fetch
		}
	case PhaseAnalyze:
		if res.Analyze != nil {
			a.Analyze = res.Analyze
		}
	case PhaseDesign:
		if res.Design != nil {
			a.Design = res.Design
		}
	case PhaseGenerate:
		if res.Generate != nil {
			a.Generate = res.Generate
		}
	case PhaseSecure:
		if res.Secure != nil {
			a.Secure = res.Secure
		}
	case PhaseTest:
		if res.Test != nil {
			a.Test = res.Test
		}
	case PhaseDocument:
		if res.Document != nil {
			a.Document = res.Document
		}
	}
}

// CheckInput validates that the accumulated payloads satisfy next's declared
// input contract. Returns a *ContractError naming the missing field and its
// producer, or nil when the contract holds.
func CheckInput(next Phase, a *Accumulated) error {
	switch next {
	case PhaseFetch:
		return nil
	case PhaseAnalyze:
		if a.Fetch == nil {
			return &ContractError{Phase: next, Field: "fetch", Producer: PhaseFetch}
		}
		if len(a.Fetch.Units) == 0 {
			return &ContractError{Phase: next, Field: "fetch.units", Producer: PhaseFetch}
		}
	case PhaseDesign:
		if a.Analyze == nil {
			return &ContractError{Phase: next, Field: "analyze", Producer: PhaseAnalyze}
		}
		if a.Analyze.Candidates == nil {
			return &ContractError{Phase: next, Field: "analyze.candidates", Producer: PhaseAnalyze}
		}
		if !a.Analyze.Purpose.Purpose.Valid() {
			return &ContractError{Phase: next, Field: "analyze.purpose", Producer: PhaseAnalyze}
		}
	case PhaseGenerate:
		if a.Design == nil {
			return &ContractError{Phase: next, Field: "design", Producer: PhaseDesign}
		}
		if a.Design.Endpoints == nil {
			return &ContractError{Phase: next, Field: "design.endpoints", Producer: PhaseDesign}
		}
		if a.Analyze == nil {
			return &ContractError{Phase: next, Field: "analyze", Producer: PhaseAnalyze}
		}
	case PhaseSecure:
		if a.Generate == nil {
			return &ContractError{Phase: next, Field: "generate", Producer: PhaseGenerate}
		}
		if a.Design == nil {
			return &ContractError{Phase: next, Field: "design", Producer: PhaseDesign}
		}
	case PhaseTest:
		if a.Design == nil {
			return &ContractError{Phase: next, Field: "design", Producer: PhaseDesign}
		}
		if a.Design.Endpoints == nil {
			return &ContractError{Phase: next, Field: "design.endpoints", Producer: PhaseDesign}
		}
	case PhaseDocument:
		if a.Design == nil {
			return &ContractError{Phase: next, Field: "design", Producer: PhaseDesign}
		}
	}
	return nil
}
