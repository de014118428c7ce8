package workflow

import (
	"errors"
	"fmt"
)

// ErrContractViolation indicates a phase output is missing a field the next
// phase requires. The orchestrator attempts one reconciliation pass before
// treating it as fatal.
var ErrContractViolation = errors.New("phase contract violation")

// ErrCancelled indicates the run was cancelled cooperatively between phases.
var ErrCancelled = errors.New("workflow cancelled")

// ErrInvalidRequest indicates the workflow request is structurally invalid.
var ErrInvalidRequest = errors.New("invalid workflow request")

// ContractError names the field a phase needs and the phase that should
// have produced it.
type ContractError struct {
	Phase    Phase  // the phase whose input is incomplete
	Field    string // the missing field
	Producer Phase  // the phase responsible for producing it
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("phase %s requires %q, which phase %s did not produce", e.Phase, e.Field, e.Producer)
}

func (e *ContractError) Unwrap() error { return ErrContractViolation }
