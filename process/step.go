package process

import (
	"context"

	"github.com/busylang/busyflow/types"
)

// StepType identifies the execution strategy of a step. The runtime reasons
// exhaustively about exactly these variants.
type StepType string

const (
	StepTypeHuman     StepType = "human"
	StepTypeAgent     StepType = "agent"
	StepTypeAlgorithm StepType = "algorithm"
	StepTypeComposite StepType = "composite"
)

// Step is one unit of work inside a Process. Implementations are immutable
// after construction and owned by exactly one Process.
type Step interface {
	// ID returns the step identifier, unique within its Process.
	ID() string
	// Name returns the human-readable step name.
	Name() string
	// Type returns the execution strategy variant.
	Type() StepType
	// Execute runs the step against the given execution input.
	Execute(ctx context.Context, in *ExecutionInput) (*StepResult, error)
	// Validate checks candidate input data against the step's contract.
	Validate(input map[string]any) ValidationResult
	// CanSkip reports whether the step may be skipped for the given reason.
	// The governing policy is "facilitate, never constrain": every step is
	// skippable unless a subclass deliberately narrows this.
	CanSkip(reason string) bool
	// RequiredInputs lists the input field names the step needs.
	RequiredInputs() []string
	// AcceptManualData reports whether data satisfies the step's contract
	// as a manual override: every required input field must be present.
	AcceptManualData(data map[string]any) bool
}

// ExecutionInput carries the per-step execution environment: the values the
// step reads plus the outputs of previously completed steps.
type ExecutionInput struct {
	ProcessID string
	StepID    string
	UserID    string
	// Values is the direct input for this step.
	Values map[string]any
	// StepData holds prior step outputs keyed by step ID.
	StepData map[string]map[string]any
}

// Value returns the named input value, falling back to prior step outputs.
func (in *ExecutionInput) Value(name string) (any, bool) {
	if in == nil {
		return nil, false
	}
	if v, ok := in.Values[name]; ok {
		return v, true
	}
	for _, data := range in.StepData {
		if v, ok := data[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// StepError is one field-tagged execution or validation failure.
type StepError struct {
	Field   string          `json:"field,omitempty"`
	Code    types.ErrorCode `json:"code"`
	Message string          `json:"message"`
}

// StepResult is the outcome of executing a single step.
type StepResult struct {
	Success  bool           `json:"success"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Errors   []StepError    `json:"errors,omitempty"`
}

// ValidationResult reports the outcome of validating candidate input data.
type ValidationResult struct {
	Valid  bool        `json:"valid"`
	Errors []StepError `json:"errors,omitempty"`
}

// baseStep implements the identity and policy defaults shared by every
// step variant.
type baseStep struct {
	id       string
	name     string
	stepType StepType
	required []string
}

func (s *baseStep) ID() string     { return s.id }
func (s *baseStep) Name() string   { return s.name }
func (s *baseStep) Type() StepType { return s.stepType }

// CanSkip always permits skipping regardless of reason.
func (s *baseStep) CanSkip(reason string) bool { return true }

func (s *baseStep) RequiredInputs() []string {
	out := make([]string, len(s.required))
	copy(out, s.required)
	return out
}

// AcceptManualData is true iff every required input field is present.
func (s *baseStep) AcceptManualData(data map[string]any) bool {
	for _, name := range s.required {
		if v, ok := data[name]; !ok || v == nil {
			return false
		}
	}
	return true
}
