package process

import (
	"context"
	"fmt"

	"github.com/busylang/busyflow/types"
)

// Implementation describes the concrete algorithm behind an algorithm step.
type Implementation struct {
	Type    string `json:"type"`
	Version string `json:"version,omitempty"`
}

// AlgorithmFunc is the code-driven work of an algorithm step.
type AlgorithmFunc func(ctx context.Context, input map[string]any, params map[string]any) (map[string]any, error)

// AlgorithmStep runs code against schema-validated input and output.
type AlgorithmStep struct {
	baseStep
	impl         Implementation
	params       map[string]any
	fn           AlgorithmFunc
	inputSchema  *types.JSONSchema
	outputSchema *types.JSONSchema
}

// AlgorithmStepOption configures an AlgorithmStep at construction.
type AlgorithmStepOption func(*AlgorithmStep)

// WithInputSchema sets the schema the extracted input must satisfy.
func WithInputSchema(schema *types.JSONSchema) AlgorithmStepOption {
	return func(s *AlgorithmStep) {
		s.inputSchema = schema
		s.required = schema.Required
	}
}

// WithOutputSchema sets the schema the produced output must satisfy.
func WithOutputSchema(schema *types.JSONSchema) AlgorithmStepOption {
	return func(s *AlgorithmStep) { s.outputSchema = schema }
}

// WithParameters sets the free-form algorithm parameters.
func WithParameters(params map[string]any) AlgorithmStepOption {
	return func(s *AlgorithmStep) { s.params = params }
}

// NewAlgorithmStep creates an algorithm step around fn.
func NewAlgorithmStep(id, name string, impl Implementation, fn AlgorithmFunc, opts ...AlgorithmStepOption) *AlgorithmStep {
	s := &AlgorithmStep{
		baseStep: baseStep{
			id:       id,
			name:     name,
			stepType: StepTypeAlgorithm,
		},
		impl: impl,
		fn:   fn,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Implementation returns the algorithm descriptor.
func (s *AlgorithmStep) Implementation() Implementation { return s.impl }

// Execute extracts typed input from the execution environment, validates it,
// runs the algorithm, and validates the output. Failures are surfaced with
// metadata.requiresManualIntervention so callers can route to an override.
func (s *AlgorithmStep) Execute(ctx context.Context, in *ExecutionInput) (*StepResult, error) {
	if s.fn == nil {
		return nil, types.NewError(types.ErrInternalError,
			fmt.Sprintf("algorithm step %q has no implementation", s.id))
	}

	input := s.extractInput(in)

	if result := s.Validate(input); !result.Valid {
		return &StepResult{
			Success:  false,
			Errors:   result.Errors,
			Metadata: map[string]any{"requiresManualIntervention": true},
		}, nil
	}

	output, err := s.fn(ctx, input, s.params)
	if err != nil {
		// Domain-tagged errors propagate so fallback compositions can
		// catch them by code.
		return nil, err
	}

	if s.outputSchema != nil {
		if issues := types.Validate(anyMap(output), s.outputSchema); len(issues) > 0 {
			return &StepResult{
				Success:  false,
				Errors:   issuesToStepErrors(issues),
				Metadata: map[string]any{"requiresManualIntervention": true},
			}, nil
		}
	}

	return &StepResult{
		Success: true,
		Data:    output,
		Metadata: map[string]any{
			"implementation": s.impl.Type,
			"version":        s.impl.Version,
		},
	}, nil
}

// Validate checks the candidate input against the input schema when one is
// configured, falling back to a required-field presence check.
func (s *AlgorithmStep) Validate(input map[string]any) ValidationResult {
	if s.inputSchema != nil {
		issues := types.Validate(anyMap(input), s.inputSchema)
		return ValidationResult{Valid: len(issues) == 0, Errors: issuesToStepErrors(issues)}
	}
	var errs []StepError
	for _, name := range s.required {
		if v, ok := input[name]; !ok || v == nil {
			errs = append(errs, StepError{
				Field:   name,
				Code:    types.ErrorCode(types.IssueRequiredField),
				Message: fmt.Sprintf("field %q is required", name),
			})
		}
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func (s *AlgorithmStep) extractInput(in *ExecutionInput) map[string]any {
	input := make(map[string]any)
	if in == nil {
		return input
	}
	// Prior step outputs first, direct values take precedence.
	for _, data := range in.StepData {
		for k, v := range data {
			input[k] = v
		}
	}
	for k, v := range in.Values {
		input[k] = v
	}
	return input
}

func issuesToStepErrors(issues []types.Issue) []StepError {
	errs := make([]StepError, 0, len(issues))
	for _, issue := range issues {
		errs = append(errs, StepError{
			Field:   issue.Path,
			Code:    types.ErrorCode(issue.Code),
			Message: issue.Message,
		})
	}
	return errs
}

func anyMap(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
