package process

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/busylang/busyflow/types"
)

// reviewConfidenceThreshold is the confidence below which an agent response
// is flagged for human review (a soft signal, not a failure).
const reviewConfidenceThreshold = 0.8

// lowConfidenceThreshold is the confidence at or below which an agent
// response is rejected outright.
const lowConfidenceThreshold = 0.1

// AgentConstraints bound the external agent invocation.
type AgentConstraints struct {
	Timeout         time.Duration `json:"timeout,omitempty"`
	RetryAttempts   int           `json:"retry_attempts,omitempty"`
	FallbackToHuman bool          `json:"fallback_to_human,omitempty"`
}

// PromptTemplate holds the prompt configuration of an agent step. The user
// prompt may contain {{key}} placeholders substituted from the template
// context and the execution input.
type PromptTemplate struct {
	System      string           `json:"system"`
	User        string           `json:"user"`
	Context     map[string]any   `json:"context,omitempty"`
	Constraints AgentConstraints `json:"constraints,omitempty"`
}

// AgentResponse is the contract the external agent backend must return.
type AgentResponse struct {
	Content             string         `json:"content"`
	Confidence          float64        `json:"confidence"`
	Reasoning           string         `json:"reasoning,omitempty"`
	StructuredData      map[string]any `json:"structured_data,omitempty"`
	RequiresHumanReview bool           `json:"requires_human_review"`
}

// AgentContext carries the execution environment handed to the backend.
type AgentContext struct {
	ProcessID string         `json:"process_id"`
	StepID    string         `json:"step_id"`
	Values    map[string]any `json:"values,omitempty"`
}

// AgentBackend is the external collaborator an agent step invokes with a
// fully substituted prompt.
type AgentBackend interface {
	Invoke(ctx context.Context, systemPrompt, userPrompt string, actx *AgentContext) (*AgentResponse, error)
}

// AgentStep delegates its work to an external AI agent backend.
type AgentStep struct {
	baseStep
	template     PromptTemplate
	backend      AgentBackend
	limiter      *rate.Limiter
	retryDefault int
}

// AgentStepOption configures an AgentStep at construction.
type AgentStepOption func(*AgentStep)

// WithBackend injects the external agent backend.
func WithBackend(b AgentBackend) AgentStepOption {
	return func(s *AgentStep) { s.backend = b }
}

// WithRateLimiter bounds the rate of backend invocations, retries included.
func WithRateLimiter(l *rate.Limiter) AgentStepOption {
	return func(s *AgentStep) { s.limiter = l }
}

// WithRetryAttempts sets the retry budget applied when the template
// constraints leave it unset.
func WithRetryAttempts(n int) AgentStepOption {
	return func(s *AgentStep) { s.retryDefault = n }
}

// WithAgentRequiredInputs declares the input fields the step needs.
func WithAgentRequiredInputs(names ...string) AgentStepOption {
	return func(s *AgentStep) { s.required = names }
}

// NewAgentStep creates an agent step from a prompt template.
func NewAgentStep(id, name string, template PromptTemplate, opts ...AgentStepOption) *AgentStep {
	s := &AgentStep{
		baseStep: baseStep{
			id:       id,
			name:     name,
			stepType: StepTypeAgent,
		},
		template: template,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Template returns the step's prompt template.
func (s *AgentStep) Template() PromptTemplate { return s.template }

// Execute substitutes context values into the prompt, invokes the backend,
// and converts the response into a step result. Near-zero confidence and
// empty output are hard failures; confidence below 0.8 is surfaced as
// requiresReview metadata.
func (s *AgentStep) Execute(ctx context.Context, in *ExecutionInput) (*StepResult, error) {
	if s.backend == nil {
		return nil, types.NewError(types.ErrInternalError,
			fmt.Sprintf("agent step %q has no backend", s.id))
	}

	values := s.substitutionValues(in)
	userPrompt := substitutePlaceholders(s.template.User, values)

	actx := &AgentContext{Values: values}
	if in != nil {
		actx.ProcessID = in.ProcessID
		actx.StepID = in.StepID
	}

	resp, err := s.invoke(ctx, userPrompt, actx)
	if err != nil {
		return nil, fmt.Errorf("agent step %q: backend invocation failed: %w", s.id, err)
	}

	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return &StepResult{
			Success: false,
			Errors: []StepError{{
				Code:    types.ErrNoOutput,
				Message: "agent backend returned empty output",
			}},
		}, nil
	}

	if resp.Confidence <= lowConfidenceThreshold {
		return &StepResult{
			Success: false,
			Errors: []StepError{{
				Code:    types.ErrLowConfidence,
				Message: fmt.Sprintf("agent confidence %.2f is too low", resp.Confidence),
			}},
		}, nil
	}

	data := map[string]any{
		"content":   resp.Content,
		"reasoning": resp.Reasoning,
	}
	for k, v := range resp.StructuredData {
		data[k] = v
	}

	metadata := map[string]any{
		"confidence": resp.Confidence,
	}
	if resp.Confidence < reviewConfidenceThreshold || resp.RequiresHumanReview {
		metadata["requiresReview"] = true
	}

	return &StepResult{Success: true, Data: data, Metadata: metadata}, nil
}

// invoke calls the backend, honoring the constraint timeout, the retry
// budget, and the optional rate limiter.
func (s *AgentStep) invoke(ctx context.Context, userPrompt string, actx *AgentContext) (*AgentResponse, error) {
	attempts := s.template.Constraints.RetryAttempts
	if attempts < 1 {
		attempts = s.retryDefault
	}
	if attempts < 1 {
		attempts = 1
	}

	callCtx := ctx
	if s.template.Constraints.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.template.Constraints.Timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(callCtx); err != nil {
				return nil, err
			}
		}
		resp, err := s.backend.Invoke(callCtx, s.template.System, userPrompt, actx)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if callCtx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// Validate checks that every required input field is present.
func (s *AgentStep) Validate(input map[string]any) ValidationResult {
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

func (s *AgentStep) substitutionValues(in *ExecutionInput) map[string]any {
	values := make(map[string]any, len(s.template.Context))
	for k, v := range s.template.Context {
		values[k] = v
	}
	if in != nil {
		for _, data := range in.StepData {
			for k, v := range data {
				if _, exists := values[k]; !exists {
					values[k] = v
				}
			}
		}
		for k, v := range in.Values {
			values[k] = v
		}
	}
	return values
}

// substitutePlaceholders replaces {{key}} markers with context values.
// Unknown keys are left in place so prompt defects stay visible.
func substitutePlaceholders(template string, values map[string]any) string {
	result := template
	for k, v := range values {
		result = strings.ReplaceAll(result, "{{"+k+"}}", fmt.Sprintf("%v", v))
	}
	return result
}
