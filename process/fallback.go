package process

import (
	"context"

	"go.uber.org/zap"

	"github.com/busylang/busyflow/types"
)

// FallbackStep pairs an automated step with a human step behind one step ID.
// The automated path runs first; when it fails with one of the recognized
// domain error codes, the human path is dispatched instead. Any other error
// propagates unchanged. This is the runtime's concrete escape hatch:
// automation degrades to a human-in-the-loop path rather than hard-failing.
type FallbackStep struct {
	baseStep
	primary    Step
	fallback   *HumanStep
	recognized map[types.ErrorCode]struct{}
	logger     *zap.Logger
}

// NewFallbackStep composes primary and human fallback behind one ID.
// codes lists the domain failure codes that trigger the human path.
func NewFallbackStep(id, name string, primary Step, fallback *HumanStep, logger *zap.Logger, codes ...types.ErrorCode) *FallbackStep {
	if logger == nil {
		logger = zap.NewNop()
	}
	recognized := make(map[types.ErrorCode]struct{}, len(codes))
	for _, code := range codes {
		recognized[code] = struct{}{}
	}
	return &FallbackStep{
		baseStep: baseStep{
			id:       id,
			name:     name,
			stepType: StepTypeComposite,
			required: primary.RequiredInputs(),
		},
		primary:    primary,
		fallback:   fallback,
		recognized: recognized,
		logger:     logger.With(zap.String("component", "fallback_step"), zap.String("step_id", id)),
	}
}

// Execute attempts the primary step and re-dispatches to the human step
// when the failure carries a recognized domain code.
func (s *FallbackStep) Execute(ctx context.Context, in *ExecutionInput) (*StepResult, error) {
	result, err := s.primary.Execute(ctx, in)
	if err == nil {
		return result, nil
	}

	code := types.GetErrorCode(err)
	if _, ok := s.recognized[code]; !ok {
		return nil, err
	}

	s.logger.Warn("primary step failed with recognized code, dispatching human fallback",
		zap.String("code", string(code)),
		zap.Error(err),
	)

	human, herr := s.fallback.Execute(ctx, in)
	if herr != nil {
		return nil, herr
	}
	if human.Metadata == nil {
		human.Metadata = make(map[string]any)
	}
	human.Metadata["fallback"] = true
	human.Metadata["fallback_reason"] = string(code)
	return human, nil
}

// Validate delegates to the primary step's contract.
func (s *FallbackStep) Validate(input map[string]any) ValidationResult {
	return s.primary.Validate(input)
}

// AcceptManualData delegates to the primary step's contract.
func (s *FallbackStep) AcceptManualData(data map[string]any) bool {
	return s.primary.AcceptManualData(data)
}
