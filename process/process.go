package process

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/busylang/busyflow/types"
)

// MetricsSink receives execution measurements. The zero value of a Process
// uses a no-op sink; internal/metrics provides a Prometheus-backed one.
type MetricsSink interface {
	RecordProcessExecution(status string, d time.Duration)
	RecordStepExecution(stepType, status string, d time.Duration)
	RecordStepSkip()
	RecordValidationWarning()
}

// Process orchestrates an ordered sequence of steps with flexible
// navigation. It owns its steps, holds the latest immutable State handle,
// and derives the audit trail from the state's event history.
type Process struct {
	id        string
	name      string
	userID    string
	stepOrder   []string
	steps       map[string]Step
	state       *State
	logger      *zap.Logger
	metrics     MetricsSink
	stepTimeout time.Duration
	initErr     error

	mu sync.Mutex
}

// Option configures a Process at construction.
type Option func(*Process)

// WithLogger sets the process logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Process) { p.logger = logger }
}

// WithUser attributes audited actions to a user.
func WithUser(userID string) Option {
	return func(p *Process) { p.userID = userID }
}

// WithMetrics installs a metrics sink.
func WithMetrics(sink MetricsSink) Option {
	return func(p *Process) { p.metrics = sink }
}

// WithSteps registers steps in order at construction. A duplicate step ID
// is recorded as a registration error, matching AddStep semantics, and
// surfaces on the first lifecycle call.
func WithSteps(steps ...Step) Option {
	return func(p *Process) {
		for _, step := range steps {
			if _, exists := p.steps[step.ID()]; exists {
				if p.initErr == nil {
					p.initErr = types.NewError(types.ErrDuplicateStep,
						fmt.Sprintf("step %q is already registered", step.ID()))
				}
				continue
			}
			p.steps[step.ID()] = step
			p.stepOrder = append(p.stepOrder, step.ID())
		}
	}
}

// WithStepTimeout bounds each step execution in ExecuteSteps. Zero means
// no per-step deadline beyond the caller's context.
func WithStepTimeout(d time.Duration) Option {
	return func(p *Process) { p.stepTimeout = d }
}

// New creates a Process. An empty id is replaced with a generated one.
func New(id, name string, opts ...Option) *Process {
	if id == "" {
		id = uuid.NewString()
	}
	p := &Process{
		id:    id,
		name:  name,
		steps: make(map[string]Step),
		state: NewState(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	p.logger = p.logger.With(
		zap.String("component", "process"),
		zap.String("process_id", p.id),
	)
	return p
}

// ID returns the process identifier.
func (p *Process) ID() string { return p.id }

// Name returns the process name.
func (p *Process) Name() string { return p.name }

// State returns the latest immutable state handle.
func (p *Process) State() *State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// StepOrder returns a copy of the ordered step IDs.
func (p *Process) StepOrder() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.stepOrder))
	copy(out, p.stepOrder)
	return out
}

// Step returns the registered step with the given ID.
func (p *Process) Step(id string) (Step, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.steps[id]
	return s, ok
}

// AddStep registers a step. Adding a duplicate ID is an error.
func (p *Process) AddStep(step Step) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.steps[step.ID()]; exists {
		return types.NewError(types.ErrDuplicateStep,
			fmt.Sprintf("step %q is already registered", step.ID()))
	}
	p.steps[step.ID()] = step
	p.stepOrder = append(p.stepOrder, step.ID())
	return nil
}

// RemoveStep unregisters a step. Removing an unknown ID is an error.
func (p *Process) RemoveStep(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.steps[id]; !exists {
		return types.NewError(types.ErrStepNotFound,
			fmt.Sprintf("step %q is not registered", id))
	}
	delete(p.steps, id)
	for i, sid := range p.stepOrder {
		if sid == id {
			p.stepOrder = append(p.stepOrder[:i], p.stepOrder[i+1:]...)
			break
		}
	}
	return nil
}

// Start transitions the process to RUNNING. It errors unless the process
// has not been started yet.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initErr != nil {
		return p.initErr
	}
	if p.state.Status() != StatusNotStarted {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("cannot start process in status %s", p.state.Status()))
	}
	p.state = p.state.WithStatus(StatusRunning, "process started")
	if len(p.stepOrder) > 0 {
		p.state = p.state.WithCurrentStep(p.stepOrder[0])
	}
	p.logger.Info("process started", zap.Int("steps", len(p.stepOrder)))
	return nil
}

// Pause suspends a RUNNING process.
func (p *Process) Pause(reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Status() != StatusRunning {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("cannot pause process in status %s", p.state.Status()))
	}
	p.state = p.state.WithStatus(StatusPaused, reason)
	p.logger.Info("process paused", zap.String("reason", reason))
	return nil
}

// Resume continues a PAUSED process.
func (p *Process) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Status() != StatusPaused {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("cannot resume process in status %s", p.state.Status()))
	}
	p.state = p.state.WithStatus(StatusRunning, "process resumed")
	p.logger.Info("process resumed")
	return nil
}

// Stop cancels the process. Stopping an already-terminal process is a
// no-op: no new event, no error.
func (p *Process) Stop(reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Status().IsTerminal() {
		return nil
	}
	p.state = p.state.WithStatus(StatusCancelled, reason)
	p.logger.Info("process stopped", zap.String("reason", reason))
	return nil
}

// GoToStep jumps to any registered step. It errors if the step is unknown
// or the process status does not permit navigation.
func (p *Process) GoToStep(id, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.steps[id]; !exists {
		return types.NewError(types.ErrStepNotFound,
			fmt.Sprintf("step %q is not registered", id))
	}
	if !p.state.CanGoToStep(id) {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("cannot navigate in status %s", p.state.Status()))
	}
	p.state = p.state.WithStepNavigation(id, reason)
	p.logger.Info("navigated to step", zap.String("step_id", id), zap.String("reason", reason))
	return nil
}

// GoBack rewinds n positions in the step order. It errors if n exceeds the
// current position.
func (p *Process) GoBack(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.stepIndex(p.state.CurrentStepID())
	if pos < 0 {
		return types.NewError(types.ErrStepNotFound, "process has no current step")
	}
	if n < 0 || n > pos {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("cannot go back %d steps from position %d", n, pos))
	}
	if !p.state.CanGoToStep(p.stepOrder[pos-n]) {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("cannot navigate in status %s", p.state.Status()))
	}
	target := p.stepOrder[pos-n]
	p.state = p.state.WithStepNavigation(target, fmt.Sprintf("went back %d steps", n))
	p.logger.Info("navigated back", zap.Int("steps", n), zap.String("step_id", target))
	return nil
}

// SkipStep records a skip for the step. Manual override data is validated
// against the step's contract; invalid data emits a warning but the skip
// still proceeds; validation is advisory, never blocking.
func (p *Process) SkipStep(id, reason string, manualData map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	step, exists := p.steps[id]
	if !exists {
		return types.NewError(types.ErrStepNotFound,
			fmt.Sprintf("step %q is not registered", id))
	}
	if !step.CanSkip(reason) {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("step %q refused skip: %s", id, reason))
	}

	validated := true
	if manualData != nil {
		validated = step.AcceptManualData(manualData) && step.Validate(manualData).Valid
		if !validated {
			p.logger.Warn("manual data does not satisfy step contract, skipping anyway",
				zap.String("step_id", id),
				zap.Strings("required", step.RequiredInputs()),
			)
			if p.metrics != nil {
				p.metrics.RecordValidationWarning()
			}
		}
	}

	p.state = p.state.WithStepSkip(id, reason, manualData, validated)
	if p.metrics != nil {
		p.metrics.RecordStepSkip()
	}
	p.logger.Info("step skipped", zap.String("step_id", id), zap.String("reason", reason))
	return nil
}

// ValidateManualData checks candidate override data against a step's
// contract without changing any state.
func (p *Process) ValidateManualData(id string, data map[string]any) (ValidationResult, error) {
	p.mu.Lock()
	step, exists := p.steps[id]
	p.mu.Unlock()
	if !exists {
		return ValidationResult{}, types.NewError(types.ErrStepNotFound,
			fmt.Sprintf("step %q is not registered", id))
	}
	result := step.Validate(data)
	if !step.AcceptManualData(data) {
		result.Valid = false
	}
	return result, nil
}

// AuditTrail derives the durable audit record from the event history.
func (p *Process) AuditTrail() []AuditEntry {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	history := state.History()
	trail := make([]AuditEntry, 0, len(history))
	for _, ev := range history {
		trail = append(trail, deriveAuditEntry(p.id, p.userID, ev))
	}
	return trail
}

// CompletionPercentage reports rounded completed/total, and 100 when there
// are no steps.
func (p *Process) CompletionPercentage() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := len(p.stepOrder)
	if total == 0 {
		return 100
	}
	completed := 0
	for _, id := range p.stepOrder {
		if p.state.IsStepCompleted(id) {
			completed++
		}
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

func (p *Process) stepIndex(id string) int {
	for i, sid := range p.stepOrder {
		if sid == id {
			return i
		}
	}
	return -1
}

// ResultTiming records when the sequential driver ran.
type ResultTiming struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}

// Result is the outcome of ExecuteSteps.
type Result struct {
	Success        bool                      `json:"success"`
	CompletedSteps int                       `json:"completed_steps"`
	FinalData      map[string]map[string]any `json:"final_data"`
	Timing         ResultTiming              `json:"timing"`
	AuditTrail     []AuditEntry              `json:"audit_trail"`
	Exceptions     []string                  `json:"exceptions,omitempty"`
}

// ExecuteSteps is the default sequential driver: it starts the process,
// executes each step strictly in order, skips steps already skipped, and
// halts on the first unhandled failure. FinalData includes only outputs
// recorded as validated.
func (p *Process) ExecuteSteps(ctx context.Context) (*Result, error) {
	started := time.Now()

	p.mu.Lock()
	if p.initErr != nil {
		p.mu.Unlock()
		return nil, p.initErr
	}
	if p.state.Status() == StatusNotStarted {
		p.state = p.state.WithStatus(StatusRunning, "process started")
		if len(p.stepOrder) > 0 {
			p.state = p.state.WithCurrentStep(p.stepOrder[0])
		}
	} else if p.state.Status() != StatusRunning {
		p.mu.Unlock()
		return nil, types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("cannot execute steps in status %s", p.state.Status()))
	}
	order := make([]string, len(p.stepOrder))
	copy(order, p.stepOrder)
	p.mu.Unlock()

	success := true
	var exceptions []string

	for _, id := range order {
		select {
		case <-ctx.Done():
			p.recordFailure(id, ctx.Err(), &exceptions)
			success = false
		default:
		}
		if !success {
			break
		}

		p.mu.Lock()
		if p.state.IsStepSkipped(id) {
			p.mu.Unlock()
			p.logger.Debug("step already skipped", zap.String("step_id", id))
			continue
		}
		step := p.steps[id]
		p.state = p.state.WithCurrentStep(id)
		in := &ExecutionInput{
			ProcessID: p.id,
			StepID:    id,
			UserID:    p.userID,
			StepData:  p.validatedStepData(),
		}
		p.mu.Unlock()

		stepCtx := ctx
		var cancelStep context.CancelFunc
		if p.stepTimeout > 0 {
			stepCtx, cancelStep = context.WithTimeout(ctx, p.stepTimeout)
		}
		stepStart := time.Now()
		result, err := step.Execute(stepCtx, in)
		stepDuration := time.Since(stepStart)
		if cancelStep != nil {
			cancelStep()
		}

		if err != nil {
			p.recordFailure(id, err, &exceptions)
			if p.metrics != nil {
				p.metrics.RecordStepExecution(string(step.Type()), "error", stepDuration)
			}
			success = false
			break
		}

		if !result.Success {
			p.mu.Lock()
			p.state = p.state.WithException(id, stepFailure(id, result))
			p.state = p.state.WithStatus(StatusFailed, fmt.Sprintf("step %q failed", id))
			p.mu.Unlock()
			if p.metrics != nil {
				p.metrics.RecordStepExecution(string(step.Type()), "failed", stepDuration)
			}
			p.logger.Warn("step failed, halting execution",
				zap.String("step_id", id),
				zap.Int("errors", len(result.Errors)),
			)
			success = false
			break
		}

		p.mu.Lock()
		p.state = p.state.WithStepData(id, result.Data)
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.RecordStepExecution(string(step.Type()), "completed", stepDuration)
		}
		p.logger.Debug("step completed",
			zap.String("step_id", id),
			zap.Duration("duration", stepDuration),
		)
	}

	p.mu.Lock()
	if success && p.state.Status() == StatusRunning {
		p.state = p.state.WithStatus(StatusCompleted, "all steps processed")
	}
	finalData := make(map[string]map[string]any)
	completed := 0
	for _, id := range order {
		if d, ok := p.state.StepData(id); ok && d.Validated {
			finalData[id] = d.Data
			completed++
		}
	}
	p.mu.Unlock()

	finished := time.Now()
	if p.metrics != nil {
		status := "completed"
		if !success {
			status = "failed"
		}
		p.metrics.RecordProcessExecution(status, finished.Sub(started))
	}

	return &Result{
		Success:        success,
		CompletedSteps: completed,
		FinalData:      finalData,
		Timing: ResultTiming{
			StartedAt:  started,
			FinishedAt: finished,
			Duration:   finished.Sub(started),
		},
		AuditTrail: p.AuditTrail(),
		Exceptions: exceptions,
	}, nil
}

// validatedStepData snapshots prior validated outputs for a step's input.
// Caller must hold p.mu.
func (p *Process) validatedStepData() map[string]map[string]any {
	out := make(map[string]map[string]any)
	for id, d := range p.state.StepDataMap() {
		if d.Validated {
			out[id] = d.Data
		}
	}
	return out
}

func (p *Process) recordFailure(stepID string, err error, exceptions *[]string) {
	p.mu.Lock()
	p.state = p.state.WithException(stepID, err)
	p.state = p.state.WithStatus(StatusFailed, fmt.Sprintf("step %q raised: %v", stepID, err))
	p.mu.Unlock()
	*exceptions = append(*exceptions, err.Error())
	p.logger.Error("step raised exception, halting execution",
		zap.String("step_id", stepID),
		zap.Error(err),
	)
}

func stepFailure(id string, result *StepResult) error {
	msg := fmt.Sprintf("step %q reported failure", id)
	if len(result.Errors) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, result.Errors[0].Message)
	}
	return types.NewError(types.ErrInternalError, msg)
}
