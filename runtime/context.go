package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/busylang/busyflow/types"
)

// tracerName identifies spans emitted by monitored dispatch.
const tracerName = "github.com/busylang/busyflow/runtime"

// Registry is the arena holding all live contexts keyed by execution ID.
// Parent links are plain ID lookups into the arena, so a discarded parent
// never pins its subtree through direct object references.
type Registry struct {
	mu       sync.RWMutex
	contexts map[string]*Context
}

// NewRegistry creates an empty context arena.
func NewRegistry() *Registry {
	return &Registry{contexts: make(map[string]*Context)}
}

// Lookup resolves an execution ID to its live context.
func (r *Registry) Lookup(executionID string) (*Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contexts[executionID]
	return c, ok
}

func (r *Registry) register(c *Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contexts[c.executionID] = c
}

func (r *Registry) unregister(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.contexts, executionID)
}

// Operation is a unit of work dispatched through a Context.
type Operation interface {
	// Name identifies the operation in traces and authorization checks.
	Name() string
	// Execute performs the work with validated input and injected resources.
	Execute(ctx context.Context, input *types.ValidatedInput, resources *Resources) (any, error)
	// OutputSchema is the contract the produced value must satisfy.
	OutputSchema() *types.JSONSchema
}

// MetricsSink receives dispatch measurements. A nil sink disables
// recording.
type MetricsSink interface {
	RecordOperationDispatch(operation, status string, d time.Duration)
}

// Context is the per-invocation execution environment: capability lookup,
// resource injection, authorization, monitored dispatch, and
// parent/child/sibling messaging.
type Context struct {
	executionID    string
	executionDepth int
	parentID       string
	registry       *Registry
	maxDepth       int

	capabilities map[string]any
	injector     ResourceInjector
	authorizer   Authorizer
	messenger    Messenger
	metrics      MetricsSink
	logger       *zap.Logger

	mu       sync.RWMutex
	children map[string]*Context
	trace    []TraceEntry
	inbox    []*Message
	handler  func(*Message)
	closed   bool
}

// ContextOption configures a Context at construction.
type ContextOption func(*Context)

// WithCapability registers a named external service.
func WithCapability(name string, service any) ContextOption {
	return func(c *Context) { c.capabilities[name] = service }
}

// WithInjector sets the resource injector collaborator.
func WithInjector(injector ResourceInjector) ContextOption {
	return func(c *Context) { c.injector = injector }
}

// WithAuthorizer sets the authorization service.
func WithAuthorizer(auth Authorizer) ContextOption {
	return func(c *Context) { c.authorizer = auth }
}

// WithMessenger sets the outward delivery service consulted when a message
// target is not in the arena.
func WithMessenger(m Messenger) ContextOption {
	return func(c *Context) { c.messenger = m }
}

// WithMetrics installs a dispatch metrics sink.
func WithMetrics(sink MetricsSink) ContextOption {
	return func(c *Context) { c.metrics = sink }
}

// WithMaxDepth sets an advisory spawn depth limit. Spawning past the limit
// is logged but never refused; depth is a signal, not a gate.
func WithMaxDepth(n int) ContextOption {
	return func(c *Context) { c.maxDepth = n }
}

// WithContextLogger sets the context logger.
func WithContextLogger(logger *zap.Logger) ContextOption {
	return func(c *Context) { c.logger = logger }
}

// OnMessage installs the handler invoked for each delivered message.
func OnMessage(handler func(*Message)) ContextOption {
	return func(c *Context) { c.handler = handler }
}

// NewContext creates a root context (depth 0) registered in the arena.
func NewContext(registry *Registry, opts ...ContextOption) *Context {
	c := &Context{
		executionID:  uuid.NewString(),
		registry:     registry,
		capabilities: make(map[string]any),
		children:     make(map[string]*Context),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.With(
		zap.String("component", "exec_context"),
		zap.String("execution_id", c.executionID),
		zap.Int("depth", c.executionDepth),
	)
	if registry != nil {
		registry.register(c)
	}
	return c
}

// ExecutionID returns the unique identifier of this context.
func (c *Context) ExecutionID() string { return c.executionID }

// Depth returns the spawn depth: 0 at root, +1 per spawn.
func (c *Context) Depth() int { return c.executionDepth }

// Parent resolves the weak parent reference through the arena. It returns
// false at the root or after the parent has been discarded.
func (c *Context) Parent() (*Context, bool) {
	if c.parentID == "" || c.registry == nil {
		return nil, false
	}
	return c.registry.Lookup(c.parentID)
}

// Children returns the owned child contexts.
func (c *Context) Children() []*Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Context, 0, len(c.children))
	for _, child := range c.children {
		out = append(out, child)
	}
	return out
}

// Capability resolves a named external service. Absence is a fatal
// misconfiguration, not a recoverable condition.
func (c *Context) Capability(name string) (any, error) {
	if service, ok := c.capabilities[name]; ok {
		return service, nil
	}
	return nil, types.NewError(types.ErrCapabilityNotFound,
		fmt.Sprintf("capability %q is not registered", name))
}

// CapabilityAs resolves a named capability and asserts its type.
func CapabilityAs[T any](c *Context, name string) (T, error) {
	var zero T
	service, err := c.Capability(name)
	if err != nil {
		return zero, err
	}
	typed, ok := service.(T)
	if !ok {
		return zero, types.NewError(types.ErrCapabilityNotFound,
			fmt.Sprintf("capability %q has type %T, not %T", name, service, zero))
	}
	return typed, nil
}

// Spawn creates a child context one depth deeper that inherits the union of
// the current capabilities plus any overrides. The child is owned by this
// context and registered in the arena.
func (c *Context) Spawn(overrides map[string]any, opts ...ContextOption) *Context {
	child := &Context{
		executionID:    uuid.NewString(),
		executionDepth: c.executionDepth + 1,
		parentID:       c.executionID,
		registry:       c.registry,
		maxDepth:       c.maxDepth,
		capabilities:   make(map[string]any, len(c.capabilities)+len(overrides)),
		children:       make(map[string]*Context),
		injector:       c.injector,
		authorizer:     c.authorizer,
		messenger:      c.messenger,
		metrics:        c.metrics,
	}
	for name, service := range c.capabilities {
		child.capabilities[name] = service
	}
	for name, service := range overrides {
		child.capabilities[name] = service
	}
	for _, opt := range opts {
		opt(child)
	}
	if child.logger == nil {
		child.logger = c.logger
	}
	child.logger = child.logger.With(
		zap.String("execution_id", child.executionID),
		zap.Int("depth", child.executionDepth),
	)
	if c.maxDepth > 0 && child.executionDepth > c.maxDepth {
		child.logger.Warn("spawn depth exceeds configured limit",
			zap.Int("max_depth", c.maxDepth),
		)
	}

	c.mu.Lock()
	c.children[child.executionID] = child
	c.mu.Unlock()
	if c.registry != nil {
		c.registry.register(child)
	}
	return child
}

// Close releases this context and its owned subtree from the arena.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	children := make([]*Context, 0, len(c.children))
	for _, child := range c.children {
		children = append(children, child)
	}
	c.children = make(map[string]*Context)
	c.mu.Unlock()

	for _, child := range children {
		child.Close()
	}
	if c.registry != nil {
		c.registry.unregister(c.executionID)
	}
}

// Trace returns a copy of the execution trace.
func (c *Context) Trace() []TraceEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]TraceEntry, len(c.trace))
	copy(out, c.trace)
	return out
}

// SendInput dispatches an operation through the full execution pipeline:
// input validation, authorization, resource injection, monitored execution,
// output validation. A trace entry is appended regardless of outcome, and
// errors are logged before being returned, never silently swallowed.
func (c *Context) SendInput(ctx context.Context, op Operation, input *types.ValidatedInput) (*types.ValidatedOutput, error) {
	entry := TraceEntry{
		Operation: op.Name(),
		StartTime: time.Now(),
		InputSize: payloadSize(input.Data),
	}

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "runtime.SendInput")
	span.SetAttributes(
		attribute.String("operation", op.Name()),
		attribute.String("execution_id", c.executionID),
		attribute.Int("depth", c.executionDepth),
	)
	defer span.End()

	output, err := c.dispatch(ctx, op, input)

	entry.EndTime = time.Now()
	if c.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordOperationDispatch(op.Name(), status, entry.EndTime.Sub(entry.StartTime))
	}
	if err != nil {
		entry.Status = TraceStatusError
		entry.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("operation dispatch failed",
			zap.String("operation", op.Name()),
			zap.Error(err),
		)
	} else {
		entry.Status = TraceStatusSuccess
		entry.OutputSize = payloadSize(output.Data)
	}

	c.mu.Lock()
	c.trace = append(c.trace, entry)
	c.mu.Unlock()

	return output, err
}

func (c *Context) dispatch(ctx context.Context, op Operation, input *types.ValidatedInput) (*types.ValidatedOutput, error) {
	ctx = types.WithExecutionID(ctx, c.executionID)

	if issues := input.Validate(); len(issues) > 0 {
		return nil, types.NewValidationError(
			fmt.Sprintf("input for operation %q failed validation", op.Name()), issues)
	}

	if err := c.checkAuthorization(ctx, op.Name()); err != nil {
		return nil, err
	}

	resources := &Resources{Config: ResourceConfig{Timeout: DefaultTimeout}}
	if c.injector != nil {
		injected, err := c.injector.Inject(ctx, op.Name())
		if err != nil {
			return nil, fmt.Errorf("resource injection for %q failed: %w", op.Name(), err)
		}
		if injected != nil {
			resources = injected
		}
	}

	raw, err := executeWithMonitoring(ctx, resources.Config.Timeout, func(runCtx context.Context) (any, error) {
		return op.Execute(runCtx, input, resources)
	})
	if err != nil {
		return nil, err
	}

	output := types.NewValidatedOutput(raw, op.OutputSchema())
	if issues := output.Validate(); len(issues) > 0 {
		return nil, types.NewValidationError(
			fmt.Sprintf("output of operation %q failed validation", op.Name()), issues)
	}

	return output, nil
}

// checkAuthorization consults the authorizer when one is configured.
func (c *Context) checkAuthorization(ctx context.Context, operation string) error {
	if c.authorizer == nil {
		return nil
	}
	userID, _ := types.UserID(ctx)
	allowed, err := c.authorizer.CheckPermission(ctx, userID, operation)
	if err != nil {
		return types.NewError(types.ErrAuthorizationDenied,
			fmt.Sprintf("authorization check for %q failed", operation)).WithCause(err)
	}
	if !allowed {
		return types.NewError(types.ErrAuthorizationDenied,
			fmt.Sprintf("user %q is not permitted to execute %q", userID, operation))
	}
	return nil
}
