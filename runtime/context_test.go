package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/busylang/busyflow/types"
)

type fakeMailer struct{ sent int }

func (m *fakeMailer) Deliver(to string) { m.sent++ }

type fakeAuthorizer struct {
	allowed map[string]bool
	err     error

	gotUser string
	gotOp   string
}

func (a *fakeAuthorizer) CheckPermission(ctx context.Context, userID, operation string) (bool, error) {
	a.gotUser = userID
	a.gotOp = operation
	if a.err != nil {
		return false, a.err
	}
	return a.allowed[operation], nil
}

type echoOperation struct {
	name   string
	fn     func(ctx context.Context, input *types.ValidatedInput, resources *Resources) (any, error)
	schema *types.JSONSchema
}

func (o *echoOperation) Name() string { return o.name }

func (o *echoOperation) Execute(ctx context.Context, input *types.ValidatedInput, resources *Resources) (any, error) {
	if o.fn != nil {
		return o.fn(ctx, input, resources)
	}
	return input.Data, nil
}

func (o *echoOperation) OutputSchema() *types.JSONSchema { return o.schema }

func TestContext_CapabilityLookup(t *testing.T) {
	mailer := &fakeMailer{}
	c := NewContext(NewRegistry(), WithCapability("mailer", mailer))
	defer c.Close()

	got, err := c.Capability("mailer")
	require.NoError(t, err)
	assert.Same(t, mailer, got)

	_, err = c.Capability("queue")
	require.Error(t, err)
	assert.Equal(t, types.ErrCapabilityNotFound, types.GetErrorCode(err))
}

func TestContext_CapabilityAs(t *testing.T) {
	c := NewContext(NewRegistry(), WithCapability("mailer", &fakeMailer{}))
	defer c.Close()

	mailer, err := CapabilityAs[*fakeMailer](c, "mailer")
	require.NoError(t, err)
	mailer.Deliver("ops@example.com")
	assert.Equal(t, 1, mailer.sent)

	_, err = CapabilityAs[*fakeAuthorizer](c, "mailer")
	require.Error(t, err)
	assert.Equal(t, types.ErrCapabilityNotFound, types.GetErrorCode(err))
}

func TestContext_SpawnInheritsAndOverrides(t *testing.T) {
	registry := NewRegistry()
	base := &fakeMailer{}
	override := &fakeMailer{}
	parent := NewContext(registry,
		WithCapability("mailer", base),
		WithCapability("auth", &fakeAuthorizer{}),
	)
	defer parent.Close()

	child := parent.Spawn(map[string]any{"mailer": override})

	assert.Equal(t, 0, parent.Depth())
	assert.Equal(t, 1, child.Depth())

	got, err := child.Capability("mailer")
	require.NoError(t, err)
	assert.Same(t, override, got)

	_, err = child.Capability("auth")
	assert.NoError(t, err, "unoverridden capabilities are inherited")

	// The parent's own set is untouched.
	got, err = parent.Capability("mailer")
	require.NoError(t, err)
	assert.Same(t, base, got)

	back, ok := child.Parent()
	require.True(t, ok)
	assert.Equal(t, parent.ExecutionID(), back.ExecutionID())

	grandchild := child.Spawn(nil)
	assert.Equal(t, 2, grandchild.Depth())
}

func TestContext_ParentReferenceIsWeak(t *testing.T) {
	registry := NewRegistry()
	parent := NewContext(registry)
	child := parent.Spawn(nil)

	_, ok := child.Parent()
	require.True(t, ok)

	// Closing the parent drops the whole subtree from the arena, so the
	// lookup fails rather than resurrecting a discarded context.
	parent.Close()
	_, ok = child.Parent()
	assert.False(t, ok)
}

func TestContext_CloseUnregistersSubtree(t *testing.T) {
	registry := NewRegistry()
	root := NewContext(registry)
	child := root.Spawn(nil)
	grandchild := child.Spawn(nil)
	other := NewContext(registry)
	defer other.Close()

	root.Close()

	for _, id := range []string{root.ExecutionID(), child.ExecutionID(), grandchild.ExecutionID()} {
		_, ok := registry.Lookup(id)
		assert.False(t, ok)
	}
	_, ok := registry.Lookup(other.ExecutionID())
	assert.True(t, ok, "unrelated contexts survive")
}

func TestContext_SendInputHappyPath(t *testing.T) {
	c := NewContext(NewRegistry())
	defer c.Close()

	op := &echoOperation{
		name: "echo",
		schema: &types.JSONSchema{
			Type: types.SchemaTypeObject,
			Properties: map[string]*types.JSONSchema{
				"value": {Type: types.SchemaTypeString},
			},
			Required: []string{"value"},
		},
	}
	input := types.NewValidatedInput(map[string]any{"value": "hello"}, nil)

	output, err := c.SendInput(context.Background(), op, input)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"value": "hello"}, output.Data)

	trace := c.Trace()
	require.Len(t, trace, 1)
	assert.Equal(t, "echo", trace[0].Operation)
	assert.Equal(t, TraceStatusSuccess, trace[0].Status)
	assert.Positive(t, trace[0].InputSize)
	assert.Positive(t, trace[0].OutputSize)
	assert.False(t, trace[0].EndTime.Before(trace[0].StartTime))
}

func TestContext_SendInputRejectsInvalidInput(t *testing.T) {
	c := NewContext(NewRegistry())
	defer c.Close()

	ran := false
	op := &echoOperation{name: "guarded", fn: func(ctx context.Context, _ *types.ValidatedInput, _ *Resources) (any, error) {
		ran = true
		return nil, nil
	}}
	schema := &types.JSONSchema{
		Type:     types.SchemaTypeObject,
		Required: []string{"value"},
		Properties: map[string]*types.JSONSchema{
			"value": {Type: types.SchemaTypeString},
		},
	}
	input := types.NewValidatedInput(map[string]any{}, schema)

	_, err := c.SendInput(context.Background(), op, input)
	require.Error(t, err)
	assert.False(t, ran, "operation must not run on invalid input")
	assert.Equal(t, types.ErrValidationFailed, types.GetErrorCode(err))

	trace := c.Trace()
	require.Len(t, trace, 1)
	assert.Equal(t, TraceStatusError, trace[0].Status)
	assert.NotEmpty(t, trace[0].Error)
}

func TestContext_SendInputRejectsInvalidOutput(t *testing.T) {
	c := NewContext(NewRegistry())
	defer c.Close()

	op := &echoOperation{
		name: "mistyped",
		fn: func(ctx context.Context, _ *types.ValidatedInput, _ *Resources) (any, error) {
			return map[string]any{"value": 42}, nil
		},
		schema: &types.JSONSchema{
			Type: types.SchemaTypeObject,
			Properties: map[string]*types.JSONSchema{
				"value": {Type: types.SchemaTypeString},
			},
			Required: []string{"value"},
		},
	}

	_, err := c.SendInput(context.Background(), op, types.NewValidatedInput(map[string]any{}, nil))
	require.Error(t, err)
	assert.Equal(t, types.ErrValidationFailed, types.GetErrorCode(err))
}

func TestContext_SendInputAuthorization(t *testing.T) {
	auth := &fakeAuthorizer{allowed: map[string]bool{"permitted": true}}
	c := NewContext(NewRegistry(), WithAuthorizer(auth))
	defer c.Close()

	ctx := types.WithUserID(context.Background(), "user-7")

	_, err := c.SendInput(ctx, &echoOperation{name: "permitted"}, types.NewValidatedInput(map[string]any{}, nil))
	require.NoError(t, err)
	assert.Equal(t, "user-7", auth.gotUser)

	_, err = c.SendInput(ctx, &echoOperation{name: "forbidden"}, types.NewValidatedInput(map[string]any{}, nil))
	require.Error(t, err)
	assert.Equal(t, types.ErrAuthorizationDenied, types.GetErrorCode(err))
}

func TestContext_SendInputAuthorizerError(t *testing.T) {
	auth := &fakeAuthorizer{err: errors.New("directory unreachable")}
	c := NewContext(NewRegistry(), WithAuthorizer(auth))
	defer c.Close()

	_, err := c.SendInput(context.Background(), &echoOperation{name: "any"}, types.NewValidatedInput(map[string]any{}, nil))
	require.Error(t, err)
	assert.Equal(t, types.ErrAuthorizationDenied, types.GetErrorCode(err))
	assert.ErrorIs(t, err, auth.err)
}

func TestContext_SendInputInjectsResources(t *testing.T) {
	mailer := &fakeMailer{}
	injector := InjectorFunc(func(ctx context.Context, operation string) (*Resources, error) {
		return &Resources{
			Config:   ResourceConfig{Timeout: time.Second},
			Services: map[string]any{"mailer": mailer},
		}, nil
	})
	c := NewContext(NewRegistry(), WithInjector(injector))
	defer c.Close()

	op := &echoOperation{name: "notify", fn: func(ctx context.Context, _ *types.ValidatedInput, resources *Resources) (any, error) {
		service, ok := resources.Service("mailer")
		require.True(t, ok)
		service.(*fakeMailer).Deliver("ops@example.com")
		return map[string]any{}, nil
	}}

	_, err := c.SendInput(context.Background(), op, types.NewValidatedInput(map[string]any{}, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, mailer.sent)
}

func TestContext_SendInputInjectorFailure(t *testing.T) {
	injector := InjectorFunc(func(ctx context.Context, operation string) (*Resources, error) {
		return nil, errors.New("pool exhausted")
	})
	c := NewContext(NewRegistry(), WithInjector(injector))
	defer c.Close()

	_, err := c.SendInput(context.Background(), &echoOperation{name: "any"}, types.NewValidatedInput(map[string]any{}, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool exhausted")
}

func TestContext_SendInputTimeout(t *testing.T) {
	injector := InjectorFunc(func(ctx context.Context, operation string) (*Resources, error) {
		return &Resources{Config: ResourceConfig{Timeout: 20 * time.Millisecond}}, nil
	})
	c := NewContext(NewRegistry(), WithInjector(injector))
	defer c.Close()

	observedCancel := make(chan struct{})
	op := &echoOperation{name: "slow", fn: func(ctx context.Context, _ *types.ValidatedInput, _ *Resources) (any, error) {
		select {
		case <-ctx.Done():
			close(observedCancel)
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return map[string]any{}, nil
		}
	}}

	_, err := c.SendInput(context.Background(), op, types.NewValidatedInput(map[string]any{}, nil))
	require.Error(t, err)
	assert.Equal(t, types.ErrTimeout, types.GetErrorCode(err))

	// The losing work observes real cancellation instead of running on.
	select {
	case <-observedCancel:
	case <-time.After(time.Second):
		t.Fatal("operation never observed cancellation")
	}

	trace := c.Trace()
	require.Len(t, trace, 1)
	assert.Equal(t, TraceStatusError, trace[0].Status)
	assert.Contains(t, trace[0].Error, "deadline")
}

func TestContext_ExecutionIDReachesOperation(t *testing.T) {
	c := NewContext(NewRegistry())
	defer c.Close()

	var seen string
	op := &echoOperation{name: "introspect", fn: func(ctx context.Context, _ *types.ValidatedInput, _ *Resources) (any, error) {
		seen, _ = types.ExecutionID(ctx)
		return map[string]any{}, nil
	}}

	_, err := c.SendInput(context.Background(), op, types.NewValidatedInput(map[string]any{}, nil))
	require.NoError(t, err)
	assert.Equal(t, c.ExecutionID(), seen)
}

func TestExecuteWithMonitoring_DefaultTimeout(t *testing.T) {
	result, err := executeWithMonitoring(context.Background(), 0, func(ctx context.Context) (any, error) {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(DefaultTimeout), deadline, time.Second)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestExecuteWithMonitoring_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := executeWithMonitoring(ctx, time.Second, func(runCtx context.Context) (any, error) {
		<-runCtx.Done()
		return nil, runCtx.Err()
	})
	require.Error(t, err)
	assert.NotEqual(t, types.ErrTimeout, types.GetErrorCode(err), "cancellation is not a timeout")
}

type fakeDispatchMetrics struct {
	operations []string
	statuses   []string
	durations  []time.Duration
}

func (m *fakeDispatchMetrics) RecordOperationDispatch(operation, status string, d time.Duration) {
	m.operations = append(m.operations, operation)
	m.statuses = append(m.statuses, status)
	m.durations = append(m.durations, d)
}

func TestSendInput_RecordsDispatchMetrics(t *testing.T) {
	sink := &fakeDispatchMetrics{}
	c := NewContext(NewRegistry(), WithMetrics(sink))
	defer c.Close()

	_, err := c.SendInput(context.Background(), &echoOperation{name: "echo"},
		types.NewValidatedInput(map[string]any{"value": 1}, nil))
	require.NoError(t, err)

	failing := &echoOperation{name: "boom", fn: func(ctx context.Context, _ *types.ValidatedInput, _ *Resources) (any, error) {
		return nil, errors.New("backend down")
	}}
	_, err = c.SendInput(context.Background(), failing, types.NewValidatedInput(map[string]any{}, nil))
	require.Error(t, err)

	require.Equal(t, []string{"echo", "boom"}, sink.operations)
	assert.Equal(t, []string{"success", "error"}, sink.statuses)
	for _, d := range sink.durations {
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}
}

func TestSpawn_InheritsMetricsSink(t *testing.T) {
	sink := &fakeDispatchMetrics{}
	parent := NewContext(NewRegistry(), WithMetrics(sink))
	defer parent.Close()

	child := parent.Spawn(nil)
	_, err := child.SendInput(context.Background(), &echoOperation{name: "child-op"},
		types.NewValidatedInput(map[string]any{}, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"child-op"}, sink.operations)
}

func TestSpawn_DepthLimitIsAdvisory(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	root := NewContext(NewRegistry(), WithMaxDepth(1), WithContextLogger(zap.New(core)))
	defer root.Close()

	child := root.Spawn(nil)
	assert.Zero(t, logs.FilterMessage("spawn depth exceeds configured limit").Len())

	grandchild := child.Spawn(nil)
	require.NotNil(t, grandchild)
	assert.Equal(t, 2, grandchild.Depth())
	_, registered := root.registry.Lookup(grandchild.ExecutionID())
	assert.True(t, registered, "spawn past the limit still succeeds")
	assert.Equal(t, 1, logs.FilterMessage("spawn depth exceeds configured limit").Len())
}
