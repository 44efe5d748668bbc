package busyflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busylang/busyflow/config"
	"github.com/busylang/busyflow/persistence"
	"github.com/busylang/busyflow/process"
	"github.com/busylang/busyflow/runtime"
	"github.com/busylang/busyflow/types"
)

func TestSetup_DefaultConfig(t *testing.T) {
	env, err := Setup(nil)
	require.NoError(t, err)
	defer env.Close(context.Background())

	require.NotNil(t, env.Config)
	require.NotNil(t, env.Logger)
	require.NotNil(t, env.Telemetry)
	inst, ok := env.AuditStore.(*persistence.InstrumentedStore)
	require.True(t, ok)
	assert.IsType(t, &persistence.MemoryAuditStore{}, inst.AuditStore)
	assert.NoError(t, env.AuditStore.Ping(context.Background()))
}

func TestSetup_RejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Telemetry.SampleRate = 2.0

	_, err := Setup(cfg)
	assert.Error(t, err)
}

func TestSetup_FileBackedAuditStore(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Audit.Type = persistence.StoreTypeFile
	cfg.Audit.File.Dir = t.TempDir()
	cfg.Log.OutputPaths = []string{"stderr"}

	env, err := Setup(cfg)
	require.NoError(t, err)
	defer env.Close(context.Background())

	inst, ok := env.AuditStore.(*persistence.InstrumentedStore)
	require.True(t, ok)
	assert.IsType(t, &persistence.FileAuditStore{}, inst.AuditStore)
	assert.Equal(t, "file", inst.Backend())
}

func TestNewProcess_RunsEndToEnd(t *testing.T) {
	step := process.NewAlgorithmStep("greet", "Greet", process.Implementation{Type: "greeter"},
		func(ctx context.Context, input, params map[string]any) (map[string]any, error) {
			return map[string]any{"greeting": "hello"}, nil
		},
	)
	p := NewProcess("onboarding", WithUser("u-1"), WithSteps(step))

	result, err := p.ExecuteSteps(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hello", result.FinalData["greet"]["greeting"])
}

func TestEnv_NewProcessRecordsMetrics(t *testing.T) {
	env, err := Setup(nil)
	require.NoError(t, err)
	defer env.Close(context.Background())

	step := process.NewAlgorithmStep("noop", "Noop", process.Implementation{Type: "noop"},
		func(ctx context.Context, input, params map[string]any) (map[string]any, error) {
			return map[string]any{"done": true}, nil
		},
	)
	p := env.NewProcess("wired", WithSteps(step))

	_, err = p.ExecuteSteps(context.Background())
	require.NoError(t, err)

	families, err := env.Registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["busyflow_process_executions_total"])
	assert.True(t, names["busyflow_step_executions_total"])
}

type flakyBackend struct{ calls int }

func (b *flakyBackend) Invoke(ctx context.Context, _, _ string, _ *process.AgentContext) (*process.AgentResponse, error) {
	b.calls++
	return nil, errors.New("backend down")
}

func TestEnv_AgentOptionsFollowConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Process.AgentRetryAttempts = 4
	cfg.Process.AgentRateLimitRPS = 200
	cfg.Process.AgentRateLimitBurst = 4

	env, err := Setup(cfg)
	require.NoError(t, err)
	defer env.Close(context.Background())

	opts := env.AgentOptions()
	require.Len(t, opts, 2)

	backend := &flakyBackend{}
	step := process.NewAgentStep("summarize", "Summarize", process.PromptTemplate{User: "go"},
		append(opts, process.WithBackend(backend))...)

	_, err = step.Execute(context.Background(), &process.ExecutionInput{})
	require.Error(t, err)
	assert.Equal(t, 4, backend.calls, "configured retry budget drives the attempts")
}

func TestEnv_AgentOptionsOmitDisabledRateLimit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Process.AgentRetryAttempts = 2
	cfg.Process.AgentRateLimitRPS = 0

	env, err := Setup(cfg)
	require.NoError(t, err)
	defer env.Close(context.Background())

	assert.Len(t, env.AgentOptions(), 1)
}

type blockingOp struct{}

func (blockingOp) Name() string { return "block" }

func (blockingOp) Execute(ctx context.Context, _ *types.ValidatedInput, _ *runtime.Resources) (any, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingOp) OutputSchema() *types.JSONSchema { return nil }

func TestEnv_NewContextAppliesOperationTimeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Runtime.OperationTimeout = 30 * time.Millisecond

	env, err := Setup(cfg)
	require.NoError(t, err)
	defer env.Close(context.Background())

	c := env.NewContext()
	defer c.Close()

	start := time.Now()
	_, err = c.SendInput(context.Background(), blockingOp{}, types.NewValidatedInput(map[string]any{}, nil))
	require.Error(t, err)
	assert.Equal(t, types.ErrTimeout, types.GetErrorCode(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestEnv_AuditWritesAreMetered(t *testing.T) {
	env, err := Setup(nil)
	require.NoError(t, err)
	defer env.Close(context.Background())

	entry := process.AuditEntry{
		ProcessID: "proc-metered",
		Timestamp: time.Now().UTC(),
		Action:    process.AuditAction{Type: "PROCESS_STARTED", Description: "process started"},
	}
	require.NoError(t, env.AuditStore.Save(context.Background(), entry))

	families, err := env.Registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "busyflow_audit_writes_total" {
			return
		}
	}
	t.Fatal("busyflow_audit_writes_total was not recorded")
}

func TestNewContext_IsUsableRoot(t *testing.T) {
	c := NewContext()
	defer c.Close()

	assert.Equal(t, 0, c.Depth())
	child := c.Spawn(nil)
	assert.Equal(t, 1, child.Depth())
}

func TestEnv_CloseIsSafeToCallOnPartialEnv(t *testing.T) {
	env := &Env{}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, env.Close(ctx))
}

func TestNewLogger_Variants(t *testing.T) {
	for _, cfg := range []config.LogConfig{
		{Level: "debug", Format: "console"},
		{Level: "error", Format: "json", EnableCaller: true, EnableStacktrace: true},
		{Level: "unknown"},
	} {
		logger := NewLogger(cfg)
		require.NotNil(t, logger)
		logger.Info("logger constructed")
	}
}
