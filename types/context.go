package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyProcessID   contextKey = "process_id"
	keyStepID      contextKey = "step_id"
	keyUserID      contextKey = "user_id"
	keyExecutionID contextKey = "execution_id"
)

// WithProcessID adds process ID to context.
func WithProcessID(ctx context.Context, processID string) context.Context {
	return context.WithValue(ctx, keyProcessID, processID)
}

// ProcessID extracts process ID from context.
func ProcessID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyProcessID).(string)
	return v, ok && v != ""
}

// WithStepID adds step ID to context.
func WithStepID(ctx context.Context, stepID string) context.Context {
	return context.WithValue(ctx, keyStepID, stepID)
}

// StepID extracts step ID from context.
func StepID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyStepID).(string)
	return v, ok && v != ""
}

// WithUserID adds user ID to context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

// UserID extracts user ID from context.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyUserID).(string)
	return v, ok && v != ""
}

// WithExecutionID adds execution ID to context.
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, keyExecutionID, executionID)
}

// ExecutionID extracts execution ID from context.
func ExecutionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyExecutionID).(string)
	return v, ok && v != ""
}
