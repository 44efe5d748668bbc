package types

import "time"

// Snapshot is a timestamped serialization of a validated value.
type Snapshot struct {
	Data      any         `json:"data"`
	Schema    *JSONSchema `json:"schema,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ValidatedInput wraps a value together with the schema it must satisfy.
type ValidatedInput struct {
	Data   any
	Schema *JSONSchema
}

// NewValidatedInput creates a schema-checked input wrapper.
func NewValidatedInput(data any, schema *JSONSchema) *ValidatedInput {
	return &ValidatedInput{Data: data, Schema: schema}
}

// Validate checks the wrapped value against its schema.
func (v *ValidatedInput) Validate() []Issue {
	return Validate(v.Data, v.Schema)
}

// Serialize produces a timestamped snapshot of the wrapped value.
func (v *ValidatedInput) Serialize() *Snapshot {
	return &Snapshot{Data: v.Data, Schema: v.Schema, Timestamp: time.Now()}
}

// ValidatedOutput wraps a produced value together with the schema it must
// satisfy. An output must pass the same contract an input would; both
// wrappers share one validator.
type ValidatedOutput struct {
	Data   any
	Schema *JSONSchema
}

// NewValidatedOutput creates a schema-checked output wrapper.
func NewValidatedOutput(data any, schema *JSONSchema) *ValidatedOutput {
	return &ValidatedOutput{Data: data, Schema: schema}
}

// Validate checks the wrapped value against its schema.
func (v *ValidatedOutput) Validate() []Issue {
	return Validate(v.Data, v.Schema)
}

// Serialize produces a timestamped snapshot of the wrapped value.
func (v *ValidatedOutput) Serialize() *Snapshot {
	return &Snapshot{Data: v.Data, Schema: v.Schema, Timestamp: time.Now()}
}
