package process

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"regexp"

	"github.com/busylang/busyflow/types"
)

// FieldType enumerates the input widgets a form can render.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeTextarea FieldType = "textarea"
	FieldTypeNumber   FieldType = "number"
	FieldTypeEmail    FieldType = "email"
	FieldTypeURL      FieldType = "url"
	FieldTypeSelect   FieldType = "select"
	FieldTypeCheckbox FieldType = "checkbox"
)

// FieldRules holds the per-field validation rules a form field may carry.
type FieldRules struct {
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Pattern string   `json:"pattern,omitempty"`
}

// FormField is one ordered entry of a FormModel.
type FormField struct {
	ID       string     `json:"id"`
	Type     FieldType  `json:"type"`
	Label    string     `json:"label"`
	Required bool       `json:"required"`
	Options  []string   `json:"options,omitempty"`
	Rules    FieldRules `json:"rules,omitempty"`
}

// ValidationStrategy controls when the UI layer validates field input.
type ValidationStrategy string

const (
	ValidateOnSubmit ValidationStrategy = "on_submit"
	ValidateOnChange ValidationStrategy = "on_change"
)

// FormModel describes the form a human step presents: an ordered field list
// plus layout and validation-strategy metadata consumed by the UI layer.
type FormModel struct {
	ID                 string             `json:"id"`
	Title              string             `json:"title"`
	Fields             []FormField        `json:"fields"`
	Layout             string             `json:"layout,omitempty"`
	ValidationStrategy ValidationStrategy `json:"validation_strategy,omitempty"`
}

// ComponentDefinition tells the UI layer which component renders the form.
type ComponentDefinition struct {
	Type  string         `json:"type"`
	Props map[string]any `json:"props,omitempty"`
}

// InputCollector is the UI-layer collaborator that gathers user input for a
// rendered component. It returns a plain key/value object.
type InputCollector interface {
	Collect(ctx context.Context, component *ComponentDefinition, form *FormModel) (map[string]any, error)
}

// PostProcessFunc is a domain hook applied to validated form data before the
// step result is produced.
type PostProcessFunc func(data map[string]any) (map[string]any, error)

// HumanStep collects user input through the UI layer, validates each field
// against its rules, and applies an optional domain post-processing hook.
type HumanStep struct {
	baseStep
	form        FormModel
	component   ComponentDefinition
	collector   InputCollector
	postProcess PostProcessFunc
}

// HumanStepOption configures a HumanStep at construction.
type HumanStepOption func(*HumanStep)

// WithCollector injects the UI-layer input collector.
func WithCollector(c InputCollector) HumanStepOption {
	return func(s *HumanStep) { s.collector = c }
}

// WithPostProcess installs the domain post-processing hook.
func WithPostProcess(fn PostProcessFunc) HumanStepOption {
	return func(s *HumanStep) { s.postProcess = fn }
}

// WithComponent overrides the UI component definition.
func WithComponent(c ComponentDefinition) HumanStepOption {
	return func(s *HumanStep) { s.component = c }
}

// NewHumanStep creates a human step from a form model.
func NewHumanStep(id, name string, form FormModel, opts ...HumanStepOption) *HumanStep {
	var required []string
	for _, f := range form.Fields {
		if f.Required {
			required = append(required, f.ID)
		}
	}
	s := &HumanStep{
		baseStep: baseStep{
			id:       id,
			name:     name,
			stepType: StepTypeHuman,
			required: required,
		},
		form: form,
		component: ComponentDefinition{
			Type:  "form",
			Props: map[string]any{"form_id": form.ID},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Form returns the step's form model.
func (s *HumanStep) Form() FormModel { return s.form }

// Component returns the UI component definition for the form.
func (s *HumanStep) Component() ComponentDefinition { return s.component }

// Execute collects user input via the UI layer, validates it, and applies
// the post-processing hook. A missing collector is a configuration error.
func (s *HumanStep) Execute(ctx context.Context, in *ExecutionInput) (*StepResult, error) {
	if s.collector == nil {
		return nil, types.NewError(types.ErrInternalError,
			fmt.Sprintf("human step %q has no input collector", s.id))
	}

	data, err := s.collector.Collect(ctx, &s.component, &s.form)
	if err != nil {
		return nil, fmt.Errorf("human step %q: input collection failed: %w", s.id, err)
	}

	result := s.Validate(data)
	if !result.Valid {
		return &StepResult{Success: false, Errors: result.Errors}, nil
	}

	if s.postProcess != nil {
		data, err = s.postProcess(data)
		if err != nil {
			return nil, fmt.Errorf("human step %q: post-processing failed: %w", s.id, err)
		}
	}

	return &StepResult{Success: true, Data: data}, nil
}

// Validate checks each form field against required-ness and its rules.
func (s *HumanStep) Validate(input map[string]any) ValidationResult {
	var errs []StepError
	for _, f := range s.form.Fields {
		v, present := input[f.ID]
		if !present || v == nil || v == "" {
			if f.Required {
				errs = append(errs, StepError{
					Field:   f.ID,
					Code:    types.ErrorCode(types.IssueRequiredField),
					Message: fmt.Sprintf("field %q is required", f.ID),
				})
			}
			continue
		}
		errs = append(errs, validateField(f, v)...)
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func validateField(f FormField, v any) []StepError {
	var errs []StepError

	fail := func(code types.IssueCode, msg string) {
		errs = append(errs, StepError{Field: f.ID, Code: types.ErrorCode(code), Message: msg})
	}

	switch f.Type {
	case FieldTypeNumber:
		n, ok := toFloat(v)
		if !ok {
			fail(types.IssueTypeMismatch, fmt.Sprintf("field %q must be a number", f.ID))
			break
		}
		if f.Rules.Min != nil && n < *f.Rules.Min {
			fail(types.IssueOutOfRange, fmt.Sprintf("field %q is below minimum %v", f.ID, *f.Rules.Min))
		}
		if f.Rules.Max != nil && n > *f.Rules.Max {
			fail(types.IssueOutOfRange, fmt.Sprintf("field %q is above maximum %v", f.ID, *f.Rules.Max))
		}

	case FieldTypeEmail:
		str, ok := v.(string)
		if !ok {
			fail(types.IssueTypeMismatch, fmt.Sprintf("field %q must be a string", f.ID))
			break
		}
		if _, err := mail.ParseAddress(str); err != nil {
			fail(types.IssueFormatMismatch, fmt.Sprintf("field %q is not a valid email address", f.ID))
		}

	case FieldTypeURL:
		str, ok := v.(string)
		if !ok {
			fail(types.IssueTypeMismatch, fmt.Sprintf("field %q must be a string", f.ID))
			break
		}
		if u, err := url.Parse(str); err != nil || u.Scheme == "" || u.Host == "" {
			fail(types.IssueFormatMismatch, fmt.Sprintf("field %q is not a valid URL", f.ID))
		}

	case FieldTypeSelect:
		str, ok := v.(string)
		if !ok {
			fail(types.IssueTypeMismatch, fmt.Sprintf("field %q must be a string", f.ID))
			break
		}
		if len(f.Options) > 0 {
			found := false
			for _, opt := range f.Options {
				if opt == str {
					found = true
					break
				}
			}
			if !found {
				fail(types.IssueEnumMismatch, fmt.Sprintf("field %q must be one of the listed options", f.ID))
			}
		}

	default:
		str, ok := v.(string)
		if !ok {
			break
		}
		if f.Rules.Min != nil && float64(len(str)) < *f.Rules.Min {
			fail(types.IssueLengthViolation, fmt.Sprintf("field %q is shorter than %v characters", f.ID, *f.Rules.Min))
		}
		if f.Rules.Max != nil && float64(len(str)) > *f.Rules.Max {
			fail(types.IssueLengthViolation, fmt.Sprintf("field %q is longer than %v characters", f.ID, *f.Rules.Max))
		}
	}

	if f.Rules.Pattern != "" {
		if str, ok := v.(string); ok {
			re, err := regexp.Compile(f.Rules.Pattern)
			if err != nil || !re.MatchString(str) {
				fail(types.IssuePatternMismatch, fmt.Sprintf("field %q does not match the expected pattern", f.ID))
			}
		}
	}

	return errs
}

// GenerateAlternativeUI produces a less-constrained, free-form variant of
// the same model for manual overrides: every field becomes an optional
// textarea so the standard form's rigidity never blocks the user.
func (s *HumanStep) GenerateAlternativeUI() (*FormModel, *ComponentDefinition) {
	alt := FormModel{
		ID:                 s.form.ID + "_freeform",
		Title:              s.form.Title,
		Layout:             "freeform",
		ValidationStrategy: ValidateOnSubmit,
		Fields:             make([]FormField, 0, len(s.form.Fields)),
	}
	for _, f := range s.form.Fields {
		alt.Fields = append(alt.Fields, FormField{
			ID:       f.ID,
			Type:     FieldTypeTextarea,
			Label:    f.Label,
			Required: false,
		})
	}
	component := ComponentDefinition{
		Type:  "freeform",
		Props: map[string]any{"form_id": alt.ID, "origin": s.form.ID},
	}
	return &alt, &component
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
