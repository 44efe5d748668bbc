package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_NilSchemaAcceptsAnything(t *testing.T) {
	assert.Empty(t, Validate("anything", nil))
	assert.Empty(t, Validate(nil, nil))
	assert.Empty(t, Validate(map[string]any{"x": 1}, nil))
}

func TestValidate_TopLevelPathIsRoot(t *testing.T) {
	issues := Validate(42, NewStringSchema())
	require.Len(t, issues, 1)
	assert.Equal(t, "root", issues[0].Path)
	assert.Equal(t, IssueTypeMismatch, issues[0].Code)
}

func TestValidate_RequiredField(t *testing.T) {
	schema := NewObjectSchema().
		AddProperty("name", NewStringSchema()).
		AddRequired("name")

	issues := Validate(map[string]any{}, schema)
	require.Len(t, issues, 1)
	assert.Equal(t, "name", issues[0].Path)
	assert.Equal(t, IssueRequiredField, issues[0].Code)

	issues = Validate(map[string]any{"name": "ok"}, schema)
	assert.Empty(t, issues)
}

func TestValidate_NilValueCountsAsMissing(t *testing.T) {
	schema := NewObjectSchema().
		AddProperty("name", NewStringSchema()).
		AddRequired("name")

	issues := Validate(map[string]any{"name": nil}, schema)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueRequiredField, issues[0].Code)
}

func TestValidate_NestedPathIsDotted(t *testing.T) {
	schema := NewObjectSchema().
		AddProperty("address", NewObjectSchema().
			AddProperty("city", NewStringSchema()).
			AddRequired("city"))

	issues := Validate(map[string]any{
		"address": map[string]any{},
	}, schema)
	require.Len(t, issues, 1)
	assert.Equal(t, "address.city", issues[0].Path)
}

func TestValidate_ArrayElementPathIsIndexed(t *testing.T) {
	schema := NewObjectSchema().
		AddProperty("items", NewArraySchema(NewNumberSchema()))

	issues := Validate(map[string]any{
		"items": []any{1.0, 2.0, "three"},
	}, schema)
	require.Len(t, issues, 1)
	assert.Equal(t, "items[2]", issues[0].Path)
	assert.Equal(t, IssueTypeMismatch, issues[0].Code)
}

func TestValidate_NumberRange(t *testing.T) {
	schema := NewNumberSchema().WithRange(0, 100)

	assert.Empty(t, Validate(50, schema))
	assert.Empty(t, Validate(0.0, schema))
	assert.Empty(t, Validate(100, schema))

	issues := Validate(-1, schema)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueOutOfRange, issues[0].Code)

	issues = Validate(101, schema)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueOutOfRange, issues[0].Code)
}

func TestValidate_IntegerRejectsFraction(t *testing.T) {
	schema := NewIntegerSchema()
	assert.Empty(t, Validate(3, schema))
	// JSON decoding yields float64 for whole numbers.
	assert.Empty(t, Validate(3.0, schema))

	issues := Validate(3.5, schema)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueTypeMismatch, issues[0].Code)
}

func TestValidate_StringConstraints(t *testing.T) {
	minLen, maxLen := 2, 5
	schema := &JSONSchema{
		Type:      SchemaTypeString,
		MinLength: &minLen,
		MaxLength: &maxLen,
	}

	assert.Empty(t, Validate("abc", schema))

	issues := Validate("a", schema)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueLengthViolation, issues[0].Code)

	issues = Validate("abcdef", schema)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueLengthViolation, issues[0].Code)
}

func TestValidate_Pattern(t *testing.T) {
	schema := &JSONSchema{Type: SchemaTypeString, Pattern: `^[A-Z]{3}-\d+$`}

	assert.Empty(t, Validate("ABC-123", schema))

	issues := Validate("abc-123", schema)
	require.Len(t, issues, 1)
	assert.Equal(t, IssuePatternMismatch, issues[0].Code)
}

func TestValidate_Formats(t *testing.T) {
	email := &JSONSchema{Type: SchemaTypeString, Format: FormatEmail}
	assert.Empty(t, Validate("user@example.com", email))
	issues := Validate("not-an-email", email)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueFormatMismatch, issues[0].Code)

	uri := &JSONSchema{Type: SchemaTypeString, Format: FormatURI}
	assert.Empty(t, Validate("https://example.com/x", uri))
	issues = Validate("://broken", uri)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueFormatMismatch, issues[0].Code)
}

func TestValidate_Enum(t *testing.T) {
	schema := NewEnumSchema("red", "green", "blue")
	assert.Empty(t, Validate("green", schema))

	issues := Validate("yellow", schema)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueEnumMismatch, issues[0].Code)
}

func TestValidate_ObjectRejectsArray(t *testing.T) {
	schema := NewObjectSchema()
	issues := Validate([]any{1, 2}, schema)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueTypeMismatch, issues[0].Code)
}

func TestValidate_CollectsAllIssues(t *testing.T) {
	schema := NewObjectSchema().
		AddProperty("name", NewStringSchema()).
		AddProperty("age", NewNumberSchema().WithRange(0, 150)).
		AddRequired("name", "age")

	issues := Validate(map[string]any{"age": 200}, schema)
	// Missing name plus out-of-range age.
	require.Len(t, issues, 2)
	codes := map[IssueCode]bool{}
	for _, issue := range issues {
		codes[issue.Code] = true
	}
	assert.True(t, codes[IssueRequiredField])
	assert.True(t, codes[IssueOutOfRange])
}

func TestSchemaRoundTrip(t *testing.T) {
	schema := NewObjectSchema().
		AddProperty("email", &JSONSchema{Type: SchemaTypeString, Format: FormatEmail}).
		AddProperty("score", NewNumberSchema().WithRange(0, 10)).
		AddRequired("email")

	data, err := schema.ToJSON()
	require.NoError(t, err)

	decoded, err := SchemaFromJSON(data)
	require.NoError(t, err)
	require.Contains(t, decoded.Properties, "email")
	assert.Equal(t, FormatEmail, decoded.Properties["email"].Format)
	assert.Equal(t, []string{"email"}, decoded.Required)
	require.NotNil(t, decoded.Properties["score"].Maximum)
	assert.Equal(t, 10.0, *decoded.Properties["score"].Maximum)
}

func TestValidatedInputOutputShareContract(t *testing.T) {
	schema := NewObjectSchema().
		AddProperty("value", NewNumberSchema()).
		AddRequired("value")

	good := map[string]any{"value": 1.5}
	bad := map[string]any{}

	assert.Empty(t, NewValidatedInput(good, schema).Validate())
	assert.Empty(t, NewValidatedOutput(good, schema).Validate())
	assert.NotEmpty(t, NewValidatedInput(bad, schema).Validate())
	assert.NotEmpty(t, NewValidatedOutput(bad, schema).Validate())
}

func TestSnapshotCarriesTimestamp(t *testing.T) {
	in := NewValidatedInput(map[string]any{"a": 1}, nil)
	snap := in.Serialize()
	require.NotNil(t, snap)
	assert.False(t, snap.Timestamp.IsZero())
	assert.Equal(t, in.Data, snap.Data)
}
