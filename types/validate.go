package types

import (
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"reflect"
	"regexp"
)

// IssueCode classifies a single validation failure.
type IssueCode string

const (
	IssueTypeMismatch    IssueCode = "TYPE_MISMATCH"
	IssueEnumMismatch    IssueCode = "ENUM_MISMATCH"
	IssueOutOfRange      IssueCode = "OUT_OF_RANGE"
	IssueRequiredField   IssueCode = "REQUIRED_FIELD"
	IssueLengthViolation IssueCode = "LENGTH_VIOLATION"
	IssuePatternMismatch IssueCode = "PATTERN_MISMATCH"
	IssueFormatMismatch  IssueCode = "FORMAT_MISMATCH"
)

// Issue is one validation failure with the exact dotted/indexed path where
// it occurred: "root" for the top value, "field.sub" for nested object
// properties, "items[2]" for array elements.
type Issue struct {
	Path    string    `json:"path"`
	Code    IssueCode `json:"code"`
	Message string    `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s at %s: %s", i.Code, i.Path, i.Message)
}

// Validate recursively checks value against schema and returns all failures.
// A nil schema accepts any value.
func Validate(value any, schema *JSONSchema) []Issue {
	if schema == nil {
		return nil
	}
	return validateAt(value, schema, "root")
}

func validateAt(value any, schema *JSONSchema, path string) []Issue {
	var issues []Issue

	// Enum membership is checked regardless of declared type.
	if len(schema.Enum) > 0 {
		found := false
		for _, allowed := range schema.Enum {
			if reflect.DeepEqual(value, allowed) {
				found = true
				break
			}
		}
		if !found {
			issues = append(issues, Issue{
				Path:    path,
				Code:    IssueEnumMismatch,
				Message: fmt.Sprintf("value %v is not one of the allowed values", value),
			})
		}
	}

	if schema.Type == "" {
		return issues
	}

	switch schema.Type {
	case SchemaTypeNull:
		if value != nil {
			issues = append(issues, typeMismatch(path, "null", value))
		}

	case SchemaTypeBoolean:
		if _, ok := value.(bool); !ok {
			issues = append(issues, typeMismatch(path, "boolean", value))
		}

	case SchemaTypeString:
		s, ok := value.(string)
		if !ok {
			issues = append(issues, typeMismatch(path, "string", value))
			break
		}
		issues = append(issues, validateString(s, schema, path)...)

	case SchemaTypeNumber, SchemaTypeInteger:
		n, ok := asNumber(value)
		if !ok {
			issues = append(issues, typeMismatch(path, string(schema.Type), value))
			break
		}
		if schema.Type == SchemaTypeInteger && n != math.Trunc(n) {
			issues = append(issues, typeMismatch(path, "integer", value))
			break
		}
		if schema.Minimum != nil && n < *schema.Minimum {
			issues = append(issues, Issue{
				Path:    path,
				Code:    IssueOutOfRange,
				Message: fmt.Sprintf("value %v is below minimum %v", n, *schema.Minimum),
			})
		}
		if schema.Maximum != nil && n > *schema.Maximum {
			issues = append(issues, Issue{
				Path:    path,
				Code:    IssueOutOfRange,
				Message: fmt.Sprintf("value %v is above maximum %v", n, *schema.Maximum),
			})
		}

	case SchemaTypeObject:
		// Arrays also satisfy reflect.Map checks in some codecs; disambiguate
		// explicitly so []any never passes as an object.
		obj, ok := asObject(value)
		if !ok {
			issues = append(issues, typeMismatch(path, "object", value))
			break
		}
		for _, name := range schema.Required {
			if v, present := obj[name]; !present || v == nil {
				issues = append(issues, Issue{
					Path:    childPath(path, name),
					Code:    IssueRequiredField,
					Message: fmt.Sprintf("required field %q is missing", name),
				})
			}
		}
		for name, propSchema := range schema.Properties {
			v, present := obj[name]
			if !present || v == nil {
				continue
			}
			issues = append(issues, validateAt(v, propSchema, childPath(path, name))...)
		}

	case SchemaTypeArray:
		arr, ok := asArray(value)
		if !ok {
			issues = append(issues, typeMismatch(path, "array", value))
			break
		}
		if schema.Items != nil {
			for i, elem := range arr {
				issues = append(issues, validateAt(elem, schema.Items, indexPath(path, i))...)
			}
		}

	default:
		issues = append(issues, Issue{
			Path:    path,
			Code:    IssueTypeMismatch,
			Message: fmt.Sprintf("unknown schema type %q", schema.Type),
		})
	}

	return issues
}

func validateString(s string, schema *JSONSchema, path string) []Issue {
	var issues []Issue
	if schema.MinLength != nil && len(s) < *schema.MinLength {
		issues = append(issues, Issue{
			Path:    path,
			Code:    IssueLengthViolation,
			Message: fmt.Sprintf("length %d is below minLength %d", len(s), *schema.MinLength),
		})
	}
	if schema.MaxLength != nil && len(s) > *schema.MaxLength {
		issues = append(issues, Issue{
			Path:    path,
			Code:    IssueLengthViolation,
			Message: fmt.Sprintf("length %d is above maxLength %d", len(s), *schema.MaxLength),
		})
	}
	if schema.Pattern != "" {
		re, err := regexp.Compile(schema.Pattern)
		if err != nil {
			issues = append(issues, Issue{
				Path:    path,
				Code:    IssuePatternMismatch,
				Message: fmt.Sprintf("invalid pattern %q: %v", schema.Pattern, err),
			})
		} else if !re.MatchString(s) {
			issues = append(issues, Issue{
				Path:    path,
				Code:    IssuePatternMismatch,
				Message: fmt.Sprintf("value does not match pattern %q", schema.Pattern),
			})
		}
	}
	switch schema.Format {
	case FormatEmail:
		if _, err := mail.ParseAddress(s); err != nil {
			issues = append(issues, Issue{
				Path:    path,
				Code:    IssueFormatMismatch,
				Message: fmt.Sprintf("value %q is not a valid email address", s),
			})
		}
	case FormatURI:
		if u, err := url.Parse(s); err != nil || u.Scheme == "" {
			issues = append(issues, Issue{
				Path:    path,
				Code:    IssueFormatMismatch,
				Message: fmt.Sprintf("value %q is not a valid URI", s),
			})
		}
	}
	return issues
}

func typeMismatch(path, expected string, value any) Issue {
	return Issue{
		Path:    path,
		Code:    IssueTypeMismatch,
		Message: fmt.Sprintf("expected %s, got %T", expected, value),
	}
}

func childPath(parent, name string) string {
	if parent == "root" {
		return name
	}
	return parent + "." + name
}

func indexPath(parent string, i int) string {
	return fmt.Sprintf("%s[%d]", parent, i)
}

// asNumber accepts the numeric representations produced by JSON decoding
// and by native Go callers.
func asNumber(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asObject(value any) (map[string]any, bool) {
	obj, ok := value.(map[string]any)
	return obj, ok
}

func asArray(value any) ([]any, bool) {
	if arr, ok := value.([]any); ok {
		return arr, true
	}
	// Accept typed slices from native callers.
	rv := reflect.ValueOf(value)
	if value == nil || rv.Kind() != reflect.Slice {
		return nil, false
	}
	arr := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		arr[i] = rv.Index(i).Interface()
	}
	return arr, true
}
