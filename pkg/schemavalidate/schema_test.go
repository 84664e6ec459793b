package schemavalidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDefinition_ValidSchema(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"email"},
		"properties": map[string]any{
			"email": map[string]any{"type": "string", "minLength": float64(3)},
		},
	}
	assert.Empty(t, ValidateDefinition(schema))
}

func TestValidateDefinition_RejectsUnknownType(t *testing.T) {
	schema := map[string]any{"type": "bignum"}
	issues := ValidateDefinition(schema)
	assert.NotEmpty(t, issues)
}

func TestValidateValue_S5Scenario(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"email"},
		"properties": map[string]any{
			"email": map[string]any{"type": "string", "minLength": float64(3)},
		},
	}
	input := map[string]any{"email": "a"}

	issues := ValidateValue(schema, input)
	assert.Equal(t, []Issue{{Path: "$.email", Message: "String is shorter than minLength 3"}}, issues)
}

func TestValidateValue_MissingRequiredProperty(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"email"},
	}
	issues := ValidateValue(schema, map[string]any{})
	assert.Equal(t, []Issue{{Path: "$.email", Message: "required property is missing"}}, issues)
}

func TestValidateValue_RejectsUnknownAdditionalProperty(t *testing.T) {
	schema := map[string]any{
		"type":                 "object",
		"properties":           map[string]any{"a": map[string]any{"type": "string"}},
		"additionalProperties": false,
	}
	issues := ValidateValue(schema, map[string]any{"a": "x", "b": "y"})
	assert.Equal(t, []Issue{{Path: "$.b", Message: "additional property is not allowed"}}, issues)
}

func TestValidateValue_EnumMismatch(t *testing.T) {
	schema := map[string]any{"enum": []any{"a", "b"}}
	issues := ValidateValue(schema, "c")
	assert.NotEmpty(t, issues)
}

func TestValidateValue_ConformingValueReturnsEmpty(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"email"},
		"properties": map[string]any{
			"email": map[string]any{"type": "string", "minLength": float64(3)},
		},
	}
	issues := ValidateValue(schema, map[string]any{"email": "abc"})
	assert.Empty(t, issues)
}

func TestValidateValue_TypeMismatchShortCircuits(t *testing.T) {
	schema := map[string]any{"type": "integer"}
	issues := ValidateValue(schema, "not a number")
	assert.Len(t, issues, 1)
}
