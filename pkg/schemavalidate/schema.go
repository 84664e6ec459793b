// Package schemavalidate implements the reduced JSON-schema subset used to
// define and check tool inputs: {type, required, properties,
// additionalProperties, items, enum, const, minLength, maxLength, minimum,
// maximum, minItems, maxItems}.
//
// This is hand-rolled rather than built on a general JSON-schema library: the
// subset and its exact error-message wording are part of the external
// contract, and a full
// validator (e.g. santhosh-tekuri/jsonschema) would both pull in draft
// keywords never used here and not reproduce those messages verbatim.
package schemavalidate

import (
	"fmt"
	"math"
)

// Issue is one structural or value-check failure.
type Issue struct {
	Path    string
	Message string
}

var allowedTypes = map[string]bool{
	"object": true, "array": true, "string": true,
	"number": true, "integer": true, "boolean": true, "null": true,
}

// ValidateDefinition structurally checks a schema document, returning an
// empty slice when it is well-formed.
func ValidateDefinition(schema map[string]any) []Issue {
	return validateDefinition(schema, "$")
}

func validateDefinition(schema map[string]any, path string) []Issue {
	var issues []Issue

	if t, ok := schema["type"]; ok {
		ts, ok := t.(string)
		if !ok || !allowedTypes[ts] {
			issues = append(issues, Issue{path, fmt.Sprintf("unknown type %v", t)})
		}
	}

	if req, ok := schema["required"]; ok {
		list, ok := req.([]any)
		if !ok {
			issues = append(issues, Issue{path, "required must be an array"})
		} else {
			for _, r := range list {
				if _, ok := r.(string); !ok {
					issues = append(issues, Issue{path, "required entries must be strings"})
				}
			}
		}
	}

	if props, ok := schema["properties"]; ok {
		propsMap, ok := props.(map[string]any)
		if !ok {
			issues = append(issues, Issue{path, "properties must be an object"})
		} else {
			for name, sub := range propsMap {
				subSchema, ok := sub.(map[string]any)
				if !ok {
					issues = append(issues, Issue{path + "." + name, "property schema must be an object"})
					continue
				}
				issues = append(issues, validateDefinition(subSchema, path+"."+name)...)
			}
		}
	}

	if ap, ok := schema["additionalProperties"]; ok {
		switch v := ap.(type) {
		case bool:
		case map[string]any:
			issues = append(issues, validateDefinition(v, path+".additionalProperties")...)
		default:
			issues = append(issues, Issue{path, "additionalProperties must be boolean or a schema"})
		}
	}

	if items, ok := schema["items"]; ok {
		sub, ok := items.(map[string]any)
		if !ok {
			issues = append(issues, Issue{path, "items must be a schema"})
		} else {
			issues = append(issues, validateDefinition(sub, path+"[]")...)
		}
	}

	for _, key := range []string{"minimum", "maximum"} {
		if v, ok := schema[key]; ok {
			n, ok := toFloat(v)
			if !ok || math.IsInf(n, 0) || math.IsNaN(n) {
				issues = append(issues, Issue{path, key + " must be a finite number"})
			}
		}
	}

	for _, key := range []string{"minLength", "maxLength", "minItems", "maxItems"} {
		if v, ok := schema[key]; ok {
			n, ok := toFloat(v)
			if !ok || n < 0 || n != math.Trunc(n) {
				issues = append(issues, Issue{path, key + " must be a non-negative integer"})
			}
		}
	}

	return issues
}

// ValidateValue checks value against schema, returning an empty slice when it
// conforms.
func ValidateValue(schema map[string]any, value any) []Issue {
	return validateValue(schema, value, "$")
}

func validateValue(schema map[string]any, value any, path string) []Issue {
	var issues []Issue

	if c, ok := schema["const"]; ok {
		if !deepEqual(c, value) {
			return []Issue{{path, fmt.Sprintf("value does not match const %v", c)}}
		}
	}

	if enum, ok := schema["enum"]; ok {
		list, _ := enum.([]any)
		matched := false
		for _, e := range list {
			if deepEqual(e, value) {
				matched = true
				break
			}
		}
		if !matched {
			issues = append(issues, Issue{path, "value is not one of the allowed enum values"})
		}
	}

	t, hasType := schema["type"].(string)
	if hasType && !typeMatches(t, value) {
		issues = append(issues, Issue{path, fmt.Sprintf("value does not match type %s", t)})
		return issues
	}

	switch t {
	case "string":
		s, _ := value.(string)
		if minLen, ok := toFloat(schema["minLength"]); ok && float64(len(s)) < minLen {
			issues = append(issues, Issue{path, fmt.Sprintf("String is shorter than minLength %d", int(minLen))})
		}
		if maxLen, ok := toFloat(schema["maxLength"]); ok && float64(len(s)) > maxLen {
			issues = append(issues, Issue{path, fmt.Sprintf("String is longer than maxLength %d", int(maxLen))})
		}
	case "number", "integer":
		n, _ := toFloat(value)
		if min, ok := toFloat(schema["minimum"]); ok && n < min {
			issues = append(issues, Issue{path, fmt.Sprintf("Number is less than minimum %v", min)})
		}
		if max, ok := toFloat(schema["maximum"]); ok && n > max {
			issues = append(issues, Issue{path, fmt.Sprintf("Number is greater than maximum %v", max)})
		}
	case "array":
		arr, _ := value.([]any)
		if minItems, ok := toFloat(schema["minItems"]); ok && float64(len(arr)) < minItems {
			issues = append(issues, Issue{path, fmt.Sprintf("Array has fewer than minItems %d", int(minItems))})
		}
		if maxItems, ok := toFloat(schema["maxItems"]); ok && float64(len(arr)) > maxItems {
			issues = append(issues, Issue{path, fmt.Sprintf("Array has more than maxItems %d", int(maxItems))})
		}
		if itemSchema, ok := schema["items"].(map[string]any); ok {
			for i, item := range arr {
				issues = append(issues, validateValue(itemSchema, item, fmt.Sprintf("%s[%d]", path, i))...)
			}
		}
	case "object":
		obj, _ := value.(map[string]any)
		if required, ok := schema["required"].([]any); ok {
			for _, r := range required {
				name, _ := r.(string)
				if _, present := obj[name]; !present {
					issues = append(issues, Issue{path + "." + name, "required property is missing"})
				}
			}
		}

		propsMap, _ := schema["properties"].(map[string]any)
		additional := schema["additionalProperties"]

		for key, val := range obj {
			if sub, ok := propsMap[key]; ok {
				subSchema, _ := sub.(map[string]any)
				issues = append(issues, validateValue(subSchema, val, path+"."+key)...)
				continue
			}
			switch ap := additional.(type) {
			case bool:
				if !ap {
					issues = append(issues, Issue{path + "." + key, "additional property is not allowed"})
				}
			case map[string]any:
				issues = append(issues, validateValue(ap, val, path+"."+key)...)
			}
		}
	}

	return issues
}

func typeMatches(t string, value any) bool {
	switch t {
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "null":
		return value == nil
	case "number":
		n, ok := toFloat(value)
		return ok && !math.IsNaN(n) && !math.IsInf(n, 0)
	case "integer":
		n, ok := toFloat(value)
		return ok && n == math.Trunc(n) && !math.IsInf(n, 0)
	default:
		return true
	}
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

func deepEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
