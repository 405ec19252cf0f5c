package agentrt

import (
	"encoding/json"
	"fmt"
)

// ValidateSchema checks raw against a minimal subset of JSON Schema
// (object type, required, and per-property primitive type) sufficient to
// catch a malformed structured-output response. No JSON Schema validator
// exists anywhere in the example corpus; this stays deliberately small
// rather than hand-rolling a general validator.
func ValidateSchema(raw json.RawMessage, schema map[string]any) error {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("structured output is not a JSON object: %w", err)
	}

	required, _ := schema["required"].([]any)
	for _, r := range required {
		key, _ := r.(string)
		if key == "" {
			continue
		}
		if _, ok := data[key]; !ok {
			return fmt.Errorf("structured output missing required field %q", key)
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for key, propSchema := range properties {
		val, present := data[key]
		if !present {
			continue
		}
		propMap, ok := propSchema.(map[string]any)
		if !ok {
			continue
		}
		wantType, _ := propMap["type"].(string)
		if wantType == "" {
			continue
		}
		if !matchesType(val, wantType) {
			return fmt.Errorf("field %q: expected type %q, got %T", key, wantType, val)
		}
	}

	return nil
}

func matchesType(val any, wantType string) bool {
	switch wantType {
	case "string":
		_, ok := val.(string)
		return ok
	case "number", "integer":
		_, ok := val.(float64)
		return ok
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "array":
		_, ok := val.([]any)
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	default:
		return true
	}
}
