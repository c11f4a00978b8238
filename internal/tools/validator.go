package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/lexiqai/chat-orchestrator/internal/chat"
)

// Validator checks tool arguments before execution
type Validator interface {
	Validate(params map[string]interface{}, spec chat.ToolSpecification) error
}

// DefaultValidator covers required parameters and primitive type checks
type DefaultValidator struct{}

func (DefaultValidator) Validate(params map[string]interface{}, spec chat.ToolSpecification) error {
	if params == nil {
		params = map[string]interface{}{}
	}

	for _, field := range spec.RequiredParameters() {
		value, exists := params[field]
		if !exists || value == nil {
			return fmt.Errorf("missing required field: %s", field)
		}
	}

	for key, value := range params {
		param, ok := spec.Parameters[key]
		if !ok || param.Type == "" || value == nil {
			continue
		}
		if err := validateType(value, param.Type); err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
	}
	return nil
}

// DecodeArguments parses raw tool arguments into a JSON object.
// Empty arguments decode to an empty object.
func DecodeArguments(raw string) (map[string]interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}, nil
	}

	decoder := json.NewDecoder(bytes.NewReader([]byte(raw)))
	decoder.UseNumber()

	var params map[string]interface{}
	if err := decoder.Decode(&params); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	return params, nil
}

func validateType(value interface{}, expected string) error {
	switch expected {
	case "string":
		if _, ok := value.(string); ok {
			return nil
		}
	case "number":
		if isNumber(value) {
			return nil
		}
	case "integer":
		if isInteger(value) {
			return nil
		}
	case "boolean":
		if _, ok := value.(bool); ok {
			return nil
		}
	case "object":
		if _, ok := value.(map[string]interface{}); ok {
			return nil
		}
	case "array":
		if _, ok := value.([]interface{}); ok {
			return nil
		}
	default:
		return fmt.Errorf("unsupported parameter type %q", expected)
	}
	return fmt.Errorf("expected %s but got %T", expected, value)
}

func isNumber(value interface{}) bool {
	switch v := value.(type) {
	case float32, float64, int, int64:
		return true
	case json.Number:
		_, err := v.Float64()
		return err == nil
	}
	return false
}

func isInteger(value interface{}) bool {
	switch v := value.(type) {
	case int, int64:
		return true
	case float64:
		return math.Trunc(v) == v
	case json.Number:
		_, err := v.Int64()
		return err == nil
	}
	return false
}
