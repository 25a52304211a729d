package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrEmptyContent is returned when there is nothing to parse.
var ErrEmptyContent = errors.New("parse: empty content")

// ParseStringAs attempts to parse a string into the specified type T.
// For primitive types (string, bool, int, uint, float), it performs direct
// conversion, unwrapping {"type": ..., "value": ...} envelopes when present.
// For complex types (structs, maps, slices), it extracts the JSON candidate
// from the text, unmarshals it, and on failure repairs it with jsonrepair and
// retries, finally trying to unwrap schema-like values.
//
// Example usage:
//
//	type routeReply struct {
//	    Route string `json:"route"`
//	}
//
//	reply, err := ParseStringAs[routeReply]("```json\n{route: 'tax'}\n```")
//	questions, err := ParseStringAs[[]string](`["What is PAYE?", "How is VAT charged?"]`)
func ParseStringAs[T any](content string) (T, error) {
	var result T
	target := reflect.ValueOf(&result).Elem()

	switch reflect.TypeFor[T]().Kind() {
	case reflect.String:
		if strings.HasPrefix(content, "{") {
			if unwrapped, err := tryUnwrapPrimitive(content); err == nil {
				target.SetString(unwrapped)
				return result, nil
			}
		}
		target.SetString(content)
		return result, nil

	case reflect.Bool:
		err := parsePrimitive(content, func(s string) error {
			val, err := strconv.ParseBool(s)
			if err == nil {
				target.SetBool(val)
			}
			return err
		})
		return result, wrapPrimitive("bool", err)

	case reflect.Float32, reflect.Float64:
		err := parsePrimitive(content, func(s string) error {
			val, err := strconv.ParseFloat(s, 64)
			if err == nil {
				target.SetFloat(val)
			}
			return err
		})
		return result, wrapPrimitive("float", err)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		err := parsePrimitive(content, func(s string) error {
			val, err := strconv.ParseInt(s, 10, 64)
			if err == nil {
				target.SetInt(val)
			}
			return err
		})
		return result, wrapPrimitive("int", err)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		err := parsePrimitive(content, func(s string) error {
			val, err := strconv.ParseUint(s, 10, 64)
			if err == nil {
				target.SetUint(val)
			}
			return err
		})
		return result, wrapPrimitive("uint", err)

	default:
		candidate := ExtractJSON(content)
		if candidate == "" {
			return result, ErrEmptyContent
		}

		err := json.Unmarshal([]byte(candidate), &result)
		if err == nil {
			return result, nil
		}

		repairedJSON, repairErr := jsonrepair.JSONRepair(candidate)
		if repairErr != nil {
			return result, fmt.Errorf("failed to unmarshal content as %T and failed to repair JSON: unmarshal error: %w, repair error: %v", result, err, repairErr)
		}

		// Reset in case the first attempt partially populated result.
		var repaired T
		if err = json.Unmarshal([]byte(repairedJSON), &repaired); err == nil {
			return repaired, nil
		}

		// LLMs sometimes echo the schema shape ({type, value}) instead of data.
		if unwrapped, unwrapErr := unwrapSchemaValues(repairedJSON); unwrapErr == nil {
			var unwrappedResult T
			if json.Unmarshal([]byte(unwrapped), &unwrappedResult) == nil {
				return unwrappedResult, nil
			}
		}

		return result, fmt.Errorf("failed to unmarshal repaired JSON as %T: %w (repaired: %s)", result, err, repairedJSON)
	}
}

// ExtractJSON returns the most likely JSON payload inside content: the body of
// the first fenced code block if any, otherwise the span from the first '{' or
// '[' to the matching last '}' or ']'. Content without any brace is returned
// trimmed, leaving jsonrepair to decide.
func ExtractJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}

	if start := strings.Index(trimmed, "```"); start >= 0 {
		rest := trimmed[start+3:]
		// Skip an optional language tag on the opening fence.
		if newline := strings.IndexByte(rest, '\n'); newline >= 0 {
			rest = rest[newline+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}

	open := strings.IndexAny(trimmed, "{[")
	if open < 0 {
		return trimmed
	}
	closer := byte('}')
	if trimmed[open] == '[' {
		closer = ']'
	}
	if end := strings.LastIndexByte(trimmed, closer); end > open {
		return trimmed[open : end+1]
	}
	return trimmed[open:]
}

// parsePrimitive runs set on the trimmed content, then on the unwrapped value
// of a schema envelope if the first attempt failed.
func parsePrimitive(content string, set func(string) error) error {
	err := set(strings.TrimSpace(content))
	if err == nil {
		return nil
	}
	if unwrapped, unwrapErr := tryUnwrapPrimitive(content); unwrapErr == nil {
		if set(unwrapped) == nil {
			return nil
		}
	}
	return err
}

func wrapPrimitive(kind string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to parse content as %s: %w", kind, err)
}

// tryUnwrapPrimitive attempts to unwrap a primitive value from a schema-like structure.
// Returns the string representation of the unwrapped value.
func tryUnwrapPrimitive(content string) (string, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return "", err
	}

	value, ok := schemaValue(data)
	if !ok {
		return "", errors.New("not a schema-wrapped value")
	}

	switch v := value.(type) {
	case string:
		return v, nil
	case float64, bool:
		return fmt.Sprintf("%v", v), nil
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(bytes), nil
	}
}

// schemaValue reports whether m has exactly the {"type": ..., "value": ...} shape.
func schemaValue(m map[string]any) (any, bool) {
	if len(m) != 2 {
		return nil, false
	}
	if _, hasType := m["type"]; !hasType {
		return nil, false
	}
	value, hasValue := m["value"]
	return value, hasValue
}

// unwrapSchemaValues replaces every {"type": ..., "value": ...} envelope in
// jsonStr with its value.
//
// Example input:
//
//	{"route": {"type": "string", "value": "tax"}}
//
// Example output:
//
//	{"route": "tax"}
func unwrapSchemaValues(jsonStr string) (string, error) {
	var data any
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		return "", err
	}

	result, err := json.Marshal(recursiveUnwrap(data))
	if err != nil {
		return "", err
	}
	return string(result), nil
}

func recursiveUnwrap(data any) any {
	switch v := data.(type) {
	case map[string]any:
		if value, ok := schemaValue(v); ok {
			return recursiveUnwrap(value)
		}
		result := make(map[string]any, len(v))
		for key, val := range v {
			result[key] = recursiveUnwrap(val)
		}
		return result

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = recursiveUnwrap(val)
		}
		return result

	default:
		return data
	}
}
