package types

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// TOOL ARGUMENT EXTRACTION
// =============================================================================
//
// Capability arguments arrive as decoded JSON: numbers are float64, arrays
// are []interface{}, objects are map[string]interface{}. Providers are not
// consistent, so strings such as "3" or "true" are accepted too.

// ExtractString extracts a string representation from an argument.
func ExtractString(arg interface{}) string {
	switch v := arg.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ExtractInt extracts an integer. Returns (0, false) if the value is not numeric.
func ExtractInt(arg interface{}) (int, bool) {
	switch v := arg.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	default:
		return 0, false
	}
}

// ExtractFloat64 extracts a float. Returns (0, false) if the value is not numeric.
func ExtractFloat64(arg interface{}) (float64, bool) {
	switch v := arg.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ExtractBool extracts a boolean.
func ExtractBool(arg interface{}) (bool, bool) {
	switch v := arg.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	default:
		return false, false
	}
}

// ExtractStringSlice extracts a list of strings. A single string becomes a
// one-element list.
func ExtractStringSlice(arg interface{}) ([]string, bool) {
	switch v := arg.(type) {
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case string:
		return []string{v}, true
	default:
		return nil, false
	}
}

// ExtractStringMap extracts a flat string map, stringifying scalar values.
func ExtractStringMap(arg interface{}) (map[string]string, bool) {
	switch v := arg.(type) {
	case map[string]string:
		return v, true
	case map[string]interface{}:
		out := make(map[string]string, len(v))
		for k, val := range v {
			out[k] = ExtractString(val)
		}
		return out, true
	default:
		return nil, false
	}
}

// ArgString returns args[key] as a string, or "" when absent.
func ArgString(args map[string]interface{}, key string) string {
	return ExtractString(args[key])
}

// ArgInt returns args[key] as an int, or def when absent or malformed.
func ArgInt(args map[string]interface{}, key string, def int) int {
	if v, ok := args[key]; ok {
		if n, ok := ExtractInt(v); ok {
			return n
		}
	}
	return def
}

// ArgFloat64 returns args[key] as a float64, or def when absent or malformed.
func ArgFloat64(args map[string]interface{}, key string, def float64) float64 {
	if v, ok := args[key]; ok {
		if f, ok := ExtractFloat64(v); ok {
			return f
		}
	}
	return def
}

// ArgBool returns args[key] as a bool, or def when absent or malformed.
func ArgBool(args map[string]interface{}, key string, def bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := ExtractBool(v); ok {
			return b
		}
	}
	return def
}
