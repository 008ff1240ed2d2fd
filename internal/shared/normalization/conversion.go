package normalization

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AsString trims and returns value when it is a string.
func AsString(value any) string {
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// AsID coerces identifiers the backend sends either as strings or as JSON numbers.
// Integral floats print without a fraction, so 42.0 becomes "42".
func AsID(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case float64:
		if typed == math.Trunc(typed) && !math.IsInf(typed, 0) {
			return strconv.FormatInt(int64(typed), 10)
		}
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return AsID(float64(typed))
	case int:
		return strconv.Itoa(typed)
	case int32:
		return strconv.FormatInt(int64(typed), 10)
	case int64:
		return strconv.FormatInt(typed, 10)
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		return ""
	}
}

// AsInt coerces numeric values (including numeric strings) into an int.
func AsInt(value any) int {
	switch typed := value.(type) {
	case float64:
		return int(typed)
	case float32:
		return int(typed)
	case int:
		return typed
	case int32:
		return int(typed)
	case int64:
		return int(typed)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(typed)); err == nil {
			return parsed
		}
	}
	return 0
}

// AsStringMap flattens a loosely typed metadata object into strings, dropping
// entries that are not scalars.
func AsStringMap(value any) map[string]string {
	typed, ok := value.(map[string]any)
	if !ok || len(typed) == 0 {
		return nil
	}
	out := make(map[string]string, len(typed))
	for key, raw := range typed {
		var str string
		switch v := raw.(type) {
		case bool:
			str = strconv.FormatBool(v)
		default:
			str = AsID(v)
		}
		if str != "" {
			out[key] = str
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// MapFromPayload unwraps a {"data": {...}} envelope into a plain map.
func MapFromPayload(value any) map[string]any {
	if value == nil {
		return nil
	}
	if typed, ok := value.(map[string]any); ok {
		if data, ok := typed["data"].(map[string]any); ok {
			return data
		}
		return typed
	}
	return nil
}
