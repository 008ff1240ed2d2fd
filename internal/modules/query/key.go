package query

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Key identifies a cached query: resource name followed by scoping parameters,
// e.g. ["sales","copypoint","42","status","PENDING"].
type Key []string

// NewKey formats each part into a key segment.
func NewKey(parts ...any) Key {
	key := make(Key, 0, len(parts))
	return key.Append(parts...)
}

// Append returns a new key with parts added; k is left untouched.
func (k Key) Append(parts ...any) Key {
	next := make(Key, len(k), len(k)+len(parts))
	copy(next, k)
	for _, part := range parts {
		next = append(next, formatPart(part))
	}
	return next
}

// String is the canonical encoding used as the cache map key. Two keys are equal
// exactly when their strings are equal.
func (k Key) String() string {
	if k == nil {
		k = Key{}
	}
	raw, _ := json.Marshal([]string(k))
	return string(raw)
}

// HasPrefix compares element-wise; the empty prefix matches every key.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

func formatPart(part any) string {
	switch v := part.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case []string:
		raw, _ := json.Marshal(v)
		return string(raw)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
