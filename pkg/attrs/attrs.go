// Package attrs reads values back out of slog-style key/value slices so a
// single attribute list can feed both the logger and the audit trail.
package attrs

import "fmt"

// String returns the value stored under key in a [key1, value1, key2, value2, ...]
// slice. Non-string values are rendered with fmt, so typed IDs come back in
// their canonical form. Missing keys yield "".
func String(kv []any, key string) string {
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok || k != key {
			continue
		}
		switch v := kv[i+1].(type) {
		case string:
			return v
		case fmt.Stringer:
			return v.String()
		case nil:
			return ""
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}
