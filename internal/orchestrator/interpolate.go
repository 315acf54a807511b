package orchestrator

import "strings"

// shaToken is the literal placeholder substituted with the wanted SHA.
const shaToken = "$SHA"

// Interpolate walks v (a JSON-shaped tree of map[string]any, []any, string,
// and other scalar leaves) and returns a deep copy with every occurrence of
// the literal "$SHA" replaced in string leaves. Non-string leaves, keys and
// empty strings are left untouched. It is a pure function: calling it twice
// with the same sha is idempotent, since replacing "$SHA" in a string that
// no longer contains it is a no-op.
func Interpolate(v any, sha string) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Interpolate(val, sha)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Interpolate(val, sha)
		}
		return out
	case string:
		if t == "" {
			return t
		}
		return strings.ReplaceAll(t, shaToken, sha)
	default:
		return t
	}
}

// InterpolateSpecs applies Interpolate to every spec in specs.
func InterpolateSpecs(specs []map[string]any, sha string) []map[string]any {
	out := make([]map[string]any, len(specs))
	for i, spec := range specs {
		out[i] = Interpolate(spec, sha).(map[string]any)
	}
	return out
}
