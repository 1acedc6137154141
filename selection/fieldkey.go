package selection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// ResolveArguments substitutes variables into the field's arguments.
// Arguments bound to a variable missing from vars are omitted, matching
// GraphQL's treatment of unset optional variables.
func ResolveArguments(f *Field, vars map[string]any) map[string]any {
	if len(f.Arguments) == 0 {
		return nil
	}
	out := make(map[string]any, len(f.Arguments))
	for name, v := range f.Arguments {
		if vr, ok := v.(Variable); ok {
			bound, ok := vars[vr.Name]
			if !ok {
				continue
			}
			out[name] = resolveValue(bound, vars)
			continue
		}
		out[name] = resolveValue(v, vars)
	}
	return out
}

func resolveValue(v any, vars map[string]any) any {
	switch t := v.(type) {
	case Variable:
		return resolveValue(vars[t.Name], vars)
	case *Variable:
		return resolveValue(vars[t.Name], vars)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = resolveValue(e, vars)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = resolveValue(e, vars)
		}
		return out
	default:
		return v
	}
}

// FieldKey returns the key a field is stored under within its record: the
// field name, followed by the canonical JSON of its resolved arguments when
// it has any, e.g. hero({"episode":"JEDI"}).
func FieldKey(f *Field, vars map[string]any) string {
	args := ResolveArguments(f, vars)
	if len(args) == 0 {
		return f.Name
	}
	return f.Name + "(" + CanonicalJSON(args) + ")"
}

// CanonicalJSON serializes v with object keys sorted at every level and
// without HTML escaping. Values that cannot be encoded fall back to %v.
func CanonicalJSON(v any) string {
	var sb strings.Builder
	writeCanonical(&sb, v)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, k)
			sb.WriteByte(':')
			writeCanonical(sb, t[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, e)
		}
		sb.WriteByte(']')
	default:
		b, err := json.MarshalNoEscape(v)
		if err != nil {
			fmt.Fprintf(sb, "%q", fmt.Sprint(v))
			return
		}
		sb.Write(b)
	}
}
