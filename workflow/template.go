package workflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// templatePattern matches {{A.b.c}} references inside string config leaves.
var templatePattern = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// ResolveTemplates walks a node config and substitutes every {{A.b.c}}
// reference against the supplied scope (node outputs, inputs, variables).
//
// Resolution rules:
//   - A string consisting of exactly one reference resolves to the raw value
//     at that path, preserving non-string types.
//   - A string mixing references with literal text interpolates each
//     reference's stringified value.
//   - Unresolved paths become the literal empty string, so branches that did
//     not fire contribute empty content to concatenations.
//   - Nested arrays and mappings are traversed with an explicit work stack,
//     never recursion, so user-supplied config depth cannot exhaust the
//     goroutine stack. Non-string leaves pass through unchanged.
//
// The input config is not modified; a resolved copy is returned.
func ResolveTemplates(config map[string]any, scope map[string]any) map[string]any {
	if config == nil {
		return nil
	}
	resolved := resolveValue(config, scope)
	out, _ := resolved.(map[string]any)
	return out
}

// frame is one pending container in the iterative config walk.
type frame struct {
	src any
	dst any // *map[string]any entry target or slice to fill
	key string
	idx int
}

// resolveValue copies src, substituting templates in string leaves. Containers
// are processed breadth-first off an explicit stack.
func resolveValue(src any, scope map[string]any) any {
	switch v := src.(type) {
	case string:
		return resolveString(v, scope)
	case map[string]any:
		dst := make(map[string]any, len(v))
		stack := []frame{{src: v, dst: dst}}
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			switch container := f.src.(type) {
			case map[string]any:
				m := f.dst.(map[string]any)
				for k, item := range container {
					switch inner := item.(type) {
					case string:
						m[k] = resolveString(inner, scope)
					case map[string]any:
						child := make(map[string]any, len(inner))
						m[k] = child
						stack = append(stack, frame{src: inner, dst: child})
					case []any:
						child := make([]any, len(inner))
						m[k] = child
						stack = append(stack, frame{src: inner, dst: child})
					default:
						m[k] = item
					}
				}
			case []any:
				s := f.dst.([]any)
				for i, item := range container {
					switch inner := item.(type) {
					case string:
						s[i] = resolveString(inner, scope)
					case map[string]any:
						child := make(map[string]any, len(inner))
						s[i] = child
						stack = append(stack, frame{src: inner, dst: child})
					case []any:
						child := make([]any, len(inner))
						s[i] = child
						stack = append(stack, frame{src: inner, dst: child})
					default:
						s[i] = item
					}
				}
			}
		}
		return dst
	case []any:
		dst := make([]any, len(v))
		wrapped := map[string]any{"items": v}
		resolved := resolveValue(wrapped, scope).(map[string]any)
		copy(dst, resolved["items"].([]any))
		return dst
	default:
		return src
	}
}

// resolveString substitutes templates in one string leaf.
func resolveString(s string, scope map[string]any) any {
	matches := templatePattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	// Whole-string single reference: return the raw value to preserve type.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		path := s[matches[0][2]:matches[0][3]]
		if v, ok := lookupPath(scope, path); ok {
			return v
		}
		return ""
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		path := s[m[2]:m[3]]
		if v, ok := lookupPath(scope, path); ok {
			b.WriteString(stringify(v))
		}
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

// lookupPath walks a dotted path through nested maps and arrays.
// The first segment indexes the scope; later segments index map keys or, for
// arrays, decimal indices.
func lookupPath(scope map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	current, ok := scope[segments[0]]
	if !ok {
		return nil, false
	}
	for _, seg := range segments[1:] {
		switch v := current.(type) {
		case map[string]any:
			current, ok = v[seg]
			if !ok {
				return nil, false
			}
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(v) {
				return nil, false
			}
			current = v[i]
		default:
			return nil, false
		}
	}
	return current, true
}

// stringify renders a template value for interpolation into a larger string.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
