package compare

import (
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/netmerge/internal/network"
)

// normalize folds Unicode compatibility forms and case, and collapses
// whitespace.
func normalize(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// textOf converts a property value to normalized text. Null and blank
// values yield "".
func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return normalize(t)
	default:
		return normalize(fmt.Sprint(t))
	}
}

// listOf returns the non-blank strings of a list value. A scalar string
// is treated as a one-element list.
func listOf(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if s = textOf(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s := textOf(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := textOf(t); s != "" {
			return []string{s}
		}
		return nil
	}
}

// collect reads attribute each from every object in a list value.
func collect(v any, each string) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if s := textOf(m[each]); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// isNull reports whether a value carries no information.
func isNull(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func equalValues(a, b any) bool {
	if fa, ok := numeric(a); ok {
		if fb, ok := numeric(b); ok {
			return fa == fb
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return sa == sb
		}
	}
	return reflect.DeepEqual(a, b)
}

// numeric is network.Float64 without string parsing.
func numeric(v any) (float64, bool) {
	if _, ok := v.(string); ok {
		return 0, false
	}
	return network.Float64(v)
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		set[s] = struct{}{}
	}
	return set
}
