package merge

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/netmerge/internal/network"
)

// Merge combines the properties of two matched features. The primary
// wins wherever the policy does not say otherwise. Inputs are not
// modified.
func Merge(primary, secondary network.Properties, policy Policy) network.Properties {
	out := primary.Clone()
	for k, v := range secondary {
		if cur, ok := out[k]; !ok || cur == nil {
			out[k] = network.CloneValue(v)
		}
	}

	for _, rule := range policy {
		a, okA := primary.Lookup(rule.Path)
		b, okB := secondary.Lookup(rule.Path)
		if !okA && !okB {
			continue
		}

		var v any
		switch rule.Op {
		case KeepOrCopy:
			v = keepOrCopy(a, b)
		case SumNumber:
			v = sumNumber(rule.Path, a, b)
		case MergeArray:
			v = mergeArray(a, b)
		case ConcatArray:
			v = concatArray(a, b)
		case ConcatDescription:
			v = concatDescription(a, b)
		}
		if v == nil {
			continue
		}
		out.Set(rule.Path, network.CloneValue(v))
	}
	return out
}

func keepOrCopy(a, b any) any {
	if a != nil {
		return a
	}
	return b
}

// sumNumber adds two numbers. A missing side contributes nothing, so a
// lone value is returned unchanged.
func sumNumber(path string, a, b any) any {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	fa, okA := network.Float64(a)
	fb, okB := network.Float64(b)
	if !okA || !okB {
		zap.L().Debug("merge: non-numeric value in SUM_NUMBER field, keeping primary",
			zap.String("path", path),
			zap.Any("primary", a),
			zap.Any("secondary", b),
		)
		return a
	}
	return fa + fb
}

// items views a value as an array. Scalars become one-element arrays.
func items(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return []any{t}
	}
}

// mergeArray returns the union of both arrays: primary items first, then
// secondary items not already present. Duplicates within either input
// collapse too.
func mergeArray(a, b any) any {
	seen := make(map[string]struct{})
	out := []any{}
	for _, list := range [][]any{items(a), items(b)} {
		for _, item := range list {
			k := itemKey(item)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

func concatArray(a, b any) any {
	out := []any{}
	out = append(out, items(a)...)
	return append(out, items(b)...)
}

// itemKey identifies an array element by its canonical JSON encoding.
// Object keys are sorted by encoding/json.
func itemKey(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T:%v", v, v)
	}
	return string(data)
}

func concatDescription(a, b any) any {
	sa, sb := text(a), text(b)
	switch {
	case sa == "" && sb == "":
		return keepOrCopy(a, b)
	case sa == "":
		return sb
	case sb == "" || sa == sb:
		return sa
	}
	return sa + ", " + sb
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return fmt.Sprint(t)
	}
}
