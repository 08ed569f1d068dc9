package network

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Properties is the JSON-like property map of a feature. Nested objects are
// addressed with slash paths, e.g. "location/address/country".
type Properties map[string]any

// nestedProperties are the OFDS attributes that hold objects or arrays of
// objects. Sources that flatten attributes deliver them as JSON strings.
var nestedProperties = []string{
	"end",
	"internationalConnections",
	"location",
	"network",
	"networkProviders",
	"phase",
	"physicalInfrastructureProvider",
	"start",
	"supplier",
}

// Lookup returns the value at path and whether it was present.
func (p Properties) Lookup(path string) (any, bool) {
	if p == nil {
		return nil, false
	}
	parts := strings.Split(path, "/")
	var cur any = map[string]any(p)
	for _, part := range parts {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Get returns the value at path, or nil when absent.
func (p Properties) Get(path string) any {
	v, _ := p.Lookup(path)
	return v
}

// String returns the value at path if it is a string.
func (p Properties) String(path string) string {
	s, _ := p.Get(path).(string)
	return s
}

// Set stores v at path, creating intermediate objects as needed. An
// intermediate value that is not an object is replaced.
func (p Properties) Set(path string, v any) {
	parts := strings.Split(path, "/")
	cur := map[string]any(p)
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(cur[part])
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

// Delete removes the value at path if present.
func (p Properties) Delete(path string) {
	parts := strings.Split(path, "/")
	cur := map[string]any(p)
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(cur[part])
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}

// Clone returns a deep copy.
func (p Properties) Clone() Properties {
	if p == nil {
		return Properties{}
	}
	return Properties(cloneMap(p))
}

// decodeNested replaces JSON-string encodings of nested attributes with
// their decoded values. Strings that are not valid JSON are left alone.
func (p Properties) decodeNested() {
	for _, key := range nestedProperties {
		s, ok := p[key].(string)
		if !ok || !gjson.Valid(s) {
			continue
		}
		p[key] = gjson.Parse(s).Value()
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Properties:
		return m, true
	default:
		return nil, false
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies a JSON-like value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case Properties:
		return Properties(cloneMap(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
