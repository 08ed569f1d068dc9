package merge

import (
	"time"

	"github.com/sells-group/netmerge/internal/network"
)

// ProvenanceKey is the property merged features carry their provenance in.
const ProvenanceKey = "provenance"

// Provenance records why and how a merged feature was produced.
type Provenance struct {
	WasDerivedFrom []string  `json:"wasDerivedFrom" yaml:"wasDerivedFrom"`
	Sources        []string  `json:"sources,omitempty" yaml:"sources,omitempty"`
	GeneratedAt    time.Time `json:"generatedAt" yaml:"generatedAt"`
	Confidence     float64   `json:"confidence" yaml:"confidence"`
	SimilarFields  []string  `json:"similarFields" yaml:"similarFields"`
	Manual         bool      `json:"manual" yaml:"manual"`
}

// Property renders the provenance as a JSON-like property value.
func (p Provenance) Property() map[string]any {
	m := map[string]any{
		"wasDerivedFrom": anyList(p.WasDerivedFrom),
		"generatedAt":    p.GeneratedAt.UTC().Format(time.RFC3339),
		"confidence":     p.Confidence,
		"similarFields":  anyList(p.SimilarFields),
		"manual":         p.Manual,
	}
	if len(p.Sources) > 0 {
		m["sources"] = anyList(p.Sources)
	}
	return m
}

// Attach stores the provenance on props, replacing any earlier record.
func Attach(props network.Properties, p Provenance) {
	props[ProvenanceKey] = p.Property()
}

// ProvenanceOf reads the provenance property back from a feature.
func ProvenanceOf(props network.Properties) (Provenance, bool) {
	m, ok := props[ProvenanceKey].(map[string]any)
	if !ok {
		return Provenance{}, false
	}
	var p Provenance
	p.WasDerivedFrom = stringList(m["wasDerivedFrom"])
	p.Sources = stringList(m["sources"])
	p.SimilarFields = stringList(m["similarFields"])
	p.Confidence, _ = network.Float64(m["confidence"])
	p.Manual, _ = m["manual"].(bool)
	if s, ok := m["generatedAt"].(string); ok {
		p.GeneratedAt, _ = time.Parse(time.RFC3339, s)
	}
	return p, len(p.WasDerivedFrom) == 2
}

func anyList(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func stringList(v any) []string {
	var out []string
	for _, item := range items(v) {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
