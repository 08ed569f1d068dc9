package compare

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	geom "github.com/twpayne/go-geom"

	"github.com/sells-group/netmerge/internal/network"
)

func node(t *testing.T, id string, lon, lat float64, props map[string]any) *network.Feature {
	t.Helper()
	f, err := network.NewFeature(network.KindNode, id, geom.NewPointFlat(geom.XY, []float64{lon, lat}), props)
	require.NoError(t, err)
	return f
}

func span(t *testing.T, id, start, end string, props map[string]any) *network.Feature {
	t.Helper()
	if props == nil {
		props = map[string]any{}
	}
	props["start"] = map[string]any{"id": start}
	props["end"] = map[string]any{"id": end}
	f, err := network.NewFeature(network.KindSpan, id, geom.NewLineStringFlat(geom.XY, []float64{0, 0, 1, 1}), props)
	require.NoError(t, err)
	return f
}

func TestScore_IdenticalNodes(t *testing.T) {
	props := map[string]any{
		"name":   "Exchange Road",
		"status": "operational",
		"type":   []any{"pop", "exchange"},
		"location": map[string]any{"address": map[string]any{
			"streetAddress": "1 Exchange Road",
			"postalCode":    "AB1 2CD",
			"country":       "GB",
		}},
		"networkProviders": []any{map[string]any{"name": "FibreCo", "id": "x"}},
	}
	a := node(t, "a1", -1.5, 53.8, props)
	b := node(t, "b1", -1.5, 53.8, props)

	c, err := Score(a, b, nil)
	require.NoError(t, err)
	// Only the fields carried by either node earn their weight.
	assert.InDelta(t, 5.0/9.05*100, c.Confidence, 1e-9)
	assert.Equal(t, []string{
		"name", "status", "coordinates",
		"location/address/streetAddress", "location/address/postalCode", "location/address/country",
		"type", "networkProviders",
	}, c.HighScoringFields())
	_, scored := c.Scores["power"]
	assert.False(t, scored, "fields absent on both sides are not scored")
}

func TestScore_FullyDescribedNodes(t *testing.T) {
	props := map[string]any{
		"name":                           "Leeds Exchange",
		"phase":                          map[string]any{"name": "Phase 1"},
		"physicalInfrastructureProvider": map[string]any{"name": "DuctCo"},
		"accessPoint":                    true,
		"power":                          true,
		"status":                         "operational",
		"type":                           []any{"exchange"},
		"location": map[string]any{"address": map[string]any{
			"streetAddress": "1 Leeds Road",
			"locality":      "Leeds",
			"region":        "West Yorkshire",
			"postalCode":    "LS1 1AA",
			"country":       "GB",
		}},
		"internationalConnections": []any{map[string]any{
			"streetAddress": "2 Quay Street",
			"locality":      "Calais",
			"region":        "Hauts-de-France",
			"postalCode":    "62100",
			"country":       "FR",
		}},
		"networkProviders": []any{map[string]any{"name": "FibreCo"}},
	}
	c, err := Score(node(t, "a1", -1.5, 53.8, props), node(t, "b1", -1.5, 53.8, props), nil)
	require.NoError(t, err)
	assert.Len(t, c.Scores, len(NodeFields))
	assert.InDelta(t, 100, c.Confidence, 1e-9)
}

func TestScore_AbsentFieldsCountAgainstConfidence(t *testing.T) {
	a := node(t, "a1", 0, 0, map[string]any{"name": "Leeds"})
	b := node(t, "b1", 0, 0, map[string]any{"name": "Leeds"})

	c, err := Score(a, b, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"name": 1, "coordinates": 1}, c.Scores)
	// name (0.5) and coordinates (1) out of a total node weight of 9.05
	assert.InDelta(t, 1.5/9.05*100, c.Confidence, 1e-9)
	assert.Equal(t, AutoReject, Classify(c, Thresholds{MergeAbove: 90, AskAbove: 50, MatchRadiusKM: 10}))

	var total float64
	for _, w := range DefaultWeights(network.KindNode) {
		total += w
	}
	assert.InDelta(t, 9.05, total, 1e-9)
}

func TestScore_CountryIsExact(t *testing.T) {
	gb := map[string]any{"location": map[string]any{"address": map[string]any{"country": "GB"}}}
	gg := map[string]any{"location": map[string]any{"address": map[string]any{"country": "GG"}}}

	c, err := Score(node(t, "a", 0, 0, gb), node(t, "b", 0, 0, gg), nil)
	require.NoError(t, err)
	assert.Zero(t, c.Scores["location/address/country"])

	c, err = Score(node(t, "a", 0, 0, gb), node(t, "b", 0, 0, gb), nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, c.Scores["location/address/country"])
}

func TestScore_KindMismatch(t *testing.T) {
	_, err := Score(node(t, "n", 0, 0, nil), span(t, "s", "a", "b", nil), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot compare")
}

func TestScore_ConfidenceBounds(t *testing.T) {
	values := []map[string]any{
		nil,
		{"name": "A"},
		{"name": "Alpha", "status": "planned", "power": true},
		{"name": "alpha ", "status": "operational", "power": false, "type": []any{"pop"}},
		{"type": "pop", "internationalConnections": []any{map[string]any{"country": "FR"}, map[string]any{"country": "BE"}}},
	}
	coords := [][2]float64{{0, 0}, {0.01, 0}, {0.5, 0.5}, {10, 10}}

	for i, pa := range values {
		for j, pb := range values {
			for k, ca := range coords {
				a := node(t, fmt.Sprintf("a%d%d%d", i, j, k), ca[0], ca[1], pa)
				b := node(t, "b", 0, 0, pb)
				c, err := Score(a, b, nil)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, c.Confidence, 0.0)
				assert.LessOrEqual(t, c.Confidence, 100.0+1e-9)
				for field, s := range c.Scores {
					assert.GreaterOrEqual(t, s, 0.0, field)
					assert.LessOrEqual(t, s, 1.0+1e-9, field)
				}
			}
		}
	}
}

func TestScore_Proximity(t *testing.T) {
	a := node(t, "a", 0, 0, nil)

	same, err := Score(a, node(t, "b", 0, 0, nil), nil)
	require.NoError(t, err)
	assert.InDelta(t, 1, same.Scores["coordinates"], 1e-9)

	// one degree of latitude is about 111 km, past the 50 km horizon
	far, err := Score(a, node(t, "c", 0, 1, nil), nil)
	require.NoError(t, err)
	assert.Zero(t, far.Scores["coordinates"])
	assert.InDelta(t, 111.2, far.DistanceKM, 0.5)

	s := NewScorer(WithProximityHorizon(200))
	c, err := s.Score(a, node(t, "d", 0, 1, nil))
	require.NoError(t, err)
	assert.InDelta(t, 1-c.DistanceKM/200, c.Scores["coordinates"], 1e-9)
}

func TestScore_TextNormalisation(t *testing.T) {
	a := node(t, "a", 0, 0, map[string]any{"name": "  CAFÉ   Exchange"})
	b := node(t, "b", 0, 0, map[string]any{"name": "café exchange"})
	c, err := Score(a, b, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1, c.Scores["name"], 1e-9)

	missing := node(t, "m", 0, 0, nil)
	c, err = Score(a, missing, nil)
	require.NoError(t, err)
	assert.Zero(t, c.Scores["name"])
}

func TestScoreCategory(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"a", "b"}, []string{"b", "a"}, 1},
		{"disjoint", []string{"a"}, []string{"b"}, 0},
		{"both empty", nil, nil, 0},
		{"one empty", []string{"a"}, nil, 0},
		{"half overlap", []string{"a", "b"}, []string{"b", "c"}, 0.25 + 0.5/3},
		{"subset", []string{"a", "b", "c", "d"}, []string{"a", "b", "c"}, 0.25 + 0.5*3/4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, scoreCategory(tt.a, tt.b), 1e-9)
		})
	}
}

func TestScoreTextList(t *testing.T) {
	s := NewScorer()
	assert.Zero(t, s.scoreTextList(nil, []string{"a"}))
	assert.InDelta(t, 1, s.scoreTextList([]string{"gb"}, []string{"gb"}), 1e-9)

	// average over the full cross product
	got := s.scoreTextList([]string{"gb", "fr"}, []string{"gb"})
	want := (1 + s.jw.Compare("fr", "gb")) / 2
	assert.InDelta(t, want, got, 1e-9)
}

func TestScoreProviders(t *testing.T) {
	s := NewScorer()
	assert.Zero(t, s.scoreProviders(nil, nil))
	assert.Equal(t, 1.0, s.scoreProviders([]string{"x", "y"}, []string{"y", "x"}))
	assert.InDelta(t, s.scoreTextList([]string{"x"}, []string{"y"}), s.scoreProviders([]string{"x"}, []string{"y"}), 1e-9)
}

func TestScoreExactAndLength(t *testing.T) {
	assert.Equal(t, 1.0, scoreExact(true, true))
	assert.Equal(t, 0.0, scoreExact(true, false))
	assert.Equal(t, 0.0, scoreExact(nil, nil))
	assert.Equal(t, 1.0, scoreExact(float64(48), 48))
	assert.Equal(t, 0.0, scoreExact("48", 48))

	assert.InDelta(t, 0.75, scoreLength(10.0, 10.25), 1e-9)
	assert.Zero(t, scoreLength(10.0, 11.0))
	assert.Zero(t, scoreLength(nil, 3.0))
	assert.Equal(t, 1.0, scoreLength(5, 5.0))
}

func TestScore_SpanEndpoints(t *testing.T) {
	a := span(t, "a", "n1", "n2", map[string]any{"fibreLength": 12.0})
	tests := []struct {
		name string
		b    *network.Feature
		want float64
	}{
		{"same direction", span(t, "b", "n1", "n2", nil), 1},
		{"reversed", span(t, "b", "n2", "n1", nil), 1},
		{"one shared", span(t, "b", "n2", "n3", nil), 0.2},
		{"none shared", span(t, "b", "n3", "n4", nil), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Score(a, tt.b, nil)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, c.Scores["nodes"], 1e-9)
			assert.Zero(t, c.DistanceKM)
		})
	}
}

func TestResolveWeights(t *testing.T) {
	w, err := ResolveWeights(network.KindNode, map[string]float64{
		"physicalinfrastructureprovider": 0.1,
		"location/address/postalcode":    0,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.1, w["physicalInfrastructureProvider"])
	assert.Equal(t, 0.0, w["location/address/postalCode"])
	assert.Equal(t, 0.5, w["name"])

	_, err = ResolveWeights(network.KindSpan, map[string]float64{"coordinates": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown span weight fields: coordinates")

	_, err = ResolveWeights(network.KindNode, map[string]float64{"name": -1})
	require.Error(t, err)
}

func TestDefaultWeightsCoverFieldTables(t *testing.T) {
	for _, kind := range []network.Kind{network.KindNode, network.KindSpan} {
		w := DefaultWeights(kind)
		fields := FieldsFor(kind)
		assert.Len(t, w, len(fields))
		for _, f := range fields {
			_, ok := w[f.Name]
			assert.True(t, ok, "%s field %s has no default weight", kind, f.Name)
		}
	}
}

func TestClassify(t *testing.T) {
	th := Thresholds{MergeAbove: 80, AskAbove: 40, MatchRadiusKM: 10}
	a := node(t, "a", 0, 0, nil)
	b := node(t, "b", 0, 0, nil)

	tests := []struct {
		name       string
		confidence float64
		distance   float64
		want       Decision
	}{
		{"merge", 90, 1, AutoConsolidate},
		{"ask at threshold", 40, 1, AskUser},
		{"merge threshold is exclusive", 80, 1, AskUser},
		{"reject", 10, 1, AutoReject},
		{"distance wins over confidence", 100, 10.5, AutoReject},
		{"radius is inclusive", 100, 10, AutoConsolidate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Comparison{A: a, B: b, Confidence: tt.confidence, DistanceKM: tt.distance}
			for range 3 {
				assert.Equal(t, tt.want, Classify(c, th))
			}
		})
	}
}

func TestClassify_SpansIgnoreRadius(t *testing.T) {
	c := &Comparison{A: span(t, "a", "x", "y", nil), B: span(t, "b", "x", "y", nil), Confidence: 50, DistanceKM: 1000}
	assert.Equal(t, AskUser, Classify(c, Thresholds{MergeAbove: 100, MatchRadiusKM: 1}))
}

func TestScoreAll(t *testing.T) {
	var pairs []Pair
	for i := range 20 {
		pairs = append(pairs, Pair{
			A: node(t, fmt.Sprintf("a%d", i), 0, 0, map[string]any{"name": "x"}),
			B: node(t, fmt.Sprintf("b%d", i), float64(i)*0.1, 0, map[string]any{"name": "x"}),
		})
	}

	got, err := NewScorer().ScoreAll(context.Background(), pairs, 4)
	require.NoError(t, err)
	require.Len(t, got, 20)
	for i, c := range got {
		assert.Equal(t, pairs[i].A.ID, c.A.ID)
		assert.Equal(t, pairs[i].B.ID, c.B.ID)
	}
	assert.Greater(t, got[0].Confidence, got[19].Confidence)
}

func TestScoreAll_PropagatesErrors(t *testing.T) {
	pairs := []Pair{{A: node(t, "a", 0, 0, nil), B: span(t, "s", "x", "y", nil)}}
	_, err := NewScorer().ScoreAll(context.Background(), pairs, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "score pairs")
}

func TestScoreAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pairs := []Pair{{A: node(t, "a", 0, 0, nil), B: node(t, "b", 0, 0, nil)}}
	_, err := NewScorer().ScoreAll(ctx, pairs, 1)
	require.Error(t, err)
}
