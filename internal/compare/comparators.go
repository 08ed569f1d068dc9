package compare

import (
	"math"

	"github.com/adrg/strutil/metrics"

	"github.com/sells-group/netmerge/internal/network"
)

// textSimilarity returns Jaro-Winkler similarity of two normalized
// strings, 0 if either is blank.
func (s *Scorer) textSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return s.jw.Compare(a, b)
}

func scoreExact(a, b any) float64 {
	if isNull(a) || isNull(b) {
		return 0
	}
	if equalValues(a, b) {
		return 1
	}
	return 0
}

// scoreCategory is 1 for identical non-empty sets, 0 for disjoint sets,
// and rises from 0.25 to 0.75 with the Jaccard overlap in between.
func scoreCategory(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA, setB := toSet(a), toSet(b)

	shared := 0
	for k := range setA {
		if _, ok := setB[k]; ok {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	switch {
	case shared == 0:
		return 0
	case shared == union:
		return 1
	default:
		return 0.25 + 0.5*float64(shared)/float64(union)
	}
}

// scoreTextList averages similarity over every pairing of the two lists.
func (s *Scorer) scoreTextList(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var total float64
	for _, x := range a {
		for _, y := range b {
			total += s.textSimilarity(x, y)
		}
	}
	return total / float64(len(a)*len(b))
}

func (s *Scorer) scoreProviders(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	if sameSet(a, b) {
		return 1
	}
	return s.scoreTextList(a, b)
}

func sameSet(a, b []string) bool {
	setA, setB := toSet(a), toSet(b)
	if len(setA) != len(setB) {
		return false
	}
	for k := range setA {
		if _, ok := setB[k]; !ok {
			return false
		}
	}
	return true
}

func (s *Scorer) scoreProximity(distKM float64) float64 {
	return math.Max(0, 1-distKM/s.horizonKM)
}

func scoreLength(a, b any) float64 {
	fa, okA := network.Float64(a)
	fb, okB := network.Float64(b)
	if !okA || !okB {
		return 0
	}
	if diff := math.Abs(fa - fb); diff < 1 {
		return 1 - diff
	}
	return 0
}

// scoreEndpoints compares span endpoints ignoring direction.
func scoreEndpoints(a, b *network.Feature) float64 {
	endsB := toSet([]string{b.StartID(), b.EndID()})
	shared := 0
	for id := range toSet([]string{a.StartID(), a.EndID()}) {
		if _, ok := endsB[id]; ok && id != "" {
			shared++
		}
	}
	switch shared {
	case 2:
		return 1
	case 1:
		return 0.2
	default:
		return 0
	}
}

func newJaroWinkler() *metrics.JaroWinkler {
	jw := metrics.NewJaroWinkler()
	jw.CaseSensitive = true
	return jw
}
