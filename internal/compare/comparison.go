package compare

import (
	"github.com/adrg/strutil/metrics"
	"github.com/rotisserie/eris"

	"github.com/sells-group/netmerge/internal/network"
)

// DefaultProximityHorizonKM is the distance at which proximity scores 0.
const DefaultProximityHorizonKM = 50.0

// highScore is the threshold above which a field counts as similar.
const highScore = 0.5

// Comparison is a scored pair of features, A from the first network and
// B from the second.
type Comparison struct {
	A, B *network.Feature

	// Scores holds a score for every field observed on at least one side.
	Scores  map[string]float64
	Weights Weights

	// Confidence is the weighted sum of Scores over the total weight of the
	// kind's fields, scaled to 0-100.
	Confidence float64

	// DistanceKM is the great-circle distance between two nodes.
	DistanceKM float64
}

// Kind returns the kind of the compared features.
func (c *Comparison) Kind() network.Kind {
	return c.A.Kind
}

// HighScoringFields returns the fields that scored above 0.5, in field
// table order.
func (c *Comparison) HighScoringFields() []string {
	var out []string
	for _, f := range FieldsFor(c.Kind()) {
		if s, ok := c.Scores[f.Name]; ok && s > highScore {
			out = append(out, f.Name)
		}
	}
	return out
}

// Involves reports whether the comparison shares its A or B feature with
// other.
func (c *Comparison) Involves(other *Comparison) bool {
	return c.A.ID == other.A.ID || c.B.ID == other.B.ID
}

// Scorer computes Comparisons. It is safe for concurrent use.
type Scorer struct {
	nodeWeights Weights
	spanWeights Weights
	horizonKM   float64
	jw          *metrics.JaroWinkler
}

// ScorerOption configures a Scorer.
type ScorerOption func(*Scorer)

// WithNodeWeights replaces the node field weights.
func WithNodeWeights(w Weights) ScorerOption {
	return func(s *Scorer) { s.nodeWeights = w }
}

// WithSpanWeights replaces the span field weights.
func WithSpanWeights(w Weights) ScorerOption {
	return func(s *Scorer) { s.spanWeights = w }
}

// WithProximityHorizon sets the distance at which proximity scores 0.
func WithProximityHorizon(km float64) ScorerOption {
	return func(s *Scorer) {
		if km > 0 {
			s.horizonKM = km
		}
	}
}

// NewScorer creates a Scorer with default weights unless overridden.
func NewScorer(opts ...ScorerOption) *Scorer {
	s := &Scorer{
		nodeWeights: DefaultWeights(network.KindNode),
		spanWeights: DefaultWeights(network.KindSpan),
		horizonKM:   DefaultProximityHorizonKM,
		jw:          newJaroWinkler(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score compares two features with the given weights and the default
// proximity horizon.
func Score(a, b *network.Feature, weights Weights) (*Comparison, error) {
	s := NewScorer()
	if weights == nil {
		return s.Score(a, b)
	}
	if a != nil && a.Kind == network.KindSpan {
		s.spanWeights = weights
	} else {
		s.nodeWeights = weights
	}
	return s.Score(a, b)
}

// Score compares two features of the same kind.
func (s *Scorer) Score(a, b *network.Feature) (*Comparison, error) {
	if a == nil || b == nil {
		return nil, eris.New("compare: nil feature")
	}
	if a.Kind != b.Kind {
		return nil, eris.Errorf("compare: cannot compare %s %q with %s %q", a.Kind, a.ID, b.Kind, b.ID)
	}

	weights := s.nodeWeights
	if a.Kind == network.KindSpan {
		weights = s.spanWeights
	}

	c := &Comparison{
		A:       a,
		B:       b,
		Scores:  make(map[string]float64),
		Weights: weights,
	}
	if a.Kind == network.KindNode {
		if a.Point() == nil || b.Point() == nil {
			return nil, eris.Errorf("compare: node %q or %q has no point geometry", a.ID, b.ID)
		}
		c.DistanceKM = network.DistanceKM(a.Point(), b.Point())
	}

	var weighted, total float64
	for _, f := range FieldsFor(a.Kind) {
		w := weights[f.Name]
		total += w
		score, observed := s.scoreField(f, c)
		if !observed {
			continue
		}
		c.Scores[f.Name] = score
		weighted += score * w
	}
	if total > 0 {
		c.Confidence = weighted / total * 100
	}
	return c, nil
}

// scoreField returns the field score and whether either side carries a
// value for it. Fields absent on both sides score 0 and are left out of
// Scores, but their weight still counts toward the total.
func (s *Scorer) scoreField(f Field, c *Comparison) (float64, bool) {
	pa, pb := c.A.Properties, c.B.Properties

	switch f.Comparator {
	case Proximity:
		return s.scoreProximity(c.DistanceKM), true
	case Endpoints:
		return scoreEndpoints(c.A, c.B), true
	case Exact:
		va, vb := pa.Get(f.Path), pb.Get(f.Path)
		return scoreExact(va, vb), !isNull(va) || !isNull(vb)
	case Text:
		ta, tb := textOf(pa.Get(f.Path)), textOf(pb.Get(f.Path))
		return s.textSimilarity(ta, tb), ta != "" || tb != ""
	case Category:
		la, lb := listOf(pa.Get(f.Path)), listOf(pb.Get(f.Path))
		return scoreCategory(la, lb), len(la) > 0 || len(lb) > 0
	case TextList:
		la, lb := collect(pa.Get(f.Path), f.Each), collect(pb.Get(f.Path), f.Each)
		return s.scoreTextList(la, lb), len(la) > 0 || len(lb) > 0
	case Providers:
		la, lb := collect(pa.Get(f.Path), f.Each), collect(pb.Get(f.Path), f.Each)
		return s.scoreProviders(la, lb), len(la) > 0 || len(lb) > 0
	case Length:
		va, vb := pa.Get(f.Path), pb.Get(f.Path)
		return scoreLength(va, vb), !isNull(va) || !isNull(vb)
	default:
		return 0, false
	}
}
