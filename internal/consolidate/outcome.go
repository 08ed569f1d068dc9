package consolidate

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/netmerge/internal/compare"
	"github.com/sells-group/netmerge/internal/merge"
	"github.com/sells-group/netmerge/internal/network"
)

var (
	// ErrUnknownComparison is returned for an outcome whose comparison was
	// not offered for review.
	ErrUnknownComparison = eris.New("comparison not awaiting review")
	// ErrConflictingOutcomes is returned when a feature would be
	// consolidated more than once.
	ErrConflictingOutcomes = eris.New("feature consolidated more than once")
)

// Reason records why two features were consolidated.
type Reason struct {
	Kind          network.Kind `json:"kind" yaml:"kind"`
	PrimaryID     string       `json:"primary_id" yaml:"primary_id"`
	SecondaryID   string       `json:"secondary_id" yaml:"secondary_id"`
	Confidence    float64      `json:"confidence" yaml:"confidence"`
	SimilarFields []string     `json:"similar_fields" yaml:"similar_fields"`
	Manual        bool         `json:"manual" yaml:"manual"`
	GeneratedAt   time.Time    `json:"generated_at" yaml:"generated_at"`
}

// NewReason builds the reason for consolidating a comparison's pair.
func NewReason(c *compare.Comparison, manual bool, at time.Time) *Reason {
	return &Reason{
		Kind:          c.Kind(),
		PrimaryID:     c.A.ID,
		SecondaryID:   c.B.ID,
		Confidence:    c.Confidence,
		SimilarFields: c.HighScoringFields(),
		Manual:        manual,
		GeneratedAt:   at.UTC(),
	}
}

// Provenance renders the reason as the provenance property of the merged
// feature.
func (r *Reason) Provenance(sources ...string) merge.Provenance {
	var src []string
	for _, s := range sources {
		if s != "" {
			src = append(src, s)
		}
	}
	return merge.Provenance{
		WasDerivedFrom: []string{r.PrimaryID, r.SecondaryID},
		Sources:        src,
		GeneratedAt:    r.GeneratedAt,
		Confidence:     r.Confidence,
		SimilarFields:  append([]string(nil), r.SimilarFields...),
		Manual:         r.Manual,
	}
}

// Outcome is the decision on a comparison: consolidate when Reason is
// set, reject otherwise.
type Outcome struct {
	Comparison *compare.Comparison
	Reason     *Reason
}

// Reject keeps both features of c unmerged.
func Reject(c *compare.Comparison) Outcome {
	return Outcome{Comparison: c}
}

// Consolidate merges the features of c.
func Consolidate(c *compare.Comparison, manual bool, at time.Time) Outcome {
	return Outcome{Comparison: c, Reason: NewReason(c, manual, at)}
}

// Consolidated reports whether the outcome merges its pair.
func (o Outcome) Consolidated() bool {
	return o.Reason != nil
}

// checkOutcomes verifies every outcome refers to an offered comparison at
// most once and that no feature is consolidated twice, counting the
// already finalized outcomes in fixed.
func checkOutcomes(offered []*compare.Comparison, fixed, outcomes []Outcome) error {
	known := make(map[*compare.Comparison]bool, len(offered))
	for _, c := range offered {
		known[c] = true
	}

	usedA := make(map[string]bool)
	usedB := make(map[string]bool)
	claim := func(o Outcome) error {
		if !o.Consolidated() {
			return nil
		}
		a, b := o.Comparison.A.ID, o.Comparison.B.ID
		if usedA[a] || usedB[b] {
			return eris.Wrapf(ErrConflictingOutcomes, "consolidate: %s %q / %q", o.Comparison.Kind(), a, b)
		}
		usedA[a], usedB[b] = true, true
		return nil
	}

	for _, o := range fixed {
		if err := claim(o); err != nil {
			return err
		}
	}
	seen := make(map[*compare.Comparison]bool, len(outcomes))
	for _, o := range outcomes {
		if o.Comparison == nil || !known[o.Comparison] {
			return eris.Wrap(ErrUnknownComparison, "consolidate: check outcomes")
		}
		if seen[o.Comparison] {
			return eris.Wrapf(ErrConflictingOutcomes, "consolidate: duplicate outcome for %q / %q", o.Comparison.A.ID, o.Comparison.B.ID)
		}
		seen[o.Comparison] = true
		if err := claim(o); err != nil {
			return err
		}
	}
	return nil
}

// Stats counts what happened during a consolidation stage.
type Stats struct {
	Compared         int `json:"compared" yaml:"compared"`
	Pruned           int `json:"pruned" yaml:"pruned"`
	AutoConsolidated int `json:"auto_consolidated" yaml:"auto_consolidated"`
	AutoRejected     int `json:"auto_rejected" yaml:"auto_rejected"`
	Asked            int `json:"asked" yaml:"asked"`
	Merged           int `json:"merged" yaml:"merged"`
}
