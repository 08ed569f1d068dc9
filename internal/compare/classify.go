package compare

import "github.com/sells-group/netmerge/internal/network"

// Decision is the classifier's verdict on a Comparison.
type Decision int

const (
	AutoReject Decision = iota
	AutoConsolidate
	AskUser
)

func (d Decision) String() string {
	switch d {
	case AutoConsolidate:
		return "auto_consolidate"
	case AskUser:
		return "ask_user"
	default:
		return "auto_reject"
	}
}

// Thresholds holds the classifier settings. Confidences are percentages.
type Thresholds struct {
	MergeAbove    float64
	AskAbove      float64
	MatchRadiusKM float64
}

// Classify decides what happens to a comparison. Nodes farther apart than
// the match radius are rejected whatever their confidence.
func Classify(c *Comparison, t Thresholds) Decision {
	if c.Kind() == network.KindNode && c.DistanceKM > t.MatchRadiusKM {
		return AutoReject
	}
	if c.Confidence > t.MergeAbove {
		return AutoConsolidate
	}
	if c.Confidence >= t.AskAbove {
		return AskUser
	}
	return AutoReject
}
