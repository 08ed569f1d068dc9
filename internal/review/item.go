package review

import (
	"github.com/sells-group/netmerge/internal/compare"
)

// Stage is a step of the review workflow.
type Stage int

const (
	LayerSelect Stage = iota
	NodeReview
	SpanReview
	Output
)

var stageNames = [...]string{"layer_select", "node_review", "span_review", "output"}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// Status is the reviewer's decision on one comparison.
type Status int

const (
	Pending Status = iota
	Rejected
	Consolidated
)

var statusNames = [...]string{"pending", "rejected", "consolidated"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Item is one comparison awaiting review.
type Item struct {
	Comparison *compare.Comparison
	Status     Status
}

// sharesFeature reports whether two items compare a common feature.
func (it *Item) sharesFeature(other *Item) bool {
	return it.Comparison.A.ID == other.Comparison.A.ID || it.Comparison.B.ID == other.Comparison.B.ID
}

// Counts tallies the items of the current stage by status.
type Counts struct {
	Pending      int `json:"pending" yaml:"pending"`
	Rejected     int `json:"rejected" yaml:"rejected"`
	Consolidated int `json:"consolidated" yaml:"consolidated"`
}

func count(items []*Item) Counts {
	var c Counts
	for _, it := range items {
		switch it.Status {
		case Pending:
			c.Pending++
		case Rejected:
			c.Rejected++
		case Consolidated:
			c.Consolidated++
		}
	}
	return c
}
