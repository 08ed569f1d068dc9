package merge

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/netmerge/internal/network"
)

// Op is a per-field merge operation.
type Op int

const (
	// KeepOrCopy keeps the primary value, falling back to the secondary.
	KeepOrCopy Op = iota
	// SumNumber adds numeric values.
	SumNumber
	// MergeArray takes the set union of two arrays.
	MergeArray
	// ConcatArray appends the secondary array to the primary one.
	ConcatArray
	// ConcatDescription joins differing texts with a comma.
	ConcatDescription
)

var opNames = []string{"KEEP_OR_COPY", "SUM_NUMBER", "MERGE_ARRAY", "CONCAT_ARRAY", "CONCAT_DESCRIPTION"}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "UNKNOWN"
}

// ParseOp parses an operation name such as "MERGE_ARRAY".
func ParseOp(s string) (Op, error) {
	for i, name := range opNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return Op(i), nil
		}
	}
	return 0, eris.Errorf("merge: unknown operation %q", s)
}

// Rule applies Op to the value at Path.
type Rule struct {
	Path string
	Op   Op
}

// Policy is an ordered list of rules. Keys not covered by a rule keep
// KeepOrCopy semantics.
type Policy []Rule

// NodePolicy is the default merge policy for nodes.
var NodePolicy = Policy{
	{"name", KeepOrCopy},
	{"location", KeepOrCopy},
	{"accessPoint", KeepOrCopy},
	{"power", KeepOrCopy},
	{"physicalInfrastructureProvider", KeepOrCopy},
	{"type", MergeArray},
	{"internationalConnections", ConcatArray},
	{"technologies", ConcatArray},
	{"networkProviders", ConcatArray},
}

// SpanPolicy is the default merge policy for spans.
var SpanPolicy = Policy{
	{"name", KeepOrCopy},
	{"phase", KeepOrCopy},
	{"status", KeepOrCopy},
	{"readyForServiceDate", KeepOrCopy},
	{"physicalInfrastructureProvider", KeepOrCopy},
	{"supplier", KeepOrCopy},
	{"deploymentDetails", KeepOrCopy},
	{"darkFibre", KeepOrCopy},
	{"fibreType", KeepOrCopy},
	{"fibreTypeDetails", KeepOrCopy},
	{"fibreCount", KeepOrCopy},
	{"capacityDetails", KeepOrCopy},
	{"transmissionMedium", MergeArray},
	{"deployment", MergeArray},
	{"countries", MergeArray},
	{"capacity", SumNumber},
	{"networkProviders", ConcatArray},
	{"deploymentDetails/description", ConcatDescription},
	{"capacityDetails/description", ConcatDescription},
	{"fibreTypeDetails/description", ConcatDescription},
}

// PolicyFor returns the default policy for a feature kind.
func PolicyFor(kind network.Kind) Policy {
	if kind == network.KindSpan {
		return SpanPolicy
	}
	return NodePolicy
}
