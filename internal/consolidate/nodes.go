package consolidate

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/netmerge/internal/compare"
	"github.com/sells-group/netmerge/internal/merge"
	"github.com/sells-group/netmerge/internal/network"
	"github.com/sells-group/netmerge/internal/remap"
)

// NodeConsolidator compares every node of network A with every node of
// network B, settles the clear cases and queues the rest for review.
type NodeConsolidator struct {
	a, b *network.Network
	opts options

	auto  []Outcome
	ask   []*compare.Comparison
	user  []Outcome
	stats Stats

	remapper *remap.Remapper
	reasons  []*Reason
	outA     *network.Network
	outB     *network.Network
}

// NewNodeConsolidator scores and classifies the node pairs of a and b.
// With spatial pruning, pairs beyond the match radius are never scored;
// the classifier would reject them anyway.
func NewNodeConsolidator(ctx context.Context, a, b *network.Network, opts ...Option) (*NodeConsolidator, error) {
	nc := &NodeConsolidator{a: a, b: b, opts: buildOptions(opts)}
	log := zap.L().With(
		zap.String("component", "node_consolidator"),
		zap.String("network_a", a.Description.Name),
		zap.String("network_b", b.Description.Name),
	)

	pairs := nc.pairs()
	comparisons, err := nc.opts.scorer.ScoreAll(ctx, pairs, nc.opts.concurrency)
	if err != nil {
		return nil, eris.Wrap(err, "consolidate: score nodes")
	}
	nc.stats.Compared = len(comparisons)
	nc.classify(comparisons)

	log.Info("node comparison complete",
		zap.Int("compared", nc.stats.Compared),
		zap.Int("pruned", nc.stats.Pruned),
		zap.Int("auto_consolidated", nc.stats.AutoConsolidated),
		zap.Int("auto_rejected", nc.stats.AutoRejected),
		zap.Int("ask_user", nc.stats.Asked),
	)
	return nc, nil
}

// pairs lists the node pairs to score in A-major, B input order.
func (nc *NodeConsolidator) pairs() []compare.Pair {
	nodesA, nodesB := nc.a.Nodes(), nc.b.Nodes()
	if !nc.opts.prune {
		pairs := make([]compare.Pair, 0, len(nodesA)*len(nodesB))
		for _, na := range nodesA {
			for _, nb := range nodesB {
				pairs = append(pairs, compare.Pair{A: na, B: nb})
			}
		}
		return pairs
	}

	order := make(map[string]int, len(nodesB))
	for i, nb := range nodesB {
		order[nb.ID] = i
	}
	var pairs []compare.Pair
	for _, na := range nodesA {
		near := nc.b.NodesWithinKM(na.Point(), nc.opts.thresholds.MatchRadiusKM)
		sort.Slice(near, func(i, j int) bool { return order[near[i].ID] < order[near[j].ID] })
		for _, nb := range near {
			pairs = append(pairs, compare.Pair{A: na, B: nb})
		}
		nc.stats.Pruned += len(nodesB) - len(near)
	}
	return pairs
}

// classify sorts comparisons into automatic outcomes and the review
// queue. Automatic merges are granted by descending confidence so that
// each node is auto-consolidated at most once; a pair losing a node to a
// stronger match is rejected. Queued pairs touching an auto-consolidated
// node are withdrawn.
func (nc *NodeConsolidator) classify(comparisons []*compare.Comparison) {
	type candidate struct {
		idx int
		c   *compare.Comparison
	}
	var merges []candidate
	var ask []candidate
	for i, c := range comparisons {
		switch compare.Classify(c, nc.opts.thresholds) {
		case compare.AutoConsolidate:
			merges = append(merges, candidate{i, c})
		case compare.AskUser:
			ask = append(ask, candidate{i, c})
		default:
			nc.stats.AutoRejected++
		}
	}

	sort.SliceStable(merges, func(i, j int) bool {
		return merges[i].c.Confidence > merges[j].c.Confidence
	})
	claimedA := make(map[string]bool)
	claimedB := make(map[string]bool)
	var granted []candidate
	for _, m := range merges {
		if claimedA[m.c.A.ID] || claimedB[m.c.B.ID] {
			zap.L().Debug("consolidate: node already auto-consolidated, rejecting pair",
				zap.String("node_a", m.c.A.ID),
				zap.String("node_b", m.c.B.ID),
				zap.Float64("confidence", m.c.Confidence),
			)
			nc.stats.AutoRejected++
			continue
		}
		claimedA[m.c.A.ID], claimedB[m.c.B.ID] = true, true
		granted = append(granted, m)
	}
	sort.Slice(granted, func(i, j int) bool { return granted[i].idx < granted[j].idx })

	now := nc.opts.now()
	for _, g := range granted {
		nc.auto = append(nc.auto, Consolidate(g.c, false, now))
	}
	nc.stats.AutoConsolidated = len(nc.auto)

	for _, q := range ask {
		if claimedA[q.c.A.ID] || claimedB[q.c.B.ID] {
			nc.stats.AutoRejected++
			continue
		}
		nc.ask = append(nc.ask, q.c)
	}
	nc.stats.Asked = len(nc.ask)
}

// ComparisonsToAskUser returns the comparisons awaiting review, in
// network A order.
func (nc *NodeConsolidator) ComparisonsToAskUser() []*compare.Comparison {
	return append([]*compare.Comparison(nil), nc.ask...)
}

// AutoOutcomes returns the automatically consolidated pairs.
func (nc *NodeConsolidator) AutoOutcomes() []Outcome {
	return append([]Outcome(nil), nc.auto...)
}

// SetUserOutcomes records the reviewer's decisions. Queued comparisons
// without an outcome count as rejected.
func (nc *NodeConsolidator) SetUserOutcomes(outcomes []Outcome) error {
	if nc.outA != nil {
		return eris.New("consolidate: nodes already consolidated")
	}
	if err := checkOutcomes(nc.ask, nc.auto, outcomes); err != nil {
		return err
	}
	nc.user = append([]Outcome(nil), outcomes...)
	return nil
}

// Outcomes returns every consolidating outcome, automatic first.
func (nc *NodeConsolidator) Outcomes() []Outcome {
	out := append([]Outcome(nil), nc.auto...)
	for _, o := range nc.user {
		if o.Consolidated() {
			out = append(out, o)
		}
	}
	return out
}

// NetworksWithConsolidatedNodes merges the consolidated pairs and gives
// every node a new identifier. The two returned networks share that node
// set and keep their own spans with endpoints rewritten. The result is
// computed once.
func (nc *NodeConsolidator) NetworksWithConsolidatedNodes() (*network.Network, *network.Network, error) {
	if nc.outA != nil {
		return nc.outA, nc.outB, nil
	}

	r := remap.New(nc.opts.alloc)
	var nodes []*network.Feature
	var reasons []*Reason

	for _, o := range nc.Outcomes() {
		c := o.Comparison
		props := merge.Merge(c.A.Properties, c.B.Properties, merge.NodePolicy)
		merge.Attach(props, o.Reason.Provenance(sources(nc.a, nc.b)...))

		merged := &network.Feature{Kind: network.KindNode, Geometry: c.A.Geometry, Properties: props}
		nodes = append(nodes, merged.WithID(r.Merged(c.A.ID, c.B.ID)))
		reasons = append(reasons, o.Reason)
	}
	for _, side := range []struct {
		side remap.Side
		net  *network.Network
	}{{remap.SideA, nc.a}, {remap.SideB, nc.b}} {
		for _, n := range side.net.Nodes() {
			if _, done := r.Lookup(side.side, n.ID); done {
				continue
			}
			nodes = append(nodes, n.WithID(r.Assign(side.side, n.ID)))
		}
	}

	spansA, err := r.Spans(remap.SideA, nc.a.Spans())
	if err != nil {
		return nil, nil, eris.Wrap(err, "consolidate: remap spans of network A")
	}
	spansB, err := r.Spans(remap.SideB, nc.b.Spans())
	if err != nil {
		return nil, nil, eris.Wrap(err, "consolidate: remap spans of network B")
	}

	outA, err := network.FromFeatures(nodes, spansA, nc.a.Description)
	if err != nil {
		return nil, nil, eris.Wrap(err, "consolidate: rebuild network A")
	}
	outB, err := network.FromFeatures(nodes, spansB, nc.b.Description)
	if err != nil {
		return nil, nil, eris.Wrap(err, "consolidate: rebuild network B")
	}

	nc.remapper = r
	nc.reasons = reasons
	nc.stats.Merged = len(reasons)
	nc.outA, nc.outB = outA, outB

	zap.L().Info("nodes consolidated",
		zap.Int("merged", len(reasons)),
		zap.Int("nodes", len(nodes)),
		zap.Int("spans_a", len(spansA)),
		zap.Int("spans_b", len(spansB)),
	)
	return outA, outB, nil
}

// Remapper returns the identifier tables once nodes are consolidated.
func (nc *NodeConsolidator) Remapper() *remap.Remapper {
	return nc.remapper
}

// Reasons returns the provenance of every merged node once nodes are
// consolidated.
func (nc *NodeConsolidator) Reasons() []*Reason {
	return append([]*Reason(nil), nc.reasons...)
}

// Stats returns the comparison and merge counts.
func (nc *NodeConsolidator) Stats() Stats {
	return nc.stats
}
