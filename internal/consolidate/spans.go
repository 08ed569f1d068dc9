package consolidate

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/netmerge/internal/compare"
	"github.com/sells-group/netmerge/internal/merge"
	"github.com/sells-group/netmerge/internal/network"
	"github.com/sells-group/netmerge/internal/remap"
)

type endpointKey struct {
	start, end string
}

// SpanConsolidator pairs spans of two node-consolidated networks whose
// endpoints coincide. Every pair goes to review; scores are shown to the
// reviewer only.
type SpanConsolidator struct {
	a, b *network.Network
	opts options

	candidates []*compare.Comparison
	reasons    []*Reason
	stats      Stats
}

// NewSpanConsolidator finds the span candidates of a and b. Spans are
// undirected: a span of B matches a span of A running either way.
func NewSpanConsolidator(ctx context.Context, a, b *network.Network, opts ...Option) (*SpanConsolidator, error) {
	sc := &SpanConsolidator{a: a, b: b, opts: buildOptions(opts)}

	byEnds := make(map[endpointKey][]*network.Feature)
	for _, s := range a.Spans() {
		k := endpointKey{s.StartID(), s.EndID()}
		byEnds[k] = append(byEnds[k], s)
	}

	var pairs []compare.Pair
	for _, sb := range b.Spans() {
		seen := make(map[string]bool)
		keys := []endpointKey{{sb.StartID(), sb.EndID()}, {sb.EndID(), sb.StartID()}}
		for _, k := range keys {
			for _, sa := range byEnds[k] {
				if seen[sa.ID] {
					continue
				}
				seen[sa.ID] = true
				pairs = append(pairs, compare.Pair{A: sa, B: sb})
			}
		}
	}

	comparisons, err := sc.opts.scorer.ScoreAll(ctx, pairs, sc.opts.concurrency)
	if err != nil {
		return nil, eris.Wrap(err, "consolidate: score spans")
	}
	sc.candidates = comparisons
	sc.stats.Compared = len(comparisons)
	sc.stats.Asked = len(comparisons)

	zap.L().Info("span candidates found",
		zap.Int("spans_a", len(a.Spans())),
		zap.Int("spans_b", len(b.Spans())),
		zap.Int("candidates", len(comparisons)),
	)
	return sc, nil
}

// ComparisonsToAskUser returns the candidate pairs in network B order.
func (sc *SpanConsolidator) ComparisonsToAskUser() []*compare.Comparison {
	return append([]*compare.Comparison(nil), sc.candidates...)
}

// ConsolidatedNetwork merges the confirmed span pairs and passes every
// other span through, all with new identifiers. Nodes come from network
// A, which shares them with network B.
func (sc *SpanConsolidator) ConsolidatedNetwork(outcomes []Outcome) (*network.Network, error) {
	if err := checkOutcomes(sc.candidates, nil, outcomes); err != nil {
		return nil, err
	}

	desc := sc.description()
	tag := map[string]any{"id": desc.ID, "name": desc.Name}

	var spans []*network.Feature
	var reasons []*Reason
	mergedA := make(map[string]bool)
	mergedB := make(map[string]bool)

	for _, o := range outcomes {
		if !o.Consolidated() {
			continue
		}
		c := o.Comparison
		props := merge.Merge(c.A.Properties, c.B.Properties, merge.SpanPolicy)
		merge.Attach(props, o.Reason.Provenance(sources(sc.a, sc.b)...))
		props["network"] = network.CloneValue(tag)

		merged := &network.Feature{Kind: network.KindSpan, Geometry: c.A.Geometry, Properties: props}
		spans = append(spans, merged.WithID(sc.opts.alloc.Next()))
		reasons = append(reasons, o.Reason)
		mergedA[c.A.ID], mergedB[c.B.ID] = true, true
	}
	for _, pass := range []struct {
		net    *network.Network
		merged map[string]bool
	}{{sc.a, mergedA}, {sc.b, mergedB}} {
		for _, s := range pass.net.Spans() {
			if pass.merged[s.ID] {
				continue
			}
			out := s.WithID(sc.opts.alloc.Next())
			out.Properties["network"] = network.CloneValue(tag)
			spans = append(spans, out)
		}
	}

	nodes := sc.a.Nodes()
	for i, n := range nodes {
		c := n.Clone()
		c.Properties["network"] = network.CloneValue(tag)
		nodes[i] = c
	}

	out, err := network.FromFeatures(nodes, spans, desc)
	if err != nil {
		return nil, eris.Wrap(err, "consolidate: build consolidated network")
	}
	if dangling := out.DanglingSpans(); len(dangling) > 0 {
		return nil, eris.Wrapf(remap.ErrIntegrity, "consolidate: spans reference unknown nodes: %v", dangling)
	}

	sc.reasons = reasons
	sc.stats.Merged = len(reasons)
	zap.L().Info("spans consolidated",
		zap.Int("merged", len(reasons)),
		zap.Int("spans", len(spans)),
		zap.Int("nodes", len(nodes)),
	)
	return out, nil
}

func (sc *SpanConsolidator) description() network.Description {
	if sc.opts.description != nil {
		return *sc.opts.description
	}
	return network.Description{
		ID:   sc.a.Description.ID + "+" + sc.b.Description.ID,
		Name: sc.a.Description.Name + " + " + sc.b.Description.Name,
	}
}

// Reasons returns the provenance of every merged span once the network
// is consolidated.
func (sc *SpanConsolidator) Reasons() []*Reason {
	return append([]*Reason(nil), sc.reasons...)
}

// Stats returns the candidate and merge counts.
func (sc *SpanConsolidator) Stats() Stats {
	return sc.stats
}
