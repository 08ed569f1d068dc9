package network

import (
	"sort"

	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
)

// Description identifies the dataset a network came from.
type Description struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Network is an immutable snapshot of nodes and spans with by-id lookups
// and a spatial index over node points.
type Network struct {
	Description Description

	nodes     []*Feature
	spans     []*Feature
	nodesByID map[string]*Feature
	spansByID map[string]*Feature
	index     *Index
}

// FromFeatures validates the features and builds a Network. Any invalid
// feature fails the whole construction with an *InvalidFeatureError.
func FromFeatures(nodes, spans []*Feature, desc Description) (*Network, error) {
	n := &Network{
		Description: desc,
		nodes:       make([]*Feature, 0, len(nodes)),
		spans:       make([]*Feature, 0, len(spans)),
		nodesByID:   make(map[string]*Feature, len(nodes)),
		spansByID:   make(map[string]*Feature, len(spans)),
	}

	if err := add(KindNode, nodes, &n.nodes, n.nodesByID); err != nil {
		return nil, eris.Wrapf(err, "network: build %q", desc.Name)
	}
	if err := add(KindSpan, spans, &n.spans, n.spansByID); err != nil {
		return nil, eris.Wrapf(err, "network: build %q", desc.Name)
	}
	n.index = newIndex(n.nodes)
	return n, nil
}

func add(kind Kind, in []*Feature, list *[]*Feature, byID map[string]*Feature) error {
	for i, f := range in {
		if f == nil {
			return &InvalidFeatureError{Kind: kind, Index: i, Reason: "nil feature"}
		}
		if f.ID == "" {
			return &InvalidFeatureError{Kind: kind, Index: i, Reason: "empty id"}
		}
		if f.Kind != kind {
			return &InvalidFeatureError{Kind: kind, ID: f.ID, Index: i, Reason: "expected " + string(kind) + ", got " + string(f.Kind)}
		}
		if err := f.checkGeometry(); err != nil {
			return err
		}
		if _, dup := byID[f.ID]; dup {
			return &InvalidFeatureError{Kind: kind, ID: f.ID, Index: i, Reason: "duplicate id"}
		}
		byID[f.ID] = f
		*list = append(*list, f)
	}
	return nil
}

// Nodes returns the nodes in input order.
func (n *Network) Nodes() []*Feature {
	return append([]*Feature(nil), n.nodes...)
}

// Spans returns the spans in input order.
func (n *Network) Spans() []*Feature {
	return append([]*Feature(nil), n.spans...)
}

// Node looks up a node by id.
func (n *Network) Node(id string) (*Feature, bool) {
	f, ok := n.nodesByID[id]
	return f, ok
}

// Span looks up a span by id.
func (n *Network) Span(id string) (*Feature, bool) {
	f, ok := n.spansByID[id]
	return f, ok
}

// NodesWithinKM returns nodes within km of p, nearest first.
func (n *Network) NodesWithinKM(p *geom.Point, km float64) []*Feature {
	return n.index.WithinKM(p, km)
}

// NearestNodes returns up to k nodes nearest to p.
func (n *Network) NearestNodes(p *geom.Point, k int) []*Feature {
	return n.index.Nearest(p, k)
}

// DanglingSpans returns the ids of spans whose start or end does not
// resolve to a node of this network, sorted.
func (n *Network) DanglingSpans() []string {
	var ids []string
	for _, s := range n.spans {
		_, okStart := n.nodesByID[s.StartID()]
		_, okEnd := n.nodesByID[s.EndID()]
		if !okStart || !okEnd {
			ids = append(ids, s.ID)
		}
	}
	sort.Strings(ids)
	return ids
}
