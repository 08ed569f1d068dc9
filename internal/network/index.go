package network

import (
	"math"
	"sort"

	"github.com/tidwall/rtree"
	geom "github.com/twpayne/go-geom"
)

// Index is a spatial index over node points keyed by lon/lat.
type Index struct {
	tree rtree.RTreeG[*Feature]
}

func newIndex(nodes []*Feature) *Index {
	idx := &Index{}
	for _, n := range nodes {
		p := n.Point()
		if p == nil || p.Empty() {
			continue
		}
		pt := [2]float64{p.X(), p.Y()}
		idx.tree.Insert(pt, pt, n)
	}
	return idx
}

// Len returns the number of indexed nodes.
func (idx *Index) Len() int {
	return idx.tree.Len()
}

// WithinKM returns the nodes within km of p, nearest first.
func (idx *Index) WithinKM(p *geom.Point, km float64) []*Feature {
	type hit struct {
		f    *Feature
		dist float64
	}
	var hits []hit
	seen := make(map[*Feature]bool)
	for _, b := range searchBoxes(p.X(), p.Y(), km) {
		idx.tree.Search(b.min, b.max, func(_, _ [2]float64, f *Feature) bool {
			if seen[f] {
				return true
			}
			seen[f] = true
			if d := DistanceKM(p, f.Point()); d <= km {
				hits = append(hits, hit{f: f, dist: d})
			}
			return true
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	out := make([]*Feature, len(hits))
	for i, h := range hits {
		out[i] = h.f
	}
	return out
}

// Nearest returns up to k nodes ordered by great-circle distance from p.
// Planar box distance picks the first k candidates; the farthest of them
// bounds a radius query that yields the exact great-circle ordering.
func (idx *Index) Nearest(p *geom.Point, k int) []*Feature {
	if k <= 0 {
		return nil
	}
	target := [2]float64{p.X(), p.Y()}

	var radius float64
	n := 0
	idx.tree.Nearby(
		rtree.BoxDist[float64, *Feature](target, target, nil),
		func(_, _ [2]float64, f *Feature, _ float64) bool {
			radius = math.Max(radius, DistanceKM(p, f.Point()))
			n++
			return n < k
		},
	)
	if n == 0 {
		return nil
	}

	out := idx.WithinKM(p, radius)
	if len(out) > k {
		out = out[:k]
	}
	return out
}
