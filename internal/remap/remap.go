// Package remap allocates identifiers for consolidated features and
// rewrites span endpoint references to them.
package remap

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/netmerge/internal/network"
)

// ErrIntegrity is the sentinel matched by every IntegrityError.
var ErrIntegrity = eris.New("referential integrity failure")

// IntegrityError reports a span endpoint that has no entry in the lookup
// table of its side.
type IntegrityError struct {
	SpanID   string
	Endpoint string
	NodeID   string
	Side     Side
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("span %q %s references node %q with no identifier in network %s", e.SpanID, e.Endpoint, e.NodeID, e.Side)
}

func (e *IntegrityError) Unwrap() error {
	return ErrIntegrity
}

// Side names the input network a feature came from.
type Side int

const (
	SideA Side = iota
	SideB
)

func (s Side) String() string {
	if s == SideB {
		return "B"
	}
	return "A"
}

// Allocator hands out monotonically increasing identifiers. One
// allocator belongs to one consolidation run.
type Allocator struct {
	mu     sync.Mutex
	prefix string
	next   uint64
}

// NewAllocator returns an allocator whose ids are prefix followed by a
// counter starting at 1.
func NewAllocator(prefix string) *Allocator {
	return &Allocator{prefix: prefix}
}

// Next returns a fresh identifier.
func (a *Allocator) Next() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	return a.prefix + strconv.FormatUint(a.next, 10)
}

// Allocated returns how many identifiers have been handed out.
func (a *Allocator) Allocated() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}

// Remapper records the new identifier of every source feature of both
// networks.
type Remapper struct {
	alloc  *Allocator
	tables [2]map[string]string
}

// New returns a Remapper drawing ids from alloc.
func New(alloc *Allocator) *Remapper {
	return &Remapper{
		alloc:  alloc,
		tables: [2]map[string]string{{}, {}},
	}
}

// Merged allocates one identifier for a feature of A merged with a
// feature of B, and maps both to it.
func (r *Remapper) Merged(idA, idB string) string {
	id := r.alloc.Next()
	r.tables[SideA][idA] = id
	r.tables[SideB][idB] = id
	return id
}

// Assign allocates an identifier for an unmerged feature of one side.
func (r *Remapper) Assign(side Side, id string) string {
	newID := r.alloc.Next()
	r.tables[side][id] = newID
	return newID
}

// Lookup returns the new identifier of a source feature.
func (r *Remapper) Lookup(side Side, id string) (string, bool) {
	newID, ok := r.tables[side][id]
	return newID, ok
}

// Len returns the number of mapped source features of one side.
func (r *Remapper) Len(side Side) int {
	return len(r.tables[side])
}

// Span returns a copy of span with its start and end rewritten through
// the table of side.
func (r *Remapper) Span(side Side, span *network.Feature) (*network.Feature, error) {
	start, ok := r.Lookup(side, span.StartID())
	if !ok {
		return nil, &IntegrityError{SpanID: span.ID, Endpoint: "start", NodeID: span.StartID(), Side: side}
	}
	end, ok := r.Lookup(side, span.EndID())
	if !ok {
		return nil, &IntegrityError{SpanID: span.ID, Endpoint: "end", NodeID: span.EndID(), Side: side}
	}
	return span.WithEndpoints(start, end), nil
}

// Spans rewrites every span of one side. It fails on the first span with
// an unmapped endpoint and returns no partial result.
func (r *Remapper) Spans(side Side, spans []*network.Feature) ([]*network.Feature, error) {
	out := make([]*network.Feature, 0, len(spans))
	for _, s := range spans {
		remapped, err := r.Span(side, s)
		if err != nil {
			return nil, err
		}
		out = append(out, remapped)
	}
	return out, nil
}
