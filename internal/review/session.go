// Package review sequences the comparisons that need a human decision
// and turns the decisions into consolidation outcomes.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/netmerge/internal/compare"
	"github.com/sells-group/netmerge/internal/consolidate"
	"github.com/sells-group/netmerge/internal/network"
	"github.com/sells-group/netmerge/internal/remap"
)

var (
	// ErrInvalidTransition is returned for a command the current stage
	// does not accept.
	ErrInvalidTransition = eris.New("invalid review transition")
	// ErrReviewIncomplete is returned when span review is finished with
	// undecided comparisons.
	ErrReviewIncomplete = eris.New("review incomplete")
	// ErrNoComparison is returned when the current stage has nothing to
	// review.
	ErrNoComparison = eris.New("no comparison to review")
)

// Option configures a Session.
type Option func(*Session)

// WithConsolidateOptions passes options to the node and span
// consolidators of the session.
func WithConsolidateOptions(opts ...consolidate.Option) Option {
	return func(s *Session) { s.opts = append(s.opts, opts...) }
}

// WithClock replaces time.Now for the timestamps of manual decisions and
// automatic merges.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
		s.opts = append(s.opts, consolidate.WithClock(now))
	}
}

// WithIDPrefix prefixes the identifiers the session allocates for merged
// and renumbered features.
func WithIDPrefix(prefix string) Option {
	return func(s *Session) {
		s.opts = append(s.opts, consolidate.WithAllocator(remap.NewAllocator(prefix)))
	}
}

// Session walks a reviewer through node review and span review. It is
// not safe for concurrent use.
type Session struct {
	opts []consolidate.Option
	now  func() time.Time

	stage Stage
	items []*Item
	cur   int

	a, b   *network.Network
	nodes  *consolidate.NodeConsolidator
	spans  *consolidate.SpanConsolidator
	output *network.Network
}

// NewSession starts a session in LayerSelect. All identifiers of the
// session come from one allocator unless the options supply one.
func NewSession(opts ...Option) *Session {
	s := &Session{
		opts: []consolidate.Option{consolidate.WithAllocator(remap.NewAllocator(""))},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stage returns the current stage.
func (s *Session) Stage() Stage {
	return s.stage
}

func (s *Session) invalid(command string) error {
	return eris.Wrapf(ErrInvalidTransition, "review: %s during %s", command, s.stage)
}

func (s *Session) reviewing() bool {
	return s.stage == NodeReview || s.stage == SpanReview
}

// nodesSettled reports whether node outcomes are final, which happens
// once the consolidated node networks exist.
func (s *Session) nodesSettled() bool {
	return s.stage == NodeReview && s.nodes.Remapper() != nil
}

// SelectNetworks compares the nodes of a and b and opens node review.
func (s *Session) SelectNetworks(ctx context.Context, a, b *network.Network) error {
	if s.stage != LayerSelect {
		return s.invalid("select networks")
	}
	if a == nil || b == nil {
		return eris.New("review: both networks are required")
	}
	nc, err := consolidate.NewNodeConsolidator(ctx, a, b, s.opts...)
	if err != nil {
		return eris.Wrap(err, "review: compare nodes")
	}
	s.a, s.b, s.nodes = a, b, nc
	s.load(nc.ComparisonsToAskUser())
	s.stage = NodeReview

	zap.L().Info("node review started",
		zap.Int("auto_consolidated", len(nc.AutoOutcomes())),
		zap.Int("to_review", len(s.items)),
	)
	return nil
}

// Items returns the comparisons of the current stage with their status.
func (s *Session) Items() []Item {
	out := make([]Item, len(s.items))
	for i, it := range s.items {
		out[i] = *it
	}
	return out
}

// Index returns the position of the current item.
func (s *Session) Index() int {
	return s.cur
}

// Counts tallies the items of the current stage.
func (s *Session) Counts() Counts {
	return count(s.items)
}

// Current returns the item under review.
func (s *Session) Current() (Item, error) {
	it, err := s.current("current")
	if err != nil {
		return Item{}, err
	}
	return *it, nil
}

func (s *Session) current(command string) (*Item, error) {
	if !s.reviewing() {
		return nil, s.invalid(command)
	}
	if len(s.items) == 0 {
		return nil, eris.Wrapf(ErrNoComparison, "review: %s during %s", command, s.stage)
	}
	return s.items[s.cur], nil
}

// Next moves to the following item, wrapping to the first.
func (s *Session) Next() error {
	if _, err := s.current("next"); err != nil {
		return err
	}
	s.cur = (s.cur + 1) % len(s.items)
	return nil
}

// Prev moves to the preceding item, wrapping to the last.
func (s *Session) Prev() error {
	if _, err := s.current("prev"); err != nil {
		return err
	}
	s.cur = (s.cur - 1 + len(s.items)) % len(s.items)
	return nil
}

// Reject marks the current item as rejected.
func (s *Session) Reject() error {
	it, err := s.current("reject")
	if err != nil {
		return err
	}
	if s.nodesSettled() {
		return s.invalid("reject")
	}
	it.Status = Rejected
	return nil
}

// Consolidate marks the current item as consolidated. When another item
// sharing a feature is already consolidated, c is asked to confirm; on
// confirmation every other item sharing a feature is rejected, otherwise
// nothing changes. It reports whether the item was marked.
func (s *Session) Consolidate(c Confirmer) (bool, error) {
	it, err := s.current("consolidate")
	if err != nil {
		return false, err
	}
	if s.nodesSettled() {
		return false, s.invalid("consolidate")
	}

	var conflicts []*Item
	for _, other := range s.items {
		if other != it && other.Status == Consolidated && it.sharesFeature(other) {
			conflicts = append(conflicts, other)
		}
	}
	if len(conflicts) > 0 {
		ok, err := c.Confirm(conflictPrompt(it, conflicts))
		if err != nil {
			return false, eris.Wrap(err, "review: confirm conflicting consolidation")
		}
		if !ok {
			return false, nil
		}
		for _, other := range s.items {
			if other != it && it.sharesFeature(other) {
				other.Status = Rejected
			}
		}
	}
	it.Status = Consolidated
	return true, nil
}

func conflictPrompt(it *Item, conflicts []*Item) string {
	c := conflicts[0].Comparison
	msg := fmt.Sprintf("%q / %q conflicts with the consolidation of %q / %q",
		it.Comparison.A.Name(), it.Comparison.B.Name(), c.A.Name(), c.B.Name())
	if len(conflicts) > 1 {
		msg += fmt.Sprintf(" and %d more", len(conflicts)-1)
	}
	return msg + ". Consolidate anyway and reject the others?"
}

// Finish ends the current review stage. Node review with undecided items
// asks c whether to reject them; if declined the stage is unchanged. Span
// review refuses to finish with undecided items. It reports whether the
// stage advanced.
func (s *Session) Finish(ctx context.Context, c Confirmer) (bool, error) {
	switch s.stage {
	case NodeReview:
		return s.finishNodes(ctx, c)
	case SpanReview:
		return s.finishSpans()
	default:
		return false, s.invalid("finish")
	}
}

func (s *Session) finishNodes(ctx context.Context, c Confirmer) (bool, error) {
	if pending := count(s.items).Pending; pending > 0 {
		ok, err := c.Confirm(fmt.Sprintf("%d node comparisons are undecided. Reject them all?", pending))
		if err != nil {
			return false, eris.Wrap(err, "review: confirm rejecting pending nodes")
		}
		if !ok {
			return false, nil
		}
	}

	// A retry after a failed span comparison reuses the consolidated nodes.
	if !s.nodesSettled() {
		if err := s.nodes.SetUserOutcomes(s.outcomes()); err != nil {
			return false, eris.Wrap(err, "review: record node outcomes")
		}
	}
	outA, outB, err := s.nodes.NetworksWithConsolidatedNodes()
	if err != nil {
		return false, eris.Wrap(err, "review: consolidate nodes")
	}
	s.rejectPending()

	sc, err := consolidate.NewSpanConsolidator(ctx, outA, outB, s.opts...)
	if err != nil {
		return false, eris.Wrap(err, "review: compare spans")
	}
	s.spans = sc

	if len(sc.ComparisonsToAskUser()) == 0 {
		out, err := sc.ConsolidatedNetwork(nil)
		if err != nil {
			return false, eris.Wrap(err, "review: consolidate spans")
		}
		s.finishOutput(out)
		return true, nil
	}
	s.load(sc.ComparisonsToAskUser())
	s.stage = SpanReview
	zap.L().Info("span review started", zap.Int("to_review", len(s.items)))
	return true, nil
}

func (s *Session) finishSpans() (bool, error) {
	if pending := count(s.items).Pending; pending > 0 {
		return false, eris.Wrapf(ErrReviewIncomplete, "review: %d span comparisons undecided", pending)
	}
	out, err := s.spans.ConsolidatedNetwork(s.outcomes())
	if err != nil {
		return false, eris.Wrap(err, "review: consolidate spans")
	}
	s.finishOutput(out)
	return true, nil
}

func (s *Session) finishOutput(out *network.Network) {
	s.output = out
	s.items, s.cur = nil, 0
	s.stage = Output
	zap.L().Info("review complete",
		zap.Int("nodes", len(out.Nodes())),
		zap.Int("spans", len(out.Spans())),
	)
}

// outcomes converts the items of the current stage into consolidation
// outcomes. Pending items count as rejected.
func (s *Session) outcomes() []consolidate.Outcome {
	now := s.now()
	out := make([]consolidate.Outcome, 0, len(s.items))
	for _, it := range s.items {
		if it.Status == Consolidated {
			out = append(out, consolidate.Consolidate(it.Comparison, true, now))
			continue
		}
		out = append(out, consolidate.Reject(it.Comparison))
	}
	return out
}

func (s *Session) rejectPending() {
	for _, it := range s.items {
		if it.Status == Pending {
			it.Status = Rejected
		}
	}
}

func (s *Session) load(comparisons []*compare.Comparison) {
	s.items = make([]*Item, len(comparisons))
	for i, c := range comparisons {
		s.items[i] = &Item{Comparison: c}
	}
	s.cur = 0
}

// Output returns the consolidated network once review is complete.
func (s *Session) Output() (*network.Network, error) {
	if s.stage != Output {
		return nil, s.invalid("output")
	}
	return s.output, nil
}

// Networks returns the two input networks.
func (s *Session) Networks() (a, b *network.Network) {
	return s.a, s.b
}

// Reasons returns the provenance of every merge made so far, nodes first.
func (s *Session) Reasons() []*consolidate.Reason {
	var out []*consolidate.Reason
	if s.nodes != nil {
		out = append(out, s.nodes.Reasons()...)
	}
	if s.spans != nil {
		out = append(out, s.spans.Reasons()...)
	}
	return out
}

// Stats returns the node and span consolidation counts.
func (s *Session) Stats() (nodes, spans consolidate.Stats) {
	if s.nodes != nil {
		nodes = s.nodes.Stats()
	}
	if s.spans != nil {
		spans = s.spans.Stats()
	}
	return nodes, spans
}
