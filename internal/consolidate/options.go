package consolidate

import (
	"time"

	"github.com/sells-group/netmerge/internal/compare"
	"github.com/sells-group/netmerge/internal/network"
	"github.com/sells-group/netmerge/internal/remap"
)

// Defaults for the node classifier.
const (
	DefaultMergeThreshold = 100.0
	DefaultAskThreshold   = 0.0
	DefaultMatchRadiusKM  = 10.0
)

type options struct {
	thresholds  compare.Thresholds
	scorer      *compare.Scorer
	alloc       *remap.Allocator
	prune       bool
	concurrency int
	now         func() time.Time
	description *network.Description
}

// Option configures a consolidator.
type Option func(*options)

// WithThresholds sets the node classifier thresholds.
func WithThresholds(t compare.Thresholds) Option {
	return func(o *options) { o.thresholds = t }
}

// WithScorer sets the scorer, e.g. one with configured weights.
func WithScorer(s *compare.Scorer) Option {
	return func(o *options) { o.scorer = s }
}

// WithAllocator shares the run's identifier allocator.
func WithAllocator(a *remap.Allocator) Option {
	return func(o *options) { o.alloc = a }
}

// WithSpatialPrune enables skipping node pairs outside the match radius
// using the spatial index.
func WithSpatialPrune(enabled bool) Option {
	return func(o *options) { o.prune = enabled }
}

// WithConcurrency bounds the number of concurrent scoring workers.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithClock replaces time.Now for provenance timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithDescription sets the description of the consolidated network.
func WithDescription(d network.Description) Option {
	return func(o *options) { o.description = &d }
}

func buildOptions(opts []Option) options {
	o := options{
		thresholds: compare.Thresholds{
			MergeAbove:    DefaultMergeThreshold,
			AskAbove:      DefaultAskThreshold,
			MatchRadiusKM: DefaultMatchRadiusKM,
		},
		prune:       true,
		concurrency: 4,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.scorer == nil {
		o.scorer = compare.NewScorer()
	}
	if o.alloc == nil {
		o.alloc = remap.NewAllocator("")
	}
	return o
}

func sources(a, b *network.Network) []string {
	return []string{a.Description.ID, b.Description.ID}
}
