package compare

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/netmerge/internal/network"
)

// Pair is two features to compare, A from the first network.
type Pair struct {
	A, B *network.Feature
}

// ScoreAll scores pairs concurrently with at most concurrency workers.
// Results keep the order of pairs.
func (s *Scorer) ScoreAll(ctx context.Context, pairs []Pair, concurrency int) ([]*Comparison, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	out := make([]*Comparison, len(pairs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, p := range pairs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			c, err := s.Score(p.A, p.B)
			if err != nil {
				return err
			}
			out[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "compare: score pairs")
	}
	return out, nil
}
