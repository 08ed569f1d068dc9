package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/netmerge/internal/config"
	"github.com/sells-group/netmerge/internal/consolidate"
	"github.com/sells-group/netmerge/internal/model"
	"github.com/sells-group/netmerge/internal/resilience"
	"github.com/sells-group/netmerge/internal/review"
	"github.com/sells-group/netmerge/internal/store"
)

// initStore opens and migrates the configured run store. It returns nil
// when the store is disabled.
func initStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Driver {
	case "none":
		return nil, nil
	case "sqlite":
		st, err = store.NewSQLite(c.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.DatabaseURL, &store.PoolConfig{MaxConns: c.MaxConns, MinConns: c.MinConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	r := c.Retry
	return store.WithRetry(st, c.Driver, resilience.FromSettings(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs)), nil
}

// requireStore opens the run store for commands that cannot work without
// one.
func requireStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("run store is disabled (store.driver: none)")
	}
	return st, nil
}

// sessionOptions configures review sessions from the loaded config.
func sessionOptions(c *config.Config) ([]review.Option, error) {
	scorer, err := c.Scorer()
	if err != nil {
		return nil, err
	}
	cc := c.Consolidation
	return []review.Option{
		review.WithIDPrefix(cc.IDPrefix),
		review.WithConsolidateOptions(
			consolidate.WithScorer(scorer),
			consolidate.WithThresholds(cc.Thresholds()),
			consolidate.WithSpatialPrune(cc.SpatialPrune),
			consolidate.WithConcurrency(cc.Concurrency),
		),
	}, nil
}

func runSettings(c config.ConsolidationConfig) model.RunSettings {
	return model.RunSettings{
		MergeThreshold: c.NodesMergeThreshold,
		AskThreshold:   c.NodesAskThreshold,
		MatchRadiusKM:  c.NodesMatchRadiusKM,
		SpatialPrune:   c.SpatialPrune,
	}
}
