package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/netmerge/internal/config"
	"github.com/sells-group/netmerge/internal/store"
)

func TestInitStore_SQLite(t *testing.T) {
	st, err := initStore(context.Background(), config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "runs.db"),
	})
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestInitStore_None(t *testing.T) {
	st, err := initStore(context.Background(), config.StoreConfig{Driver: "none"})
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = requireStore(context.Background(), config.StoreConfig{Driver: "none"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	_, err := initStore(context.Background(), config.StoreConfig{Driver: "mysql", DatabaseURL: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestSessionOptions(t *testing.T) {
	c := &config.Config{Consolidation: config.ConsolidationConfig{
		NodesMergeThreshold: 90,
		NodesAskThreshold:   40,
		NodesMatchRadiusKM:  5,
		ProximityHorizonKM:  50,
		SpatialPrune:        true,
		Concurrency:         2,
		IDPrefix:            "m",
	}}
	opts, err := sessionOptions(c)
	require.NoError(t, err)
	assert.Len(t, opts, 2)

	assert.Equal(t, 90.0, runSettings(c.Consolidation).MergeThreshold)
	assert.Equal(t, 40.0, runSettings(c.Consolidation).AskThreshold)
	assert.True(t, runSettings(c.Consolidation).SpatialPrune)

	c.Weights.Nodes = map[string]float64{"nosuchfield": 1}
	_, err = sessionOptions(c)
	assert.Error(t, err)
}
