package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/netmerge/internal/geojson"
	"github.com/sells-group/netmerge/internal/network"
	"github.com/sells-group/netmerge/internal/store"
)

const nodesA = `{"type": "FeatureCollection", "features": [
  {"type": "Feature", "id": "a1", "geometry": {"type": "Point", "coordinates": [-1.5491, 53.8008]}, "properties": {"name": "Leeds"}},
  {"type": "Feature", "id": "a2", "geometry": {"type": "Point", "coordinates": [-1.0815, 53.96]}, "properties": {"name": "York"}}
]}`

const nodesB = `{"type": "FeatureCollection", "features": [
  {"type": "Feature", "id": "b1", "geometry": {"type": "Point", "coordinates": [-1.5491, 53.8008]}, "properties": {"name": "Leeds"}},
  {"type": "Feature", "id": "b2", "geometry": {"type": "Point", "coordinates": [-0.3274, 53.7457]}, "properties": {"name": "Hull"}}
]}`

// testNetworks returns two networks sharing one node (Leeds). With the
// default thresholds that pair is the only one asked about.
func testNetworks(t *testing.T) (*network.Network, *network.Network) {
	t.Helper()
	a, err := geojson.DecodeNetwork(strings.NewReader(nodesA), nil, "a")
	require.NoError(t, err)
	b, err := geojson.DecodeNetwork(strings.NewReader(nodesB), nil, "b")
	require.NoError(t, err)
	return a, b
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}
