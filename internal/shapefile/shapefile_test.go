package shapefile

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/netmerge/internal/network"
)

func writeNodes(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "exchanges.shp")
	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)

	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("id", 16),
		shp.StringField("name", 32),
		shp.FloatField("capacity", 10, 1),
	}))
	rows := []struct {
		id, name string
		x, y     float64
		capacity float64
	}{
		{"n1", "Leeds", -1.5491, 53.8008, 10},
		{"", "York", -1.0815, 53.96, 2.5},
	}
	for _, row := range rows {
		i := int(w.Write(&shp.Point{X: row.x, Y: row.y}))
		require.NoError(t, w.WriteAttribute(i, 0, row.id))
		require.NoError(t, w.WriteAttribute(i, 1, row.name))
		require.NoError(t, w.WriteAttribute(i, 2, row.capacity))
	}
	w.Close()
	return path
}

func writeSpans(t *testing.T, dir string, parts [][]shp.Point) string {
	t.Helper()
	path := filepath.Join(dir, "routes.shp")
	w, err := shp.Create(path, shp.POLYLINE)
	require.NoError(t, err)

	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("id", 16),
		shp.StringField("start_id", 16),
		shp.StringField("end_id", 16),
	}))
	i := int(w.Write(shp.NewPolyLine(parts)))
	require.NoError(t, w.WriteAttribute(i, 0, "s1"))
	require.NoError(t, w.WriteAttribute(i, 1, "n1"))
	require.NoError(t, w.WriteAttribute(i, 2, "exchanges-2"))
	w.Close()
	return path
}

func TestIsShapefile(t *testing.T) {
	assert.True(t, IsShapefile("a/b/nodes.shp"))
	assert.True(t, IsShapefile("NODES.SHP"))
	assert.False(t, IsShapefile("nodes.geojson"))
}

func TestReadFeatures_Points(t *testing.T) {
	path := writeNodes(t, t.TempDir())

	features, err := ReadFeatures(path, network.KindNode)
	require.NoError(t, err)
	require.Len(t, features, 2)

	leeds := features[0]
	assert.Equal(t, "n1", leeds.ID)
	assert.Equal(t, "Leeds", leeds.Name())
	assert.InDelta(t, -1.5491, leeds.Point().X(), 1e-9)
	assert.InDelta(t, 53.8008, leeds.Point().Y(), 1e-9)
	assert.Equal(t, 10.0, leeds.Properties.Get("capacity"))

	york := features[1]
	assert.Equal(t, "exchanges-2", york.ID, "records without an id are numbered after the file")
	assert.Equal(t, 2.5, york.Properties.Get("capacity"))
}

func TestReadNetwork(t *testing.T) {
	dir := t.TempDir()
	nodes := writeNodes(t, dir)
	spans := writeSpans(t, dir, [][]shp.Point{{{X: -1.5491, Y: 53.8008}, {X: -1.0815, Y: 53.96}}})

	n, err := ReadNetwork(nodes, spans)
	require.NoError(t, err)
	assert.Equal(t, "exchanges", n.Description.ID)
	require.Len(t, n.Spans(), 1)

	s := n.Spans()[0]
	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, "n1", s.StartID())
	assert.Equal(t, "exchanges-2", s.EndID())
	assert.Empty(t, n.DanglingSpans())
}

func TestReadFeatures_MultiPartSpan(t *testing.T) {
	path := writeSpans(t, t.TempDir(), [][]shp.Point{
		{{X: 0, Y: 0}, {X: 1, Y: 0}},
		{{X: 2, Y: 0}, {X: 3, Y: 0}},
	})

	_, err := ReadFeatures(path, network.KindSpan)
	require.Error(t, err)
	var invalid *network.InvalidFeatureError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "s1", invalid.ID)
}

func TestReadFeatures_WrongKind(t *testing.T) {
	path := writeNodes(t, t.TempDir())

	_, err := ReadFeatures(path, network.KindSpan)
	var invalid *network.InvalidFeatureError
	assert.True(t, errors.As(err, &invalid))
}

func TestReadFeatures_MissingFile(t *testing.T) {
	_, err := ReadFeatures(filepath.Join(t.TempDir(), "missing.shp"), network.KindNode)
	assert.Error(t, err)
}

func TestValueOf(t *testing.T) {
	assert.Equal(t, 12.5, valueOf('N', "12.5"))
	assert.Equal(t, "abc", valueOf('N', "abc"))
	assert.Equal(t, true, valueOf('L', "T"))
	assert.Equal(t, false, valueOf('L', "n"))
	assert.Equal(t, "?", valueOf('L', "?"))
	assert.Equal(t, `{"a":1}`, valueOf('C', `{"a":1}`))
}
