package geojson

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/sells-group/netmerge/internal/network"
)

const nodesDoc = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "id": "n1",
      "geometry": {"type": "Point", "coordinates": [-1.5491, 53.8008]},
      "properties": {
        "name": "Leeds",
        "featureType": "node",
        "network": "{\"id\": \"net-a\", \"name\": \"Network A\"}",
        "location": "{\"address\": {\"country\": \"GB\"}}"
      }
    },
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [-1.0815, 53.96]},
      "properties": {"id": "n2", "name": "York"}
    }
  ]
}`

const spansDoc = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "id": "s1",
      "geometry": {"type": "LineString", "coordinates": [[-1.5491, 53.8008], [-1.0815, 53.96]]},
      "properties": {"start": {"id": "n1"}, "end": {"id": "n2"}, "capacity": 10}
    }
  ]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestDecodeFeatures_Nodes(t *testing.T) {
	features, err := DecodeFeatures(strings.NewReader(nodesDoc), network.KindNode)
	require.NoError(t, err)
	require.Len(t, features, 2)

	assert.Equal(t, "n1", features[0].ID)
	assert.Equal(t, "GB", features[0].Properties.String("location/address/country"))
	assert.Equal(t, "net-a", features[0].Properties.String("network/id"))
	assert.NotContains(t, features[0].Properties, FeatureTypeKey)

	assert.Equal(t, "n2", features[1].ID, "id falls back to the id property")
	assert.InDelta(t, 53.96, features[1].Point().Y(), 1e-9)
}

func TestDecodeFeatures_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		kind network.Kind
		is   error
	}{
		{name: "not json", doc: `{"type":`, kind: network.KindNode},
		{name: "not a collection", doc: `{"type": "Feature"}`, kind: network.KindNode},
		{
			name: "null geometry",
			doc:  `{"type":"FeatureCollection","features":[{"type":"Feature","id":"x","geometry":null,"properties":{}}]}`,
			kind: network.KindNode,
			is:   network.ErrInvalidFeature,
		},
		{
			name: "wrong geometry for kind",
			doc:  nodesDoc,
			kind: network.KindSpan,
			is:   network.ErrInvalidFeature,
		},
		{
			name: "featureType mismatch",
			doc:  `{"type":"FeatureCollection","features":[{"type":"Feature","id":"x","geometry":{"type":"Point","coordinates":[0,0]},"properties":{"featureType":"span"}}]}`,
			kind: network.KindNode,
			is:   network.ErrInvalidFeature,
		},
		{
			name: "missing id",
			doc:  `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]},"properties":{}}]}`,
			kind: network.KindNode,
			is:   network.ErrInvalidFeature,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFeatures(strings.NewReader(tt.doc), tt.kind)
			require.Error(t, err)
			if tt.is != nil {
				assert.True(t, errors.Is(err, tt.is), "got %v", err)
			}
		})
	}
}

func TestReadNetwork(t *testing.T) {
	dir := t.TempDir()
	nodes := writeFile(t, dir, "a-nodes.geojson", nodesDoc)
	spans := writeFile(t, dir, "a-spans.geojson", spansDoc)

	n, err := ReadNetwork(nodes, spans)
	require.NoError(t, err)
	assert.Equal(t, network.Description{ID: "net-a", Name: "Network A"}, n.Description)
	assert.Len(t, n.Nodes(), 2)
	require.Len(t, n.Spans(), 1)
	assert.Equal(t, "n1", n.Spans()[0].StartID())
	assert.Empty(t, n.DanglingSpans())

	_, err = ReadNetwork(filepath.Join(dir, "missing.geojson"), "")
	assert.Error(t, err)
}

func TestReadNetwork_DescriptionFromFileName(t *testing.T) {
	dir := t.TempDir()
	doc := `{"type":"FeatureCollection","features":[{"type":"Feature","id":"n1","geometry":{"type":"Point","coordinates":[0,0]},"properties":{}}]}`
	nodes := writeFile(t, dir, "backbone.geojson", doc)

	n, err := ReadNetwork(nodes, "")
	require.NoError(t, err)
	assert.Equal(t, "backbone", n.Description.ID)
	assert.Empty(t, n.Spans())
}

func TestDecodeNetwork(t *testing.T) {
	n, err := DecodeNetwork(strings.NewReader(nodesDoc), strings.NewReader(spansDoc), "upload")
	require.NoError(t, err)
	assert.Equal(t, "net-a", n.Description.ID)
	assert.Len(t, n.Spans(), 1)

	doc := `{"type":"FeatureCollection","features":[{"type":"Feature","id":"x","geometry":{"type":"Point","coordinates":[1,2]},"properties":{}}]}`
	n, err = DecodeNetwork(strings.NewReader(doc), nil, "upload")
	require.NoError(t, err)
	assert.Equal(t, network.Description{ID: "upload", Name: "upload"}, n.Description)
	assert.Empty(t, n.Spans())

	_, err = DecodeNetwork(strings.NewReader(doc), strings.NewReader(nodesDoc), "upload")
	var invalid *network.InvalidFeatureError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, network.KindSpan, invalid.Kind)
}

func TestWriteNetwork(t *testing.T) {
	dir := t.TempDir()
	in, err := ReadNetwork(writeFile(t, dir, "n.geojson", nodesDoc), writeFile(t, dir, "s.geojson", spansDoc))
	require.NoError(t, err)
	in.Description = network.Description{ID: "merged", Name: "Merged"}

	var nodes, spans bytes.Buffer
	require.NoError(t, WriteNetwork(&nodes, &spans, in))

	doc := gjson.Parse(nodes.String())
	assert.Equal(t, "FeatureCollection", doc.Get("type").String())
	assert.Equal(t, int64(2), doc.Get("features.#").Int())
	assert.Equal(t, "node", doc.Get("features.0.properties.featureType").String())
	assert.Equal(t, "merged", doc.Get("features.0.properties.network.id").String())
	assert.Equal(t, "n1", doc.Get("features.0.id").String())

	sdoc := gjson.Parse(spans.String())
	assert.Equal(t, "span", sdoc.Get("features.0.properties.featureType").String())
	assert.Equal(t, "LineString", sdoc.Get("features.0.geometry.type").String())

	// Written output reads back as the same network.
	back, err := ReadNetwork(
		writeFile(t, dir, "out-nodes.geojson", nodes.String()),
		writeFile(t, dir, "out-spans.geojson", spans.String()),
	)
	require.NoError(t, err)
	assert.Equal(t, in.Description, back.Description)
	assert.Len(t, back.Nodes(), 2)
	assert.Equal(t, 10.0, back.Spans()[0].Properties["capacity"])
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	in, err := ReadNetwork(writeFile(t, dir, "n.geojson", nodesDoc), "")
	require.NoError(t, err)

	nodesPath := filepath.Join(dir, "out", "nodes.geojson")
	spansPath := filepath.Join(dir, "out", "spans.geojson")
	require.NoError(t, WriteFiles(nodesPath, spansPath, in))

	data, err := os.ReadFile(spansPath)
	require.NoError(t, err)
	assert.Equal(t, int64(0), gjson.GetBytes(data, "features.#").Int())
}
