// Package geojson reads and writes networks as pairs of GeoJSON
// FeatureCollections, one for nodes and one for spans.
package geojson

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	gogeojson "github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/netmerge/internal/network"
)

// FeatureTypeKey is the property naming the kind of an output feature.
const FeatureTypeKey = "featureType"

// DecodeFeatures reads a FeatureCollection of one kind.
func DecodeFeatures(r io.Reader, kind network.Kind) ([]*network.Feature, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "geojson: read")
	}
	if err := precheck(data, kind); err != nil {
		return nil, err
	}

	var fc gogeojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "geojson: decode feature collection")
	}

	out := make([]*network.Feature, 0, len(fc.Features))
	for i, gf := range fc.Features {
		if ft, ok := gf.Properties[FeatureTypeKey].(string); ok && ft != "" && ft != string(kind) {
			return nil, &network.InvalidFeatureError{
				Kind: kind, ID: gf.ID, Index: i,
				Reason: "featureType is " + ft,
			}
		}
		f, err := network.NewFeature(kind, gf.ID, gf.Geometry, gf.Properties)
		if err != nil {
			return nil, eris.Wrapf(err, "geojson: feature %d", i)
		}
		delete(f.Properties, FeatureTypeKey)
		out = append(out, f)
	}
	return out, nil
}

// precheck rejects documents that are not a FeatureCollection or carry
// features without a geometry, which the codec cannot decode.
func precheck(data []byte, kind network.Kind) error {
	if !gjson.ValidBytes(data) {
		return eris.New("geojson: invalid JSON")
	}
	doc := gjson.ParseBytes(data)
	if t := doc.Get("type").String(); t != "FeatureCollection" {
		return eris.Errorf("geojson: expected a FeatureCollection, got %q", t)
	}
	var err error
	doc.Get("features").ForEach(func(key, f gjson.Result) bool {
		if !f.Get("geometry").IsObject() {
			err = &network.InvalidFeatureError{
				Kind:   kind,
				ID:     f.Get("id").String(),
				Index:  int(key.Int()),
				Reason: "missing geometry",
			}
			return false
		}
		return true
	})
	return err
}

// ReadFeatures reads a FeatureCollection file of one kind.
func ReadFeatures(path string, kind network.Kind) ([]*network.Feature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geojson: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	features, err := DecodeFeatures(f, kind)
	if err != nil {
		return nil, eris.Wrapf(err, "geojson: %s", path)
	}
	return features, nil
}

// ReadNetwork loads a network from its node file and optional span file.
// The description comes from the "network" property of the first feature,
// falling back to the node file name.
func ReadNetwork(nodesPath, spansPath string) (*network.Network, error) {
	nodes, err := ReadFeatures(nodesPath, network.KindNode)
	if err != nil {
		return nil, err
	}
	var spans []*network.Feature
	if spansPath != "" {
		spans, err = ReadFeatures(spansPath, network.KindSpan)
		if err != nil {
			return nil, err
		}
	}

	base := strings.TrimSuffix(filepath.Base(nodesPath), filepath.Ext(nodesPath))
	n, err := assemble(nodes, spans, base)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("network loaded",
		zap.String("network", n.Description.Name),
		zap.String("nodes_path", nodesPath),
		zap.Int("nodes", len(nodes)),
		zap.Int("spans", len(spans)),
	)
	return n, nil
}

// DecodeNetwork builds a network from a node FeatureCollection and an
// optional span FeatureCollection. fallback names the network when no
// feature carries a "network" property.
func DecodeNetwork(nodes, spans io.Reader, fallback string) (*network.Network, error) {
	nf, err := DecodeFeatures(nodes, network.KindNode)
	if err != nil {
		return nil, eris.Wrap(err, "geojson: nodes")
	}
	var sf []*network.Feature
	if spans != nil {
		if sf, err = DecodeFeatures(spans, network.KindSpan); err != nil {
			return nil, eris.Wrap(err, "geojson: spans")
		}
	}
	return assemble(nf, sf, fallback)
}

func assemble(nodes, spans []*network.Feature, fallback string) (*network.Network, error) {
	desc := describe(append(append([]*network.Feature(nil), nodes...), spans...), fallback)
	return network.FromFeatures(nodes, spans, desc)
}

func describe(features []*network.Feature, fallback string) network.Description {
	for _, f := range features {
		id := f.Properties.String("network/id")
		name := f.Properties.String("network/name")
		if id != "" || name != "" {
			if id == "" {
				id = name
			}
			if name == "" {
				name = id
			}
			return network.Description{ID: id, Name: name}
		}
	}
	return network.Description{ID: fallback, Name: fallback}
}

// Encode renders features as a FeatureCollection. Every feature carries
// its featureType and, when desc is set, the network it belongs to.
func Encode(features []*network.Feature, desc *network.Description) *gogeojson.FeatureCollection {
	fc := &gogeojson.FeatureCollection{Features: make([]*gogeojson.Feature, 0, len(features))}
	for _, f := range features {
		props := f.Properties.Clone()
		props[FeatureTypeKey] = string(f.Kind)
		if desc != nil {
			props["network"] = map[string]any{"id": desc.ID, "name": desc.Name}
		}
		fc.Features = append(fc.Features, &gogeojson.Feature{
			ID:         f.ID,
			Geometry:   f.Geometry,
			Properties: props,
		})
	}
	return fc
}

// WriteFeatures writes features as an indented FeatureCollection.
func WriteFeatures(w io.Writer, features []*network.Feature, desc *network.Description) error {
	data, err := json.MarshalIndent(Encode(features, desc), "", "  ")
	if err != nil {
		return eris.Wrap(err, "geojson: encode feature collection")
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return eris.Wrap(err, "geojson: write feature collection")
	}
	return nil
}

// WriteNetwork writes the nodes and spans of n to two writers.
func WriteNetwork(nodes, spans io.Writer, n *network.Network) error {
	if err := WriteFeatures(nodes, n.Nodes(), &n.Description); err != nil {
		return eris.Wrap(err, "geojson: nodes")
	}
	if err := WriteFeatures(spans, n.Spans(), &n.Description); err != nil {
		return eris.Wrap(err, "geojson: spans")
	}
	return nil
}

// WriteFiles writes n to a node file and a span file, creating parent
// directories as needed.
func WriteFiles(nodesPath, spansPath string, n *network.Network) error {
	for _, p := range []string{nodesPath, spansPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return eris.Wrapf(err, "geojson: create directory for %s", p)
		}
	}
	nf, err := os.Create(nodesPath)
	if err != nil {
		return eris.Wrapf(err, "geojson: create %s", nodesPath)
	}
	defer nf.Close() //nolint:errcheck
	sf, err := os.Create(spansPath)
	if err != nil {
		return eris.Wrapf(err, "geojson: create %s", spansPath)
	}
	defer sf.Close() //nolint:errcheck

	if err := WriteNetwork(nf, sf, n); err != nil {
		return err
	}
	if err := nf.Close(); err != nil {
		return eris.Wrapf(err, "geojson: close %s", nodesPath)
	}
	if err := sf.Close(); err != nil {
		return eris.Wrapf(err, "geojson: close %s", spansPath)
	}
	return nil
}
