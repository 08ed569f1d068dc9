// Package shapefile reads network layers from ESRI shapefiles. Nodes come
// from Point layers and spans from single-part PolyLine layers; the dBASE
// attributes become feature properties.
package shapefile

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/netmerge/internal/network"
)

// Attribute columns with a fixed meaning. dBASE names are limited to ten
// characters, so span endpoints are flattened.
var pathOf = map[string]string{
	"start_id": "start/id",
	"end_id":   "end/id",
	"start_nm": "start/name",
	"end_nm":   "end/name",
}

// IsShapefile reports whether path names a .shp file.
func IsShapefile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".shp")
}

// ReadFeatures reads every record of the shapefile at path as a feature
// of the given kind. The "id" column provides the feature id; records
// without one are numbered after the file name.
func ReadFeatures(path string, kind network.Kind) ([]*network.Feature, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer r.Close() //nolint:errcheck

	fields := r.Fields()
	names := make([]string, len(fields))
	idCol := -1
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(names[i], "id") {
			idCol = i
		}
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var out []*network.Feature
	for r.Next() {
		n, shape := r.Shape()

		id := ""
		if idCol >= 0 {
			id = strings.TrimSpace(strings.TrimRight(r.Attribute(idCol), "\x00"))
		}
		if id == "" {
			id = fmt.Sprintf("%s-%d", base, n+1)
		}

		g, err := geometryOf(shape)
		if err != nil {
			return nil, &network.InvalidFeatureError{Kind: kind, ID: id, Reason: err.Error()}
		}

		props := make(map[string]any)
		for i, f := range fields {
			if i == idCol {
				continue
			}
			raw := strings.TrimSpace(strings.TrimRight(r.Attribute(i), "\x00"))
			if raw == "" {
				continue
			}
			setAttribute(props, names[i], valueOf(f.Fieldtype, raw))
		}

		feature, err := network.NewFeature(kind, id, g, props)
		if err != nil {
			return nil, err
		}
		out = append(out, feature)
	}
	if err := r.Err(); err != nil {
		return nil, eris.Wrapf(err, "shapefile: read %s", path)
	}

	zap.L().Debug("shapefile read",
		zap.String("path", path),
		zap.String("kind", string(kind)),
		zap.Int("features", len(out)),
	)
	return out, nil
}

// ReadNetwork reads a node layer and an optional span layer. The network
// is named after the node file.
func ReadNetwork(nodesPath, spansPath string) (*network.Network, error) {
	nodes, err := ReadFeatures(nodesPath, network.KindNode)
	if err != nil {
		return nil, err
	}
	var spans []*network.Feature
	if spansPath != "" {
		if spans, err = ReadFeatures(spansPath, network.KindSpan); err != nil {
			return nil, err
		}
	}
	name := strings.TrimSuffix(filepath.Base(nodesPath), filepath.Ext(nodesPath))
	return network.FromFeatures(nodes, spans, network.Description{ID: name, Name: name})
}

func geometryOf(shape shp.Shape) (geom.T, error) {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}), nil
	case *shp.PolyLine:
		if s.NumParts != 1 {
			return nil, eris.Errorf("polyline has %d parts, spans need exactly one", s.NumParts)
		}
		flat := make([]float64, 0, 2*len(s.Points))
		for _, p := range s.Points {
			flat = append(flat, p.X, p.Y)
		}
		return geom.NewLineStringFlat(geom.XY, flat), nil
	case nil:
		return nil, eris.New("record has no shape")
	default:
		return nil, eris.Errorf("unsupported shape type %T", shape)
	}
}

// valueOf converts a dBASE attribute to a number or boolean where the
// column type says so. Character data is kept as text; JSON in text
// columns is decoded by network.NewFeature.
func valueOf(fieldType byte, raw string) any {
	switch fieldType {
	case 'N', 'F':
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	case 'L':
		switch strings.ToUpper(raw) {
		case "T", "Y":
			return true
		case "F", "N":
			return false
		}
	}
	return raw
}

func setAttribute(props map[string]any, name string, v any) {
	path, ok := pathOf[strings.ToLower(name)]
	if !ok {
		props[name] = v
		return
	}
	network.Properties(props).Set(path, v)
}
