package network

import (
	geom "github.com/twpayne/go-geom"
)

// Kind distinguishes nodes from spans.
type Kind string

const (
	KindNode Kind = "node"
	KindSpan Kind = "span"
)

// Feature is a node or span with its domain identifier, geometry and
// properties.
type Feature struct {
	ID         string
	Kind       Kind
	Geometry   geom.T
	Properties Properties
}

// NewFeature builds a feature of the given kind. When id is empty the
// "id" property is used. Nested attributes delivered as JSON strings are
// decoded. The geometry is checked against the kind.
func NewFeature(kind Kind, id string, g geom.T, props map[string]any) (*Feature, error) {
	p := Properties(props).Clone()
	p.decodeNested()

	if id == "" {
		s, ok := p["id"].(string)
		if !ok {
			return nil, &InvalidFeatureError{Kind: kind, Reason: "missing string id"}
		}
		id = s
	}
	if id == "" {
		return nil, &InvalidFeatureError{Kind: kind, Reason: "empty id"}
	}
	p["id"] = id

	f := &Feature{ID: id, Kind: kind, Geometry: g, Properties: p}
	if err := f.checkGeometry(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Feature) checkGeometry() error {
	switch f.Kind {
	case KindNode:
		p, ok := f.Geometry.(*geom.Point)
		if !ok || p == nil {
			return &InvalidFeatureError{Kind: f.Kind, ID: f.ID, Reason: "node geometry must be a Point"}
		}
		if p.Empty() {
			return &InvalidFeatureError{Kind: f.Kind, ID: f.ID, Reason: "node Point is empty"}
		}
	case KindSpan:
		ls, ok := f.Geometry.(*geom.LineString)
		if !ok || ls == nil {
			return &InvalidFeatureError{Kind: f.Kind, ID: f.ID, Reason: "span geometry must be a LineString"}
		}
		if ls.NumCoords() < 2 {
			return &InvalidFeatureError{Kind: f.Kind, ID: f.ID, Reason: "span LineString needs at least two points"}
		}
	default:
		return &InvalidFeatureError{Kind: f.Kind, ID: f.ID, Reason: "unknown feature kind"}
	}
	return nil
}

// Name is the human readable name, falling back to the id.
func (f *Feature) Name() string {
	if n := f.Properties.String("name"); n != "" {
		return n
	}
	return f.ID
}

// Point returns the node location, or nil for spans.
func (f *Feature) Point() *geom.Point {
	p, _ := f.Geometry.(*geom.Point)
	return p
}

// StartID returns the id of the node a span starts at.
func (f *Feature) StartID() string {
	return f.Properties.String("start/id")
}

// EndID returns the id of the node a span ends at.
func (f *Feature) EndID() string {
	return f.Properties.String("end/id")
}

// Clone returns a deep copy of the feature. Geometries are immutable in
// practice and shared.
func (f *Feature) Clone() *Feature {
	return &Feature{
		ID:         f.ID,
		Kind:       f.Kind,
		Geometry:   f.Geometry,
		Properties: f.Properties.Clone(),
	}
}

// WithID returns a copy carrying a new identifier, in both the ID field
// and the "id" property.
func (f *Feature) WithID(id string) *Feature {
	c := f.Clone()
	c.ID = id
	c.Properties["id"] = id
	return c
}

// WithEndpoints returns a copy of a span with its start and end ids
// replaced. The rest of each endpoint object is kept.
func (f *Feature) WithEndpoints(startID, endID string) *Feature {
	c := f.Clone()
	c.Properties.Set("start/id", startID)
	c.Properties.Set("end/id", endID)
	return c
}
