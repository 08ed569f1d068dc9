package model

import (
	"time"

	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/netmerge/internal/merge"
	"github.com/sells-group/netmerge/internal/network"
)

// SRID of every stored geometry.
const SRID = 4326

// MergeRecord is the audit trail of one merged output feature.
type MergeRecord struct {
	ID            int64        `json:"id,omitempty" yaml:"id,omitempty"`
	RunID         string       `json:"run_id" yaml:"run_id"`
	Kind          network.Kind `json:"kind" yaml:"kind"`
	MergedID      string       `json:"merged_id" yaml:"merged_id"`
	PrimaryID     string       `json:"primary_id" yaml:"primary_id"`
	SecondaryID   string       `json:"secondary_id" yaml:"secondary_id"`
	Sources       []string     `json:"sources" yaml:"sources"`
	Confidence    float64      `json:"confidence" yaml:"confidence"`
	SimilarFields []string     `json:"similar_fields" yaml:"similar_fields"`
	Manual        bool         `json:"manual" yaml:"manual"`
	Geometry      []byte       `json:"-" yaml:"-"`
	GeneratedAt   time.Time    `json:"generated_at" yaml:"generated_at"`
	CreatedAt     time.Time    `json:"created_at" yaml:"created_at"`
}

// MergeRecords collects the provenance of every merged feature of n,
// nodes first. Geometries are encoded as little-endian EWKB.
func MergeRecords(runID string, n *network.Network) ([]MergeRecord, error) {
	var out []MergeRecord
	for _, features := range [][]*network.Feature{n.Nodes(), n.Spans()} {
		for _, f := range features {
			p, ok := merge.ProvenanceOf(f.Properties)
			if !ok {
				continue
			}
			g, err := EncodeGeometry(f.Geometry)
			if err != nil {
				return nil, eris.Wrapf(err, "model: merge record for %s %s", f.Kind, f.ID)
			}
			out = append(out, MergeRecord{
				RunID:         runID,
				Kind:          f.Kind,
				MergedID:      f.ID,
				PrimaryID:     p.WasDerivedFrom[0],
				SecondaryID:   p.WasDerivedFrom[1],
				Sources:       p.Sources,
				Confidence:    p.Confidence,
				SimilarFields: p.SimilarFields,
				Manual:        p.Manual,
				Geometry:      g,
				GeneratedAt:   p.GeneratedAt,
			})
		}
	}
	return out, nil
}

// EncodeGeometry marshals g as EWKB with SRID 4326.
func EncodeGeometry(g geom.T) ([]byte, error) {
	var withSRID geom.T
	switch t := g.(type) {
	case *geom.Point:
		withSRID = t.Clone().SetSRID(SRID)
	case *geom.LineString:
		withSRID = t.Clone().SetSRID(SRID)
	default:
		return nil, eris.Errorf("model: unsupported geometry %T", g)
	}
	data, err := ewkb.Marshal(withSRID, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "model: encode EWKB")
	}
	return data, nil
}

// DecodeGeometry parses EWKB written by EncodeGeometry.
func DecodeGeometry(data []byte) (geom.T, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "model: decode EWKB")
	}
	return g, nil
}
