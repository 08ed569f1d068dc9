package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	geom "github.com/twpayne/go-geom"

	"github.com/sells-group/netmerge/internal/network"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Summarise a network and look up nodes near a point",
	RunE: func(cmd *cobra.Command, _ []string) error {
		nodesPath, _ := cmd.Flags().GetString("nodes")
		spansPath, _ := cmd.Flags().GetString("spans")
		near, _ := cmd.Flags().GetString("near")
		k, _ := cmd.Flags().GetInt("k")
		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format, true); err != nil {
			return err
		}

		n, err := loadNetwork(nodesPath, spansPath)
		if err != nil {
			return err
		}
		summary := summarize(n)

		if near != "" {
			p, err := parsePoint(near)
			if err != nil {
				return err
			}
			summary.Nearest = nearest(n, p, k)
		}

		if format != "table" {
			return encode(cmd.OutOrStdout(), format, summary)
		}
		formatSummary(cmd.OutOrStdout(), summary)
		return nil
	},
}

func init() {
	inspectCmd.Flags().String("nodes", "", "node layer (GeoJSON FeatureCollection or .shp)")
	inspectCmd.Flags().String("spans", "", "span layer (optional)")
	inspectCmd.Flags().String("near", "", "list the nodes nearest to lon,lat")
	inspectCmd.Flags().Int("k", 5, "number of nodes listed by --near")
	inspectCmd.Flags().String("format", "table", "output format (table, json, yaml)")
	_ = inspectCmd.MarkFlagRequired("nodes")
	rootCmd.AddCommand(inspectCmd)
}

// networkSummary describes a loaded network.
type networkSummary struct {
	Network  network.Description `json:"network" yaml:"network"`
	Nodes    int                 `json:"nodes" yaml:"nodes"`
	Spans    int                 `json:"spans" yaml:"spans"`
	Dangling []string            `json:"dangling_spans" yaml:"dangling_spans"`
	Bounds   []float64           `json:"bounds,omitempty" yaml:"bounds,omitempty"`
	Nearest  []nearNode          `json:"nearest,omitempty" yaml:"nearest,omitempty"`
}

type nearNode struct {
	ID         string  `json:"id" yaml:"id"`
	Name       string  `json:"name" yaml:"name"`
	DistanceKM float64 `json:"distance_km" yaml:"distance_km"`
}

func summarize(n *network.Network) networkSummary {
	s := networkSummary{
		Network:  n.Description,
		Nodes:    len(n.Nodes()),
		Spans:    len(n.Spans()),
		Dangling: n.DanglingSpans(),
	}
	if s.Dangling == nil {
		s.Dangling = []string{}
	}
	if s.Nodes > 0 {
		b := geom.NewBounds(geom.XY)
		for _, f := range n.Nodes() {
			b.Extend(f.Geometry)
		}
		s.Bounds = []float64{b.Min(0), b.Min(1), b.Max(0), b.Max(1)}
	}
	return s
}

func nearest(n *network.Network, p *geom.Point, k int) []nearNode {
	var out []nearNode
	for _, f := range n.NearestNodes(p, k) {
		out = append(out, nearNode{ID: f.ID, Name: f.Name(), DistanceKM: network.DistanceKM(p, f.Point())})
	}
	return out
}

// parsePoint reads "lon,lat".
func parsePoint(s string) (*geom.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, eris.Errorf("point %q must be lon,lat", s)
	}
	var coords [2]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "point %q", s)
		}
		coords[i] = v
	}
	if coords[0] < -180 || coords[0] > 180 || coords[1] < -90 || coords[1] > 90 {
		return nil, eris.Errorf("point %q is out of range", s)
	}
	return geom.NewPointFlat(geom.XY, coords[:]), nil
}

func formatSummary(out io.Writer, s networkSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Network:\t%s (%s)\n", s.Network.Name, s.Network.ID)
	_, _ = fmt.Fprintf(w, "Nodes:\t%d\n", s.Nodes)
	_, _ = fmt.Fprintf(w, "Spans:\t%d\n", s.Spans)
	_, _ = fmt.Fprintf(w, "Dangling spans:\t%d\n", len(s.Dangling))
	if len(s.Bounds) == 4 {
		_, _ = fmt.Fprintf(w, "Bounds:\t%.4f,%.4f %.4f,%.4f\n", s.Bounds[0], s.Bounds[1], s.Bounds[2], s.Bounds[3])
	}
	_ = w.Flush()

	if len(s.Nearest) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tDISTANCE KM")
	for _, n := range s.Nearest {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\n", n.ID, n.Name, n.DistanceKM)
	}
	_ = w.Flush()
}
