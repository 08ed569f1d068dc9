package main

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/netmerge/internal/geojson"
	"github.com/sells-group/netmerge/internal/network"
	"github.com/sells-group/netmerge/internal/shapefile"
)

// loadNetwork reads a network from GeoJSON or, for .shp paths, from
// shapefiles. Both layers must use the same format.
func loadNetwork(nodesPath, spansPath string) (*network.Network, error) {
	if !shapefile.IsShapefile(nodesPath) {
		if spansPath != "" && shapefile.IsShapefile(spansPath) {
			return nil, eris.Errorf("load %s: span layer %s is a shapefile, node layer is not", nodesPath, spansPath)
		}
		return geojson.ReadNetwork(nodesPath, spansPath)
	}
	if spansPath != "" && !shapefile.IsShapefile(spansPath) {
		return nil, eris.Errorf("load %s: span layer %s is not a shapefile", nodesPath, spansPath)
	}
	return shapefile.ReadNetwork(nodesPath, spansPath)
}
