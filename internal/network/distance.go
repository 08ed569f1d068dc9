package network

import (
	"math"

	geom "github.com/twpayne/go-geom"
)

// earthRadiusKM is the IUGG mean Earth radius.
const earthRadiusKM = 6371.0088

// DistanceKM returns the great-circle distance between two lon/lat points.
func DistanceKM(a, b *geom.Point) float64 {
	return haversineKM(a.X(), a.Y(), b.X(), b.Y())
}

func haversineKM(lon1, lat1, lon2, lat2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// kmPerDegree is slightly below one degree of arc on the haversine sphere,
// so search boxes always contain the true radius.
const kmPerDegree = 111.0

// box is a lon/lat rectangle.
type box struct {
	min, max [2]float64
}

// searchBoxes returns lon/lat boxes that together contain every point
// within km of (lon, lat). A box crossing the antimeridian is split into
// its parts on either side of it.
func searchBoxes(lon, lat, km float64) []box {
	dLat := km / kmPerDegree
	// widest longitude span occurs at the poleward edge of the box
	edge := math.Min(90, math.Abs(lat)+dLat)
	cos := math.Cos(edge * math.Pi / 180)
	dLon := 180.0
	if cos > 1e-6 {
		dLon = math.Min(180, dLat/cos)
	}
	minLat, maxLat := math.Max(-90, lat-dLat), math.Min(90, lat+dLat)

	west, east := lon-dLon, lon+dLon
	if dLon >= 180 || (west <= -180 && east >= 180) {
		return []box{{[2]float64{-180, minLat}, [2]float64{180, maxLat}}}
	}
	boxes := []box{{[2]float64{math.Max(-180, west), minLat}, [2]float64{math.Min(180, east), maxLat}}}
	if west < -180 {
		boxes = append(boxes, box{[2]float64{west + 360, minLat}, [2]float64{180, maxLat}})
	}
	if east > 180 {
		boxes = append(boxes, box{[2]float64{-180, minLat}, [2]float64{east - 360, maxLat}})
	}
	return boxes
}
