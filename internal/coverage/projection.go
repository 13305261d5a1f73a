package coverage

import (
	"math"

	"gtfsqual.transitlab.cl/internal/utils"
)

// Projection is a local equirectangular projection centered on the feed's
// coordinate centroid. Buffering must happen in a planar metric space, never
// in degrees; for a single metro-area extent this projection keeps
// distortion well under the area tolerances the coverage metrics carry.
type Projection struct {
	originLat float64
	originLon float64
	cosLat    float64
}

// NewProjection centers a projection at (lat, lon).
func NewProjection(lat, lon float64) Projection {
	return Projection{
		originLat: lat,
		originLon: lon,
		cosLat:    math.Cos(lat * math.Pi / 180),
	}
}

// NewProjectionForStops centers a projection on the centroid of the given
// stops. With no stops the projection sits at the null island origin, which
// is fine: nothing will be projected through it.
func NewProjectionForStops(stops []stopPoint) Projection {
	if len(stops) == 0 {
		return NewProjection(0, 0)
	}
	var sumLat, sumLon float64
	for _, s := range stops {
		sumLat += s.lat
		sumLon += s.lon
	}
	n := float64(len(stops))
	return NewProjection(sumLat/n, sumLon/n)
}

// Project maps geodetic coordinates to planar meters east/north of the
// projection origin.
func (p Projection) Project(lat, lon float64) (x, y float64) {
	x = (lon - p.originLon) * (math.Pi / 180) * utils.RadiusOfEarthInMeters * p.cosLat
	y = (lat - p.originLat) * (math.Pi / 180) * utils.RadiusOfEarthInMeters
	return x, y
}

// Unproject maps planar meters back to geodetic coordinates.
func (p Projection) Unproject(x, y float64) (lat, lon float64) {
	lat = p.originLat + y/utils.RadiusOfEarthInMeters*(180/math.Pi)
	lon = p.originLon + x/(utils.RadiusOfEarthInMeters*p.cosLat)*(180/math.Pi)
	return lat, lon
}
