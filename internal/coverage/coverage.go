// Package coverage builds and unions per-stop access buffers into coverage
// regions and measures them.
package coverage

import (
	"fmt"
	"math"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/tidwall/rtree"

	"gtfsqual.transitlab.cl/internal/feed"
	"gtfsqual.transitlab.cl/internal/utils"
)

// bufferSegments is the number of edges approximating each stop's access
// disk. 32 keeps the inscribed-polygon area within 0.7% of the true disk.
const bufferSegments = 32

// Filter selects which stops contribute to a region. The zero value matches
// every stop.
type Filter struct {
	Modes    []feed.Mode
	RouteIDs []string
}

func (f Filter) empty() bool {
	return len(f.Modes) == 0 && len(f.RouteIDs) == 0
}

type stopPoint struct {
	id  string
	lat float64
	lon float64
}

// SelectStops resolves a filter against the feed: with a mode or route
// filter, a stop qualifies when at least one trip of a matching route calls
// at it.
func SelectStops(f *feed.Feed, filter Filter) []feed.Stop {
	if filter.empty() {
		return f.Stops
	}

	matchingRoutes := make(map[string]bool)
	for i := range f.Routes {
		r := &f.Routes[i]
		for _, mode := range filter.Modes {
			if r.Mode == mode {
				matchingRoutes[r.ID] = true
			}
		}
	}
	for _, id := range filter.RouteIDs {
		if _, ok := f.RouteByID(id); ok {
			matchingRoutes[id] = true
		}
	}

	servedStops := make(map[string]bool)
	for i := range f.Trips {
		t := &f.Trips[i]
		if !matchingRoutes[t.RouteID] {
			continue
		}
		for j := range t.StopTimes {
			servedStops[t.StopTimes[j].StopID] = true
		}
	}

	var stops []feed.Stop
	for i := range f.Stops {
		if servedStops[f.Stops[i].ID] {
			stops = append(stops, f.Stops[i])
		}
	}
	return stops
}

// Region is the union of per-stop access buffers. It is a derived value,
// recomputed wholesale each run.
type Region struct {
	Label        string
	RadiusMeters float64
	StopCount    int

	proj     Projection
	geometry geom.Geometry
	index    rtree.RTreeG[int]
	stops    []stopPoint
	bounds   []utils.CoordinateBounds
	bbox     utils.CoordinateBounds
}

// Compute buffers every stop by radius meters in a local planar projection
// and unions the buffers. Zero matching stops yields an empty region with
// area 0, not an error.
func Compute(label string, stops []feed.Stop, radius float64) (*Region, error) {
	points := make([]stopPoint, len(stops))
	for i := range stops {
		points[i] = stopPoint{id: stops[i].ID, lat: stops[i].Lat, lon: stops[i].Lon}
	}

	region := &Region{
		Label:        label,
		RadiusMeters: radius,
		StopCount:    len(points),
		proj:         NewProjectionForStops(points),
		stops:        points,
	}
	if len(points) == 0 || radius <= 0 {
		return region, nil
	}

	buffers := make([]geom.Geometry, len(points))
	region.bounds = make([]utils.CoordinateBounds, len(points))
	for i, p := range points {
		x, y := region.proj.Project(p.lat, p.lon)
		buffers[i] = diskPolygon(x, y, radius).AsGeometry()
		region.bounds[i] = utils.BoundsAround(p.lat, p.lon, radius)
		if i == 0 {
			region.bbox = region.bounds[i]
		} else {
			region.bbox = region.bbox.Union(region.bounds[i])
		}
		region.index.Insert(
			[2]float64{region.bounds[i].MinLon, region.bounds[i].MinLat},
			[2]float64{region.bounds[i].MaxLon, region.bounds[i].MaxLat},
			i,
		)
	}

	union, err := geom.UnionMany(buffers)
	if err != nil {
		return nil, fmt.Errorf("error unioning stop buffers: %w", err)
	}
	region.geometry = union
	return region, nil
}

// diskPolygon approximates a disk of the given radius centered at (x, y)
// with a closed counter-clockwise ring.
func diskPolygon(x, y, radius float64) geom.Polygon {
	coords := make([]float64, 0, (bufferSegments+1)*2)
	for i := 0; i <= bufferSegments; i++ {
		angle := 2 * math.Pi * float64(i%bufferSegments) / bufferSegments
		coords = append(coords, x+radius*math.Cos(angle), y+radius*math.Sin(angle))
	}
	ring := geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
	return geom.NewPolygon([]geom.LineString{ring})
}

// Area returns the region's area in square meters. Overlapping buffers are
// counted once: the area comes from the polygon union, never a summation.
func (r *Region) Area() float64 {
	if r.geometry.IsEmpty() {
		return 0
	}
	return r.geometry.Area()
}

// diskApothem scales the buffer radius down to the apothem of the inscribed
// polygon. Points closer than that to a stop are inside the polygon without
// an exact geometry test.
var diskApothem = math.Cos(math.Pi / bufferSegments)

// Covers reports whether a geodetic point falls inside the region. The
// region's bounding box rejects far-away points, the per-stop spatial index
// accepts points within a stop's apothem distance, and only points in the
// remaining sliver reach the exact polygon test.
func (r *Region) Covers(lat, lon float64) bool {
	if r.StopCount == 0 {
		return false
	}
	if !r.bbox.Contains(lat, lon) {
		return false
	}

	candidate := false
	inside := false
	r.index.Search([2]float64{lon, lat}, [2]float64{lon, lat},
		func(min, max [2]float64, i int) bool {
			candidate = true
			s := r.stops[i]
			if utils.Distance(lat, lon, s.lat, s.lon) <= r.RadiusMeters*diskApothem {
				inside = true
				return false
			}
			return true
		})
	if inside {
		return true
	}
	if !candidate {
		return false
	}

	x, y := r.proj.Project(lat, lon)
	pt := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: x, Y: y}})
	return geom.Intersects(r.geometry, pt.AsGeometry())
}

// WeightedPoint is one population or point-of-interest sample.
type WeightedPoint struct {
	Lat    float64
	Lon    float64
	Weight float64
}

// WeightedCoverage returns the covered and total weight of the given
// points. The ratio covered/total is the population coverage percentage.
func (r *Region) WeightedCoverage(points []WeightedPoint) (covered, total float64) {
	for _, p := range points {
		w := p.Weight
		if w == 0 {
			w = 1
		}
		total += w
		if r.Covers(p.Lat, p.Lon) {
			covered += w
		}
	}
	return covered, total
}

// PolygonRings is one polygon of a region boundary in geodetic coordinates.
type PolygonRings struct {
	Exterior []feed.ShapePoint
	Holes    [][]feed.ShapePoint
}

// Polygons returns the region boundary as geodetic polygon rings for
// rendering and export. An empty region returns no polygons.
func (r *Region) Polygons() []PolygonRings {
	if r.StopCount == 0 || r.geometry.IsEmpty() {
		return nil
	}

	var polys []geom.Polygon
	switch r.geometry.Type() {
	case geom.TypePolygon:
		polys = append(polys, r.geometry.MustAsPolygon())
	case geom.TypeMultiPolygon:
		mp := r.geometry.MustAsMultiPolygon()
		for i := 0; i < mp.NumPolygons(); i++ {
			polys = append(polys, mp.PolygonN(i))
		}
	}

	rings := make([]PolygonRings, 0, len(polys))
	for _, poly := range polys {
		pr := PolygonRings{Exterior: r.unprojectRing(poly.ExteriorRing())}
		for i := 0; i < poly.NumInteriorRings(); i++ {
			pr.Holes = append(pr.Holes, r.unprojectRing(poly.InteriorRingN(i)))
		}
		rings = append(rings, pr)
	}
	return rings
}

func (r *Region) unprojectRing(ring geom.LineString) []feed.ShapePoint {
	seq := ring.Coordinates()
	points := make([]feed.ShapePoint, seq.Length())
	for i := 0; i < seq.Length(); i++ {
		xy := seq.GetXY(i)
		lat, lon := r.proj.Unproject(xy.X, xy.Y)
		points[i] = feed.ShapePoint{Lat: lat, Lon: lon}
	}
	return points
}
