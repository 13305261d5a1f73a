// Package export renders run outputs for downstream consumers: a gzipped
// CSV fact table, GeoJSON coverage boundaries, and encoded polyline rings
// for lightweight map overlays.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	geojson "github.com/paulmach/go.geojson"
	"github.com/twpayne/go-polyline"

	"github.com/klauspost/compress/gzip"

	"gtfsqual.transitlab.cl/internal/aggregate"
	"gtfsqual.transitlab.cl/internal/coverage"
	"gtfsqual.transitlab.cl/internal/feed"
)

// WriteFactsCSV writes the fact table as gzipped CSV. Unavailable values
// are written as an empty cell, never as zero.
func WriteFactsCSV(w io.Writer, facts []aggregate.Fact) error {
	gz := gzip.NewWriter(w)
	cw := csv.NewWriter(gz)

	header := []string{"entity_type", "entity_id", "day_type", "window_label", "metric_name", "value"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("error writing facts header: %w", err)
	}
	for _, fact := range facts {
		value := ""
		if fact.Value.Valid {
			value = strconv.FormatFloat(fact.Value.Float64, 'f', -1, 64)
		}
		record := []string{
			string(fact.EntityType),
			fact.EntityID,
			string(fact.DayType),
			fact.WindowLabel,
			fact.Metric,
			value,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("error writing fact row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("error flushing facts csv: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("error closing facts gzip stream: %w", err)
	}
	return nil
}

// WriteRegionsGeoJSON writes one polygon feature per coverage region, holes
// included, in geodetic coordinates.
func WriteRegionsGeoJSON(w io.Writer, regions map[string]*coverage.Region) error {
	collection := geojson.NewFeatureCollection()
	for _, label := range sortedLabels(regions) {
		region := regions[label]
		for _, rings := range region.Polygons() {
			coords := make([][][]float64, 0, 1+len(rings.Holes))
			coords = append(coords, geojsonRing(rings.Exterior))
			for _, hole := range rings.Holes {
				coords = append(coords, geojsonRing(hole))
			}
			feature := geojson.NewPolygonFeature(coords)
			feature.SetProperty("label", label)
			feature.SetProperty("radius_meters", region.RadiusMeters)
			feature.SetProperty("stop_count", region.StopCount)
			collection.AddFeature(feature)
		}
	}
	encoded, err := json.MarshalIndent(collection, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding coverage geojson: %w", err)
	}
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("error writing coverage geojson: %w", err)
	}
	return nil
}

// EncodedRings returns each region's exterior rings as encoded polylines,
// keyed by region label. Holes are omitted; overlays that need them use
// the GeoJSON export.
func EncodedRings(regions map[string]*coverage.Region) map[string][]string {
	out := make(map[string][]string, len(regions))
	for label, region := range regions {
		var rings []string
		for _, polygon := range region.Polygons() {
			coords := make([][]float64, len(polygon.Exterior))
			for i, pt := range polygon.Exterior {
				coords[i] = []float64{pt.Lat, pt.Lon}
			}
			rings = append(rings, string(polyline.EncodeCoords(coords)))
		}
		out[label] = rings
	}
	return out
}

// EncodedRouteShapes returns each route's distinct trip shapes as encoded
// polylines, keyed by route id. Routes whose trips carry no shape are
// omitted.
func EncodedRouteShapes(f *feed.Feed) map[string][]string {
	out := make(map[string][]string)
	for i := range f.Routes {
		routeID := f.Routes[i].ID
		seen := make(map[string]bool)
		var lines []string
		for _, trip := range f.TripsForRoute(routeID) {
			if trip.ShapeID == "" || seen[trip.ShapeID] {
				continue
			}
			seen[trip.ShapeID] = true
			shape, ok := f.ShapeByID(trip.ShapeID)
			if !ok {
				continue
			}
			coords := make([][]float64, len(shape.Points))
			for j, pt := range shape.Points {
				coords[j] = []float64{pt.Lat, pt.Lon}
			}
			lines = append(lines, string(polyline.EncodeCoords(coords)))
		}
		if len(lines) > 0 {
			out[routeID] = lines
		}
	}
	return out
}

// PolylinesDocument is the encoded-polyline export payload: coverage region
// boundaries and route shapes in one overlay-sized file.
type PolylinesDocument struct {
	Regions     map[string][]string `json:"regions"`
	RouteShapes map[string][]string `json:"route_shapes"`
}

// WritePolylines writes region boundary rings and route shapes as encoded
// polylines in a single JSON document.
func WritePolylines(w io.Writer, f *feed.Feed, regions map[string]*coverage.Region) error {
	doc := PolylinesDocument{
		Regions:     EncodedRings(regions),
		RouteShapes: EncodedRouteShapes(f),
	}
	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding polylines export: %w", err)
	}
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("error writing polylines export: %w", err)
	}
	return nil
}

// RegionGeoJSON renders a single region as a standalone feature collection,
// the form the metrics store persists per region.
func RegionGeoJSON(label string, region *coverage.Region) (string, error) {
	collection := geojson.NewFeatureCollection()
	for _, rings := range region.Polygons() {
		coords := make([][][]float64, 0, 1+len(rings.Holes))
		coords = append(coords, geojsonRing(rings.Exterior))
		for _, hole := range rings.Holes {
			coords = append(coords, geojsonRing(hole))
		}
		feature := geojson.NewPolygonFeature(coords)
		feature.SetProperty("label", label)
		collection.AddFeature(feature)
	}
	encoded, err := json.Marshal(collection)
	if err != nil {
		return "", fmt.Errorf("error encoding region %q: %w", label, err)
	}
	return string(encoded), nil
}

func geojsonRing(points []feed.ShapePoint) [][]float64 {
	ring := make([][]float64, len(points))
	for i, pt := range points {
		ring[i] = []float64{pt.Lon, pt.Lat}
	}
	return ring
}

func sortedLabels(regions map[string]*coverage.Region) []string {
	labels := make([]string, 0, len(regions))
	for label := range regions {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
