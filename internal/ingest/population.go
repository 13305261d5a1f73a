package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gtfsqual.transitlab.cl/internal/coverage"
)

// LoadPopulationPoints reads a population point set from a CSV file with a
// lat,lon[,weight] header. Rows with a missing weight default to 1.
func LoadPopulationPoints(path string) ([]coverage.WeightedPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening population source: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading population header: %w", err)
	}
	latCol, lonCol, weightCol := -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "lat", "latitude":
			latCol = i
		case "lon", "lng", "longitude":
			lonCol = i
		case "weight", "population", "pop":
			weightCol = i
		}
	}
	if latCol < 0 || lonCol < 0 {
		return nil, fmt.Errorf("population source %s is missing lat/lon columns", path)
	}

	var points []coverage.WeightedPoint
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading population row: %w", err)
		}
		line++
		if latCol >= len(record) || lonCol >= len(record) {
			return nil, fmt.Errorf("population source %s line %d: short row", path, line)
		}
		lat, err := strconv.ParseFloat(record[latCol], 64)
		if err != nil {
			return nil, fmt.Errorf("population source %s line %d: bad latitude: %w", path, line, err)
		}
		lon, err := strconv.ParseFloat(record[lonCol], 64)
		if err != nil {
			return nil, fmt.Errorf("population source %s line %d: bad longitude: %w", path, line, err)
		}
		weight := 1.0
		if weightCol >= 0 && weightCol < len(record) && record[weightCol] != "" {
			weight, err = strconv.ParseFloat(record[weightCol], 64)
			if err != nil {
				return nil, fmt.Errorf("population source %s line %d: bad weight: %w", path, line, err)
			}
		}
		points = append(points, coverage.WeightedPoint{Lat: lat, Lon: lon, Weight: weight})
	}
	return points, nil
}
