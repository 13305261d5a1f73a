package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/OneBusAway/go-gtfs"

	"gtfsqual.transitlab.cl/internal/feed"
)

// relationFiles maps GTFS file names inside the archive to the relation
// slices of feed.Rows. Files not listed here are ignored.
var relationFiles = []string{
	"stops.txt",
	"routes.txt",
	"trips.txt",
	"stop_times.txt",
	"calendar.txt",
	"calendar_dates.txt",
	"shapes.txt",
}

// ReadRows extracts the relation tables from a zipped GTFS archive. Missing
// optional files leave their slice nil; required-relation enforcement
// happens in feed.FromRows.
func ReadRows(archive []byte) (feed.Rows, error) {
	var rows feed.Rows

	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return rows, fmt.Errorf("error opening GTFS archive: %w", err)
	}

	for _, name := range relationFiles {
		file := archiveFile(reader, name)
		if file == nil {
			continue
		}
		parsed, err := readCSVRows(file)
		if err != nil {
			return rows, fmt.Errorf("error reading %s: %w", name, err)
		}
		switch name {
		case "stops.txt":
			rows.Stops = parsed
		case "routes.txt":
			rows.Routes = parsed
		case "trips.txt":
			rows.Trips = parsed
		case "stop_times.txt":
			rows.StopTimes = parsed
		case "calendar.txt":
			rows.Calendar = parsed
		case "calendar_dates.txt":
			rows.CalendarDates = parsed
		case "shapes.txt":
			rows.Shapes = parsed
		}
	}
	return rows, nil
}

// Build parses the archive strictly into the validated feed model.
func Build(archive []byte) (*feed.Feed, error) {
	rows, err := ReadRows(archive)
	if err != nil {
		return nil, err
	}
	return feed.FromRows(rows)
}

// ParseStatic runs the archive through the go-gtfs parser. Used by feed
// inspection for its richer agency and warning reporting, and as the
// lenient import path for feeds the strict loader rejects.
func ParseStatic(archive []byte) (*gtfs.Static, error) {
	staticData, err := gtfs.ParseStatic(archive, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("error parsing GTFS data: %w", err)
	}
	return staticData, nil
}

func archiveFile(reader *zip.Reader, name string) *zip.File {
	for _, file := range reader.File {
		// Some publishers nest the tables one directory deep.
		if file.Name == name || strings.HasSuffix(file.Name, "/"+name) {
			return file
		}
	}
	return nil
}

func readCSVRows(file *zip.File) ([]feed.Row, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var rows []feed.Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(feed.Row, len(header))
		for i, value := range record {
			if i >= len(header) {
				break
			}
			row[header[i]] = strings.TrimSpace(value)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
