package gtfs

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// Options controls how GTFS tables are decoded. It is handed to the parser
// and loader explicitly; nothing in this package keeps parse settings in
// package-level state.
type Options struct {
	// IntColumns names columns whose non-empty values must be integers.
	// A row violating this is rejected with an error naming the row.
	IntColumns []string

	// RequireRoutePatterns fails the parse when route_patterns.txt is absent.
	// Without it no representative trips exist and every stop partition is empty.
	RequireRoutePatterns bool
}

// DefaultOptions returns the column typing used for MBTA feeds.
func DefaultOptions() Options {
	return Options{
		IntColumns: []string{
			"direction_id", "stop_sequence", "exception_type",
			"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
			"route_type", "route_sort_order", "pickup_type", "drop_off_type",
			"route_pattern_typicality", "route_pattern_sort_order",
		},
		RequireRoutePatterns: true,
	}
}

func (o Options) intSet() map[string]bool {
	set := make(map[string]bool, len(o.IntColumns))
	for _, c := range o.IntColumns {
		set[c] = true
	}
	return set
}

// OpenSource opens a GTFS zip archive or an unpacked GTFS directory.
// The returned closer must be closed once parsing and import are done.
func OpenSource(path string) (fs.FS, io.Closer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("stat gtfs source: %w", err)
	}
	if info.IsDir() {
		return os.DirFS(path), nopCloser{}, nil
	}
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open zip: %w", err)
	}
	return r, r, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ParseFS parses the schedule tables from a GTFS source.
// stop_times.txt is NOT loaded here; it is streamed during import.
func ParseFS(fsys fs.FS, opts Options, logger *slog.Logger) (*Feed, error) {
	feed := &Feed{}
	ints := opts.intSet()

	var err error
	if feed.Routes, err = parseCSVFile[Route](fsys, "routes.txt", ints); err != nil {
		return nil, err
	}
	if feed.Trips, err = parseCSVFile[Trip](fsys, "trips.txt", ints); err != nil {
		return nil, err
	}
	if feed.Calendar, err = parseOptional[CalendarEntry](fsys, "calendar.txt", ints); err != nil {
		return nil, err
	}
	if feed.CalendarDates, err = parseOptional[CalendarDate](fsys, "calendar_dates.txt", ints); err != nil {
		return nil, err
	}
	if feed.FeedInfo, err = parseOptional[FeedInfo](fsys, "feed_info.txt", ints); err != nil {
		return nil, err
	}
	if opts.RequireRoutePatterns {
		feed.RoutePatterns, err = parseCSVFile[RoutePattern](fsys, "route_patterns.txt", ints)
	} else {
		feed.RoutePatterns, err = parseOptional[RoutePattern](fsys, "route_patterns.txt", ints)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("GTFS feed parsed",
		"routes", len(feed.Routes),
		"trips", len(feed.Trips),
		"calendar", len(feed.Calendar),
		"calendar_dates", len(feed.CalendarDates),
		"route_patterns", len(feed.RoutePatterns),
	)

	return feed, nil
}

// parseOptional is parseCSVFile for tables a feed may omit.
func parseOptional[T any](fsys fs.FS, name string, ints map[string]bool) ([]T, error) {
	rows, err := parseCSVFile[T](fsys, name, ints)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return rows, err
}

// parseCSVFile reads a single CSV table and decodes it into a slice of T.
func parseCSVFile[T any](fsys fs.FS, name string, ints map[string]bool) ([]T, error) {
	s, err := OpenCSVStream[T](fsys, name, ints)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var results []T
	for {
		var item T
		err := s.Next(&item)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		results = append(results, item)
	}
	return results, nil
}

// CSVStreamer yields one decoded record at a time from a GTFS table.
// Used for stop_times.txt to avoid loading it into memory.
type CSVStreamer struct {
	rc       io.ReadCloser
	reader   *csv.Reader
	fieldMap []fieldMapping
	row      int
}

type fieldMapping struct {
	csvIndex   int
	fieldIndex int
	column     string
	integer    bool
}

// OpenCSVStream opens a table from the GTFS source for streaming.
func OpenCSVStream[T any](fsys fs.FS, name string, ints map[string]bool) (*CSVStreamer, error) {
	rc, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	reader := csv.NewReader(rc)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("read %s header: %w", name, err)
	}

	// Strip BOM from first field if present
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\xef\xbb\xbf")
	}

	return &CSVStreamer{
		rc:       rc,
		reader:   reader,
		fieldMap: buildFieldMap[T](header, ints),
	}, nil
}

// Next decodes the next record into out, which must point to the streamer's
// record type. Returns io.EOF when done.
func (s *CSVStreamer) Next(out any) error {
	record, err := s.reader.Read()
	if err != nil {
		return err
	}
	s.row++
	v := reflect.ValueOf(out).Elem()
	for _, fm := range s.fieldMap {
		if fm.csvIndex >= len(record) {
			continue
		}
		val := strings.TrimSpace(record[fm.csvIndex])
		if fm.integer && val != "" {
			if _, err := strconv.Atoi(val); err != nil {
				return fmt.Errorf("row %d: column %s: %q is not an integer", s.row, fm.column, val)
			}
		}
		v.Field(fm.fieldIndex).SetString(val)
	}
	return nil
}

// Close releases the underlying reader.
func (s *CSVStreamer) Close() error {
	return s.rc.Close()
}

// buildFieldMap creates a mapping from CSV column positions to struct field positions.
func buildFieldMap[T any](header []string, ints map[string]bool) []fieldMapping {
	var t T
	typ := reflect.TypeOf(t)

	tagToField := make(map[string]int)
	for i := 0; i < typ.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("csv")
		if tag != "" {
			tagToField[tag] = i
		}
	}

	var mappings []fieldMapping
	for csvIdx, colName := range header {
		colName = strings.TrimSpace(colName)
		if fieldIdx, ok := tagToField[colName]; ok {
			mappings = append(mappings, fieldMapping{
				csvIndex:   csvIdx,
				fieldIndex: fieldIdx,
				column:     colName,
				integer:    ints[colName],
			})
		}
	}
	return mappings
}
