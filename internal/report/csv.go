package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"lasttrips/internal/analysis"
)

// NotFound marks the actual trip column of a date whose last trip was not
// observed.
const NotFound = "NOT_FOUND"

// MinuteLayout formats the observed last trip timestamp.
const MinuteLayout = "2006-01-02T15:04"

// Record returns the CSV fields of a row: accurate, false positive and
// false negative counts, scheduled trip and departure, then the actual
// trip, vehicle and minute.
func Record(r analysis.Row) []string {
	rec := []string{
		strconv.Itoa(r.Accurate),
		strconv.Itoa(r.FalsePositive),
		strconv.Itoa(r.FalseNegative),
		r.ScheduledTripID,
		r.ScheduledDeparture,
	}
	if !r.Found {
		return append(rec, NotFound, "", "")
	}
	return append(rec, r.Actual.TripID, r.Actual.VehicleID, r.Actual.Minute.Format(MinuteLayout))
}

// CSVWriter streams rows as CSV, one line per service date.
type CSVWriter struct {
	w *csv.Writer
}

// NewCSVWriter creates a CSVWriter on w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// Write writes and flushes one row.
func (c *CSVWriter) Write(r analysis.Row) error {
	if err := c.w.Write(Record(r)); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

// WriteCSV writes all rows to w.
func WriteCSV(w io.Writer, rows []analysis.Row) error {
	cw := NewCSVWriter(w)
	for _, r := range rows {
		if err := cw.Write(r); err != nil {
			return err
		}
	}
	return nil
}
