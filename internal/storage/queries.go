package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoScheduledTrip is returned when no active trip of the route and
// direction is scheduled to serve the stop on the requested date.
var ErrNoScheduledTrip = errors.New("no scheduled trip")

// GetMetadata retrieves a value from the feed_metadata table.
func (db *DB) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM feed_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetMetadata stores a key-value pair in the feed_metadata table.
func (db *DB) SetMetadata(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO feed_metadata (key, value) VALUES (?, ?)`,
		key, value)
	return err
}

// HasData returns true if the database has GTFS data imported.
func (db *DB) HasData(ctx context.Context) bool {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trips`).Scan(&count)
	return err == nil && count > 0
}

// RepresentativeTrips returns the representative trip of every route pattern
// for the route and direction, in feed order.
func (db *DB) RepresentativeTrips(ctx context.Context, routeID string, directionID int) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT representative_trip_id
		FROM route_patterns
		WHERE route_id = ? AND direction_id = ?
		ORDER BY rowid`,
		routeID, directionID,
	)
	if err != nil {
		return nil, fmt.Errorf("representative trips query: %w", err)
	}
	defer rows.Close()

	var trips []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan representative trip: %w", err)
		}
		trips = append(trips, id)
	}
	return trips, rows.Err()
}

// StopSequence returns the stop ids a trip visits, ordered by stop_sequence.
func (db *DB) StopSequence(ctx context.Context, tripID string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT stop_id
		FROM stop_times
		WHERE trip_id = ?
		ORDER BY stop_sequence`,
		tripID,
	)
	if err != nil {
		return nil, fmt.Errorf("stop sequence query: %w", err)
	}
	defer rows.Close()

	var stops []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stop id: %w", err)
		}
		stops = append(stops, id)
	}
	return stops, rows.Err()
}

// ScheduledLastTrip returns the trip with the latest scheduled departure from
// stopID among the route/direction trips whose service runs on date. Only
// services listed in calendar.txt are considered; calendar_dates.txt adjusts
// them but never introduces new ones. Ties on departure time go to the trip
// listed first in stop_times.txt.
// Returns ErrNoScheduledTrip when nothing qualifies.
func (db *DB) ScheduledLastTrip(ctx context.Context, routeID string, directionID int, stopID string, date time.Time) (tripID, departure string, err error) {
	dateStr := date.Format("20060102")
	dayCol := dayColumn(date.Weekday())

	err = db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT st.trip_id, st.departure_time
		FROM stop_times st
		JOIN trips t ON t.trip_id = st.trip_id
		WHERE st.stop_id = ?
		  AND t.route_id = ?
		  AND t.direction_id = ?
		  AND st.departure_secs IS NOT NULL
		  AND (
		    (t.service_id IN (
		      SELECT service_id FROM calendar
		      WHERE %s = 1 AND start_date <= ? AND end_date >= ?
		    ) AND t.service_id NOT IN (
		      SELECT service_id FROM calendar_dates
		      WHERE date = ? AND exception_type = 2
		    ))
		    OR t.service_id IN (
		      SELECT service_id FROM calendar_dates
		      WHERE date = ? AND exception_type = 1
		        AND service_id IN (SELECT service_id FROM calendar)
		    )
		  )
		  AND ? >= COALESCE((SELECT MIN(feed_start_date) FROM feed_info WHERE feed_start_date <> ''), '')
		  AND ? <= COALESCE((SELECT MAX(feed_end_date) FROM feed_info WHERE feed_end_date <> ''), '99999999')
		ORDER BY st.departure_secs DESC, st.rowid ASC
		LIMIT 1`, dayCol),
		stopID, routeID, directionID,
		dateStr, dateStr,
		dateStr,
		dateStr,
		dateStr, dateStr,
	).Scan(&tripID, &departure)
	if err == sql.ErrNoRows {
		return "", "", fmt.Errorf("route %s direction %d stop %s on %s: %w",
			routeID, directionID, stopID, date.Format("2006-01-02"), ErrNoScheduledTrip)
	}
	if err != nil {
		return "", "", fmt.Errorf("scheduled last trip query: %w", err)
	}
	return tripID, departure, nil
}

// dayColumn returns the SQLite column name for a given weekday.
func dayColumn(d time.Weekday) string {
	switch d {
	case time.Monday:
		return "monday"
	case time.Tuesday:
		return "tuesday"
	case time.Wednesday:
		return "wednesday"
	case time.Thursday:
		return "thursday"
	case time.Friday:
		return "friday"
	case time.Saturday:
		return "saturday"
	case time.Sunday:
		return "sunday"
	default:
		return "monday"
	}
}
