package storage

import "fmt"

// migrate creates the schema if it doesn't exist.
func (db *DB) migrate() error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	db.logger.Info("database migrations applied")
	return nil
}

var migrations = []string{
	// Routes
	`CREATE TABLE IF NOT EXISTS routes (
		route_id         TEXT PRIMARY KEY,
		agency_id        TEXT,
		route_short_name TEXT,
		route_long_name  TEXT,
		route_type       INTEGER NOT NULL DEFAULT 3,
		route_sort_order INTEGER
	)`,

	// Calendar
	`CREATE TABLE IF NOT EXISTS calendar (
		service_id TEXT PRIMARY KEY,
		monday     INTEGER NOT NULL DEFAULT 0,
		tuesday    INTEGER NOT NULL DEFAULT 0,
		wednesday  INTEGER NOT NULL DEFAULT 0,
		thursday   INTEGER NOT NULL DEFAULT 0,
		friday     INTEGER NOT NULL DEFAULT 0,
		saturday   INTEGER NOT NULL DEFAULT 0,
		sunday     INTEGER NOT NULL DEFAULT 0,
		start_date TEXT NOT NULL,
		end_date   TEXT NOT NULL
	)`,

	// Calendar Dates (exceptions)
	`CREATE TABLE IF NOT EXISTS calendar_dates (
		service_id     TEXT NOT NULL,
		date           TEXT NOT NULL,
		exception_type INTEGER NOT NULL,
		PRIMARY KEY (service_id, date)
	)`,

	// Trips
	`CREATE TABLE IF NOT EXISTS trips (
		trip_id          TEXT PRIMARY KEY,
		route_id         TEXT NOT NULL,
		service_id       TEXT NOT NULL,
		trip_headsign    TEXT,
		direction_id     INTEGER,
		block_id         TEXT,
		route_pattern_id TEXT
	)`,

	// Stop Times. departure_secs is derived from departure_time at import so
	// that times past 24:00:00 order correctly.
	`CREATE TABLE IF NOT EXISTS stop_times (
		trip_id        TEXT NOT NULL,
		arrival_time   TEXT NOT NULL,
		departure_time TEXT NOT NULL,
		departure_secs INTEGER,
		stop_id        TEXT NOT NULL,
		stop_sequence  INTEGER NOT NULL,
		pickup_type    INTEGER DEFAULT 0,
		drop_off_type  INTEGER DEFAULT 0,
		PRIMARY KEY (trip_id, stop_sequence)
	)`,

	// Route patterns (MBTA extension): one representative trip per pattern
	`CREATE TABLE IF NOT EXISTS route_patterns (
		route_pattern_id         TEXT PRIMARY KEY,
		route_id                 TEXT NOT NULL,
		direction_id             INTEGER NOT NULL,
		route_pattern_name       TEXT,
		route_pattern_typicality INTEGER,
		route_pattern_sort_order INTEGER,
		representative_trip_id   TEXT NOT NULL
	)`,

	// Feed info (validity window)
	`CREATE TABLE IF NOT EXISTS feed_info (
		feed_publisher_name TEXT,
		feed_start_date     TEXT,
		feed_end_date       TEXT,
		feed_version        TEXT
	)`,

	// Feed metadata (last_modified, etag, imported_at, etc.)
	`CREATE TABLE IF NOT EXISTS feed_metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	// Evaluation history
	`CREATE TABLE IF NOT EXISTS evaluation_runs (
		run_id       TEXT PRIMARY KEY,
		stop_id      TEXT NOT NULL,
		route_id     TEXT NOT NULL,
		direction_id INTEGER NOT NULL,
		started_at   TEXT NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE TABLE IF NOT EXISTS evaluations (
		run_id                 TEXT NOT NULL REFERENCES evaluation_runs(run_id),
		service_date           TEXT NOT NULL,
		accurate               INTEGER NOT NULL,
		false_positive         INTEGER NOT NULL,
		false_negative         INTEGER NOT NULL,
		scheduled_trip_id      TEXT NOT NULL,
		scheduled_departure    TEXT NOT NULL,
		found                  INTEGER NOT NULL,
		actual_trip_id         TEXT,
		actual_vehicle_id      TEXT,
		actual_timestamp       TEXT,
		PRIMARY KEY (run_id, service_date)
	)`,

	// Indexes for the schedule queries
	`CREATE INDEX IF NOT EXISTS idx_stop_times_stop ON stop_times(stop_id)`,
	`CREATE INDEX IF NOT EXISTS idx_stop_times_trip ON stop_times(trip_id)`,
	`CREATE INDEX IF NOT EXISTS idx_trips_route_direction ON trips(route_id, direction_id)`,
	`CREATE INDEX IF NOT EXISTS idx_trips_service ON trips(service_id)`,
	`CREATE INDEX IF NOT EXISTS idx_calendar_dates_date ON calendar_dates(date)`,
	`CREATE INDEX IF NOT EXISTS idx_route_patterns_route ON route_patterns(route_id, direction_id)`,
}
