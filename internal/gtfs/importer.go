package gtfs

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strconv"
	"time"

	"lasttrips/internal/storage"
)

// Importer loads parsed GTFS data into SQLite.
type Importer struct {
	db     *storage.DB
	opts   Options
	logger *slog.Logger
}

// NewImporter creates an Importer.
func NewImporter(db *storage.DB, opts Options, logger *slog.Logger) *Importer {
	return &Importer{db: db, opts: opts, logger: logger}
}

// Import loads a parsed feed plus streams stop_times from the source.
// The entire operation runs in a single transaction for atomicity.
func (imp *Importer) Import(ctx context.Context, feed *Feed, fsys fs.FS) error {
	start := time.Now()

	tx, err := imp.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := imp.clearTables(ctx, tx); err != nil {
		return err
	}

	if err := imp.importRoutes(ctx, tx, feed.Routes); err != nil {
		return err
	}
	if err := imp.importCalendar(ctx, tx, feed.Calendar); err != nil {
		return err
	}
	if err := imp.importCalendarDates(ctx, tx, feed.CalendarDates); err != nil {
		return err
	}
	if err := imp.importTrips(ctx, tx, feed.Trips); err != nil {
		return err
	}
	if err := imp.importRoutePatterns(ctx, tx, feed.RoutePatterns); err != nil {
		return err
	}
	if err := imp.importFeedInfo(ctx, tx, feed.FeedInfo); err != nil {
		return err
	}
	if err := imp.streamStopTimes(ctx, tx, fsys); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	meta := map[string]string{
		"imported_at":   now,
		"last_modified": feed.LastModified,
		"etag":          feed.ETag,
		"source":        feed.Source,
	}
	for k, v := range meta {
		if v == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO feed_metadata (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	imp.logger.Info("GTFS import complete",
		"duration", time.Since(start).Round(time.Millisecond),
		"routes", len(feed.Routes),
		"trips", len(feed.Trips),
		"route_patterns", len(feed.RoutePatterns),
	)
	return nil
}

func (imp *Importer) clearTables(ctx context.Context, tx *sql.Tx) error {
	tables := []string{
		"stop_times", "trips", "calendar_dates", "calendar",
		"routes", "route_patterns", "feed_info", "feed_metadata",
	}
	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", t)); err != nil {
			return fmt.Errorf("clear %s: %w", t, err)
		}
	}
	return nil
}

func (imp *Importer) importRoutes(ctx context.Context, tx *sql.Tx, routes []Route) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO routes (route_id, agency_id, route_short_name, route_long_name,
		 route_type, route_sort_order)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare routes: %w", err)
	}
	defer stmt.Close()

	for _, r := range routes {
		if _, err := stmt.ExecContext(ctx, r.RouteID, r.AgencyID, r.RouteShortName,
			r.RouteLongName, intOr(r.RouteType, 3), nullInt(r.RouteSortOrder)); err != nil {
			return fmt.Errorf("insert route %s: %w", r.RouteID, err)
		}
	}
	imp.logger.Info("imported routes", "count", len(routes))
	return nil
}

func (imp *Importer) importCalendar(ctx context.Context, tx *sql.Tx, entries []CalendarEntry) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO calendar (service_id, monday, tuesday, wednesday, thursday,
		 friday, saturday, sunday, start_date, end_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare calendar: %w", err)
	}
	defer stmt.Close()

	for _, c := range entries {
		if _, err := stmt.ExecContext(ctx, c.ServiceID,
			intOr(c.Monday, 0), intOr(c.Tuesday, 0), intOr(c.Wednesday, 0), intOr(c.Thursday, 0),
			intOr(c.Friday, 0), intOr(c.Saturday, 0), intOr(c.Sunday, 0),
			c.StartDate, c.EndDate); err != nil {
			return fmt.Errorf("insert calendar %s: %w", c.ServiceID, err)
		}
	}
	imp.logger.Info("imported calendar entries", "count", len(entries))
	return nil
}

func (imp *Importer) importCalendarDates(ctx context.Context, tx *sql.Tx, dates []CalendarDate) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO calendar_dates (service_id, date, exception_type) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare calendar_dates: %w", err)
	}
	defer stmt.Close()

	for _, d := range dates {
		if _, err := stmt.ExecContext(ctx, d.ServiceID, d.Date, intOr(d.ExceptionType, 0)); err != nil {
			return fmt.Errorf("insert calendar_date %s/%s: %w", d.ServiceID, d.Date, err)
		}
	}
	imp.logger.Info("imported calendar dates", "count", len(dates))
	return nil
}

func (imp *Importer) importTrips(ctx context.Context, tx *sql.Tx, trips []Trip) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trips (trip_id, route_id, service_id, trip_headsign,
		 direction_id, block_id, route_pattern_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare trips: %w", err)
	}
	defer stmt.Close()

	for _, t := range trips {
		if _, err := stmt.ExecContext(ctx, t.TripID, t.RouteID, t.ServiceID,
			t.TripHeadsign, nullInt(t.DirectionID), t.BlockID, t.RoutePatternID); err != nil {
			return fmt.Errorf("insert trip %s: %w", t.TripID, err)
		}
	}
	imp.logger.Info("imported trips", "count", len(trips))
	return nil
}

func (imp *Importer) importRoutePatterns(ctx context.Context, tx *sql.Tx, patterns []RoutePattern) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO route_patterns (route_pattern_id, route_id, direction_id,
		 route_pattern_name, route_pattern_typicality, route_pattern_sort_order,
		 representative_trip_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare route_patterns: %w", err)
	}
	defer stmt.Close()

	for _, p := range patterns {
		if _, err := stmt.ExecContext(ctx, p.RoutePatternID, p.RouteID, intOr(p.DirectionID, 0),
			p.RoutePatternName, nullInt(p.RoutePatternTypicality), nullInt(p.RoutePatternSortOrder),
			p.RepresentativeTripID); err != nil {
			return fmt.Errorf("insert route_pattern %s: %w", p.RoutePatternID, err)
		}
	}
	imp.logger.Info("imported route patterns", "count", len(patterns))
	return nil
}

func (imp *Importer) importFeedInfo(ctx context.Context, tx *sql.Tx, infos []FeedInfo) error {
	for _, fi := range infos {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO feed_info (feed_publisher_name, feed_start_date, feed_end_date, feed_version)
			 VALUES (?, ?, ?, ?)`,
			fi.FeedPublisherName, fi.FeedStartDate, fi.FeedEndDate, fi.FeedVersion); err != nil {
			return fmt.Errorf("insert feed_info: %w", err)
		}
	}
	return nil
}

// streamStopTimes reads stop_times.txt from the source in a streaming fashion.
func (imp *Importer) streamStopTimes(ctx context.Context, tx *sql.Tx, fsys fs.FS) error {
	streamer, err := OpenCSVStream[StopTime](fsys, "stop_times.txt", imp.opts.intSet())
	if err != nil {
		return fmt.Errorf("open stop_times stream: %w", err)
	}
	defer streamer.Close()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO stop_times (trip_id, arrival_time, departure_time, departure_secs,
		 stop_id, stop_sequence, pickup_type, drop_off_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare stop_times: %w", err)
	}
	defer stmt.Close()

	count := 0
	var st StopTime
	for {
		st = StopTime{}
		err := streamer.Next(&st)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read stop_time row %d: %w", count, err)
		}

		var depSecs sql.NullInt64
		if st.DepartureTime != "" {
			secs, err := ParseTime(st.DepartureTime)
			if err != nil {
				return fmt.Errorf("stop_time row %d: %w", count, err)
			}
			depSecs = sql.NullInt64{Int64: int64(secs), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx, st.TripID, st.ArrivalTime, st.DepartureTime, depSecs,
			st.StopID, intOr(st.StopSequence, 0), intOr(st.PickupType, 0), intOr(st.DropOffType, 0)); err != nil {
			return fmt.Errorf("insert stop_time row %d: %w", count, err)
		}
		count++

		if count%500000 == 0 {
			imp.logger.Info("importing stop_times", "rows", count)
		}
	}

	imp.logger.Info("imported stop_times", "count", count)
	return nil
}

// intOr converts an integer column already validated by the parser,
// falling back to def for empty values.
func intOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func nullInt(s string) sql.NullInt64 {
	n, err := strconv.Atoi(s)
	if err != nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}
