package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func exec(t *testing.T, db *DB, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
}

// seedSchedule loads a route "1" with weekday, weekend and holiday services.
// 2020-07-22 is a Wednesday, 2020-07-25 a Saturday. XTRA exists only in
// calendar_dates.txt.
func seedSchedule(t *testing.T, db *DB) {
	exec(t, db,
		`INSERT INTO calendar VALUES ('WKDY',1,1,1,1,1,0,0,'20200701','20200831')`,
		`INSERT INTO calendar VALUES ('SAT',0,0,0,0,0,1,0,'20200701','20200831')`,
		`INSERT INTO calendar VALUES ('HOL',0,0,0,0,0,0,0,'20200701','20200831')`,
		`INSERT INTO calendar_dates VALUES ('WKDY','20200723',2)`,
		`INSERT INTO calendar_dates VALUES ('HOL','20200723',1)`,
		`INSERT INTO calendar_dates VALUES ('XTRA','20200722',1)`,

		`INSERT INTO trips (trip_id, route_id, service_id, direction_id) VALUES ('W1','1','WKDY',0)`,
		`INSERT INTO trips (trip_id, route_id, service_id, direction_id) VALUES ('W2','1','WKDY',0)`,
		`INSERT INTO trips (trip_id, route_id, service_id, direction_id) VALUES ('W3','1','WKDY',1)`,
		`INSERT INTO trips (trip_id, route_id, service_id, direction_id) VALUES ('S1','1','SAT',0)`,
		`INSERT INTO trips (trip_id, route_id, service_id, direction_id) VALUES ('H1','1','HOL',0)`,
		`INSERT INTO trips (trip_id, route_id, service_id, direction_id) VALUES ('X1','1','XTRA',0)`,

		`INSERT INTO stop_times VALUES ('W1','23:45:00','23:45:00',85500,'110',2,0,0)`,
		`INSERT INTO stop_times VALUES ('W2','24:10:00','24:10:00',87000,'110',2,0,0)`,
		`INSERT INTO stop_times VALUES ('W3','25:00:00','25:00:00',90000,'110',2,0,0)`,
		`INSERT INTO stop_times VALUES ('S1','22:00:00','22:00:00',79200,'110',2,0,0)`,
		`INSERT INTO stop_times VALUES ('H1','21:00:00','21:00:00',75600,'110',2,0,0)`,
		`INSERT INTO stop_times VALUES ('X1','25:30:00','25:30:00',91800,'110',2,0,0)`,
	)
}

func TestScheduledLastTrip(t *testing.T) {
	db := openTestDB(t)
	seedSchedule(t, db)
	ctx := context.Background()

	tests := []struct {
		name      string
		direction int
		date      time.Time
		wantTrip  string
		wantDep   string
	}{
		// X1 departs later on this date but XTRA has no calendar.txt row.
		{"weekday past midnight", 0, time.Date(2020, 7, 22, 0, 0, 0, 0, time.UTC), "W2", "24:10:00"},
		{"other direction", 1, time.Date(2020, 7, 22, 0, 0, 0, 0, time.UTC), "W3", "25:00:00"},
		{"saturday", 0, time.Date(2020, 7, 25, 0, 0, 0, 0, time.UTC), "S1", "22:00:00"},
		{"removed and added by exception", 0, time.Date(2020, 7, 23, 0, 0, 0, 0, time.UTC), "H1", "21:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trip, dep, err := db.ScheduledLastTrip(ctx, "1", tt.direction, "110", tt.date)
			if err != nil {
				t.Fatalf("ScheduledLastTrip error: %v", err)
			}
			if trip != tt.wantTrip || dep != tt.wantDep {
				t.Errorf("ScheduledLastTrip = (%q, %q), want (%q, %q)", trip, dep, tt.wantTrip, tt.wantDep)
			}
		})
	}
}

func TestScheduledLastTrip_NoMatch(t *testing.T) {
	db := openTestDB(t)
	seedSchedule(t, db)
	ctx := context.Background()

	tests := []struct {
		name  string
		route string
		stop  string
		date  time.Time
	}{
		{"sunday has no service", "1", "110", time.Date(2020, 7, 26, 0, 0, 0, 0, time.UTC)},
		{"outside calendar window", "1", "110", time.Date(2020, 9, 2, 0, 0, 0, 0, time.UTC)},
		{"unknown stop", "1", "999", time.Date(2020, 7, 22, 0, 0, 0, 0, time.UTC)},
		{"unknown route", "66", "110", time.Date(2020, 7, 22, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := db.ScheduledLastTrip(ctx, tt.route, 0, tt.stop, tt.date)
			if !errors.Is(err, ErrNoScheduledTrip) {
				t.Errorf("err = %v, want ErrNoScheduledTrip", err)
			}
		})
	}
}

func TestScheduledLastTrip_ServiceOnlyInCalendarDates(t *testing.T) {
	db := openTestDB(t)
	exec(t, db,
		`INSERT INTO calendar_dates VALUES ('XTRA','20200722',1)`,
		`INSERT INTO trips (trip_id, route_id, service_id, direction_id) VALUES ('X1','1','XTRA',0)`,
		`INSERT INTO stop_times VALUES ('X1','25:30:00','25:30:00',91800,'110',2,0,0)`,
	)

	_, _, err := db.ScheduledLastTrip(context.Background(), "1", 0, "110", time.Date(2020, 7, 22, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, ErrNoScheduledTrip) {
		t.Errorf("err = %v, want ErrNoScheduledTrip", err)
	}

	exec(t, db, `INSERT INTO calendar VALUES ('XTRA',0,0,0,0,0,0,0,'20200701','20200831')`)
	trip, _, err := db.ScheduledLastTrip(context.Background(), "1", 0, "110", time.Date(2020, 7, 22, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ScheduledLastTrip error: %v", err)
	}
	if trip != "X1" {
		t.Errorf("trip = %q, want X1 once XTRA is in calendar.txt", trip)
	}
}

func TestScheduledLastTrip_FeedInfoWindow(t *testing.T) {
	db := openTestDB(t)
	seedSchedule(t, db)
	exec(t, db, `INSERT INTO feed_info VALUES ('MBTA','20200721','20200724','v1')`)
	ctx := context.Background()

	if _, _, err := db.ScheduledLastTrip(ctx, "1", 0, "110", time.Date(2020, 7, 22, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Errorf("date inside feed window: %v", err)
	}
	_, _, err := db.ScheduledLastTrip(ctx, "1", 0, "110", time.Date(2020, 7, 20, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, ErrNoScheduledTrip) {
		t.Errorf("date before feed window: err = %v, want ErrNoScheduledTrip", err)
	}
}

func TestScheduledLastTrip_TieGoesToFirstRow(t *testing.T) {
	db := openTestDB(t)
	exec(t, db,
		`INSERT INTO calendar VALUES ('WKDY',1,1,1,1,1,0,0,'20200701','20200831')`,
		`INSERT INTO trips (trip_id, route_id, service_id, direction_id) VALUES ('B','1','WKDY',0)`,
		`INSERT INTO trips (trip_id, route_id, service_id, direction_id) VALUES ('A','1','WKDY',0)`,
		`INSERT INTO stop_times VALUES ('B','23:45:00','23:45:00',85500,'110',2,0,0)`,
		`INSERT INTO stop_times VALUES ('A','23:45:00','23:45:00',85500,'110',2,0,0)`,
	)

	trip, _, err := db.ScheduledLastTrip(context.Background(), "1", 0, "110", time.Date(2020, 7, 22, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ScheduledLastTrip error: %v", err)
	}
	if trip != "B" {
		t.Errorf("tie winner = %q, want B (first row)", trip)
	}
}

func TestRepresentativeTripsAndStopSequence(t *testing.T) {
	db := openTestDB(t)
	exec(t, db,
		`INSERT INTO route_patterns (route_pattern_id, route_id, direction_id, representative_trip_id) VALUES ('1-1-0','1',0,'T9')`,
		`INSERT INTO route_patterns (route_pattern_id, route_id, direction_id, representative_trip_id) VALUES ('1-0-0','1',0,'T1')`,
		`INSERT INTO route_patterns (route_pattern_id, route_id, direction_id, representative_trip_id) VALUES ('1-0-1','1',1,'T2')`,
		`INSERT INTO stop_times VALUES ('T1','','',NULL,'112',3,0,0)`,
		`INSERT INTO stop_times VALUES ('T1','','',NULL,'108',1,0,0)`,
		`INSERT INTO stop_times VALUES ('T1','','',NULL,'110',2,0,0)`,
	)
	ctx := context.Background()

	reps, err := db.RepresentativeTrips(ctx, "1", 0)
	if err != nil {
		t.Fatalf("RepresentativeTrips error: %v", err)
	}
	if len(reps) != 2 || reps[0] != "T9" || reps[1] != "T1" {
		t.Errorf("RepresentativeTrips(1, 0) = %v, want [T9 T1]", reps)
	}

	stops, err := db.StopSequence(ctx, "T1")
	if err != nil {
		t.Fatalf("StopSequence error: %v", err)
	}
	if len(stops) != 3 || stops[0] != "108" || stops[1] != "110" || stops[2] != "112" {
		t.Errorf("StopSequence(T1) = %v, want [108 110 112]", stops)
	}

	if stops, _ := db.StopSequence(ctx, "missing"); len(stops) != 0 {
		t.Errorf("StopSequence(missing) = %v, want empty", stops)
	}
}

func TestEvaluations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.CreateRun(ctx, "run-1", "110", "1", 0); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	rows := []Evaluation{
		{ServiceDate: "2020-07-23", ScheduledTripID: "W2", ScheduledDeparture: "24:10:00"},
		{ServiceDate: "2020-07-22", Accurate: 20, FalsePositive: 4, FalseNegative: 6,
			ScheduledTripID: "W2", ScheduledDeparture: "24:10:00",
			Found: true, ActualTripID: "W2", ActualVehicleID: "y1234", ActualTimestamp: "2020-07-23T00:12"},
	}
	for _, e := range rows {
		if err := db.SaveEvaluation(ctx, "run-1", e); err != nil {
			t.Fatalf("SaveEvaluation: %v", err)
		}
	}

	got, err := db.Evaluations(ctx, "run-1")
	if err != nil {
		t.Fatalf("Evaluations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(Evaluations) = %d, want 2", len(got))
	}
	if got[0] != rows[1] {
		t.Errorf("Evaluations[0] = %+v, want %+v", got[0], rows[1])
	}
	if got[1] != rows[0] {
		t.Errorf("Evaluations[1] = %+v, want %+v", got[1], rows[0])
	}

	if err := db.SaveEvaluation(ctx, "no-such-run", rows[0]); err == nil {
		t.Error("SaveEvaluation for an unknown run should violate the foreign key")
	}
}
