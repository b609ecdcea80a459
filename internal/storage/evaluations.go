package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Evaluation is one persisted per-date result of an evaluation run.
type Evaluation struct {
	ServiceDate        string // YYYY-MM-DD
	Accurate           int
	FalsePositive      int
	FalseNegative      int
	ScheduledTripID    string
	ScheduledDeparture string
	Found              bool
	ActualTripID       string
	ActualVehicleID    string
	ActualTimestamp    string
}

// CreateRun records the start of an evaluation run.
func (db *DB) CreateRun(ctx context.Context, runID, stopID, routeID string, directionID int) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO evaluation_runs (run_id, stop_id, route_id, direction_id) VALUES (?, ?, ?, ?)`,
		runID, stopID, routeID, directionID)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}
	return nil
}

// SaveEvaluation stores the result for one service date of a run.
func (db *DB) SaveEvaluation(ctx context.Context, runID string, e Evaluation) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO evaluations (run_id, service_date, accurate, false_positive,
		 false_negative, scheduled_trip_id, scheduled_departure, found,
		 actual_trip_id, actual_vehicle_id, actual_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, e.ServiceDate, e.Accurate, e.FalsePositive, e.FalseNegative,
		e.ScheduledTripID, e.ScheduledDeparture, e.Found,
		nullable(e.ActualTripID), nullable(e.ActualVehicleID), nullable(e.ActualTimestamp))
	if err != nil {
		return fmt.Errorf("insert evaluation %s/%s: %w", runID, e.ServiceDate, err)
	}
	return nil
}

// Evaluations returns the stored results of a run in date order.
func (db *DB) Evaluations(ctx context.Context, runID string) ([]Evaluation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT service_date, accurate, false_positive, false_negative,
		       scheduled_trip_id, scheduled_departure, found,
		       actual_trip_id, actual_vehicle_id, actual_timestamp
		FROM evaluations
		WHERE run_id = ?
		ORDER BY service_date`, runID)
	if err != nil {
		return nil, fmt.Errorf("evaluations query: %w", err)
	}
	defer rows.Close()

	var out []Evaluation
	for rows.Next() {
		var e Evaluation
		var trip, vehicle, ts sql.NullString
		if err := rows.Scan(&e.ServiceDate, &e.Accurate, &e.FalsePositive, &e.FalseNegative,
			&e.ScheduledTripID, &e.ScheduledDeparture, &e.Found,
			&trip, &vehicle, &ts); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		e.ActualTripID = trip.String
		e.ActualVehicleID = vehicle.String
		e.ActualTimestamp = ts.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
