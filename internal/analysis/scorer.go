package analysis

import (
	"context"
	"fmt"
	"time"

	"lasttrips/internal/realtime"
)

// Result classifies the prediction feed at one minute against the observed
// last trip.
type Result uint8

const (
	Accurate Result = iota
	FalsePositive
	FalseNegative
)

func (r Result) String() string {
	switch r {
	case Accurate:
		return "ACCURATE"
	case FalsePositive:
		return "FALSE_POSITIVE"
	case FalseNegative:
		return "FALSE_NEGATIVE"
	default:
		return fmt.Sprintf("Result(%d)", r)
	}
}

// InvariantError reports more than one trip update for the same trip
// serving the same stop in one snapshot. It is not recoverable.
type InvariantError struct {
	TripID string
	StopID string
	Minute time.Time
	Count  int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%d trip updates for trip %s at stop %s in snapshot %s",
		e.Count, e.TripID, e.StopID, e.Minute.Format("2006-01-02T15:04"))
}

// PredictionSource returns the trip updates snapshot for a minute.
type PredictionSource interface {
	PredictionSnapshot(ctx context.Context, minute time.Time) (*realtime.PredictionSnapshot, error)
}

// Scorer classifies prediction snapshots.
type Scorer struct {
	predictions PredictionSource
	observer    Observer
}

// NewScorer creates a Scorer.
func NewScorer(predictions PredictionSource) *Scorer {
	return &Scorer{predictions: predictions, observer: nopObserver{}}
}

// SetObserver installs a result observer.
func (s *Scorer) SetObserver(o Observer) { s.observer = orNop(o) }

// Score looks for the scheduled trip's prediction at stopID in the snapshot
// for minute. No prediction is a false negative. A single prediction is
// accurate only when the scheduled trip was the actual last trip and the
// predicted vehicle is the vehicle that ran it; otherwise it is a false
// positive.
func (s *Scorer) Score(ctx context.Context, scheduledTripID, actualTripID, actualVehicleID, stopID string, minute time.Time) (Result, error) {
	snap, err := s.predictions.PredictionSnapshot(ctx, minute)
	if err != nil {
		return 0, fmt.Errorf("score %s: %w", minute.Format("2006-01-02T15:04"), err)
	}

	var matches []realtime.TripUpdateRecord
	for _, rec := range snap.Records {
		if rec.TripID == scheduledTripID && rec.Serves(stopID) {
			matches = append(matches, rec)
		}
	}

	var result Result
	switch len(matches) {
	case 0:
		result = FalseNegative
	case 1:
		if scheduledTripID == actualTripID && matches[0].VehicleID == actualVehicleID {
			result = Accurate
		} else {
			result = FalsePositive
		}
	default:
		return 0, &InvariantError{TripID: scheduledTripID, StopID: stopID, Minute: minute, Count: len(matches)}
	}

	s.observer.Scored(result)
	return result, nil
}
