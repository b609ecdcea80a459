package analysis

import (
	"context"
	"io"
	"log/slog"
	"time"

	"lasttrips/internal/realtime"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const minuteLayout = "2006-01-02T15:04"

// fakeTopology maps route/direction to representative trips and trips to
// stop sequences.
type fakeTopology struct {
	reps  map[string][]string // key: route + "/" + direction
	stops map[string][]string
	err   error
}

func (f *fakeTopology) RepresentativeTrips(_ context.Context, routeID string, directionID int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	key := routeID + "/0"
	if directionID == 1 {
		key = routeID + "/1"
	}
	return f.reps[key], nil
}

func (f *fakeTopology) StopSequence(_ context.Context, tripID string) ([]string, error) {
	return f.stops[tripID], nil
}

// route1 is route "1" direction 0 visiting 108 -> 110 -> 112.
func route1() *fakeTopology {
	return &fakeTopology{
		reps:  map[string][]string{"1/0": {"P1"}},
		stops: map[string][]string{"P1": {"108", "110", "112"}},
	}
}

// fakeVehicles serves snapshots by minute; unlisted minutes are empty.
type fakeVehicles struct {
	snaps   map[string][]realtime.VehicleRecord
	fetched []time.Time
	failAt  string
	err     error
}

func (f *fakeVehicles) VehicleSnapshot(_ context.Context, minute time.Time) (*realtime.VehicleSnapshot, error) {
	f.fetched = append(f.fetched, minute)
	key := minute.Format(minuteLayout)
	if key == f.failAt {
		return nil, f.err
	}
	return &realtime.VehicleSnapshot{Timestamp: minute, Records: f.snaps[key]}, nil
}

func at(route, trip, vehicle, stop string) realtime.VehicleRecord {
	return realtime.VehicleRecord{RouteID: route, TripID: trip, VehicleID: vehicle, Stop: realtime.AtStop(stop)}
}

// fakePredictions serves the same records for every minute unless byMinute
// overrides it.
type fakePredictions struct {
	all      []realtime.TripUpdateRecord
	byMinute map[string][]realtime.TripUpdateRecord
	err      error
	calls    int
}

func (f *fakePredictions) PredictionSnapshot(_ context.Context, minute time.Time) (*realtime.PredictionSnapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	recs := f.all
	if r, ok := f.byMinute[minute.Format(minuteLayout)]; ok {
		recs = r
	}
	return &realtime.PredictionSnapshot{Timestamp: minute, Records: recs}, nil
}

func predicted(trip, vehicle string, stops ...string) realtime.TripUpdateRecord {
	rec := realtime.TripUpdateRecord{TripID: trip, VehicleID: vehicle}
	for _, s := range stops {
		rec.Stops = append(rec.Stops, realtime.StopPrediction{StopID: s})
	}
	return rec
}

type fakeSchedule struct {
	trip, departure string
	err             error
}

func (f fakeSchedule) ScheduledLastTrip(context.Context, string, int, string, time.Time) (string, string, error) {
	return f.trip, f.departure, f.err
}

type countingObserver struct {
	minutes int
	results map[Result]int
	found   []bool
}

func (c *countingObserver) MinuteScanned() { c.minutes++ }
func (c *countingObserver) Scored(r Result) {
	if c.results == nil {
		c.results = map[Result]int{}
	}
	c.results[r]++
}
func (c *countingObserver) DateEvaluated(found bool) { c.found = append(c.found, found) }
