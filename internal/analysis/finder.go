package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lasttrips/internal/realtime"
)

// DefaultHorizonMinutes covers a service day running into the early hours of
// the next calendar day.
const DefaultHorizonMinutes = 1619

// ObservedLastTrip is the last trip seen serving the target stop.
type ObservedLastTrip struct {
	TripID    string
	VehicleID string
	Minute    time.Time
}

// VehicleSource returns the vehicle positions snapshot for a minute.
type VehicleSource interface {
	VehicleSnapshot(ctx context.Context, minute time.Time) (*realtime.VehicleSnapshot, error)
}

// Finder reconstructs the actual last trip at a stop by scanning vehicle
// positions backwards from the end of the service day.
type Finder struct {
	topo     Topology
	vehicles VehicleSource
	horizon  int
	observer Observer
	logger   *slog.Logger
}

// NewFinder creates a Finder scanning horizon minutes back. A non-positive
// horizon selects DefaultHorizonMinutes.
func NewFinder(topo Topology, vehicles VehicleSource, horizon int, logger *slog.Logger) *Finder {
	if horizon <= 0 {
		horizon = DefaultHorizonMinutes
	}
	return &Finder{topo: topo, vehicles: vehicles, horizon: horizon, observer: nopObserver{}, logger: logger}
}

// SetObserver installs a progress observer.
func (f *Finder) SetObserver(o Observer) { f.observer = orNop(o) }

// Find scans the minutes date+horizon down to date+1 in the location of
// date, newest first. A sighting at a stop at or before the target is the
// last trip once its vehicle has already been seen, later in the day, at a
// stop past the target; at a terminal target any sighting qualifies. Within
// a snapshot the first qualifying record in feed order wins. The bool result
// is false when the horizon is exhausted without a match.
func (f *Finder) Find(ctx context.Context, t Target, date time.Time) (ObservedLastTrip, bool, error) {
	part, err := ResolvePartition(ctx, f.topo, t)
	if err != nil {
		return ObservedLastTrip{}, false, err
	}
	if part.Empty() {
		f.logger.Warn("stop not served by any representative trip",
			"route", t.RouteID, "direction", t.DirectionID, "stop", t.StopID)
		return ObservedLastTrip{}, false, nil
	}
	terminal := part.Terminal()

	seenAfter := make(map[string]struct{})
	y, mo, d := date.Date()
	loc := date.Location()

	for m := f.horizon; m > 0; m-- {
		if err := ctx.Err(); err != nil {
			return ObservedLastTrip{}, false, err
		}
		minute := time.Date(y, mo, d, 0, m, 0, 0, loc)
		snap, err := f.vehicles.VehicleSnapshot(ctx, minute)
		if err != nil {
			return ObservedLastTrip{}, false, fmt.Errorf("find last trip: %w", err)
		}
		f.observer.MinuteScanned()

		if rec, ok := match(snap.Records, t.RouteID, part.Pre, seenAfter, terminal); ok {
			f.logger.Info("last trip found",
				"route", t.RouteID, "stop", t.StopID,
				"trip", rec.TripID, "vehicle", rec.VehicleID,
				"minute", minute.Format("2006-01-02T15:04"))
			return ObservedLastTrip{TripID: rec.TripID, VehicleID: rec.VehicleID, Minute: minute}, true, nil
		}

		for _, rec := range snap.Records {
			if id, ok := rec.Stop.StopID(); ok && part.Post.Has(id) {
				seenAfter[rec.VehicleID] = struct{}{}
			}
		}

		if (f.horizon-m+1)%60 == 0 {
			f.logger.Debug("scanning for last trip",
				"minute", minute.Format("2006-01-02T15:04"), "vehicles_past_stop", len(seenAfter))
		}
	}

	f.logger.Info("no last trip found",
		"route", t.RouteID, "direction", t.DirectionID, "stop", t.StopID,
		"date", date.Format("2006-01-02"))
	return ObservedLastTrip{}, false, nil
}

func match(records []realtime.VehicleRecord, routeID string, pre StopSet, seenAfter map[string]struct{}, terminal bool) (realtime.VehicleRecord, bool) {
	for _, rec := range records {
		if rec.RouteID != routeID {
			continue
		}
		id, ok := rec.Stop.StopID()
		if !ok || !pre.Has(id) {
			continue
		}
		if terminal {
			return rec, true
		}
		if _, seen := seenAfter[rec.VehicleID]; seen {
			return rec, true
		}
	}
	return realtime.VehicleRecord{}, false
}
