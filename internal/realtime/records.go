package realtime

import "time"

// StopKind says what a vehicle position reports about the vehicle's stop.
type StopKind uint8

const (
	// StopUnknown: the feed gave no stop id and no in-transit status.
	StopUnknown StopKind = iota
	// StopInTransit: no stop id, vehicle reported as travelling between stops.
	StopInTransit
	// StopAt: the feed populated a stop id.
	StopAt
)

// StopRef is the stop a vehicle position refers to.
type StopRef struct {
	Kind StopKind
	id   string
}

// AtStop returns a StopRef for a populated stop id.
func AtStop(id string) StopRef { return StopRef{Kind: StopAt, id: id} }

// InTransit returns a StopRef for a vehicle between stops with no stop id.
func InTransit() StopRef { return StopRef{Kind: StopInTransit} }

// Unknown returns a StopRef for a vehicle with no stop information.
func Unknown() StopRef { return StopRef{Kind: StopUnknown} }

// StopID returns the stop id and whether one was reported.
func (s StopRef) StopID() (string, bool) {
	return s.id, s.Kind == StopAt
}

func (s StopRef) String() string {
	switch s.Kind {
	case StopAt:
		return s.id
	case StopInTransit:
		return "<in transit>"
	default:
		return "<unknown>"
	}
}

// VehicleRecord is one vehicle position. RouteID may be empty; TripID and
// VehicleID never are.
type VehicleRecord struct {
	RouteID   string
	TripID    string
	VehicleID string
	Stop      StopRef
}

// VehicleSnapshot is one archived minute of the vehicle positions feed.
type VehicleSnapshot struct {
	Timestamp time.Time // feed header timestamp
	Records   []VehicleRecord
	Rejected  int // entities dropped at decode for missing trip or vehicle id
}

// StopPrediction is a predicted arrival/departure at one stop. Zero times
// mean the feed gave no prediction for that event.
type StopPrediction struct {
	StopID    string
	Arrival   time.Time
	Departure time.Time
}

// TripUpdateRecord is one trip's predictions. VehicleID is empty when the
// prediction is not yet bound to a vehicle.
type TripUpdateRecord struct {
	TripID    string
	RouteID   string
	VehicleID string
	Stops     []StopPrediction
}

// Serves reports whether the trip update carries a prediction for stopID.
func (r TripUpdateRecord) Serves(stopID string) bool {
	for _, p := range r.Stops {
		if p.StopID == stopID {
			return true
		}
	}
	return false
}

// PredictionSnapshot is one archived minute of the trip updates feed.
type PredictionSnapshot struct {
	Timestamp time.Time
	Records   []TripUpdateRecord
	Rejected  int
}
