package realtime

import (
	"errors"
	"fmt"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// ErrMalformedFeed is returned when a document cannot be decoded as a
// GTFS-realtime FeedMessage.
var ErrMalformedFeed = errors.New("malformed GTFS-realtime feed")

// Format is the encoding of an archived feed document.
type Format uint8

const (
	FormatProtobuf Format = iota
	FormatJSON
)

// Ext returns the file extension used for the format in the archive cache.
func (f Format) Ext() string {
	if f == FormatJSON {
		return "json"
	}
	return "pb"
}

// FormatFromExt is the inverse of Ext.
func FormatFromExt(ext string) (Format, bool) {
	switch ext {
	case "json":
		return FormatJSON, true
	case "pb":
		return FormatProtobuf, true
	}
	return 0, false
}

func decodeFeed(data []byte, format Format) (*gtfs.FeedMessage, error) {
	feed := &gtfs.FeedMessage{}
	var err error
	switch format {
	case FormatJSON:
		// The archive's JSON uses proto field names and carries agency
		// extensions the bindings don't know about.
		err = protojson.UnmarshalOptions{DiscardUnknown: true, AllowPartial: true}.Unmarshal(data, feed)
	default:
		err = proto.UnmarshalOptions{DiscardUnknown: true, AllowPartial: true}.Unmarshal(data, feed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}
	return feed, nil
}

func headerTime(feed *gtfs.FeedMessage) time.Time {
	ts := feed.GetHeader().GetTimestamp()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(int64(ts), 0)
}

// DecodeVehicles decodes a vehicle positions document. Entities without a
// vehicle position are ignored; positions missing a trip id or vehicle id
// are dropped and counted in Rejected.
func DecodeVehicles(data []byte, format Format) (*VehicleSnapshot, error) {
	feed, err := decodeFeed(data, format)
	if err != nil {
		return nil, err
	}

	snap := &VehicleSnapshot{Timestamp: headerTime(feed)}
	for _, entity := range feed.GetEntity() {
		vp := entity.GetVehicle()
		if vp == nil {
			continue
		}
		tripID := vp.GetTrip().GetTripId()
		vehicleID := vp.GetVehicle().GetId()
		if tripID == "" || vehicleID == "" {
			snap.Rejected++
			continue
		}
		snap.Records = append(snap.Records, VehicleRecord{
			RouteID:   vp.GetTrip().GetRouteId(),
			TripID:    tripID,
			VehicleID: vehicleID,
			Stop:      stopRef(vp),
		})
	}
	return snap, nil
}

func stopRef(vp *gtfs.VehiclePosition) StopRef {
	if vp.StopId != nil && *vp.StopId != "" {
		return AtStop(*vp.StopId)
	}
	if vp.CurrentStatus != nil && *vp.CurrentStatus == gtfs.VehiclePosition_IN_TRANSIT_TO {
		return InTransit()
	}
	return Unknown()
}

// DecodeTripUpdates decodes a trip updates document. Trip updates without a
// trip id are dropped and counted in Rejected; stop time updates without a
// stop id are skipped.
func DecodeTripUpdates(data []byte, format Format) (*PredictionSnapshot, error) {
	feed, err := decodeFeed(data, format)
	if err != nil {
		return nil, err
	}

	snap := &PredictionSnapshot{Timestamp: headerTime(feed)}
	for _, entity := range feed.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}
		tripID := tu.GetTrip().GetTripId()
		if tripID == "" {
			snap.Rejected++
			continue
		}
		rec := TripUpdateRecord{
			TripID:    tripID,
			RouteID:   tu.GetTrip().GetRouteId(),
			VehicleID: tu.GetVehicle().GetId(),
		}
		for _, stu := range tu.GetStopTimeUpdate() {
			if stu.GetStopId() == "" {
				continue
			}
			rec.Stops = append(rec.Stops, StopPrediction{
				StopID:    stu.GetStopId(),
				Arrival:   eventTime(stu.GetArrival()),
				Departure: eventTime(stu.GetDeparture()),
			})
		}
		snap.Records = append(snap.Records, rec)
	}
	return snap, nil
}

func eventTime(ev *gtfs.TripUpdate_StopTimeEvent) time.Time {
	if ev == nil || ev.Time == nil {
		return time.Time{}
	}
	return time.Unix(ev.GetTime(), 0)
}
