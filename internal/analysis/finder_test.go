package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lasttrips/internal/realtime"
)

var serviceDate = time.Date(2020, 7, 22, 0, 0, 0, 0, time.UTC)

func minute(m int) time.Time {
	return time.Date(2020, 7, 22, 0, m, 0, 0, time.UTC)
}

func key(m int) string { return minute(m).Format(minuteLayout) }

func TestFinder_DirectionalGate(t *testing.T) {
	// Vehicle y1 sits before the target once and is never seen past it.
	vehicles := &fakeVehicles{snaps: map[string][]realtime.VehicleRecord{
		key(90): {at("1", "T1", "y1", "110")},
	}}
	f := NewFinder(route1(), vehicles, 120, discard)

	_, found, err := f.Find(context.Background(), Target{RouteID: "1", StopID: "110"}, serviceDate)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Len(t, vehicles.fetched, 120)
}

func TestFinder_ConfirmedDownstream(t *testing.T) {
	vehicles := &fakeVehicles{snaps: map[string][]realtime.VehicleRecord{
		key(100): {at("1", "T1", "y1", "112")},
		key(95):  {at("1", "T2", "y2", "110"), at("1", "T1", "y1", "110")},
	}}
	f := NewFinder(route1(), vehicles, 120, discard)

	got, found, err := f.Find(context.Background(), Target{RouteID: "1", StopID: "110"}, serviceDate)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ObservedLastTrip{TripID: "T1", VehicleID: "y1", Minute: minute(95)}, got)
}

func TestFinder_SameMinuteEvidenceCountsOnlyFromNextStep(t *testing.T) {
	// Two records for y1 in one minute: one past the target, one before it.
	// The match test runs before the minute's downstream sightings are added.
	vehicles := &fakeVehicles{snaps: map[string][]realtime.VehicleRecord{
		key(100): {at("1", "T1", "y1", "110"), at("1", "T1", "y1", "112")},
		key(99):  {at("1", "T1", "y1", "108")},
	}}
	f := NewFinder(route1(), vehicles, 120, discard)

	got, found, err := f.Find(context.Background(), Target{RouteID: "1", StopID: "110"}, serviceDate)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, minute(99), got.Minute)
}

func TestFinder_TerminalShortcut(t *testing.T) {
	vehicles := &fakeVehicles{snaps: map[string][]realtime.VehicleRecord{
		key(60): {at("1", "T1", "y1", "112")},
	}}
	f := NewFinder(route1(), vehicles, 60, discard)

	got, found, err := f.Find(context.Background(), Target{RouteID: "1", StopID: "112"}, serviceDate)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, minute(60), got.Minute)
	assert.Len(t, vehicles.fetched, 1, "match at the first minute scanned")
}

func TestFinder_BackwardOrder(t *testing.T) {
	const horizon = 100
	vehicles := &fakeVehicles{snaps: map[string][]realtime.VehicleRecord{
		key(horizon - 5):  {at("1", "LATE", "y1", "112")},
		key(horizon - 50): {at("1", "EARLY", "y2", "112")},
	}}
	f := NewFinder(route1(), vehicles, horizon, discard)

	got, found, err := f.Find(context.Background(), Target{RouteID: "1", StopID: "112"}, serviceDate)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "LATE", got.TripID)
	assert.Equal(t, minute(horizon-5), got.Minute)

	for i := 1; i < len(vehicles.fetched); i++ {
		assert.True(t, vehicles.fetched[i].Before(vehicles.fetched[i-1]), "minutes must strictly decrease")
	}
}

func TestFinder_FirstRecordInFeedOrderWins(t *testing.T) {
	vehicles := &fakeVehicles{snaps: map[string][]realtime.VehicleRecord{
		key(10): {at("1", "A", "y1", "108"), at("1", "B", "y2", "112")},
	}}
	f := NewFinder(route1(), vehicles, 10, discard)

	got, found, err := f.Find(context.Background(), Target{RouteID: "1", StopID: "112"}, serviceDate)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "A", got.TripID)
}

func TestFinder_IgnoresOtherRoutesAndMissingStops(t *testing.T) {
	vehicles := &fakeVehicles{snaps: map[string][]realtime.VehicleRecord{
		key(10): {
			at("47", "X", "y1", "112"),
			{RouteID: "1", TripID: "Y", VehicleID: "y2", Stop: realtime.InTransit()},
			{RouteID: "1", TripID: "Z", VehicleID: "y3", Stop: realtime.Unknown()},
		},
	}}
	f := NewFinder(route1(), vehicles, 10, discard)

	_, found, err := f.Find(context.Background(), Target{RouteID: "1", StopID: "112"}, serviceDate)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFinder_UnservedStopDoesNotScan(t *testing.T) {
	vehicles := &fakeVehicles{}
	f := NewFinder(route1(), vehicles, 1619, discard)

	_, found, err := f.Find(context.Background(), Target{RouteID: "1", StopID: "999"}, serviceDate)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, vehicles.fetched)
}

func TestFinder_FetchErrorAborts(t *testing.T) {
	boom := errors.New("archive unavailable")
	vehicles := &fakeVehicles{failAt: key(8), err: boom}
	f := NewFinder(route1(), vehicles, 10, discard)

	_, _, err := f.Find(context.Background(), Target{RouteID: "1", StopID: "110"}, serviceDate)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, vehicles.fetched, 3)
}

func TestFinder_DefaultHorizonSpansIntoNextDay(t *testing.T) {
	vehicles := &fakeVehicles{}
	obs := &countingObserver{}
	f := NewFinder(route1(), vehicles, 0, discard)
	f.SetObserver(obs)

	_, found, err := f.Find(context.Background(), Target{RouteID: "1", StopID: "110"}, serviceDate)
	require.NoError(t, err)
	assert.False(t, found)
	require.Len(t, vehicles.fetched, DefaultHorizonMinutes)
	assert.Equal(t, DefaultHorizonMinutes, obs.minutes)
	assert.Equal(t, "2020-07-23T02:59", vehicles.fetched[0].Format(minuteLayout))
	assert.Equal(t, "2020-07-22T00:01", vehicles.fetched[len(vehicles.fetched)-1].Format(minuteLayout))
}

func TestFinder_Scenario(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	date := time.Date(2020, 7, 22, 0, 0, 0, 0, loc)

	t.Run("confirmed after the sighting", func(t *testing.T) {
		vehicles := &fakeVehicles{snaps: map[string][]realtime.VehicleRecord{
			"2020-07-23T00:05": {at("1", "T1-Actual", "V9", "112")},
			"2020-07-22T23:58": {at("1", "T1-Actual", "V9", "110")},
		}}
		f := NewFinder(route1(), vehicles, DefaultHorizonMinutes, discard)

		got, found, err := f.Find(context.Background(), Target{RouteID: "1", DirectionID: 0, StopID: "110"}, date)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "T1-Actual", got.TripID)
		assert.Equal(t, "V9", got.VehicleID)
		assert.Equal(t, "2020-07-22T23:58", got.Minute.Format(minuteLayout))
	})

	t.Run("downstream sighting earlier in the day is not evidence", func(t *testing.T) {
		vehicles := &fakeVehicles{snaps: map[string][]realtime.VehicleRecord{
			"2020-07-22T23:58": {at("1", "T1-Actual", "V9", "110")},
			"2020-07-22T23:50": {at("1", "T1-Actual", "V9", "112")},
		}}
		f := NewFinder(route1(), vehicles, DefaultHorizonMinutes, discard)

		_, found, err := f.Find(context.Background(), Target{RouteID: "1", StopID: "110"}, date)
		require.NoError(t, err)
		assert.False(t, found)
	})
}
