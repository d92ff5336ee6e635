package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theoremus-urban-solutions/transit-tracker/block"
	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
	"github.com/theoremus-urban-solutions/transit-tracker/predict"
)

type fakeArrivalSource struct {
	byStop map[string][]predict.RawArrival
	err    error
}

func (s fakeArrivalSource) FetchArrivals(_ context.Context, stopCode string) ([]predict.RawArrival, error) {
	return s.byStop[stopCode], s.err
}

func stopTwoArrivals() []predict.RawArrival {
	return []predict.RawArrival{
		{ID: "a1", Trip: "T1", Route: "A", Vehicle: "101", Estimated: "1", StopTime: "8:30 AM", Date: "6/3/2024", Canceled: "0"},
		{ID: "a2", Trip: "T9", Route: "2", Vehicle: "???", Estimated: "2", StopTime: "10:05 AM", Date: "6/3/2024", Canceled: "0"},
		{ID: "a3", Trip: "T2", Route: "A", Vehicle: "555", Estimated: "1", StopTime: "8:30 AM", Date: "6/3/2024", Latitude: "21.3", Longitude: "-157.84"},
		{ID: "a4", Trip: "T2", Route: "A", Vehicle: "777", Estimated: "1", StopTime: "8:30 AM", Date: "6/3/2024", Canceled: "1"},
	}
}

func newArrivalFixture(t *testing.T, source ArrivalSource) (*ArrivalService, *fakeClock) {
	t.Helper()
	f := newReconcilerFixture(t, nil)
	f.src.set([]Report{{
		Number:      "101",
		TripID:      "T1",
		Position:    gtfs.Point{Lat: 21.3, Lon: -157.84},
		LastMessage: f.clk.Now(),
	}}, nil)
	svc := NewArrivalService(source, f.sched.ScheduleCache, f.r, block.DefaultResolver(), nullLogger())
	svc.now = f.clk.Now
	return svc, f.clk
}

func TestArrivalService_Arrivals(t *testing.T) {
	svc, _ := newArrivalFixture(t, fakeArrivalSource{byStop: map[string][]predict.RawArrival{"200": stopTwoArrivals()}})

	got, err := svc.Arrivals(context.Background(), "200", "")
	require.NoError(t, err)
	require.Len(t, got, 4)
	byID := map[string]predict.Arrival{}
	for _, a := range got {
		byID[a.ID] = a
	}

	tracked := byID["a1"]
	assert.Equal(t, "101", tracked.Vehicle)
	assert.Equal(t, predict.GPS, tracked.Estimated)
	assert.Equal(t, predict.EnRoute, tracked.State)
	assert.Equal(t, 15*60, tracked.ETA)
	assert.Greater(t, tracked.Distance, 0.0)
	assert.False(t, tracked.Departing)
	assert.True(t, time.Date(2024, 6, 3, 8, 30, 0, 0, hst(t)).Equal(tracked.StopTime))

	unassigned := byID["a2"]
	assert.Empty(t, unassigned.Vehicle)
	assert.Equal(t, predict.Scheduled, unassigned.Estimated)
	assert.Equal(t, predict.NoGPSFix, unassigned.State)
	assert.Equal(t, "2", unassigned.Trip.RouteCode)

	untracked := byID["a3"]
	assert.Equal(t, predict.EnRoute, untracked.State, "position from the arrival record")
	assert.Equal(t, 15*60, untracked.ETA)
	assert.True(t, untracked.Departing)

	noPosition := byID["a4"]
	assert.Equal(t, predict.NoGPSFix, noPosition.State)
	assert.Equal(t, predict.Canceled, noPosition.Status)
}

func TestArrivalService_LikelyPassed(t *testing.T) {
	svc, clk := newArrivalFixture(t, fakeArrivalSource{byStop: map[string][]predict.RawArrival{"200": stopTwoArrivals()[:1]}})
	clk.Advance(17 * time.Minute)

	got, err := svc.Arrivals(context.Background(), "200", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, -2*60, got[0].ETA)
	assert.Equal(t, predict.LikelyPassed, got[0].State)
}

func TestArrivalService_FiltersByRoute(t *testing.T) {
	svc, _ := newArrivalFixture(t, fakeArrivalSource{byStop: map[string][]predict.RawArrival{"200": stopTwoArrivals()}})

	tests := []struct {
		route string
		want  []string
	}{
		{route: "2", want: []string{"a2"}},
		{route: "a", want: []string{"a1", "a3", "a4"}},
		{route: "C", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			got, err := svc.Arrivals(context.Background(), "200", tt.route)
			require.NoError(t, err)
			var ids []string
			for _, a := range got {
				ids = append(ids, a.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestArrivalService_SourceError(t *testing.T) {
	svc, _ := newArrivalFixture(t, fakeArrivalSource{err: errors.New("HTTP 503")})

	_, err := svc.Arrivals(context.Background(), "200", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop 200")
}

func TestArrivalService_NoSchedule(t *testing.T) {
	cache := NewScheduleCache(&fakeFeedSource{err: errors.New("down")}, nullLogger(), ScheduleOptions{})
	r := NewReconciler(&fakeVehicleSource{}, cache, nullLogger(), Options{})
	svc := NewArrivalService(fakeArrivalSource{}, cache, r, block.DefaultResolver(), nullLogger())

	got, err := svc.Arrivals(context.Background(), "200", "")
	assert.Error(t, err)
	assert.Nil(t, got)
}
