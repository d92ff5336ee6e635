package tracking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
)

func testFeed() *gtfs.Feed {
	return &gtfs.Feed{
		Agency:   []gtfs.AgencyRow{{AgencyID: "TB", Name: "TheBus", Timezone: "Pacific/Honolulu"}},
		Calendar: []gtfs.CalendarRow{{ServiceID: "WK", Monday: "1", Tuesday: "1", Wednesday: "1", Thursday: "1", Friday: "1", Saturday: "1", Sunday: "1", StartDate: "20240101", EndDate: "20241231"}},
		FeedInfo: []gtfs.FeedInfoRow{{PublisherName: "TheBus", EndDate: "20240630"}},
		Routes:   []gtfs.RouteRow{{RouteID: "R1", ShortName: "A"}, {RouteID: "R2", ShortName: "2"}},
		Stops: []gtfs.StopRow{
			{StopID: "S1", Code: "100", Name: "First", Lat: "21.3", Lon: "-157.84"},
			{StopID: "S2", Code: "200", Name: "Second", Lat: "21.3", Lon: "-157.83"},
			{StopID: "S3", Code: "300", Name: "Third", Lat: "21.3", Lon: "-157.82"},
		},
		Trips: []gtfs.TripRow{
			{RouteID: "R1", ServiceID: "WK", TripID: "T1", Headsign: "EAST", DirectionID: "0", BlockID: "B1", ShapeID: "EAST", DisplayCode: "A1"},
			{RouteID: "R1", ServiceID: "WK", TripID: "T2", Headsign: "EAST", DirectionID: "0", BlockID: "B1", ShapeID: "EAST", DisplayCode: "A1"},
			{RouteID: "R2", ServiceID: "WK", TripID: "T3", Headsign: "WEST", DirectionID: "1", BlockID: "B1", ShapeID: "WEST", DisplayCode: "B1"},
			{RouteID: "R2", ServiceID: "WK", TripID: "T9", Headsign: "WEST", DirectionID: "1", BlockID: "B2", ShapeID: "WEST", DisplayCode: "B1"},
		},
		StopTimes: []gtfs.StopTimeRow{
			{TripID: "T1", ArrivalTime: "08:00:00", DepartureTime: "08:00:00", StopID: "S1", StopSequence: "1"},
			{TripID: "T1", ArrivalTime: "08:30:00", DepartureTime: "08:30:00", StopID: "S2", StopSequence: "2"},
			{TripID: "T2", ArrivalTime: "08:30:00", DepartureTime: "08:30:00", StopID: "S2", StopSequence: "1"},
			{TripID: "T2", ArrivalTime: "09:00:00", DepartureTime: "09:00:00", StopID: "S3", StopSequence: "2"},
			{TripID: "T3", ArrivalTime: "09:15:00", DepartureTime: "09:15:00", StopID: "S3", StopSequence: "1"},
			{TripID: "T3", ArrivalTime: "09:45:00", DepartureTime: "09:45:00", StopID: "S1", StopSequence: "2"},
			{TripID: "T9", ArrivalTime: "10:00:00", DepartureTime: "10:00:00", StopID: "S3", StopSequence: "1"},
			{TripID: "T9", ArrivalTime: "10:30:00", DepartureTime: "10:30:00", StopID: "S1", StopSequence: "2"},
		},
		Shapes: []gtfs.ShapeRow{
			{ShapeID: "EAST", Lat: "21.3", Lon: "-157.84", Sequence: "1"},
			{ShapeID: "EAST", Lat: "21.3", Lon: "-157.83", Sequence: "2"},
			{ShapeID: "EAST", Lat: "21.3", Lon: "-157.82", Sequence: "3"},
			{ShapeID: "WEST", Lat: "21.3", Lon: "-157.82", Sequence: "1"},
			{ShapeID: "WEST", Lat: "21.3", Lon: "-157.84", Sequence: "2"},
		},
	}
}

func nullLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func hst(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Pacific/Honolulu")
	require.NoError(t, err)
	return loc
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeFeedSource serves a fixed feed or error and counts loads.
type fakeFeedSource struct {
	mu    sync.Mutex
	feed  *gtfs.Feed
	err   error
	loads int
	gate  chan struct{}
}

func (s *fakeFeedSource) LoadFeed(context.Context) (*gtfs.Feed, error) {
	s.mu.Lock()
	s.loads++
	gate := s.gate
	feed, err := s.feed, s.err
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return feed, err
}

func (s *fakeFeedSource) set(feed *gtfs.Feed, err error) {
	s.mu.Lock()
	s.feed, s.err = feed, err
	s.mu.Unlock()
}

func (s *fakeFeedSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

// fakeVehicleSource serves reports and counts fetches. When gate is set a
// fetch signals entered and waits for gate to close.
type fakeVehicleSource struct {
	mu      sync.Mutex
	reports []Report
	err     error
	calls   int
	gate    chan struct{}
	entered chan struct{}
}

func (s *fakeVehicleSource) FetchVehicles(context.Context) ([]Report, error) {
	s.mu.Lock()
	s.calls++
	gate, entered := s.gate, s.entered
	reports := append([]Report(nil), s.reports...)
	err := s.err
	s.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return reports, err
}

func (s *fakeVehicleSource) set(reports []Report, err error) {
	s.mu.Lock()
	s.reports, s.err = reports, err
	s.mu.Unlock()
}

func (s *fakeVehicleSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// loadedSchedule is a ScheduleCache over testFeed, already loaded.
func loadedSchedule(t *testing.T) *ScheduleCache {
	t.Helper()
	c := NewScheduleCache(&fakeFeedSource{feed: testFeed()}, nullLogger(), ScheduleOptions{
		Now: func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) },
	})
	idx, err := c.Index(context.Background())
	require.NoError(t, err)
	require.NotNil(t, idx)
	return c
}

type countingMetrics struct {
	mu                                    sync.Mutex
	polls, failures, rebuilt, reused      int
	staticOK, staticFailed, lastVehicles int
}

func (m *countingMetrics) PollCompleted(_ time.Duration, n int) {
	m.mu.Lock()
	m.polls++
	m.lastVehicles = n
	m.mu.Unlock()
}
func (m *countingMetrics) FetchFailed()  { m.mu.Lock(); m.failures++; m.mu.Unlock() }
func (m *countingMetrics) BlockRebuilt() { m.mu.Lock(); m.rebuilt++; m.mu.Unlock() }
func (m *countingMetrics) BlockReused()  { m.mu.Lock(); m.reused++; m.mu.Unlock() }
func (m *countingMetrics) StaticRefreshed(ok bool) {
	m.mu.Lock()
	if ok {
		m.staticOK++
	} else {
		m.staticFailed++
	}
	m.mu.Unlock()
}
