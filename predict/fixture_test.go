package predict

import (
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
)

// A straight east-west line at 21.3N with points roughly 1 km apart.
var (
	p1 = gtfs.Point{Lat: 21.3, Lon: -157.84}
	p2 = gtfs.Point{Lat: 21.3, Lon: -157.83}
	p3 = gtfs.Point{Lat: 21.3, Lon: -157.82}
	p4 = gtfs.Point{Lat: 21.3, Lon: -157.81}
)

func lineShape() gtfs.Shape {
	return gtfs.NewShape("EAST", []gtfs.ShapePoint{
		{Lat: p3.Lat, Lon: p3.Lon, Sequence: 3},
		{Lat: p1.Lat, Lon: p1.Lon, Sequence: 1},
		{Lat: p4.Lat, Lon: p4.Lon, Sequence: 4},
		{Lat: p2.Lat, Lon: p2.Lon, Sequence: 2},
	})
}

func testIndex(t *testing.T) *gtfs.Index {
	t.Helper()
	log, _ := test.NewNullLogger()
	feed := &gtfs.Feed{
		Agency: []gtfs.AgencyRow{{AgencyID: "TB", Name: "TheBus", Timezone: "Pacific/Honolulu"}},
		Routes: []gtfs.RouteRow{{RouteID: "R1", ShortName: "A"}, {RouteID: "R2", ShortName: "2"}},
		Stops: []gtfs.StopRow{
			{StopID: "S1", Code: "100", Name: "First", Lat: "21.3", Lon: "-157.84"},
			{StopID: "S2", Code: "200", Name: "Second", Lat: "21.3", Lon: "-157.82"},
			{StopID: "S3", Code: "300", Name: "Third", Lat: "21.31", Lon: "-157.81"},
		},
		Trips: []gtfs.TripRow{
			{RouteID: "R1", ServiceID: "WK", TripID: "T1", Headsign: "EAST", DirectionID: "0", BlockID: "B1", ShapeID: "EAST", DisplayCode: "A1"},
			{RouteID: "R2", ServiceID: "WK", TripID: "T2", Headsign: "NORTH", DirectionID: "1", BlockID: "B1", ShapeID: "NORTH", DisplayCode: "B1"},
		},
		StopTimes: []gtfs.StopTimeRow{
			{TripID: "T1", ArrivalTime: "08:00:00", DepartureTime: "08:00:00", StopID: "S1", StopSequence: "1"},
			{TripID: "T1", ArrivalTime: "08:10:00", DepartureTime: "08:10:00", StopID: "S2", StopSequence: "2"},
			{TripID: "T2", ArrivalTime: "08:30:00", DepartureTime: "08:30:00", StopID: "S2", StopSequence: "1"},
			{TripID: "T2", ArrivalTime: "08:40:00", DepartureTime: "08:40:00", StopID: "S3", StopSequence: "2"},
		},
		Shapes: []gtfs.ShapeRow{
			{ShapeID: "EAST", Lat: "21.3", Lon: "-157.84", Sequence: "1"},
			{ShapeID: "EAST", Lat: "21.3", Lon: "-157.83", Sequence: "2"},
			{ShapeID: "EAST", Lat: "21.3", Lon: "-157.82", Sequence: "3"},
			{ShapeID: "NORTH", Lat: "21.3", Lon: "-157.82", Sequence: "1"},
			{ShapeID: "NORTH", Lat: "21.31", Lon: "-157.81", Sequence: "2"},
		},
	}
	idx, err := gtfs.NewIndex(feed, log)
	require.NoError(t, err)
	return idx
}
