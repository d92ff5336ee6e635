package block

import (
	"math/rand"
	"sort"
	"strconv"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
)

var _ Schedule = (*gtfs.Index)(nil)

type fakeSchedule struct {
	trips  []gtfs.ScheduleTrip
	bounds map[string][2]int
}

func (f *fakeSchedule) add(t gtfs.ScheduleTrip, first, last int) *fakeSchedule {
	if f.bounds == nil {
		f.bounds = map[string][2]int{}
	}
	f.trips = append(f.trips, t)
	f.bounds[t.ID] = [2]int{first, last}
	return f
}

func (f *fakeSchedule) TripByID(id string) (gtfs.ScheduleTrip, bool) {
	for _, t := range f.trips {
		if t.ID == id {
			return t, true
		}
	}
	return gtfs.ScheduleTrip{}, false
}

func (f *fakeSchedule) TripsForBlock(blockID, serviceID string) []gtfs.ScheduleTrip {
	var out []gtfs.ScheduleTrip
	for _, t := range f.trips {
		if t.BlockID == blockID && t.ServiceID == serviceID {
			out = append(out, t)
		}
	}
	return out
}

func (f *fakeSchedule) TripBounds(id string) (int, int, bool) {
	b, ok := f.bounds[id]
	return b[0], b[1], ok
}

func trip(id, headsign, shape, display string, dir int) gtfs.ScheduleTrip {
	return gtfs.ScheduleTrip{
		ID: id, RouteID: "R1", RouteShortName: "A", Headsign: headsign, ShapeID: shape,
		DisplayCode: display, Direction: dir, BlockID: "B1", BlockName: "1-101", ServiceID: "WK",
	}
}

func tripIDs(b *Block) [][]string {
	out := make([][]string, len(b.Trips))
	for i, t := range b.Trips {
		out[i] = t.Trips
	}
	return out
}

func TestBuild_MergesSplitTripsAndOrders(t *testing.T) {
	s := (&fakeSchedule{}).
		add(trip("T3", "KALIHI", "SH2", "B7", 1), 33300, 35000).
		add(trip("T2", "WAIKIKI", "SH1", "A1", 0), 30600, 32400).
		add(trip("T1", "WAIKIKI", "SH1", "A1", 0), 28800, 30600)
	other := trip("T9", "WAIKIKI", "SH1", "A1", 0)
	other.ServiceID = "SA"
	s.add(other, 28800, 30600)

	b, ok := Build(s, "T3")
	require.True(t, ok)
	assert.Equal(t, "B1", b.ID)
	assert.Equal(t, "1-101", b.Name)
	assert.Equal(t, "WK", b.ServiceID)
	assert.Equal(t, [][]string{{"T1", "T2"}, {"T3"}}, tripIDs(b))
	assert.Equal(t, 28800, b.Trips[0].FirstArrives)
	assert.Equal(t, 32400, b.Trips[0].LastDeparts)
	assert.Equal(t, "A", b.Trips[0].RouteCode)

	assert.True(t, b.Contains("T2"))
	assert.False(t, b.Contains("T9"), "other service day is a different duty")
}

func TestBuild_NotFound(t *testing.T) {
	noBlock := trip("T1", "WAIKIKI", "SH1", "A1", 0)
	noBlock.BlockID = ""
	s := (&fakeSchedule{}).add(noBlock, 0, 10)

	_, ok := Build(s, "T1")
	assert.False(t, ok)
	_, ok = Build(s, "missing")
	assert.False(t, ok)
}

func TestBuild_FromIndex(t *testing.T) {
	log, _ := test.NewNullLogger()
	feed := &gtfs.Feed{
		Routes: []gtfs.RouteRow{{RouteID: "R1", ShortName: "A"}},
		Trips: []gtfs.TripRow{
			{RouteID: "R1", ServiceID: "WK", TripID: "T1", Headsign: "WAIKIKI", DirectionID: "0", BlockID: "B1", ShapeID: "SH1", DisplayCode: "A1"},
			{RouteID: "R1", ServiceID: "WK", TripID: "T2", Headsign: "WAIKIKI", DirectionID: "0", BlockID: "B1", ShapeID: "SH1", DisplayCode: "A1"},
		},
		StopTimes: []gtfs.StopTimeRow{
			{TripID: "T1", ArrivalTime: "23:50:00", DepartureTime: "23:50:00", StopID: "S1", StopSequence: "1"},
			{TripID: "T1", ArrivalTime: "24:00:00", DepartureTime: "24:00:00", StopID: "S2", StopSequence: "2"},
			{TripID: "T2", ArrivalTime: "24:00:00", DepartureTime: "24:00:00", StopID: "S2", StopSequence: "1"},
			{TripID: "T2", ArrivalTime: "24:10:00", DepartureTime: "24:10:00", StopID: "S3", StopSequence: "2"},
		},
	}
	idx, err := gtfs.NewIndex(feed, log)
	require.NoError(t, err)

	b, ok := Build(idx, "T2")
	require.True(t, ok)
	require.Len(t, b.Trips, 1)
	assert.Equal(t, []string{"T1", "T2"}, b.Trips[0].Trips)
	assert.Equal(t, 85800, b.Trips[0].FirstArrives)
	assert.Equal(t, 87000, b.Trips[0].LastDeparts)
}

func TestMerge_RequiresEveryKeyFieldAndExactHandoff(t *testing.T) {
	base := BlockTrip{Trips: []string{"a"}, Headsign: "H", ShapeID: "S", Direction: 0, DisplayCode: "D", FirstArrives: 0, LastDeparts: 100}

	tests := []struct {
		name   string
		mutate func(*BlockTrip)
		merged bool
	}{
		{"identical key, exact handoff", func(*BlockTrip) {}, true},
		{"gap between trips", func(b *BlockTrip) { b.FirstArrives = 101 }, false},
		{"different headsign", func(b *BlockTrip) { b.Headsign = "X" }, false},
		{"different shape", func(b *BlockTrip) { b.ShapeID = "X" }, false},
		{"different direction", func(b *BlockTrip) { b.Direction = 1 }, false},
		{"different display code", func(b *BlockTrip) { b.DisplayCode = "X" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := base
			next.Trips = []string{"b"}
			next.FirstArrives, next.LastDeparts = 100, 200
			tt.mutate(&next)

			got := Merge([]BlockTrip{base, next})
			if tt.merged {
				require.Len(t, got, 1)
				assert.Equal(t, []string{"a", "b"}, got[0].Trips)
				assert.Equal(t, 200, got[0].LastDeparts)
			} else {
				assert.Len(t, got, 2)
			}
		})
	}
}

func TestMerge_DoesNotAliasInput(t *testing.T) {
	in := []BlockTrip{
		{Trips: []string{"a"}, LastDeparts: 10},
		{Trips: []string{"b"}, FirstArrives: 10, LastDeparts: 20},
	}
	_ = Merge(in)
	assert.Equal(t, []string{"a"}, in[0].Trips)
}

func TestMerge_TiesDoNotPanic(t *testing.T) {
	in := []BlockTrip{
		{Trips: []string{"a"}, Headsign: "X", FirstArrives: 100, LastDeparts: 100},
		{Trips: []string{"b"}, Headsign: "Y", FirstArrives: 100, LastDeparts: 200},
		{Trips: []string{"c"}, Headsign: "Y", FirstArrives: 100, LastDeparts: 300},
	}
	assert.NotPanics(t, func() { Merge(in) })
}

func randomTrips(r *rand.Rand, n int) []BlockTrip {
	headsigns := []string{"WAIKIKI", "KALIHI"}
	trips := make([]BlockTrip, 0, n)
	start := r.Intn(20000)
	for i := 0; i < n; i++ {
		length := 600 + r.Intn(3000)
		h := headsigns[r.Intn(len(headsigns))]
		trips = append(trips, BlockTrip{
			Trips:        []string{strconv.Itoa(i)},
			Headsign:     h,
			ShapeID:      h,
			DisplayCode:  h,
			FirstArrives: start,
			LastDeparts:  start + length,
		})
		if r.Intn(2) == 0 {
			start += length
		} else {
			start += length + r.Intn(1800)
		}
	}
	r.Shuffle(len(trips), func(i, j int) { trips[i], trips[j] = trips[j], trips[i] })
	sort.SliceStable(trips, func(i, j int) bool { return trips[i].FirstArrives < trips[j].FirstArrives })
	return trips
}

func TestMerge_OrderedAndIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		in := randomTrips(r, 1+r.Intn(12))
		once := Merge(in)
		for j := 1; j < len(once); j++ {
			require.LessOrEqual(t, once[j-1].FirstArrives, once[j].FirstArrives)
		}
		assert.Equal(t, once, Merge(once))

		var total int
		for _, bt := range once {
			total += len(bt.Trips)
		}
		assert.Equal(t, len(in), total, "every trip id survives the merge")
	}
}

func TestBlock_IndexOfByMembership(t *testing.T) {
	b := &Block{Trips: []BlockTrip{
		{Trips: []string{"T1", "T2"}},
		{Trips: []string{"T3"}},
	}}
	assert.Equal(t, 0, b.IndexOf(BlockTrip{Trips: []string{"T2"}}))
	assert.Equal(t, 1, b.IndexOf(BlockTrip{Trips: []string{"T3"}}))
	assert.Equal(t, -1, b.IndexOf(BlockTrip{Trips: []string{"T4"}}))

	var nilBlock *Block
	assert.False(t, nilBlock.Contains("T1"))
}
