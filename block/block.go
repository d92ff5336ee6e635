package block

import (
	"sort"

	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
)

// Schedule is the part of the static index a Block is built from.
type Schedule interface {
	TripByID(id string) (gtfs.ScheduleTrip, bool)
	TripsForBlock(blockID, serviceID string) []gtfs.ScheduleTrip
	TripBounds(tripID string) (first, last int, ok bool)
}

// BlockTrip is one logical trip of a block. Trips lists every feed trip id
// merged into it.
type BlockTrip struct {
	Trips        []string `json:"trips"`
	RouteID      string   `json:"routeId"`
	RouteCode    string   `json:"routeCode"`
	Headsign     string   `json:"headsign"`
	ShapeID      string   `json:"shapeId"`
	DisplayCode  string   `json:"displayCode"`
	Direction    int      `json:"direction"`
	FirstArrives int      `json:"firstArrives"`
	LastDeparts  int      `json:"lastDeparts"`
}

// Contains reports whether tripID is one of the merged trip ids.
func (t BlockTrip) Contains(tripID string) bool {
	for _, id := range t.Trips {
		if id == tripID {
			return true
		}
	}
	return false
}

// SharesTrip reports whether t and o have at least one trip id in common.
func (t BlockTrip) SharesTrip(o BlockTrip) bool {
	for _, id := range o.Trips {
		if t.Contains(id) {
			return true
		}
	}
	return false
}

// Block is one vehicle's duty for one service day.
type Block struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	ServiceID string      `json:"serviceId"`
	Trips     []BlockTrip `json:"trips"`
}

// Contains reports whether any BlockTrip carries tripID.
func (b *Block) Contains(tripID string) bool {
	_, ok := b.TripFor(tripID)
	return ok
}

// TripFor returns the BlockTrip carrying tripID.
func (b *Block) TripFor(tripID string) (BlockTrip, bool) {
	if b == nil {
		return BlockTrip{}, false
	}
	for _, t := range b.Trips {
		if t.Contains(tripID) {
			return t, true
		}
	}
	return BlockTrip{}, false
}

// IndexOf returns the position of the BlockTrip sharing a trip id with t, or -1.
func (b *Block) IndexOf(t BlockTrip) int {
	if b == nil {
		return -1
	}
	for i, bt := range b.Trips {
		if bt.SharesTrip(t) {
			return i
		}
	}
	return -1
}

// Build assembles the Block of tripID. It reports false when the trip is
// unknown or carries no block id.
func Build(s Schedule, tripID string) (*Block, bool) {
	trip, ok := s.TripByID(tripID)
	if !ok || trip.BlockID == "" {
		return nil, false
	}
	members := s.TripsForBlock(trip.BlockID, trip.ServiceID)
	trips := make([]BlockTrip, 0, len(members))
	for _, m := range members {
		first, last, ok := s.TripBounds(m.ID)
		if !ok {
			continue
		}
		trips = append(trips, BlockTrip{
			Trips:        []string{m.ID},
			RouteID:      m.RouteID,
			RouteCode:    m.RouteShortName,
			Headsign:     m.Headsign,
			ShapeID:      m.ShapeID,
			DisplayCode:  m.DisplayCode,
			Direction:    m.Direction,
			FirstArrives: first,
			LastDeparts:  last,
		})
	}
	sort.SliceStable(trips, func(i, j int) bool { return trips[i].FirstArrives < trips[j].FirstArrives })
	return &Block{
		ID:        trip.BlockID,
		Name:      trip.BlockName,
		ServiceID: trip.ServiceID,
		Trips:     Merge(trips),
	}, true
}

type mergeKey struct {
	headsign    string
	shapeID     string
	direction   int
	displayCode string
}

func keyOf(t BlockTrip) mergeKey {
	return mergeKey{headsign: t.Headsign, shapeID: t.ShapeID, direction: t.Direction, displayCode: t.DisplayCode}
}

// Merge joins adjacent sub-trips with equal merge keys where the first ends
// exactly when the second begins. Input must be ordered by FirstArrives. The
// input slice is not modified, and Merge(Merge(x)) equals Merge(x).
func Merge(trips []BlockTrip) []BlockTrip {
	out := make([]BlockTrip, 0, len(trips))
	for _, t := range trips {
		t.Trips = append([]string(nil), t.Trips...)
		if n := len(out); n > 0 {
			prev := &out[n-1]
			if keyOf(*prev) == keyOf(t) && prev.LastDeparts == t.FirstArrives {
				prev.Trips = append(prev.Trips, t.Trips...)
				if t.LastDeparts > prev.LastDeparts {
					prev.LastDeparts = t.LastDeparts
				}
				continue
			}
		}
		out = append(out, t)
	}
	return out
}
