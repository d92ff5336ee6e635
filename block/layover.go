package block

import (
	"encoding/json"
	"fmt"
)

// State is the layover display state of a vehicle.
type State int

const (
	InTransit State = iota
	OnLayover
	LayoverSkipRisk
	NextTripStarting
	EndedReturningToFacility
	FinalTrip
)

var stateNames = map[State]string{
	InTransit:                "in_transit",
	OnLayover:                "on_layover",
	LayoverSkipRisk:          "layover_skip_risk",
	NextTripStarting:         "next_trip_starting",
	EndedReturningToFacility: "ended_returning_to_facility",
	FinalTrip:                "final_trip",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Layover describes the active trip's window and the trip that follows it.
type Layover struct {
	Start int        `json:"start"`
	End   int        `json:"end"`
	Next  *BlockTrip `json:"next,omitempty"`
}

// NextTrip returns the BlockTrip following active, matched by trip-id
// membership since merged trips carry several ids.
func NextTrip(b *Block, active BlockTrip) (BlockTrip, bool) {
	i := b.IndexOf(active)
	if i < 0 || i+1 >= len(b.Trips) {
		return BlockTrip{}, false
	}
	return b.Trips[i+1], true
}

// LayoverFor builds the layover window of active within b.
func LayoverFor(b *Block, active BlockTrip) Layover {
	l := Layover{Start: active.FirstArrives, End: active.LastDeparts}
	if next, ok := NextTrip(b, active); ok {
		l.Next = &next
	}
	return l
}

// State evaluates the layover state machine at vehicleNow, a service-day
// time already adjusted for adherence. The layover begins inclusively at
// the end of the active trip and stops exclusively at the next trip's start.
func (r Resolver) State(l Layover, vehicleNow int) State {
	if l.Next == nil {
		if vehicleNow > l.End {
			return EndedReturningToFacility
		}
		return FinalTrip
	}
	next := l.Next.FirstArrives
	switch {
	case vehicleNow >= l.End && vehicleNow < next:
		return OnLayover
	case vehicleNow > l.End && vehicleNow >= next && vehicleNow <= next+r.SkipWindow:
		return LayoverSkipRisk
	case vehicleNow >= next:
		return NextTripStarting
	}
	return InTransit
}

// Advice is everything the display needs about a vehicle's duty right now.
type Advice struct {
	Trip       BlockTrip `json:"trip"`
	Layover    Layover   `json:"layover"`
	VehicleNow int       `json:"vehicleNow"`
	State      State     `json:"state"`
}

// Advise resolves the active trip of b and its layover state. It reports
// false when b has no trips.
func (r Resolver) Advise(b *Block, adherence float64, now int) (Advice, bool) {
	trip, ok := r.ActiveTrip(b, adherence, now)
	if !ok {
		return Advice{}, false
	}
	vn := r.VehicleNow(now, adherence, trip)
	l := LayoverFor(b, trip)
	return Advice{Trip: trip, Layover: l, VehicleNow: vn, State: r.State(l, vn)}, true
}
