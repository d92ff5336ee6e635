package gtfsrt

import (
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
	"github.com/theoremus-urban-solutions/transit-tracker/tracking"
)

// Wrapper indexes one VehiclePositions and one TripUpdates message for
// joining.
type Wrapper struct {
	headerTimestamp int64

	tripDelay map[string]int32 // trip_id -> delay in seconds, positive = late
	vehicles  []*gtfsrtpb.VehiclePosition
}

// NewWrapper indexes the two messages. Either may be nil.
func NewWrapper(positions, updates *gtfsrtpb.FeedMessage) *Wrapper {
	w := &Wrapper{tripDelay: map[string]int32{}}
	if updates != nil {
		w.observeHeader(updates.GetHeader())
		for _, e := range updates.GetEntity() {
			tu := e.GetTripUpdate()
			tripID := tu.GetTrip().GetTripId()
			if tripID == "" {
				continue
			}
			if d, ok := tripUpdateDelay(tu); ok {
				w.tripDelay[tripID] = d
			}
		}
	}
	if positions != nil {
		w.observeHeader(positions.GetHeader())
		for _, e := range positions.GetEntity() {
			if v := e.GetVehicle(); v != nil && v.GetPosition() != nil {
				w.vehicles = append(w.vehicles, v)
			}
		}
	}
	return w
}

func (w *Wrapper) observeHeader(h *gtfsrtpb.FeedHeader) {
	if ts := int64(h.GetTimestamp()); ts > w.headerTimestamp {
		w.headerTimestamp = ts
	}
}

// tripUpdateDelay prefers the trip-level delay, then the first stop time
// update carrying one.
func tripUpdateDelay(tu *gtfsrtpb.TripUpdate) (int32, bool) {
	if tu.Delay != nil {
		return tu.GetDelay(), true
	}
	for _, stu := range tu.GetStopTimeUpdate() {
		if a := stu.GetArrival(); a != nil && a.Delay != nil {
			return a.GetDelay(), true
		}
		if d := stu.GetDeparture(); d != nil && d.Delay != nil {
			return d.GetDelay(), true
		}
	}
	return 0, false
}

// DelayForTrip returns the known delay of a trip in seconds.
func (w *Wrapper) DelayForTrip(tripID string) (int32, bool) {
	d, ok := w.tripDelay[tripID]
	return d, ok
}

func (w *Wrapper) Timestamp() int64 { return w.headerTimestamp }

// Reports converts every positioned vehicle into a tracking.Report.
func (w *Wrapper) Reports() []tracking.Report {
	out := make([]tracking.Report, 0, len(w.vehicles))
	for _, v := range w.vehicles {
		number := v.GetVehicle().GetLabel()
		if number == "" {
			number = v.GetVehicle().GetId()
		}
		if number == "" {
			continue
		}
		r := tracking.Report{
			Number: number,
			TripID: v.GetTrip().GetTripId(),
			Position: gtfs.Point{
				Lat: float64(v.GetPosition().GetLatitude()),
				Lon: float64(v.GetPosition().GetLongitude()),
			},
		}
		ts := int64(v.GetTimestamp())
		if ts == 0 {
			ts = w.headerTimestamp
		}
		if ts > 0 {
			r.LastMessage = time.Unix(ts, 0)
		}
		if d, ok := w.DelayForTrip(r.TripID); ok && r.TripID != "" {
			r.Adherence = -float64(d) / 60
		}
		out = append(out, r)
	}
	return out
}
