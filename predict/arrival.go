package predict

import (
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/theoremus-urban-solutions/transit-tracker/block"
	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
)

// Estimated tells how an arrival time was produced.
type Estimated int

const (
	Scheduled Estimated = iota
	GPS
	NoGPS
)

// ParseEstimated maps the arrivals feed "estimated" code. 1 is GPS tracked,
// codes above 1 are plain schedule, anything else has no GPS.
func ParseEstimated(code int) Estimated {
	switch {
	case code > 1:
		return Scheduled
	case code == 1:
		return GPS
	default:
		return NoGPS
	}
}

func (e Estimated) String() string {
	switch e {
	case Scheduled:
		return "scheduled"
	case GPS:
		return "gps"
	case NoGPS:
		return "no_gps"
	}
	return fmt.Sprintf("Estimated(%d)", int(e))
}

func (e Estimated) MarshalJSON() ([]byte, error) { return json.Marshal(e.String()) }

// Status is the cancellation state of an arrival.
type Status int

const (
	Expected Status = iota
	Canceled
	Uncanceled
)

// ParseStatus maps the arrivals feed "canceled" code.
func ParseStatus(code int) Status {
	switch {
	case code > 0:
		return Canceled
	case code == 0:
		return Expected
	default:
		return Uncanceled
	}
}

func (s Status) String() string {
	switch s {
	case Expected:
		return "expected"
	case Canceled:
		return "canceled"
	case Uncanceled:
		return "uncanceled"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// VehicleState is what can be said about the vehicle serving an arrival.
type VehicleState int

const (
	EnRoute VehicleState = iota
	NoActiveTrip
	NoGPSFix
	LikelyPassed
)

func (v VehicleState) String() string {
	switch v {
	case EnRoute:
		return "en_route"
	case NoActiveTrip:
		return "no_active_trip"
	case NoGPSFix:
		return "no_gps"
	case LikelyPassed:
		return "likely_passed"
	}
	return fmt.Sprintf("VehicleState(%d)", int(v))
}

func (v VehicleState) MarshalJSON() ([]byte, error) { return json.Marshal(v.String()) }

// NoVehicle is the arrivals feed placeholder for an unassigned vehicle.
const NoVehicle = "???"

// RawArrival is one record of the per-stop arrivals feed, all strings.
type RawArrival struct {
	ID        string `json:"id"`
	Trip      string `json:"trip"`
	Route     string `json:"route"`
	Headsign  string `json:"headsign"`
	Direction string `json:"direction"`
	Vehicle   string `json:"vehicle"`
	Estimated string `json:"estimated"`
	StopTime  string `json:"stopTime"`
	Date      string `json:"date"`
	Longitude string `json:"longitude"`
	Latitude  string `json:"latitude"`
	Shape     string `json:"shape"`
	Canceled  string `json:"canceled"`
}

// HasVehicle reports whether a vehicle number is assigned.
func (a RawArrival) HasVehicle() bool {
	v := strings.TrimSpace(a.Vehicle)
	return v != "" && v != NoVehicle
}

// Position is the coordinate reported with the arrival, if any.
func (a RawArrival) Position() (gtfs.Point, bool) {
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(a.Latitude), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(a.Longitude), 64)
	if errLat != nil || errLon != nil {
		return gtfs.Point{}, false
	}
	return gtfs.Point{Lat: lat, Lon: lon}, true
}

// ParseStopTime combines the feed's "M/D/YYYY" date and "h:mm AM" time into
// an instant in loc.
func ParseStopTime(date, stopTime string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := strings.TrimSpace(date) + " " + strings.ToUpper(strings.TrimSpace(stopTime))
	t, err := time.ParseInLocation("1/2/2006 3:04 PM", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid arrival time %q: %w", s, err)
	}
	return t, nil
}

// Fix is the live state of the vehicle serving an arrival.
type Fix struct {
	Number   string
	Position gtfs.Point
	// ShapeID is the shape of the trip the vehicle is currently working.
	ShapeID string
	// VehicleNow is the adherence-adjusted service-day clock; only set
	// when Resolved is true.
	VehicleNow int
	Resolved   bool
}

// Schedule is the static data polishing an arrival needs.
type Schedule interface {
	ShapeLookup
	TripByID(id string) (gtfs.ScheduleTrip, bool)
	TripBounds(tripID string) (first, last int, ok bool)
	StopByCode(code string) (gtfs.Stop, bool)
	StopTimesForTrip(tripID string) []gtfs.StopTime
	IsTripStartingStop(stopCode, tripID string) bool
}

// Arrival is a polished arrival ready for display.
type Arrival struct {
	ID        string          `json:"id"`
	Trip      block.BlockTrip `json:"trip"`
	Vehicle   string          `json:"vehicle,omitempty"`
	Distance  float64         `json:"distance"`
	StopTime  time.Time       `json:"stopTime"`
	Departing bool            `json:"departing"`
	Estimated Estimated       `json:"estimated"`
	Status    Status          `json:"status"`
	State     VehicleState    `json:"state"`
	// ETA is seconds until the scheduled stop time from the vehicle's
	// point of view. Zero when there is no resolved vehicle.
	ETA int `json:"eta"`
}

// TripFromSchedule builds a single-trip BlockTrip for tripID, falling back
// to the fields carried by the raw arrival when the trip is not in the feed.
func TripFromSchedule(s Schedule, a RawArrival) block.BlockTrip {
	t, ok := s.TripByID(a.Trip)
	if !ok {
		dir, err := strconv.Atoi(strings.TrimSpace(a.Direction))
		if err != nil {
			dir = -1
		}
		return block.BlockTrip{
			Trips:     []string{a.Trip},
			RouteCode: a.Route,
			Headsign:  html.UnescapeString(a.Headsign),
			ShapeID:   a.Shape,
			Direction: dir,
		}
	}
	bt := block.BlockTrip{
		Trips:       []string{t.ID},
		RouteID:     t.RouteID,
		RouteCode:   t.RouteShortName,
		Headsign:    t.Headsign,
		ShapeID:     t.ShapeID,
		DisplayCode: t.DisplayCode,
		Direction:   t.Direction,
	}
	bt.FirstArrives, bt.LastDeparts, _ = s.TripBounds(t.ID)
	return bt
}

// Polish converts a raw arrival at stopCode into an Arrival. fix may be nil
// when no vehicle is known. stopTime is the already parsed scheduled time.
func Polish(s Schedule, stopCode string, a RawArrival, fix *Fix, stopTime time.Time) Arrival {
	out := Arrival{
		ID:        a.ID,
		Trip:      TripFromSchedule(s, a),
		StopTime:  stopTime,
		Departing: s.IsTripStartingStop(stopCode, a.Trip),
		Estimated: ParseEstimated(atoi(a.Estimated)),
		Status:    ParseStatus(atoi(a.Canceled)),
	}
	if a.HasVehicle() {
		out.Vehicle = strings.TrimSpace(a.Vehicle)
	}

	stop, hasStop := s.StopByCode(stopCode)
	if fix != nil && hasStop {
		out.Distance = DistanceWithFutureTrip(s, fix.Position, stop.Point(), fix.ShapeID, out.Trip.ShapeID)
	}

	switch {
	case fix == nil || out.Estimated == NoGPS:
		out.State = NoGPSFix
	case !fix.Resolved:
		out.State = NoActiveTrip
	default:
		if st, ok := scheduledAt(s.StopTimesForTrip(a.Trip), stopCode); ok {
			out.ETA = ETA(st.Arrival, fix.VehicleNow)
		}
		if Passed(out.ETA) {
			out.State = LikelyPassed
		} else {
			out.State = EnRoute
		}
	}
	return out
}

func scheduledAt(stops []gtfs.StopTime, stopCode string) (gtfs.StopTime, bool) {
	for _, st := range stops {
		if st.StopCode == stopCode {
			return st, true
		}
	}
	return gtfs.StopTime{}, false
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
