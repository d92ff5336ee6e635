package gtfs

import (
	"errors"
	"sort"
	"strconv"
	"time"
	_ "time/tzdata" // agency_timezone must resolve on hosts without zoneinfo

	"github.com/sirupsen/logrus"
)

type blockKey struct {
	blockID   string
	serviceID string
}

type tripBounds struct {
	first int
	last  int
}

// Index is the read-only query surface over one static feed version.
// Safe for concurrent reads once built.
type Index struct {
	agency   AgencyRow
	location *time.Location
	validTo  string // YYYYMMDD, empty if unknown

	routes      map[string]Route
	trips       map[string]ScheduleTrip
	blockTrips  map[blockKey][]string      // block+service -> trip ids in feed order
	stopTimes   map[string][]StopTime      // trip_id -> stop times sorted by sequence
	bounds      map[string]tripBounds      // trip_id -> earliest arrival, latest departure
	shapes      map[string]Shape           // shape_id -> polished shape
	stops       map[string]Stop            // stop_id -> stop
	stopsByCode map[string]string          // stop_code -> stop_id
	calendars   map[string]Calendar        // service_id -> weekly pattern
	added       map[string]map[string]bool // YYYYMMDD -> service ids added
	removed     map[string]map[string]bool // YYYYMMDD -> service ids removed
	routeTrips  map[string]map[string]bool // route_id -> trip ids
	stopTrips   map[string]map[string]bool // stop_id -> trip ids
}

// NewIndex converts raw feed tables into an Index. Malformed rows are logged
// and skipped; only a feed without any usable trip is an error.
func NewIndex(feed *Feed, log logrus.FieldLogger) (*Index, error) {
	if feed == nil {
		return nil, errors.New("gtfs: nil feed")
	}
	g := &Index{
		location:    time.UTC,
		routes:      map[string]Route{},
		trips:       map[string]ScheduleTrip{},
		blockTrips:  map[blockKey][]string{},
		stopTimes:   map[string][]StopTime{},
		bounds:      map[string]tripBounds{},
		shapes:      map[string]Shape{},
		stops:       map[string]Stop{},
		stopsByCode: map[string]string{},
		calendars:   map[string]Calendar{},
		added:       map[string]map[string]bool{},
		removed:     map[string]map[string]bool{},
		routeTrips:  map[string]map[string]bool{},
		stopTrips:   map[string]map[string]bool{},
	}
	if len(feed.Agency) > 0 {
		g.agency = feed.Agency[0]
		if loc, err := time.LoadLocation(g.agency.Timezone); err == nil && g.agency.Timezone != "" {
			g.location = loc
		} else if g.agency.Timezone != "" {
			log.WithField("timezone", g.agency.Timezone).Warn("unknown agency timezone, using UTC")
		}
	}

	g.loadRoutes(feed.Routes, log)
	g.loadStops(feed.Stops, log)
	g.loadTrips(feed.Trips, log)
	g.loadStopTimes(feed.StopTimes, log)
	g.loadShapes(feed.Shapes, log)
	g.loadCalendar(feed.Calendar, feed.CalendarDates, log)
	if len(feed.FeedInfo) > 0 && feed.FeedInfo[0].EndDate != "" {
		if _, err := ParseDate(feed.FeedInfo[0].EndDate, g.location); err == nil {
			g.validTo = feed.FeedInfo[0].EndDate
		} else {
			log.WithError(err).Warn("ignoring feed_info end date")
		}
	}
	if g.validTo == "" {
		for _, c := range g.calendars {
			if c.EndDate > g.validTo {
				g.validTo = c.EndDate
			}
		}
	}

	if len(g.trips) == 0 {
		return nil, errors.New("gtfs: feed contains no trips")
	}
	log.WithFields(logrus.Fields{
		"routes":  len(g.routes),
		"trips":   len(g.trips),
		"stops":   len(g.stops),
		"shapes":  len(g.shapes),
		"validTo": g.validTo,
	}).Info("schedule index built")
	return g, nil
}

func (g *Index) loadRoutes(rows []RouteRow, log logrus.FieldLogger) {
	for _, r := range rows {
		if r.RouteID == "" {
			log.Warn("routes.txt: row without route_id skipped")
			continue
		}
		typ, _ := strconv.Atoi(r.Type)
		g.routes[r.RouteID] = Route{
			ID:        r.RouteID,
			AgencyID:  r.AgencyID,
			ShortName: r.ShortName,
			LongName:  r.LongName,
			Type:      typ,
			Color:     r.Color,
			TextColor: r.TextColor,
		}
	}
}

func (g *Index) loadStops(rows []StopRow, log logrus.FieldLogger) {
	for _, r := range rows {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lon, errLon := strconv.ParseFloat(r.Lon, 64)
		if r.StopID == "" || errLat != nil || errLon != nil {
			log.WithField("stop_id", r.StopID).Warn("stops.txt: malformed stop skipped")
			continue
		}
		code := r.Code
		if code == "" {
			code = r.StopID
		}
		g.stops[r.StopID] = Stop{ID: r.StopID, Code: code, Name: r.Name, Lat: lat, Lon: lon}
		g.stopsByCode[code] = r.StopID
	}
}

func (g *Index) loadTrips(rows []TripRow, log logrus.FieldLogger) {
	for _, r := range rows {
		if r.TripID == "" {
			log.Warn("trips.txt: row without trip_id skipped")
			continue
		}
		dir, err := strconv.Atoi(r.DirectionID)
		if err != nil {
			dir = -1
		}
		t := ScheduleTrip{
			ID:             r.TripID,
			RouteID:        r.RouteID,
			RouteShortName: g.routes[r.RouteID].ShortName,
			Headsign:       r.Headsign,
			ShapeID:        r.ShapeID,
			DisplayCode:    r.DisplayCode,
			Direction:      dir,
			BlockID:        r.BlockID,
			BlockName:      r.Block,
			ServiceID:      r.ServiceID,
		}
		g.trips[t.ID] = t
		if t.BlockID != "" {
			k := blockKey{blockID: t.BlockID, serviceID: t.ServiceID}
			g.blockTrips[k] = append(g.blockTrips[k], t.ID)
		}
		if g.routeTrips[t.RouteID] == nil {
			g.routeTrips[t.RouteID] = map[string]bool{}
		}
		g.routeTrips[t.RouteID][t.ID] = true
	}
}

func (g *Index) loadStopTimes(rows []StopTimeRow, log logrus.FieldLogger) {
	skipped := 0
	for _, r := range rows {
		if _, ok := g.trips[r.TripID]; !ok {
			skipped++
			continue
		}
		seq, err := strconv.Atoi(r.StopSequence)
		if err != nil {
			skipped++
			continue
		}
		arr, errA := ParseTime(r.ArrivalTime)
		dep, errD := ParseTime(r.DepartureTime)
		switch {
		case errA != nil && errD != nil:
			skipped++
			continue
		case errA != nil:
			arr = dep
		case errD != nil:
			dep = arr
		}
		code := r.StopCode
		if code == "" {
			code = g.stops[r.StopID].Code
		}
		g.stopTimes[r.TripID] = append(g.stopTimes[r.TripID], StopTime{
			TripID:    r.TripID,
			StopID:    r.StopID,
			StopCode:  code,
			Arrival:   arr,
			Departure: dep,
			Sequence:  seq,
		})
		if g.stopTrips[r.StopID] == nil {
			g.stopTrips[r.StopID] = map[string]bool{}
		}
		g.stopTrips[r.StopID][r.TripID] = true
	}
	if skipped > 0 {
		log.WithField("rows", skipped).Warn("stop_times.txt: malformed or orphan rows skipped")
	}
	for trip, sts := range g.stopTimes {
		sort.SliceStable(sts, func(i, j int) bool { return sts[i].Sequence < sts[j].Sequence })
		b := tripBounds{first: sts[0].Arrival, last: sts[0].Departure}
		for _, st := range sts {
			if st.Arrival < b.first {
				b.first = st.Arrival
			}
			if st.Departure > b.last {
				b.last = st.Departure
			}
		}
		g.bounds[trip] = b
	}
}

func (g *Index) loadShapes(rows []ShapeRow, log logrus.FieldLogger) {
	pts := map[string][]ShapePoint{}
	skipped := 0
	for _, r := range rows {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lon, errLon := strconv.ParseFloat(r.Lon, 64)
		seq, errSeq := strconv.Atoi(r.Sequence)
		if r.ShapeID == "" || errLat != nil || errLon != nil || errSeq != nil {
			skipped++
			continue
		}
		pts[r.ShapeID] = append(pts[r.ShapeID], ShapePoint{Lat: lat, Lon: lon, Sequence: seq})
	}
	if skipped > 0 {
		log.WithField("rows", skipped).Warn("shapes.txt: malformed rows skipped")
	}
	for id, p := range pts {
		g.shapes[id] = NewShape(id, p)
	}
}

func (g *Index) loadCalendar(cal []CalendarRow, dates []CalendarDateRow, log logrus.FieldLogger) {
	for _, r := range cal {
		if _, err := ParseDate(r.StartDate, g.location); err != nil {
			log.WithError(err).WithField("service_id", r.ServiceID).Warn("calendar.txt: row skipped")
			continue
		}
		if _, err := ParseDate(r.EndDate, g.location); err != nil {
			log.WithError(err).WithField("service_id", r.ServiceID).Warn("calendar.txt: row skipped")
			continue
		}
		c := Calendar{ServiceID: r.ServiceID, StartDate: r.StartDate, EndDate: r.EndDate}
		c.Weekdays[time.Sunday] = r.Sunday == "1"
		c.Weekdays[time.Monday] = r.Monday == "1"
		c.Weekdays[time.Tuesday] = r.Tuesday == "1"
		c.Weekdays[time.Wednesday] = r.Wednesday == "1"
		c.Weekdays[time.Thursday] = r.Thursday == "1"
		c.Weekdays[time.Friday] = r.Friday == "1"
		c.Weekdays[time.Saturday] = r.Saturday == "1"
		g.calendars[r.ServiceID] = c
	}
	for _, r := range dates {
		if _, err := ParseDate(r.Date, g.location); err != nil {
			log.WithError(err).WithField("service_id", r.ServiceID).Warn("calendar_dates.txt: row skipped")
			continue
		}
		var target map[string]map[string]bool
		switch r.ExceptionType {
		case "1":
			target = g.added
		case "2":
			target = g.removed
		default:
			log.WithField("exception_type", r.ExceptionType).Warn("calendar_dates.txt: unknown exception type")
			continue
		}
		if target[r.Date] == nil {
			target[r.Date] = map[string]bool{}
		}
		target[r.Date][r.ServiceID] = true
	}
}

// Location is the agency timezone, UTC when the feed declares none.
func (g *Index) Location() *time.Location { return g.location }

// Agency returns the first agency.txt row.
func (g *Index) Agency() AgencyRow { return g.agency }

// TripByID looks up a trip.
func (g *Index) TripByID(id string) (ScheduleTrip, bool) {
	t, ok := g.trips[id]
	return t, ok
}

// TripsForBlock returns every trip of a block on one service id, in feed order.
func (g *Index) TripsForBlock(blockID, serviceID string) []ScheduleTrip {
	ids := g.blockTrips[blockKey{blockID: blockID, serviceID: serviceID}]
	out := make([]ScheduleTrip, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.trips[id])
	}
	return out
}

// TripBounds returns the earliest stop-time arrival and latest departure of a trip.
func (g *Index) TripBounds(tripID string) (first, last int, ok bool) {
	b, ok := g.bounds[tripID]
	return b.first, b.last, ok
}

// StopTimesForTrip returns the trip's stop times ordered by sequence.
func (g *Index) StopTimesForTrip(tripID string) []StopTime {
	return g.stopTimes[tripID]
}

// ShapeByID looks up a polished shape.
func (g *Index) ShapeByID(id string) (Shape, bool) {
	s, ok := g.shapes[id]
	return s, ok
}

func (g *Index) RouteByID(id string) (Route, bool) {
	r, ok := g.routes[id]
	return r, ok
}

// RouteByCode finds a route by its short name.
func (g *Index) RouteByCode(code string) (Route, bool) {
	for _, r := range g.routes {
		if r.ShortName == code {
			return r, true
		}
	}
	return Route{}, false
}

func (g *Index) StopByID(id string) (Stop, bool) {
	s, ok := g.stops[id]
	return s, ok
}

func (g *Index) StopByCode(code string) (Stop, bool) {
	id, ok := g.stopsByCode[code]
	if !ok {
		return Stop{}, false
	}
	return g.StopByID(id)
}

// IsTripStartingStop reports whether the stop with the given code is the
// first stop of the trip.
func (g *Index) IsTripStartingStop(stopCode, tripID string) bool {
	sts := g.stopTimes[tripID]
	return len(sts) > 0 && sts[0].StopCode == stopCode
}

// TripsForRoute returns the ids of all trips on a route, sorted.
func (g *Index) TripsForRoute(routeID string) []string {
	return sortedKeys(g.routeTrips[routeID])
}

// RoutesForStop returns the ids of all routes serving a stop, sorted.
func (g *Index) RoutesForStop(stopID string) []string {
	set := map[string]bool{}
	for tripID := range g.stopTrips[stopID] {
		set[g.trips[tripID].RouteID] = true
	}
	return sortedKeys(set)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
