package api

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
	"github.com/theoremus-urban-solutions/transit-tracker/utils"
)

const (
	defaultNearRadius   = 500.0
	maxNearRadius       = 5000.0
	defaultCalendarDays = 7
	maxCalendarDays     = 62
)

// currentIndex writes a 503 when no static schedule is loaded yet.
func (h *handlers) currentIndex(w http.ResponseWriter) (*gtfs.Index, bool) {
	idx := h.schedule.Current()
	if idx == nil {
		writeError(w, http.StatusServiceUnavailable, "static schedule not loaded", nil)
		return nil, false
	}
	return idx, true
}

// lookupRoute accepts a route short name or a route id.
func lookupRoute(idx *gtfs.Index, key string) (gtfs.Route, bool) {
	if r, ok := idx.RouteByCode(key); ok {
		return r, true
	}
	return idx.RouteByID(key)
}

func routeCodes(idx *gtfs.Index, routeIDs []string) []string {
	out := make([]string, 0, len(routeIDs))
	for _, id := range routeIDs {
		if r, ok := idx.RouteByID(id); ok && r.ShortName != "" {
			out = append(out, r.ShortName)
			continue
		}
		out = append(out, id)
	}
	return out
}

type nearbyStop struct {
	gtfs.Stop
	Distance     float64  `json:"distance"`
	DistanceText string   `json:"distanceText,omitempty"`
	Routes       []string `json:"routes"`
}

type nearbyResponse struct {
	Point  gtfs.Point   `json:"point"`
	Radius float64      `json:"radius"`
	Stops  []nearbyStop `json:"stops"`
	Count  int          `json:"count"`
}

func (h *handlers) stopsNear(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		writeError(w, http.StatusBadRequest, "lat and lon must be valid coordinates", nil)
		return
	}
	radius := defaultNearRadius
	if s := q.Get("radius"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 || v > maxNearRadius {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("radius must be a distance in meters up to %.0f", maxNearRadius), err)
			return
		}
		radius = v
	}
	idx, ok := h.currentIndex(w)
	if !ok {
		return
	}

	p := gtfs.Point{Lat: lat, Lon: lon}
	stops := idx.StopsNear(p, radius)
	resp := nearbyResponse{Point: p, Radius: radius, Stops: make([]nearbyStop, 0, len(stops)), Count: len(stops)}
	for _, s := range stops {
		d := gtfs.Haversine(p, s.Point())
		resp.Stops = append(resp.Stops, nearbyStop{
			Stop:         s,
			Distance:     d,
			DistanceText: utils.QuantifyMeters(d),
			Routes:       routeCodes(idx, idx.RoutesForStop(s.ID)),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type headsignView struct {
	Headsign  string `json:"headsign"`
	Direction int    `json:"direction"`
	ShapeID   string `json:"shapeId,omitempty"`
}

type routeResponse struct {
	gtfs.Route
	Agency     string         `json:"agency,omitempty"`
	Headsigns  []headsignView `json:"headsigns"`
	Trips      int            `json:"trips"`
	TripsToday int            `json:"tripsToday"`
}

func (h *handlers) route(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "route")
	idx, ok := h.currentIndex(w)
	if !ok {
		return
	}
	route, ok := lookupRoute(idx, key)
	if !ok {
		writeError(w, http.StatusNotFound, "route "+key+" not found", nil)
		return
	}

	now := h.now()
	tripIDs := idx.TripsForRoute(route.ID)
	resp := routeResponse{Route: route, Agency: idx.Agency().Name, Headsigns: []headsignView{}, Trips: len(tripIDs)}
	seen := map[headsignView]bool{}
	for _, id := range tripIDs {
		t, ok := idx.TripByID(id)
		if !ok {
			continue
		}
		if idx.IsServiceActive(t.ServiceID, now) {
			resp.TripsToday++
		}
		hv := headsignView{Headsign: t.Headsign, Direction: t.Direction, ShapeID: t.ShapeID}
		if !seen[hv] {
			seen[hv] = true
			resp.Headsigns = append(resp.Headsigns, hv)
		}
	}
	sort.Slice(resp.Headsigns, func(i, j int) bool {
		a, b := resp.Headsigns[i], resp.Headsigns[j]
		if a.Direction != b.Direction {
			return a.Direction < b.Direction
		}
		if a.Headsign != b.Headsign {
			return a.Headsign < b.Headsign
		}
		return a.ShapeID < b.ShapeID
	})
	writeJSON(w, http.StatusOK, resp)
}

type calendarResponse struct {
	Route string   `json:"route"`
	From  string   `json:"from"`
	To    string   `json:"to"`
	Days  []string `json:"days"`
}

func (h *handlers) routeCalendar(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "route")
	days := defaultCalendarDays
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxCalendarDays {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("days must be between 1 and %d", maxCalendarDays), err)
			return
		}
		days = n
	}
	idx, ok := h.currentIndex(w)
	if !ok {
		return
	}
	route, ok := lookupRoute(idx, key)
	if !ok {
		writeError(w, http.StatusNotFound, "route "+key+" not found", nil)
		return
	}

	from := idx.ServiceDate(h.now())
	to := from.AddDate(0, 0, days-1)
	resp := calendarResponse{Route: route.ID, From: from.Format("2006-01-02"), To: to.Format("2006-01-02"), Days: []string{}}
	for _, d := range idx.ServiceDays(route.ID, from, to) {
		resp.Days = append(resp.Days, d.Format("2006-01-02"))
	}
	writeJSON(w, http.StatusOK, resp)
}

type shapeResponse struct {
	gtfs.Shape
	LengthText string `json:"lengthText,omitempty"`
}

func (h *handlers) shape(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "shape")
	idx, ok := h.currentIndex(w)
	if !ok {
		return
	}
	s, ok := idx.ShapeByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, "shape "+id+" not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, shapeResponse{Shape: s, LengthText: utils.QuantifyMeters(s.Length)})
}
