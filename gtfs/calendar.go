package gtfs

import "time"

// ActiveServiceIDs returns the service ids running on the calendar date of
// t (evaluated in the index location). The weekly pattern within its date
// range is unioned with "added" exceptions, then "removed" exceptions are
// subtracted, so a removal always wins.
func (g *Index) ActiveServiceIDs(t time.Time) map[string]bool {
	day := DateKey(t.In(g.location))
	wd := t.In(g.location).Weekday()
	active := map[string]bool{}
	for id, c := range g.calendars {
		if day < c.StartDate || day > c.EndDate {
			continue
		}
		if c.Weekdays[wd] {
			active[id] = true
		}
	}
	for id := range g.added[day] {
		active[id] = true
	}
	for id := range g.removed[day] {
		delete(active, id)
	}
	return active
}

// IsServiceActive reports whether serviceID runs on the date of t.
func (g *Index) IsServiceActive(serviceID string, t time.Time) bool {
	return g.ActiveServiceIDs(t)[serviceID]
}

// FeedValidity returns the last instant the feed is valid for: the end of
// feed_info's end date, or the latest calendar end date when absent.
func (g *Index) FeedValidity() (time.Time, bool) {
	if g.validTo == "" {
		return time.Time{}, false
	}
	d, err := ParseDate(g.validTo, g.location)
	if err != nil {
		return time.Time{}, false
	}
	return d.AddDate(0, 0, 1).Add(-time.Second), true
}

// ServiceDays lists the dates between from and to (inclusive) on which the
// route has at least one trip running. Used for calendar overviews.
func (g *Index) ServiceDays(routeID string, from, to time.Time) []time.Time {
	services := map[string]bool{}
	for tripID := range g.routeTrips[routeID] {
		services[g.trips[tripID].ServiceID] = true
	}
	var days []time.Time
	start := from.In(g.location)
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, g.location)
	for d := start; !d.After(to); d = d.AddDate(0, 0, 1) {
		for id := range g.ActiveServiceIDs(d) {
			if services[id] {
				days = append(days, d)
				break
			}
		}
	}
	return days
}

// ServiceDate returns local midnight of the calendar day of now, the origin
// that stop_times offsets are measured from.
func (g *Index) ServiceDate(now time.Time) time.Time {
	l := now.In(g.location)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, g.location)
}
