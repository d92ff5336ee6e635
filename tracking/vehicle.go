package tracking

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/theoremus-urban-solutions/transit-tracker/block"
	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
)

// Vehicle is the reconciled state of one physical vehicle.
type Vehicle struct {
	Number      string       `json:"number"`
	TripID      string       `json:"trip,omitempty"`
	Driver      string       `json:"driver,omitempty"`
	Position    gtfs.Point   `json:"position"`
	Adherence   float64      `json:"adherence"`
	LastMessage time.Time    `json:"lastMessage"`
	Block       *block.Block `json:"block,omitempty"`
}

// RouteCode is the route short name of the block trip carrying the
// vehicle's reported trip, empty when unknown.
func (v Vehicle) RouteCode() string {
	t, ok := v.Block.TripFor(v.TripID)
	if !ok {
		return ""
	}
	return t.RouteCode
}

// Smooth returns the adherence to store: the mean of the prior and the new
// report, or the report itself on a first observation.
func Smooth(prior float64, hasPrior bool, reported float64) float64 {
	if !hasPrior || math.IsNaN(prior) {
		return reported
	}
	return (prior + reported) / 2
}

// Dedupe drops duplicate records for one vehicle number. A record goes when
// a later record with the same number has a trip, or when an earlier record
// with the same number exists and this one has no trip.
func Dedupe(reports []Report) []Report {
	byNumber := map[string][]int{}
	for i, r := range reports {
		byNumber[r.Number] = append(byNumber[r.Number], i)
	}
	out := make([]Report, 0, len(reports))
	for i, r := range reports {
		drop := false
		for _, j := range byNumber[r.Number] {
			if j == i {
				continue
			}
			if (j > i && reports[j].TripID != "") || (j < i && r.TripID == "") {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, r)
		}
	}
	return out
}

// SortByRecency orders reports newest message first.
func SortByRecency(reports []Report) {
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].LastMessage.After(reports[j].LastMessage)
	})
}

// FilterVehicles returns the vehicles matching route (case-insensitive
// route code of the reported trip, empty for any) whose last message is
// within lastActive of now (zero for any), ordered by number.
func FilterVehicles(vehicles map[string]Vehicle, route string, lastActive time.Duration, now time.Time) []Vehicle {
	out := make([]Vehicle, 0, len(vehicles))
	for _, v := range vehicles {
		if route != "" && !strings.EqualFold(v.RouteCode(), route) {
			continue
		}
		if lastActive > 0 && v.LastMessage.Before(now.Add(-lastActive)) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}
