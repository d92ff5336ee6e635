package block

import (
	"math"

	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
)

const day = gtfs.SecondsPerDay

// DefaultNextDayLookback is how far before a block's first trip a vehicle
// clock may read and still count as the same service day. Tuned for TheBus;
// configurable through Resolver.
const DefaultNextDayLookback = 50 * 60

// Resolver holds the tunables of trip resolution and layover advice.
type Resolver struct {
	// NextDayLookback is in seconds, see NormalizeToServiceDay.
	NextDayLookback int
	// SkipWindow is how long after the next trip's start a vehicle that has
	// not been seen laying over is reported as possibly skipping the layover.
	SkipWindow int
}

func DefaultResolver() Resolver {
	return Resolver{NextDayLookback: DefaultNextDayLookback}
}

// NormalizeToServiceDay maps a clock reading onto the service-day timeline
// of a trip starting at firstArrives. The reading is first reduced into
// [0, 86400). When it falls more than lookback seconds before firstArrives
// the vehicle is taken to be past midnight of that service day and 86400 is
// added, so 00:10 against a 05:00 block becomes 24:10.
func NormalizeToServiceDay(t, firstArrives, lookback int) int {
	t = ((t % day) + day) % day
	if t+lookback < firstArrives {
		return t + day
	}
	return t
}

// AdjustedClock is now shifted by adherence (minutes, positive = ahead),
// reduced into [0, 86400).
func AdjustedClock(now int, adherence float64) int {
	t := now + int(math.Round(adherence*60))
	return ((t % day) + day) % day
}

// VehicleNow is the vehicle's position on the service-day timeline relative
// to trip.
func (r Resolver) VehicleNow(now int, adherence float64, trip BlockTrip) int {
	return NormalizeToServiceDay(AdjustedClock(now, adherence), trip.FirstArrives, r.NextDayLookback)
}

func within(t int, trip BlockTrip) bool {
	return trip.FirstArrives <= t && t <= trip.LastDeparts
}

// ActiveTrip picks the trip of b the vehicle is working. The first trip whose
// window contains the adjusted clock (or the clock plus one day) wins.
// Otherwise the most recently started trip is chosen, and failing that the
// first upcoming one. An empty or nil block reports false.
func (r Resolver) ActiveTrip(b *Block, adherence float64, now int) (BlockTrip, bool) {
	if b == nil || len(b.Trips) == 0 {
		return BlockTrip{}, false
	}
	t := AdjustedClock(now, adherence)
	for _, trip := range b.Trips {
		if within(t, trip) || within(t+day, trip) {
			return trip, true
		}
	}

	tn := NormalizeToServiceDay(t, b.Trips[0].FirstArrives, r.NextDayLookback)
	best, bestDiff := -1, 0
	for i, trip := range b.Trips {
		diff := tn - trip.FirstArrives
		if diff > 0 && (best < 0 || diff < bestDiff) {
			best, bestDiff = i, diff
		}
	}
	if best >= 0 {
		return b.Trips[best], true
	}

	next := 0
	for i, trip := range b.Trips {
		if trip.FirstArrives < b.Trips[next].FirstArrives {
			next = i
		}
	}
	return b.Trips[next], true
}
