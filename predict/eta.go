package predict

import (
	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
)

const (
	day     = gtfs.SecondsPerDay
	halfDay = day / 2
)

// PassedGrace is how long after its scheduled time an arrival is still shown
// as imminent before the vehicle is assumed to have passed the stop.
const PassedGrace = 65

// ETA is the number of seconds until a stop scheduled at scheduledArrival,
// seen from vehicleNow (both service-day offsets). The result is wrapped
// into (-12h, 12h] so a stop just across midnight is not a day away.
func ETA(scheduledArrival, vehicleNow int) int {
	d := scheduledArrival - vehicleNow
	for d > halfDay {
		d -= day
	}
	for d <= -halfDay {
		d += day
	}
	return d
}

// Passed reports whether a stop with this ETA is behind the vehicle.
func Passed(eta int) bool {
	return eta+PassedGrace < 0
}

// ExpectedStop returns the next stop of a trip the vehicle has not reached
// yet: the earliest stop time arriving after vehicleNow. It reports false
// once every stop is behind the vehicle.
func ExpectedStop(stops []gtfs.StopTime, vehicleNow int) (gtfs.StopTime, bool) {
	var best gtfs.StopTime
	found := false
	for _, st := range stops {
		if st.Arrival <= vehicleNow {
			continue
		}
		if !found || st.Arrival < best.Arrival {
			best, found = st, true
		}
	}
	return best, found
}
