package gtfs

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SecondsPerDay is the length of a service day in seconds.
const SecondsPerDay = 24 * 60 * 60

// ParseTime converts a GTFS time (H:MM:SS, hours may be 24 or more) into
// seconds since local midnight of the service day.
func ParseTime(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid GTFS time %q", s)
	}
	var hms [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid GTFS time %q", s)
		}
		hms[i] = n
	}
	if hms[1] > 59 || hms[2] > 59 {
		return 0, fmt.Errorf("invalid GTFS time %q", s)
	}
	return hms[0]*3600 + hms[1]*60 + hms[2], nil
}

// FormatTime is the inverse of ParseTime.
func FormatTime(sec int) string {
	sign := ""
	if sec < 0 {
		sign = "-"
		sec = -sec
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, sec/3600, (sec/60)%60, sec%60)
}

// ParseDate parses a YYYYMMDD date at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("20060102", strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid GTFS date %q: %w", s, err)
	}
	return t, nil
}

// DateKey formats t as YYYYMMDD in its own location.
func DateKey(t time.Time) string {
	return t.Format("20060102")
}

// SecondsSinceMidnight returns the wall-clock offset of t within its day in loc.
func SecondsSinceMidnight(t time.Time, loc *time.Location) int {
	if loc != nil {
		t = t.In(loc)
	}
	h, m, s := t.Clock()
	return h*3600 + m*60 + s
}
