package utils

import (
	"fmt"
	"math"

	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
)

// QuantifyTime phrases a number of seconds, e.g. "1 hour, 2 minutes and
// 5 seconds". Zero yields "".
func QuantifyTime(seconds float64) string {
	t := int(math.Round(seconds))
	if t < 0 {
		t = -t
	}
	units := []struct {
		n    int
		name string
	}{
		{t / 86400, "day"},
		{(t / 3600) % 24, "hour"},
		{(t / 60) % 60, "minute"},
		{t % 60, "second"},
	}
	var parts []string
	for _, u := range units {
		if u.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s%s", u.n, u.name, plural(float64(u.n), "s", "")))
		}
	}
	return joinAnd(parts)
}

// QuantifyTimeShort is the compact form, e.g. "1 hr 2 min 5s".
func QuantifyTimeShort(seconds float64) string {
	t := int(math.Abs(math.Round(seconds)))
	out := ""
	add := func(s string) {
		if out != "" {
			out += " "
		}
		out += s
	}
	if d := t / 86400; d > 0 {
		add(fmt.Sprintf("%d d", d))
	}
	if h := (t / 3600) % 24; h > 0 {
		add(fmt.Sprintf("%d hr", h))
	}
	if m := (t / 60) % 60; m > 0 {
		add(fmt.Sprintf("%d min", m))
	}
	if s := t % 60; s > 0 {
		add(fmt.Sprintf("%ds", s))
	}
	return out
}

// AdherenceText describes schedule adherence in minutes (positive is
// ahead). Within about a second it reads "On schedule".
func AdherenceText(adherence float64) string {
	if math.Abs(adherence) <= 0.02 {
		return "On schedule"
	}
	dir := "behind"
	if adherence > 0 {
		dir = "ahead of"
	}
	return QuantifyTime(math.Abs(adherence*60)) + " " + dir + " schedule"
}

// FormatServiceTime renders a service-day offset as a 12-hour clock time.
// Offsets past midnight wrap and are marked "(+1)".
func FormatServiceTime(sec int) string {
	suffix := ""
	if sec >= gtfs.SecondsPerDay {
		suffix = " (+1)"
	}
	sec = ((sec % gtfs.SecondsPerDay) + gtfs.SecondsPerDay) % gtfs.SecondsPerDay
	h, m := sec/3600, (sec/60)%60
	ampm := "AM"
	if h >= 12 {
		ampm = "PM"
	}
	h %= 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s%s", h, m, ampm, suffix)
}
