package utils

import (
	"fmt"
	"strings"
)

const (
	MilesPerMeter = 1 / 1609.344
	FeetPerMile   = 5280
	YardsPerMile  = 1760
)

// QuantifyMiles phrases a distance in miles: whole miles and up as miles,
// more than 1000 feet as yards, anything shorter in feet.
func QuantifyMiles(miles float64) string {
	yards := miles * YardsPerMile
	feet := miles * FeetPerMile
	switch {
	case miles >= 1:
		return fmt.Sprintf("%.2f mile%s", miles, plural(miles, "s", ""))
	case feet > 1000:
		return fmt.Sprintf("%.2f yard%s", yards, plural(yards, "s", ""))
	default:
		return fmt.Sprintf("%.2f %s", feet, plural(feet, "feet", "foot"))
	}
}

// QuantifyMeters phrases a distance as "2 kilometers and 5 meters".
func QuantifyMeters(meters float64) string {
	km := int(meters) / 1000
	m := int(meters) % 1000
	var parts []string
	if km > 0 {
		parts = append(parts, fmt.Sprintf("%d kilometer%s", km, plural(float64(km), "s", "")))
	}
	if m > 0 {
		parts = append(parts, fmt.Sprintf("%d meter%s", m, plural(float64(m), "s", "")))
	}
	return joinAnd(parts)
}

// PresentableDistance describes how far a vehicle is from a stop. Within
// 100 feet it is "at stop", within 500 feet "approaching".
func PresentableDistance(meters float64) string {
	const (
		atStopFeet      = 100.0
		approachingFeet = 500.0
	)
	miles := meters * MilesPerMeter
	ft := miles * FeetPerMile
	switch {
	case ft < atStopFeet:
		return "at stop"
	case ft < approachingFeet:
		return "approaching"
	}
	return QuantifyMiles(miles)
}

func plural(n float64, many, one string) string {
	if n == 1 {
		return one
	}
	return many
}

// joinAnd joins with ", " and a final " and ".
func joinAnd(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}
