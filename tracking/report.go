package tracking

import (
	"context"
	"time"

	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
)

// Report is one raw live record from a vehicle feed, already converted from
// strings. TripID is empty when the vehicle has no trip assigned.
type Report struct {
	Number      string
	TripID      string
	Driver      string
	Position    gtfs.Point
	Adherence   float64
	LastMessage time.Time
}

// VehicleSource fetches the current live vehicle records.
type VehicleSource interface {
	FetchVehicles(ctx context.Context) ([]Report, error)
}
