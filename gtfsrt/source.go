package gtfsrt

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/theoremus-urban-solutions/transit-tracker/tracking"
)

// VehicleSource implements tracking.VehicleSource over a VehiclePositions
// feed and an optional TripUpdates feed.
type VehicleSource struct {
	Client              *Client
	VehiclePositionsURL string
	TripUpdatesURL      string
	Log                 logrus.FieldLogger
}

func (s *VehicleSource) FetchVehicles(ctx context.Context) ([]tracking.Report, error) {
	vp, err := s.Client.Fetch(ctx, s.VehiclePositionsURL)
	if err != nil {
		return nil, fmt.Errorf("vehicle positions: %w", err)
	}
	if vp == nil {
		return nil, fmt.Errorf("vehicle positions: no URL configured")
	}
	tu, err := s.Client.Fetch(ctx, s.TripUpdatesURL)
	if err != nil {
		s.Log.WithError(err).Warn("trip updates unavailable, adherence defaults to zero")
		tu = nil
	}
	return NewWrapper(vp, tu).Reports(), nil
}
