package tracking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/theoremus-urban-solutions/transit-tracker/block"
	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
	"github.com/theoremus-urban-solutions/transit-tracker/predict"
)

// ArrivalSource fetches the raw arrivals of one stop.
type ArrivalSource interface {
	FetchArrivals(ctx context.Context, stopCode string) ([]predict.RawArrival, error)
}

// ArrivalService joins a stop's raw arrivals with the reconciled vehicles
// and the static schedule.
type ArrivalService struct {
	source   ArrivalSource
	schedule *ScheduleCache
	vehicles *Reconciler
	resolver block.Resolver
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewArrivalService(source ArrivalSource, schedule *ScheduleCache, vehicles *Reconciler, resolver block.Resolver, log logrus.FieldLogger) *ArrivalService {
	return &ArrivalService{
		source:   source,
		schedule: schedule,
		vehicles: vehicles,
		resolver: resolver,
		log:      log,
		now:      time.Now,
	}
}

// Arrivals returns the polished arrivals at stopCode, limited to route
// (case-insensitive route code) when route is not empty.
func (s *ArrivalService) Arrivals(ctx context.Context, stopCode, route string) ([]predict.Arrival, error) {
	idx, err := s.schedule.Index(ctx)
	if idx == nil {
		return nil, err
	}
	raws, err := s.source.FetchArrivals(ctx, stopCode)
	if err != nil {
		return nil, fmt.Errorf("arrivals for stop %s: %w", stopCode, err)
	}
	vehicles, err := s.vehicles.Vehicles(ctx)
	if err != nil {
		s.log.WithError(err).Debug("arrivals use stale vehicles")
	}

	now := s.now()
	loc := s.schedule.Location()
	secs := gtfs.SecondsSinceMidnight(now, loc)
	out := make([]predict.Arrival, 0, len(raws))
	for _, raw := range raws {
		stopTime, err := predict.ParseStopTime(raw.Date, raw.StopTime, loc)
		if err != nil {
			s.log.WithError(err).WithField("arrival", raw.ID).Warn("unparseable arrival time")
		}
		a := predict.Polish(idx, stopCode, raw, s.fixFor(raw, vehicles, secs), stopTime)
		if route != "" && !strings.EqualFold(a.Trip.RouteCode, route) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// fixFor locates the vehicle serving raw. A vehicle the reconciler has not
// seen is taken at the position the arrival reports, on schedule.
func (s *ArrivalService) fixFor(raw predict.RawArrival, vehicles map[string]Vehicle, secs int) *predict.Fix {
	if !raw.HasVehicle() {
		return nil
	}
	v, ok := vehicles[strings.TrimSpace(raw.Vehicle)]
	if !ok {
		pos, hasPos := raw.Position()
		if !hasPos {
			return nil
		}
		v = Vehicle{Number: strings.TrimSpace(raw.Vehicle), TripID: raw.Trip, Position: pos}
		v.Block, _ = s.schedule.BlockForTrip(raw.Trip)
	}
	fix := &predict.Fix{Number: v.Number, Position: v.Position}
	active, ok := s.resolver.ActiveTrip(v.Block, v.Adherence, secs)
	if !ok {
		return fix
	}
	fix.ShapeID = active.ShapeID
	target := active
	if t, ok := v.Block.TripFor(raw.Trip); ok {
		target = t
	}
	fix.VehicleNow = s.resolver.VehicleNow(secs, v.Adherence, target)
	fix.Resolved = true
	return fix
}
