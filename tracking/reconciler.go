package tracking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/theoremus-urban-solutions/transit-tracker/block"
	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
	"github.com/theoremus-urban-solutions/transit-tracker/predict"
)

// ErrFeedUnavailable is returned together with the last known vehicle map
// when the live feed could not be fetched.
var ErrFeedUnavailable = errors.New("tracking: live feed unavailable")

const (
	DefaultPollInterval = 7500 * time.Millisecond
	DefaultStaleAfter   = 2 * time.Minute
)

// Schedule is the static data the reconciler needs. Index is called at the
// start of every poll so the schedule loads or refreshes on the polling path.
type Schedule interface {
	Index(ctx context.Context) (*gtfs.Index, error)
	BlockForTrip(tripID string) (*block.Block, bool)
	StopTimesForTrip(tripID string) []gtfs.StopTime
	Location() *time.Location
}

// Observer receives every reconciled poll. Errors are logged and never fail
// the poll.
type Observer interface {
	ObservePoll(ctx context.Context, pollID uuid.UUID, at time.Time, vehicles []Vehicle) error
}

type Options struct {
	// Interval is the minimum time between two upstream fetches.
	Interval time.Duration
	// StaleAfter is the idle window used by Prune.
	StaleAfter time.Duration
	// Resolver is used as given. With a zero NextDayLookback any clock
	// before a block's first trip counts as past midnight; pass
	// block.DefaultResolver for the tuned lookback.
	Resolver  block.Resolver
	Metrics   Metrics
	Observers []Observer
	Now       func() time.Time
}

// Reconciler is the single owner of the live vehicle map.
type Reconciler struct {
	source    VehicleSource
	schedule  Schedule
	log       logrus.FieldLogger
	resolver  block.Resolver
	metrics   Metrics
	observers []Observer

	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	vehicles  map[string]Vehicle
	lastFetch time.Time
}

func NewReconciler(source VehicleSource, schedule Schedule, log logrus.FieldLogger, opts Options) *Reconciler {
	r := &Reconciler{
		source:     source,
		schedule:   schedule,
		log:        log,
		resolver:   opts.Resolver,
		metrics:    opts.Metrics,
		observers:  opts.Observers,
		interval:   opts.Interval,
		staleAfter: opts.StaleAfter,
		now:        opts.Now,
		vehicles:   map[string]Vehicle{},
	}
	if r.metrics == nil {
		r.metrics = nopMetrics{}
	}
	if r.interval <= 0 {
		r.interval = DefaultPollInterval
	}
	if r.staleAfter <= 0 {
		r.staleAfter = DefaultStaleAfter
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Vehicles returns the reconciled vehicle map, polling the source when the
// cached map is older than the poll interval. Concurrent callers share one
// fetch and receive the same map, which must be treated as read-only. On a
// failed fetch the previous map is returned with ErrFeedUnavailable.
func (r *Reconciler) Vehicles(ctx context.Context) (map[string]Vehicle, error) {
	if m, fresh := r.cached(); fresh {
		return m, nil
	}
	v, err, shared := r.group.Do("vehicles", func() (any, error) {
		return r.poll(context.WithoutCancel(ctx))
	})
	if shared {
		r.log.Debug("joined in-flight vehicle fetch")
	}
	return v.(map[string]Vehicle), err
}

func (r *Reconciler) cached() (map[string]Vehicle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastFetch.IsZero() || r.now().Sub(r.lastFetch) >= r.interval {
		return nil, false
	}
	return r.copyLocked(), true
}

func (r *Reconciler) copyLocked() map[string]Vehicle {
	out := make(map[string]Vehicle, len(r.vehicles))
	for k, v := range r.vehicles {
		out[k] = v
	}
	return out
}

func (r *Reconciler) poll(ctx context.Context) (map[string]Vehicle, error) {
	if m, fresh := r.cached(); fresh {
		return m, nil
	}
	start := r.now()
	reports, err := r.source.FetchVehicles(ctx)
	if err != nil {
		r.metrics.FetchFailed()
		r.log.WithError(err).Error("vehicle fetch failed, serving last known vehicles")
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.copyLocked(), fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}

	if r.schedule != nil {
		if _, err := r.schedule.Index(ctx); err != nil {
			r.log.WithError(err).Warn("static schedule unavailable, blocks may be missing")
		}
	}

	reports = Dedupe(reports)
	SortByRecency(reports)

	r.mu.Lock()
	firstPoll := r.lastFetch.IsZero()
	seen := make(map[string]bool, len(reports))
	var rebuilt, reused int
	for _, rep := range reports {
		if seen[rep.Number] {
			continue
		}
		seen[rep.Number] = true

		prior, had := r.vehicles[rep.Number]
		var blk *block.Block
		if rep.TripID != "" {
			switch {
			case had && prior.Block.Contains(rep.TripID):
				blk = prior.Block
				reused++
				r.metrics.BlockReused()
			case r.schedule != nil:
				if b, ok := r.schedule.BlockForTrip(rep.TripID); ok {
					blk = b
					rebuilt++
					r.metrics.BlockRebuilt()
				}
			}
		}
		r.vehicles[rep.Number] = Vehicle{
			Number:      rep.Number,
			TripID:      rep.TripID,
			Driver:      rep.Driver,
			Position:    rep.Position,
			Adherence:   Smooth(prior.Adherence, had && !firstPoll, rep.Adherence),
			LastMessage: rep.LastMessage,
			Block:       blk,
		}
	}
	r.lastFetch = r.now()
	snapshot := r.copyLocked()
	r.mu.Unlock()

	elapsed := r.now().Sub(start)
	r.metrics.PollCompleted(elapsed, len(snapshot))
	r.log.WithFields(logrus.Fields{
		"reports":  len(reports),
		"vehicles": len(snapshot),
		"rebuilt":  rebuilt,
		"reused":   reused,
		"elapsed":  elapsed,
	}).Debug("vehicle poll reconciled")

	r.notify(ctx, snapshot)
	return snapshot, nil
}

func (r *Reconciler) notify(ctx context.Context, snapshot map[string]Vehicle) {
	if len(r.observers) == 0 {
		return
	}
	list := sortedVehicles(snapshot)
	id := uuid.New()
	at := r.now()
	for _, o := range r.observers {
		if err := o.ObservePoll(ctx, id, at, list); err != nil {
			r.log.WithError(err).WithField("poll_id", id).Warn("poll observer failed")
		}
	}
}

func sortedVehicles(m map[string]Vehicle) []Vehicle {
	list := make([]Vehicle, 0, len(m))
	for _, v := range m {
		list = append(list, v)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Number < list[j].Number })
	return list
}

// Vehicle returns one vehicle from the current map without polling.
func (r *Reconciler) Vehicle(number string) (Vehicle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vehicles[number]
	return v, ok
}

// Prune removes vehicles whose last message is older than the stale window
// and returns how many were removed.
func (r *Reconciler) Prune(now time.Time) int {
	cutoff := now.Add(-r.staleAfter)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, v := range r.vehicles {
		if v.LastMessage.Before(cutoff) {
			delete(r.vehicles, k)
			n++
		}
	}
	return n
}

// Seed fills the map from a previous run. Vehicles already present win.
func (r *Reconciler) Seed(vehicles []Vehicle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range vehicles {
		if _, ok := r.vehicles[v.Number]; !ok {
			r.vehicles[v.Number] = v
		}
	}
}

// Run polls every interval and prunes stale vehicles until ctx ends.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Vehicles(ctx); err != nil {
			r.log.WithError(err).Debug("poll served stale vehicles")
		}
		if n := r.Prune(r.now()); n > 0 {
			r.log.WithField("pruned", n).Info("removed stale vehicles")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// TripInfo is a vehicle's resolved duty at one instant.
type TripInfo struct {
	Vehicle  Vehicle         `json:"vehicle"`
	Advice   block.Advice    `json:"advice"`
	NextStop *gtfs.StopTime  `json:"nextStop,omitempty"`
	ETA      int             `json:"eta"`
	Stops    []gtfs.StopTime `json:"stops"`
}

// TripInfo resolves the active trip, layover state and next stop of v at
// now. It reports false when v has no block or the block has no trips.
func (r *Reconciler) TripInfo(v Vehicle, now time.Time) (TripInfo, bool) {
	if v.Block == nil || r.schedule == nil {
		return TripInfo{}, false
	}
	secs := gtfs.SecondsSinceMidnight(now, r.schedule.Location())
	adv, ok := r.resolver.Advise(v.Block, v.Adherence, secs)
	if !ok {
		return TripInfo{}, false
	}
	info := TripInfo{Vehicle: v, Advice: adv}
	for _, id := range adv.Trip.Trips {
		info.Stops = append(info.Stops, r.schedule.StopTimesForTrip(id)...)
	}
	sort.SliceStable(info.Stops, func(i, j int) bool { return info.Stops[i].Arrival < info.Stops[j].Arrival })
	if st, ok := predict.ExpectedStop(info.Stops, adv.VehicleNow); ok {
		info.NextStop = &st
		info.ETA = predict.ETA(st.Arrival, adv.VehicleNow)
	}
	return info, true
}
