package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/theoremus-urban-solutions/transit-tracker/block"
	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
)

// DefaultRecheck is how often an expired feed is re-requested while the
// upstream keeps serving the same version.
const DefaultRecheck = 10 * time.Minute

type ScheduleOptions struct {
	// SnapshotPath is where the last good feed is kept; empty disables it.
	SnapshotPath string
	// ExpiryGrace is added to the feed's validity end before reloading.
	ExpiryGrace time.Duration
	Recheck     time.Duration
	// Location is used until a feed with an agency timezone is loaded.
	Location *time.Location
	Metrics  Metrics
	Now      func() time.Time
}

// ScheduleCache owns the current static Index.
type ScheduleCache struct {
	source gtfs.FeedSource
	log    logrus.FieldLogger
	opts   ScheduleOptions

	group singleflight.Group

	mu        sync.RWMutex
	index     *gtfs.Index
	nextCheck time.Time
	// fromDisk is set while the index came from the snapshot rather than
	// the upstream source.
	fromDisk bool
}

func NewScheduleCache(source gtfs.FeedSource, log logrus.FieldLogger, opts ScheduleOptions) *ScheduleCache {
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Recheck <= 0 {
		opts.Recheck = DefaultRecheck
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &ScheduleCache{source: source, log: log, opts: opts}
}

// Current returns the loaded Index without triggering a load. It is nil
// before the first successful load.
func (c *ScheduleCache) Current() *gtfs.Index {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index
}

func (c *ScheduleCache) needsRefresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.index == nil {
		return true
	}
	now := c.opts.Now()
	if now.Before(c.nextCheck) {
		return false
	}
	if c.fromDisk {
		return true
	}
	validTo, ok := c.index.FeedValidity()
	return ok && now.After(validTo.Add(c.opts.ExpiryGrace))
}

// Index returns the current Index, loading it on first use and reloading it
// once the feed has expired. Concurrent loads are coalesced. When a reload
// fails the previous Index is returned along with the error; it is nil only
// if nothing was ever loaded.
func (c *ScheduleCache) Index(ctx context.Context) (*gtfs.Index, error) {
	if !c.needsRefresh() {
		return c.Current(), nil
	}
	v, err, _ := c.group.Do("static", func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})
	idx, _ := v.(*gtfs.Index)
	return idx, err
}

func (c *ScheduleCache) refresh(ctx context.Context) (*gtfs.Index, error) {
	if !c.needsRefresh() {
		return c.Current(), nil
	}
	feed, err := c.source.LoadFeed(ctx)
	if errors.Is(err, gtfs.ErrNotModified) && c.Current() != nil {
		c.log.Info("static feed not modified upstream")
		c.deferCheck()
		return c.Current(), nil
	}
	var idx *gtfs.Index
	if err == nil {
		idx, err = gtfs.NewIndex(feed, c.log)
	}
	if err != nil {
		c.opts.Metrics.StaticRefreshed(false)
		c.log.WithError(err).Error("static feed load failed")
		if cur := c.Current(); cur != nil {
			c.deferCheck()
			return cur, fmt.Errorf("reload static feed: %w", err)
		}
		return c.fromSnapshot(err)
	}

	c.install(idx)
	c.opts.Metrics.StaticRefreshed(true)
	if validTo, ok := idx.FeedValidity(); ok {
		c.log.WithField("valid_to", validTo).Info("static feed loaded")
	}
	if c.needsRefresh() {
		c.log.Warn("upstream static feed is already expired")
		c.deferCheck()
	}
	if c.opts.SnapshotPath != "" {
		if err := gtfs.SaveSnapshot(feed, c.opts.SnapshotPath); err != nil {
			c.log.WithError(err).Warn("could not write feed snapshot")
		}
	}
	return idx, nil
}

func (c *ScheduleCache) fromSnapshot(cause error) (*gtfs.Index, error) {
	if c.opts.SnapshotPath == "" {
		return nil, fmt.Errorf("load static feed: %w", cause)
	}
	feed, err := gtfs.LoadSnapshot(c.opts.SnapshotPath)
	if err != nil {
		return nil, fmt.Errorf("load static feed: %w (snapshot: %v)", cause, err)
	}
	idx, err := gtfs.NewIndex(feed, c.log)
	if err != nil {
		return nil, fmt.Errorf("load static feed: %w (snapshot: %v)", cause, err)
	}
	c.log.WithField("path", c.opts.SnapshotPath).Warn("serving static feed from snapshot")
	c.install(idx)
	c.mu.Lock()
	c.fromDisk = true
	c.mu.Unlock()
	c.deferCheck()
	return idx, nil
}

func (c *ScheduleCache) install(idx *gtfs.Index) {
	c.mu.Lock()
	c.index = idx
	c.nextCheck = time.Time{}
	c.fromDisk = false
	c.mu.Unlock()
}

func (c *ScheduleCache) deferCheck() {
	c.mu.Lock()
	c.nextCheck = c.opts.Now().Add(c.opts.Recheck)
	c.mu.Unlock()
}

// BlockForTrip builds the block of a trip from the current Index.
func (c *ScheduleCache) BlockForTrip(tripID string) (*block.Block, bool) {
	idx := c.Current()
	if idx == nil {
		return nil, false
	}
	return block.Build(idx, tripID)
}

func (c *ScheduleCache) StopTimesForTrip(tripID string) []gtfs.StopTime {
	idx := c.Current()
	if idx == nil {
		return nil
	}
	return idx.StopTimesForTrip(tripID)
}

// Location is the feed timezone, or the configured one before a feed loads.
func (c *ScheduleCache) Location() *time.Location {
	if idx := c.Current(); idx != nil && idx.Location() != time.UTC {
		return idx.Location()
	}
	return c.opts.Location
}
