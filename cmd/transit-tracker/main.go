package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"

	"github.com/theoremus-urban-solutions/transit-tracker/api"
	"github.com/theoremus-urban-solutions/transit-tracker/config"
	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
	"github.com/theoremus-urban-solutions/transit-tracker/gtfsrt"
	"github.com/theoremus-urban-solutions/transit-tracker/hea"
	"github.com/theoremus-urban-solutions/transit-tracker/internal"
	"github.com/theoremus-urban-solutions/transit-tracker/metrics"
	"github.com/theoremus-urban-solutions/transit-tracker/publisher"
	"github.com/theoremus-urban-solutions/transit-tracker/store"
	"github.com/theoremus-urban-solutions/transit-tracker/tracking"
)

const cleanupEvery = time.Hour

func main() {
	mode := flag.String("mode", "serve", "serve|oneshot")
	configPath := flag.String("config", "", "config file (defaults to ./config.yml or ./config/config.yml)")
	route := flag.String("route", "", "oneshot: only vehicles on this route code")
	flag.Parse()

	var paths []string
	if *configPath != "" {
		paths = []string{*configPath}
	}
	cfg, err := config.LoadAppConfig(paths...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := internal.NewLogger(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "serve":
		err = serve(ctx, cfg, log)
	case "oneshot":
		err = oneshot(ctx, cfg, log, *route)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.WithError(err).Fatal("transit-tracker failed")
	}
}

// app holds the wired services shared by both modes.
type app struct {
	schedule   *tracking.ScheduleCache
	reconciler *tracking.Reconciler
	arrivals   *tracking.ArrivalService
	metrics    *metrics.Collector
	store      *store.Store
	publisher  *publisher.NATSPublisher
	closers    []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.AppConfig, log *logrus.Logger, persistent bool) (*app, error) {
	a := &app{metrics: metrics.NewCollector()}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	static, err := staticSource(cfg, log, a)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.schedule = tracking.NewScheduleCache(static, log.WithField("component", "schedule"), tracking.ScheduleOptions{
		SnapshotPath: cfg.GTFS.SnapshotPath,
		ExpiryGrace:  cfg.ExpiryGrace(),
		Location:     loc,
		Metrics:      a.metrics,
	})

	heaClient := hea.NewClient(cfg.HEA.BaseURL, cfg.HEA.APIKey, cfg.HEATimeout(), loc, log.WithField("component", "hea"))
	var live tracking.VehicleSource = heaClient
	if cfg.Live.Source == "gtfsrt" {
		live = &gtfsrt.VehicleSource{
			Client:              gtfsrt.NewClient(cfg.GTFSRTTimeout(), log.WithField("component", "gtfsrt")),
			VehiclePositionsURL: cfg.GTFSRT.VehiclePositionsURL,
			TripUpdatesURL:      cfg.GTFSRT.TripUpdatesURL,
			Log:                 log.WithField("component", "gtfsrt"),
		}
	}

	var observers []tracking.Observer
	if persistent && cfg.Store.SQLitePath != "" {
		st, err := store.Open(ctx, cfg.Store.SQLitePath, log.WithField("component", "store"))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store = st
		a.closers = append(a.closers, func() { _ = st.Close() })
		observers = append(observers, st)
	}
	if persistent && cfg.NATS.URL != "" {
		pub, err := publisher.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, log.WithField("component", "nats"), a.metrics)
		if err != nil {
			log.WithError(err).Warn("NATS unavailable, vehicle publishing disabled")
		} else {
			a.publisher = pub
			a.closers = append(a.closers, pub.Close)
			observers = append(observers, pub)
		}
	}

	resolver := cfg.TripResolver()
	a.reconciler = tracking.NewReconciler(live, a.schedule, log.WithField("component", "reconciler"), tracking.Options{
		Interval:   cfg.PollInterval(),
		StaleAfter: cfg.StaleAfter(),
		Resolver:   resolver,
		Metrics:    a.metrics,
		Observers:  observers,
	})
	a.arrivals = tracking.NewArrivalService(heaClient, a.schedule, a.reconciler, resolver, log.WithField("component", "arrivals"))

	if a.store != nil {
		seed, err := a.store.Load(ctx, time.Now().Add(-cfg.StaleAfter()))
		if err != nil {
			log.WithError(err).Warn("could not seed vehicles from store")
		} else {
			a.reconciler.Seed(seed)
			log.WithField("vehicles", len(seed)).Info("seeded vehicles from store")
		}
	}
	return a, nil
}

// staticSource picks Postgres, then a local zip, then the download URL.
func staticSource(cfg *config.AppConfig, log *logrus.Logger, a *app) (gtfs.FeedSource, error) {
	l := log.WithField("component", "static")
	switch {
	case cfg.GTFS.PostgresDSN != "":
		db, err := gtfs.OpenPostgres(cfg.GTFS.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		return gtfs.NewPostgresSource(db, l), nil
	case cfg.GTFS.StaticPath != "":
		return &gtfs.FileZipSource{Path: cfg.GTFS.StaticPath, Log: l}, nil
	case cfg.GTFS.StaticURL != "":
		return gtfs.NewHTTPZipSource(cfg.GTFS.StaticURL, cfg.StaticTimeout(), l), nil
	}
	return nil, errors.New("no static feed source configured")
}

func serve(ctx context.Context, cfg *config.AppConfig, log *logrus.Logger) error {
	a, err := build(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.schedule.Index(ctx); err != nil {
		log.WithError(err).Warn("static feed not available yet, retrying on each poll")
	}
	go a.reconciler.Run(ctx)
	if a.store != nil && cfg.Store.RetentionHours > 0 {
		go cleanupLoop(ctx, a.store, cfg.Retention(), log)
	}

	opts := api.Options{
		Vehicles:       a.reconciler,
		Arrivals:       a.arrivals,
		Schedule:       a.schedule,
		Metrics:        a.metrics.Handler(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Log:            log.WithField("component", "api"),
	}
	if a.store != nil {
		opts.Polls = a.store
	}
	srv := api.NewServer(cfg.Server.Port, api.NewRouter(opts))
	return api.Serve(ctx, srv, log)
}

func cleanupLoop(ctx context.Context, st *store.Store, retention time.Duration, log logrus.FieldLogger) {
	ticker := time.NewTicker(cleanupEvery)
	defer ticker.Stop()
	for {
		n, err := st.Cleanup(ctx, time.Now(), retention)
		if err != nil {
			log.WithError(err).Warn("store cleanup failed")
		} else if n > 0 {
			log.WithField("deleted", n).Info("store cleanup")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func oneshot(ctx context.Context, cfg *config.AppConfig, log *logrus.Logger, route string) error {
	a, err := build(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.schedule.Index(ctx); err != nil {
		return fmt.Errorf("static feed: %w", err)
	}
	m, err := a.reconciler.Vehicles(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(tracking.FilterVehicles(m, route, 0, time.Now()))
}
