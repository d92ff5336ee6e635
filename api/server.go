// Package api serves the tracker's queries over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
	"github.com/theoremus-urban-solutions/transit-tracker/predict"
	"github.com/theoremus-urban-solutions/transit-tracker/tracking"
)

// VehicleService is the reconciler as seen by the handlers.
type VehicleService interface {
	Vehicles(ctx context.Context) (map[string]tracking.Vehicle, error)
	TripInfo(v tracking.Vehicle, now time.Time) (tracking.TripInfo, bool)
}

type ArrivalService interface {
	Arrivals(ctx context.Context, stopCode, route string) ([]predict.Arrival, error)
}

// ScheduleStatus reports the loaded static feed.
type ScheduleStatus interface {
	Current() *gtfs.Index
}

// PollLog reports the last recorded poll; the SQLite store implements it.
type PollLog interface {
	LastPoll(ctx context.Context) (uuid.UUID, time.Time, bool, error)
}

type Options struct {
	Vehicles       VehicleService
	Arrivals       ArrivalService
	Schedule       ScheduleStatus
	Polls          PollLog
	Metrics        http.Handler
	AllowedOrigins []string
	Log            logrus.FieldLogger
	Now            func() time.Time
}

// NewRouter builds the chi router with every route mounted.
func NewRouter(opts Options) http.Handler {
	h := newHandlers(opts)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/api/health", h.health)
	r.Get("/api/vehicles", h.vehicles)
	r.Get("/api/vehicles/{number}", h.vehicle)
	r.Get("/api/stops/near", h.stopsNear)
	r.Get("/api/stops/{stop}/arrivals", h.arrivals)
	r.Get("/api/routes/{route}", h.route)
	r.Get("/api/routes/{route}/calendar", h.routeCalendar)
	r.Get("/api/shapes/{shape}", h.shape)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}
	return r
}

// NewServer wraps handler in an http.Server listening on port.
func NewServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server, log logrus.FieldLogger) error {
	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("server shut down successfully")
	return nil
}
