package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/theoremus-urban-solutions/transit-tracker/block"
	"github.com/theoremus-urban-solutions/transit-tracker/predict"
	"github.com/theoremus-urban-solutions/transit-tracker/tracking"
	"github.com/theoremus-urban-solutions/transit-tracker/utils"
)

type handlers struct {
	vehicleSvc VehicleService
	arrivalSvc ArrivalService
	schedule   ScheduleStatus
	polls      PollLog
	log        logrus.FieldLogger
	now        func() time.Time
}

func newHandlers(opts Options) *handlers {
	h := &handlers{
		vehicleSvc: opts.Vehicles,
		arrivalSvc: opts.Arrivals,
		schedule:   opts.Schedule,
		polls:      opts.Polls,
		log:        opts.Log,
		now:        opts.Now,
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.log == nil {
		h.log = logrus.StandardLogger()
	}
	return h
}

// ErrorResponse is the JSON error body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

type healthResponse struct {
	Status      string     `json:"status"`
	Schedule    string     `json:"schedule"`
	FeedValidTo *time.Time `json:"feedValidTo,omitempty"`
	LastPollID  string     `json:"lastPollId,omitempty"`
	LastPollAt  *time.Time `json:"lastPollAt,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Schedule: "loaded", Timestamp: h.now().UTC()}
	status := http.StatusOK

	idx := h.schedule.Current()
	if idx == nil {
		resp.Status, resp.Schedule = "degraded", "missing"
		status = http.StatusServiceUnavailable
	} else if validTo, ok := idx.FeedValidity(); ok {
		resp.FeedValidTo = &validTo
		if h.now().After(validTo) {
			resp.Schedule = "expired"
		}
	}

	if h.polls != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		id, at, ok, err := h.polls.LastPoll(ctx)
		switch {
		case err != nil:
			h.log.WithError(err).Warn("health: poll log unavailable")
		case ok:
			resp.LastPollID = id.String()
			resp.LastPollAt = &at
		}
	}
	writeJSON(w, status, resp)
}

type vehicleView struct {
	tracking.Vehicle
	RouteCode     string `json:"routeCode,omitempty"`
	AdherenceText string `json:"adherenceText"`
}

func newVehicleView(v tracking.Vehicle) vehicleView {
	return vehicleView{Vehicle: v, RouteCode: v.RouteCode(), AdherenceText: utils.AdherenceText(v.Adherence)}
}

type vehiclesResponse struct {
	Vehicles []vehicleView `json:"vehicles"`
	Count    int           `json:"count"`
	Stale    bool          `json:"stale"`
	PolledAt time.Time     `json:"polledAt"`
}

// fetchVehicles reports stale=true when the live feed failed but a last
// known map is available.
func (h *handlers) fetchVehicles(ctx context.Context) (map[string]tracking.Vehicle, bool, error) {
	m, err := h.vehicleSvc.Vehicles(ctx)
	if errors.Is(err, tracking.ErrFeedUnavailable) {
		return m, true, nil
	}
	return m, false, err
}

func (h *handlers) vehicles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var lastActive time.Duration
	if s := q.Get("lastActive"); s != "" {
		hours, err := strconv.ParseFloat(s, 64)
		if err != nil || hours < 0 {
			writeError(w, http.StatusBadRequest, "lastActive must be a non-negative number of hours", err)
			return
		}
		lastActive = time.Duration(hours * float64(time.Hour))
	}

	m, stale, err := h.fetchVehicles(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to retrieve vehicles", err)
		return
	}
	now := h.now()
	list := tracking.FilterVehicles(m, q.Get("route"), lastActive, now)
	resp := vehiclesResponse{Vehicles: make([]vehicleView, 0, len(list)), Count: len(list), Stale: stale, PolledAt: now.UTC()}
	for _, v := range list {
		resp.Vehicles = append(resp.Vehicles, newVehicleView(v))
	}
	writeJSON(w, http.StatusOK, resp)
}

type tripView struct {
	tracking.TripInfo
	State        block.State `json:"state"`
	NextStopTime string      `json:"nextStopTime,omitempty"`
	ETAText      string      `json:"etaText,omitempty"`
}

type vehicleResponse struct {
	vehicleView
	Trip  *tripView `json:"tripInfo,omitempty"`
	Stale bool      `json:"stale"`
}

func (h *handlers) vehicle(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	m, stale, err := h.fetchVehicles(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to retrieve vehicles", err)
		return
	}
	v, ok := m[number]
	if !ok {
		writeError(w, http.StatusNotFound, "vehicle "+number+" not found", nil)
		return
	}
	resp := vehicleResponse{vehicleView: newVehicleView(v), Stale: stale}
	if info, ok := h.vehicleSvc.TripInfo(v, h.now()); ok {
		tv := &tripView{TripInfo: info, State: info.Advice.State}
		if info.NextStop != nil {
			tv.NextStopTime = utils.FormatServiceTime(info.NextStop.Arrival)
			tv.ETAText = utils.QuantifyTime(float64(info.ETA))
		}
		resp.Trip = tv
	}
	writeJSON(w, http.StatusOK, resp)
}

type arrivalView struct {
	predict.Arrival
	DistanceText string `json:"distanceText,omitempty"`
	ETAText      string `json:"etaText,omitempty"`
	ETAShort     string `json:"etaShort,omitempty"`
}

type arrivalsResponse struct {
	Stop     string        `json:"stop"`
	Arrivals []arrivalView `json:"arrivals"`
	Count    int           `json:"count"`
}

func (h *handlers) arrivals(w http.ResponseWriter, r *http.Request) {
	stop := chi.URLParam(r, "stop")
	list, err := h.arrivalSvc.Arrivals(r.Context(), stop, r.URL.Query().Get("route"))
	if err != nil {
		h.log.WithError(err).WithField("stop", stop).Warn("arrivals request failed")
		writeError(w, http.StatusBadGateway, "failed to retrieve arrivals", err)
		return
	}
	resp := arrivalsResponse{Stop: stop, Arrivals: make([]arrivalView, 0, len(list)), Count: len(list)}
	for _, a := range list {
		av := arrivalView{Arrival: a}
		if a.Vehicle != "" && a.State != predict.NoGPSFix {
			av.DistanceText = utils.PresentableDistance(a.Distance)
		}
		if a.State == predict.EnRoute && a.ETA > 0 {
			av.ETAText = utils.QuantifyTime(float64(a.ETA))
			av.ETAShort = utils.QuantifyTimeShort(float64(a.ETA))
		}
		resp.Arrivals = append(resp.Arrivals, av)
	}
	writeJSON(w, http.StatusOK, resp)
}
