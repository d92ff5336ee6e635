// Package metrics exposes tracker activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	Polls          prometheus.Counter
	FetchErrors    prometheus.Counter
	BlockRebuilds  prometheus.Counter
	BlockReuses    prometheus.Counter
	StaticRefresh  *prometheus.CounterVec // result label: ok|error
	Vehicles       prometheus.Gauge
	PollDuration   prometheus.Histogram
	NATSPublished  prometheus.Counter
	NATSPublishErr prometheus.Counter
	NATSConnected  prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_polls_total",
			Help: "Total successful live vehicle polls.",
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_fetch_errors_total",
			Help: "Total failed live vehicle fetches.",
		}),
		BlockRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_block_rebuilds_total",
			Help: "Blocks built from the schedule for a vehicle.",
		}),
		BlockReuses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_block_reuses_total",
			Help: "Polls where a vehicle kept its previous block.",
		}),
		StaticRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_static_refreshes_total",
			Help: "Static feed loads by result.",
		}, []string{"result"}),
		Vehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_vehicles",
			Help: "Vehicles in the reconciled map after the last poll.",
		}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_poll_duration_seconds",
			Help:    "Duration of a live fetch and reconcile.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_nats_connected",
			Help: "1 if the NATS connection is established, 0 otherwise.",
		}),
	}

	reg.MustRegister(
		c.Polls, c.FetchErrors,
		c.BlockRebuilds, c.BlockReuses,
		c.StaticRefresh, c.Vehicles, c.PollDuration,
		c.NATSPublished, c.NATSPublishErr, c.NATSConnected,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

func (c *Collector) PollCompleted(d time.Duration, vehicles int) {
	c.Polls.Inc()
	c.Vehicles.Set(float64(vehicles))
	c.PollDuration.Observe(d.Seconds())
}

func (c *Collector) FetchFailed()  { c.FetchErrors.Inc() }
func (c *Collector) BlockRebuilt() { c.BlockRebuilds.Inc() }
func (c *Collector) BlockReused()  { c.BlockReuses.Inc() }

func (c *Collector) StaticRefreshed(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.StaticRefresh.WithLabelValues(result).Inc()
}

func (c *Collector) Published(err error) {
	if err != nil {
		c.NATSPublishErr.Inc()
		return
	}
	c.NATSPublished.Inc()
}

func (c *Collector) SetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}
