package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"station-traffic/internal/bikeshare"
)

type Collector struct {
	reg *prometheus.Registry

	Stations      prometheus.Gauge
	Trips         prometheus.Gauge
	FilteredTrips prometheus.Gauge
	FilterMinute  prometheus.Gauge // -1 for any time

	Recomputes        *prometheus.CounterVec // filter label: any|minute
	RecomputeDuration prometheus.Histogram

	SelectionsReceived prometheus.Counter
	SelectionsRejected prometheus.Counter
	DataUnavailable    *prometheus.CounterVec // source label: stations|trips

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	DBSwitches *prometheus.CounterVec // reason label: update|ping_failure

	RefreshInterval prometheus.Gauge // seconds
}

func NewCollector(refreshInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Stations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "traffic_stations",
			Help: "Number of stations in the loaded dataset.",
		}),
		Trips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "traffic_trips",
			Help: "Number of trips in the loaded trip log.",
		}),
		FilteredTrips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "traffic_filtered_trips",
			Help: "Number of trips inside the active time window.",
		}),
		FilterMinute: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "traffic_filter_minute",
			Help: "Selected minute of day, -1 when no time filter is active.",
		}),
		Recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "traffic_recomputes_total",
			Help: "Total recompute passes by filter kind.",
		}, []string{"filter"}),
		RecomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "traffic_recompute_duration_seconds",
			Help:    "Duration of filter, aggregate and encode passes.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		SelectionsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "traffic_selections_received_total",
			Help: "Total time selection events received.",
		}),
		SelectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "traffic_selections_rejected_total",
			Help: "Total time selection events dropped as malformed.",
		}),
		DataUnavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "traffic_data_unavailable_total",
			Help: "Loads that fell back to an empty collection.",
		}, []string{"source"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "traffic_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "traffic_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "traffic_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "traffic_publish_duration_seconds",
			Help:    "Duration to marshal and publish a snapshot.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		DBSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "traffic_db_switches_total",
			Help: "Number of database switches.",
		}, []string{"reason"}),
		RefreshInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "traffic_refresh_interval_seconds",
			Help: "Trips refresh interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.Stations, c.Trips, c.FilteredTrips, c.FilterMinute,
		c.Recomputes, c.RecomputeDuration,
		c.SelectionsReceived, c.SelectionsRejected, c.DataUnavailable,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.DBSwitches, c.RefreshInterval,
	)

	c.FilterMinute.Set(-1)
	c.RefreshInterval.Set(refreshInterval.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}

// RecomputeObserve records one recompute pass.
func (c *Collector) RecomputeObserve(d time.Duration, f bikeshare.TimeFilter, filteredTrips int) {
	kind := "any"
	minute := -1
	if m, ok := f.Minute(); ok {
		kind = "minute"
		minute = m
	}
	c.Recomputes.WithLabelValues(kind).Inc()
	c.RecomputeDuration.Observe(d.Seconds())
	c.FilteredTrips.Set(float64(filteredTrips))
	c.FilterMinute.Set(float64(minute))
}

func (c *Collector) DatasetSet(stations, trips int) {
	c.Stations.Set(float64(stations))
	c.Trips.Set(float64(trips))
}

func (c *Collector) DataUnavailableInc(source string) {
	c.DataUnavailable.WithLabelValues(source).Inc()
}
