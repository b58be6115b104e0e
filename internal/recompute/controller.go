package recompute

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"station-traffic/internal/bikeshare"
	"station-traffic/internal/traffic"
)

// Snapshot is the immutable result of one recompute pass.
type Snapshot struct {
	ID         string
	Filter     bikeshare.TimeFilter
	ComputedAt time.Time
	TripCount  int // trips inside the active window
	Markers    map[bikeshare.StationID]traffic.Marker
}

// Sink receives every snapshot, in order. Render must not block for long:
// the controller holds its lock while emitting. Markers is shared with the
// controller and must be treated as read-only.
type Sink interface {
	Render(s Snapshot)
}

type SinkFunc func(s Snapshot)

func (f SinkFunc) Render(s Snapshot) { f(s) }

type Metrics interface {
	RecomputeObserve(d time.Duration, f bikeshare.TimeFilter, filteredTrips int)
	DatasetSet(stations, trips int)
}

// Projection maps a station's longitude/latitude to pixel coordinates.
type Projection func(lon, lat float64) (x, y float64)

type Point struct {
	X float64
	Y float64
}

// Controller owns the station aggregates and the active time filter. Each
// transition runs filter, aggregate and encode to completion before the next
// one is accepted.
type Controller struct {
	sink    Sink
	metrics Metrics
	now     func() time.Time

	mu       sync.Mutex
	stations []bikeshare.StationRecord
	trips    []bikeshare.TripRecord
	filter   bikeshare.TimeFilter
	last     Snapshot
}

func NewController(stations []bikeshare.Station, trips []bikeshare.TripRecord, sink Sink, m Metrics) *Controller {
	if sink == nil {
		sink = SinkFunc(func(Snapshot) {})
	}
	c := &Controller{
		sink:     sink,
		metrics:  m,
		now:      time.Now,
		stations: bikeshare.NewStationRecords(stations),
		trips:    trips,
	}
	if m != nil {
		m.DatasetSet(len(c.stations), len(trips))
	}
	return c
}

// Start runs the initial recompute in the unfiltered state.
func (c *Controller) Start() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recomputeLocked()
}

// Apply switches to f and recomputes.
func (c *Controller) Apply(f bikeshare.TimeFilter) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f != c.filter {
		log.Printf("time filter %s -> %s", c.filter, f)
	}
	c.filter = f
	return c.recomputeLocked()
}

// ReplaceTrips swaps the trip log and recomputes under the current filter.
// A nil slice is treated as an empty trip set.
func (c *Controller) ReplaceTrips(trips []bikeshare.TripRecord) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trips = trips
	if c.metrics != nil {
		c.metrics.DatasetSet(len(c.stations), len(trips))
	}
	return c.recomputeLocked()
}

// ReplaceDataset adopts stations while the controller has none (the station
// source was unavailable at startup) and swaps the trip log. Once a station
// list is in place it is kept and only the trips change.
func (c *Controller) ReplaceDataset(stations []bikeshare.Station, trips []bikeshare.TripRecord) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.stations) == 0 && len(stations) > 0 {
		c.stations = bikeshare.NewStationRecords(stations)
		log.Printf("adopted %d stations", len(c.stations))
	}
	c.trips = trips
	if c.metrics != nil {
		c.metrics.DatasetSet(len(c.stations), len(trips))
	}
	return c.recomputeLocked()
}

// HasStations reports whether a station list has been loaded.
func (c *Controller) HasStations() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stations) > 0
}

// Run applies filters from events in arrival order until ctx is done or
// events is closed.
func (c *Controller) Run(ctx context.Context, events <-chan bikeshare.TimeFilter) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-events:
			if !ok {
				return nil
			}
			c.Apply(f)
		}
	}
}

func (c *Controller) Filter() bikeshare.TimeFilter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// Last returns a copy of the most recent snapshot; it is the zero Snapshot
// before Start.
func (c *Controller) Last() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.last
	if c.last.Markers != nil {
		snap.Markers = make(map[bikeshare.StationID]traffic.Marker, len(c.last.Markers))
		for id, m := range c.last.Markers {
			snap.Markers[id] = m
		}
	}
	return snap
}

// Stations returns a copy of the current aggregates.
func (c *Controller) Stations() []bikeshare.StationRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]bikeshare.StationRecord, len(c.stations))
	copy(out, c.stations)
	return out
}

// Positions projects every station once, e.g. after the map view moved.
func (c *Controller) Positions(project Projection) map[bikeshare.StationID]Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[bikeshare.StationID]Point, len(c.stations))
	for _, s := range c.stations {
		x, y := project(s.Longitude, s.Latitude)
		out[s.ID] = Point{X: x, Y: y}
	}
	return out
}

func (c *Controller) recomputeLocked() Snapshot {
	start := c.now()
	filtered := traffic.FilterTrips(c.trips, c.filter)
	c.stations = traffic.Aggregate(c.stations, filtered)
	snap := Snapshot{
		ID:         uuid.NewString(),
		Filter:     c.filter,
		ComputedAt: start,
		TripCount:  len(filtered),
		Markers:    traffic.Encode(c.stations, c.filter),
	}
	c.last = snap
	if c.metrics != nil {
		c.metrics.RecomputeObserve(c.now().Sub(start), c.filter, len(filtered))
	}
	c.sink.Render(snap)
	return snap
}
