package bikeshare

import "time"

type StationID string

type Station struct {
	ID        StationID
	Longitude float64
	Latitude  float64
}

// StationRecord holds a station and its aggregates under the active filter.
// Counters are derived on every aggregation pass and never accumulated.
type StationRecord struct {
	Station
	Arrivals     int
	Departures   int
	TotalTraffic int // Arrivals + Departures
}

type TripRecord struct {
	StartStationID StationID
	EndStationID   StationID
	StartedAt      time.Time
	EndedAt        time.Time
}

// NewStationRecords wraps a station list with zeroed counters.
func NewStationRecords(stations []Station) []StationRecord {
	out := make([]StationRecord, len(stations))
	for i, s := range stations {
		out[i] = StationRecord{Station: s}
	}
	return out
}
