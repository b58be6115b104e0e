package traffic

import "station-traffic/internal/bikeshare"

// Aggregate returns a copy of stations with arrivals, departures and total
// traffic counted over trips. Trips whose station ids are not in the list
// contribute nothing.
func Aggregate(stations []bikeshare.StationRecord, trips []bikeshare.TripRecord) []bikeshare.StationRecord {
	departures := make(map[bikeshare.StationID]int)
	arrivals := make(map[bikeshare.StationID]int)
	for _, t := range trips {
		departures[t.StartStationID]++
		arrivals[t.EndStationID]++
	}

	out := make([]bikeshare.StationRecord, len(stations))
	for i, s := range stations {
		s.Departures = departures[s.ID]
		s.Arrivals = arrivals[s.ID]
		s.TotalTraffic = s.Arrivals + s.Departures
		out[i] = s
	}
	return out
}

// MaxTraffic returns the largest TotalTraffic, or 0 for an empty list.
func MaxTraffic(stations []bikeshare.StationRecord) int {
	top := 0
	for _, s := range stations {
		if s.TotalTraffic > top {
			top = s.TotalTraffic
		}
	}
	return top
}
