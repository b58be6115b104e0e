package traffic

import (
	"math"

	"station-traffic/internal/bikeshare"
)

// Radius output ranges. A selected minute narrows the data, so markers are
// drawn larger.
const (
	AnyTimeMinRadius  = 0.0
	AnyTimeMaxRadius  = 25.0
	FilteredMinRadius = 3.0
	FilteredMaxRadius = 50.0
)

// Departure ratio buckets.
const (
	RatioArrivals   = 0.0
	RatioBalanced   = 0.5
	RatioDepartures = 1.0
)

// RadiusScale maps [0, DomainMax] to [Lo, Hi] with a square-root curve, so
// marker area grows linearly with traffic.
type RadiusScale struct {
	DomainMax float64
	Lo        float64
	Hi        float64
}

func NewRadiusScale(maxTraffic int, f bikeshare.TimeFilter) RadiusScale {
	s := RadiusScale{DomainMax: float64(maxTraffic), Lo: AnyTimeMinRadius, Hi: AnyTimeMaxRadius}
	if !f.IsAnyTime() {
		s.Lo, s.Hi = FilteredMinRadius, FilteredMaxRadius
	}
	return s
}

func (s RadiusScale) Radius(traffic int) float64 {
	if s.DomainMax <= 0 || traffic <= 0 {
		return s.Lo
	}
	v := float64(traffic)
	if v > s.DomainMax {
		v = s.DomainMax
	}
	return s.Lo + (s.Hi-s.Lo)*math.Sqrt(v/s.DomainMax)
}

// RatioBucket quantizes departures/total into {0, 0.5, 1} with thresholds at
// 1/3 and 2/3. A value on a threshold goes to the upper bucket. With no
// traffic the ratio is undefined: the result is RatioArrivals and ok is false.
func RatioBucket(departures, total int) (bucket float64, ok bool) {
	if total <= 0 {
		return RatioArrivals, false
	}
	r := float64(departures) / float64(total)
	switch {
	case r < 1.0/3:
		return RatioArrivals, true
	case r < 2.0/3:
		return RatioBalanced, true
	default:
		return RatioDepartures, true
	}
}

// Marker is the visual encoding of one station.
type Marker struct {
	Radius         float64 `json:"radius"`
	DepartureRatio float64 `json:"departureRatio"`
	HasRatio       bool    `json:"hasRatio"`
	Arrivals       int     `json:"arrivals"`
	Departures     int     `json:"departures"`
	TotalTraffic   int     `json:"totalTraffic"`
}

// Encode applies both scales to aggregated stations. The radius scale is
// rebuilt from the stations' current maximum on every call.
func Encode(stations []bikeshare.StationRecord, f bikeshare.TimeFilter) map[bikeshare.StationID]Marker {
	scale := NewRadiusScale(MaxTraffic(stations), f)
	out := make(map[bikeshare.StationID]Marker, len(stations))
	for _, s := range stations {
		bucket, ok := RatioBucket(s.Departures, s.TotalTraffic)
		out[s.ID] = Marker{
			Radius:         scale.Radius(s.TotalTraffic),
			DepartureRatio: bucket,
			HasRatio:       ok,
			Arrivals:       s.Arrivals,
			Departures:     s.Departures,
			TotalTraffic:   s.TotalTraffic,
		}
	}
	return out
}
