package traffic

import (
	"time"

	"station-traffic/internal/bikeshare"
)

// WindowMinutes is the half-width of the time-of-day window.
const WindowMinutes = 60

// FilterTrips selects the trips that start or end within WindowMinutes of the
// filter's minute of day. AnyTime returns trips as is. The window does not
// wrap around midnight.
func FilterTrips(trips []bikeshare.TripRecord, f bikeshare.TimeFilter) []bikeshare.TripRecord {
	m, ok := f.Minute()
	if !ok {
		return trips
	}
	out := make([]bikeshare.TripRecord, 0, len(trips))
	for _, t := range trips {
		if withinWindow(minuteOfDay(t.StartedAt), m) || withinWindow(minuteOfDay(t.EndedAt), m) {
			out = append(out, t)
		}
	}
	return out
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func withinWindow(minute, center int) bool {
	d := minute - center
	if d < 0 {
		d = -d
	}
	return d <= WindowMinutes
}
