package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"station-traffic/internal/bikeshare"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// FetchStations returns the station list with coordinates.
func FetchStations(ctx context.Context, db *sql.DB) ([]bikeshare.Station, error) {
	// Detect column layout: either lon/lat exist, or use PostGIS station_loc geography
	lonlatExists, err := hasColumns(ctx, db, "public", "stations", "lon", "lat")
	if err != nil {
		return nil, fmt.Errorf("introspect stations columns: %w", err)
	}
	var q string
	if lonlatExists["lon"] && lonlatExists["lat"] {
		q = `SELECT short_name, COALESCE(lon, 0), COALESCE(lat, 0)
             FROM stations WHERE short_name IS NOT NULL ORDER BY short_name`
	} else {
		locExists, err := hasColumns(ctx, db, "public", "stations", "station_loc")
		if err != nil {
			return nil, fmt.Errorf("introspect stations station_loc: %w", err)
		}
		if !locExists["station_loc"] {
			return nil, fmt.Errorf("stations table missing expected columns (lon/lat or station_loc)")
		}
		q = `SELECT short_name,
                    COALESCE(ST_X(station_loc::geometry), 0) AS lon,
                    COALESCE(ST_Y(station_loc::geometry), 0) AS lat
             FROM stations WHERE short_name IS NOT NULL ORDER BY short_name`
	}
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()

	var stations []bikeshare.Station
	seen := make(map[bikeshare.StationID]bool)
	for rows.Next() {
		var s bikeshare.Station
		var id string
		if err := rows.Scan(&id, &s.Longitude, &s.Latitude); err != nil {
			return nil, err
		}
		s.ID = bikeshare.StationID(strings.TrimSpace(id))
		if s.ID == "" || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		stations = append(stations, s)
	}
	return stations, rows.Err()
}

// FetchTrips returns the trip log with timestamps in loc. Rows whose
// timestamps cannot be parsed are skipped.
func FetchTrips(ctx context.Context, db *sql.DB, loc *time.Location) ([]bikeshare.TripRecord, error) {
	// Timestamps may be stored as text or timestamp(tz); read them as text either way.
	q := `SELECT COALESCE(start_station_id::text, ''),
                 COALESCE(end_station_id::text, ''),
                 COALESCE(started_at::text, ''),
                 COALESCE(ended_at::text, '')
          FROM trips`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()

	var trips []bikeshare.TripRecord
	skipped := 0
	for rows.Next() {
		var startID, endID, startS, endS string
		if err := rows.Scan(&startID, &endID, &startS, &endS); err != nil {
			return nil, err
		}
		started, err1 := parseTimestamp(startS, loc)
		ended, err2 := parseTimestamp(endS, loc)
		if err1 != nil || err2 != nil {
			skipped++
			continue
		}
		trips = append(trips, bikeshare.TripRecord{
			StartStationID: bikeshare.StationID(strings.TrimSpace(startID)),
			EndStationID:   bikeshare.StationID(strings.TrimSpace(endID)),
			StartedAt:      started,
			EndedAt:        ended,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if skipped > 0 {
		log.Printf("skipped %d trips with unparseable timestamps", skipped)
	}
	return trips, nil
}

// Layouts produced by Postgres ::text on timestamptz and timestamp columns,
// plus ISO 8601 for text imports.
var zonedLayouts = []string{
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
}

var localLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
}

// parseTimestamp parses s and converts it to loc. Timestamps without a zone
// are taken as wall-clock time in loc.
func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc), nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
