package db

import (
	"context"
	"database/sql"
	"log"
	"time"

	"station-traffic/internal/bikeshare"
)

const (
	SourceStations = "stations"
	SourceTrips    = "trips"
)

// UnavailableFunc is told which source failed to load.
type UnavailableFunc func(source string, err error)

// Dataset is the station list and trip log a controller starts from.
type Dataset struct {
	Stations []bikeshare.Station
	Trips    []bikeshare.TripRecord
}

// LoadDataset fetches stations and trips. A source that fails is replaced by
// an empty collection and reported through onUnavailable; it never fails the load.
func LoadDataset(ctx context.Context, db *sql.DB, loc *time.Location, onUnavailable UnavailableFunc) Dataset {
	var ds Dataset
	stations, err := FetchStations(ctx, db)
	if err != nil {
		reportUnavailable(SourceStations, err, onUnavailable)
	} else {
		ds.Stations = stations
	}
	ds.Trips = LoadTrips(ctx, db, loc, onUnavailable)
	log.Printf("loaded %d stations and %d trips", len(ds.Stations), len(ds.Trips))
	return ds
}

// LoadTrips is LoadDataset for the trip log alone.
func LoadTrips(ctx context.Context, db *sql.DB, loc *time.Location, onUnavailable UnavailableFunc) []bikeshare.TripRecord {
	trips, err := FetchTrips(ctx, db, loc)
	if err != nil {
		reportUnavailable(SourceTrips, err, onUnavailable)
		return nil
	}
	return trips
}

func reportUnavailable(source string, err error, onUnavailable UnavailableFunc) {
	log.Printf("%s unavailable, continuing with none: %v", source, err)
	if onUnavailable != nil {
		onUnavailable(source, err)
	}
}
