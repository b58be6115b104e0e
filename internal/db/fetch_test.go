package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"station-traffic/internal/bikeshare"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

// passthroughConverter lets the []string column list reach the mock the way
// pgx accepts it for ANY($3).
type passthroughConverter struct{}

func (passthroughConverter) ConvertValue(v any) (driver.Value, error) { return v, nil }

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthroughConverter{}))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, mock
}

// columnList matches the ANY($3) argument of the column introspection query.
type columnList []string

func (c columnList) Match(v driver.Value) bool {
	got, ok := v.([]string)
	return ok && reflect.DeepEqual(got, []string(c))
}

var columnsQuery = regexp.QuoteMeta("SELECT column_name FROM information_schema.columns")

func expectColumns(mock sqlmock.Sqlmock, requested []string, present ...string) {
	rows := sqlmock.NewRows([]string{"column_name"})
	for _, c := range present {
		rows.AddRow(c)
	}
	mock.ExpectQuery(columnsQuery).
		WithArgs("public", "stations", columnList(requested)).
		WillReturnRows(rows)
}

func stationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"short_name", "lon", "lat"}).
		AddRow(" A32000 ", -71.0942, 42.3601).
		AddRow("   ", 0.0, 0.0).
		AddRow("A32000", -1.0, -1.0).
		AddRow("B32012", -71.0810, 42.3662)
}

func tripRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"start_station_id", "end_station_id", "started_at", "ended_at"}).
		AddRow("A32000", "B32012", "2024-03-01 08:00:00", "2024-03-01 08:12:00").
		AddRow("B32012", "A32000", "not a time", "2024-03-01 09:00:00").
		AddRow(" B32012 ", "A32000", "2024-03-01 20:00:00+00", "2024-03-01 20:30:00+00")
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestFetchStationsLonLat(t *testing.T) {
	conn, mock := newMock(t)
	expectColumns(mock, []string{"lon", "lat"}, "lon", "lat")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT short_name, COALESCE(lon, 0), COALESCE(lat, 0)")).
		WillReturnRows(stationRows())

	stations, err := FetchStations(context.Background(), conn)
	require.NoError(t, err)

	// Blank ids are dropped and the first row wins for a duplicate id.
	require.Len(t, stations, 2)
	assert.Equal(t, bikeshare.Station{ID: "A32000", Longitude: -71.0942, Latitude: 42.3601}, stations[0])
	assert.Equal(t, bikeshare.StationID("B32012"), stations[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchStationsFallsBackToStationLoc(t *testing.T) {
	conn, mock := newMock(t)
	expectColumns(mock, []string{"lon", "lat"})
	expectColumns(mock, []string{"station_loc"}, "station_loc")
	mock.ExpectQuery(`ST_X\(station_loc::geometry\)`).
		WillReturnRows(stationRows())

	stations, err := FetchStations(context.Background(), conn)
	require.NoError(t, err)
	require.Len(t, stations, 2)
	assert.InDelta(t, 42.3662, stations[1].Latitude, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchStationsMissingColumns(t *testing.T) {
	conn, mock := newMock(t)
	expectColumns(mock, []string{"lon", "lat"}, "lon")
	expectColumns(mock, []string{"station_loc"})

	_, err := FetchStations(context.Background(), conn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing expected columns")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchTripsSkipsUnparseableRows(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM trips")).WillReturnRows(tripRows())

	trips, err := FetchTrips(context.Background(), conn, time.UTC)
	require.NoError(t, err)

	require.Len(t, trips, 2)
	assert.Equal(t, bikeshare.StationID("A32000"), trips[0].StartStationID)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), trips[0].StartedAt)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 12, 0, 0, time.UTC), trips[0].EndedAt)
	assert.Equal(t, bikeshare.StationID("B32012"), trips[1].StartStationID)
	assert.Equal(t, 20, trips[1].StartedAt.Hour())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadDatasetKeepsTripsWhenStationsFail(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectQuery(columnsQuery).WillReturnError(errors.New("relation does not exist"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM trips")).WillReturnRows(tripRows())

	var failed []string
	ds := LoadDataset(context.Background(), conn, time.UTC, func(source string, err error) {
		assert.Error(t, err)
		failed = append(failed, source)
	})

	assert.Empty(t, ds.Stations)
	assert.Len(t, ds.Trips, 2)
	assert.Equal(t, []string{SourceStations}, failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
