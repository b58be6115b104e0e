package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"DATABASE_URL", "PG_DSN", "PGHOST", "PGPORT", "PGUSER", "PGPASSWORD", "PGDATABASE", "PGSSLMODE",
	"NATS_URL", "TRAFFIC_SELECTION_SUBJECT", "TRAFFIC_SNAPSHOT_SUBJECT", "TRIPS_REFRESH_INTERVAL_SEC",
	"INITIAL_MINUTE", "LOG_NATS_SUBJECTS", "METRICS_ADDR", "TZ", "CITY", "CITY_NAME",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u@db:5432/bikes")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://u@db:5432/bikes", cfg.DatabaseURL)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATSURL)
	assert.Equal(t, "traffic.selection", cfg.SelectionSubject)
	assert.Equal(t, "traffic.snapshot", cfg.SnapshotSubject)
	assert.Equal(t, 5*time.Minute, cfg.TripsRefreshInterval)
	assert.True(t, cfg.InitialFilter.IsAnyTime())
	assert.False(t, cfg.LogNATSSubjects)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Equal(t, time.Local, cfg.Location)
	assert.Empty(t, cfg.City)
}

func TestLoadBuildsDSNFromParts(t *testing.T) {
	clearEnv(t)
	t.Setenv("PGHOST", "pg")
	t.Setenv("PGUSER", "rider")
	t.Setenv("PGPASSWORD", "p@ss:word")
	t.Setenv("CITY", "boston")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://rider:p%40ss%3Aword@pg:5432/postgres?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, "boston", cfg.City)
}

func TestLoadRequiresDatabase(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PG_DSN", "postgres://localhost/bikes")
	t.Setenv("TRIPS_REFRESH_INTERVAL_SEC", "0")
	t.Setenv("INITIAL_MINUTE", "480")
	t.Setenv("LOG_NATS_SUBJECTS", "yes")
	t.Setenv("METRICS_ADDR", ":9102")
	t.Setenv("TZ", "UTC")
	t.Setenv("CITY_NAME", "bluebikes")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.TripsRefreshInterval)
	assert.Equal(t, "08:00", cfg.InitialFilter.String())
	assert.True(t, cfg.LogNATSSubjects)
	assert.Equal(t, ":9102", cfg.MetricsAddr)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, "bluebikes", cfg.City)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"TRIPS_REFRESH_INTERVAL_SEC": "-3",
		"INITIAL_MINUTE":             "1500",
		"TZ":                         "Mars/Olympus",
		"TRAFFIC_SNAPSHOT_SUBJECT":   "traffic.selection",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("DATABASE_URL", "postgres://localhost/bikes")
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
