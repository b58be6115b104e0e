package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"station-traffic/internal/bikeshare"
)

type Config struct {
	DatabaseURL          string
	NATSURL              string
	SelectionSubject     string
	SnapshotSubject      string
	TripsRefreshInterval time.Duration
	InitialFilter        bikeshare.TimeFilter
	Location             *time.Location
	City                 string
	LogNATSSubjects      bool
	MetricsAddr          string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		// With CITY the base DB only serves the import lookup.
		if db == "" && os.Getenv("CITY") != "" {
			db = "postgres"
		}
		if db == "" {
			return nil, errors.New("PGDATABASE or DATABASE_URL must be set (set PGDATABASE=postgres when using CITY)")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")
	cfg.SelectionSubject = getenvDefault("TRAFFIC_SELECTION_SUBJECT", "traffic.selection")
	cfg.SnapshotSubject = getenvDefault("TRAFFIC_SNAPSHOT_SUBJECT", "traffic.snapshot")
	if cfg.SelectionSubject == cfg.SnapshotSubject {
		return nil, fmt.Errorf("TRAFFIC_SELECTION_SUBJECT and TRAFFIC_SNAPSHOT_SUBJECT must differ: %q", cfg.SnapshotSubject)
	}

	// Trips refresh interval (seconds); 0 disables
	if v := os.Getenv("TRIPS_REFRESH_INTERVAL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec < 0 {
			return nil, fmt.Errorf("invalid TRIPS_REFRESH_INTERVAL_SEC: %q", v)
		}
		cfg.TripsRefreshInterval = time.Duration(sec) * time.Second
	} else {
		cfg.TripsRefreshInterval = 5 * time.Minute
	}

	// Initial time selection, same format as selection events
	if v := os.Getenv("INITIAL_MINUTE"); v != "" {
		f, err := bikeshare.ParseTimeFilter(v)
		if err != nil {
			return nil, fmt.Errorf("invalid INITIAL_MINUTE: %q", v)
		}
		cfg.InitialFilter = f
	}

	// Debug logging for NATS subjects
	if v := os.Getenv("LOG_NATS_SUBJECTS"); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "t", "yes", "y", "on":
			cfg.LogNATSSubjects = true
		default:
			cfg.LogNATSSubjects = false
		}
	}

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Time zone for minute-of-day
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	// Bike network name for dynamic DB resolution
	cfg.City = firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME"))

	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
