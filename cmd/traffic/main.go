package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"
	"time"

	"station-traffic/internal/bikeshare"
	"station-traffic/internal/config"
	"station-traffic/internal/db"
	"station-traffic/internal/metrics"
	"station-traffic/internal/publisher"
	"station-traffic/internal/recompute"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.TripsRefreshInterval)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Resolve the trip-log database; a missing database leaves the service
	// running on an empty dataset.
	sqlDB, currentDBName := openDatabase(ctx, cfg)
	defer func() {
		if sqlDB != nil {
			sqlDB.Close()
		}
	}()

	var ds db.Dataset
	if sqlDB != nil {
		ds = db.LoadDataset(ctx, sqlDB, cfg.Location, unavailableFunc(mcol))
	} else {
		recordUnavailable(mcol, db.SourceStations, db.SourceTrips)
	}

	pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.SnapshotSubject, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
	if err != nil {
		log.Fatalf("nats error: %v", err)
	}
	defer pub.Close()

	ctrl := recompute.NewController(ds.Stations, ds.Trips, pub, wrapControllerMetrics(mcol))
	if cfg.InitialFilter.IsAnyTime() {
		ctrl.Start()
	} else {
		ctrl.Apply(cfg.InitialFilter)
	}

	selections := make(chan bikeshare.TimeFilter, 64)
	sub, err := pub.SubscribeSelections(ctx, cfg.SelectionSubject, selections)
	if err != nil {
		log.Fatalf("nats error: %v", err)
	}
	log.Printf("listening for time selections on %s, publishing snapshots to %s", cfg.SelectionSubject, cfg.SnapshotSubject)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := ctrl.Run(ctx, selections); err != nil && ctx.Err() == nil {
			log.Printf("controller stopped: %v", err)
		}
	}()

	// Periodic trip refresh and, with CITY set, switch to newer imports.
	refreshDone := make(chan struct{})
	go func() {
		defer close(refreshDone)
		if cfg.TripsRefreshInterval <= 0 {
			<-ctx.Done()
			return
		}
		ticker := time.NewTicker(cfg.TripsRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if cfg.City != "" {
				if newDB, name, ok := checkForNewImport(ctx, cfg, sqlDB, currentDBName, mcol); ok {
					if sqlDB != nil {
						sqlDB.Close()
					}
					sqlDB, currentDBName = newDB, name
					log.Printf("switched to DB %q for network %q", currentDBName, cfg.City)
				}
			} else if sqlDB == nil {
				sqlDB, currentDBName = openDatabase(ctx, cfg)
			}
			if sqlDB == nil {
				continue
			}
			refreshDataset(ctx, sqlDB, cfg, ctrl, mcol)
			if ctx.Err() != nil {
				return
			}
		}
	}()

	// Block until context cancelled
	<-ctx.Done()
	_ = sub.Unsubscribe()
	<-runDone
	<-refreshDone
	log.Println("shutdown complete")
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, string) {
	if cfg.City != "" {
		conn, name, err := db.OpenLatestImport(ctx, cfg.DatabaseURL, cfg.City)
		if err != nil {
			log.Printf("resolve latest import for network %q: %v", cfg.City, err)
			return nil, ""
		}
		log.Printf("using database %q for network %q", name, cfg.City)
		return conn, name
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Printf("db open error: %v", err)
		return nil, ""
	}
	if err := db.Ping(ctx, conn); err != nil {
		log.Printf("db ping error: %v", err)
		conn.Close()
		return nil, ""
	}
	return conn, ""
}

// refreshDataset reloads trips into ctrl. Stations are loaded too while the
// controller still has none, so a database that was down at startup is
// picked up on the first tick it answers.
func refreshDataset(ctx context.Context, conn *sql.DB, cfg *config.Config, ctrl *recompute.Controller, mcol *metrics.Collector) {
	if !ctrl.HasStations() {
		ds := db.LoadDataset(ctx, conn, cfg.Location, unavailableFunc(mcol))
		if ctx.Err() != nil {
			return
		}
		snap := ctrl.ReplaceDataset(ds.Stations, ds.Trips)
		log.Printf("loaded %d stations and %d trips, %d in window %s", len(snap.Markers), len(ds.Trips), snap.TripCount, snap.Filter)
		return
	}
	trips := db.LoadTrips(ctx, conn, cfg.Location, unavailableFunc(mcol))
	if ctx.Err() != nil {
		return
	}
	snap := ctrl.ReplaceTrips(trips)
	log.Printf("refreshed %d trips, %d in window %s", len(trips), snap.TripCount, snap.Filter)
}

// checkForNewImport reports a handle to the newest import when it differs
// from current or when the current handle stopped answering.
func checkForNewImport(ctx context.Context, cfg *config.Config, current *sql.DB, currentName string, mcol *metrics.Collector) (*sql.DB, string, bool) {
	reason := ""
	if current == nil {
		reason = "ping_failure"
	} else if err := db.Ping(ctx, current); err != nil {
		log.Printf("db ping failed: %v, re-resolving network DB", err)
		reason = "ping_failure"
	}
	conn, name, err := db.OpenLatestImport(ctx, cfg.DatabaseURL, cfg.City)
	if err != nil {
		log.Printf("resolve latest import error: %v", err)
		return nil, "", false
	}
	if name != currentName {
		log.Printf("detected updated DB for network %q: %q -> %q", cfg.City, currentName, name)
		reason = "update"
	}
	if reason == "" {
		conn.Close()
		return nil, "", false
	}
	if mcol != nil {
		mcol.DBSwitches.WithLabelValues(reason).Inc()
	}
	return conn, name, true
}

func unavailableFunc(c *metrics.Collector) db.UnavailableFunc {
	if c == nil {
		return nil
	}
	return func(source string, _ error) { c.DataUnavailableInc(source) }
}

func recordUnavailable(c *metrics.Collector, sources ...string) {
	for _, s := range sources {
		log.Printf("%s unavailable, continuing with none", s)
		if c != nil {
			c.DataUnavailableInc(s)
		}
	}
}

// wrapControllerMetrics keeps a nil Collector from becoming a non-nil interface.
func wrapControllerMetrics(c *metrics.Collector) recompute.Metrics {
	if c == nil {
		return nil
	}
	return c
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
func (p *pubMetrics) SelectionReceived(ok bool) {
	p.c.SelectionsReceived.Inc()
	if !ok {
		p.c.SelectionsRejected.Inc()
	}
}
