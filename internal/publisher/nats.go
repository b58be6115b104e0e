package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"station-traffic/internal/bikeshare"
	"station-traffic/internal/recompute"
	"station-traffic/internal/traffic"
)

type NATSPublisher struct {
	nc              *nats.Conn
	snapshotSubject string
	logSubjects     bool
	metrics         PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
	SelectionReceived(ok bool)
}

func NewNATSPublisher(url, snapshotSubject string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("station-traffic"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return newPublisher(nc, snapshotSubject, logSubjects, m), nil
}

func newPublisher(nc *nats.Conn, snapshotSubject string, logSubjects bool, m PublisherMetrics) *NATSPublisher {
	return &NATSPublisher{nc: nc, snapshotSubject: subjectPath(snapshotSubject), logSubjects: logSubjects, metrics: m}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

type SnapshotMessage struct {
	ID         string                    `json:"id"`
	Filter     string                    `json:"filter"`
	ComputedAt time.Time                 `json:"computedAt"`
	TripCount  int                       `json:"tripCount"`
	Stations   map[string]traffic.Marker `json:"stations"`
}

func NewSnapshotMessage(s recompute.Snapshot) SnapshotMessage {
	stations := make(map[string]traffic.Marker, len(s.Markers))
	for id, m := range s.Markers {
		stations[string(id)] = m
	}
	return SnapshotMessage{
		ID:         s.ID,
		Filter:     s.Filter.String(),
		ComputedAt: s.ComputedAt,
		TripCount:  s.TripCount,
		Stations:   stations,
	}
}

func (p *NATSPublisher) PublishSnapshot(s recompute.Snapshot) error {
	b, err := json.Marshal(NewSnapshotMessage(s))
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s filter=%s stations=%d", p.snapshotSubject, s.Filter, len(s.Markers))
	}
	start := time.Now()
	err = p.nc.Publish(p.snapshotSubject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// Render implements recompute.Sink.
func (p *NATSPublisher) Render(s recompute.Snapshot) {
	if err := p.PublishSnapshot(s); err != nil {
		log.Printf("publish snapshot %s error: %v", s.ID, err)
	}
}

// SubscribeSelections forwards parsed time selections from subject to out
// until ctx is done. NATS delivers a subscription's messages one at a time,
// so out sees them in publish order. Malformed payloads are logged and dropped.
func (p *NATSPublisher) SubscribeSelections(ctx context.Context, subject string, out chan<- bikeshare.TimeFilter) (*nats.Subscription, error) {
	subject = subjectPath(subject)
	sub, err := p.nc.Subscribe(subject, func(msg *nats.Msg) {
		f, err := bikeshare.ParseTimeFilter(string(msg.Data))
		if p.metrics != nil {
			p.metrics.SelectionReceived(err == nil)
		}
		if err != nil {
			log.Printf("drop selection on %s: %v", msg.Subject, err)
			return
		}
		if p.logSubjects {
			log.Printf("nats selection subject=%s filter=%s", msg.Subject, f)
		}
		select {
		case out <- f:
		case <-ctx.Done():
			log.Printf("drop selection %s: %v", f, ctx.Err())
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// subjectPath sanitizes each dot-separated token of a subject.
func subjectPath(s string) string {
	parts := strings.Split(strings.TrimSpace(s), ".")
	for i, part := range parts {
		parts[i] = subjectToken(part)
	}
	return strings.Join(parts, ".")
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
