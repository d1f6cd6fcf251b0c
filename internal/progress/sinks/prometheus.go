package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/opinionscan/internal/progress"
)

// PrometheusSink exports scan progress metrics via Prometheus. It owns the
// collectors for scans started/completed/running and per-source page and
// item counters.
type PrometheusSink struct {
	scansStarted   *prometheus.CounterVec
	scansCompleted *prometheus.CounterVec
	scansRunning   prometheus.Gauge
	scanRuntime    *prometheus.HistogramVec

	pages *prometheus.CounterVec
	items *prometheus.CounterVec

	tracker *scanTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		scansStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opinion_scans_started_total",
			Help: "Total scans that have started, by source.",
		}, []string{"source"}),
		scansCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opinion_scans_completed_total",
			Help: "Total scans completed partitioned by source and result.",
		}, []string{"source", "result"}),
		scansRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opinion_scans_running",
			Help: "Current number of running scans.",
		}),
		scanRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opinion_scan_runtime_seconds",
			Help:    "Wall time per completed scan.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"source"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opinion_scan_pages_total",
			Help: "Listing pages requested per source.",
		}, []string{"source"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opinion_scan_items_total",
			Help: "Items delivered in result events per source.",
		}, []string{"source"}),
		tracker: newScanTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.scansStarted,
		s.scansCompleted,
		s.scansRunning,
		s.scanRuntime,
		s.pages,
		s.items,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Record) error {
	for _, rec := range batch {
		s.consumeRecord(rec)
	}
	return nil
}

func (s *PrometheusSink) consumeRecord(rec progress.Record) {
	source := rec.Source
	if source == "" {
		source = "unknown"
	}
	if s.tracker.start(rec.ScanID) {
		s.scansStarted.WithLabelValues(source).Inc()
		s.scansRunning.Inc()
	}
	switch rec.Event.Type {
	case progress.TypeProgress:
		s.pages.WithLabelValues(source).Inc()
	case progress.TypeError:
		s.tracker.fail(rec.ScanID)
	case progress.TypeResult:
		s.items.WithLabelValues(source).Add(float64(len(rec.Event.Data)))
		result := "success"
		if s.tracker.failed(rec.ScanID) {
			result = "error"
		}
		s.scansCompleted.WithLabelValues(source, result).Inc()
		if rec.Elapsed > 0 {
			s.scanRuntime.WithLabelValues(source).Observe(rec.Elapsed.Seconds())
		}
		if s.tracker.complete(rec.ScanID) {
			s.scansRunning.Dec()
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type scanTracker struct {
	mu      sync.Mutex
	running map[[16]byte]bool
}

func newScanTracker() *scanTracker {
	return &scanTracker{running: make(map[[16]byte]bool)}
}

func (t *scanTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = false
	return true
}

func (t *scanTracker) fail(id [16]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		t.running[id] = true
	}
}

func (t *scanTracker) failed(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running[id]
}

func (t *scanTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
