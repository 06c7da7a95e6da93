// Package metrics holds the Prometheus instruments exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	factory   promauto.Factory
	namespace string
	subsystem string

	// counters
	CounterRequests         *prometheus.CounterVec
	CounterSessionSaves     *prometheus.CounterVec
	CounterImportedWorkouts prometheus.Counter

	// gauges
	GaugeRequests prometheus.Gauge

	// histograms
	HistSaveDuration         prometheus.Histogram
	HistogramRequestDuration *prometheus.HistogramVec
}

func NewTestManager() *Manager {
	return NewManager("ironlog", "test", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("ironlog", "test", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request",
		Help:      "The total number of incoming requests",
	}, []string{"method", "status"})
	counterSessionSaves := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "session_saves",
		Help:      "The total number of session save attempts by result",
	}, []string{"result"})
	counterImportedWorkouts := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "imported_workouts",
		Help:      "The total number of workouts inserted by imports",
	})

	gaugeRequests := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "current_requests",
		Help:      "Current number of requests served",
	})

	histSaveDuration := factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "session_save_duration_seconds",
		Help:      "Duration of a single session save transaction in seconds",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	histogramRequestDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      "Histogram of response time for requests in seconds",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"route", "method", "status_code"})

	return &Manager{
		factory:                  factory,
		namespace:                namespace,
		subsystem:                subsystem,
		CounterRequests:          counterRequests,
		CounterSessionSaves:      counterSessionSaves,
		CounterImportedWorkouts:  counterImportedWorkouts,
		GaugeRequests:            gaugeRequests,
		HistSaveDuration:         histSaveDuration,
		HistogramRequestDuration: histogramRequestDuration,
	}
}

// ObserveSave records one session save attempt. It matches
// session.SaveObserver.
func (m *Manager) ObserveSave(took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CounterSessionSaves.WithLabelValues(result).Inc()
	m.HistSaveDuration.Observe(took.Seconds())
}

// TrackActiveSessions exports the number of in-progress sessions, read from
// fn on every scrape.
func (m *Manager) TrackActiveSessions(fn func() int) {
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_sessions",
		Help:      "Number of workout sessions currently in progress",
	}, func() float64 { return float64(fn()) })
}

// TrackCache exports hit and miss counters of an in-process cache.
func (m *Manager) TrackCache(name string, stats func() (hits, misses, entries int64)) {
	labels := prometheus.Labels{"cache": name}
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "cache_hits",
		Help:        "Cache lookups served from memory",
		ConstLabels: labels,
	}, func() float64 { h, _, _ := stats(); return float64(h) })
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "cache_misses",
		Help:        "Cache lookups that fell through to the database",
		ConstLabels: labels,
	}, func() float64 { _, mi, _ := stats(); return float64(mi) })
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "cache_entries",
		Help:        "Entries currently held in the cache",
		ConstLabels: labels,
	}, func() float64 { _, _, e := stats(); return float64(e) })
}
