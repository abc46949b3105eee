package main

import (
	"net/http"
	"time"

	"complaintmap/libs/mapview"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "complaintmap"

type appMetrics struct {
	registry *prometheus.Registry

	mapEvents     *prometheus.CounterVec
	markers       prometheus.Histogram
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	sessions      prometheus.Gauge
}

func newAppMetrics() *appMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	registry.MustRegister(prometheus.NewGoCollector())

	m := &appMetrics{
		registry: registry,
		mapEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "map_events_total",
			Help:      "Map view events by kind.",
		}, []string{"kind"}),
		markers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "markers_per_rebuild",
			Help:      "Markers placed by each marker rebuild.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "source_fetches_total",
			Help:      "Complaint source fetches by source and result.",
		}, []string{"source", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Complaint source fetch latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions",
			Help:      "Live map sessions.",
		}),
	}
	registry.MustRegister(m.mapEvents, m.markers, m.fetches, m.fetchDuration, m.sessions)
	return m
}

func (m *appMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// observeEvent is installed as the mapview event hook of every session.
func (m *appMetrics) observeEvent(e mapview.Event) {
	m.mapEvents.WithLabelValues(string(e.Kind)).Inc()
	if e.Kind == mapview.EventRebuilt {
		m.markers.Observe(float64(e.Markers))
	}
}

func (m *appMetrics) observeFetch(source string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.fetches.WithLabelValues(source, result).Inc()
	m.fetchDuration.WithLabelValues(source).Observe(time.Since(started).Seconds())
}
