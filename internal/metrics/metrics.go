// Package metrics exposes Prometheus collectors for the toolscout service.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	classifierRemoteCallsTotal   *prometheus.CounterVec
	classifierCacheEventsTotal   *prometheus.CounterVec
	classifierKeywordRejectTotal prometheus.Counter
	scraperToolsTotal            *prometheus.CounterVec
	scraperRunDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		classifierRemoteCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classifier_remote_calls_total",
				Help: "Total remote classification calls, labeled by mode and result.",
			},
			[]string{"mode", "result"},
		)

		classifierCacheEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classifier_cache_events_total",
				Help: "Classification cache lookups, labeled by cache and event.",
			},
			[]string{"cache", "event"},
		)

		classifierKeywordRejectTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "classifier_keyword_rejects_total",
				Help: "Candidates rejected by the keyword pre-filter before any remote call.",
			},
		)

		scraperToolsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_tools_total",
				Help: "Candidate tools processed per source, labeled by outcome.",
			},
			[]string{"source", "outcome"},
		)

		scraperRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_run_duration_seconds",
				Help:    "Duration of one scrape of a single source.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"source"},
		)
	})
}

// IncRemoteCall records one remote classification call.
func IncRemoteCall(mode, result string) {
	if classifierRemoteCallsTotal != nil {
		classifierRemoteCallsTotal.WithLabelValues(mode, result).Inc()
	}
}

// IncCacheEvent records a cache hit or miss for the named cache.
func IncCacheEvent(cache, event string) {
	if classifierCacheEventsTotal != nil {
		classifierCacheEventsTotal.WithLabelValues(cache, event).Inc()
	}
}

// IncKeywordReject records a pre-filter rejection.
func IncKeywordReject() {
	if classifierKeywordRejectTotal != nil {
		classifierKeywordRejectTotal.Inc()
	}
}

// IncTool records one candidate outcome (saved, duplicate, rejected) for a source.
func IncTool(source, outcome string) {
	if scraperToolsTotal != nil {
		scraperToolsTotal.WithLabelValues(source, outcome).Inc()
	}
}

// ObserveScrapeDuration records how long one source scrape took.
func ObserveScrapeDuration(source string, d time.Duration) {
	if scraperRunDurationSeconds != nil {
		scraperRunDurationSeconds.WithLabelValues(source).Observe(d.Seconds())
	}
}
