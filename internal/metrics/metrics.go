// Package metrics exposes prometheus instrumentation for the download
// pipeline. Collectors register on the default registry; embedders that
// serve /metrics pick them up automatically.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SlicesFetched counts slices downloaded from the API and committed to
	// the cache.
	SlicesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tardis",
		Name:      "slices_fetched_total",
		Help:      "Data slices fetched from the API and committed to the local cache.",
	})

	// CacheHits counts slices served from the local cache with no network.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tardis",
		Name:      "cache_hits_total",
		Help:      "Slice requests satisfied by the local cache.",
	})

	// FetchRetries counts retried fetch attempts, by reason.
	FetchRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tardis",
		Name:      "fetch_retries_total",
		Help:      "Retried slice fetch attempts.",
	}, []string{"reason"})

	// FetchErrors counts fetches that failed for good, by status class.
	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tardis",
		Name:      "fetch_errors_total",
		Help:      "Slice fetches that exhausted retries or hit a fatal status.",
	}, []string{"class"})

	// BytesDownloaded counts response bytes streamed into the cache.
	BytesDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tardis",
		Name:      "bytes_downloaded_total",
		Help:      "Compressed payload bytes written to the cache.",
	})

	// ConcurrencyLimit reports the adaptive download concurrency limit.
	ConcurrencyLimit = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tardis",
		Name:      "download_concurrency_limit",
		Help:      "Current adaptive download concurrency limit.",
	})

	// InflightFetches reports fetches currently in progress.
	InflightFetches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tardis",
		Name:      "inflight_fetches",
		Help:      "Slice fetches currently in flight.",
	})
)

// StatusClass buckets an HTTP status for the FetchErrors label.
func StatusClass(status int) string {
	switch {
	case status == 429:
		return "429"
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status > 0:
		return "other"
	default:
		return "network"
	}
}
