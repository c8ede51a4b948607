// Package metrics exposes corecache's cache/query hit-rate and latency
// counters over Prometheus, wired the way the pack's vjache-cie cmd/cie
// exposes promhttp.Handler behind a --metrics-addr flag.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/standardbeagle/corecache/internal/coordinator"
	"github.com/standardbeagle/corecache/internal/embedcache"
)

// Registry owns the collectors corecache reports. One Registry is created
// per process and polled on demand (pull model) rather than pushed on
// every cache operation, keeping the hot path free of metrics overhead.
type Registry struct {
	reg *prometheus.Registry

	embedCacheHits   *prometheus.GaugeVec
	embedCacheHitRate prometheus.Gauge

	coordHits      prometheus.Gauge
	coordMisses    prometheus.Gauge
	coordReused    prometheus.Gauge
	coordGenerated prometheus.Gauge

	queryTotal   prometheus.Counter
	queryLatency prometheus.Histogram
}

// NewRegistry builds a fresh Registry with all collectors registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		embedCacheHits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "corecache",
			Subsystem: "embedcache",
			Name:      "hits_total",
			Help:      "Embedding cache hits, partitioned by tier (l1, l2, l3).",
		}, []string{"tier"}),
		embedCacheHitRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "corecache",
			Subsystem: "embedcache",
			Name:      "hit_rate",
			Help:      "Overall embedding cache hit rate across all tiers.",
		}),
		coordHits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "corecache",
			Subsystem: "coordinator",
			Name:      "hits_total",
			Help:      "Embeddings served from cache by the coordinator.",
		}),
		coordMisses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "corecache",
			Subsystem: "coordinator",
			Name:      "misses_total",
			Help:      "Coordinator cache misses requiring embedder calls.",
		}),
		coordReused: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "corecache",
			Subsystem: "coordinator",
			Name:      "reused_total",
			Help:      "Unchanged stable IDs whose embedding was reused.",
		}),
		coordGenerated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "corecache",
			Subsystem: "coordinator",
			Name:      "generated_total",
			Help:      "Stable IDs whose embedding was freshly generated.",
		}),
		queryTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corecache",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total search queries served.",
		}),
		queryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "corecache",
			Subsystem: "query",
			Name:      "latency_seconds",
			Help:      "Search query latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		r.embedCacheHits,
		r.embedCacheHitRate,
		r.coordHits,
		r.coordMisses,
		r.coordReused,
		r.coordGenerated,
		r.queryTotal,
		r.queryLatency,
	)

	return r
}

// ObserveEmbedCache updates the embedding-cache gauges from a Stats
// snapshot (internal/embedcache.Snapshot).
func (r *Registry) ObserveEmbedCache(s embedcache.Snapshot) {
	r.embedCacheHits.WithLabelValues("l1").Set(float64(s.L1Hits))
	r.embedCacheHits.WithLabelValues("l2").Set(float64(s.L2Hits))
	r.embedCacheHits.WithLabelValues("l3").Set(float64(s.L3Hits))
	r.embedCacheHitRate.Set(s.HitRate())
}

// ObserveCoordinator updates the coordinator gauges from a Snapshot
// (internal/coordinator.Snapshot).
func (r *Registry) ObserveCoordinator(s coordinator.Snapshot) {
	r.coordHits.Set(float64(s.Hits))
	r.coordMisses.Set(float64(s.Misses))
	r.coordReused.Set(float64(s.Reused))
	r.coordGenerated.Set(float64(s.Generated))
}

// RecordQuery records one search query's latency in seconds.
func (r *Registry) RecordQuery(seconds float64) {
	r.queryTotal.Inc()
	r.queryLatency.Observe(seconds)
}

// Handler returns the HTTP handler to mount at the --metrics-addr
// endpoint, matching the pack's promhttp.Handler() usage.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
