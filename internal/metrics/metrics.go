// Package metrics exposes Prometheus instrumentation for the storage
// plane (two-phase commit outcomes, worker cache hit/miss, replication
// lag). Metrics are nil-safe: every recording function accepts a nil
// receiver and becomes a no-op, so callers can wire metrics unconditionally
// without an enabled/disabled branch at every call site.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registry *prometheus.Registry
	enabled  bool
)

// Enable creates the package's Prometheus registry. Must be called before
// any New*Metrics constructor if metrics are wanted; otherwise every
// constructor returns nil.
func Enable() {
	registry = prometheus.NewRegistry()
	enabled = true
}

// IsEnabled reports whether Enable has been called.
func IsEnabled() bool {
	return enabled
}

// Registry returns the package's registry, or nil if metrics are
// disabled. Callers wire this into an HTTP handler via promhttp.
func Registry() *prometheus.Registry {
	return registry
}

// StorageMetrics instruments the storage node's 2PC dispatch (C2).
type StorageMetrics struct {
	prepares  *prometheus.CounterVec
	commits   prometheus.Counter
	rollbacks prometheus.Counter
	pending   prometheus.Gauge
}

// NewStorageMetrics returns nil when metrics are not enabled.
func NewStorageMetrics() *StorageMetrics {
	if !IsEnabled() {
		return nil
	}
	return &StorageMetrics{
		prepares: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "blockplane_storagenode_prepares_total",
			Help: "Prepare outcomes by result (agree, abort).",
		}, []string{"result"}),
		commits: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "blockplane_storagenode_commits_total",
			Help: "Total committed blocks.",
		}),
		rollbacks: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "blockplane_storagenode_rollbacks_total",
			Help: "Total rolled-back prepares.",
		}),
		pending: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "blockplane_storagenode_pending_blocks",
			Help: "Blocks currently in Prepared state.",
		}),
	}
}

func (m *StorageMetrics) ObservePrepare(agreed bool) {
	if m == nil {
		return
	}
	if agreed {
		m.prepares.WithLabelValues("agree").Inc()
		m.pending.Inc()
	} else {
		m.prepares.WithLabelValues("abort").Inc()
	}
}

func (m *StorageMetrics) ObserveCommit() {
	if m == nil {
		return
	}
	m.commits.Inc()
	m.pending.Dec()
}

func (m *StorageMetrics) ObserveRollback() {
	if m == nil {
		return
	}
	m.rollbacks.Inc()
	m.pending.Dec()
}

// CacheMetrics instruments the worker-side partial-range cache (C5).
type CacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions *prometheus.CounterVec
	bytes     prometheus.Gauge
}

// NewCacheMetrics returns nil when metrics are not enabled.
func NewCacheMetrics() *CacheMetrics {
	if !IsEnabled() {
		return nil
	}
	return &CacheMetrics{
		hits: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "blockplane_worker_cache_hits_total",
			Help: "Total cache lookups satisfied from the worker cache.",
		}),
		misses: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "blockplane_worker_cache_misses_total",
			Help: "Total cache lookups not satisfied from the worker cache.",
		}),
		evictions: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "blockplane_worker_cache_evictions_total",
			Help: "Total file entries evicted, by policy.",
		}, []string{"policy"}),
		bytes: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "blockplane_worker_cache_bytes",
			Help: "Current total bytes held by the worker cache.",
		}),
	}
}

func (m *CacheMetrics) ObserveLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.hits.Inc()
	} else {
		m.misses.Inc()
	}
}

func (m *CacheMetrics) ObserveEviction(policy string) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(policy).Inc()
}

func (m *CacheMetrics) SetBytes(n uint64) {
	if m == nil {
		return
	}
	m.bytes.Set(float64(n))
}

// ReplicationMetrics instruments the worker I/O driver's async replication
// fan-out (C4).
type ReplicationMetrics struct {
	failures prometheus.Counter
	latency  prometheus.Histogram
}

// NewReplicationMetrics returns nil when metrics are not enabled.
func NewReplicationMetrics() *ReplicationMetrics {
	if !IsEnabled() {
		return nil
	}
	return &ReplicationMetrics{
		failures: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "blockplane_worker_replication_failures_total",
			Help: "Total async replicate calls that failed.",
		}),
		latency: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name: "blockplane_worker_replication_latency_seconds",
			Help: "Latency of async replicate calls to secondary replicas.",
		}),
	}
}

func (m *ReplicationMetrics) ObserveLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.latency.Observe(d.Seconds())
}

func (m *ReplicationMetrics) ObserveFailure() {
	if m == nil {
		return
	}
	m.failures.Inc()
}
