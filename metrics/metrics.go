// Package metrics exposes Prometheus counters/gauges/histograms for the
// error taxonomy, the per-worker sync gate, and sync/chunk throughput,
// served over a minimal fasthttp listener.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/clusterd/clusterd/cmn"
)

// Metrics bundles every series the daemon exports.
type Metrics struct {
	Errors          *prometheus.CounterVec
	SyncFree        *prometheus.GaugeVec
	SyncCycleLength *prometheus.HistogramVec
	// ChunkBytes is registered and exported, but nothing in this module
	// increments it, so it stays at zero.
	ChunkBytes *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Errors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "clusterd",
			Name:      "errors_total",
			Help:      "Count of errors returned, by stable error code.",
		}, []string{"code"}),
		SyncFree: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "clusterd",
			Name:      "sync_free",
			Help:      "Whether a worker's *_free permission flag is currently set, by category.",
		}, []string{"worker", "category"}),
		SyncCycleLength: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clusterd",
			Name:      "sync_cycle_seconds",
			Help:      "Duration of one sync cycle, by category.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"category"}),
		ChunkBytes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "clusterd",
			Name:      "chunk_bytes_total",
			Help:      "Bytes streamed through the chunked-transfer sub-protocol, by direction.",
		}, []string{"direction"}),
	}
	return m
}

// ObserveError increments the per-code counter; call from anywhere an
// *cmn.Error surfaces to a terminal point (a logged cycle failure, a
// dispatcher reply, an apply failure).
func (m *Metrics) ObserveError(err error) {
	code, ok := cmn.CodeOf(err)
	if !ok {
		return
	}
	m.Errors.WithLabelValues(code.String()).Inc()
}
