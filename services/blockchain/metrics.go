// Package blockchain is the chain store service. Writes run one at a time on
// the dispatcher writer queue inside a write bracket that bumps a sequence
// counter; reads run on the reader pool and retry until they observe no
// overlapping write.
package blockchain

import (
	"sync"

	"github.com/bitcoin-sv/chaincore/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusBlockchainWrite       *prometheus.HistogramVec
	prometheusBlockchainRead        *prometheus.HistogramVec
	prometheusBlockchainReadRetries *prometheus.CounterVec
	prometheusBlockchainHeight      prometheus.Gauge
	prometheusBlockchainReorgs      prometheus.Counter
	prometheusOrphanPoolSize        prometheus.Gauge
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusBlockchainWrite = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chaincore",
			Subsystem: "blockchain",
			Name:      "write",
			Help:      "Histogram of write brackets",
			Buckets:   util.MetricsBucketsMilliLongSeconds,
		},
		[]string{"operation"},
	)

	prometheusBlockchainRead = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chaincore",
			Subsystem: "blockchain",
			Name:      "read",
			Help:      "Histogram of reads including retries",
			Buckets:   util.MetricsBucketsMicroSeconds,
		},
		[]string{"operation"},
	)

	prometheusBlockchainReadRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chaincore",
			Subsystem: "blockchain",
			Name:      "read_retries",
			Help:      "Number of reads retried because of a concurrent write",
		},
		[]string{"operation"},
	)

	prometheusBlockchainHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chaincore",
			Subsystem: "blockchain",
			Name:      "height",
			Help:      "Height of the confirmed chain tip",
		},
	)

	prometheusBlockchainReorgs = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chaincore",
			Subsystem: "blockchain",
			Name:      "reorganizations",
			Help:      "Number of reorganizations that displaced confirmed blocks",
		},
	)

	prometheusOrphanPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chaincore",
			Subsystem: "blockchain",
			Name:      "orphan_pool_size",
			Help:      "Number of blocks held in the orphan pool",
		},
	)
}
