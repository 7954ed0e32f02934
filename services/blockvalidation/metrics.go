// Package blockvalidation decides whether a block is consensus valid in three
// stages:
//
// - Check runs the context free rules
// - Accept runs the contextual rules against the chain state and counts sigops
// - Connect verifies every non-coinbase input script
//
// Accept and Connect spread their work over the dispatcher reader pool in
// buckets and join the results with util.Synchronize.
package blockvalidation

import (
	"sync"

	"github.com/bitcoin-sv/chaincore/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusBlockValidationCheck    prometheus.Histogram
	prometheusBlockValidationPopulate prometheus.Histogram
	prometheusBlockValidationAccept   prometheus.Histogram
	prometheusBlockValidationConnect  prometheus.Histogram

	prometheusBlockValidationSigops          prometheus.Histogram
	prometheusBlockValidationCacheEfficiency prometheus.Gauge
	prometheusBlockValidationInvalid         *prometheus.CounterVec
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusBlockValidationCheck = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chaincore",
			Subsystem: "blockvalidation",
			Name:      "check",
			Help:      "Histogram of the context free check stage",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)

	prometheusBlockValidationPopulate = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chaincore",
			Subsystem: "blockvalidation",
			Name:      "populate",
			Help:      "Histogram of previous output population",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)

	prometheusBlockValidationAccept = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chaincore",
			Subsystem: "blockvalidation",
			Name:      "accept",
			Help:      "Histogram of the contextual accept stage",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)

	prometheusBlockValidationConnect = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chaincore",
			Subsystem: "blockvalidation",
			Name:      "connect",
			Help:      "Histogram of the script verification stage",
			Buckets:   util.MetricsBucketsMilliLongSeconds,
		},
	)

	prometheusBlockValidationSigops = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chaincore",
			Subsystem: "blockvalidation",
			Name:      "sigops",
			Help:      "Signature operations counted per accepted block",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	prometheusBlockValidationCacheEfficiency = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chaincore",
			Subsystem: "blockvalidation",
			Name:      "cache_efficiency",
			Help:      "Share of transactions of the last connected block that were already validated",
		},
	)

	prometheusBlockValidationInvalid = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chaincore",
			Subsystem: "blockvalidation",
			Name:      "invalid",
			Help:      "Number of blocks rejected per stage",
		},
		[]string{"stage"},
	)
}
