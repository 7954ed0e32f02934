package util

import "github.com/prometheus/client_golang/prometheus"

// Histogram buckets in seconds, doubling from the first bound.
var (
	// MetricsBucketsMicroSeconds spans 128µs to 262ms: single store reads.
	MetricsBucketsMicroSeconds = prometheus.ExponentialBuckets(128e-6, 2, 12)

	// MetricsBucketsMilliSeconds spans 1ms to 2s: validation stages.
	MetricsBucketsMilliSeconds = prometheus.ExponentialBuckets(1e-3, 2, 12)

	// MetricsBucketsMilliLongSeconds spans 64ms to 131s: whole block writes.
	MetricsBucketsMilliLongSeconds = prometheus.ExponentialBuckets(64e-3, 2, 12)
)
