package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsBuckets(t *testing.T) {
	assert.Len(t, MetricsBucketsMilliSeconds, 12)
	assert.InDelta(t, 2.048, MetricsBucketsMilliSeconds[11], 1e-9)
	assert.InDelta(t, 0.262144, MetricsBucketsMicroSeconds[11], 1e-9)
	assert.InDelta(t, 131.072, MetricsBucketsMilliLongSeconds[11], 1e-9)
}
