package stats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/contentmill/contentmill/internal/stats"
)

func TestTStatistic_ClearDifference(t *testing.T) {
	// Two tight distributions far apart should produce a large |t|
	tStat := stats.TStatistic(100, 0.9, 0.05, 100, 0.5, 0.05)
	assert.Less(t, tStat, -2.576)
}

func TestTStatistic_EqualMeans(t *testing.T) {
	tStat := stats.TStatistic(100, 0.7, 0.1, 100, 0.7, 0.1)
	assert.Zero(t, tStat)
}

func TestTStatistic_Direction(t *testing.T) {
	// t is mean2-mean1 over the pooled error: positive when B leads
	tStat := stats.TStatistic(50, 0.5, 0.1, 50, 0.6, 0.1)
	assert.Greater(t, tStat, 0.0)
}

func TestTStatistic_DegenerateInputs(t *testing.T) {
	assert.Zero(t, stats.TStatistic(0, 0.5, 0.1, 100, 0.9, 0.1))
	assert.Zero(t, stats.TStatistic(100, 0.5, 0.1, 0, 0.9, 0.1))
	// Zero spread on both sides: no pooled error to divide by
	assert.Zero(t, stats.TStatistic(100, 0.5, 0, 100, 0.9, 0))
}

func TestPValueBucket_Thresholds(t *testing.T) {
	cases := []struct {
		t    float64
		want float64
	}{
		{0, 0.20},
		{1.5, 0.20},
		{1.7, 0.10},
		{2.0, 0.05},
		{3.0, 0.01},
		{-3.0, 0.01}, // sign must not matter
		{1.96, 0.10}, // boundary is exclusive
		{2.576, 0.05},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, stats.PValueBucket(tc.t), "t=%f", tc.t)
	}
}

func TestPValueBucket_Monotone(t *testing.T) {
	// Larger |t| never maps to a larger p
	prev := 1.0
	for _, tVal := range []float64{0, 1, 1.7, 2.0, 2.6, 10} {
		p := stats.PValueBucket(tVal)
		assert.LessOrEqual(t, p, prev, "p must not increase at t=%f", tVal)
		prev = p
	}
}

func TestWilsonInterval_Bounds(t *testing.T) {
	lower, upper := stats.WilsonInterval(30, 100, 0.95)

	assert.Greater(t, lower, 0.0)
	assert.Less(t, upper, 1.0)
	assert.Less(t, lower, 0.3)
	assert.Greater(t, upper, 0.3)
}

func TestWilsonInterval_NoTrials(t *testing.T) {
	lower, upper := stats.WilsonInterval(0, 0, 0.95)
	assert.Zero(t, lower)
	assert.Zero(t, upper)
}

func TestWilsonInterval_NarrowsWithSamples(t *testing.T) {
	smallLower, smallUpper := stats.WilsonInterval(5, 10, 0.95)
	bigLower, bigUpper := stats.WilsonInterval(500, 1000, 0.95)

	assert.Less(t, bigUpper-bigLower, smallUpper-smallLower)
}
