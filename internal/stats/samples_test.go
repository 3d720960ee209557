package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleSetStatistics(t *testing.T) {
	ss := NewSampleSet()
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		ss.Add(v)
	}

	assert.Equal(t, 8, ss.Count())
	assert.Equal(t, 2.0, ss.Min())
	assert.Equal(t, 9.0, ss.Max())
	assert.Equal(t, 40.0, ss.Sum())
	assert.Equal(t, 5.0, ss.Mean())
	assert.Equal(t, 4.5, ss.Median())
	assert.InDelta(t, 32.0/7.0, ss.Variance(), 1e-9)
	assert.InDelta(t, math.Sqrt(32.0/7.0), ss.StdDev(), 1e-9)
	assert.Equal(t, ss.Sum()/float64(ss.Count()), ss.Mean())
}

func TestSampleSetMedianOddCount(t *testing.T) {
	ss := NewSampleSet()
	ss.AddAll(9, 1, 5)
	assert.Equal(t, 5.0, ss.Median())
}

func TestSampleSetEmptySentinels(t *testing.T) {
	ss := NewSampleSet()
	assertEmpty(t, ss)

	ss.AddAll(1, 2, 3)
	require.Equal(t, 3, ss.Count())
	ss.Clear()
	assertEmpty(t, ss)
	assert.Empty(t, ss.Values())
}

func assertEmpty(t *testing.T, ss *SampleSet) {
	t.Helper()
	assert.Equal(t, 0, ss.Count())
	assert.Equal(t, 0.0, ss.Sum())
	for name, stat := range map[string]func() float64{
		"min":      ss.Min,
		"max":      ss.Max,
		"mean":     ss.Mean,
		"median":   ss.Median,
		"stddev":   ss.StdDev,
		"variance": ss.Variance,
	} {
		assert.Truef(t, math.IsNaN(stat()), "expected NaN for %s of an empty set", name)
	}
	assert.True(t, math.IsNaN(ss.Percentile(99)))
}

func TestSampleSetSingleSample(t *testing.T) {
	ss := NewSampleSet()
	ss.Add(42)
	assert.Equal(t, 42.0, ss.Median())
	assert.Equal(t, 0.0, ss.StdDev())
	assert.Equal(t, 0.0, ss.Variance())
}

func TestSampleSetMerge(t *testing.T) {
	runs := [][]float64{{1, 2, 3}, {10}, {}, {7, 7}}

	bulk, oneByOne := NewSampleSet(), NewSampleSet()
	for _, run := range runs {
		perRun := NewSampleSet()
		perRun.AddAll(run...)
		bulk.AddAll(perRun.Values()...)
		for _, v := range perRun.Values() {
			oneByOne.Add(v)
		}
	}

	assert.Equal(t, oneByOne.Count(), bulk.Count())
	assert.Equal(t, oneByOne.Sum(), bulk.Sum())
	assert.Equal(t, oneByOne.Median(), bulk.Median())
	assert.Equal(t, oneByOne.Variance(), bulk.Variance())
	assert.ElementsMatch(t, oneByOne.Values(), bulk.Values())
}

func TestSampleSetValuesIsACopy(t *testing.T) {
	ss := NewSampleSet()
	ss.AddAll(1, 2)
	vals := ss.Values()
	vals[0] = 100
	assert.Equal(t, 1.0, ss.Min())
}

func TestSampleSetPercentile(t *testing.T) {
	ss := NewSampleSet()
	for i := 1; i <= 100; i++ {
		ss.Add(float64(i))
	}
	assert.Equal(t, 90.0, ss.Percentile(90))
	assert.Equal(t, 100.0, ss.Percentile(100))
}
