package stats

import (
	"math"

	mstats "github.com/montanaflynn/stats"
)

// SampleSet collects numeric samples and derives descriptive
// statistics from them. The statistics are always computed from
// the current samples, nothing is cached between calls.
//
// On an empty set Count and Sum return 0 and every other statistic
// returns NaN.
//
// Median is the 50th percentile: the central sample for an odd
// count, the mean of the two central samples for an even count.
// StdDev and Variance are the bias corrected (n-1) sample forms
// and are 0 for a single sample.
//
// A SampleSet is not safe for concurrent use.
type SampleSet struct {
	values mstats.Float64Data
}

// NewSampleSet creates an empty SampleSet.
func NewSampleSet() *SampleSet {
	return &SampleSet{}
}

// Add appends one sample.
func (ss *SampleSet) Add(value float64) {
	ss.values = append(ss.values, value)
}

// AddAll appends every given sample, typically the Values of
// another set.
func (ss *SampleSet) AddAll(values ...float64) {
	ss.values = append(ss.values, values...)
}

// Clear discards all samples.
func (ss *SampleSet) Clear() {
	ss.values = ss.values[:0]
}

// Values returns a copy of the raw samples in insertion order.
func (ss *SampleSet) Values() []float64 {
	res := make([]float64, len(ss.values))
	copy(res, ss.values)
	return res
}

func (ss *SampleSet) Count() int {
	return ss.values.Len()
}

func (ss *SampleSet) Sum() float64 {
	if ss.Count() == 0 {
		return 0
	}
	sum, _ := ss.values.Sum()
	return sum
}

func (ss *SampleSet) Min() float64 {
	return ss.eval(mstats.Float64Data.Min)
}

func (ss *SampleSet) Max() float64 {
	return ss.eval(mstats.Float64Data.Max)
}

func (ss *SampleSet) Mean() float64 {
	return ss.eval(mstats.Float64Data.Mean)
}

func (ss *SampleSet) Median() float64 {
	return ss.eval(mstats.Float64Data.Median)
}

func (ss *SampleSet) Variance() float64 {
	switch ss.Count() {
	case 0:
		return math.NaN()
	case 1:
		return 0
	}
	return ss.eval(mstats.Float64Data.SampleVariance)
}

func (ss *SampleSet) StdDev() float64 {
	switch ss.Count() {
	case 0:
		return math.NaN()
	case 1:
		return 0
	}
	return ss.eval(mstats.Float64Data.StandardDeviationSample)
}

// Percentile returns the nearest rank percentile for p in (0, 100].
func (ss *SampleSet) Percentile(p float64) float64 {
	return ss.eval(func(data mstats.Float64Data) (float64, error) {
		return data.PercentileNearestRank(p)
	})
}

func (ss *SampleSet) eval(fn func(mstats.Float64Data) (float64, error)) float64 {
	if ss.Count() == 0 {
		return math.NaN()
	}
	res, err := fn(ss.values)
	if err != nil {
		return math.NaN()
	}
	return res
}
