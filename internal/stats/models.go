package stats

import (
	"math"
	"strconv"

	dto "github.com/prometheus/client_model/go"
)

type jFloat64 float64

// This is required because json doesnt allow NaN or Inf values
// Based on https://stackoverflow.com/a/32085427
func (fs jFloat64) MarshalJSON() ([]byte, error) {
	vs := strconv.FormatFloat(float64(fs), 'f', 2, 64)
	return []byte(`"` + vs + `"`), nil
}

func (fs *jFloat64) UnmarshalJSON(b []byte) error {
	if b[0] == '"' {
		b = b[1 : len(b)-1]
	}
	f, err := strconv.ParseFloat(string(b), 64)
	*fs = jFloat64(f)
	return err
}

// MarshalYAML emits plain floats, NaN and Inf use the
// YAML .nan and .inf forms.
func (fs jFloat64) MarshalYAML() (interface{}, error) {
	f := float64(fs)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f, nil
	}
	return math.Round(f*100) / 100, nil
}

// Float64 returns the raw value.
func (fs jFloat64) Float64() float64 {
	return float64(fs)
}

// Summary is the serialisable view over a SampleSet.
type Summary struct {
	Count    int      `json:"count" yaml:"count"`
	Min      jFloat64 `json:"min" yaml:"min"`
	Max      jFloat64 `json:"max" yaml:"max"`
	Sum      jFloat64 `json:"sum" yaml:"sum"`
	Mean     jFloat64 `json:"mean" yaml:"mean"`
	Median   jFloat64 `json:"median" yaml:"median"`
	StdDev   jFloat64 `json:"stddev" yaml:"stddev"`
	Variance jFloat64 `json:"variance" yaml:"variance"`
}

// Summarize captures the current statistics of the given set.
func Summarize(ss *SampleSet) *Summary {
	return &Summary{
		Count:    ss.Count(),
		Min:      jFloat64(ss.Min()),
		Max:      jFloat64(ss.Max()),
		Sum:      jFloat64(ss.Sum()),
		Mean:     jFloat64(ss.Mean()),
		Median:   jFloat64(ss.Median()),
		StdDev:   jFloat64(ss.StdDev()),
		Variance: jFloat64(ss.Variance()),
	}
}

type Percentile struct {
	P50 jFloat64 `json:"p50" yaml:"p50"`
	P90 jFloat64 `json:"p90" yaml:"p90"`
	P99 jFloat64 `json:"p99" yaml:"p99"`
}

func NewPercentile(quantile []*dto.Quantile) *Percentile {
	percentile := &Percentile{}
	for _, q := range quantile {
		switch q.GetQuantile() {
		case 0.5:
			percentile.P50 = jFloat64(q.GetValue())
		case 0.9:
			percentile.P90 = jFloat64(q.GetValue())
		case 0.99:
			percentile.P99 = jFloat64(q.GetValue())
		}
	}
	return percentile
}

// StoreMetrics holds the storage operation latencies and
// counters as gathered from prometheus, keyed by op name.
type StoreMetrics struct {
	Latency    map[string]*Percentile `json:"storage_latency" yaml:"storage_latency"`
	OpsCount   map[string]uint64      `json:"storage_ops_count" yaml:"storage_ops_count"`
	ErrorCount map[string]float64     `json:"storage_ops_error_count" yaml:"storage_ops_error_count"`
}

func NewStoreMetrics() *StoreMetrics {
	return &StoreMetrics{
		Latency:    make(map[string]*Percentile),
		OpsCount:   make(map[string]uint64),
		ErrorCount: make(map[string]float64),
	}
}

// Empty tells whether no storage operation was observed.
func (sm *StoreMetrics) Empty() bool {
	return len(sm.OpsCount) == 0 && len(sm.ErrorCount) == 0
}

func labelValue(pairs []*dto.LabelPair, name string) string {
	for _, lp := range pairs {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
