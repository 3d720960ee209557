package stats

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "kvbench"
	Put       = "put"
	MultiPut  = "mput"
	Get       = "get"
	MultiGet  = "mget"
	Iterate   = "iter"
	Flush     = "flush"
	Sync      = "sync"
	Truncate  = "truncate"
)

// ConstLabels are attached to every collector registered by kvbench.
var ConstLabels = prometheus.Labels{"tool": "kvbench"}

var defaultObjectives = map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}

func MeasureLatency(observer prometheus.Observer, startTime time.Time) {
	observer.Observe(time.Since(startTime).Seconds())
}

type noopRegistry struct{}

func (noopRegistry) Register(prometheus.Collector) error  { return nil }
func (noopRegistry) MustRegister(...prometheus.Collector) {}
func (noopRegistry) Unregister(prometheus.Collector) bool { return true }

// NewPrometheusNoopRegistry returns a Registerer that accepts
// every collector and exports nothing.
func NewPrometheusNoopRegistry() prometheus.Registerer {
	return noopRegistry{}
}

// RegisterOrReuse registers the given collector. When an equal
// collector is already registered, that one is returned instead
// so that repeated setups within one process share their series.
func RegisterOrReuse(registry prometheus.Registerer, coll prometheus.Collector) prometheus.Collector {
	if err := registry.Register(coll); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		panic(err)
	}
	return coll
}

// BenchMetrics groups the prometheus collectors updated
// by the benchmark driver, labelled by workload name.
type BenchMetrics struct {
	RunLatency *prometheus.SummaryVec
	Samples    *prometheus.CounterVec
	Iterations *prometheus.CounterVec
	Runs       *prometheus.CounterVec
}

// NewBenchMetrics creates and registers the driver collectors
// with the given registry. A nil registry disables export.
func NewBenchMetrics(registry prometheus.Registerer) *BenchMetrics {
	if registry == nil {
		registry = NewPrometheusNoopRegistry()
	}
	runLatency := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace:   Namespace,
		Name:        "run_latency",
		Help:        "Wall clock duration of a single benchmark repetition in seconds",
		Objectives:  defaultObjectives,
		ConstLabels: ConstLabels,
	}, []string{"workload"})
	samples := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "samples_total",
		Help:        "Sum of the units recorded by workloads",
		ConstLabels: ConstLabels,
	}, []string{"workload"})
	iterations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "iterations_total",
		Help:        "Number of completed workload invocations",
		ConstLabels: ConstLabels,
	}, []string{"workload"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "runs_total",
		Help:        "Number of completed benchmark repetitions",
		ConstLabels: ConstLabels,
	}, []string{"workload", "mode"})
	return &BenchMetrics{
		RunLatency: RegisterOrReuse(registry, runLatency).(*prometheus.SummaryVec),
		Samples:    RegisterOrReuse(registry, samples).(*prometheus.CounterVec),
		Iterations: RegisterOrReuse(registry, iterations).(*prometheus.CounterVec),
		Runs:       RegisterOrReuse(registry, runs).(*prometheus.CounterVec),
	}
}

// NewStoreLatency creates the per operation latency summary
// for a storage engine.
func NewStoreLatency(engine string) *prometheus.SummaryVec {
	return prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace:   Namespace,
		Name:        "storage_latency",
		Help:        "Latency of storage operations in seconds",
		Objectives:  defaultObjectives,
		ConstLabels: prometheus.Labels{"engine": engine},
	}, []string{"ops"})
}

// NewStoreErrors creates the per operation error counter
// for a storage engine.
func NewStoreErrors(engine string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "storage_error",
		Help:        "Number of failed storage operations",
		ConstLabels: prometheus.Labels{"engine": engine},
	}, []string{"ops"})
}

// GetStoreMetrics reads the storage collectors back from the
// given gatherer. A gathering error still returns whatever
// families could be collected.
func GetStoreMetrics(gatherer prometheus.Gatherer) (*StoreMetrics, error) {
	storeMetrics := NewStoreMetrics()
	mfs, err := gatherer.Gather()
	for _, mf := range mfs {
		switch mf.GetName() {
		case Namespace + "_storage_latency":
			for _, m := range mf.GetMetric() {
				op := labelValue(m.GetLabel(), "ops")
				storeMetrics.Latency[op] = NewPercentile(m.GetSummary().GetQuantile())
				storeMetrics.OpsCount[op] = m.GetSummary().GetSampleCount()
			}
		case Namespace + "_storage_error":
			for _, m := range mf.GetMetric() {
				op := labelValue(m.GetLabel(), "ops")
				storeMetrics.ErrorCount[op] = m.GetCounter().GetValue()
			}
		}
	}
	return storeMetrics, err
}
