package bench

import (
	"errors"
	"strings"

	"github.com/flipkart-incubator/kvbench/internal/opts"
	"github.com/flipkart-incubator/kvbench/internal/stats"
	"github.com/flipkart-incubator/kvbench/internal/storage"
	"go.uber.org/zap"
)

// Kind names a workload.
type Kind string

const (
	BatchWrite         Kind = "batch-write"
	HoneycombWrite     Kind = "honeycomb-write"
	SequentialWrite    Kind = "sequential-write"
	GetRow             Kind = "get-row"
	SequentialRead     Kind = "sequential-read"
	Scan               Kind = "scan"
	RandomScan         Kind = "random-scan"
	HoneycombRangeScan Kind = "honeycomb-range-scan"
	Null               Kind = "null"
)

var kinds = []Kind{BatchWrite, HoneycombWrite, SequentialWrite, GetRow, SequentialRead, Scan, RandomScan, HoneycombRangeScan}

var aliases = map[string]Kind{
	"batchWrite":  BatchWrite,
	"hcWrite":     HoneycombWrite,
	"seqWrite":    SequentialWrite,
	"getRow":      GetRow,
	"seqRead":     SequentialRead,
	"randomScan":  RandomScan,
	"hcRangeScan": HoneycombRangeScan,
}

// Workload performs one complete, independent unit of benchmark
// work against the table and may record samples. Per operation
// failures are logged and leave no sample. A returned error aborts
// the benchmark.
type Workload interface {
	Run(tbl *storage.Table, cfg *opts.Config, samples *stats.SampleSet) error
}

// WorkloadFunc adapts a function to the Workload interface.
type WorkloadFunc func(tbl *storage.Table, cfg *opts.Config, samples *stats.SampleSet) error

func (f WorkloadFunc) Run(tbl *storage.Table, cfg *opts.Config, samples *stats.SampleSet) error {
	return f(tbl, cfg, samples)
}

// Kinds lists the known workloads.
func Kinds() []Kind {
	return append([]Kind(nil), kinds...)
}

// ParseKind resolves a workload name or one of its camelCase
// aliases. Unknown names resolve to Null.
func ParseKind(name string) (Kind, bool) {
	name = strings.TrimSpace(name)
	for _, k := range kinds {
		if string(k) == name {
			return k, true
		}
	}
	if k, ok := aliases[name]; ok {
		return k, true
	}
	return Null, false
}

// Resolve returns the workload registered under the given name,
// falling back to the null workload.
func Resolve(name string, ds *DataSet, lgr *zap.Logger) (Kind, Workload) {
	if lgr == nil {
		lgr = zap.NewNop()
	}
	kind, _ := ParseKind(name)
	lgr = lgr.With(zap.String("workload", string(kind)))
	switch kind {
	case BatchWrite:
		return kind, &batchWrite{ds, lgr}
	case HoneycombWrite:
		return kind, &honeycombWrite{ds, lgr}
	case SequentialWrite:
		return kind, &sequentialWrite{ds, lgr}
	case GetRow:
		return kind, &getRow{ds, lgr}
	case SequentialRead:
		return kind, &sequentialRead{ds, lgr}
	case Scan:
		return kind, &scan{ds, lgr}
	case RandomScan:
		return kind, &randomScan{ds, lgr}
	case HoneycombRangeScan:
		return kind, &honeycombRangeScan{ds, lgr}
	default:
		return Null, &nullWorkload{lgr, name}
	}
}

type nullWorkload struct {
	lgr  *zap.Logger
	name string
}

func (nw *nullWorkload) Run(_ *storage.Table, _ *opts.Config, _ *stats.SampleSet) error {
	nw.lgr.Warn("Unknown workload specified. Nothing to run.", zap.String("name", nw.name))
	return nil
}

// fatal tells whether an operation error must abort the benchmark.
func fatal(err error) bool {
	return errors.Is(err, storage.ErrClosed)
}

// progress logs every batch of processed rows.
func progress(lgr *zap.Logger, msg string, done int64, cfg *opts.Config) {
	if done%cfg.BatchSize() == 0 {
		lgr.Debug(msg, zap.Int64("done", done), zap.Int64("total", cfg.RowCount))
	}
}
