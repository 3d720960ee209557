package bench

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flipkart-incubator/kvbench/internal/clock"
	"github.com/flipkart-incubator/kvbench/internal/opts"
	"github.com/flipkart-incubator/kvbench/internal/stats"
	"github.com/flipkart-incubator/kvbench/internal/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Driver runs the configured workload RunTimes times and
// aggregates the samples of every run.
type Driver struct {
	cfg      *opts.Config
	tbl      *storage.Table
	kind     Kind
	workload Workload
	bo       *opts.BenchOpts
	metrics  *stats.BenchMetrics
	gatherer prometheus.Gatherer
}

// DriverOption is used to configure the Driver.
type DriverOption func(*Driver)

// WithWorkload replaces the workload resolved from the configuration.
func WithWorkload(workload Workload) DriverOption {
	return func(d *Driver) {
		if workload != nil {
			d.workload = workload
		}
	}
}

// WithGatherer makes the report carry the storage operation
// metrics read back from the given gatherer.
func WithGatherer(gatherer prometheus.Gatherer) DriverOption {
	return func(d *Driver) {
		d.gatherer = gatherer
	}
}

func NewDriver(cfg *opts.Config, tbl *storage.Table, ds *DataSet, bo *opts.BenchOpts, drvOpts ...DriverOption) *Driver {
	if bo == nil {
		bo = &opts.BenchOpts{}
	}
	bo.Normalize()
	kind, workload := Resolve(cfg.Workload, ds, bo.Logger)
	d := &Driver{
		cfg:      cfg,
		tbl:      tbl,
		kind:     kind,
		workload: workload,
		bo:       bo,
		metrics:  stats.NewBenchMetrics(bo.PrometheusRegistry),
	}
	for _, drvOpt := range drvOpts {
		drvOpt(d)
	}
	return d
}

func (d *Driver) Kind() Kind {
	return d.kind
}

// Run executes the benchmark. Cancelling ctx stops it after the
// current run, the partial report is then marked Interrupted. A
// workload error aborts the benchmark without a report.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	lgr := d.bo.Logger
	execType := strings.ToLower(d.cfg.ExecType)
	report := &Report{
		RunID:         uuid.New(),
		Workload:      d.kind,
		Engine:        d.tbl.Engine(),
		Table:         d.tbl.Name(),
		ExecType:      execType,
		ExecutionTime: stats.NewSampleSet(),
		Units:         stats.NewSampleSet(),
	}
	samples := stats.NewSampleSet()
	label := string(d.kind)

	if d.bo.Meter != nil {
		d.bo.Meter.Start()
		defer d.bo.Meter.Stop()
	}
	lgr.Info("Running workload", zap.String("workload", label), zap.String("run_id", report.RunID.String()))

	for run := 1; run <= d.cfg.RunTimes; run++ {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}
		lgr.Info("Workload execution", zap.Int("run", run))

		start := clock.Now()
		var iterations int64
		var err error
		if d.cfg.IsTimed() {
			iterations, err = d.runTimed(ctx, samples)
		} else {
			err = d.workload.Run(d.tbl, d.cfg, samples)
			iterations = 1
		}
		if err != nil {
			return nil, fmt.Errorf("workload %s failed in run %d: %w", label, run, err)
		}
		elapsed := clock.MillisSince(start)

		lgr.Info("Workload execution time", zap.Int("run", run), zap.Int64("ms", elapsed))
		report.ExecutionTime.Add(float64(elapsed))
		report.Runs++
		d.metrics.RunLatency.WithLabelValues(label).Observe(clock.MillisToSeconds(float64(elapsed)))
		d.metrics.Iterations.WithLabelValues(label).Add(float64(iterations))
		d.metrics.Runs.WithLabelValues(label, execType).Inc()

		if samples.Count() > 0 {
			if elapsed > 0 {
				lgr.Info("Units per second", zap.Int("run", run),
					zap.Float64("rate", samples.Sum()/clock.MillisToSeconds(float64(elapsed))))
			}
			d.metrics.Samples.WithLabelValues(label).Add(samples.Sum())
			report.Units.AddAll(samples.Values()...)
			samples.Clear()
		}
	}
	if ctx.Err() != nil {
		report.Interrupted = true
		lgr.Warn("Benchmark interrupted, reporting partial results", zap.Int("runs", report.Runs))
	}

	if d.gatherer != nil {
		storeMetrics, err := stats.GetStoreMetrics(d.gatherer)
		if err != nil {
			lgr.Warn("Unable to gather storage metrics", zap.Error(err))
		}
		report.Store = storeMetrics
	}
	if rate, ok := report.UnitsPerSecond(); ok {
		lgr.Info("Average units per second", zap.Float64("rate", rate))
	}
	return report, nil
}

func (d *Driver) runTimed(ctx context.Context, samples *stats.SampleSet) (int64, error) {
	lgr := d.bo.Logger
	runner := NewTimedRunner(d.workload, d.tbl, d.cfg, samples)
	if err := runner.Start(); err != nil {
		return 0, err
	}

	timer := time.NewTimer(d.cfg.ExecutionDuration())
	defer timer.Stop()
	select {
	case <-timer.C:
		lgr.Info("Minimum execution time exceeded, requesting clean termination")
	case <-ctx.Done():
		lgr.Warn("Execution period interrupted, requesting termination", zap.Error(ctx.Err()))
	case <-runner.Done():
	}

	runner.RequestFinish()
	err := runner.Wait()
	lgr.Info("Workload has been terminated", zap.Int64("iterations", runner.Iterations()))
	return runner.Iterations(), err
}
