package bench

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/flipkart-incubator/kvbench/internal/opts"
	"github.com/flipkart-incubator/kvbench/internal/stats"
	"github.com/flipkart-incubator/kvbench/internal/storage"
)

// RunnerState is the lifecycle state of a TimedRunner.
type RunnerState int32

const (
	Idle RunnerState = iota
	Running
	FinishRequested
	Stopped
)

func (rs RunnerState) String() string {
	switch rs {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case FinishRequested:
		return "finish-requested"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("RunnerState(%d)", int32(rs))
	}
}

// ErrRunnerStarted is returned when starting a runner twice.
var ErrRunnerStarted = errors.New("runner already started")

// TimedRunner invokes a workload in a loop on its own goroutine
// until a finish is requested. The finish request is observed
// only between invocations, an in-flight invocation always
// completes.
//
// While running, the worker goroutine owns the table and the
// sample set. Callers must not touch either before Done is closed.
type TimedRunner struct {
	workload Workload
	tbl      *storage.Table
	cfg      *opts.Config
	samples  *stats.SampleSet

	state      atomic.Int32
	finish     atomic.Bool
	iterations atomic.Int64
	done       chan struct{}
	err        error
}

func NewTimedRunner(workload Workload, tbl *storage.Table, cfg *opts.Config, samples *stats.SampleSet) *TimedRunner {
	return &TimedRunner{
		workload: workload,
		tbl:      tbl,
		cfg:      cfg,
		samples:  samples,
		done:     make(chan struct{}),
	}
}

// Start spawns the worker goroutine.
func (tr *TimedRunner) Start() error {
	if !tr.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return ErrRunnerStarted
	}
	go tr.loop()
	return nil
}

func (tr *TimedRunner) loop() {
	defer func() {
		if r := recover(); r != nil {
			tr.err = fmt.Errorf("workload panicked: %v", r)
		}
		tr.state.Store(int32(Stopped))
		close(tr.done)
	}()
	for !tr.finish.Load() {
		if err := tr.workload.Run(tr.tbl, tr.cfg, tr.samples); err != nil {
			tr.err = err
			return
		}
		tr.iterations.Add(1)
	}
}

// RequestFinish asks the worker to stop after the current
// invocation. It is safe to call more than once.
func (tr *TimedRunner) RequestFinish() {
	tr.finish.Store(true)
	tr.state.CompareAndSwap(int32(Running), int32(FinishRequested))
}

// Done is closed once the worker has stopped.
func (tr *TimedRunner) Done() <-chan struct{} {
	return tr.done
}

// Wait blocks until the worker has stopped and returns the error
// that ended the loop, if any.
func (tr *TimedRunner) Wait() error {
	<-tr.done
	return tr.err
}

func (tr *TimedRunner) State() RunnerState {
	return RunnerState(tr.state.Load())
}

// Iterations returns the number of completed invocations.
func (tr *TimedRunner) Iterations() int64 {
	return tr.iterations.Load()
}
