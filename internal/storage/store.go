package storage

import (
	"errors"
	"fmt"
	"io"

	"github.com/flipkart-incubator/kvbench/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
)

// KVPair is a single row as stored by an engine.
type KVPair struct {
	Key   []byte
	Value []byte
}

// A KVStore represents the key value store that provides
// the underlying storage implementation benchmarked by kvbench.
type KVStore interface {
	io.Closer
	// Put writes all the given pairs in one round trip.
	Put(pairs ...*KVPair) error
	// Get returns the pairs for the keys that exist, missing
	// keys are omitted from the result.
	Get(keys ...[]byte) ([]*KVPair, error)
	Iterate(IterationOptions) Iterator
	// Sync makes previous writes durable.
	Sync() error
	// Truncate removes every key from the store.
	Truncate() error
}

var (
	// ErrIO marks failures of the underlying engine, its
	// transport or its server.
	ErrIO = errors.New("storage I/O failure")
	// ErrClosed is returned by operations on a closed table.
	ErrClosed = errors.New("table is closed")
)

// OpError describes a failed engine operation. It matches
// ErrIO through errors.Is.
type OpError struct {
	Op     string
	Engine string
	Err    error
}

func (oe *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", oe.Engine, oe.Op, oe.Err)
}

func (oe *OpError) Unwrap() error {
	return oe.Err
}

func (oe *OpError) Is(target error) bool {
	return target == ErrIO
}

func wrapErr(engine, op string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	return &OpError{Op: op, Engine: engine, Err: err}
}

// Stat holds the prometheus collectors for storage operations.
type Stat struct {
	RequestLatency *prometheus.SummaryVec
	ResponseError  *prometheus.CounterVec
}

// NewStat creates the storage collectors for the given engine
// and registers them with the registry.
func NewStat(registry prometheus.Registerer, engine string) *Stat {
	if registry == nil {
		registry = stats.NewPrometheusNoopRegistry()
	}
	return &Stat{
		RequestLatency: stats.RegisterOrReuse(registry, stats.NewStoreLatency(engine)).(*prometheus.SummaryVec),
		ResponseError:  stats.RegisterOrReuse(registry, stats.NewStoreErrors(engine)).(*prometheus.CounterVec),
	}
}
