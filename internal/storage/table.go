package storage

import (
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/flipkart-incubator/kvbench/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// DefaultWriteBufferSize is the number of buffered bytes after
// which a table without auto flush pushes its writes.
const DefaultWriteBufferSize = 2 << 20

const minCacheCounters = 1000

// Table is the handle benchmarks use to access a store. Writes
// are buffered when auto flush is off. Every operation is timed
// and engine failures are reported as *OpError.
//
// A Table is not safe for concurrent use.
type Table struct {
	name  string
	kvs   KVStore
	opts  *tableOpts
	stat  *Stat
	cache *ristretto.Cache

	autoFlush bool
	buf       []*KVPair
	bufKeys   map[string]struct{}
	bufBytes  int
	written   int64
	closed    bool
}

type tableOpts struct {
	engine        string
	lgr           *zap.Logger
	statsCli      stats.Client
	promRegistry  prometheus.Registerer
	meter         *stats.Meter
	autoFlush     bool
	writeBufSize  int
	readCacheSize int64
}

// TableOption is used to configure a Table.
type TableOption func(*tableOpts)

// WithLogger is used to inject a ZAP logger instance.
func WithLogger(lgr *zap.Logger) TableOption {
	return func(opts *tableOpts) {
		if lgr != nil {
			opts.lgr = lgr
		} else {
			opts.lgr = zap.NewNop()
		}
	}
}

// WithStats is used to inject a metrics client.
func WithStats(statsCli stats.Client) TableOption {
	return func(opts *tableOpts) {
		if statsCli != nil {
			opts.statsCli = statsCli
		} else {
			opts.statsCli = stats.NewNoOpClient()
		}
	}
}

// WithPromStats is used to inject a prometheus registry.
func WithPromStats(registry prometheus.Registerer) TableOption {
	return func(opts *tableOpts) {
		if registry != nil {
			opts.promRegistry = registry
		} else {
			opts.promRegistry = stats.NewPrometheusNoopRegistry()
		}
	}
}

// WithMeter marks every row written or read on the given meter.
func WithMeter(meter *stats.Meter) TableOption {
	return func(opts *tableOpts) {
		opts.meter = meter
	}
}

// WithEngineName names the engine in metrics and errors.
func WithEngineName(engine string) TableOption {
	return func(opts *tableOpts) {
		opts.engine = engine
	}
}

// WithAutoFlush sets whether every Put reaches the store
// immediately.
func WithAutoFlush(autoFlush bool) TableOption {
	return func(opts *tableOpts) {
		opts.autoFlush = autoFlush
	}
}

// WithWriteBufferSize sets the buffered bytes limit. Non positive
// sizes disable the limit, writes then wait for Flush.
func WithWriteBufferSize(size int) TableOption {
	return func(opts *tableOpts) {
		opts.writeBufSize = size
	}
}

// WithReadCache enables a read cache bounded by the given
// number of value bytes.
func WithReadCache(maxBytes int64) TableOption {
	return func(opts *tableOpts) {
		opts.readCacheSize = maxBytes
	}
}

// OpenTable wraps the given store. The table owns the store
// from here on and closes it on Close.
func OpenTable(name string, kvs KVStore, tblOpts ...TableOption) (*Table, error) {
	opts := &tableOpts{
		engine:       "kvstore",
		lgr:          zap.NewNop(),
		statsCli:     stats.NewNoOpClient(),
		promRegistry: stats.NewPrometheusNoopRegistry(),
		autoFlush:    true,
		writeBufSize: DefaultWriteBufferSize,
	}
	for _, tblOpt := range tblOpts {
		tblOpt(opts)
	}

	tbl := &Table{
		name:      name,
		kvs:       kvs,
		opts:      opts,
		stat:      NewStat(opts.promRegistry, opts.engine),
		autoFlush: opts.autoFlush,
		bufKeys:   make(map[string]struct{}),
	}
	if opts.readCacheSize > 0 {
		numCounters := 10 * (opts.readCacheSize >> 6)
		if numCounters < minCacheCounters {
			numCounters = minCacheCounters
		}
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: numCounters,
			MaxCost:     opts.readCacheSize,
			BufferItems: 64,
		})
		if err != nil {
			return nil, err
		}
		tbl.cache = cache
	}
	return tbl, nil
}

func (tbl *Table) Name() string {
	return tbl.name
}

func (tbl *Table) Engine() string {
	return tbl.opts.engine
}

func (tbl *Table) IsAutoFlush() bool {
	return tbl.autoFlush
}

// SetAutoFlush switches buffering. Turning auto flush on pushes
// the pending writes.
func (tbl *Table) SetAutoFlush(autoFlush bool) error {
	tbl.autoFlush = autoFlush
	if autoFlush {
		return tbl.Flush()
	}
	return nil
}

// Put writes the given rows, or buffers them when auto flush is off.
func (tbl *Table) Put(rows ...*KVPair) error {
	if tbl.closed {
		return ErrClosed
	}
	for _, row := range rows {
		tbl.invalidate(row.Key)
	}
	if tbl.autoFlush {
		return tbl.write(rows)
	}

	tbl.buf = append(tbl.buf, rows...)
	for _, row := range rows {
		tbl.bufKeys[string(row.Key)] = struct{}{}
		tbl.bufBytes += len(row.Key) + len(row.Value)
	}
	if tbl.opts.writeBufSize > 0 && tbl.bufBytes >= tbl.opts.writeBufSize {
		return tbl.Flush()
	}
	return nil
}

// Flush pushes all buffered writes to the store. The buffer is
// emptied either way, rows of a failed push are discarded.
func (tbl *Table) Flush() error {
	if tbl.closed {
		return ErrClosed
	}
	if len(tbl.buf) == 0 {
		return nil
	}
	defer tbl.opts.statsCli.Timing("table.flush.latency.ms", time.Now())
	defer stats.MeasureLatency(tbl.stat.RequestLatency.WithLabelValues(stats.Flush), time.Now())

	rows := tbl.buf
	tbl.resetBuffer()
	return tbl.write(rows)
}

// Pending returns the number of buffered rows.
func (tbl *Table) Pending() int {
	return len(tbl.buf)
}

// Written returns the number of rows the store acknowledged
// since the table was opened.
func (tbl *Table) Written() int64 {
	return tbl.written
}

func (tbl *Table) resetBuffer() {
	tbl.buf, tbl.bufBytes = nil, 0
	if len(tbl.bufKeys) > 0 {
		tbl.bufKeys = make(map[string]struct{})
	}
}

func (tbl *Table) write(rows []*KVPair) error {
	if len(rows) == 0 {
		return nil
	}
	metricsPrefix, metricsLabel := "table.put.multi", stats.MultiPut
	if len(rows) == 1 {
		metricsPrefix, metricsLabel = "table.put.single", stats.Put
	}
	defer tbl.opts.statsCli.Timing(metricsPrefix+".latency.ms", time.Now())
	defer stats.MeasureLatency(tbl.stat.RequestLatency.WithLabelValues(metricsLabel), time.Now())

	err := tbl.kvs.Put(rows...)
	for _, row := range rows {
		tbl.invalidate(row.Key)
	}
	if err != nil {
		tbl.opts.statsCli.Incr(metricsPrefix+".errors", 1)
		tbl.stat.ResponseError.WithLabelValues(metricsLabel).Inc()
		return wrapErr(tbl.opts.engine, metricsLabel, err)
	}
	tbl.written += int64(len(rows))
	tbl.opts.meter.Mark(int64(len(rows)))
	return nil
}

// Get returns the row for the given key, nil when it does not exist.
func (tbl *Table) Get(key []byte) (*KVPair, error) {
	if tbl.closed {
		return nil, ErrClosed
	}
	if tbl.cache != nil {
		if val, found := tbl.cache.Get(string(key)); found {
			tbl.opts.statsCli.Incr("table.cache.hits", 1)
			tbl.opts.meter.Mark(1)
			return &KVPair{Key: key, Value: val.([]byte)}, nil
		}
	}

	res, err := tbl.MultiGet(key)
	if err != nil || len(res) == 0 {
		return nil, err
	}
	// a buffered key still reads the stored value, which must not be cached
	if _, buffered := tbl.bufKeys[string(key)]; tbl.cache != nil && !buffered {
		tbl.cache.Set(string(key), res[0].Value, int64(len(res[0].Value)))
	}
	return res[0], nil
}

// MultiGet returns the rows that exist for the given keys.
func (tbl *Table) MultiGet(keys ...[]byte) ([]*KVPair, error) {
	if tbl.closed {
		return nil, ErrClosed
	}
	metricsPrefix, metricsLabel := "table.get.multi", stats.MultiGet
	if len(keys) == 1 {
		metricsPrefix, metricsLabel = "table.get.single", stats.Get
	}
	defer tbl.opts.statsCli.Timing(metricsPrefix+".latency.ms", time.Now())
	defer stats.MeasureLatency(tbl.stat.RequestLatency.WithLabelValues(metricsLabel), time.Now())

	res, err := tbl.kvs.Get(keys...)
	if err != nil {
		tbl.opts.statsCli.Incr(metricsPrefix+".errors", 1)
		tbl.stat.ResponseError.WithLabelValues(metricsLabel).Inc()
		return nil, wrapErr(tbl.opts.engine, metricsLabel, err)
	}
	tbl.opts.meter.Mark(int64(len(res)))
	return res, nil
}

// Scan opens an iterator over the store. Buffered writes are not
// visible to it until flushed.
func (tbl *Table) Scan(opts ...IterationOption) (Iterator, error) {
	if tbl.closed {
		return nil, ErrClosed
	}
	itOpts, err := NewIteratorOptions(opts...)
	if err != nil {
		return nil, err
	}
	tbl.opts.statsCli.Incr("table.scan.opened", 1)
	return &tableIter{tbl: tbl, it: tbl.kvs.Iterate(itOpts), start: time.Now()}, nil
}

// Iteration scans the table with the given options, the
// iterator is closed once ForEach returns.
func (tbl *Table) Iteration(opts ...IterationOption) Iteration {
	return &iteration{open: func() (Iterator, error) {
		return tbl.Scan(opts...)
	}}
}

// Sync pushes buffered writes and makes them durable.
func (tbl *Table) Sync() error {
	if err := tbl.Flush(); err != nil {
		return err
	}
	defer tbl.opts.statsCli.Timing("table.sync.latency.ms", time.Now())
	defer stats.MeasureLatency(tbl.stat.RequestLatency.WithLabelValues(stats.Sync), time.Now())
	if err := tbl.kvs.Sync(); err != nil {
		tbl.stat.ResponseError.WithLabelValues(stats.Sync).Inc()
		return wrapErr(tbl.opts.engine, stats.Sync, err)
	}
	return nil
}

// Truncate drops buffered writes and removes every row.
func (tbl *Table) Truncate() error {
	if tbl.closed {
		return ErrClosed
	}
	defer stats.MeasureLatency(tbl.stat.RequestLatency.WithLabelValues(stats.Truncate), time.Now())

	tbl.resetBuffer()
	if tbl.cache != nil {
		tbl.cache.Clear()
	}
	if err := tbl.kvs.Truncate(); err != nil {
		tbl.stat.ResponseError.WithLabelValues(stats.Truncate).Inc()
		return wrapErr(tbl.opts.engine, stats.Truncate, err)
	}
	tbl.opts.lgr.Info("Truncated table", zap.String("table", tbl.name), zap.String("engine", tbl.opts.engine))
	return nil
}

// Close flushes pending writes and closes the underlying store.
func (tbl *Table) Close() error {
	if tbl.closed {
		return nil
	}
	flushErr := tbl.Flush()
	if flushErr != nil {
		tbl.opts.lgr.Error("Unable to flush pending writes on close", zap.String("table", tbl.name), zap.Error(flushErr))
	}
	tbl.closed = true
	if tbl.cache != nil {
		tbl.cache.Close()
	}
	if err := tbl.kvs.Close(); err != nil {
		return wrapErr(tbl.opts.engine, "close", err)
	}
	return flushErr
}

func (tbl *Table) invalidate(key []byte) {
	if tbl.cache != nil {
		tbl.cache.Del(string(key))
	}
}

type tableIter struct {
	tbl   *Table
	it    Iterator
	start time.Time
	rows  int64
}

func (ti *tableIter) HasNext() bool {
	return ti.it.HasNext()
}

func (ti *tableIter) Next() ([]byte, []byte) {
	ti.rows++
	return ti.it.Next()
}

func (ti *tableIter) Err() error {
	if err := ti.it.Err(); err != nil {
		ti.tbl.stat.ResponseError.WithLabelValues(stats.Iterate).Inc()
		return wrapErr(ti.tbl.opts.engine, stats.Iterate, err)
	}
	return nil
}

func (ti *tableIter) Close() error {
	ti.tbl.opts.statsCli.Timing("table.scan.latency.ms", ti.start)
	stats.MeasureLatency(ti.tbl.stat.RequestLatency.WithLabelValues(stats.Iterate), ti.start)
	ti.tbl.opts.meter.Mark(ti.rows)
	return ti.it.Close()
}
