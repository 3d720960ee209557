package rocksdb

import (
	"fmt"
	"strings"
	"time"

	"github.com/flipkart-incubator/gorocksdb"
	"github.com/flipkart-incubator/kvbench/internal/stats"
	"github.com/flipkart-incubator/kvbench/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gopkg.in/ini.v1"
)

// EngineName identifies this engine in metrics and errors.
const EngineName = "rocksdb"

// number of deletes per write batch while truncating
const truncateBatchSize = 10000

// DB interface represents the capabilities exposed
// by the underlying implmentation based on RocksDB engine.
type DB interface {
	storage.KVStore
}

type rocksDB struct {
	db        *gorocksdb.DB
	opts      *rocksDBOpts
	collector prometheus.Collector
}

type rocksDBOpts struct {
	readOpts       *gorocksdb.ReadOptions
	writeOpts      *gorocksdb.WriteOptions
	blockTableOpts *gorocksdb.BlockBasedTableOptions
	rocksDBOpts    *gorocksdb.Options
	folderName     string
	iniFile        string
	lgr            *zap.Logger
	statsCli       stats.Client
	promRegistry   prometheus.Registerer
}

// DBOption is used to configure the RocksDB
// storage engine.
type DBOption func(*rocksDBOpts)

// WithLogger is used to inject a ZAP logger instance.
func WithLogger(lgr *zap.Logger) DBOption {
	return func(opts *rocksDBOpts) {
		if lgr != nil {
			opts.lgr = lgr
		} else {
			opts.lgr = zap.NewNop()
		}
	}
}

// WithPromStats is used to inject a prometheus stats instance
func WithPromStats(registry prometheus.Registerer) DBOption {
	return func(opts *rocksDBOpts) {
		if registry != nil {
			opts.promRegistry = registry
		} else {
			opts.promRegistry = stats.NewPrometheusNoopRegistry()
		}
	}
}

// WithStats is used to inject a metrics client.
func WithStats(statsCli stats.Client) DBOption {
	return func(opts *rocksDBOpts) {
		if statsCli != nil {
			opts.statsCli = statsCli
		} else {
			opts.statsCli = stats.NewNoOpClient()
		}
	}
}

// WithSyncWrites ensures all writes to RocksDB are
// immediatey flushed to disk from OS buffers.
func WithSyncWrites() DBOption {
	return func(opts *rocksDBOpts) {
		opts.writeOpts.SetSync(true)
		opts.writeOpts.DisableWAL(false)
	}
}

// WithoutWAL skips the write ahead log for every write.
// Unflushed writes are lost on a crash.
func WithoutWAL() DBOption {
	return func(opts *rocksDBOpts) {
		opts.writeOpts.SetSync(false)
		opts.writeOpts.DisableWAL(true)
	}
}

// WithCacheSize is used to set the block cache size.
func WithCacheSize(size uint64) DBOption {
	return func(opts *rocksDBOpts) {
		if size > 0 {
			opts.blockTableOpts.SetBlockCache(gorocksdb.NewLRUCache(size))
		} else {
			opts.blockTableOpts.SetNoBlockCache(true)
		}
	}
}

// WithRocksDBConfig can be used to override internal RocksDB
// storage settings through the given .ini file.
func WithRocksDBConfig(iniFile string) DBOption {
	return func(opts *rocksDBOpts) {
		opts.iniFile = strings.TrimSpace(iniFile)
	}
}

// OpenDB initializes a new instance of RocksDB with specified
// options. It uses the given folder for storing the data files.
func OpenDB(dbFolder string, dbOpts ...DBOption) (DB, error) {
	opts := newOptions(dbFolder)
	for _, dbOpt := range dbOpts {
		dbOpt(opts)
	}
	if opts.iniFile != "" {
		if err := applyINI(opts); err != nil {
			opts.destroy()
			return nil, err
		}
	}
	return openStore(opts)
}

func applyINI(opts *rocksDBOpts) error {
	cfg, err := ini.Load(opts.iniFile)
	if err != nil {
		return fmt.Errorf("unable to load RocksDB configuration from given file: %s, error: %w", opts.iniFile, err)
	}
	var buff strings.Builder
	sect := cfg.Section("")
	sectConf := sect.KeysHash()
	for key, val := range sectConf {
		fmt.Fprintf(&buff, "%s=%s;", key, val)
	}
	rdbOpts, err := gorocksdb.GetOptionsFromString(opts.rocksDBOpts, buff.String())
	if err != nil {
		return fmt.Errorf("unable to parse RocksDB configuration from given file: %s, error: %w", opts.iniFile, err)
	}
	opts.rocksDBOpts = rdbOpts
	return nil
}

func newOptions(dbFolder string) *rocksDBOpts {
	bbto := gorocksdb.NewDefaultBlockBasedTableOptions()
	opts := gorocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)
	opts.SetWALTtlSeconds(uint64(600))
	opts.SetBlockBasedTableFactory(bbto)
	wrOpts := gorocksdb.NewDefaultWriteOptions()
	rdOpts := gorocksdb.NewDefaultReadOptions()
	return &rocksDBOpts{
		folderName:     dbFolder,
		blockTableOpts: bbto,
		rocksDBOpts:    opts,
		lgr:            zap.NewNop(),
		readOpts:       rdOpts,
		writeOpts:      wrOpts,
		statsCli:       stats.NewNoOpClient(),
		promRegistry:   stats.NewPrometheusNoopRegistry(),
	}
}

func (rdbOpts *rocksDBOpts) destroy() {
	rdbOpts.blockTableOpts.Destroy()
	rdbOpts.rocksDBOpts.Destroy()
	rdbOpts.readOpts.Destroy()
	rdbOpts.writeOpts.Destroy()
}

func openStore(opts *rocksDBOpts) (*rocksDB, error) {
	db, err := gorocksdb.OpenDb(opts.rocksDBOpts, opts.folderName)
	if err != nil {
		opts.destroy()
		return nil, err
	}

	rocksdb := &rocksDB{db: db, opts: opts}
	rocksdb.metricsCollector()
	opts.lgr.Info("Opened RocksDB store", zap.String("dir", opts.folderName))
	return rocksdb, nil
}

func (rdb *rocksDB) Close() error {
	rdb.unRegisterMetricsCollector()
	rdb.db.Close()
	rdb.opts.destroy()
	return nil
}

func (rdb *rocksDB) Put(pairs ...*storage.KVPair) error {
	metricsPrefix := "rocksdb.put.multi"
	if len(pairs) == 1 {
		metricsPrefix = "rocksdb.put.single"
	}
	defer rdb.opts.statsCli.Timing(metricsPrefix+".latency.ms", time.Now())

	wb := gorocksdb.NewWriteBatch()
	defer wb.Destroy()
	for _, kv := range pairs {
		if kv == nil {
			continue //skip nil entries
		}
		wb.Put(kv.Key, kv.Value)
	}
	err := rdb.db.Write(rdb.opts.writeOpts, wb)
	if err != nil {
		rdb.opts.statsCli.Incr(metricsPrefix+".errors", 1)
	}
	return err
}

func (rdb *rocksDB) Get(keys ...[]byte) ([]*storage.KVPair, error) {
	ro := rdb.opts.readOpts
	switch numKeys := len(keys); {
	case numKeys == 1:
		return rdb.getSingleKey(ro, keys[0])
	default:
		return rdb.getMultipleKeys(ro, keys)
	}
}

func (rdb *rocksDB) getSingleKey(ro *gorocksdb.ReadOptions, key []byte) ([]*storage.KVPair, error) {
	defer rdb.opts.statsCli.Timing("rocksdb.single.get.latency.ms", time.Now())

	value, err := rdb.db.Get(ro, key)
	if err != nil {
		rdb.opts.statsCli.Incr("rocksdb.single.get.errors", 1)
		return nil, err
	}
	defer value.Free()
	if !value.Exists() {
		return nil, nil
	}
	return []*storage.KVPair{{Key: key, Value: toByteArray(value)}}, nil
}

func (rdb *rocksDB) getMultipleKeys(ro *gorocksdb.ReadOptions, keys [][]byte) ([]*storage.KVPair, error) {
	defer rdb.opts.statsCli.Timing("rocksdb.multi.get.latency.ms", time.Now())

	values, err := rdb.db.MultiGet(ro, keys...)
	if err != nil {
		rdb.opts.statsCli.Incr("rocksdb.multi.get.errors", 1)
		return nil, err
	}
	defer values.Destroy()

	var results []*storage.KVPair
	for i, value := range values {
		if value.Exists() {
			results = append(results, &storage.KVPair{Key: keys[i], Value: toByteArray(value)})
		}
	}
	return results, nil
}

func (rdb *rocksDB) Sync() error {
	defer rdb.opts.statsCli.Timing("rocksdb.sync.latency.ms", time.Now())
	fo := gorocksdb.NewDefaultFlushOptions()
	defer fo.Destroy()
	fo.SetWait(true)
	return rdb.db.Flush(fo)
}

func (rdb *rocksDB) Truncate() error {
	defer rdb.opts.statsCli.Timing("rocksdb.truncate.latency.ms", time.Now())

	readOpts := gorocksdb.NewDefaultReadOptions()
	defer readOpts.Destroy()
	readOpts.SetFillCache(false)
	it := rdb.db.NewIterator(readOpts)
	defer it.Close()

	wb := gorocksdb.NewWriteBatch()
	defer wb.Destroy()
	deleted := 0
	for it.SeekToFirst(); it.Valid(); it.Next() {
		wb.Delete(toByteArray(it.Key()))
		if wb.Count() >= truncateBatchSize {
			if err := rdb.db.Write(rdb.opts.writeOpts, wb); err != nil {
				rdb.opts.statsCli.Incr("rocksdb.truncate.errors", 1)
				return err
			}
			deleted += wb.Count()
			wb.Clear()
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	deleted += wb.Count()
	if err := rdb.db.Write(rdb.opts.writeOpts, wb); err != nil {
		rdb.opts.statsCli.Incr("rocksdb.truncate.errors", 1)
		return err
	}
	rdb.opts.lgr.Debug("Truncated RocksDB keyspace", zap.Int("deleted", deleted))
	return nil
}

type iter struct {
	iterOpts storage.IterationOptions
	rdbIter  *gorocksdb.Iterator
	readOpts *gorocksdb.ReadOptions
}

func (rdb *rocksDB) newIter(iterOpts storage.IterationOptions) *iter {
	readOpts := gorocksdb.NewDefaultReadOptions()
	readOpts.SetFillCache(false)
	it := rdb.db.NewIterator(readOpts)
	if sk, present := iterOpts.StartKey(); present {
		it.Seek(sk)
	} else if kp, present := iterOpts.KeyPrefix(); present {
		it.Seek(kp)
	} else {
		it.SeekToFirst()
	}
	return &iter{iterOpts, it, readOpts}
}

func (rdbIter *iter) HasNext() bool {
	if !rdbIter.rdbIter.Valid() {
		return false
	}
	if kp, prsnt := rdbIter.iterOpts.KeyPrefix(); prsnt && !rdbIter.rdbIter.ValidForPrefix(kp) {
		return false
	}
	key := rdbIter.rdbIter.Key()
	defer key.Free()
	return !storage.PastStopKey(rdbIter.iterOpts, key.Data())
}

func (rdbIter *iter) Next() ([]byte, []byte) {
	defer rdbIter.rdbIter.Next()
	key := toByteArray(rdbIter.rdbIter.Key())
	val := toByteArray(rdbIter.rdbIter.Value())
	return key, val
}

func (rdbIter *iter) Err() error {
	return rdbIter.rdbIter.Err()
}

func (rdbIter *iter) Close() error {
	rdbIter.rdbIter.Close()
	rdbIter.readOpts.Destroy()
	return nil
}

func (rdb *rocksDB) Iterate(iterOpts storage.IterationOptions) storage.Iterator {
	return rdb.newIter(iterOpts)
}

func byteArrayCopy(src []byte, dstLen int) []byte {
	dst := make([]byte, dstLen)
	copy(dst, src)
	return dst
}

func toByteArray(value *gorocksdb.Slice) []byte {
	if value != nil {
		src := value.Data()
		res := byteArrayCopy(src, value.Size())
		return res
	}
	return nil
}
