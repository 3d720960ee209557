package badger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/flipkart-incubator/kvbench/internal/stats"
	"github.com/flipkart-incubator/kvbench/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	ini "gopkg.in/ini.v1"
)

// EngineName identifies this engine in metrics and errors.
const EngineName = "badger"

// DB interface represents the capabilities exposed
// by the underlying implmentation based on Badger engine.
type DB interface {
	storage.KVStore
}

type badgerDB struct {
	db   *badger.DB
	opts *bdgrOpts
}

type bdgrOpts struct {
	opts         badger.Options
	lgr          *zap.Logger
	statsCli     stats.Client
	promRegistry prometheus.Registerer
	iniFile      string
}

// DBOption is used to configure the Badger
// storage engine.
type DBOption func(*bdgrOpts)

// WithLogger is used to inject a ZAP logger instance.
func WithLogger(lgr *zap.Logger) DBOption {
	return func(opts *bdgrOpts) {
		if lgr != nil {
			opts.lgr = lgr
			opts.opts = opts.opts.WithLogger(&zapBadgerLogger{lgr: lgr})
		}
	}
}

// WithStats is used to inject a metrics client.
func WithStats(statsCli stats.Client) DBOption {
	return func(opts *bdgrOpts) {
		if statsCli != nil {
			opts.statsCli = statsCli
		} else {
			opts.statsCli = stats.NewNoOpClient()
		}
	}
}

// WithPromStats is used to inject a prometheus registry
// for the Badger expvar collector.
func WithPromStats(registry prometheus.Registerer) DBOption {
	return func(opts *bdgrOpts) {
		if registry != nil {
			opts.promRegistry = registry
		} else {
			opts.promRegistry = stats.NewPrometheusNoopRegistry()
		}
	}
}

// WithSyncWrites configures Badger to ensure every
// write is flushed to disk before acking back.
func WithSyncWrites() DBOption {
	return func(opts *bdgrOpts) {
		opts.opts = opts.opts.WithSyncWrites(true)
	}
}

// WithoutSyncWrites configures Badger to prevent
// flush to disk for every write.
func WithoutSyncWrites() DBOption {
	return func(opts *bdgrOpts) {
		opts.opts = opts.opts.WithSyncWrites(false)
	}
}

// WithCacheSize sets the value in bytes the amount of
// cache used for data blocks.
func WithCacheSize(size uint64) DBOption {
	return func(opts *bdgrOpts) {
		opts.opts = opts.opts.WithBlockCacheSize(int64(size))
	}
}

// WithBadgerConfig can be used to override internal Badger
// storage settings through the given .ini file. Settings
// absent from the file keep their configured values.
func WithBadgerConfig(iniFile string) DBOption {
	return func(opts *bdgrOpts) {
		opts.iniFile = strings.TrimSpace(iniFile)
	}
}

// WithDBDir sets the respective Badger storage folders.
func WithDBDir(dir string) DBOption {
	return func(opts *bdgrOpts) {
		opts.opts = opts.opts.WithDir(dir).WithValueDir(dir)
	}
}

// WithInMemory sets Badger storage to operate entirely
// in memory. No files are created on disk whatsoever.
func WithInMemory() DBOption {
	return func(opts *bdgrOpts) {
		opts.opts = opts.opts.WithInMemory(true).WithDir("").WithValueDir("")
	}
}

// OpenDB initializes a new instance of BadgerDB with the specified
// options.
func OpenDB(dbOpts ...DBOption) (kvs DB, err error) {
	noopLgr := zap.NewNop()
	opts := &bdgrOpts{
		opts:         badger.DefaultOptions("").WithLogger(&zapBadgerLogger{lgr: noopLgr}),
		lgr:          noopLgr,
		statsCli:     stats.NewNoOpClient(),
		promRegistry: stats.NewPrometheusNoopRegistry(),
	}
	for _, dbOpt := range dbOpts {
		dbOpt(opts)
	}
	if opts.iniFile != "" {
		if err = applyINI(opts); err != nil {
			return nil, err
		}
	}
	return openStore(opts)
}

func applyINI(opts *bdgrOpts) error {
	cfg, err := ini.Load(opts.iniFile)
	if err != nil {
		return fmt.Errorf("unable to load Badger configuration from given file: %s, error: %w", opts.iniFile, err)
	}
	stOpts := opts.opts
	if err := cfg.Section("").StrictMapTo(&stOpts); err != nil {
		return fmt.Errorf("unable to parse Badger configuration from given file: %s, error: %w", opts.iniFile, err)
	}
	opts.opts = stOpts
	return nil
}

func openStore(bdbOpts *bdgrOpts) (*badgerDB, error) {
	db, err := badger.Open(bdbOpts.opts)
	if err != nil {
		return nil, err
	}
	bdb := &badgerDB{db, bdbOpts}
	bdb.metricsCollector()
	bdbOpts.lgr.Info("Opened Badger store",
		zap.String("dir", bdbOpts.opts.Dir),
		zap.Bool("inMemory", bdbOpts.opts.InMemory),
		zap.Bool("syncWrites", bdbOpts.opts.SyncWrites))
	return bdb, nil
}

func (bdb *badgerDB) Close() error {
	return bdb.db.Close()
}

func (bdb *badgerDB) Put(pairs ...*storage.KVPair) error {
	defer bdb.opts.statsCli.Timing("badger.put.latency.ms", time.Now())
	wb := bdb.db.NewWriteBatch()
	for _, kv := range pairs {
		if kv == nil {
			continue //skip nil entries
		}
		if err := wb.Set(kv.Key, kv.Value); err != nil {
			wb.Cancel()
			bdb.opts.statsCli.Incr("badger.put.errors", 1)
			return err
		}
	}
	err := wb.Flush()
	if err != nil {
		bdb.opts.statsCli.Incr("badger.put.errors", 1)
	}
	return err
}

func (bdb *badgerDB) Get(keys ...[]byte) ([]*storage.KVPair, error) {
	defer bdb.opts.statsCli.Timing("badger.get.latency.ms", time.Now())
	var results []*storage.KVPair
	err := bdb.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			item, err := txn.Get(key)
			switch err {
			case nil:
				value, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				results = append(results, &storage.KVPair{Key: key, Value: value})
			case badger.ErrKeyNotFound:
				continue
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		bdb.opts.statsCli.Incr("badger.get.errors", 1)
	}
	return results, err
}

func (bdb *badgerDB) Sync() error {
	if bdb.opts.opts.InMemory {
		return nil
	}
	defer bdb.opts.statsCli.Timing("badger.sync.latency.ms", time.Now())
	return bdb.db.Sync()
}

func (bdb *badgerDB) Truncate() error {
	defer bdb.opts.statsCli.Timing("badger.truncate.latency.ms", time.Now())
	err := bdb.db.DropAll()
	if err != nil {
		bdb.opts.statsCli.Incr("badger.truncate.errors", 1)
	}
	return err
}

type iter struct {
	itOpts  storage.IterationOptions
	txn     *badger.Txn
	it      *badger.Iterator
	iterErr error
}

func (bdbIter *iter) HasNext() bool {
	if kp, prsnt := bdbIter.itOpts.KeyPrefix(); prsnt {
		if bdbIter.it.ValidForPrefix(kp) {
			return !storage.PastStopKey(bdbIter.itOpts, bdbIter.it.Item().Key())
		}
		if bdbIter.it.Valid() {
			bdbIter.it.Next()
			return bdbIter.HasNext()
		}
		return false
	}
	return bdbIter.it.Valid() && !storage.PastStopKey(bdbIter.itOpts, bdbIter.it.Item().Key())
}

func (bdbIter *iter) Next() ([]byte, []byte) {
	defer bdbIter.it.Next()
	item := bdbIter.it.Item()
	key := item.KeyCopy(nil)
	val, err := item.ValueCopy(nil)
	if err != nil {
		bdbIter.iterErr = err
	}
	return key, val
}

func (bdbIter *iter) Err() error {
	return bdbIter.iterErr
}

func (bdbIter *iter) Close() error {
	bdbIter.it.Close()
	bdbIter.txn.Discard()
	return nil
}

func (bdb *badgerDB) newIter(itOpts storage.IterationOptions) *iter {
	txn := bdb.db.NewTransaction(false)
	bdgrItOpts := badger.DefaultIteratorOptions
	if cs, prsnt := itOpts.CacheSize(); prsnt {
		bdgrItOpts.PrefetchSize = cs
	}
	if kp, prsnt := itOpts.KeyPrefix(); prsnt {
		bdgrItOpts.Prefix = kp
	}
	it := txn.NewIterator(bdgrItOpts)

	if sk, prsnt := itOpts.StartKey(); prsnt {
		it.Seek(sk)
	} else {
		it.Rewind()
	}
	return &iter{itOpts, txn, it, nil}
}

func (bdb *badgerDB) Iterate(iterOpts storage.IterationOptions) storage.Iterator {
	return bdb.newIter(iterOpts)
}

type zapBadgerLogger struct {
	lgr *zap.Logger
}

func (blgr *zapBadgerLogger) Errorf(msg string, args ...interface{}) {
	if ce := blgr.lgr.Check(zap.ErrorLevel, msg); ce != nil {
		blgr.log(ce, args...)
	}
}

func (blgr *zapBadgerLogger) Warningf(msg string, args ...interface{}) {
	if ce := blgr.lgr.Check(zap.WarnLevel, msg); ce != nil {
		blgr.log(ce, args...)
	}
}

func (blgr *zapBadgerLogger) Infof(msg string, args ...interface{}) {
	if ce := blgr.lgr.Check(zap.InfoLevel, msg); ce != nil {
		blgr.log(ce, args...)
	}
}

func (blgr *zapBadgerLogger) Debugf(msg string, args ...interface{}) {
	if ce := blgr.lgr.Check(zap.DebugLevel, msg); ce != nil {
		blgr.log(ce, args...)
	}
}

func (blgr *zapBadgerLogger) log(ce *zapcore.CheckedEntry, args ...interface{}) {
	flds := make([]zap.Field, len(args))
	for i, arg := range args {
		flds[i] = zap.Any(strconv.Itoa(i), arg)
	}
	ce.Write(flds...)
}
