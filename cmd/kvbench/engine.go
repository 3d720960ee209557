package main

import (
	"fmt"
	"path/filepath"

	"github.com/flipkart-incubator/kvbench/internal/opts"
	"github.com/flipkart-incubator/kvbench/internal/storage"
	"github.com/flipkart-incubator/kvbench/internal/storage/badger"
	"github.com/flipkart-incubator/kvbench/internal/storage/mongo"
	"github.com/flipkart-incubator/kvbench/internal/storage/redis"
	"github.com/flipkart-incubator/kvbench/internal/storage/rocksdb"
	"go.uber.org/zap"
)

func openStore(cfg *opts.Config, bo *opts.BenchOpts) (storage.KVStore, error) {
	lgr := bo.Logger.With(zap.String("engine", cfg.DbEngine))
	switch cfg.DbEngine {
	case badger.EngineName:
		dbOpts := []badger.DBOption{
			badger.WithLogger(lgr),
			badger.WithStats(bo.StatsCli),
			badger.WithPromStats(bo.PrometheusRegistry),
			badger.WithCacheSize(cfg.BlockCacheSize),
		}
		if cfg.DisklessMode {
			dbOpts = append(dbOpts, badger.WithInMemory())
		} else {
			dbOpts = append(dbOpts, badger.WithDBDir(filepath.Join(cfg.DbFolder, "badger")))
		}
		if cfg.EnableWAL {
			dbOpts = append(dbOpts, badger.WithSyncWrites())
		} else {
			dbOpts = append(dbOpts, badger.WithoutSyncWrites())
		}
		if cfg.DbEngineIni != "" {
			dbOpts = append(dbOpts, badger.WithBadgerConfig(cfg.DbEngineIni))
		}
		return badger.OpenDB(dbOpts...)
	case rocksdb.EngineName:
		dbOpts := []rocksdb.DBOption{
			rocksdb.WithLogger(lgr),
			rocksdb.WithStats(bo.StatsCli),
			rocksdb.WithPromStats(bo.PrometheusRegistry),
			rocksdb.WithCacheSize(cfg.BlockCacheSize),
		}
		if cfg.EnableWAL {
			dbOpts = append(dbOpts, rocksdb.WithSyncWrites())
		} else {
			dbOpts = append(dbOpts, rocksdb.WithoutWAL())
		}
		if cfg.DbEngineIni != "" {
			dbOpts = append(dbOpts, rocksdb.WithRocksDBConfig(cfg.DbEngineIni))
		}
		return rocksdb.OpenDB(filepath.Join(cfg.DbFolder, "rocksdb"), dbOpts...)
	case redis.EngineName:
		return redis.OpenDB(cfg.RedisAddr,
			redis.WithLogger(lgr),
			redis.WithStats(bo.StatsCli),
			redis.WithPassword(cfg.RedisPassword),
			redis.WithDBIndex(cfg.RedisDB),
			redis.WithNamespace(cfg.ToolTable+":"),
		)
	case mongo.EngineName:
		dbOpts := []mongo.DBOption{
			mongo.WithLogger(lgr),
			mongo.WithStats(bo.StatsCli),
			mongo.WithDatabase(cfg.MongoDatabase),
			mongo.WithCollection(cfg.ToolTable),
		}
		if cfg.EnableWAL {
			dbOpts = append(dbOpts, mongo.WithJournal())
		}
		return mongo.OpenDB(cfg.MongoURI, dbOpts...)
	default:
		return nil, fmt.Errorf("%w: unknown storage engine %q", opts.ErrInvalidConfig, cfg.DbEngine)
	}
}

// setupTable opens the configured engine and wraps it in the
// tool table, truncating it first when asked to.
func setupTable(cfg *opts.Config, bo *opts.BenchOpts) (*storage.Table, error) {
	kvs, err := openStore(cfg, bo)
	if err != nil {
		return nil, err
	}
	tbl, err := storage.OpenTable(cfg.ToolTable, kvs,
		storage.WithLogger(bo.Logger),
		storage.WithStats(bo.StatsCli),
		storage.WithPromStats(bo.PrometheusRegistry),
		storage.WithMeter(bo.Meter),
		storage.WithEngineName(cfg.DbEngine),
		storage.WithAutoFlush(cfg.AutoFlush),
		storage.WithWriteBufferSize(cfg.WriteBufferSize),
		storage.WithReadCache(cfg.ReadCacheSize),
	)
	if err != nil {
		kvs.Close()
		return nil, err
	}
	if cfg.DeleteTable {
		bo.Logger.Info("Deleting all rows of the tool table", zap.String("table", cfg.ToolTable))
		if err := tbl.Truncate(); err != nil {
			tbl.Close()
			return nil, err
		}
	}
	return tbl, nil
}
