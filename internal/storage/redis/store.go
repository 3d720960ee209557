package redis

import (
	"bytes"
	"fmt"
	"time"

	"github.com/flipkart-incubator/kvbench/internal/stats"
	"github.com/flipkart-incubator/kvbench/internal/storage"
	"github.com/go-redis/redis"
	"go.uber.org/zap"
)

// EngineName identifies this engine in metrics and errors.
const EngineName = "redis"

const (
	defaultPageSize = 100
	truncateBatch   = 1000
	dataKeyInfix    = "d:"
	indexKeySuffix  = "idx"
)

// DB interface represents the capabilities exposed by the
// Redis backed store. Keys are kept ordered through a sorted
// set whose members all carry score 0.
type DB interface {
	storage.KVStore
}

type redisDB struct {
	db   *redis.Client
	opts *redisOpts
}

type redisOpts struct {
	addr      string
	password  string
	dbIndex   int
	poolSize  int
	namespace string
	lgr       *zap.Logger
	statsCli  stats.Client
}

// DBOption is used to configure the Redis store.
type DBOption func(*redisOpts)

// WithLogger is used to inject a ZAP logger instance.
func WithLogger(lgr *zap.Logger) DBOption {
	return func(opts *redisOpts) {
		if lgr != nil {
			opts.lgr = lgr
		} else {
			opts.lgr = zap.NewNop()
		}
	}
}

// WithStats is used to inject a metrics client.
func WithStats(statsCli stats.Client) DBOption {
	return func(opts *redisOpts) {
		if statsCli != nil {
			opts.statsCli = statsCli
		} else {
			opts.statsCli = stats.NewNoOpClient()
		}
	}
}

// WithPassword sets the AUTH password.
func WithPassword(password string) DBOption {
	return func(opts *redisOpts) {
		opts.password = password
	}
}

// WithDBIndex selects the logical Redis database.
func WithDBIndex(dbIndex int) DBOption {
	return func(opts *redisOpts) {
		opts.dbIndex = dbIndex
	}
}

// WithPoolSize sets the connection pool size.
func WithPoolSize(size int) DBOption {
	return func(opts *redisOpts) {
		opts.poolSize = size
	}
}

// WithNamespace prefixes every Redis key written by the store,
// typically with the benchmark table name.
func WithNamespace(namespace string) DBOption {
	return func(opts *redisOpts) {
		opts.namespace = namespace
	}
}

// OpenDB connects to the Redis server at the given address
// and verifies the connection.
func OpenDB(addr string, dbOpts ...DBOption) (DB, error) {
	opts := &redisOpts{
		addr:     addr,
		lgr:      zap.NewNop(),
		statsCli: stats.NewNoOpClient(),
	}
	for _, dbOpt := range dbOpts {
		dbOpt(opts)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.addr,
		Password: opts.password,
		DB:       opts.dbIndex,
		PoolSize: opts.poolSize,
	})
	if _, err := client.Ping().Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("unable to reach Redis at %s: %w", opts.addr, err)
	}
	opts.lgr.Info("Connected to Redis", zap.String("addr", opts.addr), zap.Int("db", opts.dbIndex))
	return &redisDB{client, opts}, nil
}

func (rdb *redisDB) dataKey(key []byte) string {
	return rdb.opts.namespace + dataKeyInfix + string(key)
}

func (rdb *redisDB) indexKey() string {
	return rdb.opts.namespace + indexKeySuffix
}

func (rdb *redisDB) Close() error {
	return rdb.db.Close()
}

func (rdb *redisDB) Put(pairs ...*storage.KVPair) error {
	defer rdb.opts.statsCli.Timing("redis.put.latency.ms", time.Now())
	members := make([]redis.Z, 0, len(pairs))
	pipe := rdb.db.Pipeline()
	defer pipe.Close()
	for _, kv := range pairs {
		if kv == nil {
			continue //skip nil entries
		}
		pipe.Set(rdb.dataKey(kv.Key), kv.Value, 0)
		members = append(members, redis.Z{Score: 0, Member: string(kv.Key)})
	}
	if len(members) == 0 {
		return nil
	}
	pipe.ZAdd(rdb.indexKey(), members...)
	if _, err := pipe.Exec(); err != nil {
		rdb.opts.statsCli.Incr("redis.put.errors", 1)
		return err
	}
	return nil
}

func (rdb *redisDB) Get(keys ...[]byte) ([]*storage.KVPair, error) {
	defer rdb.opts.statsCli.Timing("redis.get.latency.ms", time.Now())
	if len(keys) == 0 {
		return nil, nil
	}
	strKeys := make([]string, len(keys))
	for i, key := range keys {
		strKeys[i] = rdb.dataKey(key)
	}
	vals, err := rdb.db.MGet(strKeys...).Result()
	if err != nil {
		rdb.opts.statsCli.Incr("redis.get.errors", 1)
		return nil, err
	}
	var results []*storage.KVPair
	for i, val := range vals {
		if str, ok := val.(string); ok {
			results = append(results, &storage.KVPair{Key: keys[i], Value: []byte(str)})
		}
	}
	return results, nil
}

// Sync is a no-op, durability follows the server persistence settings.
func (rdb *redisDB) Sync() error {
	return nil
}

func (rdb *redisDB) Truncate() error {
	defer rdb.opts.statsCli.Timing("redis.truncate.latency.ms", time.Now())
	idx := rdb.indexKey()
	for {
		members, err := rdb.db.ZRange(idx, 0, truncateBatch-1).Result()
		if err != nil {
			rdb.opts.statsCli.Incr("redis.truncate.errors", 1)
			return err
		}
		if len(members) == 0 {
			return nil
		}
		dataKeys := make([]string, len(members))
		zMembers := make([]interface{}, len(members))
		for i, member := range members {
			dataKeys[i] = rdb.dataKey([]byte(member))
			zMembers[i] = member
		}
		pipe := rdb.db.Pipeline()
		pipe.Del(dataKeys...)
		pipe.ZRem(idx, zMembers...)
		_, err = pipe.Exec()
		pipe.Close()
		if err != nil {
			rdb.opts.statsCli.Incr("redis.truncate.errors", 1)
			return err
		}
	}
}

type iter struct {
	rdb      *redisDB
	itOpts   storage.IterationOptions
	pageSize int64
	min      string
	page     []*storage.KVPair
	done     bool
	iterErr  error
}

func (rdb *redisDB) Iterate(itOpts storage.IterationOptions) storage.Iterator {
	min := "-"
	if sk, prsnt := itOpts.StartKey(); prsnt {
		min = "[" + string(sk)
	} else if kp, prsnt := itOpts.KeyPrefix(); prsnt {
		min = "[" + string(kp)
	}
	pageSize := int64(defaultPageSize)
	if cs, prsnt := itOpts.CacheSize(); prsnt {
		pageSize = int64(cs)
	}
	return &iter{rdb: rdb, itOpts: itOpts, pageSize: pageSize, min: min}
}

func (it *iter) fetch() {
	max := "+"
	if ek, prsnt := it.itOpts.StopKey(); prsnt {
		max = "(" + string(ek)
	}
	members, err := it.rdb.db.ZRangeByLex(it.rdb.indexKey(), redis.ZRangeBy{
		Min:    it.min,
		Max:    max,
		Offset: 0,
		Count:  it.pageSize,
	}).Result()
	if err != nil {
		it.iterErr, it.done = err, true
		return
	}
	if int64(len(members)) < it.pageSize {
		it.done = true
	}
	if len(members) == 0 {
		return
	}
	it.min = "(" + members[len(members)-1]

	keys := make([][]byte, len(members))
	for i, member := range members {
		keys[i] = []byte(member)
	}
	pairs, err := it.rdb.Get(keys...)
	if err != nil {
		it.iterErr, it.done = err, true
		return
	}
	it.page = pairs
}

func (it *iter) HasNext() bool {
	for len(it.page) == 0 && !it.done {
		it.fetch()
	}
	if len(it.page) == 0 {
		return false
	}
	if kp, prsnt := it.itOpts.KeyPrefix(); prsnt && !bytes.HasPrefix(it.page[0].Key, kp) {
		it.page, it.done = nil, true
		return false
	}
	return true
}

func (it *iter) Next() ([]byte, []byte) {
	kv := it.page[0]
	it.page = it.page[1:]
	return kv.Key, kv.Value
}

func (it *iter) Err() error {
	return it.iterErr
}

func (it *iter) Close() error {
	it.page, it.done = nil, true
	return nil
}
