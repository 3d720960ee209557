package mongo

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/flipkart-incubator/kvbench/internal/stats"
	"github.com/flipkart-incubator/kvbench/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"
)

// EngineName identifies this engine in metrics and errors.
const EngineName = "mongo"

const defaultTimeout = 30 * time.Second

// CollectionAPI is the subset of *mongo.Collection used by the store.
type CollectionAPI interface {
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	Drop(ctx context.Context) error
}

// DB interface represents the capabilities exposed by the
// MongoDB backed store.
type DB interface {
	storage.KVStore
}

// row keys are stored hex encoded so that the _id order
// matches the byte order of the keys.
type row struct {
	ID    string `bson:"_id"`
	Value []byte `bson:"v"`
}

type mongoDB struct {
	client *mongo.Client
	coll   CollectionAPI
	opts   *mongoOpts
}

type mongoOpts struct {
	database   string
	collection string
	journal    bool
	timeout    time.Duration
	lgr        *zap.Logger
	statsCli   stats.Client
}

// DBOption is used to configure the MongoDB store.
type DBOption func(*mongoOpts)

// WithLogger is used to inject a ZAP logger instance.
func WithLogger(lgr *zap.Logger) DBOption {
	return func(opts *mongoOpts) {
		if lgr != nil {
			opts.lgr = lgr
		} else {
			opts.lgr = zap.NewNop()
		}
	}
}

// WithStats is used to inject a metrics client.
func WithStats(statsCli stats.Client) DBOption {
	return func(opts *mongoOpts) {
		if statsCli != nil {
			opts.statsCli = statsCli
		} else {
			opts.statsCli = stats.NewNoOpClient()
		}
	}
}

// WithDatabase sets the database holding the benchmark collection.
func WithDatabase(database string) DBOption {
	return func(opts *mongoOpts) {
		opts.database = database
	}
}

// WithCollection sets the benchmark collection name.
func WithCollection(collection string) DBOption {
	return func(opts *mongoOpts) {
		opts.collection = collection
	}
}

// WithJournal makes every write wait for the server journal.
func WithJournal() DBOption {
	return func(opts *mongoOpts) {
		opts.journal = true
	}
}

// WithTimeout bounds every single round trip.
func WithTimeout(timeout time.Duration) DBOption {
	return func(opts *mongoOpts) {
		if timeout > 0 {
			opts.timeout = timeout
		}
	}
}

func newOptions() *mongoOpts {
	return &mongoOpts{
		database:   "kvbench",
		collection: "hhbench",
		timeout:    defaultTimeout,
		lgr:        zap.NewNop(),
		statsCli:   stats.NewNoOpClient(),
	}
}

// OpenDB connects to the MongoDB deployment at the given URI.
func OpenDB(uri string, dbOpts ...DBOption) (DB, error) {
	opts := newOptions()
	for _, dbOpt := range dbOpts {
		dbOpt(opts)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to MongoDB: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to reach MongoDB: %w", err)
	}

	journal := opts.journal
	collOpts := options.Collection().SetWriteConcern(&writeconcern.WriteConcern{W: 1, Journal: &journal})
	coll := client.Database(opts.database).Collection(opts.collection, collOpts)
	opts.lgr.Info("Connected to MongoDB",
		zap.String("database", opts.database),
		zap.String("collection", opts.collection),
		zap.Bool("journal", opts.journal))
	return &mongoDB{client: client, coll: coll, opts: opts}, nil
}

// NewStore creates a store over the given collection. The
// caller keeps ownership of the underlying client.
func NewStore(coll CollectionAPI, dbOpts ...DBOption) DB {
	opts := newOptions()
	for _, dbOpt := range dbOpts {
		dbOpt(opts)
	}
	return &mongoDB{coll: coll, opts: opts}
}

func encodeKey(key []byte) string {
	return hex.EncodeToString(key)
}

func (mdb *mongoDB) Close() error {
	if mdb.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mdb.opts.timeout)
	defer cancel()
	return mdb.client.Disconnect(ctx)
}

func (mdb *mongoDB) Put(pairs ...*storage.KVPair) error {
	defer mdb.opts.statsCli.Timing("mongo.put.latency.ms", time.Now())
	models := make([]mongo.WriteModel, 0, len(pairs))
	for _, kv := range pairs {
		if kv == nil {
			continue //skip nil entries
		}
		id := encodeKey(kv.Key)
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: id}}).
			SetReplacement(row{ID: id, Value: kv.Value}).
			SetUpsert(true))
	}
	if len(models) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), mdb.opts.timeout)
	defer cancel()
	if _, err := mdb.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		mdb.opts.statsCli.Incr("mongo.put.errors", 1)
		return err
	}
	return nil
}

func (mdb *mongoDB) Get(keys ...[]byte) ([]*storage.KVPair, error) {
	defer mdb.opts.statsCli.Timing("mongo.get.latency.ms", time.Now())
	if len(keys) == 0 {
		return nil, nil
	}
	ids := make([]string, len(keys))
	for i, key := range keys {
		ids[i] = encodeKey(key)
	}

	ctx, cancel := context.WithTimeout(context.Background(), mdb.opts.timeout)
	defer cancel()
	cursor, err := mdb.coll.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		mdb.opts.statsCli.Incr("mongo.get.errors", 1)
		return nil, err
	}
	defer cursor.Close(ctx)

	found := make(map[string][]byte, len(keys))
	for cursor.Next(ctx) {
		var r row
		if err := cursor.Decode(&r); err != nil {
			mdb.opts.statsCli.Incr("mongo.get.errors", 1)
			return nil, err
		}
		found[r.ID] = r.Value
	}
	if err := cursor.Err(); err != nil {
		mdb.opts.statsCli.Incr("mongo.get.errors", 1)
		return nil, err
	}

	var results []*storage.KVPair
	for i, key := range keys {
		if val, ok := found[ids[i]]; ok {
			results = append(results, &storage.KVPair{Key: key, Value: val})
		}
	}
	return results, nil
}

// Sync is a no-op, durability follows the collection write concern.
func (mdb *mongoDB) Sync() error {
	return nil
}

func (mdb *mongoDB) Truncate() error {
	defer mdb.opts.statsCli.Timing("mongo.truncate.latency.ms", time.Now())
	ctx, cancel := context.WithTimeout(context.Background(), mdb.opts.timeout)
	defer cancel()
	if err := mdb.coll.Drop(ctx); err != nil {
		mdb.opts.statsCli.Incr("mongo.truncate.errors", 1)
		return err
	}
	return nil
}

type iter struct {
	itOpts  storage.IterationOptions
	cursor  *mongo.Cursor
	next    *storage.KVPair
	done    bool
	iterErr error
}

func (mdb *mongoDB) Iterate(itOpts storage.IterationOptions) storage.Iterator {
	idRange := bson.D{}
	if sk, prsnt := itOpts.StartKey(); prsnt {
		idRange = append(idRange, bson.E{Key: "$gte", Value: encodeKey(sk)})
	} else if kp, prsnt := itOpts.KeyPrefix(); prsnt {
		idRange = append(idRange, bson.E{Key: "$gte", Value: encodeKey(kp)})
	}
	if ek, prsnt := itOpts.StopKey(); prsnt {
		idRange = append(idRange, bson.E{Key: "$lt", Value: encodeKey(ek)})
	}
	filter := bson.D{}
	if len(idRange) > 0 {
		filter = append(filter, bson.E{Key: "_id", Value: idRange})
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if cs, prsnt := itOpts.CacheSize(); prsnt {
		findOpts.SetBatchSize(int32(cs))
	}

	cursor, err := mdb.coll.Find(context.Background(), filter, findOpts)
	if err != nil {
		mdb.opts.statsCli.Incr("mongo.iterate.errors", 1)
		return &iter{itOpts: itOpts, done: true, iterErr: err}
	}
	return &iter{itOpts: itOpts, cursor: cursor}
}

func (it *iter) advance() {
	if !it.cursor.Next(context.Background()) {
		it.done, it.iterErr = true, it.cursor.Err()
		return
	}
	var r row
	if err := it.cursor.Decode(&r); err != nil {
		it.done, it.iterErr = true, err
		return
	}
	key, err := hex.DecodeString(r.ID)
	if err != nil {
		it.done, it.iterErr = true, err
		return
	}
	if kp, prsnt := it.itOpts.KeyPrefix(); prsnt && !bytes.HasPrefix(key, kp) {
		it.done = true
		return
	}
	it.next = &storage.KVPair{Key: key, Value: r.Value}
}

func (it *iter) HasNext() bool {
	if it.next == nil && !it.done {
		it.advance()
	}
	return it.next != nil
}

func (it *iter) Next() ([]byte, []byte) {
	kv := it.next
	it.next = nil
	return kv.Key, kv.Value
}

func (it *iter) Err() error {
	return it.iterErr
}

func (it *iter) Close() error {
	it.done, it.next = true, nil
	if it.cursor != nil {
		return it.cursor.Close(context.Background())
	}
	return nil
}
