package storage

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type memStore struct {
	data      map[string][]byte
	puts      int
	openIters int
	closed    bool
	failWith  error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (ms *memStore) Put(pairs ...*KVPair) error {
	if ms.failWith != nil {
		return ms.failWith
	}
	ms.puts++
	for _, kv := range pairs {
		ms.data[string(kv.Key)] = kv.Value
	}
	return nil
}

func (ms *memStore) Get(keys ...[]byte) ([]*KVPair, error) {
	if ms.failWith != nil {
		return nil, ms.failWith
	}
	var res []*KVPair
	for _, key := range keys {
		if val, ok := ms.data[string(key)]; ok {
			res = append(res, &KVPair{Key: key, Value: val})
		}
	}
	return res, nil
}

func (ms *memStore) Iterate(itOpts IterationOptions) Iterator {
	var keys []string
	for k := range ms.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var pairs []*KVPair
	for _, k := range keys {
		key := []byte(k)
		if kp, ok := itOpts.KeyPrefix(); ok && !bytes.HasPrefix(key, kp) {
			continue
		}
		if sk, ok := itOpts.StartKey(); ok && bytes.Compare(key, sk) < 0 {
			continue
		}
		if PastStopKey(itOpts, key) {
			break
		}
		pairs = append(pairs, &KVPair{Key: key, Value: ms.data[k]})
	}
	ms.openIters++
	return &memIter{ms: ms, pairs: pairs, err: ms.failWith}
}

func (ms *memStore) Sync() error { return ms.failWith }

func (ms *memStore) Truncate() error {
	ms.data = make(map[string][]byte)
	return ms.failWith
}

func (ms *memStore) Close() error {
	ms.closed = true
	return nil
}

type memIter struct {
	ms    *memStore
	pairs []*KVPair
	err   error
}

func (mi *memIter) HasNext() bool { return mi.err == nil && len(mi.pairs) > 0 }

func (mi *memIter) Next() ([]byte, []byte) {
	kv := mi.pairs[0]
	mi.pairs = mi.pairs[1:]
	return kv.Key, kv.Value
}

func (mi *memIter) Err() error { return mi.err }

func (mi *memIter) Close() error {
	mi.ms.openIters--
	return nil
}

func openTestTable(t *testing.T, kvs KVStore, opts ...TableOption) *Table {
	tbl, err := OpenTable("test", kvs, opts...)
	if err != nil {
		t.Fatalf("Unable to open table. Error: %v", err)
	}
	return tbl
}

func TestTableAutoFlush(t *testing.T) {
	kvs := newMemStore()
	tbl := openTestTable(t, kvs)
	defer tbl.Close()

	if !tbl.IsAutoFlush() {
		t.Fatalf("Expected auto flush to be on by default")
	}
	if err := tbl.Put(&KVPair{Key: []byte("k1"), Value: []byte("v1")}); err != nil {
		t.Fatalf("Unable to PUT. Key: k1. Error: %v", err)
	}
	if kvs.puts != 1 || tbl.Pending() != 0 {
		t.Errorf("Expected the write to reach the store immediately")
	}
}

func TestTableBufferedWrites(t *testing.T) {
	kvs := newMemStore()
	tbl := openTestTable(t, kvs, WithAutoFlush(false), WithWriteBufferSize(0))

	for i := 0; i < 10; i++ {
		key := []byte(fmt.Sprintf("K%d", i))
		if err := tbl.Put(&KVPair{Key: key, Value: []byte("V")}); err != nil {
			t.Fatalf("Unable to PUT. Key: %s. Error: %v", key, err)
		}
	}
	if kvs.puts != 0 || tbl.Pending() != 10 {
		t.Fatalf("Expected 10 buffered rows and no store writes, got %d pending, %d writes", tbl.Pending(), kvs.puts)
	}
	if kv, err := tbl.Get([]byte("K1")); err != nil || kv != nil {
		t.Errorf("Expected buffered row to be invisible before flush, got %v, %v", kv, err)
	}
	if err := tbl.Flush(); err != nil {
		t.Fatalf("Unable to flush. Error: %v", err)
	}
	if kvs.puts != 1 || len(kvs.data) != 10 || tbl.Pending() != 0 {
		t.Errorf("Expected one multi put of 10 rows, got %d writes and %d rows", kvs.puts, len(kvs.data))
	}
	if err := tbl.Close(); err != nil {
		t.Errorf("Unable to close. Error: %v", err)
	}
	if !kvs.closed {
		t.Errorf("Expected table close to close the store")
	}
}

func TestTableWriteBufferLimit(t *testing.T) {
	kvs := newMemStore()
	tbl := openTestTable(t, kvs, WithAutoFlush(false), WithWriteBufferSize(8))
	defer tbl.Close()

	tbl.Put(&KVPair{Key: []byte("ab"), Value: []byte("cd")})
	if kvs.puts != 0 {
		t.Fatalf("Expected no flush below the buffer limit")
	}
	tbl.Put(&KVPair{Key: []byte("ef"), Value: []byte("gh")})
	if kvs.puts != 1 || tbl.Pending() != 0 {
		t.Errorf("Expected a flush once the buffer limit is reached")
	}
}

func TestTableSetAutoFlushPushesPending(t *testing.T) {
	kvs := newMemStore()
	tbl := openTestTable(t, kvs, WithAutoFlush(false), WithWriteBufferSize(0))
	defer tbl.Close()

	tbl.Put(&KVPair{Key: []byte("k"), Value: []byte("v")})
	if err := tbl.SetAutoFlush(true); err != nil {
		t.Fatalf("Unable to enable auto flush. Error: %v", err)
	}
	if len(kvs.data) != 1 {
		t.Errorf("Expected pending row to be flushed when enabling auto flush")
	}
}

func TestTableGetNotFound(t *testing.T) {
	tbl := openTestTable(t, newMemStore(), WithReadCache(1<<20))
	defer tbl.Close()

	kv, err := tbl.Get([]byte("missing"))
	if err != nil || kv != nil {
		t.Errorf("Expected nil, nil for a missing key. Got %v, %v", kv, err)
	}

	tbl.Put(&KVPair{Key: []byte("present"), Value: []byte("yes")})
	for i := 0; i < 3; i++ {
		kv, err = tbl.Get([]byte("present"))
		if err != nil || kv == nil || string(kv.Value) != "yes" {
			t.Errorf("Unable to GET. Key: present. Got %v, %v", kv, err)
		}
	}
}

func TestTableErrorsAreIOErrors(t *testing.T) {
	kvs := newMemStore()
	reg := prometheus.NewRegistry()
	tbl := openTestTable(t, kvs, WithPromStats(reg), WithEngineName("mem"))
	defer tbl.Close()

	kvs.failWith = errors.New("connection refused")
	err := tbl.Put(&KVPair{Key: []byte("k"), Value: []byte("v")})
	if !errors.Is(err, ErrIO) {
		t.Errorf("Expected PUT error to match ErrIO, got %v", err)
	}
	var oe *OpError
	if !errors.As(err, &oe) || oe.Engine != "mem" {
		t.Errorf("Expected an OpError for engine mem, got %#v", err)
	}
	if _, err = tbl.Get([]byte("k")); !errors.Is(err, ErrIO) {
		t.Errorf("Expected GET error to match ErrIO, got %v", err)
	}

	it, err := tbl.Scan()
	if err != nil {
		t.Fatalf("Unable to open scan. Error: %v", err)
	}
	for it.HasNext() {
		it.Next()
	}
	if !errors.Is(it.Err(), ErrIO) {
		t.Errorf("Expected iterator error to match ErrIO, got %v", it.Err())
	}
	it.Close()
	if kvs.openIters != 0 {
		t.Errorf("Expected iterator to be closed")
	}

	mfs, _ := reg.Gather()
	if len(mfs) == 0 {
		t.Errorf("Expected storage metrics to be registered")
	}
	kvs.failWith = nil
}

func TestTableClosed(t *testing.T) {
	tbl := openTestTable(t, newMemStore())
	tbl.Close()
	if err := tbl.Put(&KVPair{Key: []byte("k")}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, err := tbl.Get([]byte("k")); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, err := tbl.Scan(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if errors.Is(ErrClosed, ErrIO) {
		t.Errorf("ErrClosed must not be an I/O error")
	}
}

func TestTableScanRange(t *testing.T) {
	kvs := newMemStore()
	tbl := openTestTable(t, kvs)
	defer tbl.Close()
	for i := 0; i < 10; i++ {
		tbl.Put(&KVPair{Key: []byte(fmt.Sprintf("r%02d", i)), Value: []byte("v")})
	}

	it, err := tbl.Scan(IterationStartKey([]byte("r03")), IterationStopKey([]byte("r07")))
	if err != nil {
		t.Fatalf("Unable to open scan. Error: %v", err)
	}
	defer it.Close()
	cnt := 0
	for it.HasNext() {
		k, _ := it.Next()
		if cnt == 0 && string(k) != "r03" {
			t.Errorf("Expected scan to start at r03, got %s", k)
		}
		cnt++
	}
	if cnt != 4 {
		t.Errorf("Expected 4 rows in [r03, r07), got %d", cnt)
	}
}

func TestTableTruncate(t *testing.T) {
	kvs := newMemStore()
	tbl := openTestTable(t, kvs, WithAutoFlush(false))
	defer tbl.Close()
	tbl.Put(&KVPair{Key: []byte("a"), Value: []byte("1")})
	tbl.Flush()
	tbl.Put(&KVPair{Key: []byte("b"), Value: []byte("2")})
	if err := tbl.Truncate(); err != nil {
		t.Fatalf("Unable to truncate. Error: %v", err)
	}
	if len(kvs.data) != 0 || tbl.Pending() != 0 {
		t.Errorf("Expected an empty store and buffer after truncate")
	}
}

func TestTableFailedFlushDiscardsRows(t *testing.T) {
	kvs := newMemStore()
	tbl := openTestTable(t, kvs, WithAutoFlush(false), WithWriteBufferSize(0))
	defer tbl.Close()

	for _, k := range []string{"a", "b", "c"} {
		tbl.Put(&KVPair{Key: []byte(k), Value: []byte("v")})
	}
	kvs.failWith = errors.New("connection refused")
	if err := tbl.Flush(); !errors.Is(err, ErrIO) {
		t.Fatalf("Expected flush to fail with an I/O error, got %v", err)
	}
	if tbl.Pending() != 0 || tbl.Written() != 0 {
		t.Errorf("Expected failed rows to be discarded, got %d pending and %d written", tbl.Pending(), tbl.Written())
	}

	kvs.failWith = nil
	tbl.Put(&KVPair{Key: []byte("d"), Value: []byte("v")})
	if err := tbl.Flush(); err != nil {
		t.Fatalf("Unable to flush. Error: %v", err)
	}
	if tbl.Written() != 1 || len(kvs.data) != 1 {
		t.Errorf("Expected only the acknowledged row to count, got %d written and %d stored", tbl.Written(), len(kvs.data))
	}
}

func TestTableWrittenWithAutoFlush(t *testing.T) {
	kvs := newMemStore()
	tbl := openTestTable(t, kvs)
	defer tbl.Close()

	tbl.Put(&KVPair{Key: []byte("a"), Value: []byte("1")}, &KVPair{Key: []byte("b"), Value: []byte("2")})
	kvs.failWith = errors.New("connection refused")
	tbl.Put(&KVPair{Key: []byte("c"), Value: []byte("3")})
	kvs.failWith = nil
	if tbl.Written() != 2 {
		t.Errorf("Expected 2 acknowledged rows, got %d", tbl.Written())
	}
}

func TestTableCacheAfterBufferedWrite(t *testing.T) {
	kvs := newMemStore()
	tbl := openTestTable(t, kvs, WithAutoFlush(false), WithWriteBufferSize(0), WithReadCache(1<<20))
	defer tbl.Close()

	key := []byte("k")
	tbl.Put(&KVPair{Key: key, Value: []byte("v1")})
	if err := tbl.Flush(); err != nil {
		t.Fatalf("Unable to flush. Error: %v", err)
	}
	if kv, err := tbl.Get(key); err != nil || kv == nil || string(kv.Value) != "v1" {
		t.Fatalf("Unable to GET. Key: k. Got %v, %v", kv, err)
	}
	<-time.After(10 * time.Millisecond)

	tbl.Put(&KVPair{Key: key, Value: []byte("v2")})
	if kv, err := tbl.Get(key); err != nil || kv == nil || string(kv.Value) != "v1" {
		t.Fatalf("Expected the stored value while v2 is buffered. Got %v, %v", kv, err)
	}
	<-time.After(10 * time.Millisecond)
	if err := tbl.Flush(); err != nil {
		t.Fatalf("Unable to flush. Error: %v", err)
	}
	<-time.After(10 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if kv, err := tbl.Get(key); err != nil || kv == nil || string(kv.Value) != "v2" {
			t.Errorf("Expected the flushed value v2. Got %v, %v", kv, err)
		}
	}
}
